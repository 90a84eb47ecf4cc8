// Package transport defines the boundary between the HTTP surface and the
// chat engine. The ChatHandler and ResponseWriter interfaces decouple the
// engine from any particular wire protocol; the http subpackage provides
// the REST+SSE adapter. Middleware in this package wraps ChatHandler, not
// http.Handler, so cross-cutting behavior applies regardless of transport.
package transport
