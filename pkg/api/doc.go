// Package api defines the normalized chat and embedding schema shared by
// every provider adapter and by the gateway's HTTP surface. The types here
// are the single wire format: vendor-specific request/response shapes exist
// only inside the provider mapper packages and are translated to and from
// these types at the boundary.
package api
