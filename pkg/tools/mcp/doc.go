// Package mcp connects the tool registry to Model Context Protocol
// servers. Tools discovered from configured servers execute server-side
// inside the agentic loop, indistinguishable from local Go tools.
package mcp
