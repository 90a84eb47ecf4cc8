package mcp

// Config holds the configuration for all MCP server connections.
type Config struct {
	// Servers is the list of MCP servers to connect to.
	Servers []ServerConfig `yaml:"servers"`
}

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name is the logical name for this server, used in logs and when
	// routing tool calls.
	Name string `yaml:"name" json:"name"`

	// Transport is "sse" or "streamable-http". Empty defaults to
	// streamable-http.
	Transport string `yaml:"transport" json:"transport"`

	// URL is the MCP server endpoint.
	URL string `yaml:"url" json:"url"`

	// Headers contains additional HTTP headers to send with every
	// request, typically bearer tokens or API keys.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}
