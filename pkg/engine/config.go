package engine

// DefaultMaxToolTurns bounds the tool loop when the configuration does
// not specify a limit.
const DefaultMaxToolTurns = 10

// Config holds engine-level settings.
type Config struct {
	// DefaultModel is used when a request omits the model field.
	DefaultModel string

	// MaxToolTurns is the server-side ceiling on provider turns per chat.
	// Zero means DefaultMaxToolTurns. Requests can lower it but never
	// raise it.
	MaxToolTurns int
}

func (c Config) maxTurns() int {
	if c.MaxToolTurns > 0 {
		return c.MaxToolTurns
	}
	return DefaultMaxToolTurns
}

// effectiveMaxTurns applies the request-level override, which can only
// tighten the server limit.
func (c Config) effectiveMaxTurns(requested *int) int {
	max := c.maxTurns()
	if requested != nil && *requested > 0 && *requested < max {
		return *requested
	}
	return max
}
