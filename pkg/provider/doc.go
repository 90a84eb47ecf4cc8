// Package provider defines the backend adapter contract: a Provider turns
// normalized chat requests into vendor API calls and yields normalized
// responses or event streams. The Accumulator merges a stream back into a
// complete message, which is how the tool loop observes tool calls that
// arrive as argument fragments.
package provider
