// Package auth authenticates gateway requests.
//
// Authenticators are composed into a Chain and vote on each request:
// Yes carries an Identity, No rejects the credentials, and Abstain passes
// to the next authenticator. When every authenticator abstains the chain's
// DefaultDecision applies, so an open gateway and a locked-down one differ
// only in configuration.
//
// The HTTP middleware enforces the chain ahead of the chat handler and
// places the resolved Identity (and its tenant) on the request context,
// where the storage layer picks it up for scoping.
package auth
