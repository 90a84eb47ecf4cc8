package auth

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Decision is an authenticator's verdict on a request.
//
// An authenticator that recognizes the credential format answers Yes or
// No and ends the evaluation. One that does not (a JWT authenticator
// seeing an API key, say) answers Abstain so the next one gets a look.
type Decision int

const (
	Yes Decision = iota
	No
	Abstain
)

// Result bundles a Decision with its supporting data: the Identity on
// Yes, the rejection cause on No. Both are nil on Abstain.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Identity describes an authenticated caller.
type Identity struct {
	Subject     string // required, unique per caller
	ServiceTier string // selects the rate-limit bucket
	Scopes      []string

	// Metadata holds claims that do not fit the fixed fields. Storage
	// reads "tenant_id" from here to scope conversations.
	Metadata map[string]string
}

// TenantID returns the caller's tenant, or "" when none was asserted.
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Authenticator inspects a request's credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// Chain tries each Authenticator in order until one commits to Yes or
// No. DefaultDecision settles the request when every member abstains:
// Yes admits it as anonymous, anything else rejects it.
type Chain struct {
	Authenticators  []Authenticator
	DefaultDecision Decision
}

func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, authn := range c.Authenticators {
		if res := authn.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}

	if c.DefaultDecision == Yes {
		return Result{
			Decision: Yes,
			Identity: &Identity{Subject: "anonymous", ServiceTier: "default"},
		}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}
