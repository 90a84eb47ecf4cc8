// Package noop provides an authenticator that accepts every request.
// Used for development setups and as the terminal voter in a chain.
package noop

import (
	"context"
	"net/http"

	"github.com/openconduit/conduit/pkg/auth"
)

// Authenticator always returns Yes with an anonymous identity.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.Result {
	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     "anonymous",
			ServiceTier: "default",
		},
	}
}
