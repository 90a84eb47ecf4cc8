package auth

import (
	"context"
	"net/http"
	"testing"
)

// stubAuthn returns a fixed result, used to exercise chain voting.
type stubAuthn struct {
	result Result
}

func (s *stubAuthn) Authenticate(_ context.Context, _ *http.Request) Result {
	return s.result
}

func TestChainVoting(t *testing.T) {
	yes := func(subject string) Authenticator {
		return &stubAuthn{result: Result{Decision: Yes, Identity: &Identity{Subject: subject}}}
	}
	no := &stubAuthn{result: Result{Decision: No, Err: ErrUnauthenticated}}
	abstain := &stubAuthn{result: Result{Decision: Abstain}}

	tests := []struct {
		name           string
		authenticators []Authenticator
		defaultDec     Decision
		wantDecision   Decision
		wantSubject    string
	}{
		{
			name:           "first yes stops",
			authenticators: []Authenticator{yes("alice"), no},
			defaultDec:     No,
			wantDecision:   Yes,
			wantSubject:    "alice",
		},
		{
			name:           "first no stops",
			authenticators: []Authenticator{no, yes("bob")},
			defaultDec:     No,
			wantDecision:   No,
		},
		{
			name:           "abstain falls through to yes",
			authenticators: []Authenticator{abstain, yes("jwt-user")},
			defaultDec:     No,
			wantDecision:   Yes,
			wantSubject:    "jwt-user",
		},
		{
			name:           "all abstain default reject",
			authenticators: []Authenticator{abstain, abstain},
			defaultDec:     No,
			wantDecision:   No,
		},
		{
			name:           "all abstain default accept",
			authenticators: []Authenticator{abstain},
			defaultDec:     Yes,
			wantDecision:   Yes,
			wantSubject:    "anonymous",
		},
		{
			name:         "empty chain default reject",
			defaultDec:   No,
			wantDecision: No,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &Chain{
				Authenticators:  tt.authenticators,
				DefaultDecision: tt.defaultDec,
			}

			r, _ := http.NewRequest("POST", "/v1/chat", nil)
			result := chain.Authenticate(context.Background(), r)

			if result.Decision != tt.wantDecision {
				t.Fatalf("Decision = %d, want %d", result.Decision, tt.wantDecision)
			}
			if tt.wantSubject != "" && result.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", result.Identity.Subject, tt.wantSubject)
			}
			if tt.wantDecision == No && result.Err == nil {
				t.Error("expected non-nil Err on rejection")
			}
		})
	}
}

func TestIdentityTenantID(t *testing.T) {
	id := &Identity{Subject: "alice", Metadata: map[string]string{"tenant_id": "acme"}}
	if id.TenantID() != "acme" {
		t.Errorf("TenantID = %q, want %q", id.TenantID(), "acme")
	}

	noMeta := &Identity{Subject: "bob"}
	if noMeta.TenantID() != "" {
		t.Errorf("TenantID = %q, want empty", noMeta.TenantID())
	}

	var nilID *Identity
	if nilID.TenantID() != "" {
		t.Errorf("TenantID on nil = %q, want empty", nilID.TenantID())
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()

	if IdentityFromContext(ctx) != nil {
		t.Error("expected nil identity from empty context")
	}

	id := &Identity{Subject: "alice"}
	ctx = SetIdentity(ctx, id)
	got := IdentityFromContext(ctx)
	if got == nil || got.Subject != "alice" {
		t.Errorf("got %v, want alice", got)
	}
}
