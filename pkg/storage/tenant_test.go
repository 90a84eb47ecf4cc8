package storage

import (
	"context"
	"testing"
)

func TestTenantRoundtrip(t *testing.T) {
	ctx := SetTenant(context.Background(), "acme")
	if got := GetTenant(ctx); got != "acme" {
		t.Errorf("GetTenant() = %q, want %q", got, "acme")
	}
}

func TestTenantMissing(t *testing.T) {
	if got := GetTenant(context.Background()); got != "" {
		t.Errorf("GetTenant() = %q, want empty for untenanted context", got)
	}
}

func TestTenantOverwrite(t *testing.T) {
	ctx := SetTenant(context.Background(), "first")
	ctx = SetTenant(ctx, "second")
	if got := GetTenant(ctx); got != "second" {
		t.Errorf("GetTenant() = %q, want %q", got, "second")
	}
}
