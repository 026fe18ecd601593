package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SWIFTDROP_JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if !cfg.App.IsDev() {
		t.Fatalf("expected development default, got %q", cfg.App.Env)
	}
	if cfg.Payments.CommissionRate != 0.25 {
		t.Fatalf("expected default commission 0.25, got %v", cfg.Payments.CommissionRate)
	}
	if cfg.JWT.AccessTokenTTL() != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %s", cfg.JWT.AccessTokenTTL())
	}
	if cfg.Redis.Enabled() {
		t.Fatal("redis should be disabled without a url")
	}
}

func TestLoadMissingSecret(t *testing.T) {
	t.Setenv("SWIFTDROP_JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when jwt secret is missing")
	}

	t.Setenv("SWIFTDROP_JWT_SECRET", "   ")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when jwt secret is blank")
	}
}

func TestLoadRejectsBadCommission(t *testing.T) {
	t.Setenv("SWIFTDROP_JWT_SECRET", "test-secret")
	t.Setenv("SWIFTDROP_COMMISSION_RATE", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for commission rate >= 1")
	}
}
