package config

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CAREPORTAL_AUTH_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.AccessTTL != DefaultAccessTTL || cfg.RefreshTTL != DefaultRefreshTTL {
		t.Fatalf("unexpected TTLs %v/%v", cfg.AccessTTL, cfg.RefreshTTL)
	}
	if cfg.TokenIssuer != DefaultTokenIssuer {
		t.Fatalf("unexpected issuer %q", cfg.TokenIssuer)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("CAREPORTAL_AUTH_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CAREPORTAL_LISTEN_ADDR", ":9090")
	t.Setenv("CAREPORTAL_ACCESS_TTL_MINUTES", "30")
	t.Setenv("CAREPORTAL_REFRESH_TTL_DAYS", "7")
	t.Setenv("CAREPORTAL_BCRYPT_COST", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.AccessTTL != 30*time.Minute {
		t.Fatalf("unexpected access ttl %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected refresh ttl %v", cfg.RefreshTTL)
	}
	if cfg.BcryptCost != 12 {
		t.Fatalf("unexpected cost %d", cfg.BcryptCost)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CAREPORTAL_ACCESS_TTL_MINUTES", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric ttl")
	}

	t.Setenv("CAREPORTAL_ACCESS_TTL_MINUTES", "-5")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}
