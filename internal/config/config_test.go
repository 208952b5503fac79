package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerAddr != ":8080" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v", cfg.RefreshTokenTTL)
	}
	if cfg.TokenIssuer != "sptm" {
		t.Errorf("TokenIssuer = %q", cfg.TokenIssuer)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d", cfg.MaxBodyBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SPTM_SERVER_ADDR", ":9090")
	t.Setenv("SPTM_ACCESS_TOKEN_TTL_MINUTES", "5")
	t.Setenv("SPTM_REDIS_ADDR", "localhost:6379")

	cfg := Load()
	if cfg.ServerAddr != ":9090" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Errorf("AccessTokenTTL = %v", cfg.AccessTokenTTL)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
}
