package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ETIM_CLIENT_ID", "test-client")
	t.Setenv("ETIM_CLIENT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AuthURL != "https://etimauth.etim-international.com" {
		t.Errorf("AuthURL = %q", cfg.AuthURL)
	}
	if cfg.APIURL != "https://etimapi.etim-international.com" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.DefaultLanguage != "EN" {
		t.Errorf("DefaultLanguage = %q, want EN", cfg.DefaultLanguage)
	}
	if cfg.Scope != "EtimApi" {
		t.Errorf("Scope = %q, want EtimApi", cfg.Scope)
	}
	if cfg.SearchTTL != time.Hour {
		t.Errorf("SearchTTL = %v, want 1h", cfg.SearchTTL)
	}
	if cfg.DetailTTL != 24*time.Hour {
		t.Errorf("DetailTTL = %v, want 24h", cfg.DetailTTL)
	}
	if cfg.StaticTTL != 168*time.Hour {
		t.Errorf("StaticTTL = %v, want 168h", cfg.StaticTTL)
	}
	if cfg.MaxCollectionBytes != 65536 {
		t.Errorf("MaxCollectionBytes = %d, want 65536", cfg.MaxCollectionBytes)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	// t.Setenv registers the restore; unset afterwards so the variables
	// are genuinely absent, not just empty.
	for _, key := range []string{"ETIM_CLIENT_ID", "ETIM_CLIENT_SECRET"} {
		t.Setenv(key, "placeholder")
		os.Unsetenv(key)
	}

	if _, err := Load(); err == nil {
		t.Error("Load should fail without credentials")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ETIM_CLIENT_ID", "test-client")
	t.Setenv("ETIM_CLIENT_SECRET", "test-secret")
	t.Setenv("CACHE_SEARCH_TTL", "30m")
	t.Setenv("GOVERNOR_MAX_COLLECTION_BYTES", "1024")
	t.Setenv("ETIM_DEFAULT_LANGUAGE", "de-DE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SearchTTL != 30*time.Minute {
		t.Errorf("SearchTTL = %v, want 30m", cfg.SearchTTL)
	}
	if cfg.MaxCollectionBytes != 1024 {
		t.Errorf("MaxCollectionBytes = %d, want 1024", cfg.MaxCollectionBytes)
	}
	if cfg.DefaultLanguage != "de-DE" {
		t.Errorf("DefaultLanguage = %q, want de-DE", cfg.DefaultLanguage)
	}
}

func TestRedisAddr(t *testing.T) {
	t.Setenv("ETIM_CLIENT_ID", "test-client")
	t.Setenv("ETIM_CLIENT_SECRET", "test-secret")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.RedisAddr(); got != "cache.internal:6380" {
		t.Errorf("RedisAddr = %q, want cache.internal:6380", got)
	}
}
