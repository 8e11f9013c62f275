package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultSession(t *testing.T) {
	s := DefaultSession()
	if s.WarningThresholdSeconds != 300 {
		t.Fatalf("unexpected default warning threshold: %d", s.WarningThresholdSeconds)
	}
	if s.JWTParamName != "gwSession" {
		t.Fatalf("unexpected default JWT param name: %s", s.JWTParamName)
	}
	if !s.AutoStart {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if s.EnableHeartbeat || s.EnableTabSync {
		t.Fatalf("expected heartbeat and tab sync disabled by default: %+v", s)
	}
	if s.HookTimeout() != 5*time.Second {
		t.Fatalf("unexpected hook timeout: %v", s.HookTimeout())
	}
}

func TestLoadBackendFromEnv_Defaults(t *testing.T) {
	b := LoadBackendFromEnv()
	if b.ListenAddr != ":8000" {
		t.Fatalf("unexpected listen addr: %s", b.ListenAddr)
	}
	if b.RedisEnabled {
		t.Fatal("expected redis disabled by default")
	}
}

func TestLoadBackendFromEnv_Overrides(t *testing.T) {
	os.Setenv("LISTEN_ADDR", ":9999")
	os.Setenv("REDIS_DB", "3")
	defer os.Unsetenv("LISTEN_ADDR")
	defer os.Unsetenv("REDIS_DB")

	b := LoadBackendFromEnv()
	if b.ListenAddr != ":9999" {
		t.Fatalf("expected override, got %s", b.ListenAddr)
	}
	if b.RedisDB != 3 {
		t.Fatalf("expected 3, got %d", b.RedisDB)
	}
}
