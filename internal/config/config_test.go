package config

import (
	"testing"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"APP_ENV", "HTTP_PORT", "STORE_BACKEND", "POSTGRES_DSN", "REMOTE_STORE_URL",
		"JWT_SECRET", "INITIAL_STATUS", "MODIFICATION_WINDOW", "REDIS_URL", "REDIS_ADDR",
		"CLINIC_TIMEZONE", "LOCK_TTL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreBackend != BackendMemory || cfg.HTTPPort != "8080" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.InitialStatus != appointment.StatusPending || cfg.ModificationWindow != 48*time.Hour {
		t.Errorf("unexpected policy defaults %+v", cfg)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("redis should be disabled by default, got %q", cfg.RedisAddr)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without dsn", map[string]string{"STORE_BACKEND": "postgres"}},
		{"remote without url", map[string]string{"STORE_BACKEND": "remote"}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "mongo"}},
		{"bad initial status", map[string]string{"INITIAL_STATUS": "cancelled"}},
		{"prod without secret", map[string]string{"APP_ENV": "prod"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("INITIAL_STATUS", "Confirmed")
	t.Setenv("MODIFICATION_WINDOW", "24h")
	t.Setenv("LOCK_TTL", "3")
	t.Setenv("REDIS_URL", "redis://user:pw@cache:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.InitialStatus != appointment.StatusConfirmed {
		t.Errorf("initial status = %s", cfg.InitialStatus)
	}
	if cfg.ModificationWindow != 24*time.Hour || cfg.LockTTL != 3*time.Second {
		t.Errorf("durations = %s %s", cfg.ModificationWindow, cfg.LockTTL)
	}
	if cfg.RedisAddr != "cache:6379" || cfg.RedisUsername != "user" || cfg.RedisPassword != "pw" {
		t.Errorf("redis = %s %s %s", cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	}
	p := cfg.Policy(time.UTC)
	if p.Window != 24*time.Hour || p.InitialStatus != appointment.StatusConfirmed {
		t.Errorf("policy = %+v", p)
	}
}
