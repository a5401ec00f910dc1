package config_test

import (
	"testing"

	"github.com/lotlab/voxrelay/internal/config"
	"golang.org/x/crypto/bcrypt"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen != "0.0.0.0:64738" {
		t.Fatalf("Listen = %q, want default", cfg.Listen)
	}
	if cfg.ClientCapacity != config.MaxClientCapacity {
		t.Fatalf("ClientCapacity = %d, want %d when CLIENT_CAPACITY unset", cfg.ClientCapacity, config.MaxClientCapacity)
	}
}

func TestParseHashesHTTPPassword(t *testing.T) {
	cfg, err := config.Parse([]string{"--http-password", "hunter2"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.HTTPPassword) == 0 {
		t.Fatalf("expected HTTPPassword to be set")
	}
	if err := bcrypt.CompareHashAndPassword(cfg.HTTPPassword, []byte("hunter2")); err != nil {
		t.Fatalf("stored hash did not match cleartext password: %v", err)
	}
}

func TestParseClientCapacityFromEnv(t *testing.T) {
	t.Setenv("CLIENT_CAPACITY", "8")
	cfg, err := config.Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ClientCapacity != 8 {
		t.Fatalf("ClientCapacity = %d, want 8", cfg.ClientCapacity)
	}
}

func TestParseClientCapacityClampedToWireCeiling(t *testing.T) {
	t.Setenv("CLIENT_CAPACITY", "2048")
	cfg, err := config.Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ClientCapacity != config.MaxClientCapacity {
		t.Fatalf("ClientCapacity = %d, want clamped to %d", cfg.ClientCapacity, config.MaxClientCapacity)
	}
}
