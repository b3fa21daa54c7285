package config

import (
	"testing"
	"time"
)

func TestLoadIncludesAgentDefaults(t *testing.T) {
	t.Setenv("AGENT_MAX_ITERATIONS", "")
	t.Setenv("AGENT_TIMEOUT_SECONDS", "")
	t.Setenv("LEDGER_BACKEND", "")
	t.Setenv("LEDGER_TTL_SECONDS", "")
	t.Setenv("MEMORY_FOLDER_NAME", "")

	cfg := Load()
	if cfg.AgentMaxIterations != 15 {
		t.Fatalf("expected default max iterations 15, got %d", cfg.AgentMaxIterations)
	}
	if cfg.AgentTimeoutSeconds != 120 {
		t.Fatalf("expected default agent timeout 120, got %d", cfg.AgentTimeoutSeconds)
	}
	if cfg.LedgerBackend != "memory" {
		t.Fatalf("expected default ledger backend memory, got %q", cfg.LedgerBackend)
	}
	if cfg.LedgerTTL != 10*time.Minute {
		t.Fatalf("expected default ledger ttl 10m, got %s", cfg.LedgerTTL)
	}
	if cfg.MemoryFolderName != "AI_AGENT_MEMORY" {
		t.Fatalf("expected default memory folder, got %q", cfg.MemoryFolderName)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("AGENT_MAX_ITERATIONS", "6")
	t.Setenv("LEDGER_BACKEND", "nats")
	t.Setenv("LEDGER_TTL_SECONDS", "90")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("JWT_EXPIRY_HOURS", "12")

	cfg := Load()
	if cfg.AgentMaxIterations != 6 {
		t.Fatalf("expected max iterations 6, got %d", cfg.AgentMaxIterations)
	}
	if cfg.LedgerBackend != "nats" {
		t.Fatalf("expected ledger backend nats, got %q", cfg.LedgerBackend)
	}
	if cfg.LedgerTTL != 90*time.Second {
		t.Fatalf("expected ledger ttl 90s, got %s", cfg.LedgerTTL)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit rps 2.5, got %v", cfg.RateLimitRPS)
	}
	if cfg.JWTExpiryHours != 12 {
		t.Fatalf("expected jwt expiry 12, got %d", cfg.JWTExpiryHours)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("AGENT_MAX_ITERATIONS", "not-a-number")
	t.Setenv("RATE_LIMIT_RPS", "nope")

	cfg := Load()
	if cfg.AgentMaxIterations != 15 {
		t.Fatalf("expected fallback max iterations 15, got %d", cfg.AgentMaxIterations)
	}
	if cfg.RateLimitRPS != 5 {
		t.Fatalf("expected fallback rps 5, got %v", cfg.RateLimitRPS)
	}
}
