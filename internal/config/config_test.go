package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_SERVICE", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("TALLY_STORE", "")

	cfg := Load()
	if cfg.AppName != "worldpulse" {
		t.Fatalf("expected default app name, got %q", cfg.AppName)
	}
	if cfg.CacheBackend != "memory" {
		t.Fatalf("expected memory cache backend, got %q", cfg.CacheBackend)
	}
	if cfg.TallyStore != "db" {
		t.Fatalf("expected db tally store, got %q", cfg.TallyStore)
	}
	if cfg.Rotation.JobTimeout != 30*time.Second {
		t.Fatalf("expected 30s rotation timeout, got %s", cfg.Rotation.JobTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "REDIS")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("ROTATION_JOB_TIMEOUT", "not-a-duration")
	t.Setenv("RATE_LIMIT_VOTER_BURST", "25")

	cfg := Load()
	if cfg.CacheBackend != "redis" {
		t.Fatalf("expected lower-cased backend, got %q", cfg.CacheBackend)
	}
	if !cfg.Redis.Enabled() {
		t.Fatalf("expected redis to be enabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.Rotation.JobTimeout != 30*time.Second {
		t.Fatalf("invalid duration should fall back to default, got %s", cfg.Rotation.JobTimeout)
	}
	if cfg.RateLimit.VoterBurst != 25 {
		t.Fatalf("expected burst 25, got %d", cfg.RateLimit.VoterBurst)
	}
}

func TestLoadTelemetryPrefersTracesProtocol(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP/protobuf")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")

	cfg := Load().Telemetry
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected normalised log level, got %q", cfg.LogLevel)
	}
	if cfg.OtelProtocol != "http/protobuf" {
		t.Fatalf("expected traces protocol to win, got %q", cfg.OtelProtocol)
	}
	if cfg.SamplingRatio != 0.25 {
		t.Fatalf("expected ratio 0.25, got %v", cfg.SamplingRatio)
	}
}

func TestDefaultModerationRulesCompile(t *testing.T) {
	holder, err := NewStaticModerationRulesHolder(DefaultModerationRules())
	if err != nil {
		t.Fatalf("compile defaults: %v", err)
	}
	rules := holder.Get()
	if len(rules.Patterns) != len(rules.BlockedPatterns) {
		t.Fatalf("expected %d patterns, got %d", len(rules.BlockedPatterns), len(rules.Patterns))
	}
}

func TestModerationRulesRejectInvalidPattern(t *testing.T) {
	rules := DefaultModerationRules()
	rules.BlockedPatterns = append(rules.BlockedPatterns, "([")
	if _, err := NewStaticModerationRulesHolder(rules); err == nil {
		t.Fatalf("expected invalid pattern error")
	}
}
