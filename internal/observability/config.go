package observability

import (
	"strings"

	"github.com/smallbiznis/worldpulse/internal/config"
)

// Config is the part of the application config that the logger, tracer and
// OTLP meters read.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	Export Export
}

// Export describes where traces and OTLP metrics are shipped.
type Export struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

// Active reports whether an exporter should be started.
func (e Export) Active() bool {
	return e.Enabled && e.Endpoint != ""
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "worldpulse"
	}
	t := cfg.Telemetry
	return Config{
		ServiceName: name,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		LogLevel:    t.LogLevel,
		LogFormat:   t.LogFormat,
		Export: Export{
			Enabled:       t.OtelEnabled,
			Endpoint:      t.OtelEndpoint,
			Protocol:      t.OtelProtocol,
			SamplingRatio: t.SamplingRatio,
		},
	}
}

// Debug turns on development logging and verbose gin output.
func (c Config) Debug() bool {
	if strings.EqualFold(c.LogLevel, "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
