package rotation

import (
	"time"

	"github.com/smallbiznis/worldpulse/internal/config"
)

// Config controls rotation job limits and locking.
type Config struct {
	JobTimeout    time.Duration
	LockTTL       time.Duration
	LockKey       string
	// SkipCatchUp disables the startup rotation when no question is open.
	SkipCatchUp   bool
	// HandoverDelay is how long after a boundary followers look for the new question.
	HandoverDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		JobTimeout:    30 * time.Second,
		LockTTL:       time.Minute,
		LockKey:       "worldpulse:rotation",
		HandoverDelay: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	if c.HandoverDelay <= 0 {
		c.HandoverDelay = defaults.HandoverDelay
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		JobTimeout:    cfg.Rotation.JobTimeout,
		LockTTL:       cfg.Rotation.LockTTL,
		SkipCatchUp:   !cfg.Rotation.CatchUpOnBoot,
	}.withDefaults()
}
