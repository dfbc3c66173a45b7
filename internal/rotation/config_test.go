package rotation

import (
	"testing"
	"time"

	"github.com/smallbiznis/worldpulse/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestZeroConfigCatchesUp(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.False(t, cfg.SkipCatchUp)
	assert.Equal(t, DefaultConfig().JobTimeout, cfg.JobTimeout)
	assert.Equal(t, "worldpulse:rotation", cfg.LockKey)
}

func TestProvideConfigMapsCatchUpFlag(t *testing.T) {
	on := ProvideConfig(config.Config{Rotation: config.RotationConfig{CatchUpOnBoot: true}})
	assert.False(t, on.SkipCatchUp)
	assert.Equal(t, time.Minute, on.LockTTL)

	off := ProvideConfig(config.Config{Rotation: config.RotationConfig{CatchUpOnBoot: false, JobTimeout: time.Second}})
	assert.True(t, off.SkipCatchUp)
	assert.Equal(t, time.Second, off.JobTimeout)
}
