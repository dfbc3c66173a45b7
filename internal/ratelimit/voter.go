package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/worldpulse/internal/config"
)

const keyVoterAction = "ratelimit:voter:%s:%s"

// VoterLimiter throttles write endpoints per voter key.
type VoterLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewVoterLimiter(cfg config.Config, bucket *TokenBucket) (*VoterLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return &VoterLimiter{}, nil
	}
	if bucket == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.VoterRate <= 0 || limitCfg.VoterBurst <= 0 {
		return nil, errors.New("voter rate limit must be positive")
	}
	return &VoterLimiter{
		enabled: true,
		bucket:  bucket,
		rate:    limitCfg.VoterRate,
		burst:   limitCfg.VoterBurst,
	}, nil
}

func (l *VoterLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow consumes one token for voterKey on action. A disabled limiter always allows.
func (l *VoterLimiter) Allow(ctx context.Context, action, voterKey string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyVoterAction, strings.TrimSpace(action), strings.TrimSpace(voterKey))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
