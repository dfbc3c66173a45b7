package cache

import (
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/worldpulse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(NewStore),
	fx.Provide(NewReadThrough),
)

type StoreParams struct {
	fx.In

	Config config.Config
	Redis  *redis.Client `optional:"true"`
	Log    *zap.Logger
}

// NewStore picks the backend named by CACHE_BACKEND.
func NewStore(p StoreParams) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(p.Config.CacheBackend)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		if p.Redis == nil {
			return nil, fmt.Errorf("cache backend redis requires REDIS_ADDR")
		}
		p.Log.Info("cache backend redis", zap.String("addr", p.Config.Redis.Addr))
		return NewRedisStore(p.Redis, p.Config.AppName+":")
	default:
		return nil, fmt.Errorf("unknown cache backend %q", p.Config.CacheBackend)
	}
}
