package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	"github.com/smallbiznis/worldpulse/internal/config"
	"github.com/smallbiznis/worldpulse/internal/observability"
	questionrepository "github.com/smallbiznis/worldpulse/internal/question/repository"
	queuerepository "github.com/smallbiznis/worldpulse/internal/queue/repository"
	"github.com/smallbiznis/worldpulse/internal/ratelimit"
	"github.com/smallbiznis/worldpulse/internal/rotation"
	"github.com/smallbiznis/worldpulse/pkg/db"
	"github.com/smallbiznis/worldpulse/pkg/redisdb"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		fx.Invoke(SetMaxProcs),
		db.Module,
		redisdb.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,

		// Rotation only touches the stores; API replicas evict their
		// actors through rotation.Follow.
		fx.Provide(questionrepository.Provide),
		fx.Provide(queuerepository.Provide),

		rotation.Module,
		rotation.Loop,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

func SetMaxProcs(log *zap.Logger) {
	if _, err := maxprocs.Set(maxprocs.Logger(log.Sugar().Infof)); err != nil {
		log.Warn("maxprocs.set.failed", zap.Error(err))
	}
}
