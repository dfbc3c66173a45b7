package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/worldpulse/internal/achievement"
	"github.com/smallbiznis/worldpulse/internal/ban"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	"github.com/smallbiznis/worldpulse/internal/config"
	"github.com/smallbiznis/worldpulse/internal/ledger"
	"github.com/smallbiznis/worldpulse/internal/migration"
	"github.com/smallbiznis/worldpulse/internal/moderation"
	"github.com/smallbiznis/worldpulse/internal/observability"
	"github.com/smallbiznis/worldpulse/internal/question"
	"github.com/smallbiznis/worldpulse/internal/queue"
	"github.com/smallbiznis/worldpulse/internal/ratelimit"
	"github.com/smallbiznis/worldpulse/internal/rotation"
	"github.com/smallbiznis/worldpulse/internal/server"
	"github.com/smallbiznis/worldpulse/internal/tally"
	tallystore "github.com/smallbiznis/worldpulse/internal/tally/store"
	"github.com/smallbiznis/worldpulse/internal/userstats"
	"github.com/smallbiznis/worldpulse/internal/vote"
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

		// Tally actors live in this process.
		tallystore.Module,
		tally.Module,

		ledger.Module,
		question.Module,
		queue.Module,
		ban.Module,
		moderation.Module,
		achievement.Module,
		userstats.Module,
		vote.Module,
		migration.Module,

		// Rotation runs in apps/scheduler; the API only follows it.
		rotation.Module,
		rotation.Follow,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
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
