package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/worldpulse/internal/config"
	"github.com/smallbiznis/worldpulse/internal/tally"
	"github.com/smallbiznis/worldpulse/internal/tally/store/badgerstore"
	"github.com/smallbiznis/worldpulse/internal/tally/store/gormstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("tally.store",
	fx.Provide(New),
)

// New selects the checkpoint backend named by TALLY_STORE.
func New(lc fx.Lifecycle, cfg config.Config, db *gorm.DB, log *zap.Logger) (tally.StateStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.TallyStore)) {
	case "", "db":
		return gormstore.New(db), nil
	case "badger":
		store, err := badgerstore.Open(cfg.BadgerDir, log)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return store.Close()
			},
		})
		log.Info("tally store badger", zap.String("dir", cfg.BadgerDir))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown tally store %q", cfg.TallyStore)
	}
}
