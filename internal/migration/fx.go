package migration

import (
	"context"

	"github.com/smallbiznis/worldpulse/internal/config"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	"github.com/smallbiznis/worldpulse/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, questions questiondomain.Service, log *zap.Logger) error {
		if err := Migrate(conn); err != nil {
			return err
		}
		if !cfg.SeedOnBoot {
			return nil
		}
		_, err := seed.EnsureQuestions(context.Background(), questions, log)
		return err
	}),
)
