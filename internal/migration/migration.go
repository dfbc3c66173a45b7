package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	achievementdomain "github.com/smallbiznis/worldpulse/internal/achievement/domain"
	bandomain "github.com/smallbiznis/worldpulse/internal/ban/domain"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	queuedomain "github.com/smallbiznis/worldpulse/internal/queue/domain"
	"github.com/smallbiznis/worldpulse/internal/rotation"
	"github.com/smallbiznis/worldpulse/internal/tally/store/gormstore"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table. Dialects other than postgres are migrated from
// these with AutoMigrate.
func Models() []any {
	return []any{
		&questiondomain.Question{},
		&ledgerdomain.Vote{},
		&queuedomain.Submission{},
		&queuedomain.Upvote{},
		&achievementdomain.Achievement{},
		&bandomain.Ban{},
		&gormstore.TallyRecord{},
		&rotation.Run{},
	}
}

// Migrate brings the schema up to date for the connection's dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
