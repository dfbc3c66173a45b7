package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, q *Question) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Question, error)
	FindActive(ctx context.Context, db *gorm.DB) (*Question, error)
	FindOldestPending(ctx context.Context, db *gorm.DB) (*Question, error)
	// ArchiveActive archives every active question and returns how many changed.
	ArchiveActive(ctx context.Context, db *gorm.DB) (int64, error)
	// Activate moves a pending question to active. It returns false when the
	// question was not pending.
	Activate(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to time.Time) (bool, error)
	ListArchived(ctx context.Context, db *gorm.DB, before *ArchiveCursor, limit int) ([]Question, error)
	DeletePending(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}

// ArchiveCursor resumes an archive listing after (ActiveTo, ID).
type ArchiveCursor struct {
	ActiveTo time.Time
	ID       snowflake.ID
}
