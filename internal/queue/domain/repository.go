package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, s *Submission) error
	InsertUpvote(ctx context.Context, db *gorm.DB, submissionID snowflake.ID, voterKey string, at time.Time) error
	IncrementUpvotes(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Submission, error)
	CountPendingByAuthor(ctx context.Context, db *gorm.DB, voterKey string) (int64, error)
	// ListPending orders by upvotes, then earliest submission, then id.
	ListPending(ctx context.Context, db *gorm.DB, limit int) ([]Submission, error)
	UpvotedBy(ctx context.Context, db *gorm.DB, voterKey string, ids []snowflake.ID) ([]snowflake.ID, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status) (bool, error)
	DeletePending(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
