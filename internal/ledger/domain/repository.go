package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, vote *Vote) error
	FindByVoter(ctx context.Context, db *gorm.DB, questionID snowflake.ID, voterKey string) (*Vote, error)
	ListByQuestion(ctx context.Context, db *gorm.DB, questionID snowflake.ID) ([]Vote, error)
	CountByOption(ctx context.Context, db *gorm.DB, questionID snowflake.ID) ([]OptionCount, error)
	History(ctx context.Context, db *gorm.DB, voterKey string) ([]HistoryEntry, error)
	Countries(ctx context.Context, db *gorm.DB, voterKey string) ([]string, error)
	CountLeadingChoices(ctx context.Context, db *gorm.DB, voterKey string) (int64, error)
}
