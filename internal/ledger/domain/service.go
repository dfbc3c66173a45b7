package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the append-only vote ledger, the source of truth for all tallies.
type Service interface {
	Append(ctx context.Context, req AppendRequest) (*Vote, error)
	Find(ctx context.Context, questionID snowflake.ID, voterKey string) (*Vote, error)
	ListByQuestion(ctx context.Context, questionID snowflake.ID) ([]Vote, error)
	CountByOption(ctx context.Context, questionID snowflake.ID) (map[string]int64, error)
	History(ctx context.Context, voterKey string) ([]HistoryEntry, error)
	Countries(ctx context.Context, voterKey string) ([]string, error)
	CountLeadingChoices(ctx context.Context, voterKey string) (int64, error)
}

type AppendRequest struct {
	QuestionID  snowflake.ID
	OptionID    string
	CountryCode string
	VoterKey    string
	VotedAt     time.Time
}

var (
	ErrAlreadyVoted    = errors.New("already_voted")
	ErrInvalidQuestion = errors.New("invalid_question_id")
	ErrInvalidOption   = errors.New("invalid_option_id")
	ErrInvalidVoter    = errors.New("invalid_voter_key")
)
