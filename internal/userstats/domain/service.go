package domain

import (
	"context"
	"errors"
	"time"

	achievementdomain "github.com/smallbiznis/worldpulse/internal/achievement/domain"
)

type Service interface {
	Get(ctx context.Context, voterKey string) (*Stats, error)
}

// Stats summarizes one voter's participation.
type Stats struct {
	Streak       int                          `json:"streak"`
	TotalVotes   int                          `json:"totalVotes"`
	Achievements []achievementdomain.Response `json:"achievements"`
	LastVotedAt  *time.Time                   `json:"lastVotedAt"`
}

var ErrInvalidVoter = errors.New("invalid_voter_key")
