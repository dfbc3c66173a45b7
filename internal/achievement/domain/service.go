package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/worldpulse/internal/tally"
)

const (
	WindowEdge            = time.Hour
	StreakDays            = 7
	GlobeTrotterCountries = 5
	ContrarianShare       = 0.10
	MainstreamChoices     = 10
)

// Engine evaluates achievement rules after an accepted vote.
type Engine interface {
	Evaluate(ctx context.Context, req EvaluateRequest) ([]Response, error)
	ListByVoter(ctx context.Context, voterKey string) ([]Response, error)
}

type EvaluateRequest struct {
	VoterKey   string
	OptionID   string
	VotedAt    time.Time
	ActiveFrom time.Time
	ActiveTo   time.Time
	Tally      tally.GlobalTally
}

type Response struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UnlockedAt  time.Time `json:"unlockedAt"`
}

func ToResponse(a *Achievement) Response {
	return Response{Name: a.Name, Description: a.Description, UnlockedAt: a.UnlockedAt}
}
