package domain

import (
	"context"
	"errors"

	achievementdomain "github.com/smallbiznis/worldpulse/internal/achievement/domain"
	"github.com/smallbiznis/worldpulse/internal/tally"
)

// Service accepts votes and serves tallies.
type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error)
	HasVoted(ctx context.Context, questionID, voterKey string) (*CheckResponse, error)
	Tally(ctx context.Context, questionID string) (*tally.GlobalTally, error)
}

type SubmitRequest struct {
	QuestionID  string `json:"questionId"`
	OptionID    string `json:"optionId"`
	VoterKey    string `json:"-"`
	CountryCode string `json:"-"`
}

type SubmitResponse struct {
	Votes           tally.GlobalTally            `json:"votes"`
	NewAchievements []achievementdomain.Response `json:"newAchievements"`
}

type CheckResponse struct {
	HasVoted bool   `json:"hasVoted"`
	OptionID string `json:"optionId,omitempty"`
}

var (
	ErrInvalidQuestion   = errors.New("invalid_question_id")
	ErrInvalidOption     = errors.New("invalid_option")
	ErrInvalidVoter      = errors.New("invalid_voter_key")
	ErrQuestionNotActive = errors.New("question_not_active")
	ErrAlreadyVoted      = errors.New("already_voted")
	// ErrUnavailable marks storage failures the client may retry.
	ErrUnavailable = errors.New("storage_unavailable")
)
