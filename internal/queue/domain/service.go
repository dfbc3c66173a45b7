package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Response, error)
	Upvote(ctx context.Context, id string, voterKey string) (*Response, error)
	List(ctx context.Context, voterKey string, limit int) (*ListResponse, error)
	// Top returns the submission rotation would promote next, or nil.
	Top(ctx context.Context) (*Submission, error)
	Approve(ctx context.Context, id string) error
	Reject(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type SubmitRequest struct {
	VoterKey string   `json:"-"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
}

type Response struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Options     []string  `json:"options"`
	SubmittedAt time.Time `json:"submittedAt"`
	Upvotes     int64     `json:"upvotes"`
	Status      Status    `json:"status"`
	UserUpvoted bool      `json:"userUpvoted"`
}

type ListResponse struct {
	Items        []Response `json:"items"`
	HasSubmitted bool       `json:"hasSubmitted"`
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

var (
	ErrInvalidID       = errors.New("invalid_submission_id")
	ErrInvalidVoter    = errors.New("invalid_voter_key")
	ErrInvalidText     = errors.New("invalid_question_text")
	ErrInvalidOptions  = errors.New("invalid_options")
	ErrNotFound        = errors.New("submission_not_found")
	ErrAlreadyUpvoted  = errors.New("already_upvoted")
	ErrPendingLimit    = errors.New("pending_submission_exists")
	ErrContentRejected = errors.New("content_rejected")
	ErrNotPending      = errors.New("submission_not_pending")
)

// ModerationError carries the reviewer's reason for a rejected submission.
type ModerationError struct {
	Reason string
}

func (e *ModerationError) Error() string {
	return ErrContentRejected.Error() + ": " + e.Reason
}

func (e *ModerationError) Is(target error) bool {
	return target == ErrContentRejected
}

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}

func ToResponse(s *Submission) *Response {
	options := make([]string, len(s.Options))
	copy(options, s.Options)
	return &Response{
		ID:          s.ID.String(),
		Text:        s.Text,
		Options:     options,
		SubmittedAt: s.SubmittedAt,
		Upvotes:     s.Upvotes,
		Status:      s.Status,
	}
}
