package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/worldpulse/internal/tally"
	"github.com/smallbiznis/worldpulse/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	// Find returns the stored question, or ErrNotFound.
	Find(ctx context.Context, id snowflake.ID) (*Question, error)
	// Current returns the question open right now, or ErrNoActiveQuestion.
	Current(ctx context.Context) (*Response, error)
	History(ctx context.Context, req pagination.Pagination) (*HistoryPage, error)
	Activate(ctx context.Context, id string) (*Response, error)
	ArchiveActive(ctx context.Context) (int64, error)
	NextPending(ctx context.Context) (*Question, error)
	Delete(ctx context.Context, id string) error
	// SeedIfEmpty inserts reqs when no question exists yet.
	SeedIfEmpty(ctx context.Context, reqs []CreateRequest) (int, error)
}

type CreateRequest struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type Response struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Options    []Option   `json:"options"`
	Status     Status     `json:"status"`
	ActiveFrom *time.Time `json:"activeFrom"`
	ActiveTo   *time.Time `json:"activeTo"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// HistoryItem is an archived question with its final ledger counts.
type HistoryItem struct {
	Question Response          `json:"question"`
	Votes    tally.GlobalTally `json:"votes"`
}

type HistoryPage struct {
	Items    []HistoryItem       `json:"items"`
	PageInfo pagination.PageInfo `json:"pageInfo"`
}

const (
	MinOptions = 2
	MaxOptions = 4
)

var (
	ErrInvalidID        = errors.New("invalid_question_id")
	ErrInvalidText      = errors.New("invalid_question_text")
	ErrInvalidOptions   = errors.New("invalid_options")
	ErrNotFound         = errors.New("question_not_found")
	ErrNoActiveQuestion = errors.New("no_active_question")
	ErrNotPending       = errors.New("question_not_pending")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}

func ToResponse(q *Question) *Response {
	options := make([]Option, len(q.Options))
	copy(options, q.Options)
	return &Response{
		ID:         q.ID.String(),
		Text:       q.Text,
		Options:    options,
		Status:     q.Status,
		ActiveFrom: q.ActiveFrom,
		ActiveTo:   q.ActiveTo,
		CreatedAt:  q.CreatedAt,
	}
}

// HasOption reports whether optionID belongs to the question.
func (r *Response) HasOption(optionID string) bool {
	for _, o := range r.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// OpenAt reports whether the question is active and now falls inside its window.
func (r *Response) OpenAt(now time.Time) bool {
	if r.Status != StatusActive || r.ActiveFrom == nil || r.ActiveTo == nil {
		return false
	}
	return !now.Before(*r.ActiveFrom) && now.Before(*r.ActiveTo)
}
