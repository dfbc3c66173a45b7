package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Palette is cycled through when options are created.
var Palette = []string{"#3B82F6", "#EF4444", "#10B981", "#F59E0B"}

// Option is immutable once its question exists.
type Option struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Color string `json:"color"`
}

// Question is one poll. At most one question is active at a time.
type Question struct {
	ID         snowflake.ID                `json:"id" gorm:"primaryKey"`
	Text       string                      `json:"text" gorm:"type:text;not null"`
	Options    datatypes.JSONSlice[Option] `json:"options" gorm:"not null"`
	Status     Status                      `json:"status" gorm:"type:varchar(16);not null;default:pending;index:ix_questions_status"`
	ActiveFrom *time.Time                  `json:"active_from"`
	ActiveTo   *time.Time                  `json:"active_to"`
	CreatedAt  time.Time                   `json:"created_at" gorm:"not null"`
}

func (Question) TableName() string { return "questions" }

func (q *Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// OpenAt reports whether q is active and now falls inside its window.
func (q *Question) OpenAt(now time.Time) bool {
	if q.Status != StatusActive || q.ActiveFrom == nil || q.ActiveTo == nil {
		return false
	}
	return !now.Before(*q.ActiveFrom) && now.Before(*q.ActiveTo)
}

// BuildOptions assigns fresh ids and palette colors to texts, in order.
func BuildOptions(node *snowflake.Node, texts []string) []Option {
	out := make([]Option, 0, len(texts))
	for i, text := range texts {
		out = append(out, Option{
			ID:    node.Generate().String(),
			Text:  strings.TrimSpace(text),
			Color: Palette[i%len(Palette)],
		})
	}
	return out
}
