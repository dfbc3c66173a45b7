package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Vote is one immutable ledger row. A voter has at most one vote per question.
type Vote struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	QuestionID  snowflake.ID `json:"question_id" gorm:"not null;uniqueIndex:ux_votes_question_voter,priority:1;index:ix_votes_question_country,priority:1"`
	OptionID    string       `json:"option_id" gorm:"type:varchar(32);not null"`
	CountryCode string       `json:"country_code" gorm:"type:varchar(2);not null;default:XX;index:ix_votes_question_country,priority:2"`
	VoterKey    string       `json:"-" gorm:"type:varchar(128);not null;uniqueIndex:ux_votes_question_voter,priority:2;index:ix_votes_voter"`
	VotedAt     time.Time    `json:"voted_at" gorm:"not null"`
}

func (Vote) TableName() string { return "votes" }

// HistoryEntry is a voter's vote joined with the window of its question.
type HistoryEntry struct {
	QuestionID  snowflake.ID `gorm:"column:question_id"`
	OptionID    string       `gorm:"column:option_id"`
	CountryCode string       `gorm:"column:country_code"`
	VotedAt     time.Time    `gorm:"column:voted_at"`
	ActiveFrom  *time.Time   `gorm:"column:active_from"`
}

type OptionCount struct {
	OptionID string `gorm:"column:option_id"`
	Count    int64  `gorm:"column:count"`
}
