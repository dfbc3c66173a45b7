package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Submission is a community-proposed question waiting in the queue.
type Submission struct {
	ID             snowflake.ID                `json:"id" gorm:"primaryKey"`
	Text           string                      `json:"text" gorm:"type:text;not null"`
	Options        datatypes.JSONSlice[string] `json:"options" gorm:"not null"`
	SubmittedAt    time.Time                   `json:"submitted_at" gorm:"not null"`
	SubmittedByKey string                      `json:"-" gorm:"type:varchar(128);not null;index:ix_submissions_author"`
	Upvotes        int64                       `json:"upvotes" gorm:"not null;default:0"`
	Status         Status                      `json:"status" gorm:"type:varchar(16);not null;default:pending;index:ix_submissions_status"`
}

func (Submission) TableName() string { return "submissions" }

// Upvote records that a voter upvoted a submission. One per pair.
type Upvote struct {
	SubmissionID snowflake.ID `gorm:"primaryKey"`
	VoterKey     string       `gorm:"type:varchar(128);primaryKey"`
	CreatedAt    time.Time    `gorm:"not null"`
}

func (Upvote) TableName() string { return "submission_upvotes" }
