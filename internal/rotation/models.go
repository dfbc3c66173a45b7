package rotation

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Source string

const (
	SourceSubmission Source = "submission"
	SourceSeed       Source = "seed"
	SourceNone       Source = "none"
)

// Run records one completed rotation. The unique boundary makes a second
// rotation for the same boundary fail inside its transaction.
type Run struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Boundary     time.Time    `gorm:"not null;uniqueIndex:ux_rotation_runs_boundary"`
	ArchivedID   snowflake.ID `gorm:"not null;default:0"`
	ActivatedID  snowflake.ID `gorm:"not null;default:0"`
	SubmissionID snowflake.ID `gorm:"not null;default:0"`
	Source       Source       `gorm:"type:varchar(16);not null"`
	CreatedAt    time.Time    `gorm:"not null"`
}

func (Run) TableName() string { return "rotation_runs" }

// Result describes what a Rotate call did.
type Result struct {
	Boundary     time.Time
	Skipped      bool
	ArchivedID   string
	ActivatedID  string
	SubmissionID string
	Source       Source
}
