package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Achievement is a badge granted to a voter. Each is granted at most once
// and never revoked.
type Achievement struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	VoterKey    string       `json:"-" gorm:"type:varchar(128);not null;uniqueIndex:ux_achievements_voter_name,priority:1"`
	Name        string       `json:"name" gorm:"type:varchar(64);not null;uniqueIndex:ux_achievements_voter_name,priority:2"`
	Description string       `json:"description" gorm:"type:text;not null"`
	UnlockedAt  time.Time    `json:"unlocked_at" gorm:"not null"`
}

func (Achievement) TableName() string { return "achievements" }

type Definition struct {
	Code        string
	Name        string
	Description string
}

var (
	FirstVote    = Definition{Code: "first_vote", Name: "First Vote", Description: "Cast your first vote on WorldPulse"}
	EarlyBird    = Definition{Code: "early_bird", Name: "Early Bird", Description: "Voted in the first hour of a question"}
	NightOwl     = Definition{Code: "night_owl", Name: "Night Owl", Description: "Voted in the final hour of a question"}
	WeekWarrior  = Definition{Code: "week_streak", Name: "Week Warrior", Description: "7-day voting streak"}
	GlobeTrotter = Definition{Code: "globe_trotter", Name: "Globe Trotter", Description: "Voted from 5+ different countries"}
	Contrarian   = Definition{Code: "contrarian", Name: "Contrarian", Description: "Voted with the <10% minority"}
	Mainstream   = Definition{Code: "mainstream", Name: "Mainstream", Description: "Voted with the majority 10 times"}
)

// Definitions lists every achievement in evaluation order.
var Definitions = []Definition{FirstVote, EarlyBird, NightOwl, WeekWarrior, GlobeTrotter, Contrarian, Mainstream}
