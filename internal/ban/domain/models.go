package domain

import "time"

// Ban blocks a voter from voting, submitting and upvoting.
type Ban struct {
	VoterKey  string    `json:"voter_key" gorm:"type:varchar(128);primaryKey"`
	Reason    string    `json:"reason" gorm:"type:text;not null;default:''"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Ban) TableName() string { return "bans" }
