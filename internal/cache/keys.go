package cache

import "time"

const (
	CurrentQuestionKey = "current-question"

	MinWindowTTL = 60 * time.Second
	MaxWindowTTL = 24 * time.Hour

	TallyTTL     = 60 * time.Second
	UserStatsTTL = 5 * time.Minute
	BanTTL       = 5 * time.Minute
)

func VotesKey(questionID string) string {
	return "votes:" + questionID
}

func VotedKey(questionID, voterKey string) string {
	return "voted:" + questionID + ":" + voterKey
}

func UserStatsKey(voterKey string) string {
	return "user-stats:" + voterKey
}

func BanKey(voterKey string) string {
	return "ban:" + voterKey
}

// WindowTTL is the time left until activeTo, clamped to [MinWindowTTL, MaxWindowTTL].
func WindowTTL(now, activeTo time.Time) time.Duration {
	remaining := activeTo.Sub(now)
	switch {
	case remaining < MinWindowTTL:
		return MinWindowTTL
	case remaining > MaxWindowTTL:
		return MaxWindowTTL
	default:
		return remaining
	}
}
