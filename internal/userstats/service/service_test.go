package service

import (
	"context"
	"testing"
	"time"

	achievementdomain "github.com/smallbiznis/worldpulse/internal/achievement/domain"
	achievementservice "github.com/smallbiznis/worldpulse/internal/achievement/service"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/worldpulse/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/worldpulse/internal/ledger/service"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	"github.com/smallbiznis/worldpulse/internal/testutil"
	userstatsdomain "github.com/smallbiznis/worldpulse/internal/userstats/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 8, 20, 15, 0, 0, 0, time.UTC)

func TestStreakFrom(t *testing.T) {
	today := clock.StartOfDay(now)
	at := func(daysAgo int, hour int) ledgerdomain.HistoryEntry {
		return ledgerdomain.HistoryEntry{VotedAt: today.AddDate(0, 0, -daysAgo).Add(time.Duration(hour) * time.Hour)}
	}

	tests := []struct {
		name    string
		history []ledgerdomain.HistoryEntry
		want    int
	}{
		{name: "empty", want: 0},
		{name: "today only", history: []ledgerdomain.HistoryEntry{at(0, 9)}, want: 1},
		{name: "three days", history: []ledgerdomain.HistoryEntry{at(0, 9), at(1, 9), at(2, 9)}, want: 3},
		{name: "two votes same day", history: []ledgerdomain.HistoryEntry{at(0, 10), at(0, 9), at(1, 9)}, want: 2},
		{name: "gap breaks", history: []ledgerdomain.HistoryEntry{at(0, 9), at(2, 9), at(3, 9)}, want: 1},
		{name: "not voted today", history: []ledgerdomain.HistoryEntry{at(1, 9), at(2, 9)}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, streakFrom(tt.history, today))
		})
	}
}

func TestGetCombinesLedgerAndAchievements(t *testing.T) {
	db := testutil.OpenSQLite(t, &questiondomain.Question{}, &ledgerdomain.Vote{}, &achievementdomain.Achievement{})
	node := testutil.Node(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(now)
	ledger := ledgerservice.New(ledgerservice.Params{DB: db, Log: log, GenID: node, Repo: ledgerrepository.Provide()})
	engine := achievementservice.New(achievementservice.Params{DB: db, Log: log, GenID: node, Ledger: ledger, Clock: clk})
	svc := New(Params{
		Log:          log,
		Ledger:       ledger,
		Achievements: engine,
		Cache:        cache.NewReadThrough(cache.NewMemoryStore(), log, nil),
		Clock:        clk,
	})
	ctx := context.Background()

	empty, err := svc.Get(ctx, "voter-new")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Streak)
	assert.Equal(t, 0, empty.TotalVotes)
	assert.Nil(t, empty.LastVotedAt)

	for daysAgo := 2; daysAgo >= 0; daysAgo-- {
		start := clock.StartOfDay(now).AddDate(0, 0, -daysAgo)
		end := start.Add(24 * time.Hour)
		q := &questiondomain.Question{
			ID:         node.Generate(),
			Text:       "Cats or dogs?",
			Options:    questiondomain.BuildOptions(node, []string{"Cats", "Dogs"}),
			Status:     questiondomain.StatusArchived,
			ActiveFrom: &start,
			ActiveTo:   &end,
			CreatedAt:  start,
		}
		require.NoError(t, db.Create(q).Error)
		votedAt := start.Add(8 * time.Hour)
		_, err := ledger.Append(ctx, ledgerdomain.AppendRequest{
			QuestionID: q.ID, OptionID: q.Options[0].ID, CountryCode: "US", VoterKey: "voter-a", VotedAt: votedAt,
		})
		require.NoError(t, err)
		_, err = engine.Evaluate(ctx, achievementdomain.EvaluateRequest{
			VoterKey: "voter-a", OptionID: q.Options[0].ID, VotedAt: votedAt, ActiveFrom: start, ActiveTo: end,
		})
		require.NoError(t, err)
	}

	stats, err := svc.Get(ctx, "voter-a")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Streak)
	assert.Equal(t, 3, stats.TotalVotes)
	require.NotNil(t, stats.LastVotedAt)
	assert.True(t, stats.LastVotedAt.Equal(clock.StartOfDay(now).Add(8*time.Hour)))
	require.Len(t, stats.Achievements, 1)
	assert.Equal(t, "First Vote", stats.Achievements[0].Name)

	_, err = svc.Get(ctx, " ")
	assert.ErrorIs(t, err, userstatsdomain.ErrInvalidVoter)
}
