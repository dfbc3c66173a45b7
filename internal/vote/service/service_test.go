package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	achievementdomain "github.com/smallbiznis/worldpulse/internal/achievement/domain"
	achievementservice "github.com/smallbiznis/worldpulse/internal/achievement/service"
	bandomain "github.com/smallbiznis/worldpulse/internal/ban/domain"
	banservice "github.com/smallbiznis/worldpulse/internal/ban/service"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/worldpulse/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/worldpulse/internal/ledger/service"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	questionrepository "github.com/smallbiznis/worldpulse/internal/question/repository"
	questionservice "github.com/smallbiznis/worldpulse/internal/question/service"
	"github.com/smallbiznis/worldpulse/internal/tally"
	"github.com/smallbiznis/worldpulse/internal/testutil"
	votedomain "github.com/smallbiznis/worldpulse/internal/vote/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var morning = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc       votedomain.Service
	ledger    ledgerdomain.Service
	questions questiondomain.Service
	bans      bandomain.Service
	clock     *clock.FakeClock
	params    Params
}

func newFixture(t *testing.T, store tally.StateStore) *fixture {
	t.Helper()
	db := testutil.OpenSQLite(t,
		&questiondomain.Question{},
		&ledgerdomain.Vote{},
		&bandomain.Ban{},
		&achievementdomain.Achievement{},
	)
	node := testutil.Node(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(morning)
	rt := cache.NewReadThrough(cache.NewMemoryStore(), log, nil)

	registry := tally.NewRegistry(tally.RegistryParams{Store: store, Clock: clk, Log: log})
	ledger := ledgerservice.New(ledgerservice.Params{DB: db, Log: log, GenID: node, Repo: ledgerrepository.Provide()})
	questions := questionservice.New(questionservice.Params{
		DB: db, Log: log, GenID: node, Repo: questionrepository.Provide(),
		Ledger: ledger, Cache: rt, Clock: clk, Registry: registry,
	})
	bans := banservice.New(banservice.Params{DB: db, Log: log, Cache: rt, Clock: clk})
	engine := achievementservice.New(achievementservice.Params{DB: db, Log: log, GenID: node, Ledger: ledger, Clock: clk})

	params := Params{
		Log:          log,
		Ledger:       ledger,
		Questions:    questions,
		Bans:         bans,
		Achievements: engine,
		Registry:     registry,
		Cache:        rt,
		Clock:        clk,
	}
	return &fixture{svc: New(params), ledger: ledger, questions: questions, bans: bans, clock: clk, params: params}
}

func (f *fixture) activeQuestion(t *testing.T) *questiondomain.Response {
	t.Helper()
	ctx := context.Background()
	q, err := f.questions.Create(ctx, questiondomain.CreateRequest{Text: "Cats or dogs?", Options: []string{"Cats", "Dogs"}})
	require.NoError(t, err)
	active, err := f.questions.Activate(ctx, q.ID)
	require.NoError(t, err)
	return active
}

func TestSubmitCountsVoteAndGrantsOpeningAchievements(t *testing.T) {
	f := newFixture(t, tally.NewMemoryStore())
	ctx := context.Background()
	q := f.activeQuestion(t)

	resp, err := f.svc.Submit(ctx, votedomain.SubmitRequest{
		QuestionID: q.ID, OptionID: q.Options[0].ID, VoterKey: "voter-a", CountryCode: "us",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Votes.TotalVotes)
	assert.Equal(t, int64(1), resp.Votes.Count(q.Options[0].ID))
	require.Len(t, resp.Votes.ByCountry, 1)
	assert.Equal(t, "US", resp.Votes.ByCountry[0].CountryCode)
	// the question opened at this instant, so the first vote is also early
	names := make([]string, 0, len(resp.NewAchievements))
	for _, a := range resp.NewAchievements {
		names = append(names, a.Name)
	}
	assert.ElementsMatch(t, []string{"First Vote", "Early Bird"}, names)

	check, err := f.svc.HasVoted(ctx, q.ID, "voter-a")
	require.NoError(t, err)
	assert.True(t, check.HasVoted)
	assert.Equal(t, q.Options[0].ID, check.OptionID)
}

func TestSubmitDefaultsUnknownCountry(t *testing.T) {
	f := newFixture(t, tally.NewMemoryStore())
	q := f.activeQuestion(t)

	resp, err := f.svc.Submit(context.Background(), votedomain.SubmitRequest{
		QuestionID: q.ID, OptionID: q.Options[1].ID, VoterKey: "voter-a",
	})
	require.NoError(t, err)
	require.Len(t, resp.Votes.ByCountry, 1)
	assert.Equal(t, tally.UnknownCountry, resp.Votes.ByCountry[0].CountryCode)
}

func TestConcurrentDuplicateVotesCountOnce(t *testing.T) {
	f := newFixture(t, tally.NewMemoryStore())
	ctx := context.Background()
	q := f.activeQuestion(t)

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		accepted  int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(ctx, votedomain.SubmitRequest{
				QuestionID: q.ID, OptionID: q.Options[0].ID, VoterKey: "voter-a", CountryCode: "FR",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, votedomain.ErrAlreadyVoted):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, attempts-1, conflicts)

	id, err := questiondomain.ParseID(q.ID)
	require.NoError(t, err)
	rows, err := f.ledger.ListByQuestion(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	votes, err := f.svc.Tally(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), votes.TotalVotes)
}

func TestVotedCheckIsNeverNegativelyCached(t *testing.T) {
	f := newFixture(t, tally.NewMemoryStore())
	ctx := context.Background()
	q := f.activeQuestion(t)

	check, err := f.svc.HasVoted(ctx, q.ID, "voter-a")
	require.NoError(t, err)
	assert.False(t, check.HasVoted)

	id, err := questiondomain.ParseID(q.ID)
	require.NoError(t, err)
	_, err = f.ledger.Append(ctx, ledgerdomain.AppendRequest{
		QuestionID: id, OptionID: q.Options[1].ID, CountryCode: "DE", VoterKey: "voter-a", VotedAt: morning,
	})
	require.NoError(t, err)

	check, err = f.svc.HasVoted(ctx, q.ID, "voter-a")
	require.NoError(t, err)
	assert.True(t, check.HasVoted)

	_, err = f.svc.Submit(ctx, votedomain.SubmitRequest{
		QuestionID: q.ID, OptionID: q.Options[0].ID, VoterKey: "voter-a", CountryCode: "DE",
	})
	assert.ErrorIs(t, err, votedomain.ErrAlreadyVoted)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, tally.NewMemoryStore())
	ctx := context.Background()
	q := f.activeQuestion(t)
	pending, err := f.questions.Create(ctx, questiondomain.CreateRequest{Text: "Is water wet?", Options: []string{"Yes", "No"}})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  votedomain.SubmitRequest
		want error
	}{
		{name: "missing question", req: votedomain.SubmitRequest{OptionID: "x", VoterKey: "v"}, want: votedomain.ErrInvalidQuestion},
		{name: "malformed question", req: votedomain.SubmitRequest{QuestionID: "abc", OptionID: "x", VoterKey: "v"}, want: votedomain.ErrInvalidQuestion},
		{name: "missing option", req: votedomain.SubmitRequest{QuestionID: q.ID, VoterKey: "v"}, want: votedomain.ErrInvalidOption},
		{name: "missing voter", req: votedomain.SubmitRequest{QuestionID: q.ID, OptionID: q.Options[0].ID}, want: votedomain.ErrInvalidVoter},
		{name: "unknown question", req: votedomain.SubmitRequest{QuestionID: "42", OptionID: "x", VoterKey: "v"}, want: questiondomain.ErrNotFound},
		{name: "foreign option", req: votedomain.SubmitRequest{QuestionID: q.ID, OptionID: pending.Options[0].ID, VoterKey: "v"}, want: votedomain.ErrInvalidOption},
		{name: "pending question", req: votedomain.SubmitRequest{QuestionID: pending.ID, OptionID: pending.Options[0].ID, VoterKey: "v"}, want: votedomain.ErrQuestionNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubmitRejectsClosedWindow(t *testing.T) {
	f := newFixture(t, tally.NewMemoryStore())
	q := f.activeQuestion(t)
	f.clock.Set(clock.NextBoundary(morning).Add(time.Minute))

	_, err := f.svc.Submit(context.Background(), votedomain.SubmitRequest{
		QuestionID: q.ID, OptionID: q.Options[0].ID, VoterKey: "voter-a",
	})
	assert.ErrorIs(t, err, votedomain.ErrQuestionNotActive)
}

func TestSubmitRejectsBannedVoter(t *testing.T) {
	f := newFixture(t, tally.NewMemoryStore())
	ctx := context.Background()
	q := f.activeQuestion(t)
	_, err := f.bans.Ban(ctx, bandomain.BanRequest{VoterKey: "voter-a", Reason: "spam"})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, votedomain.SubmitRequest{
		QuestionID: q.ID, OptionID: q.Options[0].ID, VoterKey: "voter-a",
	})
	assert.ErrorIs(t, err, bandomain.ErrBanned)

	check, err := f.svc.HasVoted(ctx, q.ID, "voter-a")
	require.NoError(t, err)
	assert.False(t, check.HasVoted)
}

type failingGlobalStore struct {
	*tally.MemoryStore
}

func (failingGlobalStore) SaveGlobal(context.Context, string, tally.GlobalState) error {
	return errors.New("disk full")
}

func TestSubmitSucceedsWhenAggregateFails(t *testing.T) {
	f := newFixture(t, failingGlobalStore{MemoryStore: tally.NewMemoryStore()})
	ctx := context.Background()
	q := f.activeQuestion(t)

	resp, err := f.svc.Submit(ctx, votedomain.SubmitRequest{
		QuestionID: q.ID, OptionID: q.Options[0].ID, VoterKey: "voter-a", CountryCode: "JP",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.Votes.TotalVotes)

	id, err := questiondomain.ParseID(q.ID)
	require.NoError(t, err)
	rows, err := f.ledger.ListByQuestion(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTallyInvalidatedByVote(t *testing.T) {
	f := newFixture(t, tally.NewMemoryStore())
	ctx := context.Background()
	q := f.activeQuestion(t)

	before, err := f.svc.Tally(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), before.TotalVotes)

	_, err = f.svc.Submit(ctx, votedomain.SubmitRequest{
		QuestionID: q.ID, OptionID: q.Options[1].ID, VoterKey: "voter-a", CountryCode: "BR",
	})
	require.NoError(t, err)

	after, err := f.svc.Tally(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.TotalVotes)

	_, err = f.svc.Tally(ctx, "42")
	assert.ErrorIs(t, err, questiondomain.ErrNotFound)
}

type partialEngine struct {
	achievementdomain.Engine
}

func (partialEngine) Evaluate(context.Context, achievementdomain.EvaluateRequest) ([]achievementdomain.Response, error) {
	return []achievementdomain.Response{{Name: "First Vote"}}, errors.New("grant early_bird: disk full")
}

func TestSubmitReportsNoAchievementsWhenEvaluationFails(t *testing.T) {
	f := newFixture(t, tally.NewMemoryStore())
	q := f.activeQuestion(t)

	params := f.params
	params.Achievements = partialEngine{}
	svc := New(params)

	resp, err := svc.Submit(context.Background(), votedomain.SubmitRequest{
		QuestionID: q.ID, OptionID: q.Options[0].ID, VoterKey: "voter-a", CountryCode: "US",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Votes.TotalVotes)
	assert.NotNil(t, resp.NewAchievements)
	assert.Empty(t, resp.NewAchievements)
}
