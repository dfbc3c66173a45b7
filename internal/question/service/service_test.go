package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/worldpulse/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/worldpulse/internal/ledger/service"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	"github.com/smallbiznis/worldpulse/internal/question/repository"
	"github.com/smallbiznis/worldpulse/internal/tally"
	"github.com/smallbiznis/worldpulse/internal/testutil"
	"github.com/smallbiznis/worldpulse/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var day1 = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc      questiondomain.Service
	clock    *clock.FakeClock
	ledger   ledgerdomain.Service
	registry *tally.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenSQLite(t, &questiondomain.Question{}, &ledgerdomain.Vote{})
	node := testutil.Node(t)
	clk := clock.NewFakeClock(day1)
	log := zap.NewNop()

	ledger := ledgerservice.New(ledgerservice.Params{DB: db, Log: log, GenID: node, Repo: ledgerrepository.Provide()})
	registry := tally.NewRegistry(tally.RegistryParams{Store: tally.NewMemoryStore(), Clock: clk, Log: log})
	svc := New(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     repository.Provide(),
		Ledger:   ledger,
		Cache:    cache.NewReadThrough(cache.NewMemoryStore(), log, nil),
		Clock:    clk,
		Registry: registry,
	})
	return &fixture{svc: svc, clock: clk, ledger: ledger, registry: registry}
}

func (f *fixture) create(t *testing.T, text string, options ...string) *questiondomain.Response {
	t.Helper()
	resp, err := f.svc.Create(context.Background(), questiondomain.CreateRequest{Text: text, Options: options})
	require.NoError(t, err)
	return resp
}

type recordingSubscriber struct {
	mu       sync.Mutex
	messages []tally.Message
}

func (r *recordingSubscriber) Send(msg tally.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func TestCreateValidatesAndAssignsOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, questiondomain.CreateRequest{Text: "  ", Options: []string{"a", "b"}})
	assert.ErrorIs(t, err, questiondomain.ErrInvalidText)

	_, err = f.svc.Create(ctx, questiondomain.CreateRequest{Text: "One?", Options: []string{"a"}})
	assert.ErrorIs(t, err, questiondomain.ErrInvalidOptions)

	_, err = f.svc.Create(ctx, questiondomain.CreateRequest{Text: "Five?", Options: []string{"a", "b", "c", "d", "e"}})
	assert.ErrorIs(t, err, questiondomain.ErrInvalidOptions)

	_, err = f.svc.Create(ctx, questiondomain.CreateRequest{Text: "Blank?", Options: []string{"a", " "}})
	assert.ErrorIs(t, err, questiondomain.ErrInvalidOptions)

	resp := f.create(t, "Cats or dogs?", "Cats", "Dogs", "Neither")
	assert.Equal(t, questiondomain.StatusPending, resp.Status)
	require.Len(t, resp.Options, 3)
	assert.Equal(t, "#3B82F6", resp.Options[0].Color)
	assert.Equal(t, "#EF4444", resp.Options[1].Color)
	assert.Equal(t, "#10B981", resp.Options[2].Color)
	assert.NotEqual(t, resp.Options[0].ID, resp.Options[1].ID)

	stored, err := f.svc.GetByID(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Options, stored.Options)
	assert.Equal(t, "Cats or dogs?", stored.Text)
}

func TestGetByIDErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetByID(context.Background(), "abc")
	assert.ErrorIs(t, err, questiondomain.ErrInvalidID)

	_, err = f.svc.GetByID(context.Background(), "12345")
	assert.ErrorIs(t, err, questiondomain.ErrNotFound)
}

func TestActivateAndCurrentWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Current(ctx)
	assert.ErrorIs(t, err, questiondomain.ErrNoActiveQuestion)

	q := f.create(t, "Is water wet?", "Yes", "No")
	active, err := f.svc.Activate(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, questiondomain.StatusActive, active.Status)
	assert.True(t, active.ActiveFrom.Equal(day1))
	assert.True(t, active.ActiveTo.Equal(clock.NextBoundary(day1)))

	current, err := f.svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, q.ID, current.ID)

	// Past the window the cached entry must not be served.
	f.clock.Set(clock.NextBoundary(day1).Add(time.Second))
	_, err = f.svc.Current(ctx)
	assert.ErrorIs(t, err, questiondomain.ErrNoActiveQuestion)
}

func TestActivateArchivesPreviousAndNotifiesSubscribers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, "Cats or dogs?", "Cats", "Dogs")
	second := f.create(t, "Is water wet?", "Yes", "No")

	_, err := f.svc.Activate(ctx, first.ID)
	require.NoError(t, err)

	sub := &recordingSubscriber{}
	_, err = f.registry.Aggregator(first.ID).Subscribe(ctx, sub)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.svc.Activate(ctx, second.ID)
	require.NoError(t, err)

	archived, err := f.svc.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, questiondomain.StatusArchived, archived.Status)

	current, err := f.svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	sub.mu.Lock()
	last := sub.messages[len(sub.messages)-1]
	sub.mu.Unlock()
	assert.Equal(t, tally.MessageQuestionChange, last.Type)
	assert.Equal(t, tally.QuestionChange{QuestionID: first.ID, NextQuestionID: second.ID}, last.Payload)

	_, err = f.svc.Activate(ctx, first.ID)
	assert.ErrorIs(t, err, questiondomain.ErrNotPending)
}

func TestArchiveActiveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q := f.create(t, "Is water wet?", "Yes", "No")
	_, err := f.svc.Activate(ctx, q.ID)
	require.NoError(t, err)

	n, err := f.svc.ArchiveActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.svc.ArchiveActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = f.svc.Current(ctx)
	assert.ErrorIs(t, err, questiondomain.ErrNoActiveQuestion)
}

func TestDeleteOnlyPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.create(t, "Cats or dogs?", "Cats", "Dogs")
	active := f.create(t, "Is water wet?", "Yes", "No")
	_, err := f.svc.Activate(ctx, active.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, active.ID), questiondomain.ErrNotPending)
	assert.ErrorIs(t, f.svc.Delete(ctx, "42"), questiondomain.ErrNotFound)
	require.NoError(t, f.svc.Delete(ctx, pending.ID))

	_, err = f.svc.GetByID(ctx, pending.ID)
	assert.ErrorIs(t, err, questiondomain.ErrNotFound)
}

func TestNextPendingIsOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, "Cats or dogs?", "Cats", "Dogs")
	f.create(t, "Is water wet?", "Yes", "No")

	next, err := f.svc.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.ID, next.ID.String())
}

func TestHistoryListsArchivedWithFinalCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older := f.create(t, "Cats or dogs?", "Cats", "Dogs")
	newer := f.create(t, "Is water wet?", "Yes", "No")

	_, err := f.svc.Activate(ctx, older.ID)
	require.NoError(t, err)
	olderID, err := questiondomain.ParseID(older.ID)
	require.NoError(t, err)
	for _, voter := range []string{"v1", "v2"} {
		_, err := f.ledger.Append(ctx, ledgerdomain.AppendRequest{
			QuestionID:  olderID,
			OptionID:    older.Options[1].ID,
			CountryCode: "US",
			VoterKey:    voter,
			VotedAt:     f.clock.Now(),
		})
		require.NoError(t, err)
	}

	f.clock.Set(clock.NextBoundary(day1))
	_, err = f.svc.Activate(ctx, newer.ID)
	require.NoError(t, err)
	f.clock.Set(clock.NextBoundary(f.clock.Now()))
	_, err = f.svc.ArchiveActive(ctx)
	require.NoError(t, err)

	page, err := f.svc.History(ctx, pagination.Pagination{PageSize: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, newer.ID, page.Items[0].Question.ID)
	assert.Equal(t, int64(0), page.Items[0].Votes.TotalVotes)
	assert.Len(t, page.Items[0].Votes.Options, 2)
	assert.True(t, page.PageInfo.HasMore)

	page, err = f.svc.History(ctx, pagination.Pagination{PageSize: 1, PageToken: page.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.PageInfo.HasMore)

	item := page.Items[0]
	assert.Equal(t, older.ID, item.Question.ID)
	assert.Equal(t, int64(2), item.Votes.TotalVotes)
	assert.Equal(t, []tally.OptionCount{
		{OptionID: older.Options[0].ID, Count: 0},
		{OptionID: older.Options[1].ID, Count: 2},
	}, item.Votes.Options)
	assert.Empty(t, item.Votes.ByCountry)
	assert.True(t, item.Votes.LastUpdated.Equal(clock.NextBoundary(day1)))

	_, err = f.svc.History(ctx, pagination.Pagination{PageToken: "not-a-token"})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}

func TestSeedIfEmptyRunsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reqs := []questiondomain.CreateRequest{
		{Text: "Cats or dogs?", Options: []string{"Cats", "Dogs"}},
		{Text: "Is water wet?", Options: []string{"Yes", "No"}},
	}

	n, err := f.svc.SeedIfEmpty(ctx, reqs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.SeedIfEmpty(ctx, reqs)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
