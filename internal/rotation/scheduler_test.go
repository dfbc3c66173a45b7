package rotation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/worldpulse/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/worldpulse/internal/ledger/service"
	obsmetrics "github.com/smallbiznis/worldpulse/internal/observability/metrics"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	questionrepository "github.com/smallbiznis/worldpulse/internal/question/repository"
	questionservice "github.com/smallbiznis/worldpulse/internal/question/service"
	queuedomain "github.com/smallbiznis/worldpulse/internal/queue/domain"
	queuerepository "github.com/smallbiznis/worldpulse/internal/queue/repository"
	"github.com/smallbiznis/worldpulse/internal/ratelimit"
	"github.com/smallbiznis/worldpulse/internal/tally"
	"github.com/smallbiznis/worldpulse/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var midnight = time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	cache     *cache.ReadThrough
	registry  *tally.Registry
	questions questiondomain.Service
	sched     *Scheduler
}

func newFixture(t *testing.T, locker *ratelimit.Locker) *fixture {
	t.Helper()
	db := testutil.OpenSQLite(t,
		&questiondomain.Question{},
		&queuedomain.Submission{},
		&queuedomain.Upvote{},
		&ledgerdomain.Vote{},
		&Run{},
	)
	node := testutil.Node(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(midnight.Add(2 * time.Second))
	rt := cache.NewReadThrough(cache.NewMemoryStore(), log, nil)
	registry := tally.NewRegistry(tally.RegistryParams{Store: tally.NewMemoryStore(), Clock: clk, Log: log})
	ledger := ledgerservice.New(ledgerservice.Params{DB: db, Log: log, GenID: node, Repo: ledgerrepository.Provide()})

	sched, err := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Questions:   questionrepository.Provide(),
		Submissions: queuerepository.Provide(),
		Cache:       rt,
		Registry:    registry,
		Locker:      locker,
	})
	require.NoError(t, err)

	questions := questionservice.New(questionservice.Params{
		DB: db, Log: log, GenID: node, Repo: questionrepository.Provide(),
		Ledger: ledger, Cache: rt, Clock: clk, Registry: registry,
	})
	return &fixture{db: db, node: node, clock: clk, cache: rt, registry: registry, questions: questions, sched: sched}
}

func (f *fixture) submission(t *testing.T, text string, upvotes int64, at time.Time, options ...string) *queuedomain.Submission {
	t.Helper()
	sub := &queuedomain.Submission{
		ID:             f.node.Generate(),
		Text:           text,
		Options:        options,
		SubmittedAt:    at,
		SubmittedByKey: "author-" + text,
		Upvotes:        upvotes,
		Status:         queuedomain.StatusPending,
	}
	require.NoError(t, f.db.Create(sub).Error)
	return sub
}

func (f *fixture) seed(t *testing.T, text string) *questiondomain.Response {
	t.Helper()
	q, err := f.questions.Create(context.Background(), questiondomain.CreateRequest{Text: text, Options: []string{"Yes", "No"}})
	require.NoError(t, err)
	return q
}

func (f *fixture) status(t *testing.T, table string, id string) string {
	t.Helper()
	var status string
	require.NoError(t, f.db.Raw("SELECT status FROM "+table+" WHERE id = ?", id).Scan(&status).Error)
	return status
}

func (f *fixture) activeCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&questiondomain.Question{}).Where("status = ?", questiondomain.StatusActive).Count(&n).Error)
	return n
}

func TestRotatePromotesMostUpvotedSubmission(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	s := f.submission(t, "Tea or coffee?", 5, midnight.Add(-3*time.Hour), "Tea", "Coffee")
	tsub := f.submission(t, "Beach or mountains?", 3, midnight.Add(-5*time.Hour), "Beach", "Mountains")
	p := f.seed(t, "Pineapple on pizza?")

	res, err := f.sched.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceSubmission, res.Source)
	assert.Equal(t, s.ID.String(), res.SubmissionID)
	assert.Empty(t, res.ArchivedID)

	current, err := f.questions.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.ActivatedID, current.ID)
	assert.Equal(t, "Tea or coffee?", current.Text)
	require.Len(t, current.Options, 2)
	assert.Equal(t, "Coffee", current.Options[1].Text)
	assert.Equal(t, questiondomain.Palette[1], current.Options[1].Color)
	require.NotNil(t, current.ActiveTo)
	assert.True(t, current.ActiveTo.Equal(midnight.Add(24*time.Hour)))

	assert.Equal(t, string(queuedomain.StatusApproved), f.status(t, "submissions", s.ID.String()))
	assert.Equal(t, string(queuedomain.StatusPending), f.status(t, "submissions", tsub.ID.String()))
	assert.Equal(t, string(questiondomain.StatusPending), f.status(t, "questions", p.ID))
}

func TestRotateIsIdempotentPerBoundary(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.submission(t, "Tea or coffee?", 5, midnight.Add(-3*time.Hour), "Tea", "Coffee")
	f.submission(t, "Beach or mountains?", 3, midnight.Add(-5*time.Hour), "Beach", "Mountains")

	first, err := f.sched.Rotate(ctx)
	require.NoError(t, err)
	require.False(t, first.Skipped)

	f.clock.Advance(time.Second)
	second, err := f.sched.Rotate(ctx)
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	assert.Equal(t, int64(1), f.activeCount(t))
	var approved int64
	require.NoError(t, f.db.Model(&queuedomain.Submission{}).Where("status = ?", queuedomain.StatusApproved).Count(&approved).Error)
	assert.Equal(t, int64(1), approved)
	var runs int64
	require.NoError(t, f.db.Model(&Run{}).Count(&runs).Error)
	assert.Equal(t, int64(1), runs)
}

func TestConcurrentRotationsPromoteOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.submission(t, "Tea or coffee?", 5, midnight.Add(-3*time.Hour), "Tea", "Coffee")
	f.seed(t, "Is water wet?")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sched.Rotate(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), f.activeCount(t))
	var questions int64
	require.NoError(t, f.db.Model(&questiondomain.Question{}).Count(&questions).Error)
	assert.Equal(t, int64(2), questions)
}

func TestRotateFallsBackToOldestSeed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.clock.Set(midnight.Add(-2 * time.Hour))
	older := f.seed(t, "Cats or dogs?")
	f.clock.Set(midnight.Add(-time.Hour))
	f.seed(t, "Is a hot dog a sandwich?")
	f.clock.Set(midnight.Add(time.Minute))

	res, err := f.sched.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceSeed, res.Source)
	assert.Equal(t, older.ID, res.ActivatedID)
	assert.Empty(t, res.SubmissionID)
}

func TestRotateSkipsMalformedSubmission(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bad := f.submission(t, "Only one choice?", 9, midnight.Add(-time.Hour), "Yes")
	seed := f.seed(t, "Morning person or night owl?")

	res, err := f.sched.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, seed.ID, res.ActivatedID)
	assert.Equal(t, string(queuedomain.StatusRejected), f.status(t, "submissions", bad.ID.String()))
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

func (r *recordingSubscriber) last() tally.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[len(r.messages)-1]
}

func TestNextBoundaryArchivesAndNotifiesSubscribers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.seed(t, "Cats or dogs?")
	f.seed(t, "Is water wet?")
	first, err := f.sched.Rotate(ctx)
	require.NoError(t, err)

	sub := &recordingSubscriber{}
	_, err = f.registry.Aggregator(first.ActivatedID).Subscribe(ctx, sub)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	second, err := f.sched.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ActivatedID, second.ArchivedID)
	assert.NotEmpty(t, second.ActivatedID)
	assert.Equal(t, string(questiondomain.StatusArchived), f.status(t, "questions", first.ActivatedID))
	assert.Equal(t, int64(1), f.activeCount(t))

	msg := sub.last()
	assert.Equal(t, tally.MessageQuestionChange, msg.Type)
	change, ok := msg.Payload.(tally.QuestionChange)
	require.True(t, ok)
	assert.Equal(t, second.ActivatedID, change.NextQuestionID)
}

func TestRotateWithNothingQueuedLeavesNoActiveQuestion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.seed(t, "Cats or dogs?")
	first, err := f.sched.Rotate(ctx)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	res, err := f.sched.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceNone, res.Source)
	assert.Equal(t, first.ActivatedID, res.ArchivedID)
	assert.Equal(t, int64(0), f.activeCount(t))

	_, err = f.questions.Current(ctx)
	assert.ErrorIs(t, err, questiondomain.ErrNoActiveQuestion)
}

func TestRotateSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, ratelimit.NewLocker(client))
	ctx := context.Background()
	f.seed(t, "Cats or dogs?")

	require.NoError(t, mr.Set("worldpulse:rotation:"+midnight.Format("2006-01-02"), "other-process"))
	_, err := f.sched.Rotate(ctx)
	assert.ErrorIs(t, err, obsmetrics.ErrLockContended)
	assert.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, int64(0), f.activeCount(t))

	mr.Del("worldpulse:rotation:" + midnight.Format("2006-01-02"))
	res, err := f.sched.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceSeed, res.Source)
	assert.False(t, mr.Exists("worldpulse:rotation:"+midnight.Format("2006-01-02")))
}

func TestRunForeverCatchesUpAndRotatesAtBoundaries(t *testing.T) {
	f := newFixture(t, nil)
	for _, text := range []string{"Cats or dogs?", "Is water wet?", "Toilet paper: over or under?"} {
		f.seed(t, text)
	}
	f.clock.Set(midnight.Add(9 * time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeps := 0
	f.sched.sleep = func(ctx context.Context, d time.Duration) bool {
		sleeps++
		if sleeps > 2 {
			cancel()
			return false
		}
		f.clock.Advance(d)
		return true
	}
	f.sched.RunForever(ctx)

	var runs []Run
	require.NoError(t, f.db.Order("boundary").Find(&runs).Error)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].Boundary.Equal(midnight))
	assert.True(t, runs[1].Boundary.Equal(midnight.Add(24*time.Hour)))
	assert.True(t, runs[2].Boundary.Equal(midnight.Add(48*time.Hour)))
	assert.Equal(t, int64(1), f.activeCount(t))
}

func TestRunForeverSkipsCatchUpWhenDisabled(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "Cats or dogs?")
	f.clock.Set(midnight.Add(9 * time.Hour))
	f.sched.cfg.SkipCatchUp = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sched.sleep = func(ctx context.Context, d time.Duration) bool {
		cancel()
		return false
	}
	f.sched.RunForever(ctx)

	var runs int64
	require.NoError(t, f.db.Model(&Run{}).Count(&runs).Error)
	assert.Zero(t, runs)
	assert.Equal(t, int64(0), f.activeCount(t))
}
