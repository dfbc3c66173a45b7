package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	obsmetrics "github.com/smallbiznis/worldpulse/internal/observability/metrics"
	"github.com/smallbiznis/worldpulse/internal/observability/tracing"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	queuedomain "github.com/smallbiznis/worldpulse/internal/queue/domain"
	"github.com/smallbiznis/worldpulse/internal/ratelimit"
	"github.com/smallbiznis/worldpulse/internal/rotation/guard"
	"github.com/smallbiznis/worldpulse/internal/tally"
	"github.com/smallbiznis/worldpulse/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobRotate = "rotate"
	// candidateScan bounds how many queued submissions one rotation inspects.
	candidateScan = 10
)

var (
	ErrInvalidConfig  = errors.New("rotation_invalid_config")
	errAlreadyRotated = errors.New("rotation_already_ran")
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Questions   questiondomain.Repository
	Submissions queuedomain.Repository
	Cache       *cache.ReadThrough
	Registry    *tally.Registry             `optional:"true"`
	Locker      *ratelimit.Locker           `optional:"true"`
	Metrics     *obsmetrics.RotationMetrics `optional:"true"`
	Config      Config                      `optional:"true"`
}

// Scheduler swaps the active question at every daily boundary.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	questions   questiondomain.Repository
	submissions queuedomain.Repository
	cache       *cache.ReadThrough
	registry    *tally.Registry
	locker      *ratelimit.Locker
	metrics     *obsmetrics.RotationMetrics
	sleep       func(ctx context.Context, d time.Duration) bool
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Questions == nil || p.Submissions == nil || p.Cache == nil {
		return nil, ErrInvalidConfig
	}
	m := p.Metrics
	if m == nil {
		m = obsmetrics.Rotation()
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("rotation").With(zap.String("component", "rotation")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		questions:   p.Questions,
		submissions: p.Submissions,
		cache:       p.Cache,
		registry:    p.Registry,
		locker:      p.Locker,
		metrics:     m,
		sleep:       sleepContext,
	}, nil
}

// Rotate archives the active question and activates the next one for the
// boundary that most recently passed. Calling it again for the same boundary
// changes nothing.
func (s *Scheduler) Rotate(ctx context.Context) (Result, error) {
	now := s.clock.Now().UTC()
	boundary := clock.StartOfDay(now)
	res := Result{Boundary: boundary}
	if err := guard.EnsureBoundaryReached(boundary, now); err != nil {
		return res, err
	}

	ctx, span := tracing.Start(ctx, "rotation.rotate", attribute.String("rotation.boundary", boundary.Format(time.RFC3339)))
	defer span.End()

	release, err := s.lock(ctx, boundary)
	if err != nil {
		return res, err
	}
	defer release()

	var (
		previous *questiondomain.Question
		recorded *Run
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run := &Run{
			ID:        s.genID.Generate(),
			Boundary:  boundary,
			Source:    SourceNone,
			CreatedAt: now,
		}
		recorded = run
		if err := tx.Create(run).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errAlreadyRotated
			}
			return fmt.Errorf("record rotation run: %w", err)
		}

		var err error
		previous, err = s.questions.FindActive(ctx, tx)
		if err != nil {
			return err
		}
		if previous != nil {
			if _, err := s.questions.ArchiveActive(ctx, tx); err != nil {
				return fmt.Errorf("archive active question: %w", err)
			}
			run.ArchivedID = previous.ID
		}

		next, sub, err := s.selectNext(ctx, tx, now)
		if err != nil {
			return err
		}
		if next == nil {
			return saveRun(tx, run)
		}

		ok, err := s.questions.Activate(ctx, tx, next.ID, now, clock.NextBoundary(now))
		if err != nil {
			return fmt.Errorf("activate question: %w", err)
		}
		if !ok {
			return fmt.Errorf("activate question %s: %w", next.ID, questiondomain.ErrNotPending)
		}
		run.ActivatedID = next.ID
		run.Source = SourceSeed
		if sub != nil {
			promoted, err := s.submissions.UpdateStatus(ctx, tx, sub.ID, queuedomain.StatusPending, queuedomain.StatusApproved)
			if err != nil {
				return fmt.Errorf("approve submission: %w", err)
			}
			if !promoted {
				return fmt.Errorf("approve submission %s: %w", sub.ID, guard.ErrSubmissionNotPending)
			}
			run.SubmissionID = sub.ID
			run.Source = SourceSubmission
		}

		return saveRun(tx, run)
	})
	if errors.Is(err, errAlreadyRotated) {
		res.Skipped = true
		s.metrics.IncOutcome(obsmetrics.RotationOutcomeAlreadyRotated)
		s.log.Info("rotation.skipped", zap.Time("boundary", boundary))
		return res, nil
	}
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "rotation failed")
		return res, err
	}

	s.cache.Invalidate(ctx, cache.CurrentQuestionKey)
	res.Source = recorded.Source
	res.ArchivedID = idString(recorded.ArchivedID)
	res.ActivatedID = idString(recorded.ActivatedID)
	res.SubmissionID = idString(recorded.SubmissionID)
	if previous != nil && s.registry != nil {
		s.registry.Evict(res.ArchivedID, res.ActivatedID)
	}
	return s.report(res)
}

func outcomeLabel(source Source) string {
	switch source {
	case SourceSubmission:
		return obsmetrics.RotationOutcomePromotedSubmission
	case SourceSeed:
		return obsmetrics.RotationOutcomeActivatedSeed
	default:
		return obsmetrics.RotationOutcomeEmpty
	}
}

func saveRun(tx *gorm.DB, run *Run) error {
	return tx.Model(run).Updates(map[string]any{
		"archived_id":   run.ArchivedID,
		"activated_id":  run.ActivatedID,
		"submission_id": run.SubmissionID,
		"source":        run.Source,
	}).Error
}

func (s *Scheduler) report(res Result) (Result, error) {
	s.metrics.IncOutcome(outcomeLabel(res.Source))
	if res.Source == SourceNone {
		s.log.Warn("rotation.no_question",
			zap.Time("boundary", res.Boundary),
			zap.String("archived_id", res.ArchivedID),
		)
		return res, nil
	}
	s.log.Info("rotation.completed",
		zap.Time("boundary", res.Boundary),
		zap.String("archived_id", res.ArchivedID),
		zap.String("activated_id", res.ActivatedID),
		zap.String("submission_id", res.SubmissionID),
		zap.String("source", string(res.Source)),
	)
	return res, nil
}

// selectNext materializes the most upvoted promotable submission, or falls
// back to the oldest pending question. Malformed submissions are rejected
// on the way.
func (s *Scheduler) selectNext(ctx context.Context, tx *gorm.DB, now time.Time) (*questiondomain.Question, *queuedomain.Submission, error) {
	candidates, err := s.submissions.ListPending(ctx, tx, candidateScan)
	if err != nil {
		return nil, nil, fmt.Errorf("list pending submissions: %w", err)
	}
	for i := range candidates {
		sub := &candidates[i]
		if err := guard.EnsureSubmissionPromotable(sub); err != nil {
			s.log.Warn("rotation.submission.skipped", zap.String("submission_id", sub.ID.String()), zap.Error(err))
			if _, err := s.submissions.UpdateStatus(ctx, tx, sub.ID, queuedomain.StatusPending, queuedomain.StatusRejected); err != nil {
				return nil, nil, fmt.Errorf("reject submission: %w", err)
			}
			continue
		}
		q := &questiondomain.Question{
			ID:        s.genID.Generate(),
			Text:      sub.Text,
			Options:   questiondomain.BuildOptions(s.genID, sub.Options),
			Status:    questiondomain.StatusPending,
			CreatedAt: now,
		}
		if err := s.questions.Insert(ctx, tx, q); err != nil {
			return nil, nil, fmt.Errorf("materialize submission: %w", err)
		}
		return q, sub, nil
	}

	q, err := s.questions.FindOldestPending(ctx, tx)
	if err != nil {
		return nil, nil, fmt.Errorf("find pending question: %w", err)
	}
	return q, nil, nil
}

// lock takes the boundary lease when redis is configured. The rotation_runs
// row still guards correctness without it.
func (s *Scheduler) lock(ctx context.Context, boundary time.Time) (func(), error) {
	if !s.locker.Enabled() {
		return func() {}, nil
	}
	key := ratelimit.BoundaryKey(s.cfg.LockKey, boundary)
	lease, err := s.locker.Acquire(ctx, key, s.cfg.LockTTL)
	if errors.Is(err, ratelimit.ErrLeaseHeld) {
		holder, _ := s.locker.Holder(ctx, key)
		s.log.Info("rotation.lock.held", zap.String("holder", holder))
		return nil, obsmetrics.ErrLockContended
	}
	if err != nil {
		return nil, fmt.Errorf("acquire rotation lock: %w", err)
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("rotation.lock.release_failed", zap.Error(err))
		}
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && !errors.Is(err, obsmetrics.ErrLockContended) {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, obsmetrics.ErrLockContended) {
		s.log.Info("rotation.job.lock_contended", zap.String("job", name))
		return nil
	}
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs one rotation as a tracked job.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, jobRotate, s.cfg.JobTimeout, func(ctx context.Context) error {
		res, err := s.Rotate(ctx)
		if run := jobRunFromContext(ctx); run != nil && err == nil && !res.Skipped {
			run.AddProcessed(1)
		}
		return err
	})
}

// RunForever rotates at every boundary until ctx is done. Unless SkipCatchUp
// is set, it first rotates when no question is open at startup, so a process
// that was down across a boundary does not wait a full day.
func (s *Scheduler) RunForever(ctx context.Context) {
	if !s.cfg.SkipCatchUp {
		open, err := s.questionOpen(ctx)
		switch {
		case err != nil:
			s.log.Warn("rotation.catch_up.check_failed", zap.Error(err))
		case !open:
			s.log.Info("rotation.catch_up")
			if err := s.RunOnce(ctx); err != nil {
				s.log.Warn("rotation run failed", zap.Error(err))
			}
		}
	}

	for {
		next := clock.NextBoundary(s.clock.Now())
		if !s.sleep(ctx, next.Sub(s.clock.Now())) {
			return
		}
		s.metrics.ObserveLoopLag(s.clock.Now().Sub(next))
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("rotation run failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) questionOpen(ctx context.Context) (bool, error) {
	q, err := s.questions.FindActive(ctx, s.db)
	if err != nil {
		return false, err
	}
	return q != nil && q.OpenAt(s.clock.Now()), nil
}

// sleepContext waits for d and reports false if ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
