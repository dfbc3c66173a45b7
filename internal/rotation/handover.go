package rotation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	"github.com/smallbiznis/worldpulse/internal/tally"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// handoverAttempts bounds how long a follower polls for the next question
// after a boundary before giving up until the next one.
const handoverAttempts = 12

type HandoverParams struct {
	fx.In

	Log       *zap.Logger
	Questions questiondomain.Service
	Registry  *tally.Registry
	Cache     *cache.ReadThrough
	Clock     clock.Clock
	Config    Config `optional:"true"`
}

// Handover closes live aggregates in processes that serve votes but do not
// run the rotation themselves. After each boundary it polls for the newly
// active question and evicts the previous one, which sends question_change
// to its subscribers.
type Handover struct {
	log       *zap.Logger
	questions questiondomain.Service
	registry  *tally.Registry
	cache     *cache.ReadThrough
	clock     clock.Clock
	cfg       Config
	sleep     func(ctx context.Context, d time.Duration) bool

	mu   sync.Mutex
	last string
}

func NewHandover(p HandoverParams) *Handover {
	return &Handover{
		log:       p.Log.Named("rotation.handover"),
		questions: p.Questions,
		registry:  p.Registry,
		cache:     p.Cache,
		clock:     p.Clock,
		cfg:       p.Config.withDefaults(),
		sleep:     sleepContext,
	}
}

// Check compares the open question with the last one seen and evicts the
// old aggregate when it changed. It reports whether a new question is open.
func (h *Handover) Check(ctx context.Context) (bool, error) {
	current := ""
	resp, err := h.questions.Current(ctx)
	switch {
	case err == nil:
		current = resp.ID
	case !errors.Is(err, questiondomain.ErrNoActiveQuestion):
		return false, err
	}

	h.mu.Lock()
	previous := h.last
	h.last = current
	h.mu.Unlock()

	if previous != "" && previous != current {
		h.registry.Evict(previous, current)
		h.log.Info("rotation.handover", zap.String("previous_id", previous), zap.String("current_id", current))
	}
	return current != "" && current != previous, nil
}

func (h *Handover) RunForever(ctx context.Context) {
	if _, err := h.Check(ctx); err != nil {
		h.log.Warn("rotation.handover.check_failed", zap.Error(err))
	}
	for {
		next := clock.NextBoundary(h.clock.Now())
		if !h.sleep(ctx, next.Sub(h.clock.Now())) {
			return
		}
		h.cache.Invalidate(ctx, cache.CurrentQuestionKey)
		for attempt := 0; attempt < handoverAttempts; attempt++ {
			if !h.sleep(ctx, h.cfg.HandoverDelay) {
				return
			}
			changed, err := h.Check(ctx)
			if err != nil {
				h.log.Warn("rotation.handover.check_failed", zap.Error(err))
				continue
			}
			if changed {
				break
			}
		}
	}
}
