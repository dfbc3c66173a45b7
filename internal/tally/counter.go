package tally

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/worldpulse/internal/observability/metrics"
)

// CounterActor owns the tally of one (question, country). All operations are
// serialized by mu; the first one hydrates state from the store.
type CounterActor struct {
	questionID  string
	countryCode string
	store       StateStore
	metrics     *metrics.EngineMetrics

	mu     sync.Mutex
	loaded bool
	state  CounterState
}

func newCounterActor(questionID, countryCode string, store StateStore, m *metrics.EngineMetrics) *CounterActor {
	return &CounterActor{
		questionID:  questionID,
		countryCode: countryCode,
		store:       store,
		metrics:     m,
	}
}

func (a *CounterActor) QuestionID() string  { return a.questionID }
func (a *CounterActor) CountryCode() string { return a.countryCode }

// RecordVote counts one vote for optionID and persists before returning.
// On a failed save the increment is undone.
func (a *CounterActor) RecordVote(ctx context.Context, optionID string) (CounterState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.hydrateLocked(ctx); err != nil {
		return CounterState{}, err
	}

	a.state.add(optionID, 1)
	if err := a.store.SaveCounter(ctx, a.questionID, a.countryCode, a.state); err != nil {
		a.state.add(optionID, -1)
		return CounterState{}, fmt.Errorf("save counter %s/%s: %w", a.questionID, a.countryCode, err)
	}
	return a.state.Clone(), nil
}

func (a *CounterActor) Read(ctx context.Context) (CounterState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.hydrateLocked(ctx); err != nil {
		return CounterState{}, err
	}
	return a.state.Clone(), nil
}

// reset replaces the in-memory state after a reconcile has persisted it.
func (a *CounterActor) reset(state CounterState) {
	a.mu.Lock()
	a.state = state.Clone()
	a.loaded = true
	a.mu.Unlock()
}

func (a *CounterActor) hydrateLocked(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	state, err := a.store.LoadCounter(ctx, a.questionID, a.countryCode)
	a.metrics.IncHydration("counter", err)
	if err != nil {
		return fmt.Errorf("load counter %s/%s: %w", a.questionID, a.countryCode, err)
	}
	if state.Counts == nil {
		state.Counts = map[string]int64{}
	}
	a.state = state
	a.loaded = true
	return nil
}
