package tally

import (
	"sync"

	"github.com/smallbiznis/worldpulse/internal/clock"
	"github.com/smallbiznis/worldpulse/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type counterKey struct {
	questionID  string
	countryCode string
}

// Registry lazily creates one actor per key and hands out the same instance
// to every caller until the question is evicted.
type Registry struct {
	store   StateStore
	clock   clock.Clock
	metrics *metrics.EngineMetrics
	log     *zap.Logger

	mu          sync.RWMutex
	counters    map[counterKey]*CounterActor
	aggregators map[string]*Aggregator
}

type RegistryParams struct {
	fx.In

	Store   StateStore
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *metrics.EngineMetrics `optional:"true"`
}

func NewRegistry(p RegistryParams) *Registry {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		store:       p.Store,
		clock:       p.Clock,
		metrics:     p.Metrics,
		log:         log.Named("tally"),
		counters:    map[counterKey]*CounterActor{},
		aggregators: map[string]*Aggregator{},
	}
}

func (r *Registry) Counter(questionID, countryCode string) *CounterActor {
	key := counterKey{questionID: questionID, countryCode: countryCode}

	r.mu.RLock()
	actor := r.counters[key]
	r.mu.RUnlock()
	if actor != nil {
		return actor
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	actor = r.counters[key]
	if actor == nil {
		actor = newCounterActor(questionID, countryCode, r.store, r.metrics)
		r.counters[key] = actor
	}
	return actor
}

func (r *Registry) Aggregator(questionID string) *Aggregator {
	r.mu.RLock()
	agg := r.aggregators[questionID]
	r.mu.RUnlock()
	if agg != nil {
		return agg
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	agg = r.aggregators[questionID]
	if agg == nil {
		agg = newAggregator(questionID, r.store, r.clock, r.metrics, r.log)
		r.aggregators[questionID] = agg
	}
	return agg
}

// Evict closes the question's aggregator, notifying subscribers of
// nextQuestionID, and forgets its actors. Persisted state is kept.
func (r *Registry) Evict(questionID, nextQuestionID string) {
	r.mu.Lock()
	agg := r.aggregators[questionID]
	delete(r.aggregators, questionID)
	for key := range r.counters {
		if key.questionID == questionID {
			delete(r.counters, key)
		}
	}
	r.mu.Unlock()

	if agg != nil {
		agg.Close(nextQuestionID)
	}
}

// Subscribers counts live subscribers across all aggregators.
func (r *Registry) Subscribers() int {
	r.mu.RLock()
	aggs := make([]*Aggregator, 0, len(r.aggregators))
	for _, agg := range r.aggregators {
		aggs = append(aggs, agg)
	}
	r.mu.RUnlock()

	total := 0
	for _, agg := range aggs {
		total += agg.SubscriberCount()
	}
	return total
}

// reload pushes rebuilt state into any live actors of questionID.
func (r *Registry) reload(questionID string, counters map[string]CounterState, global GlobalState) {
	r.mu.RLock()
	var live []*CounterActor
	for key, actor := range r.counters {
		if key.questionID == questionID {
			live = append(live, actor)
		}
	}
	agg := r.aggregators[questionID]
	r.mu.RUnlock()

	for _, actor := range live {
		state, ok := counters[actor.countryCode]
		if !ok {
			state = NewCounterState()
		}
		actor.reset(state)
	}
	if agg != nil {
		agg.reset(global)
	}
}
