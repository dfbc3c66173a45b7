package tally

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smallbiznis/worldpulse/internal/clock"
	"github.com/smallbiznis/worldpulse/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	MessageVoteUpdate     = "vote_update"
	MessageQuestionChange = "question_change"
)

var ErrAggregatorClosed = errors.New("aggregator_closed")

// Message is the realtime envelope pushed to subscribers.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type QuestionChange struct {
	QuestionID     string `json:"questionId"`
	NextQuestionID string `json:"nextQuestionId,omitempty"`
}

// Subscriber receives pushes. Send must not block; an error removes the
// subscriber from its aggregator.
type Subscriber interface {
	Send(msg Message) error
}

// Aggregator owns the global tally of one question and its live subscribers.
type Aggregator struct {
	questionID string
	store      StateStore
	clock      clock.Clock
	metrics    *metrics.EngineMetrics
	log        *zap.Logger

	mu     sync.Mutex
	loaded bool
	state  GlobalState
	subs   map[uint64]Subscriber
	nextID uint64
	closed bool
}

func newAggregator(questionID string, store StateStore, clk clock.Clock, m *metrics.EngineMetrics, log *zap.Logger) *Aggregator {
	return &Aggregator{
		questionID: questionID,
		store:      store,
		clock:      clk,
		metrics:    m,
		log:        log,
		subs:       map[uint64]Subscriber{},
	}
}

func (a *Aggregator) QuestionID() string { return a.questionID }

// RecordVote counts one vote, persists, and broadcasts the new tally.
func (a *Aggregator) RecordVote(ctx context.Context, optionID, countryCode string) (GlobalTally, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.hydrateLocked(ctx); err != nil {
		return GlobalTally{}, err
	}

	previous := a.state.LastUpdated
	a.state.add(optionID, countryCode, 1)
	a.state.LastUpdated = a.clock.Now()
	if err := a.store.SaveGlobal(ctx, a.questionID, a.state); err != nil {
		a.state.add(optionID, countryCode, -1)
		a.state.LastUpdated = previous
		return GlobalTally{}, fmt.Errorf("save aggregate %s: %w", a.questionID, err)
	}

	tally := Format(a.questionID, a.state)
	a.broadcastLocked(Message{Type: MessageVoteUpdate, Payload: tally})
	return tally, nil
}

func (a *Aggregator) Read(ctx context.Context) (GlobalTally, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.hydrateLocked(ctx); err != nil {
		return GlobalTally{}, err
	}
	return Format(a.questionID, a.state), nil
}

// Subscribe registers sub and sends it the current tally.
func (a *Aggregator) Subscribe(ctx context.Context, sub Subscriber) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, ErrAggregatorClosed
	}
	if err := a.hydrateLocked(ctx); err != nil {
		return 0, err
	}

	if err := sub.Send(Message{Type: MessageVoteUpdate, Payload: Format(a.questionID, a.state)}); err != nil {
		return 0, fmt.Errorf("initial push: %w", err)
	}

	a.nextID++
	id := a.nextID
	a.subs[id] = sub
	a.metrics.AddActiveSubscribers(1)
	return id, nil
}

func (a *Aggregator) Unsubscribe(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.subs[id]; ok {
		delete(a.subs, id)
		a.metrics.AddActiveSubscribers(-1)
	}
}

func (a *Aggregator) SubscriberCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}

// Close tells every subscriber the question changed and drops them.
func (a *Aggregator) Close(nextQuestionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	a.broadcastLocked(Message{
		Type:    MessageQuestionChange,
		Payload: QuestionChange{QuestionID: a.questionID, NextQuestionID: nextQuestionID},
	})
	if n := len(a.subs); n > 0 {
		a.metrics.AddActiveSubscribers(-n)
	}
	a.subs = map[uint64]Subscriber{}
}

func (a *Aggregator) reset(state GlobalState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = state.Clone()
	a.loaded = true
	a.broadcastLocked(Message{Type: MessageVoteUpdate, Payload: Format(a.questionID, a.state)})
}

func (a *Aggregator) broadcastLocked(msg Message) {
	sent := 0
	for id, sub := range a.subs {
		if err := sub.Send(msg); err != nil {
			delete(a.subs, id)
			a.metrics.IncDroppedSubscriber()
			a.metrics.AddActiveSubscribers(-1)
			a.log.Debug("tally.subscriber.dropped",
				zap.String("question_id", a.questionID),
				zap.Uint64("subscription_id", id),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	a.metrics.AddBroadcasts(sent)
}

func (a *Aggregator) hydrateLocked(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	state, err := a.store.LoadGlobal(ctx, a.questionID)
	a.metrics.IncHydration("aggregate", err)
	if err != nil {
		return fmt.Errorf("load aggregate %s: %w", a.questionID, err)
	}
	if state.Options == nil {
		state.Options = map[string]int64{}
	}
	if state.Countries == nil {
		state.Countries = map[string]CounterState{}
	}
	a.state = state
	a.loaded = true
	return nil
}
