package tally

import (
	"context"
	"strings"
	"sync"
)

// StateStore persists actor checkpoints. Saves are full-state overwrites.
type StateStore interface {
	LoadCounter(ctx context.Context, questionID, countryCode string) (CounterState, error)
	SaveCounter(ctx context.Context, questionID, countryCode string, state CounterState) error
	LoadGlobal(ctx context.Context, questionID string) (GlobalState, error)
	SaveGlobal(ctx context.Context, questionID string, state GlobalState) error
	DeleteQuestion(ctx context.Context, questionID string) error
}

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]CounterState
	globals  map[string]GlobalState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: map[string]CounterState{},
		globals:  map[string]GlobalState{},
	}
}

func counterStoreKey(questionID, countryCode string) string {
	return questionID + "/" + countryCode
}

func (m *MemoryStore) LoadCounter(_ context.Context, questionID, countryCode string) (CounterState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.counters[counterStoreKey(questionID, countryCode)]; ok {
		return s.Clone(), nil
	}
	return NewCounterState(), nil
}

func (m *MemoryStore) SaveCounter(_ context.Context, questionID, countryCode string, state CounterState) error {
	m.mu.Lock()
	m.counters[counterStoreKey(questionID, countryCode)] = state.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LoadGlobal(_ context.Context, questionID string) (GlobalState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.globals[questionID]; ok {
		return s.Clone(), nil
	}
	return NewGlobalState(), nil
}

func (m *MemoryStore) SaveGlobal(_ context.Context, questionID string, state GlobalState) error {
	m.mu.Lock()
	m.globals[questionID] = state.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteQuestion(_ context.Context, questionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.globals, questionID)
	prefix := questionID + "/"
	for key := range m.counters {
		if strings.HasPrefix(key, prefix) {
			delete(m.counters, key)
		}
	}
	return nil
}
