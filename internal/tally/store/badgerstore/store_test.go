package badgerstore

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/worldpulse/internal/tally"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	counter := tally.CounterState{Counts: map[string]int64{"A": 2}, Total: 2}
	require.NoError(t, store.SaveCounter(ctx, "q1", "JP", counter))

	loaded, err := store.LoadCounter(ctx, "q1", "JP")
	require.NoError(t, err)
	assert.Equal(t, counter, loaded)

	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	global := tally.GlobalState{
		Options:     map[string]int64{"A": 2},
		Countries:   map[string]tally.CounterState{"JP": counter},
		LastUpdated: at,
	}
	require.NoError(t, store.SaveGlobal(ctx, "q1", global))

	loadedGlobal, err := store.LoadGlobal(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, global.Options, loadedGlobal.Options)
	assert.Equal(t, global.Countries, loadedGlobal.Countries)
	assert.True(t, at.Equal(loadedGlobal.LastUpdated))
}

func TestMissingKeysLoadEmpty(t *testing.T) {
	store := openTestStore(t)

	counter, err := store.LoadCounter(context.Background(), "nope", "US")
	require.NoError(t, err)
	assert.Equal(t, int64(0), counter.Total)

	global, err := store.LoadGlobal(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, int64(0), global.Total())
}

func TestDeleteQuestionRemovesEveryCheckpoint(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	state := tally.CounterState{Counts: map[string]int64{"A": 1}, Total: 1}

	for _, country := range []string{"US", "FR", "BR"} {
		require.NoError(t, store.SaveCounter(ctx, "q1", country, state))
	}
	require.NoError(t, store.SaveCounter(ctx, "q10", "US", state))
	require.NoError(t, store.DeleteQuestion(ctx, "q1"))

	for _, country := range []string{"US", "FR", "BR"} {
		got, err := store.LoadCounter(ctx, "q1", country)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Total, country)
	}
	kept, err := store.LoadCounter(ctx, "q10", "US")
	require.NoError(t, err)
	assert.Equal(t, int64(1), kept.Total)
}
