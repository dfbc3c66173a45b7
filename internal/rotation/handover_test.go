package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/worldpulse/internal/tally"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandoverEvictsWhenQuestionChanges(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, "Cats or dogs?")
	f.seed(t, "Is water wet?")

	// The follower has its own registry, as in an API process that does not rotate.
	registry := tally.NewRegistry(tally.RegistryParams{Store: tally.NewMemoryStore(), Clock: f.clock, Log: zap.NewNop()})
	h := NewHandover(HandoverParams{
		Log:       zap.NewNop(),
		Questions: f.questions,
		Registry:  registry,
		Cache:     f.cache,
		Clock:     f.clock,
	})

	first, err := f.sched.Rotate(ctx)
	require.NoError(t, err)
	changed, err := h.Check(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	sub := &recordingSubscriber{}
	_, err = registry.Aggregator(first.ActivatedID).Subscribe(ctx, sub)
	require.NoError(t, err)

	changed, err = h.Check(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, tally.MessageVoteUpdate, sub.last().Type)

	f.clock.Advance(24 * time.Hour)
	second, err := f.sched.Rotate(ctx)
	require.NoError(t, err)

	changed, err = h.Check(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	msg := sub.last()
	assert.Equal(t, tally.MessageQuestionChange, msg.Type)
	assert.Equal(t, second.ActivatedID, msg.Payload.(tally.QuestionChange).NextQuestionID)
	assert.Equal(t, 0, registry.Subscribers())
}
