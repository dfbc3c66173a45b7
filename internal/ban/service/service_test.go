package service

import (
	"context"
	"testing"
	"time"

	bandomain "github.com/smallbiznis/worldpulse/internal/ban/domain"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	"github.com/smallbiznis/worldpulse/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) bandomain.Service {
	t.Helper()
	return New(Params{
		DB:    testutil.OpenSQLite(t, &bandomain.Ban{}),
		Log:   zap.NewNop(),
		Cache: cache.NewReadThrough(cache.NewMemoryStore(), zap.NewNop(), nil),
		Clock: clock.NewFakeClock(time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)),
	})
}

func TestBanInvalidatesCachedAnswer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	banned, err := svc.IsBanned(ctx, "voter-1")
	require.NoError(t, err)
	assert.False(t, banned)

	_, err = svc.Ban(ctx, bandomain.BanRequest{VoterKey: "voter-1", Reason: "spam"})
	require.NoError(t, err)

	banned, err = svc.IsBanned(ctx, "voter-1")
	require.NoError(t, err)
	assert.True(t, banned)

	require.NoError(t, svc.Unban(ctx, "voter-1"))
	banned, err = svc.IsBanned(ctx, "voter-1")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestBanIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Ban(ctx, bandomain.BanRequest{VoterKey: "voter-1", Reason: "spam"})
	require.NoError(t, err)
	second, err := svc.Ban(ctx, bandomain.BanRequest{VoterKey: "voter-1", Reason: "again"})
	require.NoError(t, err)
	assert.Equal(t, first.Reason, second.Reason)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "spam", list[0].Reason)
}

func TestUnbanUnknownVoter(t *testing.T) {
	svc := newTestService(t)

	assert.ErrorIs(t, svc.Unban(context.Background(), "nobody"), bandomain.ErrNotFound)
	assert.ErrorIs(t, svc.Unban(context.Background(), " "), bandomain.ErrInvalidVoter)

	_, err := svc.IsBanned(context.Background(), "")
	assert.ErrorIs(t, err, bandomain.ErrInvalidVoter)
}
