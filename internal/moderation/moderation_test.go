package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/worldpulse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHeuristic(t *testing.T) *Heuristic {
	t.Helper()
	holder, err := config.NewStaticModerationRulesHolder(config.DefaultModerationRules())
	require.NoError(t, err)
	return NewHeuristic(holder)
}

func TestHeuristic(t *testing.T) {
	h := newHeuristic(t)
	cases := []struct {
		name    string
		text    string
		options []string
		allowed bool
	}{
		{"valid", "Is a hot dog a sandwich?", []string{"Yes", "No"}, true},
		{"too short", "Why?", []string{"Yes", "No"}, false},
		{"missing question mark", "Hot dogs are sandwiches", []string{"Yes", "No"}, false},
		{"one option", "Is a hot dog a sandwich?", []string{"Yes"}, false},
		{"five options", "Is a hot dog a sandwich?", []string{"a", "b", "c", "d", "e"}, false},
		{"duplicate options", "Is a hot dog a sandwich?", []string{"Yes", "yes"}, false},
		{"long option", "Is a hot dog a sandwich?", []string{"Yes", "No, and here is a very long explanation"}, false},
		{"url", "Visit www.example.com today?", []string{"Yes", "No"}, false},
		{"shouting", "WHYYYYYYYYYYYYY is this?", []string{"Yes", "No"}, false},
		{"repeated characters", "Is this sooooooo good?", []string{"Yes", "No"}, false},
		{"explicit", "Is porn a sandwich topic?", []string{"Yes", "No"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict, err := h.Review(context.Background(), tc.text, tc.options)
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, verdict.Allowed, verdict.Reason)
			if !tc.allowed {
				assert.NotEmpty(t, verdict.Reason)
			}
		})
	}
}

func newTestJudge(url string, retries int) *HTTPJudge {
	j := NewHTTPJudge(JudgeConfig{Endpoint: url, Token: "secret", MaxRetries: retries, Timeout: time.Second}, zap.NewNop())
	j.sleep = func(context.Context, time.Duration) error { return nil }
	return j
}

func TestHTTPJudgeParsesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body judgeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"Yes", "No"}, body.Options)
		_, _ = w.Write([]byte(`{"allowed":false,"reason":"Off topic"}`))
	}))
	defer srv.Close()

	verdict, err := newTestJudge(srv.URL, 0).Review(context.Background(), "Is water wet?", []string{"Yes", "No"})
	require.NoError(t, err)
	assert.Equal(t, Verdict{Allowed: false, Reason: "Off topic"}, verdict)
}

func TestHTTPJudgeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"allowed":true}`))
	}))
	defer srv.Close()

	verdict, err := newTestJudge(srv.URL, 3).Review(context.Background(), "Is water wet?", []string{"Yes", "No"})
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPJudgeGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestJudge(srv.URL, 2).Review(context.Background(), "Is water wet?", []string{"Yes", "No"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPJudgeUnparseableVerdictDenies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`I think it is fine`))
	}))
	defer srv.Close()

	verdict, err := newTestJudge(srv.URL, 0).Review(context.Background(), "Is water wet?", []string{"Yes", "No"})
	require.NoError(t, err)
	assert.Equal(t, Verdict{Allowed: false, Reason: ReasonUnverifiable}, verdict)
}

func TestChain(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	var judged atomic.Int32
	strict := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		judged.Add(1)
		_, _ = w.Write([]byte(`{"allowed":false,"reason":"Divisive"}`))
	}))
	defer strict.Close()

	ctx := context.Background()
	h := newHeuristic(t)

	failOpen := NewChain(ChainParams{Heuristic: h, Judge: newTestJudge(down.URL, 1), Log: zap.NewNop()})
	verdict, err := failOpen.Review(ctx, "Is water wet?", []string{"Yes", "No"})
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)

	judgeDenies := NewChain(ChainParams{Heuristic: h, Judge: newTestJudge(strict.URL, 0), Log: zap.NewNop()})
	verdict, err = judgeDenies.Review(ctx, "Is water wet?", []string{"Yes", "No"})
	require.NoError(t, err)
	assert.Equal(t, "Divisive", verdict.Reason)

	verdict, err = judgeDenies.Review(ctx, "Why?", []string{"Yes", "No"})
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, int32(1), judged.Load(), "heuristic rejections never reach the judge")

	noJudge := NewChain(ChainParams{Heuristic: h, Log: zap.NewNop()})
	verdict, err = noJudge.Review(ctx, "Is water wet?", []string{"Yes", "No"})
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}
