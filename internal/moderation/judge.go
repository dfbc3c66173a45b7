package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/worldpulse/internal/config"
	obstracing "github.com/smallbiznis/worldpulse/internal/observability/tracing"
	"go.uber.org/zap"
)

const (
	defaultJudgeTimeout = 5 * time.Second
	defaultBaseDelay    = 200 * time.Millisecond
	maxResponseBytes    = 64 << 10
)

type JudgeConfig struct {
	Endpoint   string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

func (c JudgeConfig) withDefaults() JudgeConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultJudgeTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	return c
}

// HTTPJudge asks a remote classifier for a verdict.
type HTTPJudge struct {
	cfg    JudgeConfig
	client *http.Client
	log    *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

type judgeRequest struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type judgeResponse struct {
	Allowed *bool  `json:"allowed"`
	Reason  string `json:"reason"`
}

func NewHTTPJudge(cfg JudgeConfig, log *zap.Logger) *HTTPJudge {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPJudge{
		cfg:    cfg,
		client: obstracing.WrapHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		log:    log.Named("moderation.judge"),
		sleep:  sleepContext,
	}
}

// NewJudgeFromConfig returns nil when no endpoint is configured.
func NewJudgeFromConfig(cfg config.Config, log *zap.Logger) *HTTPJudge {
	endpoint := strings.TrimSpace(cfg.Moderation.Endpoint)
	if endpoint == "" {
		return nil
	}
	return NewHTTPJudge(JudgeConfig{
		Endpoint:   endpoint,
		Token:      cfg.Moderation.Token,
		Timeout:    cfg.Moderation.Timeout,
		MaxRetries: cfg.Moderation.MaxRetries,
	}, log)
}

// Review posts the content and retries 429 and 5xx answers with exponential
// backoff. A response that cannot be read as a verdict is a denial.
func (j *HTTPJudge) Review(ctx context.Context, text string, options []string) (Verdict, error) {
	payload, err := json.Marshal(judgeRequest{Text: text, Options: options})
	if err != nil {
		return Verdict{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= j.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := j.cfg.BaseDelay << (attempt - 1)
			if err := j.sleep(ctx, delay); err != nil {
				return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}

		body, status, err := j.post(ctx, payload)
		if err != nil {
			lastErr = err
			j.log.Warn("moderation.judge.request_failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("judge returned %d", status)
			j.log.Warn("moderation.judge.retryable_status", zap.Int("attempt", attempt+1), zap.Int("status", status))
			continue
		}
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return Verdict{}, fmt.Errorf("%w: judge returned %d", ErrUnavailable, status)
		}
		return parseVerdict(body), nil
	}
	return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (j *HTTPJudge) post(ctx context.Context, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if j.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+j.cfg.Token)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func parseVerdict(body []byte) Verdict {
	var out judgeResponse
	if err := json.Unmarshal(body, &out); err != nil || out.Allowed == nil {
		return deny(ReasonUnverifiable)
	}
	if *out.Allowed {
		return allow()
	}
	reason := strings.TrimSpace(out.Reason)
	if reason == "" {
		reason = "Content not allowed"
	}
	return deny(reason)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
