package moderation

import (
	"context"
	"errors"
)

// Verdict is the outcome of a content review.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Moderator reviews a proposed question and its options.
type Moderator interface {
	Review(ctx context.Context, text string, options []string) (Verdict, error)
}

// ErrUnavailable means the reviewer could not be reached or gave up.
var ErrUnavailable = errors.New("moderation_unavailable")

const ReasonUnverifiable = "unable to verify content"

func allow() Verdict {
	return Verdict{Allowed: true}
}

func deny(reason string) Verdict {
	return Verdict{Allowed: false, Reason: reason}
}
