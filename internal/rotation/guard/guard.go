package guard

import (
	"errors"
	"time"

	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	queuedomain "github.com/smallbiznis/worldpulse/internal/queue/domain"
)

var (
	ErrSubmissionNotPending = errors.New("submission_not_pending")
	ErrSubmissionMalformed  = errors.New("submission_malformed")
	ErrBoundaryNotReached   = errors.New("rotation_boundary_not_reached")
)

// EnsureSubmissionPromotable checks that a queued submission can become a question.
func EnsureSubmissionPromotable(sub *queuedomain.Submission) error {
	if sub.Status != queuedomain.StatusPending {
		return ErrSubmissionNotPending
	}
	if sub.Text == "" || len(sub.Options) < questiondomain.MinOptions || len(sub.Options) > questiondomain.MaxOptions {
		return ErrSubmissionMalformed
	}
	return nil
}

func EnsureBoundaryReached(boundary, now time.Time) error {
	if now.Before(boundary) {
		return ErrBoundaryNotReached
	}
	return nil
}
