package guard

import (
	"testing"
	"time"

	queuedomain "github.com/smallbiznis/worldpulse/internal/queue/domain"
	"github.com/stretchr/testify/assert"
)

func TestEnsureSubmissionPromotable(t *testing.T) {
	ok := &queuedomain.Submission{Text: "Tea or coffee?", Options: []string{"Tea", "Coffee"}, Status: queuedomain.StatusPending}
	assert.NoError(t, EnsureSubmissionPromotable(ok))

	approved := *ok
	approved.Status = queuedomain.StatusApproved
	assert.ErrorIs(t, EnsureSubmissionPromotable(&approved), ErrSubmissionNotPending)

	single := *ok
	single.Options = []string{"Tea"}
	assert.ErrorIs(t, EnsureSubmissionPromotable(&single), ErrSubmissionMalformed)
}

func TestEnsureBoundaryReached(t *testing.T) {
	boundary := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, EnsureBoundaryReached(boundary, boundary))
	assert.ErrorIs(t, EnsureBoundaryReached(boundary, boundary.Add(-time.Second)), ErrBoundaryNotReached)
}
