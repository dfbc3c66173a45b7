package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	bandomain "github.com/smallbiznis/worldpulse/internal/ban/domain"
	"github.com/smallbiznis/worldpulse/internal/moderation"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	queuedomain "github.com/smallbiznis/worldpulse/internal/queue/domain"
	userstatsdomain "github.com/smallbiznis/worldpulse/internal/userstats/domain"
	votedomain "github.com/smallbiznis/worldpulse/internal/vote/domain"
	"github.com/smallbiznis/worldpulse/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationSentinels lists the domain errors that surface as 400s. The
// sentinel text doubles as the machine-readable code.
var validationSentinels = []error{
	ErrInvalidRequest,
	votedomain.ErrInvalidQuestion,
	votedomain.ErrInvalidOption,
	votedomain.ErrInvalidVoter,
	votedomain.ErrQuestionNotActive,
	questiondomain.ErrInvalidID,
	questiondomain.ErrInvalidText,
	questiondomain.ErrInvalidOptions,
	queuedomain.ErrInvalidID,
	queuedomain.ErrInvalidVoter,
	queuedomain.ErrInvalidText,
	queuedomain.ErrInvalidOptions,
	queuedomain.ErrContentRejected,
	userstatsdomain.ErrInvalidVoter,
	bandomain.ErrInvalidVoter,
	pagination.ErrInvalidPageToken,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var modErr *queuedomain.ModerationError
	if errors.As(err, &modErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: moderationMessage(modErr.Reason),
			Errors: []ValidationError{
				{Field: "text", Code: queuedomain.ErrContentRejected.Error(), Message: moderationMessage(modErr.Reason)},
			},
		}
	}

	if code, ok := validationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, bandomain.ErrBanned):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, votedomain.ErrAlreadyVoted),
		errors.Is(err, queuedomain.ErrAlreadyUpvoted),
		errors.Is(err, questiondomain.ErrNotPending),
		errors.Is(err, queuedomain.ErrNotPending):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, queuedomain.ErrPendingLimit):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: rateLimitMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, votedomain.ErrUnavailable),
		errors.Is(err, moderation.ErrUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the response type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, questiondomain.ErrNotFound),
		errors.Is(err, questiondomain.ErrNoActiveQuestion),
		errors.Is(err, queuedomain.ErrNotFound),
		errors.Is(err, bandomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case votedomain.ErrQuestionNotActive.Error():
		return "question_id"
	case votedomain.ErrInvalidOption.Error():
		return "option_id"
	}
	return strings.TrimPrefix(code, "invalid_")
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case votedomain.ErrQuestionNotActive.Error():
		return "question is not open for voting"
	case votedomain.ErrInvalidOption.Error():
		return "option does not belong to the question"
	default:
		return "invalid value"
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, votedomain.ErrAlreadyVoted):
		return "already voted"
	case errors.Is(err, queuedomain.ErrAlreadyUpvoted):
		return "already upvoted"
	default:
		return "conflict"
	}
}

func rateLimitMessage(err error) string {
	if errors.Is(err, queuedomain.ErrPendingLimit) {
		return "a pending submission already exists"
	}
	return "too many requests"
}

func notFoundMessage(err error) string {
	if errors.Is(err, questiondomain.ErrNoActiveQuestion) {
		return "no active question"
	}
	return "not found"
}

func moderationMessage(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "content rejected"
	}
	return reason
}
