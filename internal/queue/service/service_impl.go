package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/microcosm-cc/bluemonday"
	bandomain "github.com/smallbiznis/worldpulse/internal/ban/domain"
	"github.com/smallbiznis/worldpulse/internal/clock"
	"github.com/smallbiznis/worldpulse/internal/config"
	"github.com/smallbiznis/worldpulse/internal/moderation"
	"github.com/smallbiznis/worldpulse/internal/observability/metrics"
	queuedomain "github.com/smallbiznis/worldpulse/internal/queue/domain"
	"github.com/smallbiznis/worldpulse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      queuedomain.Repository
	Bans      bandomain.Service
	Moderator moderation.Moderator
	Rules     *config.ModerationRulesHolder
	Clock     clock.Clock
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      queuedomain.Repository
	bans      bandomain.Service
	moderator moderation.Moderator
	rules     *config.ModerationRulesHolder
	clock     clock.Clock
	metrics   *metrics.Metrics
	policy    *bluemonday.Policy
}

func New(p Params) queuedomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("queue.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		bans:      p.Bans,
		moderator: p.Moderator,
		rules:     p.Rules,
		clock:     p.Clock,
		metrics:   p.Metrics,
		policy:    bluemonday.StrictPolicy(),
	}
}

// Submit queues a proposed question for the voter and upvotes it on their
// behalf. A voter may have one pending submission at a time.
func (s *Service) Submit(ctx context.Context, req queuedomain.SubmitRequest) (*queuedomain.Response, error) {
	resp, err := s.submit(ctx, req)
	s.metrics.RecordSubmission(ctx, outcome(err))
	return resp, err
}

func (s *Service) submit(ctx context.Context, req queuedomain.SubmitRequest) (*queuedomain.Response, error) {
	voterKey := strings.TrimSpace(req.VoterKey)
	if voterKey == "" {
		return nil, queuedomain.ErrInvalidVoter
	}

	text := s.sanitize(req.Text)
	options := make([]string, 0, len(req.Options))
	for _, option := range req.Options {
		options = append(options, s.sanitize(option))
	}
	if err := s.validate(text, options); err != nil {
		return nil, err
	}

	banned, err := s.bans.IsBanned(ctx, voterKey)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, bandomain.ErrBanned
	}

	pending, err := s.repo.CountPendingByAuthor(ctx, s.db, voterKey)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, queuedomain.ErrPendingLimit
	}

	verdict, err := s.moderator.Review(ctx, text, options)
	if err != nil {
		return nil, fmt.Errorf("review submission: %w", err)
	}
	if !verdict.Allowed {
		return nil, &queuedomain.ModerationError{Reason: verdict.Reason}
	}

	now := s.clock.Now().UTC()
	sub := &queuedomain.Submission{
		ID:             s.genID.Generate(),
		Text:           text,
		Options:        options,
		SubmittedAt:    now,
		SubmittedByKey: voterKey,
		Upvotes:        1,
		Status:         queuedomain.StatusPending,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return err
		}
		return s.repo.InsertUpvote(ctx, tx, sub.ID, voterKey, now)
	})
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	s.log.Info("queue.submitted", zap.String("submission_id", sub.ID.String()))
	resp := queuedomain.ToResponse(sub)
	resp.UserUpvoted = true
	return resp, nil
}

// sanitize strips markup, leaving plain text.
func (s *Service) sanitize(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(value)))
}

func (s *Service) validate(text string, options []string) error {
	rules := s.rules.Get()
	if text == "" || utf8.RuneCountInString(text) > rules.QuestionMaxLength {
		return queuedomain.ErrInvalidText
	}
	if len(options) < rules.MinOptions || len(options) > rules.MaxOptions {
		return queuedomain.ErrInvalidOptions
	}
	for _, option := range options {
		if option == "" || utf8.RuneCountInString(option) > rules.OptionMaxLength {
			return queuedomain.ErrInvalidOptions
		}
	}
	return nil
}

func (s *Service) Upvote(ctx context.Context, id string, voterKey string) (*queuedomain.Response, error) {
	resp, err := s.upvote(ctx, id, voterKey)
	s.metrics.RecordUpvote(ctx, outcome(err))
	return resp, err
}

func (s *Service) upvote(ctx context.Context, id string, voterKey string) (*queuedomain.Response, error) {
	submissionID, err := queuedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, queuedomain.ErrInvalidID
	}
	voterKey = strings.TrimSpace(voterKey)
	if voterKey == "" {
		return nil, queuedomain.ErrInvalidVoter
	}

	banned, err := s.bans.IsBanned(ctx, voterKey)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, bandomain.ErrBanned
	}

	var updated *queuedomain.Submission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByID(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		if sub == nil || sub.Status != queuedomain.StatusPending {
			return queuedomain.ErrNotFound
		}
		if err := s.repo.InsertUpvote(ctx, tx, submissionID, voterKey, s.clock.Now().UTC()); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return queuedomain.ErrAlreadyUpvoted
			}
			return err
		}
		if err := s.repo.IncrementUpvotes(ctx, tx, submissionID); err != nil {
			return err
		}
		sub.Upvotes++
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := queuedomain.ToResponse(updated)
	resp.UserUpvoted = true
	return resp, nil
}

func (s *Service) List(ctx context.Context, voterKey string, limit int) (*queuedomain.ListResponse, error) {
	switch {
	case limit <= 0:
		limit = queuedomain.DefaultListLimit
	case limit > queuedomain.MaxListLimit:
		limit = queuedomain.MaxListLimit
	}

	items, err := s.repo.ListPending(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}

	out := &queuedomain.ListResponse{Items: make([]queuedomain.Response, 0, len(items))}
	voterKey = strings.TrimSpace(voterKey)
	upvoted := map[snowflake.ID]bool{}
	if voterKey != "" {
		ids := make([]snowflake.ID, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		mine, err := s.repo.UpvotedBy(ctx, s.db, voterKey, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range mine {
			upvoted[id] = true
		}

		pending, err := s.repo.CountPendingByAuthor(ctx, s.db, voterKey)
		if err != nil {
			return nil, err
		}
		out.HasSubmitted = pending > 0
	}

	for i := range items {
		resp := queuedomain.ToResponse(&items[i])
		resp.UserUpvoted = upvoted[items[i].ID]
		out.Items = append(out.Items, *resp)
	}
	return out, nil
}

func (s *Service) Top(ctx context.Context) (*queuedomain.Submission, error) {
	items, err := s.repo.ListPending(ctx, s.db, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *Service) Approve(ctx context.Context, id string) error {
	return s.transition(ctx, id, queuedomain.StatusApproved)
}

func (s *Service) Reject(ctx context.Context, id string) error {
	return s.transition(ctx, id, queuedomain.StatusRejected)
}

func (s *Service) transition(ctx context.Context, id string, to queuedomain.Status) error {
	submissionID, err := queuedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return queuedomain.ErrInvalidID
	}
	ok, err := s.repo.UpdateStatus(ctx, s.db, submissionID, queuedomain.StatusPending, to)
	if err != nil {
		return err
	}
	if ok {
		s.log.Info("queue.status_changed", zap.String("submission_id", submissionID.String()), zap.String("status", string(to)))
		return nil
	}
	return s.missingOrSettled(ctx, submissionID)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	submissionID, err := queuedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return queuedomain.ErrInvalidID
	}

	var deleted bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err = s.repo.DeletePending(ctx, tx, submissionID)
		return err
	})
	if err != nil {
		return err
	}
	if deleted {
		return nil
	}
	return s.missingOrSettled(ctx, submissionID)
}

func (s *Service) missingOrSettled(ctx context.Context, id snowflake.ID) error {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if sub == nil {
		return queuedomain.ErrNotFound
	}
	return queuedomain.ErrNotPending
}

func outcome(err error) string {
	var modErr *queuedomain.ModerationError
	switch {
	case err == nil:
		return "accepted"
	case errors.As(err, &modErr):
		return "moderated"
	case errors.Is(err, bandomain.ErrBanned):
		return "banned"
	case errors.Is(err, queuedomain.ErrPendingLimit), errors.Is(err, queuedomain.ErrAlreadyUpvoted):
		return "duplicate"
	default:
		return "rejected"
	}
}
