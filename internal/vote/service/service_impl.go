package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	achievementdomain "github.com/smallbiznis/worldpulse/internal/achievement/domain"
	bandomain "github.com/smallbiznis/worldpulse/internal/ban/domain"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	"github.com/smallbiznis/worldpulse/internal/observability/metrics"
	"github.com/smallbiznis/worldpulse/internal/observability/tracing"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	"github.com/smallbiznis/worldpulse/internal/tally"
	votedomain "github.com/smallbiznis/worldpulse/internal/vote/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Ledger        ledgerdomain.Service
	Questions     questiondomain.Service
	Bans          bandomain.Service
	Achievements  achievementdomain.Engine
	Registry      *tally.Registry
	Cache         *cache.ReadThrough
	Clock         clock.Clock
	Metrics       *metrics.Metrics       `optional:"true"`
	EngineMetrics *metrics.EngineMetrics `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	ledger        ledgerdomain.Service
	questions     questiondomain.Service
	bans          bandomain.Service
	achievements  achievementdomain.Engine
	registry      *tally.Registry
	cache         *cache.ReadThrough
	clock         clock.Clock
	metrics       *metrics.Metrics
	engineMetrics *metrics.EngineMetrics
}

func New(p Params) votedomain.Service {
	return &Service{
		log:           p.Log.Named("vote.service"),
		ledger:        p.Ledger,
		questions:     p.Questions,
		bans:          p.Bans,
		achievements:  p.Achievements,
		registry:      p.Registry,
		cache:         p.Cache,
		clock:         p.Clock,
		metrics:       p.Metrics,
		engineMetrics: p.EngineMetrics,
	}
}

// Submit records a vote in the ledger, then updates the country counter and
// the global aggregate. Once the ledger row exists the vote is accepted even
// if an actor update fails; the reconciler repairs the actors later.
func (s *Service) Submit(ctx context.Context, req votedomain.SubmitRequest) (*votedomain.SubmitResponse, error) {
	ctx, span := tracing.Start(ctx, "vote.submit", attribute.String("question.id", req.QuestionID))
	defer span.End()

	country := normalizeCountry(req.CountryCode)
	resp, err := s.submit(ctx, req, country)
	s.metrics.RecordVote(ctx, outcome(err), country)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, outcome(err))
	}
	return resp, err
}

func (s *Service) submit(ctx context.Context, req votedomain.SubmitRequest, country string) (*votedomain.SubmitResponse, error) {
	questionID, err := parseQuestionID(req.QuestionID)
	if err != nil {
		return nil, err
	}
	optionID := strings.TrimSpace(req.OptionID)
	if optionID == "" {
		return nil, votedomain.ErrInvalidOption
	}
	voterKey := strings.TrimSpace(req.VoterKey)
	if voterKey == "" {
		return nil, votedomain.ErrInvalidVoter
	}

	now := s.clock.Now().UTC()
	question, err := s.openQuestion(ctx, questionID, now)
	if err != nil {
		return nil, err
	}
	if !question.HasOption(optionID) {
		return nil, votedomain.ErrInvalidOption
	}

	banned, err := s.bans.IsBanned(ctx, voterKey)
	if err != nil {
		return nil, unavailable("check ban", err)
	}
	if banned {
		return nil, bandomain.ErrBanned
	}

	voted, _, err := s.lookupVote(ctx, questionID, voterKey, question.ActiveTo)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, votedomain.ErrAlreadyVoted
	}

	vote, err := s.ledger.Append(ctx, ledgerdomain.AppendRequest{
		QuestionID:  questionID,
		OptionID:    optionID,
		CountryCode: country,
		VoterKey:    voterKey,
		VotedAt:     now,
	})
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrAlreadyVoted) {
			s.markVoted(ctx, questionID, voterKey, optionID, question.ActiveTo)
			return nil, votedomain.ErrAlreadyVoted
		}
		return nil, unavailable("append vote", err)
	}

	votes := s.fanOut(ctx, vote)

	s.cache.Invalidate(ctx, cache.VotesKey(questionID.String()), cache.UserStatsKey(voterKey))
	s.markVoted(ctx, questionID, voterKey, optionID, question.ActiveTo)

	unlocked, err := s.achievements.Evaluate(ctx, achievementdomain.EvaluateRequest{
		VoterKey:   voterKey,
		OptionID:   optionID,
		VotedAt:    now,
		ActiveFrom: derefTime(question.ActiveFrom),
		ActiveTo:   derefTime(question.ActiveTo),
		Tally:      votes,
	})
	if err != nil {
		s.log.Warn("vote.achievements.failed",
			zap.String("question_id", questionID.String()),
			zap.Error(err),
		)
		unlocked = nil
	}
	if unlocked == nil {
		unlocked = []achievementdomain.Response{}
	}

	s.log.Debug("vote.accepted",
		zap.String("question_id", questionID.String()),
		zap.String("country_code", country),
	)
	return &votedomain.SubmitResponse{Votes: votes, NewAchievements: unlocked}, nil
}

// openQuestion resolves the question and checks that it is accepting votes.
// The cached current question answers the common case without a store read.
func (s *Service) openQuestion(ctx context.Context, id snowflake.ID, now time.Time) (*questiondomain.Response, error) {
	current, err := s.questions.Current(ctx)
	switch {
	case err == nil && current.ID == id.String():
		if !current.OpenAt(now) {
			return nil, votedomain.ErrQuestionNotActive
		}
		return current, nil
	case err != nil && !errors.Is(err, questiondomain.ErrNoActiveQuestion):
		return nil, unavailable("load current question", err)
	}

	q, err := s.questions.Find(ctx, id)
	if err != nil {
		if errors.Is(err, questiondomain.ErrNotFound) {
			return nil, err
		}
		return nil, unavailable("load question", err)
	}
	resp := questiondomain.ToResponse(q)
	if !resp.OpenAt(now) {
		return nil, votedomain.ErrQuestionNotActive
	}
	return resp, nil
}

// lookupVote checks the affirmative voted cache, then the ledger. Only
// positive answers are cached.
func (s *Service) lookupVote(ctx context.Context, questionID snowflake.ID, voterKey string, activeTo *time.Time) (bool, string, error) {
	var optionID string
	if s.cache.Lookup(ctx, "voted", cache.VotedKey(questionID.String(), voterKey), &optionID) {
		return true, optionID, nil
	}
	existing, err := s.ledger.Find(ctx, questionID, voterKey)
	if err != nil {
		return false, "", unavailable("lookup vote", err)
	}
	if existing == nil {
		return false, "", nil
	}
	s.markVoted(ctx, questionID, voterKey, existing.OptionID, activeTo)
	return true, existing.OptionID, nil
}

func (s *Service) markVoted(ctx context.Context, questionID snowflake.ID, voterKey, optionID string, activeTo *time.Time) {
	ttl := cache.MinWindowTTL
	if activeTo != nil {
		ttl = cache.WindowTTL(s.clock.Now(), *activeTo)
	}
	s.cache.Put(ctx, "voted", cache.VotedKey(questionID.String(), voterKey), optionID, ttl)
}

// fanOut applies the vote to the country counter and the global aggregate
// concurrently. It returns the aggregate after the vote, or the last tally
// that can still be read when the aggregate update failed.
func (s *Service) fanOut(ctx context.Context, vote *ledgerdomain.Vote) tally.GlobalTally {
	// The ledger row is committed; finish the actor updates even if the
	// client goes away.
	ctx = context.WithoutCancel(ctx)
	questionID := vote.QuestionID.String()

	var (
		wg         sync.WaitGroup
		counterErr error
		aggErr     error
		votes      tally.GlobalTally
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, counterErr = s.registry.Counter(questionID, vote.CountryCode).RecordVote(ctx, vote.OptionID)
	}()
	go func() {
		defer wg.Done()
		votes, aggErr = s.registry.Aggregator(questionID).RecordVote(ctx, vote.OptionID, vote.CountryCode)
	}()
	wg.Wait()

	if counterErr != nil {
		s.fanOutFailed(questionID, "counter", counterErr)
	}
	if aggErr == nil {
		return votes
	}
	s.fanOutFailed(questionID, "aggregator", aggErr)
	return s.lastTally(ctx, vote.QuestionID)
}

func (s *Service) fanOutFailed(questionID, target string, err error) {
	s.engineMetrics.IncFanoutFailure(target)
	s.log.Error("vote.fanout.failed",
		zap.String("question_id", questionID),
		zap.String("target", target),
		zap.Error(err),
	)
}

// lastTally reads the aggregate as it stands, falling back to a replay of
// the ledger when the aggregate cannot be read either.
func (s *Service) lastTally(ctx context.Context, questionID snowflake.ID) tally.GlobalTally {
	if votes, err := s.registry.Aggregator(questionID.String()).Read(ctx); err == nil {
		return votes
	}
	rows, err := s.ledger.ListByQuestion(ctx, questionID)
	if err != nil {
		s.log.Warn("vote.tally.unreadable", zap.String("question_id", questionID.String()), zap.Error(err))
		return tally.Format(questionID.String(), tally.NewGlobalState())
	}
	return tally.Format(questionID.String(), tally.Replay(rows).Global)
}

func (s *Service) HasVoted(ctx context.Context, questionID, voterKey string) (*votedomain.CheckResponse, error) {
	id, err := parseQuestionID(questionID)
	if err != nil {
		return nil, err
	}
	voterKey = strings.TrimSpace(voterKey)
	if voterKey == "" {
		return nil, votedomain.ErrInvalidVoter
	}

	var activeTo *time.Time
	if current, err := s.questions.Current(ctx); err == nil && current.ID == id.String() {
		activeTo = current.ActiveTo
	}
	voted, optionID, err := s.lookupVote(ctx, id, voterKey, activeTo)
	if err != nil {
		return nil, err
	}
	return &votedomain.CheckResponse{HasVoted: voted, OptionID: optionID}, nil
}

// Tally serves the aggregate through the votes cache. Submit invalidates the
// entry after every accepted vote.
func (s *Service) Tally(ctx context.Context, questionID string) (*tally.GlobalTally, error) {
	id, err := parseQuestionID(questionID)
	if err != nil {
		return nil, err
	}
	return cache.Get(ctx, s.cache, "votes", cache.VotesKey(id.String()), cache.Fixed[*tally.GlobalTally](cache.TallyTTL),
		func(ctx context.Context) (*tally.GlobalTally, error) {
			if _, err := s.questions.Find(ctx, id); err != nil {
				if errors.Is(err, questiondomain.ErrNotFound) {
					return nil, err
				}
				return nil, unavailable("load question", err)
			}
			votes, err := s.registry.Aggregator(id.String()).Read(ctx)
			if err != nil {
				return nil, unavailable("read tally", err)
			}
			return &votes, nil
		},
	)
}

func parseQuestionID(value string) (snowflake.ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, votedomain.ErrInvalidQuestion
	}
	id, err := questiondomain.ParseID(value)
	if err != nil || id <= 0 {
		return 0, votedomain.ErrInvalidQuestion
	}
	return id, nil
}

// normalizeCountry upper-cases a two letter code; anything else is unknown.
func normalizeCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return tally.UnknownCountry
	}
	return code
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(votedomain.ErrUnavailable, err))
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, votedomain.ErrAlreadyVoted):
		return "duplicate"
	case errors.Is(err, bandomain.ErrBanned):
		return "banned"
	case errors.Is(err, votedomain.ErrUnavailable):
		return "unavailable"
	default:
		return "rejected"
	}
}
