package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	"github.com/smallbiznis/worldpulse/internal/tally"
	"github.com/smallbiznis/worldpulse/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     questiondomain.Repository
	Ledger   ledgerdomain.Service
	Cache    *cache.ReadThrough
	Clock    clock.Clock
	Registry *tally.Registry `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     questiondomain.Repository
	ledger   ledgerdomain.Service
	cache    *cache.ReadThrough
	clock    clock.Clock
	registry *tally.Registry
}

func New(p Params) questiondomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("question.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		ledger:   p.Ledger,
		cache:    p.Cache,
		clock:    p.Clock,
		registry: p.Registry,
	}
}

func (s *Service) Create(ctx context.Context, req questiondomain.CreateRequest) (*questiondomain.Response, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, questiondomain.ErrInvalidText
	}
	if len(req.Options) < questiondomain.MinOptions || len(req.Options) > questiondomain.MaxOptions {
		return nil, questiondomain.ErrInvalidOptions
	}
	for _, option := range req.Options {
		if strings.TrimSpace(option) == "" {
			return nil, questiondomain.ErrInvalidOptions
		}
	}

	q := &questiondomain.Question{
		ID:        s.genID.Generate(),
		Text:      text,
		Options:   questiondomain.BuildOptions(s.genID, req.Options),
		Status:    questiondomain.StatusPending,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, q); err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	return questiondomain.ToResponse(q), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*questiondomain.Response, error) {
	questionID, err := questiondomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, questiondomain.ErrInvalidID
	}
	q, err := s.Find(ctx, questionID)
	if err != nil {
		return nil, err
	}
	return questiondomain.ToResponse(q), nil
}

func (s *Service) Find(ctx context.Context, id snowflake.ID) (*questiondomain.Question, error) {
	q, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, questiondomain.ErrNotFound
	}
	return q, nil
}

// Current serves the open question through the cache. An entry whose window
// has already closed is dropped and reloaded.
func (s *Service) Current(ctx context.Context) (*questiondomain.Response, error) {
	resp, err := cache.Get(ctx, s.cache, "current_question", cache.CurrentQuestionKey, s.currentTTL, s.loadCurrent)
	if err != nil {
		return nil, err
	}
	if resp != nil && !resp.OpenAt(s.clock.Now()) {
		s.cache.Invalidate(ctx, cache.CurrentQuestionKey)
		if resp, err = s.loadCurrent(ctx); err != nil {
			return nil, err
		}
	}
	if resp == nil {
		return nil, questiondomain.ErrNoActiveQuestion
	}
	return resp, nil
}

func (s *Service) loadCurrent(ctx context.Context) (*questiondomain.Response, error) {
	q, err := s.repo.FindActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if q == nil || !q.OpenAt(s.clock.Now()) {
		return nil, nil
	}
	return questiondomain.ToResponse(q), nil
}

func (s *Service) currentTTL(resp *questiondomain.Response) time.Duration {
	if resp == nil || resp.ActiveTo == nil {
		return 0
	}
	return cache.WindowTTL(s.clock.Now(), *resp.ActiveTo)
}

func (s *Service) History(ctx context.Context, req pagination.Pagination) (*questiondomain.HistoryPage, error) {
	limit := req.Limit()

	var before *questiondomain.ArchiveCursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := decodeArchiveCursor(token)
		if err != nil {
			return nil, err
		}
		before = cursor
	}

	items, err := s.repo.ListArchived(ctx, s.db, before, limit+1)
	if err != nil {
		return nil, err
	}
	items, pageInfo, err := pagination.Trim(items, limit, archiveCursor)
	if err != nil {
		return nil, err
	}

	page := &questiondomain.HistoryPage{
		Items:    make([]questiondomain.HistoryItem, 0, len(items)),
		PageInfo: pageInfo,
	}
	for i := range items {
		q := &items[i]
		counts, err := s.ledger.CountByOption(ctx, q.ID)
		if err != nil {
			return nil, fmt.Errorf("count votes for %s: %w", q.ID, err)
		}
		page.Items = append(page.Items, questiondomain.HistoryItem{
			Question: *questiondomain.ToResponse(q),
			Votes:    finalTally(q, counts),
		})
	}
	return page, nil
}

// finalTally lists every option in question order, including unvoted ones.
func finalTally(q *questiondomain.Question, counts map[string]int64) tally.GlobalTally {
	out := tally.GlobalTally{
		QuestionID: q.ID.String(),
		Options:    make([]tally.OptionCount, 0, len(q.Options)),
		ByCountry:  []tally.CountryTally{},
	}
	for _, option := range q.Options {
		count := counts[option.ID]
		out.Options = append(out.Options, tally.OptionCount{OptionID: option.ID, Count: count})
		out.TotalVotes += count
	}
	if q.ActiveTo != nil {
		out.LastUpdated = *q.ActiveTo
	} else {
		out.LastUpdated = q.CreatedAt
	}
	return out
}

func archiveCursor(q questiondomain.Question) pagination.Cursor {
	cursor := pagination.Cursor{ID: q.ID.String()}
	if q.ActiveTo != nil {
		cursor.At = q.ActiveTo.UTC().Format(time.RFC3339Nano)
	}
	return cursor
}

func decodeArchiveCursor(token string) (*questiondomain.ArchiveCursor, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	at, err := time.Parse(time.RFC3339Nano, cursor.At)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	return &questiondomain.ArchiveCursor{ActiveTo: at, ID: id}, nil
}

// Activate makes a pending question the active one until the next boundary,
// archiving whatever was active.
func (s *Service) Activate(ctx context.Context, id string) (*questiondomain.Response, error) {
	questionID, err := questiondomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, questiondomain.ErrInvalidID
	}

	now := s.clock.Now().UTC()
	var previous, activated *questiondomain.Question
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := s.repo.FindByID(ctx, tx, questionID)
		if err != nil {
			return err
		}
		if q == nil {
			return questiondomain.ErrNotFound
		}
		if q.Status != questiondomain.StatusPending {
			return questiondomain.ErrNotPending
		}

		if previous, err = s.repo.FindActive(ctx, tx); err != nil {
			return err
		}
		if _, err := s.repo.ArchiveActive(ctx, tx); err != nil {
			return err
		}
		to := clock.NextBoundary(now)
		ok, err := s.repo.Activate(ctx, tx, questionID, now, to)
		if err != nil {
			return err
		}
		if !ok {
			return questiondomain.ErrNotPending
		}
		q.Status = questiondomain.StatusActive
		q.ActiveFrom = &now
		q.ActiveTo = &to
		activated = q
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, previous, questionID.String())
	s.log.Info("question.activated",
		zap.String("question_id", questionID.String()),
		zap.Time("active_to", *activated.ActiveTo),
	)
	return questiondomain.ToResponse(activated), nil
}

func (s *Service) ArchiveActive(ctx context.Context) (int64, error) {
	var previous *questiondomain.Question
	var archived int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if previous, err = s.repo.FindActive(ctx, tx); err != nil {
			return err
		}
		archived, err = s.repo.ArchiveActive(ctx, tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if archived > 0 {
		s.afterTransition(ctx, previous, "")
	}
	return archived, nil
}

// afterTransition drops the cached current question and closes the realtime
// channel of the question that stopped being active.
func (s *Service) afterTransition(ctx context.Context, previous *questiondomain.Question, nextID string) {
	s.cache.Invalidate(ctx, cache.CurrentQuestionKey)
	if previous != nil && s.registry != nil {
		s.registry.Evict(previous.ID.String(), nextID)
	}
}

func (s *Service) NextPending(ctx context.Context) (*questiondomain.Question, error) {
	return s.repo.FindOldestPending(ctx, s.db)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	questionID, err := questiondomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return questiondomain.ErrInvalidID
	}

	deleted, err := s.repo.DeletePending(ctx, s.db, questionID)
	if err != nil {
		return err
	}
	if deleted {
		return nil
	}

	q, err := s.repo.FindByID(ctx, s.db, questionID)
	if err != nil {
		return err
	}
	if q == nil {
		return questiondomain.ErrNotFound
	}
	return questiondomain.ErrNotPending
}

func (s *Service) SeedIfEmpty(ctx context.Context, reqs []questiondomain.CreateRequest) (int, error) {
	count, err := s.repo.Count(ctx, s.db)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	for i, req := range reqs {
		if _, err := s.Create(ctx, req); err != nil {
			return i, fmt.Errorf("seed %q: %w", req.Text, err)
		}
	}
	s.log.Info("question.seeded", zap.Int("count", len(reqs)))
	return len(reqs), nil
}
