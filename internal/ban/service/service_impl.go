package service

import (
	"context"
	"fmt"
	"strings"

	bandomain "github.com/smallbiznis/worldpulse/internal/ban/domain"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	"github.com/smallbiznis/worldpulse/pkg/db"
	"github.com/smallbiznis/worldpulse/pkg/db/option"
	"github.com/smallbiznis/worldpulse/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cache *cache.ReadThrough
	Clock clock.Clock
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	banrepo repository.Repository[bandomain.Ban]
	cache   *cache.ReadThrough
	clock   clock.Clock
}

func New(p Params) bandomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ban.service"),
		banrepo: repository.ProvideStore[bandomain.Ban](p.DB),
		cache:   p.Cache,
		clock:   p.Clock,
	}
}

// IsBanned answers from the ban cache, caching negative answers as well;
// Ban and Unban invalidate the entry.
func (s *Service) IsBanned(ctx context.Context, voterKey string) (bool, error) {
	voterKey = strings.TrimSpace(voterKey)
	if voterKey == "" {
		return false, bandomain.ErrInvalidVoter
	}
	return cache.Get(ctx, s.cache, "ban", cache.BanKey(voterKey), cache.Fixed[bool](cache.BanTTL),
		func(ctx context.Context) (bool, error) {
			count, err := s.banrepo.Count(ctx, &bandomain.Ban{VoterKey: voterKey})
			if err != nil {
				return false, fmt.Errorf("lookup ban: %w", err)
			}
			return count > 0, nil
		},
	)
}

// Ban is idempotent; banning again keeps the original row.
func (s *Service) Ban(ctx context.Context, req bandomain.BanRequest) (*bandomain.Response, error) {
	voterKey := strings.TrimSpace(req.VoterKey)
	if voterKey == "" {
		return nil, bandomain.ErrInvalidVoter
	}

	ban := &bandomain.Ban{
		VoterKey:  voterKey,
		Reason:    strings.TrimSpace(req.Reason),
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.banrepo.Create(ctx, ban); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		existing, err := s.banrepo.FindOne(ctx, &bandomain.Ban{VoterKey: voterKey})
		if err != nil {
			return nil, err
		}
		if existing != nil {
			ban = existing
		}
	}

	s.cache.Invalidate(ctx, cache.BanKey(voterKey))
	s.log.Info("ban.created", zap.String("reason", ban.Reason))
	return toResponse(ban), nil
}

func (s *Service) Unban(ctx context.Context, voterKey string) error {
	voterKey = strings.TrimSpace(voterKey)
	if voterKey == "" {
		return bandomain.ErrInvalidVoter
	}

	deleted, err := s.banrepo.Delete(ctx, &bandomain.Ban{VoterKey: voterKey})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.BanKey(voterKey))
	if deleted == 0 {
		return bandomain.ErrNotFound
	}
	s.log.Info("ban.removed")
	return nil
}

func (s *Service) List(ctx context.Context) ([]bandomain.Response, error) {
	items, err := s.banrepo.Find(ctx, &bandomain.Ban{},
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	)
	if err != nil {
		return nil, err
	}

	resp := make([]bandomain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, *toResponse(item))
	}
	return resp, nil
}

func toResponse(b *bandomain.Ban) *bandomain.Response {
	return &bandomain.Response{
		VoterKey:  b.VoterKey,
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt,
	}
}
