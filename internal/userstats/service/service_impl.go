package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	achievementdomain "github.com/smallbiznis/worldpulse/internal/achievement/domain"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	userstatsdomain "github.com/smallbiznis/worldpulse/internal/userstats/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Ledger       ledgerdomain.Service
	Achievements achievementdomain.Engine
	Cache        *cache.ReadThrough
	Clock        clock.Clock
}

type Service struct {
	log          *zap.Logger
	ledger       ledgerdomain.Service
	achievements achievementdomain.Engine
	cache        *cache.ReadThrough
	clock        clock.Clock
}

func New(p Params) userstatsdomain.Service {
	return &Service{
		log:          p.Log.Named("userstats.service"),
		ledger:       p.Ledger,
		achievements: p.Achievements,
		cache:        p.Cache,
		clock:        p.Clock,
	}
}

func (s *Service) Get(ctx context.Context, voterKey string) (*userstatsdomain.Stats, error) {
	voterKey = strings.TrimSpace(voterKey)
	if voterKey == "" {
		return nil, userstatsdomain.ErrInvalidVoter
	}
	return cache.Get(ctx, s.cache, "user_stats", cache.UserStatsKey(voterKey), cache.Fixed[*userstatsdomain.Stats](cache.UserStatsTTL),
		func(ctx context.Context) (*userstatsdomain.Stats, error) {
			return s.load(ctx, voterKey)
		},
	)
}

func (s *Service) load(ctx context.Context, voterKey string) (*userstatsdomain.Stats, error) {
	history, err := s.ledger.History(ctx, voterKey)
	if err != nil {
		return nil, fmt.Errorf("load vote history: %w", err)
	}
	achievements, err := s.achievements.ListByVoter(ctx, voterKey)
	if err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}

	stats := &userstatsdomain.Stats{
		TotalVotes:   len(history),
		Achievements: achievements,
	}
	if len(history) == 0 {
		return stats, nil
	}
	last := history[0].VotedAt.UTC()
	stats.LastVotedAt = &last
	stats.Streak = streakFrom(history, clock.StartOfDay(s.clock.Now()))
	return stats, nil
}

// streakFrom counts consecutive UTC days with a vote, walking back from
// today. history must be ordered newest first.
func streakFrom(history []ledgerdomain.HistoryEntry, today time.Time) int {
	streak := 0
	check := today
	for _, h := range history {
		day := clock.StartOfDay(h.VotedAt)
		if day.Equal(check) {
			streak++
			check = check.AddDate(0, 0, -1)
			continue
		}
		if day.Before(check) {
			break
		}
	}
	return streak
}
