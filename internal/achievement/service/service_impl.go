package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	achievementdomain "github.com/smallbiznis/worldpulse/internal/achievement/domain"
	"github.com/smallbiznis/worldpulse/internal/clock"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	"github.com/smallbiznis/worldpulse/internal/observability/metrics"
	"github.com/smallbiznis/worldpulse/pkg/db/option"
	"github.com/smallbiznis/worldpulse/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Countries that do not identify a real location.
var unplacedCountries = map[string]bool{"XX": true, "T1": true}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Ledger  ledgerdomain.Service
	Clock   clock.Clock
	Metrics *metrics.EngineMetrics `optional:"true"`
}

type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    repository.Repository[achievementdomain.Achievement]
	ledger  ledgerdomain.Service
	clock   clock.Clock
	metrics *metrics.EngineMetrics
}

func New(p Params) achievementdomain.Engine {
	return &Engine{
		db:      p.DB,
		log:     p.Log.Named("achievement.engine"),
		genID:   p.GenID,
		repo:    repository.ProvideStore[achievementdomain.Achievement](p.DB),
		ledger:  p.Ledger,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// voterFacts is everything the rules read, loaded before any rule runs.
type voterFacts struct {
	history   []ledgerdomain.HistoryEntry
	granted   map[string]bool
	countries []string
	leading   int64
}

// Evaluate grants every rule the vote satisfies that the voter does not hold
// yet. Grants commit together; a failed read or insert grants nothing.
func (e *Engine) Evaluate(ctx context.Context, req achievementdomain.EvaluateRequest) ([]achievementdomain.Response, error) {
	voterKey := strings.TrimSpace(req.VoterKey)
	if voterKey == "" {
		return nil, nil
	}
	facts, err := e.load(ctx, voterKey)
	if err != nil {
		return nil, err
	}

	votedAt := req.VotedAt
	if votedAt.IsZero() {
		votedAt = e.clock.Now()
	}

	var (
		unlocked []achievementdomain.Response
		codes    []string
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range achievementdomain.Definitions {
			if facts.granted[def.Name] || !satisfies(def, req, votedAt, facts) {
				continue
			}
			granted, ok, err := e.grant(tx, voterKey, def, votedAt)
			if err != nil {
				return err
			}
			if ok {
				unlocked = append(unlocked, granted)
				codes = append(codes, def.Code)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, code := range codes {
		e.metrics.IncAchievementGrant(code)
		e.log.Info("achievement.granted", zap.String("achievement", code))
	}
	return unlocked, nil
}

func (e *Engine) load(ctx context.Context, voterKey string) (*voterFacts, error) {
	history, err := e.ledger.History(ctx, voterKey)
	if err != nil {
		return nil, fmt.Errorf("load vote history: %w", err)
	}
	held, err := e.repo.Find(ctx, &achievementdomain.Achievement{VoterKey: voterKey})
	if err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	countries, err := e.ledger.Countries(ctx, voterKey)
	if err != nil {
		return nil, fmt.Errorf("load countries: %w", err)
	}
	leading, err := e.ledger.CountLeadingChoices(ctx, voterKey)
	if err != nil {
		return nil, fmt.Errorf("load leading choices: %w", err)
	}

	facts := &voterFacts{
		history:   history,
		granted:   make(map[string]bool, len(held)),
		countries: countries,
		leading:   leading,
	}
	for _, a := range held {
		facts.granted[a.Name] = true
	}
	return facts, nil
}

func satisfies(def achievementdomain.Definition, req achievementdomain.EvaluateRequest, votedAt time.Time, facts *voterFacts) bool {
	switch def.Code {
	case achievementdomain.FirstVote.Code:
		return len(facts.history) == 1
	case achievementdomain.EarlyBird.Code:
		return !req.ActiveFrom.IsZero() && !votedAt.After(req.ActiveFrom.Add(achievementdomain.WindowEdge))
	case achievementdomain.NightOwl.Code:
		return !req.ActiveTo.IsZero() && !votedAt.Before(req.ActiveTo.Add(-achievementdomain.WindowEdge))
	case achievementdomain.WeekWarrior.Code:
		return len(facts.history) >= achievementdomain.StreakDays &&
			dailyStreak(facts.history) >= achievementdomain.StreakDays
	case achievementdomain.GlobeTrotter.Code:
		return placedCountries(facts.countries) >= achievementdomain.GlobeTrotterCountries
	case achievementdomain.Contrarian.Code:
		if req.Tally.TotalVotes == 0 {
			return false
		}
		share := float64(req.Tally.Count(req.OptionID)) / float64(req.Tally.TotalVotes)
		return share < achievementdomain.ContrarianShare
	case achievementdomain.Mainstream.Code:
		return facts.leading >= achievementdomain.MainstreamChoices
	default:
		return false
	}
}

// dailyStreak counts consecutive UTC days, back from the most recent one,
// on which the voter voted on a question that opened that day.
func dailyStreak(history []ledgerdomain.HistoryEntry) int {
	seen := map[time.Time]bool{}
	days := make([]time.Time, 0, len(history))
	for _, h := range history {
		if h.ActiveFrom == nil {
			continue
		}
		day := clock.StartOfDay(*h.ActiveFrom)
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	if len(days) == 0 {
		return 0
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	streak := 1
	for i := 1; i < len(days); i++ {
		if days[i-1].Sub(days[i]) != 24*time.Hour {
			break
		}
		streak++
	}
	return streak
}

func placedCountries(countries []string) int {
	n := 0
	for _, c := range countries {
		if !unplacedCountries[strings.ToUpper(c)] {
			n++
		}
	}
	return n
}

// grant inserts the achievement unless the voter already holds it.
func (e *Engine) grant(tx *gorm.DB, voterKey string, def achievementdomain.Definition, at time.Time) (achievementdomain.Response, bool, error) {
	a := &achievementdomain.Achievement{
		ID:          e.genID.Generate(),
		VoterKey:    voterKey,
		Name:        def.Name,
		Description: def.Description,
		UnlockedAt:  at.UTC(),
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(a)
	if res.Error != nil {
		return achievementdomain.Response{}, false, fmt.Errorf("grant %s: %w", def.Code, res.Error)
	}
	if res.RowsAffected == 0 {
		return achievementdomain.Response{}, false, nil
	}
	return achievementdomain.ToResponse(a), true, nil
}

func (e *Engine) ListByVoter(ctx context.Context, voterKey string) ([]achievementdomain.Response, error) {
	voterKey = strings.TrimSpace(voterKey)
	if voterKey == "" {
		return []achievementdomain.Response{}, nil
	}
	items, err := e.repo.Find(ctx, &achievementdomain.Achievement{VoterKey: voterKey},
		option.WithSortBy(option.QuerySortBy{SortBy: "unlocked_at", OrderBy: "asc", Allow: map[string]bool{"unlocked_at": true}}),
	)
	if err != nil {
		return nil, err
	}
	out := make([]achievementdomain.Response, 0, len(items))
	for _, item := range items {
		out = append(out, achievementdomain.ToResponse(item))
	}
	return out, nil
}
