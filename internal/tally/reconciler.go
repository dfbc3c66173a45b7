package tally

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// UnknownCountry is used when the edge supplies no country.
const UnknownCountry = "XX"

type VoteSource interface {
	ListByQuestion(ctx context.Context, questionID snowflake.ID) ([]ledgerdomain.Vote, error)
}

// Reconciler rebuilds a question's actor state from the ledger. Votes whose
// fan-out is still in flight while it runs can be counted twice, so run it
// on archived questions or during quiet periods.
type Reconciler struct {
	votes    VoteSource
	store    StateStore
	registry *Registry
	log      *zap.Logger
}

type ReconcilerParams struct {
	fx.In

	Votes    ledgerdomain.Service
	Store    StateStore
	Registry *Registry
	Log      *zap.Logger
}

func NewReconciler(p ReconcilerParams) *Reconciler {
	return &Reconciler{
		votes:    p.Votes,
		store:    p.Store,
		registry: p.Registry,
		log:      p.Log.Named("tally.reconciler"),
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, questionID string) (GlobalTally, error) {
	id, err := snowflake.ParseString(questionID)
	if err != nil {
		return GlobalTally{}, fmt.Errorf("parse question id: %w", err)
	}

	start := time.Now()
	votes, err := r.votes.ListByQuestion(ctx, id)
	if err != nil {
		return GlobalTally{}, fmt.Errorf("read ledger: %w", err)
	}
	rebuilt := Replay(votes)

	if err := r.store.DeleteQuestion(ctx, questionID); err != nil {
		return GlobalTally{}, fmt.Errorf("clear checkpoints: %w", err)
	}
	for country, state := range rebuilt.Counters {
		if err := r.store.SaveCounter(ctx, questionID, country, state); err != nil {
			return GlobalTally{}, fmt.Errorf("save counter %s: %w", country, err)
		}
	}
	if err := r.store.SaveGlobal(ctx, questionID, rebuilt.Global); err != nil {
		return GlobalTally{}, fmt.Errorf("save aggregate: %w", err)
	}
	r.registry.reload(questionID, rebuilt.Counters, rebuilt.Global)

	tally := Format(questionID, rebuilt.Global)
	r.log.Info("tally.reconciled",
		zap.String("question_id", questionID),
		zap.Int("votes", len(votes)),
		zap.Int("countries", len(rebuilt.Counters)),
		zap.Int64("total_votes", tally.TotalVotes),
		zap.Duration("duration", time.Since(start)),
	)
	return tally, nil
}
