package moderation

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Chain runs the heuristic first and consults the judge only for content
// that passed it. An unreachable judge does not block submissions.
type Chain struct {
	heuristic Moderator
	judge     Moderator
	log       *zap.Logger
}

type ChainParams struct {
	fx.In

	Heuristic *Heuristic
	Judge     *HTTPJudge `optional:"true"`
	Log       *zap.Logger
}

func NewChain(p ChainParams) Moderator {
	c := &Chain{heuristic: p.Heuristic, log: p.Log.Named("moderation")}
	if p.Judge != nil {
		c.judge = p.Judge
	}
	return c
}

func (c *Chain) Review(ctx context.Context, text string, options []string) (Verdict, error) {
	verdict, err := c.heuristic.Review(ctx, text, options)
	if err != nil {
		return Verdict{}, err
	}
	if !verdict.Allowed {
		c.log.Info("moderation.rejected", zap.String("stage", "heuristic"), zap.String("reason", verdict.Reason))
		return verdict, nil
	}
	if c.judge == nil {
		return verdict, nil
	}

	verdict, err = c.judge.Review(ctx, text, options)
	if err != nil {
		c.log.Warn("moderation.judge.unavailable", zap.Error(err))
		return allow(), nil
	}
	if !verdict.Allowed {
		c.log.Info("moderation.rejected", zap.String("stage", "judge"), zap.String("reason", verdict.Reason))
	}
	return verdict, nil
}
