package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	"github.com/smallbiznis/worldpulse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  ledgerdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  ledgerdomain.Repository
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// Append records a vote. A second vote by the same voter on the same question
// returns ErrAlreadyVoted, including when two appends race.
func (s *Service) Append(ctx context.Context, req ledgerdomain.AppendRequest) (*ledgerdomain.Vote, error) {
	if req.QuestionID == 0 {
		return nil, ledgerdomain.ErrInvalidQuestion
	}
	optionID := strings.TrimSpace(req.OptionID)
	if optionID == "" {
		return nil, ledgerdomain.ErrInvalidOption
	}
	voterKey := strings.TrimSpace(req.VoterKey)
	if voterKey == "" {
		return nil, ledgerdomain.ErrInvalidVoter
	}

	vote := &ledgerdomain.Vote{
		ID:          s.genID.Generate(),
		QuestionID:  req.QuestionID,
		OptionID:    optionID,
		CountryCode: req.CountryCode,
		VoterKey:    voterKey,
		VotedAt:     req.VotedAt.UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, vote); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, ledgerdomain.ErrAlreadyVoted
		}
		return nil, fmt.Errorf("append vote: %w", err)
	}
	return vote, nil
}

func (s *Service) Find(ctx context.Context, questionID snowflake.ID, voterKey string) (*ledgerdomain.Vote, error) {
	return s.repo.FindByVoter(ctx, s.db, questionID, voterKey)
}

func (s *Service) ListByQuestion(ctx context.Context, questionID snowflake.ID) ([]ledgerdomain.Vote, error) {
	return s.repo.ListByQuestion(ctx, s.db, questionID)
}

func (s *Service) CountByOption(ctx context.Context, questionID snowflake.ID) (map[string]int64, error) {
	rows, err := s.repo.CountByOption(ctx, s.db, questionID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.OptionID] = row.Count
	}
	return counts, nil
}

func (s *Service) History(ctx context.Context, voterKey string) ([]ledgerdomain.HistoryEntry, error) {
	return s.repo.History(ctx, s.db, voterKey)
}

func (s *Service) Countries(ctx context.Context, voterKey string) ([]string, error) {
	return s.repo.Countries(ctx, s.db, voterKey)
}

func (s *Service) CountLeadingChoices(ctx context.Context, voterKey string) (int64, error) {
	return s.repo.CountLeadingChoices(ctx, s.db, voterKey)
}
