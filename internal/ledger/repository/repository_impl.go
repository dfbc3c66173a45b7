package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, v *ledgerdomain.Vote) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO votes (id, question_id, option_id, country_code, voter_key, voted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID,
		v.QuestionID,
		v.OptionID,
		v.CountryCode,
		v.VoterKey,
		v.VotedAt,
	).Error
}

func (r *repo) FindByVoter(ctx context.Context, db *gorm.DB, questionID snowflake.ID, voterKey string) (*ledgerdomain.Vote, error) {
	var vote ledgerdomain.Vote
	err := db.WithContext(ctx).Raw(
		`SELECT id, question_id, option_id, country_code, voter_key, voted_at
		 FROM votes WHERE question_id = ? AND voter_key = ?`,
		questionID,
		voterKey,
	).Scan(&vote).Error
	if err != nil {
		return nil, err
	}
	if vote.ID == 0 {
		return nil, nil
	}
	return &vote, nil
}

// ListByQuestion returns votes in ledger order. Snowflake ids are time ordered.
func (r *repo) ListByQuestion(ctx context.Context, db *gorm.DB, questionID snowflake.ID) ([]ledgerdomain.Vote, error) {
	var votes []ledgerdomain.Vote
	err := db.WithContext(ctx).Raw(
		`SELECT id, question_id, option_id, country_code, voter_key, voted_at
		 FROM votes WHERE question_id = ? ORDER BY id ASC`,
		questionID,
	).Scan(&votes).Error
	if err != nil {
		return nil, err
	}
	return votes, nil
}

func (r *repo) CountByOption(ctx context.Context, db *gorm.DB, questionID snowflake.ID) ([]ledgerdomain.OptionCount, error) {
	var counts []ledgerdomain.OptionCount
	err := db.WithContext(ctx).Raw(
		`SELECT option_id, COUNT(*) AS count
		 FROM votes WHERE question_id = ?
		 GROUP BY option_id`,
		questionID,
	).Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *repo) History(ctx context.Context, db *gorm.DB, voterKey string) ([]ledgerdomain.HistoryEntry, error) {
	var entries []ledgerdomain.HistoryEntry
	err := db.WithContext(ctx).Raw(
		`SELECT v.question_id, v.option_id, v.country_code, v.voted_at, q.active_from
		 FROM votes v
		 JOIN questions q ON q.id = v.question_id
		 WHERE v.voter_key = ?
		 ORDER BY v.voted_at DESC, v.id DESC`,
		voterKey,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) Countries(ctx context.Context, db *gorm.DB, voterKey string) ([]string, error) {
	var countries []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT country_code FROM votes WHERE voter_key = ? ORDER BY country_code`,
		voterKey,
	).Scan(&countries).Error
	if err != nil {
		return nil, err
	}
	return countries, nil
}

// CountLeadingChoices counts questions where the voter picked an option with
// the highest vote count. Tied leaders all count as leading.
func (r *repo) CountLeadingChoices(ctx context.Context, db *gorm.DB, voterKey string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`WITH counts AS (
			SELECT question_id, option_id, COUNT(*) AS c
			FROM votes
			WHERE question_id IN (SELECT question_id FROM votes WHERE voter_key = ?)
			GROUP BY question_id, option_id
		), leaders AS (
			SELECT question_id, MAX(c) AS top FROM counts GROUP BY question_id
		)
		SELECT COUNT(*)
		FROM votes mine
		JOIN counts ON counts.question_id = mine.question_id AND counts.option_id = mine.option_id
		JOIN leaders ON leaders.question_id = mine.question_id AND leaders.top = counts.c
		WHERE mine.voter_key = ?`,
		voterKey,
		voterKey,
	).Scan(&count).Error
	return count, err
}
