package gormstore

import (
	"context"
	"time"

	"github.com/smallbiznis/worldpulse/internal/tally"
	"gorm.io/gorm"
)

// TallyRecord is one row of tally_records.
type TallyRecord struct {
	Scope       string    `gorm:"type:varchar(16);primaryKey"`
	QuestionID  string    `gorm:"type:varchar(32);primaryKey"`
	CountryCode string    `gorm:"type:varchar(2);primaryKey"`
	OptionID    string    `gorm:"type:varchar(32);primaryKey"`
	Count       int64     `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (TallyRecord) TableName() string { return "tally_records" }

// Store keeps actor checkpoints in the relational database.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) LoadCounter(ctx context.Context, questionID, countryCode string) (tally.CounterState, error) {
	var rows []TallyRecord
	err := s.db.WithContext(ctx).Raw(
		`SELECT scope, question_id, country_code, option_id, count, updated_at
		 FROM tally_records WHERE scope = ? AND question_id = ? AND country_code = ?`,
		tally.ScopeCounter,
		questionID,
		countryCode,
	).Scan(&rows).Error
	if err != nil {
		return tally.CounterState{}, err
	}
	return tally.ExpandCounter(toRecords(rows)), nil
}

func (s *Store) SaveCounter(ctx context.Context, questionID, countryCode string, state tally.CounterState) error {
	rows := fromRecords(tally.FlattenCounter(questionID, countryCode, state, time.Now().UTC()))
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`DELETE FROM tally_records WHERE scope = ? AND question_id = ? AND country_code = ?`,
			tally.ScopeCounter,
			questionID,
			countryCode,
		).Error; err != nil {
			return err
		}
		return insert(tx, rows)
	})
}

func (s *Store) LoadGlobal(ctx context.Context, questionID string) (tally.GlobalState, error) {
	var rows []TallyRecord
	err := s.db.WithContext(ctx).Raw(
		`SELECT scope, question_id, country_code, option_id, count, updated_at
		 FROM tally_records WHERE scope = ? AND question_id = ?`,
		tally.ScopeGlobal,
		questionID,
	).Scan(&rows).Error
	if err != nil {
		return tally.GlobalState{}, err
	}
	return tally.ExpandGlobal(toRecords(rows)), nil
}

func (s *Store) SaveGlobal(ctx context.Context, questionID string, state tally.GlobalState) error {
	rows := fromRecords(tally.FlattenGlobal(questionID, state))
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`DELETE FROM tally_records WHERE scope = ? AND question_id = ?`,
			tally.ScopeGlobal,
			questionID,
		).Error; err != nil {
			return err
		}
		return insert(tx, rows)
	})
}

func (s *Store) DeleteQuestion(ctx context.Context, questionID string) error {
	return s.db.WithContext(ctx).Exec(
		`DELETE FROM tally_records WHERE question_id = ?`,
		questionID,
	).Error
}

func insert(tx *gorm.DB, rows []TallyRecord) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, 200).Error
}

func toRecords(rows []TallyRecord) []tally.Record {
	out := make([]tally.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, tally.Record{
			Scope:       row.Scope,
			QuestionID:  row.QuestionID,
			CountryCode: row.CountryCode,
			OptionID:    row.OptionID,
			Count:       row.Count,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return out
}

func fromRecords(records []tally.Record) []TallyRecord {
	out := make([]TallyRecord, 0, len(records))
	for _, r := range records {
		out = append(out, TallyRecord{
			Scope:       r.Scope,
			QuestionID:  r.QuestionID,
			CountryCode: r.CountryCode,
			OptionID:    r.OptionID,
			Count:       r.Count,
			UpdatedAt:   r.UpdatedAt.UTC(),
		})
	}
	return out
}

var _ tally.StateStore = (*Store)(nil)
