package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	"gorm.io/gorm"
)

const questionColumns = `id, text, options, status, active_from, active_to, created_at`

type repo struct{}

func Provide() questiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, q *questiondomain.Question) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO questions (id, text, options, status, active_from, active_to, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID,
		q.Text,
		q.Options,
		q.Status,
		q.ActiveFrom,
		q.ActiveTo,
		q.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*questiondomain.Question, error) {
	return r.findOne(ctx, db,
		`SELECT `+questionColumns+` FROM questions WHERE id = ?`,
		id,
	)
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB) (*questiondomain.Question, error) {
	return r.findOne(ctx, db,
		`SELECT `+questionColumns+` FROM questions WHERE status = ? ORDER BY active_from DESC LIMIT 1`,
		questiondomain.StatusActive,
	)
}

// FindOldestPending returns the earliest inserted pending question.
func (r *repo) FindOldestPending(ctx context.Context, db *gorm.DB) (*questiondomain.Question, error) {
	return r.findOne(ctx, db,
		`SELECT `+questionColumns+` FROM questions WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1`,
		questiondomain.StatusPending,
	)
}

func (r *repo) ArchiveActive(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE questions SET status = ? WHERE status = ?`,
		questiondomain.StatusArchived,
		questiondomain.StatusActive,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Activate(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE questions SET status = ?, active_from = ?, active_to = ?
		 WHERE id = ? AND status = ?`,
		questiondomain.StatusActive,
		from,
		to,
		id,
		questiondomain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListArchived returns archived questions, most recently closed first.
func (r *repo) ListArchived(ctx context.Context, db *gorm.DB, before *questiondomain.ArchiveCursor, limit int) ([]questiondomain.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE status = ?`
	args := []any{questiondomain.StatusArchived}
	if before != nil {
		query += ` AND (active_to < ? OR (active_to = ? AND id < ?))`
		args = append(args, before.ActiveTo, before.ActiveTo, before.ID)
	}
	query += ` ORDER BY active_to DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var items []questiondomain.Question
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeletePending(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM questions WHERE id = ? AND status = ?`,
		id,
		questiondomain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM questions`).Scan(&count).Error
	return count, err
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*questiondomain.Question, error) {
	var q questiondomain.Question
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&q).Error; err != nil {
		return nil, err
	}
	if q.ID == 0 {
		return nil, nil
	}
	return &q, nil
}
