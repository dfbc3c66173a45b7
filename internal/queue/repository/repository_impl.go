package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	queuedomain "github.com/smallbiznis/worldpulse/internal/queue/domain"
	"gorm.io/gorm"
)

const submissionColumns = `id, text, options, submitted_at, submitted_by_key, upvotes, status`

type repo struct{}

func Provide() queuedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *queuedomain.Submission) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO submissions (id, text, options, submitted_at, submitted_by_key, upvotes, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.Text,
		s.Options,
		s.SubmittedAt,
		s.SubmittedByKey,
		s.Upvotes,
		s.Status,
	).Error
}

func (r *repo) InsertUpvote(ctx context.Context, db *gorm.DB, submissionID snowflake.ID, voterKey string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO submission_upvotes (submission_id, voter_key, created_at) VALUES (?, ?, ?)`,
		submissionID,
		voterKey,
		at,
	).Error
}

func (r *repo) IncrementUpvotes(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE submissions SET upvotes = upvotes + 1 WHERE id = ?`,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*queuedomain.Submission, error) {
	var s queuedomain.Submission
	err := db.WithContext(ctx).Raw(
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) CountPendingByAuthor(ctx context.Context, db *gorm.DB, voterKey string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM submissions WHERE submitted_by_key = ? AND status = ?`,
		voterKey,
		queuedomain.StatusPending,
	).Scan(&count).Error
	return count, err
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, limit int) ([]queuedomain.Submission, error) {
	var items []queuedomain.Submission
	err := db.WithContext(ctx).Raw(
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE status = ?
		 ORDER BY upvotes DESC, submitted_at ASC, id ASC
		 LIMIT ?`,
		queuedomain.StatusPending,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpvotedBy(ctx context.Context, db *gorm.DB, voterKey string, ids []snowflake.ID) ([]snowflake.ID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT submission_id FROM submission_upvotes WHERE voter_key = ? AND submission_id IN ?`,
		voterKey,
		ids,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to queuedomain.Status) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE submissions SET status = ? WHERE id = ? AND status = ?`,
		to,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) DeletePending(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM submissions WHERE id = ? AND status = ?`,
		id,
		queuedomain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := db.WithContext(ctx).Exec(
		`DELETE FROM submission_upvotes WHERE submission_id = ?`,
		id,
	).Error
	return err == nil, err
}
