package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrTaskReviewNotFound  = errors.New("task review not found")
	ErrReviewClaimConflict = errors.New("review claim conflict")
)

type ReviewRepo struct {
	pool *pgxpool.Pool
}

func NewReviewRepo(pool *pgxpool.Pool) *ReviewRepo {
	return &ReviewRepo{pool: pool}
}

// TaskReviewRecord is the fully joined review view of a task.
type TaskReviewRecord struct {
	TaskID            int64
	ParentID          int64
	TaskStatus        int
	Lon               *float64
	Lat               *float64
	ReviewStatus      int
	ReviewRequestedBy *int64
	ReviewedBy        *int64
	ReviewedAt        *time.Time
	ReviewClaimedBy   *int64
	ReviewClaimedAt   *time.Time
	MapperName        *string
	ReviewerName      *string
}

type ReviewMetricsRecord struct {
	Total         int
	Requested     int
	Approved      int
	Rejected      int
	Assisted      int
	Disputed      int
	Fixed         int
	FalsePositive int
	Skipped       int
	AlreadyFixed  int
	TooHard       int
}

type TaskPointRecord struct {
	TaskID int64
	Lon    float64
	Lat    float64
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *ReviewRepo) GetTaskWithReview(ctx context.Context, taskID int64) (TaskReviewRecord, error) {
	if r.pool == nil {
		return TaskReviewRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if taskID <= 0 {
		return TaskReviewRecord{}, fmt.Errorf("invalid task id")
	}

	return r.getTaskWithReview(ctx, r.pool, taskID)
}

// ClaimTask releases every claim the user currently holds and claims the
// target task, all inside one transaction. The claim update is conditional on
// the task still being unclaimed; losing that race rolls back the releases
// and returns ErrReviewClaimConflict.
func (r *ReviewRepo) ClaimTask(ctx context.Context, taskID, userID int64, claimedAt time.Time) (TaskReviewRecord, error) {
	if r.pool == nil {
		return TaskReviewRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if taskID <= 0 || userID <= 0 {
		return TaskReviewRecord{}, fmt.Errorf("invalid claim payload")
	}

	var record TaskReviewRecord
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(txCtx, `
UPDATE task_review
SET review_claimed_by = NULL, review_claimed_at = NULL
WHERE review_claimed_by = $1
`, userID); err != nil {
			return fmt.Errorf("release prior claims: %w", err)
		}

		tag, err := tx.Exec(txCtx, `
UPDATE task_review
SET review_claimed_by = $1, review_claimed_at = $2
WHERE task_id = $3 AND review_claimed_at IS NULL
`, userID, claimedAt.UTC(), taskID)
		if err != nil {
			return fmt.Errorf("claim task review: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrReviewClaimConflict
		}

		record, err = r.getTaskWithReview(txCtx, tx, taskID)
		return err
	})
	if err != nil {
		return TaskReviewRecord{}, err
	}

	return record, nil
}

// CancelClaim clears the claim fields, conditional on the caller still
// holding the claim. Zero affected rows means someone else already cleared
// or re-claimed it.
func (r *ReviewRepo) CancelClaim(ctx context.Context, taskID, userID int64) (TaskReviewRecord, error) {
	if r.pool == nil {
		return TaskReviewRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if taskID <= 0 || userID <= 0 {
		return TaskReviewRecord{}, fmt.Errorf("invalid claim payload")
	}

	var record TaskReviewRecord
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(txCtx, `
UPDATE task_review
SET review_claimed_by = NULL, review_claimed_at = NULL
WHERE task_id = $1 AND review_claimed_by = $2
`, taskID, userID)
		if err != nil {
			return fmt.Errorf("cancel task review claim: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrReviewClaimConflict
		}

		record, err = r.getTaskWithReview(txCtx, tx, taskID)
		return err
	})
	if err != nil {
		return TaskReviewRecord{}, err
	}

	return record, nil
}

// CountAndList runs the count query and the data query of one compiled search
// in a single transaction, so the count always matches the unpaginated result
// set the page was cut from.
func (r *ReviewRepo) CountAndList(ctx context.Context, search ReviewSearch) (int, []TaskReviewRecord, error) {
	if r.pool == nil {
		return 0, []TaskReviewRecord{}, nil
	}

	query := BuildReviewSearch(search)

	var (
		count   int
		records []TaskReviewRecord
	)
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		if err := tx.QueryRow(txCtx, query.CountSQL, query.Args...).Scan(&count); err != nil {
			return fmt.Errorf("count review tasks: %w", err)
		}

		rows, err := tx.Query(txCtx, query.DataSQL, query.Args...)
		if err != nil {
			return fmt.Errorf("list review tasks: %w", err)
		}
		defer rows.Close()

		records = make([]TaskReviewRecord, 0, 16)
		for rows.Next() {
			record, scanErr := scanTaskReview(rows)
			if scanErr != nil {
				return scanErr
			}
			records = append(records, record)
		}
		if rows.Err() != nil {
			return fmt.Errorf("iterate review tasks: %w", rows.Err())
		}

		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	return count, records, nil
}

// Metrics runs the one-pass aggregation; it always yields exactly one row.
func (r *ReviewRepo) Metrics(ctx context.Context, search ReviewSearch) (ReviewMetricsRecord, error) {
	if r.pool == nil {
		return ReviewMetricsRecord{}, nil
	}

	sql, args := BuildReviewMetrics(search)

	var m ReviewMetricsRecord
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(
		&m.Total,
		&m.Requested,
		&m.Approved,
		&m.Rejected,
		&m.Assisted,
		&m.Disputed,
		&m.Fixed,
		&m.FalsePositive,
		&m.Skipped,
		&m.AlreadyFixed,
		&m.TooHard,
	); err != nil {
		return ReviewMetricsRecord{}, fmt.Errorf("aggregate review metrics: %w", err)
	}

	return m, nil
}

// Points returns the located tasks of the scoped set for clustering.
func (r *ReviewRepo) Points(ctx context.Context, search ReviewSearch) ([]TaskPointRecord, error) {
	if r.pool == nil {
		return []TaskPointRecord{}, nil
	}

	sql, args := BuildReviewPoints(search)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list review task points: %w", err)
	}
	defer rows.Close()

	points := make([]TaskPointRecord, 0, 64)
	for rows.Next() {
		var point TaskPointRecord
		if err := rows.Scan(&point.TaskID, &point.Lon, &point.Lat); err != nil {
			return nil, fmt.Errorf("scan review task point: %w", err)
		}
		points = append(points, point)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate review task points: %w", rows.Err())
	}

	return points, nil
}

// ReleaseExpiredClaims clears claim fields older than the cutoff and reports
// how many rows were released.
func (r *ReviewRepo) ReleaseExpiredClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE task_review
SET review_claimed_by = NULL, review_claimed_at = NULL
WHERE review_claimed_at IS NOT NULL AND review_claimed_at < $1
`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("release expired review claims: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *ReviewRepo) getTaskWithReview(ctx context.Context, q rowQuerier, taskID int64) (TaskReviewRecord, error) {
	row := q.QueryRow(ctx, "SELECT"+reviewSelectColumns+reviewFromClause+"\nWHERE tasks.id = $1", taskID)

	record, err := scanTaskReview(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TaskReviewRecord{}, ErrTaskReviewNotFound
		}
		return TaskReviewRecord{}, err
	}

	return record, nil
}

func scanTaskReview(row pgx.Row) (TaskReviewRecord, error) {
	var record TaskReviewRecord
	if err := row.Scan(
		&record.TaskID,
		&record.ParentID,
		&record.TaskStatus,
		&record.Lon,
		&record.Lat,
		&record.ReviewStatus,
		&record.ReviewRequestedBy,
		&record.ReviewedBy,
		&record.ReviewedAt,
		&record.ReviewClaimedBy,
		&record.ReviewClaimedAt,
		&record.MapperName,
		&record.ReviewerName,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TaskReviewRecord{}, err
		}
		return TaskReviewRecord{}, fmt.Errorf("scan task review row: %w", err)
	}

	return record, nil
}
