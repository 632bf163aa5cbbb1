package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

type UserRecord struct {
	ID          int64
	OSMID       int64
	Name        string
	IsSuperUser bool
	IsReviewer  bool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetByID(ctx context.Context, userID int64) (UserRecord, error) {
	if r.pool == nil {
		return UserRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return UserRecord{}, fmt.Errorf("invalid user id")
	}

	var user UserRecord
	err := r.pool.QueryRow(ctx, `
SELECT id, osm_id, name, is_super_user, is_reviewer
FROM users
WHERE id = $1
`, userID).Scan(
		&user.ID,
		&user.OSMID,
		&user.Name,
		&user.IsSuperUser,
		&user.IsReviewer,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}
