package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const taskLockKeyPrefix = "task_lock:"

// TaskLockRepo is the general exclusive-edit lock on a task, independent of
// the review claim. The review flow only ever releases it best-effort.
type TaskLockRepo struct {
	client *goredis.Client
}

func NewTaskLockRepo(client *goredis.Client) *TaskLockRepo {
	return &TaskLockRepo{client: client}
}

func (r *TaskLockRepo) Acquire(ctx context.Context, taskID, userID int64, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if taskID <= 0 || userID <= 0 || ttl <= 0 {
		return false, fmt.Errorf("invalid task lock payload")
	}

	ok, err := r.client.SetNX(ctx, taskLockKey(taskID), userID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire task lock: %w", err)
	}

	return ok, nil
}

// Release deletes the lock only when the given user holds it. A missing lock
// or a lock held by someone else is not an error.
func (r *TaskLockRepo) Release(ctx context.Context, taskID, userID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if taskID <= 0 || userID <= 0 {
		return fmt.Errorf("invalid task lock payload")
	}

	holder, err := r.client.Get(ctx, taskLockKey(taskID)).Int64()
	if err == goredis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read task lock holder: %w", err)
	}
	if holder != userID {
		return nil
	}

	if err := r.client.Del(ctx, taskLockKey(taskID)).Err(); err != nil {
		return fmt.Errorf("release task lock: %w", err)
	}

	return nil
}

func taskLockKey(taskID int64) string {
	return taskLockKeyPrefix + strconv.FormatInt(taskID, 10)
}
