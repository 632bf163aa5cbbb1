package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	taskKeyPrefix     = "review:task:"
	taskListKeyPrefix = "review:task_list:"
)

// TaskCacheRepo is a lookaside cache for single review-task views and for the
// id lists produced by review listings. It is refreshed after writes and reads;
// the relational store stays the source of truth.
type TaskCacheRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

// CachedTask is the serialized review view of a task.
type CachedTask struct {
	ID                int64      `json:"id"`
	ParentID          int64      `json:"parent_id"`
	Status            int        `json:"status"`
	Lon               *float64   `json:"lon,omitempty"`
	Lat               *float64   `json:"lat,omitempty"`
	ReviewStatus      int        `json:"review_status"`
	ReviewRequestedBy *int64     `json:"review_requested_by,omitempty"`
	ReviewedBy        *int64     `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time `json:"reviewed_at,omitempty"`
	ReviewClaimedBy   *int64     `json:"review_claimed_by,omitempty"`
	ReviewClaimedAt   *time.Time `json:"review_claimed_at,omitempty"`
	MapperName        string     `json:"mapper_name,omitempty"`
	ReviewerName      string     `json:"reviewer_name,omitempty"`
}

func NewTaskCacheRepo(client *goredis.Client, ttl time.Duration) *TaskCacheRepo {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TaskCacheRepo{client: client, ttl: ttl}
}

func (r *TaskCacheRepo) RefreshTask(ctx context.Context, task CachedTask) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if task.ID <= 0 {
		return fmt.Errorf("invalid cached task id")
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal cached task: %w", err)
	}

	if err := r.client.Set(ctx, taskKey(task.ID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("refresh cached task: %w", err)
	}

	return nil
}

func (r *TaskCacheRepo) GetTask(ctx context.Context, taskID int64) (CachedTask, bool, error) {
	if r.client == nil {
		return CachedTask{}, false, fmt.Errorf("redis client is nil")
	}

	raw, err := r.client.Get(ctx, taskKey(taskID)).Bytes()
	if err == goredis.Nil {
		return CachedTask{}, false, nil
	}
	if err != nil {
		return CachedTask{}, false, fmt.Errorf("get cached task: %w", err)
	}

	var task CachedTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return CachedTask{}, false, fmt.Errorf("unmarshal cached task: %w", err)
	}

	return task, true, nil
}

func (r *TaskCacheRepo) InvalidateTask(ctx context.Context, taskID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := r.client.Del(ctx, taskKey(taskID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached task: %w", err)
	}

	return nil
}

// StoreIDList caches the resolved identifier set of a review listing.
func (r *TaskCacheRepo) StoreIDList(ctx context.Context, key string, ids []int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return fmt.Errorf("task list cache key is required")
	}

	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal cached task list: %w", err)
	}

	if err := r.client.Set(ctx, taskListKeyPrefix+key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("store cached task list: %w", err)
	}

	return nil
}

func (r *TaskCacheRepo) GetIDList(ctx context.Context, key string) ([]int64, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}

	raw, err := r.client.Get(ctx, taskListKeyPrefix+key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached task list: %w", err)
	}

	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached task list: %w", err)
	}

	return ids, true, nil
}

func taskKey(taskID int64) string {
	return taskKeyPrefix + strconv.FormatInt(taskID, 10)
}
