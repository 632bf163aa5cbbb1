package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const reviewEventsChannel = "review:events"

const (
	ReviewEventClaimed  = "review-claimed"
	ReviewEventReleased = "review-released"
)

// NotificationRepo broadcasts claim/update events over a pub/sub channel.
// Delivery is fire-and-forget; subscribers that are not listening miss the
// event.
type NotificationRepo struct {
	client *goredis.Client
}

type ReviewEvent struct {
	ID   string     `json:"id"`
	Kind string     `json:"kind"`
	Task CachedTask `json:"task"`
	At   time.Time  `json:"at"`
}

func NewNotificationRepo(client *goredis.Client) *NotificationRepo {
	return &NotificationRepo{client: client}
}

func (r *NotificationRepo) PublishReviewEvent(ctx context.Context, event ReviewEvent) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if event.Kind == "" || event.Task.ID <= 0 {
		return fmt.Errorf("invalid review event payload")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal review event: %w", err)
	}

	if err := r.client.Publish(ctx, reviewEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish review event: %w", err)
	}

	return nil
}
