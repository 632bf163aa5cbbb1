package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestPublishReviewEventReachesSubscriber(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewNotificationRepo(client)

	sub := client.Subscribe(context.Background(), "review:events")
	t.Cleanup(func() {
		_ = sub.Close()
	})
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	event := ReviewEvent{
		ID:   "evt-1",
		Kind: ReviewEventClaimed,
		Task: CachedTask{ID: 11, ParentID: 2},
		At:   time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := repo.PublishReviewEvent(context.Background(), event); err != nil {
		t.Fatalf("publish review event: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive review event: %v", err)
	}

	var got ReviewEvent
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("unmarshal review event: %v", err)
	}
	if got.ID != "evt-1" || got.Kind != ReviewEventClaimed || got.Task.ID != 11 {
		t.Fatalf("unexpected review event: %+v", got)
	}
}

func TestPublishReviewEventRejectsInvalidPayload(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewNotificationRepo(client)

	if err := repo.PublishReviewEvent(context.Background(), ReviewEvent{Kind: ReviewEventClaimed}); err == nil {
		t.Fatalf("expected error for missing task id")
	}
	if err := repo.PublishReviewEvent(context.Background(), ReviewEvent{Task: CachedTask{ID: 1}}); err == nil {
		t.Fatalf("expected error for missing kind")
	}
}
