package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return mr, client
}

func TestTaskCacheRoundTrip(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewTaskCacheRepo(client, time.Minute)

	claimedBy := int64(7)
	claimedAt := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	stored := CachedTask{
		ID:              11,
		ParentID:        2,
		Status:          1,
		ReviewStatus:    0,
		ReviewClaimedBy: &claimedBy,
		ReviewClaimedAt: &claimedAt,
		MapperName:      "alice",
	}

	if err := repo.RefreshTask(context.Background(), stored); err != nil {
		t.Fatalf("refresh task: %v", err)
	}

	got, found, err := repo.GetTask(context.Background(), 11)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !found {
		t.Fatalf("expected cached task")
	}
	if got.ID != 11 || got.MapperName != "alice" {
		t.Fatalf("unexpected cached task: %+v", got)
	}
	if got.ReviewClaimedBy == nil || *got.ReviewClaimedBy != claimedBy {
		t.Fatalf("claim holder lost in cache: %+v", got)
	}
	if got.ReviewClaimedAt == nil || !got.ReviewClaimedAt.Equal(claimedAt) {
		t.Fatalf("claim time lost in cache: %+v", got)
	}
}

func TestTaskCacheMiss(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewTaskCacheRepo(client, time.Minute)

	_, found, err := repo.GetTask(context.Background(), 404)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if found {
		t.Fatalf("expected cache miss")
	}
}

func TestTaskCacheExpiry(t *testing.T) {
	mr, client := newTestClient(t)
	repo := NewTaskCacheRepo(client, time.Minute)

	if err := repo.RefreshTask(context.Background(), CachedTask{ID: 11}); err != nil {
		t.Fatalf("refresh task: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	_, found, err := repo.GetTask(context.Background(), 11)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if found {
		t.Fatalf("cached task must expire")
	}
}

func TestTaskCacheInvalidate(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewTaskCacheRepo(client, time.Minute)

	if err := repo.RefreshTask(context.Background(), CachedTask{ID: 11}); err != nil {
		t.Fatalf("refresh task: %v", err)
	}
	if err := repo.InvalidateTask(context.Background(), 11); err != nil {
		t.Fatalf("invalidate task: %v", err)
	}

	_, found, err := repo.GetTask(context.Background(), 11)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if found {
		t.Fatalf("invalidated task must be gone")
	}
}

func TestTaskIDListRoundTrip(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewTaskCacheRepo(client, time.Minute)

	if err := repo.StoreIDList(context.Background(), "7:1", []int64{3, 1, 2}); err != nil {
		t.Fatalf("store id list: %v", err)
	}

	ids, found, err := repo.GetIDList(context.Background(), "7:1")
	if err != nil {
		t.Fatalf("get id list: %v", err)
	}
	if !found {
		t.Fatalf("expected cached id list")
	}
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 1 || ids[2] != 2 {
		t.Fatalf("id list order must survive the cache: %v", ids)
	}
}

func TestTaskCacheRejectsInvalidInput(t *testing.T) {
	_, client := newTestClient(t)
	repo := NewTaskCacheRepo(client, time.Minute)

	if err := repo.RefreshTask(context.Background(), CachedTask{}); err == nil {
		t.Fatalf("expected error for missing task id")
	}
	if err := repo.StoreIDList(context.Background(), "", nil); err == nil {
		t.Fatalf("expected error for empty list key")
	}
}
