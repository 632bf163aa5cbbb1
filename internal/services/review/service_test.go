package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zerebubuth/maproulette2/internal/domain/enums"
	pgrepo "github.com/zerebubuth/maproulette2/internal/repo/postgres"
	redrepo "github.com/zerebubuth/maproulette2/internal/repo/redis"
)

type reviewStoreStub struct {
	task      pgrepo.TaskReviewRecord
	getErr    error
	claim     pgrepo.TaskReviewRecord
	claimErr  error
	cancel    pgrepo.TaskReviewRecord
	cancelErr error

	claimCalls  int
	cancelCalls int

	lastSearch pgrepo.ReviewSearch
	count      int
	records    []pgrepo.TaskReviewRecord
	listErr    error

	metrics pgrepo.ReviewMetricsRecord
	points  []pgrepo.TaskPointRecord
}

func (s *reviewStoreStub) GetTaskWithReview(_ context.Context, _ int64) (pgrepo.TaskReviewRecord, error) {
	return s.task, s.getErr
}

func (s *reviewStoreStub) ClaimTask(_ context.Context, _, _ int64, _ time.Time) (pgrepo.TaskReviewRecord, error) {
	s.claimCalls++
	return s.claim, s.claimErr
}

func (s *reviewStoreStub) CancelClaim(_ context.Context, _, _ int64) (pgrepo.TaskReviewRecord, error) {
	s.cancelCalls++
	return s.cancel, s.cancelErr
}

func (s *reviewStoreStub) CountAndList(_ context.Context, search pgrepo.ReviewSearch) (int, []pgrepo.TaskReviewRecord, error) {
	s.lastSearch = search
	return s.count, s.records, s.listErr
}

func (s *reviewStoreStub) Metrics(_ context.Context, search pgrepo.ReviewSearch) (pgrepo.ReviewMetricsRecord, error) {
	s.lastSearch = search
	return s.metrics, nil
}

func (s *reviewStoreStub) Points(_ context.Context, search pgrepo.ReviewSearch) ([]pgrepo.TaskPointRecord, error) {
	s.lastSearch = search
	return s.points, nil
}

type cacheStub struct {
	refreshed []redrepo.CachedTask
	listKeys  []string
	err       error
}

func (s *cacheStub) RefreshTask(_ context.Context, task redrepo.CachedTask) error {
	s.refreshed = append(s.refreshed, task)
	return s.err
}

func (s *cacheStub) StoreIDList(_ context.Context, key string, _ []int64) error {
	s.listKeys = append(s.listKeys, key)
	return s.err
}

type lockerStub struct {
	released []int64
	err      error
}

func (s *lockerStub) Release(_ context.Context, taskID, _ int64) error {
	s.released = append(s.released, taskID)
	return s.err
}

type notifierStub struct {
	events []redrepo.ReviewEvent
	err    error
}

func (s *notifierStub) PublishReviewEvent(_ context.Context, event redrepo.ReviewEvent) error {
	s.events = append(s.events, event)
	return s.err
}

type limiterStub struct {
	retryAfter int64
	ok         bool
	err        error
	calls      int
}

func (s *limiterStub) AllowClaim(_ context.Context, _ int64) (int64, bool, error) {
	s.calls++
	return s.retryAfter, s.ok, s.err
}

func int64Ptr(v int64) *int64 { return &v }

func reviewerUser() User {
	return User{ID: 7, OSMID: 700, Name: "reviewer", IsReviewer: true}
}

func claimedRecord(taskID, claimedBy int64) pgrepo.TaskReviewRecord {
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return pgrepo.TaskReviewRecord{
		TaskID:            taskID,
		ParentID:          2,
		TaskStatus:        int(enums.TaskStatusFixed),
		ReviewStatus:      int(enums.ReviewStatusRequested),
		ReviewRequestedBy: int64Ptr(3),
		ReviewClaimedBy:   int64Ptr(claimedBy),
		ReviewClaimedAt:   &at,
	}
}

func TestStartReviewClaimsUnclaimedTask(t *testing.T) {
	store := &reviewStoreStub{
		task:  pgrepo.TaskReviewRecord{TaskID: 11, ReviewStatus: int(enums.ReviewStatusRequested)},
		claim: claimedRecord(11, 7),
	}
	cache := &cacheStub{}
	locker := &lockerStub{}
	notifier := &notifierStub{}

	svc := NewService(store, nil, zap.NewNop())
	svc.AttachCache(cache)
	svc.AttachLocker(locker)
	svc.AttachNotifier(notifier)

	task, err := svc.StartReview(context.Background(), reviewerUser(), 11)
	if err != nil {
		t.Fatalf("start review: %v", err)
	}
	if task.Review.ClaimedBy == nil || *task.Review.ClaimedBy != 7 {
		t.Fatalf("claim not reflected in task: %+v", task.Review)
	}
	if store.claimCalls != 1 {
		t.Fatalf("unexpected claim calls: %d", store.claimCalls)
	}

	if len(locker.released) != 1 || locker.released[0] != 11 {
		t.Fatalf("edit lock not released: %v", locker.released)
	}
	if len(notifier.events) != 1 || notifier.events[0].Kind != redrepo.ReviewEventClaimed {
		t.Fatalf("claim event not published: %+v", notifier.events)
	}
	if len(cache.refreshed) != 1 || cache.refreshed[0].ID != 11 {
		t.Fatalf("cache not refreshed: %+v", cache.refreshed)
	}
}

func TestStartReviewRejectsForeignClaim(t *testing.T) {
	store := &reviewStoreStub{task: claimedRecord(11, 99)}
	svc := NewService(store, nil, zap.NewNop())

	_, err := svc.StartReview(context.Background(), reviewerUser(), 11)
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	if store.claimCalls != 0 {
		t.Fatalf("claim must not be attempted: %d", store.claimCalls)
	}
}

func TestStartReviewIsIdempotentForHolder(t *testing.T) {
	store := &reviewStoreStub{
		task:     claimedRecord(11, 7),
		claimErr: pgrepo.ErrReviewClaimConflict,
	}
	svc := NewService(store, nil, zap.NewNop())

	// The precondition admits the current holder; the conditional update then
	// reports the row as already claimed.
	_, err := svc.StartReview(context.Background(), reviewerUser(), 11)
	if !errors.Is(err, ErrClaimConflict) {
		t.Fatalf("expected ErrClaimConflict, got %v", err)
	}
	if store.claimCalls != 1 {
		t.Fatalf("expected one claim attempt: %d", store.claimCalls)
	}
}

func TestStartReviewMapsClaimRace(t *testing.T) {
	store := &reviewStoreStub{
		task:     pgrepo.TaskReviewRecord{TaskID: 11},
		claimErr: pgrepo.ErrReviewClaimConflict,
	}
	svc := NewService(store, nil, zap.NewNop())

	_, err := svc.StartReview(context.Background(), reviewerUser(), 11)
	if !errors.Is(err, ErrClaimConflict) {
		t.Fatalf("expected ErrClaimConflict, got %v", err)
	}
}

func TestStartReviewUnknownTask(t *testing.T) {
	store := &reviewStoreStub{getErr: pgrepo.ErrTaskReviewNotFound}
	svc := NewService(store, nil, zap.NewNop())

	_, err := svc.StartReview(context.Background(), reviewerUser(), 11)
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestStartReviewValidatesInput(t *testing.T) {
	svc := NewService(&reviewStoreStub{}, nil, zap.NewNop())

	if _, err := svc.StartReview(context.Background(), User{}, 11); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing user, got %v", err)
	}
	if _, err := svc.StartReview(context.Background(), reviewerUser(), 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad task id, got %v", err)
	}
}

func TestStartReviewRateLimited(t *testing.T) {
	store := &reviewStoreStub{task: pgrepo.TaskReviewRecord{TaskID: 11}}
	limiter := &limiterStub{retryAfter: 30}
	svc := NewService(store, nil, zap.NewNop())
	svc.AttachLimiter(limiter)

	_, err := svc.StartReview(context.Background(), reviewerUser(), 11)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if store.claimCalls != 0 {
		t.Fatalf("claim must not be attempted when throttled")
	}
}

func TestStartReviewLimiterFailsOpen(t *testing.T) {
	store := &reviewStoreStub{
		task:  pgrepo.TaskReviewRecord{TaskID: 11},
		claim: claimedRecord(11, 7),
	}
	limiter := &limiterStub{err: errors.New("redis down")}
	svc := NewService(store, nil, zap.NewNop())
	svc.AttachLimiter(limiter)

	if _, err := svc.StartReview(context.Background(), reviewerUser(), 11); err != nil {
		t.Fatalf("limiter failure must not block claims: %v", err)
	}
	if limiter.calls != 1 {
		t.Fatalf("limiter not consulted")
	}
}

func TestStartReviewSurvivesBestEffortFailures(t *testing.T) {
	store := &reviewStoreStub{
		task:  pgrepo.TaskReviewRecord{TaskID: 11},
		claim: claimedRecord(11, 7),
	}
	svc := NewService(store, nil, zap.NewNop())
	svc.AttachCache(&cacheStub{err: errors.New("cache down")})
	svc.AttachLocker(&lockerStub{err: errors.New("lock store down")})
	svc.AttachNotifier(&notifierStub{err: errors.New("broker down")})

	if _, err := svc.StartReview(context.Background(), reviewerUser(), 11); err != nil {
		t.Fatalf("best-effort failures must not fail the claim: %v", err)
	}
}

func TestCancelReviewRequiresClaimHolder(t *testing.T) {
	store := &reviewStoreStub{task: claimedRecord(11, 99)}
	svc := NewService(store, nil, zap.NewNop())

	_, err := svc.CancelReview(context.Background(), reviewerUser(), 11)
	if !errors.Is(err, ErrNotClaimedByCaller) {
		t.Fatalf("expected ErrNotClaimedByCaller, got %v", err)
	}
	if store.cancelCalls != 0 {
		t.Fatalf("cancel must not be attempted: %d", store.cancelCalls)
	}
}

func TestCancelReviewRequiresExistingClaim(t *testing.T) {
	store := &reviewStoreStub{task: pgrepo.TaskReviewRecord{TaskID: 11}}
	svc := NewService(store, nil, zap.NewNop())

	_, err := svc.CancelReview(context.Background(), reviewerUser(), 11)
	if !errors.Is(err, ErrNotClaimedByCaller) {
		t.Fatalf("expected ErrNotClaimedByCaller, got %v", err)
	}
}

func TestCancelReviewReleasesOwnClaim(t *testing.T) {
	released := pgrepo.TaskReviewRecord{TaskID: 11, ReviewStatus: int(enums.ReviewStatusRequested)}
	store := &reviewStoreStub{task: claimedRecord(11, 7), cancel: released}
	notifier := &notifierStub{}
	svc := NewService(store, nil, zap.NewNop())
	svc.AttachNotifier(notifier)

	task, err := svc.CancelReview(context.Background(), reviewerUser(), 11)
	if err != nil {
		t.Fatalf("cancel review: %v", err)
	}
	if task.Review.ClaimedBy != nil {
		t.Fatalf("claim must be cleared: %+v", task.Review)
	}
	if len(notifier.events) != 1 || notifier.events[0].Kind != redrepo.ReviewEventReleased {
		t.Fatalf("release event not published: %+v", notifier.events)
	}
}

func TestNextReviewReturnsFirstMatch(t *testing.T) {
	store := &reviewStoreStub{
		count:   5,
		records: []pgrepo.TaskReviewRecord{{TaskID: 42}},
	}
	svc := NewService(store, nil, zap.NewNop())

	task, err := svc.NextReview(context.Background(), reviewerUser(), SearchParameters{}, "id", "asc")
	if err != nil {
		t.Fatalf("next review: %v", err)
	}
	if task == nil || task.ID != 42 {
		t.Fatalf("unexpected next task: %+v", task)
	}
	if store.lastSearch.Limit != 1 {
		t.Fatalf("next review must query a single row: %d", store.lastSearch.Limit)
	}
	if store.lastSearch.TaskType != enums.ReviewTypeToBeReviewed {
		t.Fatalf("next review must query the backlog: %v", store.lastSearch.TaskType)
	}
}

func TestNextReviewEmptyBacklog(t *testing.T) {
	svc := NewService(&reviewStoreStub{}, nil, zap.NewNop())

	task, err := svc.NextReview(context.Background(), reviewerUser(), SearchParameters{}, "", "")
	if err != nil {
		t.Fatalf("next review: %v", err)
	}
	if task != nil {
		t.Fatalf("expected nil task for empty backlog, got %+v", task)
	}
}
