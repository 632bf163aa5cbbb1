package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pgrepo "github.com/zerebubuth/maproulette2/internal/repo/postgres"
	redrepo "github.com/zerebubuth/maproulette2/internal/repo/redis"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrTaskNotFound       = errors.New("task not found")
	ErrAlreadyClaimed     = errors.New("task review is claimed by another user")
	ErrClaimConflict      = errors.New("lost the race for the task review claim")
	ErrNotClaimedByCaller = errors.New("task review is not claimed by the caller")
	ErrRateLimited        = errors.New("too many review claim attempts")
)

type ReviewStore interface {
	GetTaskWithReview(ctx context.Context, taskID int64) (pgrepo.TaskReviewRecord, error)
	ClaimTask(ctx context.Context, taskID, userID int64, claimedAt time.Time) (pgrepo.TaskReviewRecord, error)
	CancelClaim(ctx context.Context, taskID, userID int64) (pgrepo.TaskReviewRecord, error)
	CountAndList(ctx context.Context, search pgrepo.ReviewSearch) (int, []pgrepo.TaskReviewRecord, error)
	Metrics(ctx context.Context, search pgrepo.ReviewSearch) (pgrepo.ReviewMetricsRecord, error)
	Points(ctx context.Context, search pgrepo.ReviewSearch) ([]pgrepo.TaskPointRecord, error)
}

type UserStore interface {
	GetByID(ctx context.Context, userID int64) (pgrepo.UserRecord, error)
}

type TaskCache interface {
	RefreshTask(ctx context.Context, task redrepo.CachedTask) error
	StoreIDList(ctx context.Context, key string, ids []int64) error
}

type TaskLocker interface {
	Release(ctx context.Context, taskID, userID int64) error
}

type Notifier interface {
	PublishReviewEvent(ctx context.Context, event redrepo.ReviewEvent) error
}

type ClaimLimiter interface {
	AllowClaim(ctx context.Context, userID int64) (int64, bool, error)
}

type Service struct {
	reviews  ReviewStore
	users    UserStore
	cache    TaskCache
	locker   TaskLocker
	notifier Notifier
	limiter  ClaimLimiter
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(reviews ReviewStore, users UserStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		reviews: reviews,
		users:   users,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) AttachCache(cache TaskCache) {
	s.cache = cache
}

func (s *Service) AttachLocker(locker TaskLocker) {
	s.locker = locker
}

func (s *Service) AttachNotifier(notifier Notifier) {
	s.notifier = notifier
}

func (s *Service) AttachLimiter(limiter ClaimLimiter) {
	s.limiter = limiter
}

func (s *Service) GetUser(ctx context.Context, userID int64) (User, error) {
	if s.users == nil {
		return User{}, fmt.Errorf("review service user store is not configured")
	}

	record, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return User{}, err
	}

	return User{
		ID:          record.ID,
		OSMID:       record.OSMID,
		Name:        record.Name,
		IsSuperUser: record.IsSuperUser,
		IsReviewer:  record.IsReviewer,
	}, nil
}

// StartReview gives the user an exclusive review claim on the task. Any claim
// the user holds elsewhere is released in the same transaction, so a reviewer
// never holds more than one claim. Losing the conditional update to a
// concurrent claimer rolls everything back and returns ErrClaimConflict.
func (s *Service) StartReview(ctx context.Context, user User, taskID int64) (Task, error) {
	if user.ID <= 0 || taskID <= 0 {
		return Task{}, ErrValidation
	}
	if s.reviews == nil {
		return Task{}, fmt.Errorf("review service store is not configured")
	}

	if err := s.checkClaimRate(ctx, user.ID); err != nil {
		return Task{}, err
	}

	current, err := s.reviews.GetTaskWithReview(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrTaskReviewNotFound) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, err
	}
	if current.ReviewClaimedBy != nil && *current.ReviewClaimedBy != user.ID {
		return Task{}, ErrAlreadyClaimed
	}

	record, err := s.reviews.ClaimTask(ctx, taskID, user.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, pgrepo.ErrReviewClaimConflict) {
			return Task{}, ErrClaimConflict
		}
		return Task{}, err
	}

	task := taskFromRecord(record)

	// The claim itself is durable at this point; everything below is
	// best-effort and must not fail the call.
	s.releaseEditLock(ctx, taskID, user.ID)
	s.publishEvent(ctx, redrepo.ReviewEventClaimed, task)
	s.refreshCache(ctx, task)

	return task, nil
}

// CancelReview releases the caller's claim on the task. Only the claim holder
// may cancel.
func (s *Service) CancelReview(ctx context.Context, user User, taskID int64) (Task, error) {
	if user.ID <= 0 || taskID <= 0 {
		return Task{}, ErrValidation
	}
	if s.reviews == nil {
		return Task{}, fmt.Errorf("review service store is not configured")
	}

	current, err := s.reviews.GetTaskWithReview(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrTaskReviewNotFound) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, err
	}
	if current.ReviewClaimedBy == nil || *current.ReviewClaimedBy != user.ID {
		return Task{}, ErrNotClaimedByCaller
	}

	record, err := s.reviews.CancelClaim(ctx, taskID, user.ID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrReviewClaimConflict) {
			return Task{}, ErrClaimConflict
		}
		return Task{}, err
	}

	task := taskFromRecord(record)

	s.releaseEditLock(ctx, taskID, user.ID)
	s.publishEvent(ctx, redrepo.ReviewEventReleased, task)
	s.refreshCache(ctx, task)

	return task, nil
}

// NextReview returns the first task of a size-1 review-requested query under
// the caller's scoping, or nil when the backlog is empty. It does not claim
// the task.
func (s *Service) NextReview(ctx context.Context, user User, params SearchParameters, sort, order string) (*Task, error) {
	_, tasks, err := s.ListReviewRequested(ctx, user, params, Page{Sort: sort, Order: order, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	task := tasks[0]
	return &task, nil
}

// checkClaimRate fails open when the limiter store is unreachable; a broken
// limiter must not block all review claims.
func (s *Service) checkClaimRate(ctx context.Context, userID int64) error {
	if s.limiter == nil {
		return nil
	}

	retryAfter, ok, err := s.limiter.AllowClaim(ctx, userID)
	if err != nil {
		s.logger.Warn("review claim rate check failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	if !ok {
		s.logger.Info("review claim rate limited",
			zap.Int64("user_id", userID),
			zap.Int64("retry_after_sec", retryAfter),
		)
		return ErrRateLimited
	}

	return nil
}

func (s *Service) releaseEditLock(ctx context.Context, taskID, userID int64) {
	if s.locker == nil {
		return
	}
	if err := s.locker.Release(ctx, taskID, userID); err != nil {
		s.logger.Warn("release task edit lock failed",
			zap.Int64("task_id", taskID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}

func (s *Service) publishEvent(ctx context.Context, kind string, task Task) {
	if s.notifier == nil {
		return
	}

	event := redrepo.ReviewEvent{
		ID:   uuid.NewString(),
		Kind: kind,
		Task: cachedTaskFromTask(task),
		At:   s.now().UTC(),
	}
	if err := s.notifier.PublishReviewEvent(ctx, event); err != nil {
		s.logger.Warn("publish review event failed",
			zap.String("kind", kind),
			zap.Int64("task_id", task.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) refreshCache(ctx context.Context, task Task) {
	if s.cache == nil {
		return
	}
	if err := s.cache.RefreshTask(ctx, cachedTaskFromTask(task)); err != nil {
		s.logger.Warn("refresh cached task failed",
			zap.Int64("task_id", task.ID),
			zap.Error(err),
		)
	}
}
