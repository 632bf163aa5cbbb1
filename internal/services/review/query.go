package review

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zerebubuth/maproulette2/internal/domain/enums"
	pgrepo "github.com/zerebubuth/maproulette2/internal/repo/postgres"
)

// ListReviewRequested lists the tasks awaiting the caller's review, with the
// count of the full scoped set alongside the requested page.
func (s *Service) ListReviewRequested(ctx context.Context, user User, params SearchParameters, page Page) (int, []Task, error) {
	return s.listReviewTasks(ctx, user, enums.ReviewTypeToBeReviewed, params, page, false)
}

// ListReviewed lists already-reviewed tasks. asReviewer selects the tasks the
// caller reviewed, allUsers the whole scoped set; otherwise the caller's own
// review requests. includeRequested re-admits still-unreviewed rows.
func (s *Service) ListReviewed(ctx context.Context, user User, params SearchParameters, page Page, asReviewer, allUsers, includeRequested bool) (int, []Task, error) {
	taskType := enums.ReviewTypeMyReviewedTasks
	if asReviewer {
		taskType = enums.ReviewTypeReviewedByMe
	}
	if allUsers {
		taskType = enums.ReviewTypeAllReviewed
	}

	return s.listReviewTasks(ctx, user, taskType, params, page, includeRequested)
}

func (s *Service) listReviewTasks(ctx context.Context, user User, taskType enums.ReviewTaskType, params SearchParameters, page Page, includeRequested bool) (int, []Task, error) {
	if s.reviews == nil {
		return 0, nil, fmt.Errorf("review service store is not configured")
	}

	// Non-reviewers silently get an empty result set, never an error, so the
	// backlog's existence is not leaked.
	if !user.IsSuperUser && !user.IsReviewer {
		return 0, []Task{}, nil
	}

	search := buildReviewSearch(user, taskType, params, page, includeRequested)

	count, records, err := s.reviews.CountAndList(ctx, search)
	if err != nil {
		return 0, nil, err
	}

	tasks := tasksFromRecords(records)
	s.cacheTaskList(ctx, user, taskType, tasks)

	return count, tasks, nil
}

func (s *Service) cacheTaskList(ctx context.Context, user User, taskType enums.ReviewTaskType, tasks []Task) {
	if s.cache == nil || len(tasks) == 0 {
		return
	}

	ids := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}

	key := fmt.Sprintf("%d:%d", user.ID, taskType)
	if err := s.cache.StoreIDList(ctx, key, ids); err != nil {
		s.logger.Warn("cache review task list failed",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
	}
}

func buildReviewSearch(user User, taskType enums.ReviewTaskType, params SearchParameters, page Page, includeRequested bool) pgrepo.ReviewSearch {
	search := pgrepo.ReviewSearch{
		Reviewer: pgrepo.Reviewer{
			UserID:      user.ID,
			OSMID:       user.OSMID,
			IsSuperUser: user.IsSuperUser,
			IsReviewer:  user.IsReviewer,
		},
		TaskType:         taskType,
		Owner:            strings.TrimSpace(params.Owner),
		ReviewerName:     strings.TrimSpace(params.Reviewer),
		Project:          strings.TrimSpace(params.Project),
		SavedOnly:        params.SavedChallengesOnly,
		StartDate:        params.StartDate,
		EndDate:          params.EndDate,
		Mappers:          params.Mappers,
		Reviewers:        params.Reviewers,
		IncludeRequested: includeRequested,
		Sort:             page.Sort,
		Order:            page.Order,
		Limit:            page.Limit,
		Page:             page.Number,
	}

	for _, status := range params.TaskStatuses {
		search.TaskStatuses = append(search.TaskStatuses, int(status))
	}
	for _, status := range params.ReviewStatuses {
		search.ReviewStatuses = append(search.ReviewStatuses, int(status))
	}
	if params.Bounds != nil {
		search.Bounds = &pgrepo.Envelope{
			MinLon: params.Bounds.MinLon,
			MinLat: params.Bounds.MinLat,
			MaxLon: params.Bounds.MaxLon,
			MaxLat: params.Bounds.MaxLat,
		}
	}

	return search
}
