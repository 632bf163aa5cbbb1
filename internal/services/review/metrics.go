package review

import (
	"context"
	"fmt"

	"github.com/zerebubuth/maproulette2/internal/domain/enums"
	pgrepo "github.com/zerebubuth/maproulette2/internal/repo/postgres"
)

// ComputeMetrics aggregates per-review-status and per-task-status counts over
// the scoped set in one pass. A caller without review permission gets the
// all-zero aggregate, the same shape an empty scoped set produces.
func (s *Service) ComputeMetrics(ctx context.Context, user User, taskType enums.ReviewTaskType, params SearchParameters, includeRequested bool) (ReviewMetrics, error) {
	if s.reviews == nil {
		return ReviewMetrics{}, fmt.Errorf("review service store is not configured")
	}
	if !taskType.Valid() {
		return ReviewMetrics{}, ErrValidation
	}

	if !user.IsSuperUser && !user.IsReviewer {
		return ReviewMetrics{}, nil
	}

	search := buildReviewSearch(user, taskType, params, Page{Limit: pgrepo.UnlimitedPageSize}, includeRequested)

	record, err := s.reviews.Metrics(ctx, search)
	if err != nil {
		return ReviewMetrics{}, err
	}

	return metricsFromRecord(record), nil
}
