package review

import (
	"time"

	"github.com/zerebubuth/maproulette2/internal/domain/enums"
	pgrepo "github.com/zerebubuth/maproulette2/internal/repo/postgres"
	redrepo "github.com/zerebubuth/maproulette2/internal/repo/redis"
)

type User struct {
	ID          int64
	OSMID       int64
	Name        string
	IsSuperUser bool
	IsReviewer  bool
}

type Point struct {
	Lon float64
	Lat float64
}

type Bounds struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// ReviewState is the review sub-record embedded in a task view. A non-nil
// ClaimedBy means the task is locked for review.
type ReviewState struct {
	Status       enums.ReviewStatus
	RequestedBy  *int64
	ReviewedBy   *int64
	ReviewedAt   *time.Time
	ClaimedBy    *int64
	ClaimedAt    *time.Time
	MapperName   string
	ReviewerName string
}

type Task struct {
	ID       int64
	ParentID int64
	Status   enums.TaskStatus
	Location *Point
	Review   ReviewState
}

// SearchParameters are the optional, conjunctively combined review filters.
type SearchParameters struct {
	Owner               string
	Reviewer            string
	TaskStatuses        []enums.TaskStatus
	ReviewStatuses      []enums.ReviewStatus
	Bounds              *Bounds
	Project             string
	SavedChallengesOnly bool
	StartDate           string
	EndDate             string
	Mappers             []int64
	Reviewers           []int64
}

type Page struct {
	Sort   string
	Order  string
	Limit  int
	Number int
}

// ReviewMetrics is an immutable aggregate snapshot over a scoped query.
type ReviewMetrics struct {
	Total         int
	Requested     int
	Approved      int
	Rejected      int
	Assisted      int
	Disputed      int
	Fixed         int
	FalsePositive int
	Skipped       int
	AlreadyFixed  int
	TooHard       int
}

type TaskCluster struct {
	ID         int
	PointCount int
	Centroid   Point
	Bounding   []Point
	Params     SearchParameters
}

func taskFromRecord(record pgrepo.TaskReviewRecord) Task {
	task := Task{
		ID:       record.TaskID,
		ParentID: record.ParentID,
		Status:   enums.TaskStatus(record.TaskStatus),
		Review: ReviewState{
			Status:      enums.ReviewStatus(record.ReviewStatus),
			RequestedBy: record.ReviewRequestedBy,
			ReviewedBy:  record.ReviewedBy,
			ReviewedAt:  record.ReviewedAt,
			ClaimedBy:   record.ReviewClaimedBy,
			ClaimedAt:   record.ReviewClaimedAt,
		},
	}
	if record.MapperName != nil {
		task.Review.MapperName = *record.MapperName
	}
	if record.ReviewerName != nil {
		task.Review.ReviewerName = *record.ReviewerName
	}
	if record.Lon != nil && record.Lat != nil {
		task.Location = &Point{Lon: *record.Lon, Lat: *record.Lat}
	}
	return task
}

func tasksFromRecords(records []pgrepo.TaskReviewRecord) []Task {
	tasks := make([]Task, 0, len(records))
	for _, record := range records {
		tasks = append(tasks, taskFromRecord(record))
	}
	return tasks
}

func cachedTaskFromTask(task Task) redrepo.CachedTask {
	cached := redrepo.CachedTask{
		ID:                task.ID,
		ParentID:          task.ParentID,
		Status:            int(task.Status),
		ReviewStatus:      int(task.Review.Status),
		ReviewRequestedBy: task.Review.RequestedBy,
		ReviewedBy:        task.Review.ReviewedBy,
		ReviewedAt:        task.Review.ReviewedAt,
		ReviewClaimedBy:   task.Review.ClaimedBy,
		ReviewClaimedAt:   task.Review.ClaimedAt,
		MapperName:        task.Review.MapperName,
		ReviewerName:      task.Review.ReviewerName,
	}
	if task.Location != nil {
		lon, lat := task.Location.Lon, task.Location.Lat
		cached.Lon, cached.Lat = &lon, &lat
	}
	return cached
}

func metricsFromRecord(record pgrepo.ReviewMetricsRecord) ReviewMetrics {
	return ReviewMetrics{
		Total:         record.Total,
		Requested:     record.Requested,
		Approved:      record.Approved,
		Rejected:      record.Rejected,
		Assisted:      record.Assisted,
		Disputed:      record.Disputed,
		Fixed:         record.Fixed,
		FalsePositive: record.FalsePositive,
		Skipped:       record.Skipped,
		AlreadyFixed:  record.AlreadyFixed,
		TooHard:       record.TooHard,
	}
}
