package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/zerebubuth/maproulette2/internal/domain/enums"
)

// UnlimitedPageSize disables the LIMIT clause on a review search.
const UnlimitedPageSize = -1

const defaultPageSize = 10

// Reviewer carries the caller identity fields the scoping fragments need.
type Reviewer struct {
	UserID      int64
	OSMID       int64
	IsSuperUser bool
	IsReviewer  bool
}

type Envelope struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// ReviewSearch is the full input of the review query builder: caller identity,
// backlog slice selector, conjunctive filters and pagination. Empty filter
// values mean "no constraint".
type ReviewSearch struct {
	Reviewer Reviewer
	TaskType enums.ReviewTaskType

	Owner          string
	ReviewerName   string
	TaskStatuses   []int
	ReviewStatuses []int
	Bounds         *Envelope
	Project        string
	SavedOnly      bool
	StartDate      string
	EndDate        string
	Mappers        []int64
	Reviewers      []int64

	// IncludeRequested re-admits review_status=requested rows on the
	// reviewed-task slices, which exclude them by default.
	IncludeRequested bool

	Sort  string
	Order string
	Limit int
	Page  int
}

// ReviewQuery is a paired data/count query over one shared argument list, so
// the count always describes the same row set the page is cut from.
type ReviewQuery struct {
	DataSQL  string
	CountSQL string
	Args     []any
}

var reviewSortColumns = map[string]string{
	"id":                  "tasks.id",
	"status":              "tasks.status",
	"review_status":       "task_review.review_status",
	"reviewed_at":         "task_review.reviewed_at",
	"review_requested_by": "task_review.review_requested_by",
	"reviewed_by":         "task_review.reviewed_by",
	"mapper_name":         "mappers.name",
	"reviewer_name":       "reviewers.name",
}

const reviewSelectColumns = `
	tasks.id,
	tasks.parent_id,
	tasks.status,
	ST_X(tasks.location),
	ST_Y(tasks.location),
	task_review.review_status,
	task_review.review_requested_by,
	task_review.reviewed_by,
	task_review.reviewed_at,
	task_review.review_claimed_by,
	task_review.review_claimed_at,
	mappers.name,
	reviewers.name`

const reviewFromClause = `
FROM tasks
INNER JOIN task_review ON task_review.task_id = tasks.id
INNER JOIN challenges ON challenges.id = tasks.parent_id
INNER JOIN projects ON projects.id = challenges.parent_id
LEFT JOIN users mappers ON mappers.id = task_review.review_requested_by
LEFT JOIN users reviewers ON reviewers.id = task_review.reviewed_by`

const reviewMetricsColumns = `
	COUNT(*),
	COUNT(*) FILTER (WHERE task_review.review_status = 0),
	COUNT(*) FILTER (WHERE task_review.review_status = 1),
	COUNT(*) FILTER (WHERE task_review.review_status = 2),
	COUNT(*) FILTER (WHERE task_review.review_status = 3),
	COUNT(*) FILTER (WHERE task_review.review_status = 4),
	COUNT(*) FILTER (WHERE tasks.status = 1),
	COUNT(*) FILTER (WHERE tasks.status = 2),
	COUNT(*) FILTER (WHERE tasks.status = 3),
	COUNT(*) FILTER (WHERE tasks.status = 5),
	COUNT(*) FILTER (WHERE tasks.status = 6)`

type reviewQueryBuilder struct {
	where []string
	args  []any
}

// bind registers a query argument and returns its positional placeholder.
// Every user-controlled literal goes through here; only whitelisted column
// names and integer pagination values are ever interpolated.
func (b *reviewQueryBuilder) bind(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *reviewQueryBuilder) add(clause string) {
	b.where = append(b.where, clause)
}

func (b *reviewQueryBuilder) whereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return "\nWHERE " + strings.Join(b.where, "\n  AND ")
}

// BuildReviewSearch compiles a ReviewSearch into a data query with ORDER
// BY/LIMIT/OFFSET and a count query over the identical scoped row set.
func BuildReviewSearch(s ReviewSearch) ReviewQuery {
	b := buildReviewScope(s)
	where := b.whereClause()

	data := "SELECT" + reviewSelectColumns + reviewFromClause + where

	if column, ok := reviewSortColumns[s.Sort]; ok {
		direction := "ASC"
		if strings.EqualFold(strings.TrimSpace(s.Order), "desc") {
			direction = "DESC"
		}
		data += "\nORDER BY " + column + " " + direction
	}

	if s.Limit != UnlimitedPageSize {
		limit := s.Limit
		if limit <= 0 {
			limit = defaultPageSize
		}
		page := s.Page
		if page < 0 {
			page = 0
		}
		data += fmt.Sprintf("\nLIMIT %d OFFSET %d", limit, limit*page)
	}

	count := "SELECT COUNT(*)" + reviewFromClause + where

	return ReviewQuery{DataSQL: data, CountSQL: count, Args: b.args}
}

// BuildReviewMetrics compiles the single-pass aggregation over the same
// scoped row set a search with identical parameters would produce.
func BuildReviewMetrics(s ReviewSearch) (string, []any) {
	b := buildReviewScope(s)
	return "SELECT" + reviewMetricsColumns + reviewFromClause + b.whereClause(), b.args
}

// BuildReviewPoints compiles the located-task query feeding the clustering
// pipeline. Rows without a location are excluded here, not in Go.
func BuildReviewPoints(s ReviewSearch) (string, []any) {
	b := buildReviewScope(s)
	b.add("tasks.location IS NOT NULL")
	sql := "SELECT tasks.id, ST_X(tasks.location), ST_Y(tasks.location)" +
		reviewFromClause + b.whereClause()
	return sql, b.args
}

func buildReviewScope(s ReviewSearch) *reviewQueryBuilder {
	b := &reviewQueryBuilder{}

	switch s.TaskType {
	case enums.ReviewTypeToBeReviewed:
		b.add(fmt.Sprintf("task_review.review_status IN (%d, %d)",
			enums.ReviewStatusRequested, enums.ReviewStatusDisputed))
	case enums.ReviewTypeMyReviewedTasks:
		b.add("task_review.review_requested_by = " + b.bind(s.Reviewer.UserID))
		if !s.IncludeRequested {
			b.add(fmt.Sprintf("task_review.review_status <> %d", enums.ReviewStatusRequested))
		}
	case enums.ReviewTypeReviewedByMe:
		b.add("task_review.reviewed_by = " + b.bind(s.Reviewer.UserID))
	case enums.ReviewTypeAllReviewed:
		if !s.IncludeRequested {
			b.add(fmt.Sprintf("task_review.review_status <> %d", enums.ReviewStatusRequested))
		}
	}

	if !s.Reviewer.IsSuperUser {
		visibility := fmt.Sprintf(`(projects.enabled AND challenges.enabled)
	OR projects.owner_id = %s
	OR EXISTS (
		SELECT 1 FROM user_groups
		INNER JOIN groups ON groups.id = user_groups.group_id
		WHERE groups.project_id = projects.id
		  AND user_groups.osm_user_id = %s
	)`, b.bind(s.Reviewer.OSMID), b.bind(s.Reviewer.OSMID))

		if s.TaskType == enums.ReviewTypeToBeReviewed {
			b.add("(" + visibility + ")")
			// Self-review exclusion: a mapper never reviews their own
			// request, even when they could see it as a project approver.
			b.add("task_review.review_requested_by IS DISTINCT FROM " + b.bind(s.Reviewer.UserID))
		} else {
			b.add("(" + visibility + `
	OR task_review.review_requested_by = ` + b.bind(s.Reviewer.UserID) + `
	OR task_review.reviewed_by = ` + b.bind(s.Reviewer.UserID) + ")")
		}
	}

	if owner := strings.TrimSpace(s.Owner); owner != "" {
		b.add("mappers.name ILIKE " + b.bind("%"+owner+"%"))
	}
	if reviewer := strings.TrimSpace(s.ReviewerName); reviewer != "" {
		b.add("reviewers.name ILIKE " + b.bind("%"+reviewer+"%"))
	}
	if len(s.TaskStatuses) > 0 {
		b.add("tasks.status = ANY(" + b.bind(s.TaskStatuses) + ")")
	}
	if len(s.ReviewStatuses) > 0 {
		b.add("task_review.review_status = ANY(" + b.bind(s.ReviewStatuses) + ")")
	}
	if len(s.Mappers) > 0 {
		b.add("task_review.review_requested_by = ANY(" + b.bind(s.Mappers) + ")")
	}
	if len(s.Reviewers) > 0 {
		b.add("task_review.reviewed_by = ANY(" + b.bind(s.Reviewers) + ")")
	}
	if s.Bounds != nil {
		b.add(fmt.Sprintf("tasks.location && ST_MakeEnvelope(%s, %s, %s, %s, 4326)",
			b.bind(s.Bounds.MinLon), b.bind(s.Bounds.MinLat),
			b.bind(s.Bounds.MaxLon), b.bind(s.Bounds.MaxLat)))
	}
	if project := strings.TrimSpace(s.Project); project != "" {
		b.add("projects.display_name ILIKE " + b.bind("%"+project+"%"))
	}
	if s.SavedOnly {
		b.add(`EXISTS (
		SELECT 1 FROM saved_challenges
		WHERE saved_challenges.challenge_id = challenges.id
		  AND saved_challenges.user_id = ` + b.bind(s.Reviewer.UserID) + `
	)`)
	}

	// Malformed date literals are dropped, not errors. The range constrains
	// the reviewed timestamp only, so still-unreviewed rows pass through.
	if start, ok := parseReviewDate(s.StartDate); ok {
		b.add("(task_review.reviewed_at IS NULL OR task_review.reviewed_at >= " + b.bind(start) + ")")
	}
	if end, ok := parseReviewDate(s.EndDate); ok {
		b.add("(task_review.reviewed_at IS NULL OR task_review.reviewed_at < " + b.bind(end.AddDate(0, 0, 1)) + ")")
	}

	return b
}

func parseReviewDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}
