package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zerebubuth/maproulette2/internal/domain/enums"
	authsvc "github.com/zerebubuth/maproulette2/internal/services/auth"
	reviewsvc "github.com/zerebubuth/maproulette2/internal/services/review"
	"github.com/zerebubuth/maproulette2/internal/transport/http/dto"
	httperrors "github.com/zerebubuth/maproulette2/internal/transport/http/errors"
)

type ReviewHandler struct {
	service              *reviewsvc.Service
	defaultPageSize      int
	defaultClusterPoints int
}

func NewReviewHandler(service *reviewsvc.Service, defaultPageSize, defaultClusterPoints int) *ReviewHandler {
	if defaultPageSize <= 0 {
		defaultPageSize = 10
	}
	if defaultClusterPoints <= 0 {
		defaultClusterPoints = 100
	}

	return &ReviewHandler{
		service:              service,
		defaultPageSize:      defaultPageSize,
		defaultClusterPoints: defaultClusterPoints,
	}
}

func (h *ReviewHandler) ListReviewRequested(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	params := parseSearchParameters(r.URL.Query())
	page := parsePage(r.URL.Query(), h.defaultPageSize)

	count, tasks, err := h.service.ListReviewRequested(r.Context(), user, params, page)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, taskListResponse(count, tasks))
}

func (h *ReviewHandler) ListReviewed(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	params := parseSearchParameters(query)
	page := parsePage(query, h.defaultPageSize)
	asReviewer := parseBool(query.Get("asReviewer"))
	allUsers := parseBool(query.Get("allUsers"))
	includeRequested := parseBool(query.Get("includeRequested"))

	count, tasks, err := h.service.ListReviewed(r.Context(), user, params, page, asReviewer, allUsers, includeRequested)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, taskListResponse(count, tasks))
}

func (h *ReviewHandler) NextReview(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	params := parseSearchParameters(query)

	task, err := h.service.NextReview(r.Context(), user, params, query.Get("sort"), query.Get("order"))
	if err != nil {
		writeReviewError(w, err)
		return
	}
	if task == nil {
		httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
			Code:    "REVIEW_BACKLOG_EMPTY",
			Message: "no review task matches the given criteria",
		})
		return
	}

	httperrors.Write(w, http.StatusOK, taskResponse(*task))
}

func (h *ReviewHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	params := parseSearchParameters(query)
	taskType := parseReviewTaskType(query.Get("reviewTasksType"))
	includeRequested := parseBool(query.Get("includeRequested"))

	metrics, err := h.service.ComputeMetrics(r.Context(), user, taskType, params, includeRequested)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.ReviewMetricsResponse{
		Total:         metrics.Total,
		Requested:     metrics.Requested,
		Approved:      metrics.Approved,
		Rejected:      metrics.Rejected,
		Assisted:      metrics.Assisted,
		Disputed:      metrics.Disputed,
		Fixed:         metrics.Fixed,
		FalsePositive: metrics.FalsePositive,
		Skipped:       metrics.Skipped,
		AlreadyFixed:  metrics.AlreadyFixed,
		TooHard:       metrics.TooHard,
	})
}

func (h *ReviewHandler) Clusters(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	params := parseSearchParameters(query)
	taskType := parseReviewTaskType(query.Get("reviewTasksType"))
	includeRequested := parseBool(query.Get("includeRequested"))

	points := h.defaultClusterPoints
	if v, err := strconv.Atoi(query.Get("points")); err == nil && v > 0 {
		points = v
	}

	clusters, err := h.service.ClusterReviewTasks(r.Context(), user, taskType, params, points, includeRequested)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	payload := make([]dto.TaskClusterResponse, 0, len(clusters))
	for _, cluster := range clusters {
		payload = append(payload, clusterResponse(cluster))
	}

	httperrors.Write(w, http.StatusOK, payload)
}

func (h *ReviewHandler) StartReview(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	taskID, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil || taskID <= 0 {
		writeBadRequest(w, "INVALID_TASK_ID", "task id must be a positive integer")
		return
	}

	task, err := h.service.StartReview(r.Context(), user, taskID)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, taskResponse(task))
}

func (h *ReviewHandler) CancelReview(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	taskID, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil || taskID <= 0 {
		writeBadRequest(w, "INVALID_TASK_ID", "task id must be a positive integer")
		return
	}

	task, err := h.service.CancelReview(r.Context(), user, taskID)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, taskResponse(task))
}

func (h *ReviewHandler) currentUser(w http.ResponseWriter, r *http.Request) (reviewsvc.User, bool) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return reviewsvc.User{}, false
	}
	if h.service == nil {
		writeInternal(w, "REVIEW_SERVICE_UNAVAILABLE", "review service is unavailable")
		return reviewsvc.User{}, false
	}

	user, err := h.service.GetUser(r.Context(), identity.UserID)
	if err != nil {
		writeUnauthorized(w, "UNAUTHORIZED", "unknown user")
		return reviewsvc.User{}, false
	}

	return user, true
}

func writeReviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reviewsvc.ErrValidation):
		writeBadRequest(w, "INVALID_REQUEST", "invalid review request")
	case errors.Is(err, reviewsvc.ErrTaskNotFound):
		httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
			Code:    "TASK_NOT_FOUND",
			Message: "task does not exist",
		})
	case errors.Is(err, reviewsvc.ErrAlreadyClaimed):
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{
			Code:    "REVIEW_ALREADY_CLAIMED",
			Message: "task review is claimed by another user",
		})
	case errors.Is(err, reviewsvc.ErrClaimConflict):
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{
			Code:    "REVIEW_CLAIM_CONFLICT",
			Message: "task review claim was taken concurrently, re-fetch and retry",
		})
	case errors.Is(err, reviewsvc.ErrNotClaimedByCaller):
		httperrors.Write(w, http.StatusForbidden, httperrors.APIError{
			Code:    "REVIEW_NOT_CLAIM_HOLDER",
			Message: "task review is not claimed by the caller",
		})
	case errors.Is(err, reviewsvc.ErrRateLimited):
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.APIError{
			Code:    "REVIEW_CLAIM_RATE_LIMITED",
			Message: "too many review claim attempts, slow down",
		})
	default:
		writeInternal(w, "INTERNAL_ERROR", "review operation failed")
	}
}

func parseSearchParameters(query url.Values) reviewsvc.SearchParameters {
	params := reviewsvc.SearchParameters{
		Owner:               query.Get("o"),
		Reviewer:            query.Get("r"),
		Project:             query.Get("project"),
		SavedChallengesOnly: parseBool(query.Get("savedChallengesOnly")),
		StartDate:           query.Get("startDate"),
		EndDate:             query.Get("endDate"),
		Mappers:             parseInt64List(query.Get("mappers")),
		Reviewers:           parseInt64List(query.Get("reviewers")),
	}

	for _, v := range parseIntList(query.Get("tStatus")) {
		params.TaskStatuses = append(params.TaskStatuses, enums.TaskStatus(v))
	}
	for _, v := range parseIntList(query.Get("trStatus")) {
		params.ReviewStatuses = append(params.ReviewStatuses, enums.ReviewStatus(v))
	}

	if bounds, ok := parseBounds(query.Get("bbox")); ok {
		params.Bounds = &bounds
	}

	return params
}

func parsePage(query url.Values, defaultLimit int) reviewsvc.Page {
	page := reviewsvc.Page{
		Sort:  query.Get("sort"),
		Order: query.Get("order"),
		Limit: defaultLimit,
	}

	if v, err := strconv.Atoi(query.Get("limit")); err == nil && (v > 0 || v == -1) {
		page.Limit = v
	}
	if v, err := strconv.Atoi(query.Get("page")); err == nil && v > 0 {
		page.Number = v
	}

	return page
}

// parseBounds expects "minLon,minLat,maxLon,maxLat".
func parseBounds(value string) (reviewsvc.Bounds, bool) {
	parts := strings.Split(strings.TrimSpace(value), ",")
	if len(parts) != 4 {
		return reviewsvc.Bounds{}, false
	}

	coords := make([]float64, 4)
	for i, part := range parts {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return reviewsvc.Bounds{}, false
		}
		coords[i] = parsed
	}

	return reviewsvc.Bounds{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
	}, true
}

func parseReviewTaskType(value string) enums.ReviewTaskType {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return enums.ReviewTypeToBeReviewed
	}
	taskType := enums.ReviewTaskType(parsed)
	if !taskType.Valid() {
		return enums.ReviewTypeToBeReviewed
	}
	return taskType
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && parsed
}

func parseIntList(value string) []int {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	var out []int
	for _, part := range strings.Split(value, ",") {
		parsed, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	return out
}

func parseInt64List(value string) []int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	var out []int64
	for _, part := range strings.Split(value, ",") {
		parsed, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	return out
}

func taskResponse(task reviewsvc.Task) dto.TaskResponse {
	response := dto.TaskResponse{
		ID:       task.ID,
		ParentID: task.ParentID,
		Status:   int(task.Status),
		Review: dto.ReviewStateDTO{
			ReviewStatus:      int(task.Review.Status),
			ReviewRequestedBy: task.Review.RequestedBy,
			ReviewedBy:        task.Review.ReviewedBy,
			ReviewedAt:        task.Review.ReviewedAt,
			ReviewClaimedBy:   task.Review.ClaimedBy,
			ReviewClaimedAt:   task.Review.ClaimedAt,
			MapperName:        task.Review.MapperName,
			ReviewerName:      task.Review.ReviewerName,
		},
	}
	if task.Location != nil {
		response.Location = &dto.PointDTO{Lng: task.Location.Lon, Lat: task.Location.Lat}
	}
	return response
}

func taskListResponse(count int, tasks []reviewsvc.Task) dto.TaskListResponse {
	payload := dto.TaskListResponse{Count: count, Tasks: make([]dto.TaskResponse, 0, len(tasks))}
	for _, task := range tasks {
		payload.Tasks = append(payload.Tasks, taskResponse(task))
	}
	return payload
}

func clusterResponse(cluster reviewsvc.TaskCluster) dto.TaskClusterResponse {
	ring := make([][2]float64, 0, len(cluster.Bounding)+1)
	for _, point := range cluster.Bounding {
		ring = append(ring, [2]float64{point.Lon, point.Lat})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}

	return dto.TaskClusterResponse{
		ID:         cluster.ID,
		PointCount: cluster.PointCount,
		Point:      dto.PointDTO{Lng: cluster.Centroid.Lon, Lat: cluster.Centroid.Lat},
		Bounding: dto.GeometryDTO{
			Type:        "Polygon",
			Coordinates: [][][2]float64{ring},
		},
	}
}
