package enums

type ReviewStatus int

const (
	ReviewStatusRequested ReviewStatus = 0
	ReviewStatusApproved  ReviewStatus = 1
	ReviewStatusRejected  ReviewStatus = 2
	ReviewStatusAssisted  ReviewStatus = 3
	ReviewStatusDisputed  ReviewStatus = 4
)

func (s ReviewStatus) Valid() bool {
	return s >= ReviewStatusRequested && s <= ReviewStatusDisputed
}

// ReviewTaskType selects which slice of the review backlog a query targets.
type ReviewTaskType int

const (
	ReviewTypeToBeReviewed    ReviewTaskType = 1
	ReviewTypeMyReviewedTasks ReviewTaskType = 2
	ReviewTypeReviewedByMe    ReviewTaskType = 3
	ReviewTypeAllReviewed     ReviewTaskType = 4
)

func (t ReviewTaskType) Valid() bool {
	return t >= ReviewTypeToBeReviewed && t <= ReviewTypeAllReviewed
}
