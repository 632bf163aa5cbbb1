package dto

import "time"

type PointDTO struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

type ReviewStateDTO struct {
	ReviewStatus      int        `json:"reviewStatus"`
	ReviewRequestedBy *int64     `json:"reviewRequestedBy,omitempty"`
	ReviewedBy        *int64     `json:"reviewedBy,omitempty"`
	ReviewedAt        *time.Time `json:"reviewedAt,omitempty"`
	ReviewClaimedBy   *int64     `json:"reviewClaimedBy,omitempty"`
	ReviewClaimedAt   *time.Time `json:"reviewClaimedAt,omitempty"`
	MapperName        string     `json:"mapperName,omitempty"`
	ReviewerName      string     `json:"reviewerName,omitempty"`
}

type TaskResponse struct {
	ID       int64          `json:"id"`
	ParentID int64          `json:"parentId"`
	Status   int            `json:"status"`
	Location *PointDTO      `json:"location,omitempty"`
	Review   ReviewStateDTO `json:"review"`
}

type TaskListResponse struct {
	Count int            `json:"count"`
	Tasks []TaskResponse `json:"tasks"`
}

type ReviewMetricsResponse struct {
	Total         int `json:"total"`
	Requested     int `json:"reviewRequested"`
	Approved      int `json:"reviewApproved"`
	Rejected      int `json:"reviewRejected"`
	Assisted      int `json:"reviewAssisted"`
	Disputed      int `json:"reviewDisputed"`
	Fixed         int `json:"fixed"`
	FalsePositive int `json:"falsePositive"`
	Skipped       int `json:"skipped"`
	AlreadyFixed  int `json:"alreadyFixed"`
	TooHard       int `json:"tooHard"`
}

type GeometryDTO struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

type TaskClusterResponse struct {
	ID         int         `json:"id"`
	PointCount int         `json:"pointCount"`
	Point      PointDTO    `json:"point"`
	Bounding   GeometryDTO `json:"bounding"`
}
