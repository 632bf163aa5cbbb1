package review

import (
	"context"
	"fmt"

	"github.com/zerebubuth/maproulette2/internal/domain/enums"
	pgrepo "github.com/zerebubuth/maproulette2/internal/repo/postgres"
)

const defaultClusterPoints = 100

// ClusterReviewTasks groups the located tasks of the scoped set into at most
// numberOfPoints spatial clusters for map display. Tasks without a location
// never reach the clustering step; an empty scoped set yields an empty list.
func (s *Service) ClusterReviewTasks(ctx context.Context, user User, taskType enums.ReviewTaskType, params SearchParameters, numberOfPoints int, includeRequested bool) ([]TaskCluster, error) {
	if s.reviews == nil {
		return nil, fmt.Errorf("review service store is not configured")
	}
	if !taskType.Valid() {
		return nil, ErrValidation
	}
	if numberOfPoints <= 0 {
		numberOfPoints = defaultClusterPoints
	}

	if !user.IsSuperUser && !user.IsReviewer {
		return []TaskCluster{}, nil
	}

	search := buildReviewSearch(user, taskType, params, Page{Limit: pgrepo.UnlimitedPageSize}, includeRequested)

	records, err := s.reviews.Points(ctx, search)
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(records))
	for _, record := range records {
		points = append(points, Point{Lon: record.Lon, Lat: record.Lat})
	}

	return clusterPoints(points, numberOfPoints, params), nil
}

func clusterPoints(points []Point, k int, params SearchParameters) []TaskCluster {
	if len(points) == 0 {
		return []TaskCluster{}
	}
	if k > len(points) {
		k = len(points)
	}

	assignments := kmeans(points, k)

	grouped := make(map[int][]Point, k)
	for i, cluster := range assignments {
		grouped[cluster] = append(grouped[cluster], points[i])
	}

	clusters := make([]TaskCluster, 0, len(grouped))
	for cluster := 0; cluster < k; cluster++ {
		members := grouped[cluster]
		if len(members) == 0 {
			continue
		}
		clusters = append(clusters, TaskCluster{
			ID:         len(clusters),
			PointCount: len(members),
			Centroid:   centroid(members),
			Bounding:   convexHull(members),
			Params:     params,
		})
	}

	return clusters
}
