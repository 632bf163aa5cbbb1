package review

import "sort"

const kmeansIterations = 16

// kmeans assigns every point to one of k clusters by planar lon/lat
// proximity. Initial centroids are spread evenly over the input order, so the
// result is deterministic for a given input.
func kmeans(points []Point, k int) []int {
	if len(points) == 0 || k <= 0 {
		return nil
	}
	if k > len(points) {
		k = len(points)
	}

	centroids := make([]Point, k)
	for i := 0; i < k; i++ {
		centroids[i] = points[(i*len(points))/k]
	}

	assignments := make([]int, len(points))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, point := range points {
			best := 0
			bestDist := squaredDistance(point, centroids[0])
			for j := 1; j < k; j++ {
				if d := squaredDistance(point, centroids[j]); d < bestDist {
					best = j
					bestDist = d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sumLon := make([]float64, k)
		sumLat := make([]float64, k)
		counts := make([]int, k)
		for i, point := range points {
			cluster := assignments[i]
			sumLon[cluster] += point.Lon
			sumLat[cluster] += point.Lat
			counts[cluster]++
		}
		for j := 0; j < k; j++ {
			// An emptied cluster keeps its previous centroid.
			if counts[j] > 0 {
				centroids[j] = Point{Lon: sumLon[j] / float64(counts[j]), Lat: sumLat[j] / float64(counts[j])}
			}
		}
	}

	return assignments
}

func centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}

	var sumLon, sumLat float64
	for _, point := range points {
		sumLon += point.Lon
		sumLat += point.Lat
	}

	return Point{Lon: sumLon / float64(len(points)), Lat: sumLat / float64(len(points))}
}

// convexHull computes the convex bounding ring of the points with the
// monotone chain algorithm, counter-clockwise, without repeating the first
// vertex. Fewer than three distinct points degenerate to the points
// themselves.
func convexHull(points []Point) []Point {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Lon != sorted[j].Lon {
			return sorted[i].Lon < sorted[j].Lon
		}
		return sorted[i].Lat < sorted[j].Lat
	})

	deduped := sorted[:0]
	for i, point := range sorted {
		if i == 0 || point != deduped[len(deduped)-1] {
			deduped = append(deduped, point)
		}
	}
	sorted = deduped

	if len(sorted) < 3 {
		hull := make([]Point, len(sorted))
		copy(hull, sorted)
		return hull
	}

	var lower []Point
	for _, point := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], point) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, point)
	}

	var upper []Point
	for i := len(sorted) - 1; i >= 0; i-- {
		point := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], point) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, point)
	}

	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

func cross(o, a, b Point) float64 {
	return (a.Lon-o.Lon)*(b.Lat-o.Lat) - (a.Lat-o.Lat)*(b.Lon-o.Lon)
}

func squaredDistance(a, b Point) float64 {
	dLon := a.Lon - b.Lon
	dLat := a.Lat - b.Lat
	return dLon*dLon + dLat*dLat
}
