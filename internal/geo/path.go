package geo

// InterpolatePath returns n+1 points evenly spaced by parameter t along the
// straight lat/lng line from start to end, both endpoints included.
// Values of n below 1 are treated as 1.
func InterpolatePath(start, end Point, n int) []Point {
	if n < 1 {
		n = 1
	}
	path := make([]Point, n+1)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		path[i] = Point{
			Lat: start.Lat + (end.Lat-start.Lat)*t,
			Lng: start.Lng + (end.Lng-start.Lng)*t,
		}
	}
	// Pin the endpoint exactly; t=1 arithmetic may drift in the last bit.
	path[n] = end
	return path
}

// ClosestIndex returns the index of the path point nearest to pos, or -1 for an empty path.
// Ties resolve to the lowest index.
func ClosestIndex(path []Point, pos Point) int {
	best, bestDist := -1, 0.0
	for i, p := range path {
		d := Distance(p, pos)
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// AdvanceAlongPath moves from currentPos forward along path by distanceKm.
//
// It starts at the path index closest to currentPos and walks towards the
// following waypoints, consuming the distance segment by segment. When the
// remaining budget covers the rest of the path the result is clamped to the
// final waypoint and reachedEnd is true. The position never overshoots the
// final waypoint and never moves backwards along the path.
func AdvanceAlongPath(path []Point, currentPos Point, distanceKm float64) (Point, bool) {
	if len(path) == 0 {
		return currentPos, true
	}
	last := len(path) - 1
	// Head for the waypoint after the closest one; once the closest is the
	// final waypoint, head for it directly.
	target := ClosestIndex(path, currentPos) + 1
	if target > last {
		target = last
	}
	if distanceKm < 0 {
		distanceKm = 0
	}

	pos := currentPos
	remaining := distanceKm
	for ; target <= last; target++ {
		next := path[target]
		seg := Distance(pos, next)
		if remaining < seg {
			f := remaining / seg
			return Point{
				Lat: pos.Lat + (next.Lat-pos.Lat)*f,
				Lng: pos.Lng + (next.Lng-pos.Lng)*f,
			}, false
		}
		remaining -= seg
		pos = next
	}
	return path[last], true
}
