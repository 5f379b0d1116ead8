package geo

import "math"

// ShapeLine is an ordered polyline in Web Mercator meters together with the
// cumulative arc-length at each vertex, letting callers project a point onto
// the line and recover both the distance-along-shape and the perpendicular
// offset in one pass. Built once per trip candidate and reused across the
// spatial and temporal match and the trip-metrics prediction.
type ShapeLine struct {
	points      []Point
	cumulative  []float64 // cumulative[i] is the arc-length from points[0] to points[i]
	totalLength float64
}

// NewShapeLine decodes an encoded polyline and projects it to Web Mercator,
// building the cumulative-length table used by Project/Interpolate/Length.
// Returns nil if the polyline decodes to fewer than two points.
func NewShapeLine(encodedPolyline string) *ShapeLine {
	latLngs := DecodePolyline(encodedPolyline)
	if len(latLngs) < 2 {
		return nil
	}
	points := make([]Point, len(latLngs))
	for i, ll := range latLngs {
		points[i] = Project(ll.Latitude, ll.Longitude)
	}
	cumulative := make([]float64, len(points))
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
		cumulative[i] = total
	}
	return &ShapeLine{points: points, cumulative: cumulative, totalLength: total}
}

// Length returns the total arc-length of the shape in meters.
func (s *ShapeLine) Length() float64 {
	return s.totalLength
}

// Project returns the arc-length distance along the shape of the closest
// point on the shape to p, and the perpendicular distance from p to the
// shape itself.
func (s *ShapeLine) Project(p Point) (progress float64, distanceFromShape float64) {
	bestDist := math.Inf(1)
	bestProgress := 0.0
	for i := 1; i < len(s.points); i++ {
		start := s.points[i-1]
		end := s.points[i]
		foot, t := nearestPointOnSegment(start, end, p)
		d := Distance(p, foot)
		if d < bestDist {
			bestDist = d
			segLen := Distance(start, end)
			bestProgress = s.cumulative[i-1] + t*segLen
		}
	}
	return bestProgress, bestDist
}

// Within reports whether p lies within distanceMeters of the shape (i.e.
// inside the shape buffered by distanceMeters).
func (s *ShapeLine) Within(p Point, distanceMeters float64) bool {
	_, dist := s.Project(p)
	return dist <= distanceMeters
}

// Interpolate returns the point on the shape at arc-length progress along it,
// clamped to [0, Length()].
func (s *ShapeLine) Interpolate(progress float64) Point {
	if progress <= 0 {
		return s.points[0]
	}
	if progress >= s.totalLength {
		return s.points[len(s.points)-1]
	}
	for i := 1; i < len(s.cumulative); i++ {
		if progress <= s.cumulative[i] {
			start := s.points[i-1]
			end := s.points[i]
			segLen := s.cumulative[i] - s.cumulative[i-1]
			if segLen == 0 {
				return start
			}
			t := (progress - s.cumulative[i-1]) / segLen
			return Point{
				X: start.X + (end.X-start.X)*t,
				Y: start.Y + (end.Y-start.Y)*t,
			}
		}
	}
	return s.points[len(s.points)-1]
}

// nearestPointOnSegment returns the closest point to p on the segment
// start→end, and t in [0,1] expressing how far along the segment that point
// lies. Adapted from the teacher's nearestLatLngToLineFromPoint, generalized
// to operate in projected meters rather than raw degrees.
func nearestPointOnSegment(start, end, p Point) (Point, float64) {
	dx := end.X - start.X
	dy := end.Y - start.Y
	lengthSquared := dx*dx + dy*dy
	t := 0.0
	if lengthSquared > 0 {
		t = ((p.X-start.X)*dx + (p.Y-start.Y)*dy) / lengthSquared
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	return Point{X: start.X + dx*t, Y: start.Y + dy*t}, t
}
