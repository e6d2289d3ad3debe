// Package geometry holds the stateless polygon kernel used by the region and
// territory stores. Coordinates are source-image pixels. Every function is
// total: degenerate input yields a neutral value instead of an error.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"
)

// MinVertices is the smallest vertex count of a renderable, assignable polygon.
const MinVertices = 3

// Point is a vertex in source-image pixel space. It is encoded as [x, y].
type Point struct {
	X float64
	Y float64
}

// Pt is a convenience constructor.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON accepts [x, y] and the object form {"x": .., "y": ..}.
func (p *Point) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("point: expected 2 coordinates, got %d", len(pair))
		}
		p.X, p.Y = pair[0], pair[1]
		return nil
	}
	var obj struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	if obj.X == nil || obj.Y == nil {
		return fmt.Errorf("point: missing x or y")
	}
	p.X, p.Y = *obj.X, *obj.Y
	return nil
}

// Polygon is an ordered vertex ring; the last vertex connects to the first.
type Polygon []Point

// Clone returns a deep copy. A nil polygon stays nil.
func Clone(poly Polygon) Polygon {
	if poly == nil {
		return nil
	}
	out := make(Polygon, len(poly))
	copy(out, poly)
	return out
}

// Centroid returns the arithmetic mean of all vertices. ok is false for an
// empty polygon.
func Centroid(poly Polygon) (c Point, ok bool) {
	if len(poly) == 0 {
		return Point{}, false
	}
	var sx, sy float64
	for _, p := range poly {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(poly))
	return Point{X: sx / n, Y: sy / n}, true
}

// Area is the absolute shoelace area over the implicit closure.
func Area(poly Polygon) float64 {
	n := len(poly)
	if n < MinVertices {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return math.Abs(sum) / 2
}

// PointInPolygon is an even-odd ray casting test. Edges are half-open in y so
// a vertex shared by two edges is counted once.
func PointInPolygon(pt Point, poly Polygon) bool {
	n := len(poly)
	if n < MinVertices {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := poly[i].X, poly[i].Y
		xj, yj := poly[j].X, poly[j].Y
		if (yi > pt.Y) != (yj > pt.Y) && pt.X < (xj-xi)*(pt.Y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// NearestVertex returns the index of the first vertex, in ring order, whose
// Euclidean distance to pt is below threshold, or -1. It is a first-match
// scan, not a closest-match search.
func NearestVertex(poly Polygon, pt Point, threshold float64) int {
	for i, v := range poly {
		if math.Hypot(v.X-pt.X, v.Y-pt.Y) < threshold {
			return i
		}
	}
	return -1
}

// ApproxEqual reports whether a and b have the same vertex count and their
// first min(3, n) vertices agree within tol on each axis. Both rings must use
// the same start vertex and winding for this to match.
func ApproxEqual(a, b Polygon, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	n := len(a)
	if n > 3 {
		n = 3
	}
	for i := 0; i < n; i++ {
		if math.Abs(a[i].X-b[i].X) > tol || math.Abs(a[i].Y-b[i].Y) > tol {
			return false
		}
	}
	return true
}

// Equal reports exact vertex-wise equality.
func Equal(a, b Polygon) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
