package geometry

import "math"

// BBox is an axis-aligned bounding box. An empty BBox contains nothing.
type BBox struct {
	Min   Point
	Max   Point
	Empty bool
}

// Bounds computes the bounding box of poly.
func Bounds(poly Polygon) BBox {
	if len(poly) == 0 {
		return BBox{Empty: true}
	}
	b := BBox{
		Min: Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, p := range poly {
		b.Min.X = math.Min(b.Min.X, p.X)
		b.Min.Y = math.Min(b.Min.Y, p.Y)
		b.Max.X = math.Max(b.Max.X, p.X)
		b.Max.Y = math.Max(b.Max.Y, p.Y)
	}
	return b
}

// Contains reports whether pt lies inside or on the box.
func (b BBox) Contains(pt Point) bool {
	if b.Empty {
		return false
	}
	return pt.X >= b.Min.X && pt.X <= b.Max.X && pt.Y >= b.Min.Y && pt.Y <= b.Max.Y
}
