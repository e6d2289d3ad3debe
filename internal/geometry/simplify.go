package geometry

import "math"

// Simplify reduces the vertex count of poly with Ramer-Douglas-Peucker.
// Vertices closer than epsilon to the chord between kept vertices are
// dropped. Rings with fewer than three vertices are returned unchanged.
func Simplify(poly Polygon, epsilon float64) Polygon {
	if len(poly) < MinVertices || epsilon <= 0 {
		return Clone(poly)
	}
	return rdp(poly, epsilon)
}

func rdp(points Polygon, epsilon float64) Polygon {
	if len(points) < 3 {
		return Clone(points)
	}
	end := len(points) - 1
	var dmax float64
	index := 0
	for i := 1; i < end; i++ {
		d := distanceToLine(points[i], points[0], points[end])
		if d > dmax {
			index = i
			dmax = d
		}
	}
	if dmax <= epsilon {
		return Polygon{points[0], points[end]}
	}
	left := rdp(points[:index+1], epsilon)
	right := rdp(points[index:], epsilon)
	out := make(Polygon, 0, len(left)+len(right)-1)
	out = append(out, left[:len(left)-1]...)
	return append(out, right...)
}

func distanceToLine(p, a, b Point) float64 {
	if a == b {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	num := math.Abs((b.Y-a.Y)*p.X - (b.X-a.X)*p.Y + b.X*a.Y - b.Y*a.X)
	return num / math.Hypot(b.Y-a.Y, b.X-a.X)
}
