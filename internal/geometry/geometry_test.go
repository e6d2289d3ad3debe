package geometry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

var square = Polygon{Pt(0, 0), Pt(10, 0), Pt(10, 10), Pt(0, 10)}

func reversed(p Polygon) Polygon {
	out := make(Polygon, len(p))
	for i := range p {
		out[len(p)-1-i] = p[i]
	}
	return out
}

func rotated(p Polygon) Polygon {
	return append(Clone(p[1:]), p[0])
}

func TestCentroidAndAreaOfSquare(t *testing.T) {
	c, ok := Centroid(square)
	require.True(t, ok)
	require.Equal(t, Pt(5, 5), c)
	require.Equal(t, 100.0, Area(square))
}

func TestCentroidDegenerate(t *testing.T) {
	_, ok := Centroid(nil)
	require.False(t, ok)

	c, ok := Centroid(Polygon{Pt(2, 2), Pt(4, 6)})
	require.True(t, ok)
	require.Equal(t, Pt(3, 4), c)
}

func TestAreaIsOrientationAndRotationInvariant(t *testing.T) {
	shapes := []Polygon{
		square,
		{Pt(0, 0), Pt(4, 0), Pt(0, 3)},
		{Pt(1, 1), Pt(8, 2), Pt(9, 7), Pt(5, 4), Pt(2, 9)},
		{Pt(120.5, 33.25), Pt(410, 80), Pt(390.75, 402), Pt(100, 350)},
	}
	for _, p := range shapes {
		a := Area(p)
		require.Greater(t, a, 0.0)
		require.InDelta(t, a, Area(reversed(p)), 1e-9)
		require.InDelta(t, a, Area(rotated(p)), 1e-9)
	}
	require.Zero(t, Area(Polygon{Pt(0, 0), Pt(1, 1)}))
}

func TestPointInPolygon(t *testing.T) {
	require.True(t, PointInPolygon(Pt(5, 5), square))
	require.False(t, PointInPolygon(Pt(15, 5), square))
	require.False(t, PointInPolygon(Pt(5, 5), Polygon{Pt(0, 0), Pt(10, 10)}))

	concave := Polygon{Pt(0, 0), Pt(10, 0), Pt(10, 10), Pt(5, 3), Pt(0, 10)}
	require.True(t, PointInPolygon(Pt(2, 2), concave))
	require.False(t, PointInPolygon(Pt(5, 8), concave))
}

func TestPointInPolygonBoundaryIsDeterministic(t *testing.T) {
	for _, pt := range []Point{Pt(0, 0), Pt(10, 5), Pt(5, 10), Pt(0, 5)} {
		first := PointInPolygon(pt, square)
		for i := 0; i < 10; i++ {
			require.Equal(t, first, PointInPolygon(pt, square))
		}
	}
}

func TestNearestVertexIsFirstMatch(t *testing.T) {
	poly := Polygon{Pt(-10, 0), Pt(6, 0), Pt(3, 0)}

	// Both index 1 (distance 3) and index 2 (distance 0) are within the
	// threshold; iteration order wins.
	require.Equal(t, 1, NearestVertex(poly, Pt(3, 0), 4))
	require.Equal(t, 2, NearestVertex(poly, Pt(3, 0), 1))
	require.Equal(t, -1, NearestVertex(poly, Pt(50, 50), 10))
	require.Equal(t, -1, NearestVertex(nil, Pt(0, 0), 10))
}

func TestApproxEqual(t *testing.T) {
	drifted := Polygon{Pt(3, -4), Pt(19, 2), Pt(10, 10), Pt(-200, 10)}
	require.True(t, ApproxEqual(square, Polygon{Pt(5, 5), Pt(15, 5), Pt(5, 15), Pt(0, 10)}, 10))
	require.False(t, ApproxEqual(square, drifted, 5))
	require.False(t, ApproxEqual(square, square[:3], 10))
	require.False(t, ApproxEqual(square, rotated(square), 5))
}

func TestBounds(t *testing.T) {
	b := Bounds(square)
	require.True(t, b.Contains(Pt(10, 10)))
	require.False(t, b.Contains(Pt(10.1, 3)))
	require.False(t, Bounds(nil).Contains(Pt(0, 0)))
}

func TestSimplify(t *testing.T) {
	noisy := Polygon{Pt(0, 0), Pt(5, 0.4), Pt(10, 0), Pt(10, 10), Pt(5, 10.3), Pt(0, 10)}
	out := Simplify(noisy, 1)
	require.Equal(t, Polygon{Pt(0, 0), Pt(10, 0), Pt(10, 10), Pt(0, 10)}, out)
	require.Len(t, noisy, 6, "input must not be modified")

	require.Equal(t, square, Simplify(square, 0))
}

func TestPointJSON(t *testing.T) {
	b, err := json.Marshal(Polygon{Pt(1, 2), Pt(3.5, 4)})
	require.NoError(t, err)
	require.JSONEq(t, `[[1,2],[3.5,4]]`, string(b))

	var p Polygon
	require.NoError(t, json.Unmarshal([]byte(`[[1,2],{"x":3,"y":4}]`), &p))
	require.Equal(t, Polygon{Pt(1, 2), Pt(3, 4)}, p)

	require.Error(t, json.Unmarshal([]byte(`[[1,2,3]]`), &p))
}
