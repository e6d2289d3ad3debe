package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/territory-studio/engine/internal/geometry"
)

func TestDateJSON(t *testing.T) {
	var a Assignment
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"publisher":"Ann","dateAssigned":"2024-09-01","dateCompleted":null}`), &a))
	require.Equal(t, NewDate(2024, time.September, 1), a.DateAssigned)
	require.True(t, a.Ongoing())

	require.NoError(t, json.Unmarshal([]byte(`{"id":2,"publisher":"Bo","dateAssigned":"2024-09-01T15:04:05Z","dateCompleted":"2025-01-31"}`), &a))
	require.Equal(t, "2024-09-01", a.DateAssigned.String())
	require.False(t, a.Ongoing())

	b, err := json.Marshal(a)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":2,"publisher":"Bo","dateAssigned":"2024-09-01","dateCompleted":"2025-01-31"}`, string(b))

	require.Error(t, json.Unmarshal([]byte(`{"dateAssigned":"31/01/2025"}`), &a))
}

func TestTerritoryCloneIsDeep(t *testing.T) {
	gid := 2
	done := NewDate(2025, time.March, 3)
	orig := Territory{
		ID:          1,
		Number:      "12",
		GroupID:     &gid,
		Polygon:     geometry.Polygon{geometry.Pt(0, 0), geometry.Pt(1, 0), geometry.Pt(1, 1)},
		Assignments: []Assignment{{ID: 9, Publisher: "Cy", DateAssigned: NewDate(2025, time.January, 1), DateCompleted: &done}},
	}
	cp := orig.Clone()
	cp.Polygon[0] = geometry.Pt(5, 5)
	*cp.GroupID = 3
	cp.Assignments[0].Publisher = "Dee"
	*cp.Assignments[0].DateCompleted = NewDate(2026, time.March, 3)

	require.Equal(t, geometry.Pt(0, 0), orig.Polygon[0])
	require.Equal(t, 2, *orig.GroupID)
	require.Equal(t, "Cy", orig.Assignments[0].Publisher)
	require.Equal(t, done, *orig.Assignments[0].DateCompleted)
}

func TestRegionRefresh(t *testing.T) {
	r := Region{RegionID: 1, Polygon: geometry.Polygon{geometry.Pt(0, 0), geometry.Pt(10, 0), geometry.Pt(10, 10), geometry.Pt(0, 10)}}
	r.Refresh()
	require.Equal(t, 100.0, r.Area)
	require.Equal(t, 4, r.Vertices)
	require.Equal(t, geometry.Pt(5, 5), *r.Centroid)

	r.Polygon = nil
	r.Refresh()
	require.Nil(t, r.Centroid)
	require.Zero(t, r.Area)
}
