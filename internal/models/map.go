package models

import (
	"github.com/territory-studio/engine/internal/geometry"
)

// Region is a polygon extracted from the source image. Its identity does not
// depend on any territory. Centroid, Area and Vertices are derived from
// Polygon and only written through Refresh.
type Region struct {
	RegionID            int              `json:"regionId"`
	Polygon             geometry.Polygon `json:"polygon"`
	Centroid            *geometry.Point  `json:"centroid,omitempty"`
	Area                float64          `json:"area"`
	Vertices            int              `json:"vertices"`
	AssignedTerritoryID *int             `json:"assignedTerritoryId,omitempty"`
}

// Refresh recomputes the derived geometry fields.
func (r *Region) Refresh() {
	r.Vertices = len(r.Polygon)
	r.Area = geometry.Area(r.Polygon)
	if c, ok := geometry.Centroid(r.Polygon); ok {
		r.Centroid = &c
	} else {
		r.Centroid = nil
	}
}

// Clone returns a deep copy of the region.
func (r Region) Clone() Region {
	out := r
	out.Polygon = geometry.Clone(r.Polygon)
	if r.Centroid != nil {
		c := *r.Centroid
		out.Centroid = &c
	}
	if r.AssignedTerritoryID != nil {
		id := *r.AssignedTerritoryID
		out.AssignedTerritoryID = &id
	}
	return out
}

// Group is a labelled, coloured category of territories.
type Group struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}
