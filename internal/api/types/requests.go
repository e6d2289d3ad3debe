package types

import "github.com/territory-studio/engine/internal/geometry"

type PolygonRequest struct {
	Polygon geometry.Polygon `json:"polygon" validate:"required"`
}

type VertexMoveRequest struct {
	Vertex *int           `json:"vertex" validate:"required,gte=0"`
	Point  geometry.Point `json:"point"`
}

type AssignRequest struct {
	TerritoryID int `json:"territoryId" validate:"required,gte=1"`
}

type SimplifyRequest struct {
	Epsilon float64 `json:"epsilon" validate:"omitempty,gt=0"`
}

type RestoreRequest struct {
	Version int `json:"version" validate:"required,gte=1"`
}
