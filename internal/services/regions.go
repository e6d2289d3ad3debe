package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/events"
	"github.com/territory-studio/engine/internal/geometry"
	"github.com/territory-studio/engine/internal/models"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

// RegionStore manages the regions extracted from the source image.
type RegionStore interface {
	AddRegion(ctx context.Context, poly geometry.Polygon) (*models.Region, error)
	UpdateRegionPolygon(ctx context.Context, id int, poly geometry.Polygon) (*models.Region, error)
	DeleteRegion(ctx context.Context, id int) error
	GetRegion(id int) (*models.Region, bool)
	ListRegions() []models.Region
	MoveRegionVertex(id, vertex int, pt geometry.Point) error
	HitTest(pt geometry.Point) (*models.Region, bool)
	SimplifyRegions(ctx context.Context, epsilon float64) (int, error)
	Boundary() geometry.Polygon
}

var _ RegionStore = (*Workspace)(nil)

// AddRegion stores a new region with id max+1.
func (w *Workspace) AddRegion(ctx context.Context, poly geometry.Polygon) (*models.Region, error) {
	if len(poly) < geometry.MinVertices {
		return nil, appErr.Newf(appErr.CodeInvalidGeometry, "region needs at least %d vertices, got %d", geometry.MinVertices, len(poly))
	}
	w.mu.Lock()
	id := 0
	for _, r := range w.doc.ExtractedRegions {
		if r.RegionID > id {
			id = r.RegionID
		}
	}
	r := models.Region{RegionID: id + 1, Polygon: geometry.Clone(poly)}
	r.Refresh()
	w.doc.ExtractedRegions = append(w.doc.ExtractedRegions, r)
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("region added", zap.Int("region_id", r.RegionID), zap.Int("vertices", r.Vertices))
	out := r.Clone()
	return &out, w.emit(ctx, snap, gen, change{events.KindRegionAdded, r.Clone()})
}

// UpdateRegionPolygon replaces the polygon of a region. The territory the
// region is assigned to receives the same polygon.
func (w *Workspace) UpdateRegionPolygon(ctx context.Context, id int, poly geometry.Polygon) (*models.Region, error) {
	if len(poly) < geometry.MinVertices {
		return nil, appErr.Newf(appErr.CodeInvalidGeometry, "region needs at least %d vertices, got %d", geometry.MinVertices, len(poly))
	}
	w.mu.Lock()
	i := w.regionIndexLocked(id)
	if i < 0 {
		w.mu.Unlock()
		return nil, appErr.Newf(appErr.CodeNotFound, "region %d not found", id)
	}
	r := &w.doc.ExtractedRegions[i]
	r.Polygon = geometry.Clone(poly)
	r.Refresh()
	changes := []change{{events.KindRegionUpdated, r.Clone()}}
	if t := w.assignedTerritoryLocked(id); t != nil {
		t.Polygon = geometry.Clone(poly)
		changes = append(changes, change{events.KindUpdate, t.Clone()})
	}
	out := r.Clone()
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("region updated", zap.Int("region_id", id), zap.Int("vertices", out.Vertices))
	return &out, w.emit(ctx, snap, gen, changes...)
}

// DeleteRegion unassigns and removes a region. Missing ids are ignored.
func (w *Workspace) DeleteRegion(ctx context.Context, id int) error {
	w.mu.Lock()
	i := w.regionIndexLocked(id)
	if i < 0 {
		w.mu.Unlock()
		return nil
	}
	var changes []change
	if c, ok := w.unassignLocked(id); ok {
		changes = append(changes, c)
	}
	w.doc.ExtractedRegions = append(w.doc.ExtractedRegions[:i], w.doc.ExtractedRegions[i+1:]...)
	changes = append(changes, change{events.KindRegionDeleted, RegionRef{RegionID: id}})
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("region deleted", zap.Int("region_id", id))
	return w.emit(ctx, snap, gen, changes...)
}

func (w *Workspace) GetRegion(id int) (*models.Region, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.regionIndexLocked(id)
	if i < 0 {
		return nil, false
	}
	r := w.doc.ExtractedRegions[i].Clone()
	return &r, true
}

func (w *Workspace) ListRegions() []models.Region {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Region, len(w.doc.ExtractedRegions))
	for i, r := range w.doc.ExtractedRegions {
		out[i] = r.Clone()
	}
	return out
}

// Boundary returns the congregation boundary polygon.
func (w *Workspace) Boundary() geometry.Polygon {
	w.mu.Lock()
	defer w.mu.Unlock()
	return geometry.Clone(w.doc.CongregationBoundary)
}

// MoveRegionVertex moves one vertex in memory. Nothing is saved or published;
// callers commit the final polygon with UpdateRegionPolygon.
func (w *Workspace) MoveRegionVertex(id, vertex int, pt geometry.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.regionIndexLocked(id)
	if i < 0 {
		return appErr.Newf(appErr.CodeNotFound, "region %d not found", id)
	}
	r := &w.doc.ExtractedRegions[i]
	if vertex < 0 || vertex >= len(r.Polygon) {
		return appErr.Newf(appErr.CodeValidation, "vertex %d out of range", vertex)
	}
	r.Polygon[vertex] = pt
	r.Refresh()
	if t := w.assignedTerritoryLocked(id); t != nil && vertex < len(t.Polygon) {
		t.Polygon[vertex] = pt
	}
	return nil
}

// HitTest returns the first region, in list order, that contains pt.
func (w *Workspace) HitTest(pt geometry.Point) (*models.Region, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.doc.ExtractedRegions {
		if !geometry.Bounds(r.Polygon).Contains(pt) {
			continue
		}
		if geometry.PointInPolygon(pt, r.Polygon) {
			out := r.Clone()
			return &out, true
		}
	}
	return nil, false
}

// SimplifyRegions applies Ramer-Douglas-Peucker simplification to every
// region and returns how many changed. Results below three vertices are
// discarded.
func (w *Workspace) SimplifyRegions(ctx context.Context, epsilon float64) (int, error) {
	if epsilon <= 0 {
		return 0, appErr.New(appErr.CodeValidation, "epsilon must be positive")
	}
	w.mu.Lock()
	var changes []change
	before, after := 0, 0
	for i := range w.doc.ExtractedRegions {
		r := &w.doc.ExtractedRegions[i]
		simplified := geometry.Simplify(r.Polygon, epsilon)
		before += len(r.Polygon)
		if len(simplified) < geometry.MinVertices || len(simplified) == len(r.Polygon) {
			after += len(r.Polygon)
			continue
		}
		after += len(simplified)
		r.Polygon = simplified
		r.Refresh()
		if t := w.assignedTerritoryLocked(r.RegionID); t != nil {
			t.Polygon = geometry.Clone(simplified)
		}
		changes = append(changes, change{events.KindRegionUpdated, r.Clone()})
	}
	if len(changes) == 0 {
		w.mu.Unlock()
		return 0, nil
	}
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("regions simplified",
		zap.Int("changed", len(changes)),
		zap.Int("vertices_before", before),
		zap.Int("vertices_after", after),
		zap.Float64("epsilon", epsilon),
	)
	return len(changes), w.emit(ctx, snap, gen, changes...)
}

func (w *Workspace) regionIndexLocked(id int) int {
	for i := range w.doc.ExtractedRegions {
		if w.doc.ExtractedRegions[i].RegionID == id {
			return i
		}
	}
	return -1
}
