package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/events"
	"github.com/territory-studio/engine/internal/geometry"
	"github.com/territory-studio/engine/internal/models"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

// AssignmentIndex maintains the one-to-one link between regions and
// territories.
type AssignmentIndex interface {
	AssignRegion(ctx context.Context, regionID, territoryID int) (*models.Territory, error)
	UnassignRegion(ctx context.Context, regionID int) error
	RebuildIndex(ctx context.Context) (int, error)
	CheckIndex() error
}

var _ AssignmentIndex = (*Workspace)(nil)

// RegionRef is the payload of region deletions.
type RegionRef struct {
	RegionID int `json:"regionId"`
}

// Link is the payload of assignment events. A nil TerritoryID means the
// region was unassigned.
type Link struct {
	RegionID    int  `json:"regionId"`
	TerritoryID *int `json:"territoryId"`
}

// RebuildResult is the payload of the init event published by RebuildIndex.
type RebuildResult struct {
	Linked int `json:"linked"`
}

// AssignRegion links a region to a territory and copies the region polygon
// onto the territory. Existing links of either side are dropped first.
func (w *Workspace) AssignRegion(ctx context.Context, regionID, territoryID int) (*models.Territory, error) {
	w.mu.Lock()
	ri := w.regionIndexLocked(regionID)
	if ri < 0 {
		w.mu.Unlock()
		return nil, appErr.Newf(appErr.CodeNotFound, "region %d not found", regionID)
	}
	ti := w.territoryIndexLocked(territoryID)
	if ti < 0 {
		w.mu.Unlock()
		return nil, appErr.Newf(appErr.CodeNotFound, "territory %d not found", territoryID)
	}

	var changes []change
	if prev, ok := w.index[regionID]; ok && prev != territoryID {
		if c, ok := w.unassignLocked(regionID); ok {
			changes = append(changes, c)
		}
	}
	for rid, tid := range w.index {
		if tid == territoryID && rid != regionID {
			delete(w.index, rid)
			if j := w.regionIndexLocked(rid); j >= 0 {
				w.doc.ExtractedRegions[j].AssignedTerritoryID = nil
			}
			changes = append(changes, change{events.KindAssignment, Link{RegionID: rid}})
		}
	}

	region := &w.doc.ExtractedRegions[ri]
	territory := &w.doc.TerritoryData.Territories[ti]
	w.index[regionID] = territoryID
	tid := territoryID
	region.AssignedTerritoryID = &tid
	territory.Polygon = geometry.Clone(region.Polygon)
	linked := territoryID
	changes = append(changes, change{events.KindAssignment, Link{RegionID: regionID, TerritoryID: &linked}})
	out := territory.Clone()
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("region assigned", zap.Int("region_id", regionID), zap.Int("territory_id", territoryID))
	return &out, w.emit(ctx, snap, gen, changes...)
}

// UnassignRegion removes the link of a region and clears the territory
// polygon. Unlinked or missing regions are ignored.
func (w *Workspace) UnassignRegion(ctx context.Context, regionID int) error {
	w.mu.Lock()
	c, ok := w.unassignLocked(regionID)
	if !ok {
		w.mu.Unlock()
		return nil
	}
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("region unassigned", zap.Int("region_id", regionID))
	return w.emit(ctx, snap, gen, c)
}

// RebuildIndex discards every link and matches territories to regions by
// approximate polygon equality. It returns the number of links found.
func (w *Workspace) RebuildIndex(ctx context.Context) (int, error) {
	w.mu.Lock()
	n := w.rebuildLocked()
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("assignment index rebuilt", zap.Int("linked", n))
	return n, w.emit(ctx, snap, gen, change{events.KindInit, RebuildResult{Linked: n}})
}

// CheckIndex verifies that the index, the region back-references and the
// territory polygons agree.
func (w *Workspace) CheckIndex() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	seen := map[int]int{}
	for rid, tid := range w.index {
		ri := w.regionIndexLocked(rid)
		if ri < 0 {
			return fmt.Errorf("index maps missing region %d", rid)
		}
		r := w.doc.ExtractedRegions[ri]
		if r.AssignedTerritoryID == nil || *r.AssignedTerritoryID != tid {
			return fmt.Errorf("region %d back-reference does not match territory %d", rid, tid)
		}
		ti := w.territoryIndexLocked(tid)
		if ti < 0 {
			return fmt.Errorf("index maps region %d to missing territory %d", rid, tid)
		}
		if !geometry.Equal(r.Polygon, w.doc.TerritoryData.Territories[ti].Polygon) {
			return fmt.Errorf("territory %d polygon differs from region %d", tid, rid)
		}
		if other, dup := seen[tid]; dup {
			return fmt.Errorf("territory %d linked to regions %d and %d", tid, other, rid)
		}
		seen[tid] = rid
	}
	for _, r := range w.doc.ExtractedRegions {
		if r.AssignedTerritoryID == nil {
			continue
		}
		if tid, ok := w.index[r.RegionID]; !ok || tid != *r.AssignedTerritoryID {
			return fmt.Errorf("region %d back-reference missing from index", r.RegionID)
		}
	}
	return nil
}

func (w *Workspace) rebuildLocked() int {
	w.index = map[int]int{}
	for i := range w.doc.ExtractedRegions {
		w.doc.ExtractedRegions[i].AssignedTerritoryID = nil
	}
	n := 0
	for _, t := range w.doc.TerritoryData.Territories {
		if !t.Placed() {
			continue
		}
		for i := range w.doc.ExtractedRegions {
			r := &w.doc.ExtractedRegions[i]
			if r.AssignedTerritoryID != nil {
				continue
			}
			if geometry.ApproxEqual(r.Polygon, t.Polygon, w.opts.MatchTolerance) {
				tid := t.ID
				r.AssignedTerritoryID = &tid
				w.index[r.RegionID] = t.ID
				n++
				break
			}
		}
	}
	return n
}

// unassignLocked drops the link of regionID, clearing the territory polygon.
func (w *Workspace) unassignLocked(regionID int) (change, bool) {
	tid, ok := w.index[regionID]
	if !ok {
		return change{}, false
	}
	delete(w.index, regionID)
	if i := w.regionIndexLocked(regionID); i >= 0 {
		w.doc.ExtractedRegions[i].AssignedTerritoryID = nil
	}
	if i := w.territoryIndexLocked(tid); i >= 0 {
		w.doc.TerritoryData.Territories[i].Polygon = geometry.Polygon{}
	}
	return change{events.KindAssignment, Link{RegionID: regionID}}, true
}

// detachTerritoryLocked drops the link pointing at territoryID without
// touching its polygon.
func (w *Workspace) detachTerritoryLocked(territoryID int) (change, bool) {
	for rid, tid := range w.index {
		if tid != territoryID {
			continue
		}
		delete(w.index, rid)
		if i := w.regionIndexLocked(rid); i >= 0 {
			w.doc.ExtractedRegions[i].AssignedTerritoryID = nil
		}
		return change{events.KindAssignment, Link{RegionID: rid}}, true
	}
	return change{}, false
}

func (w *Workspace) assignedTerritoryLocked(regionID int) *models.Territory {
	tid, ok := w.index[regionID]
	if !ok {
		return nil
	}
	i := w.territoryIndexLocked(tid)
	if i < 0 {
		return nil
	}
	return &w.doc.TerritoryData.Territories[i]
}

func (w *Workspace) regionOfTerritoryLocked(territoryID int) (int, bool) {
	for rid, tid := range w.index {
		if tid == territoryID {
			return rid, true
		}
	}
	return 0, false
}
