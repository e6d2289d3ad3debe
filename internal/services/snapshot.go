package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/events"
	"github.com/territory-studio/engine/internal/models"
	"github.com/territory-studio/engine/pkg/logger"
)

// Snapshot is a deep copy of the editable collections of a workspace. Groups
// are included so restored territories always reference existing groups.
type Snapshot struct {
	Regions     []models.Region
	Territories []models.Territory
	Groups      []models.Group
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Regions:     make([]models.Region, len(s.Regions)),
		Territories: make([]models.Territory, len(s.Territories)),
		Groups:      append([]models.Group(nil), s.Groups...),
	}
	for i, r := range s.Regions {
		out.Regions[i] = r.Clone()
	}
	for i, t := range s.Territories {
		out.Territories[i] = t.Clone()
	}
	return out
}

// Snapshot captures the current regions, territories and groups.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		Regions:     w.doc.ExtractedRegions,
		Territories: w.doc.TerritoryData.Territories,
		Groups:      w.doc.TerritoryData.Groups,
	}.Clone()
}

// Restore replaces regions, territories and groups with s, rebuilds the index from
// the restored back-references, publishes init and saves.
func (w *Workspace) Restore(ctx context.Context, s Snapshot) error {
	s = s.Clone()
	w.mu.Lock()
	w.doc.ExtractedRegions = s.Regions
	w.doc.TerritoryData.Territories = s.Territories
	if s.Groups == nil {
		s.Groups = []models.Group{}
	}
	w.doc.TerritoryData.Groups = s.Groups
	w.index = map[int]int{}
	for _, r := range w.doc.ExtractedRegions {
		if r.AssignedTerritoryID != nil {
			w.index[r.RegionID] = *r.AssignedTerritoryID
		}
	}
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("workspace restored",
		zap.Int("regions", len(s.Regions)),
		zap.Int("territories", len(s.Territories)),
		zap.Int("groups", len(s.Groups)),
	)
	return w.emit(ctx, snap, gen, change{events.KindInit, nil})
}
