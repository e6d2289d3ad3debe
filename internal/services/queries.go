package services

import (
	"github.com/territory-studio/engine/internal/models"
)

// NeutralColor is returned for regions without an assigned, grouped territory.
const NeutralColor = "#999999"

// UnknownLabel is returned for regions without an assigned territory.
const UnknownLabel = "?"

// Ungrouped is the stats bucket of territories whose group cannot be found.
const Ungrouped = "ungrouped"

// ReadModel exposes derived, read-only views of the workspace.
type ReadModel interface {
	GetAssignedTerritory(regionID int) (*models.Territory, bool)
	IsRegionAssigned(regionID int) bool
	GetRegionLabel(regionID int) string
	GetRegionColor(regionID int) string
	GetTerritoriesWithoutPolygons() []models.Territory
	GetStats() Stats
}

var _ ReadModel = (*Workspace)(nil)

// Stats summarises placement of territories.
type Stats struct {
	Total           int            `json:"total"`
	WithPolygons    int            `json:"withPolygons"`
	WithoutPolygons int            `json:"withoutPolygons"`
	ByGroup         map[string]int `json:"byGroup"`
}

func (w *Workspace) GetAssignedTerritory(regionID int) (*models.Territory, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.assignedTerritoryLocked(regionID)
	if t == nil {
		return nil, false
	}
	out := t.Clone()
	return &out, true
}

func (w *Workspace) IsRegionAssigned(regionID int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.index[regionID]
	return ok
}

// GetRegionLabel returns the number of the assigned territory, or "?".
func (w *Workspace) GetRegionLabel(regionID int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.assignedTerritoryLocked(regionID)
	if t == nil || t.Number == "" {
		return UnknownLabel
	}
	return t.Number
}

// GetRegionColor returns the group colour of the assigned territory, or
// NeutralColor.
func (w *Workspace) GetRegionColor(regionID int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.assignedTerritoryLocked(regionID)
	if t == nil {
		return NeutralColor
	}
	if g := w.groupOfLocked(t); g != nil && g.Color != "" {
		return g.Color
	}
	return NeutralColor
}

func (w *Workspace) GetTerritoriesWithoutPolygons() []models.Territory {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := []models.Territory{}
	for _, t := range w.doc.TerritoryData.Territories {
		if !t.Placed() {
			out = append(out, t.Clone())
		}
	}
	return out
}

// GetStats counts territories by placement and by group name.
func (w *Workspace) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Stats{ByGroup: map[string]int{}}
	for i := range w.doc.TerritoryData.Territories {
		t := &w.doc.TerritoryData.Territories[i]
		s.Total++
		if t.Placed() {
			s.WithPolygons++
		} else {
			s.WithoutPolygons++
		}
		name := Ungrouped
		if g := w.groupOfLocked(t); g != nil {
			name = g.Name
		}
		s.ByGroup[name]++
	}
	return s
}

func (w *Workspace) groupOfLocked(t *models.Territory) *models.Group {
	if t.GroupID != nil {
		if i := w.groupIndexLocked(*t.GroupID); i >= 0 {
			return &w.doc.TerritoryData.Groups[i]
		}
		return nil
	}
	if t.Group != "" {
		if i := w.groupByNameLocked(t.Group); i >= 0 {
			return &w.doc.TerritoryData.Groups[i]
		}
	}
	return nil
}
