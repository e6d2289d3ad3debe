package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/events"
	"github.com/territory-studio/engine/internal/geometry"
	"github.com/territory-studio/engine/internal/models"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
	"github.com/territory-studio/engine/pkg/validation"
)

// TerritoryStore manages territories and their assignment history.
type TerritoryStore interface {
	AddTerritory(ctx context.Context, input *CreateTerritoryInput) (*models.Territory, error)
	UpdateTerritory(ctx context.Context, id int, input *UpdateTerritoryInput) (*models.Territory, error)
	UpdateTerritoryPolygon(ctx context.Context, id int, poly geometry.Polygon) (*models.Territory, error)
	DeleteTerritory(ctx context.Context, id int) error
	GetTerritory(id int) (*models.Territory, bool)
	ListTerritories() []models.Territory

	AddAssignment(ctx context.Context, territoryID int, input *CreateAssignmentInput) (*models.Assignment, error)
	UpdateAssignment(ctx context.Context, territoryID int, assignmentID int64, input *UpdateAssignmentInput) (*models.Assignment, error)
	DeleteAssignment(ctx context.Context, territoryID int, assignmentID int64) error
}

var _ TerritoryStore = (*Workspace)(nil)

type CreateTerritoryInput struct {
	ID          *int             `json:"id" validate:"omitempty,gte=1"`
	Number      string           `json:"number" validate:"required"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	GroupID     *int             `json:"groupId"`
	Group       string           `json:"group"`
	Polygon     geometry.Polygon `json:"polygon"`
}

// UpdateTerritoryInput patches a territory. Nil fields are left untouched.
type UpdateTerritoryInput struct {
	Number      *string           `json:"number"`
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	GroupID     *int              `json:"groupId"`
	Group       *string           `json:"group"`
	Polygon     *geometry.Polygon `json:"polygon"`
}

type CreateAssignmentInput struct {
	Publisher     string       `json:"publisher" validate:"required"`
	DateAssigned  *models.Date `json:"dateAssigned" validate:"required"`
	DateCompleted *models.Date `json:"dateCompleted"`
}

// UpdateAssignmentInput patches an assignment. ClearCompleted reopens it.
type UpdateAssignmentInput struct {
	Publisher      *string      `json:"publisher"`
	DateAssigned   *models.Date `json:"dateAssigned"`
	DateCompleted  *models.Date `json:"dateCompleted"`
	ClearCompleted bool         `json:"clearCompleted"`
}

// AssignmentRef is the payload of assignment history events.
type AssignmentRef struct {
	TerritoryID  int                `json:"territoryId"`
	AssignmentID int64              `json:"assignmentId"`
	Assignment   *models.Assignment `json:"assignment,omitempty"`
}

// TerritoryRef is the payload of territory deletions.
type TerritoryRef struct {
	ID int `json:"id"`
}

func (w *Workspace) AddTerritory(ctx context.Context, input *CreateTerritoryInput) (*models.Territory, error) {
	if input == nil {
		return nil, appErr.New(appErr.CodeValidation, "territory input required")
	}
	input.Number = strings.TrimSpace(input.Number)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if len(input.Polygon) > 0 && len(input.Polygon) < geometry.MinVertices {
		return nil, appErr.Newf(appErr.CodeInvalidGeometry, "territory polygon needs at least %d vertices", geometry.MinVertices)
	}

	w.mu.Lock()
	groupID, err := w.resolveGroupLocked(input.GroupID, input.Group)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	var id int
	if input.ID != nil {
		id = *input.ID
		if w.territoryIndexLocked(id) >= 0 {
			w.mu.Unlock()
			return nil, appErr.Newf(appErr.CodeDuplicateID, "territory %d already exists", id)
		}
	} else {
		for _, t := range w.doc.TerritoryData.Territories {
			if t.ID > id {
				id = t.ID
			}
		}
		id++
	}
	t := models.Territory{
		ID:          id,
		Number:      input.Number,
		Name:        input.Name,
		Description: input.Description,
		GroupID:     groupID,
		Polygon:     geometry.Clone(input.Polygon),
		Assignments: []models.Assignment{},
	}
	if t.Polygon == nil {
		t.Polygon = geometry.Polygon{}
	}
	w.doc.TerritoryData.Territories = append(w.doc.TerritoryData.Territories, t)
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("territory added", zap.Int("territory_id", id), zap.String("number", t.Number))
	out := t.Clone()
	return &out, w.emit(ctx, snap, gen, change{events.KindAdd, t.Clone()})
}

// UpdateTerritory merges the supplied fields over the territory. Giving an
// assigned territory a polygon different from its region's detaches it.
func (w *Workspace) UpdateTerritory(ctx context.Context, id int, input *UpdateTerritoryInput) (*models.Territory, error) {
	if input == nil {
		return nil, appErr.New(appErr.CodeValidation, "territory input required")
	}
	if input.Number != nil {
		n := strings.TrimSpace(*input.Number)
		if n == "" {
			return nil, appErr.New(appErr.CodeValidation, "number failed required")
		}
		input.Number = &n
	}
	if input.Polygon != nil && len(*input.Polygon) > 0 && len(*input.Polygon) < geometry.MinVertices {
		return nil, appErr.Newf(appErr.CodeInvalidGeometry, "territory polygon needs at least %d vertices", geometry.MinVertices)
	}

	w.mu.Lock()
	i := w.territoryIndexLocked(id)
	if i < 0 {
		w.mu.Unlock()
		return nil, appErr.Newf(appErr.CodeNotFound, "territory %d not found", id)
	}
	var groupID *int
	if input.GroupID != nil || input.Group != nil {
		name := ""
		if input.Group != nil {
			name = *input.Group
		}
		gid, err := w.resolveGroupLocked(input.GroupID, name)
		if err != nil {
			w.mu.Unlock()
			return nil, err
		}
		groupID = gid
	}

	t := &w.doc.TerritoryData.Territories[i]
	if input.Number != nil {
		t.Number = *input.Number
	}
	if input.Name != nil {
		t.Name = *input.Name
	}
	if input.Description != nil {
		t.Description = *input.Description
	}
	if groupID != nil {
		t.GroupID = groupID
		t.Group = ""
	}
	var changes []change
	if input.Polygon != nil {
		if rid, linked := w.regionOfTerritoryLocked(id); linked {
			r := w.doc.ExtractedRegions[w.regionIndexLocked(rid)]
			if !geometry.Equal(r.Polygon, *input.Polygon) {
				if c, ok := w.detachTerritoryLocked(id); ok {
					changes = append(changes, c)
				}
			}
		}
		t.Polygon = geometry.Clone(*input.Polygon)
		if t.Polygon == nil {
			t.Polygon = geometry.Polygon{}
		}
	}
	out := t.Clone()
	changes = append(changes, change{events.KindUpdate, t.Clone()})
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("territory updated", zap.Int("territory_id", id))
	return &out, w.emit(ctx, snap, gen, changes...)
}

// UpdateTerritoryPolygon sets the territory polygon. An empty polygon marks
// the territory unplaced.
func (w *Workspace) UpdateTerritoryPolygon(ctx context.Context, id int, poly geometry.Polygon) (*models.Territory, error) {
	if poly == nil {
		poly = geometry.Polygon{}
	}
	return w.UpdateTerritory(ctx, id, &UpdateTerritoryInput{Polygon: &poly})
}

// DeleteTerritory unassigns and removes a territory. Missing ids are ignored.
func (w *Workspace) DeleteTerritory(ctx context.Context, id int) error {
	w.mu.Lock()
	i := w.territoryIndexLocked(id)
	if i < 0 {
		w.mu.Unlock()
		return nil
	}
	var changes []change
	if c, ok := w.detachTerritoryLocked(id); ok {
		changes = append(changes, c)
	}
	w.doc.TerritoryData.Territories = append(w.doc.TerritoryData.Territories[:i], w.doc.TerritoryData.Territories[i+1:]...)
	changes = append(changes, change{events.KindDelete, TerritoryRef{ID: id}})
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("territory deleted", zap.Int("territory_id", id))
	return w.emit(ctx, snap, gen, changes...)
}

func (w *Workspace) GetTerritory(id int) (*models.Territory, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.territoryIndexLocked(id)
	if i < 0 {
		return nil, false
	}
	t := w.doc.TerritoryData.Territories[i].Clone()
	return &t, true
}

func (w *Workspace) ListTerritories() []models.Territory {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Territory, len(w.doc.TerritoryData.Territories))
	for i, t := range w.doc.TerritoryData.Territories {
		out[i] = t.Clone()
	}
	return out
}

// AddAssignment appends an assignment with a fresh process-unique id.
func (w *Workspace) AddAssignment(ctx context.Context, territoryID int, input *CreateAssignmentInput) (*models.Assignment, error) {
	if input == nil {
		return nil, appErr.New(appErr.CodeValidation, "assignment input required")
	}
	input.Publisher = strings.TrimSpace(input.Publisher)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if input.DateAssigned.IsZero() {
		return nil, appErr.New(appErr.CodeValidation, "dateAssigned failed required")
	}

	w.mu.Lock()
	i := w.territoryIndexLocked(territoryID)
	if i < 0 {
		w.mu.Unlock()
		return nil, appErr.Newf(appErr.CodeNotFound, "territory %d not found", territoryID)
	}
	a := models.Assignment{
		ID:           w.seq.Next(),
		Publisher:    input.Publisher,
		DateAssigned: *input.DateAssigned,
	}
	if input.DateCompleted != nil && !input.DateCompleted.IsZero() {
		d := *input.DateCompleted
		a.DateCompleted = &d
	}
	t := &w.doc.TerritoryData.Territories[i]
	t.Assignments = append(t.Assignments, a)
	payload := t.Clone()
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("assignment added",
		zap.Int("territory_id", territoryID),
		zap.Int64("assignment_id", a.ID),
		zap.String("publisher", a.Publisher),
	)
	out := a.Clone()
	return &out, w.emit(ctx, snap, gen, change{events.KindUpdate, payload})
}

func (w *Workspace) UpdateAssignment(ctx context.Context, territoryID int, assignmentID int64, input *UpdateAssignmentInput) (*models.Assignment, error) {
	if input == nil {
		return nil, appErr.New(appErr.CodeValidation, "assignment input required")
	}
	if input.Publisher != nil {
		p := strings.TrimSpace(*input.Publisher)
		if p == "" {
			return nil, appErr.New(appErr.CodeValidation, "publisher failed required")
		}
		input.Publisher = &p
	}
	if input.DateAssigned != nil && input.DateAssigned.IsZero() {
		return nil, appErr.New(appErr.CodeValidation, "dateAssigned failed required")
	}

	w.mu.Lock()
	a, err := w.assignmentLocked(territoryID, assignmentID)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if input.Publisher != nil {
		a.Publisher = *input.Publisher
	}
	if input.DateAssigned != nil {
		a.DateAssigned = *input.DateAssigned
	}
	switch {
	case input.ClearCompleted:
		a.DateCompleted = nil
	case input.DateCompleted != nil && !input.DateCompleted.IsZero():
		d := *input.DateCompleted
		a.DateCompleted = &d
	}
	out := a.Clone()
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("assignment updated", zap.Int("territory_id", territoryID), zap.Int64("assignment_id", assignmentID))
	payload := out.Clone()
	return &out, w.emit(ctx, snap, gen, change{events.KindUpdateAssignment, AssignmentRef{
		TerritoryID:  territoryID,
		AssignmentID: assignmentID,
		Assignment:   &payload,
	}})
}

func (w *Workspace) DeleteAssignment(ctx context.Context, territoryID int, assignmentID int64) error {
	w.mu.Lock()
	if _, err := w.assignmentLocked(territoryID, assignmentID); err != nil {
		w.mu.Unlock()
		return err
	}
	t := &w.doc.TerritoryData.Territories[w.territoryIndexLocked(territoryID)]
	j := t.FindAssignment(assignmentID)
	t.Assignments = append(t.Assignments[:j], t.Assignments[j+1:]...)
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("assignment deleted", zap.Int("territory_id", territoryID), zap.Int64("assignment_id", assignmentID))
	return w.emit(ctx, snap, gen, change{events.KindDeleteAssignment, AssignmentRef{
		TerritoryID:  territoryID,
		AssignmentID: assignmentID,
	}})
}

func (w *Workspace) assignmentLocked(territoryID int, assignmentID int64) (*models.Assignment, error) {
	i := w.territoryIndexLocked(territoryID)
	if i < 0 {
		return nil, appErr.Newf(appErr.CodeNotFound, "territory %d not found", territoryID)
	}
	t := &w.doc.TerritoryData.Territories[i]
	j := t.FindAssignment(assignmentID)
	if j < 0 {
		return nil, appErr.Newf(appErr.CodeNotFound, "assignment %d not found in territory %d", assignmentID, territoryID)
	}
	return &t.Assignments[j], nil
}

func (w *Workspace) territoryIndexLocked(id int) int {
	for i := range w.doc.TerritoryData.Territories {
		if w.doc.TerritoryData.Territories[i].ID == id {
			return i
		}
	}
	return -1
}
