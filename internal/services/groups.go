package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/events"
	"github.com/territory-studio/engine/internal/models"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
	"github.com/territory-studio/engine/pkg/validation"
)

// GroupStore manages territory groups.
type GroupStore interface {
	AddGroup(ctx context.Context, input *CreateGroupInput) (*models.Group, error)
	UpdateGroup(ctx context.Context, id int, input *UpdateGroupInput) (*models.Group, error)
	DeleteGroup(ctx context.Context, id int) error
	GetGroup(id int) (*models.Group, bool)
	ListGroups() []models.Group
}

var _ GroupStore = (*Workspace)(nil)

type CreateGroupInput struct {
	Name  string `json:"name" validate:"required"`
	Color string `json:"color" validate:"required,iscolor"`
}

type UpdateGroupInput struct {
	Name  *string `json:"name" validate:"omitempty,min=1"`
	Color *string `json:"color" validate:"omitempty,iscolor"`
}

func (w *Workspace) AddGroup(ctx context.Context, input *CreateGroupInput) (*models.Group, error) {
	if input == nil {
		return nil, appErr.New(appErr.CodeValidation, "group input required")
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.groupByNameLocked(input.Name) >= 0 {
		w.mu.Unlock()
		return nil, appErr.Newf(appErr.CodeConflict, "group %q already exists", input.Name)
	}
	id := 0
	for _, g := range w.doc.TerritoryData.Groups {
		if g.ID > id {
			id = g.ID
		}
	}
	g := models.Group{ID: id + 1, Name: input.Name, Color: input.Color}
	w.doc.TerritoryData.Groups = append(w.doc.TerritoryData.Groups, g)
	payload := w.groupsLocked()
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("group added", zap.Int("group_id", g.ID), zap.String("name", g.Name))
	return &g, w.emit(ctx, snap, gen, change{events.KindGroupsUpdated, payload})
}

func (w *Workspace) UpdateGroup(ctx context.Context, id int, input *UpdateGroupInput) (*models.Group, error) {
	if input == nil {
		return nil, appErr.New(appErr.CodeValidation, "group input required")
	}
	if input.Name != nil {
		n := strings.TrimSpace(*input.Name)
		input.Name = &n
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	w.mu.Lock()
	i := w.groupIndexLocked(id)
	if i < 0 {
		w.mu.Unlock()
		return nil, appErr.Newf(appErr.CodeNotFound, "group %d not found", id)
	}
	if input.Name != nil {
		if j := w.groupByNameLocked(*input.Name); j >= 0 && j != i {
			w.mu.Unlock()
			return nil, appErr.Newf(appErr.CodeConflict, "group %q already exists", *input.Name)
		}
	}
	g := &w.doc.TerritoryData.Groups[i]
	if input.Name != nil {
		g.Name = *input.Name
	}
	if input.Color != nil {
		g.Color = *input.Color
	}
	out := *g
	payload := w.groupsLocked()
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("group updated", zap.Int("group_id", id))
	return &out, w.emit(ctx, snap, gen, change{events.KindGroupsUpdated, payload})
}

// DeleteGroup removes an unreferenced group. Missing ids are ignored.
func (w *Workspace) DeleteGroup(ctx context.Context, id int) error {
	w.mu.Lock()
	i := w.groupIndexLocked(id)
	if i < 0 {
		w.mu.Unlock()
		return nil
	}
	for _, t := range w.doc.TerritoryData.Territories {
		if t.GroupID != nil && *t.GroupID == id {
			w.mu.Unlock()
			return appErr.Newf(appErr.CodeConflict, "group contains territories").WithMeta("group_id", id)
		}
	}
	w.doc.TerritoryData.Groups = append(w.doc.TerritoryData.Groups[:i], w.doc.TerritoryData.Groups[i+1:]...)
	payload := w.groupsLocked()
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()

	logger.L().Info("group deleted", zap.Int("group_id", id))
	return w.emit(ctx, snap, gen, change{events.KindGroupsUpdated, payload})
}

func (w *Workspace) GetGroup(id int) (*models.Group, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.groupIndexLocked(id)
	if i < 0 {
		return nil, false
	}
	g := w.doc.TerritoryData.Groups[i]
	return &g, true
}

func (w *Workspace) ListGroups() []models.Group {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.groupsLocked()
}

func (w *Workspace) groupsLocked() []models.Group {
	return append([]models.Group(nil), w.doc.TerritoryData.Groups...)
}

// resolveGroupLocked returns the id of the group named by id or, failing
// that, by its legacy name.
func (w *Workspace) resolveGroupLocked(id *int, name string) (*int, error) {
	if id != nil {
		if w.groupIndexLocked(*id) < 0 {
			return nil, appErr.Newf(appErr.CodeValidation, "group %d does not exist", *id)
		}
		gid := *id
		return &gid, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErr.New(appErr.CodeValidation, "groupId or group is required")
	}
	i := w.groupByNameLocked(name)
	if i < 0 {
		return nil, appErr.Newf(appErr.CodeValidation, "group %q does not exist", name)
	}
	gid := w.doc.TerritoryData.Groups[i].ID
	return &gid, nil
}

func (w *Workspace) groupIndexLocked(id int) int {
	for i := range w.doc.TerritoryData.Groups {
		if w.doc.TerritoryData.Groups[i].ID == id {
			return i
		}
	}
	return -1
}

func (w *Workspace) groupByNameLocked(name string) int {
	for i := range w.doc.TerritoryData.Groups {
		if strings.EqualFold(w.doc.TerritoryData.Groups[i].Name, name) {
			return i
		}
	}
	return -1
}
