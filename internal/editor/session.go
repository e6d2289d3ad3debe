// Package editor implements the interactive polygon editing state machine
// on top of a workspace.
package editor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/geometry"
	"github.com/territory-studio/engine/internal/models"
	"github.com/territory-studio/engine/internal/services"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Tool is the active editing mode.
type Tool string

const (
	ToolSelect Tool = "select"
	ToolDraw   Tool = "draw"
	ToolEdit   Tool = "edit"
)

// DefaultVertexHitThreshold is the vertex grab distance in image pixels.
const DefaultVertexHitThreshold = 10

// Workspace is the part of the workspace the session drives.
type Workspace interface {
	AddRegion(ctx context.Context, poly geometry.Polygon) (*models.Region, error)
	UpdateRegionPolygon(ctx context.Context, id int, poly geometry.Polygon) (*models.Region, error)
	GetRegion(id int) (*models.Region, bool)
	MoveRegionVertex(id, vertex int, pt geometry.Point) error
	HitTest(pt geometry.Point) (*models.Region, bool)
	Snapshot() services.Snapshot
	Restore(ctx context.Context, s services.Snapshot) error
}

var _ Workspace = (*services.Workspace)(nil)

type Options struct {
	UndoCapacity       int
	VertexHitThreshold float64
	// OnWarning receives refused user actions. Defaults to a zap warning.
	OnWarning func(err error)
}

type drag struct {
	regionID int
	vertex   int
}

// Session is one user's editing state. Methods are safe for concurrent use
// but are expected to be called from a single input stream.
type Session struct {
	mu        sync.Mutex
	ws        Workspace
	history   *History
	tool      Tool
	pending   geometry.Polygon
	selected  int
	drag      *drag
	threshold float64
	warn      func(error)
}

func NewSession(ws Workspace, opts Options) *Session {
	if opts.VertexHitThreshold <= 0 {
		opts.VertexHitThreshold = DefaultVertexHitThreshold
	}
	if opts.OnWarning == nil {
		opts.OnWarning = func(err error) {
			logger.L().Warn("edit refused", zap.Error(err))
		}
	}
	return &Session{
		ws:        ws,
		history:   NewHistory(opts.UndoCapacity),
		tool:      ToolSelect,
		threshold: opts.VertexHitThreshold,
		warn:      opts.OnWarning,
	}
}

func (s *Session) Tool() Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool
}

// Selected returns the selected region id.
func (s *Session) Selected() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected != 0
}

// Select makes id the selected region.
func (s *Session) Select(id int) error {
	if _, ok := s.ws.GetRegion(id); !ok {
		return appErr.Newf(appErr.CodeNotFound, "region %d not found", id)
	}
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
	return nil
}

// Pending returns the vertices of the polygon being drawn.
func (s *Session) Pending() geometry.Polygon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return geometry.Clone(s.pending)
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}

// SetTool switches mode. Leaving draw discards the pending polygon; an
// active drag is committed first.
func (s *Session) SetTool(ctx context.Context, tool Tool) error {
	switch tool {
	case ToolSelect, ToolDraw, ToolEdit:
	default:
		return appErr.Newf(appErr.CodeValidation, "unknown tool %q", tool)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.drag != nil {
		_, err = s.commitDragLocked(ctx)
	}
	if s.tool == ToolDraw && tool != ToolDraw {
		s.pending = nil
	}
	s.tool = tool
	return err
}

// Click handles a primary click at pt, in image coordinates. In draw mode it
// appends a vertex; in select mode it selects the first region containing pt.
func (s *Session) Click(pt geometry.Point) (*models.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.tool {
	case ToolDraw:
		s.pending = append(s.pending, pt)
		return nil, nil
	case ToolSelect:
		r, ok := s.ws.HitTest(pt)
		if !ok {
			s.selected = 0
			return nil, nil
		}
		s.selected = r.RegionID
		return r, nil
	}
	return nil, nil
}

// Finish commits the pending polygon as a new region. With fewer than three
// vertices it fails and keeps the session in draw with the vertices intact.
func (s *Session) Finish(ctx context.Context) (*models.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tool != ToolDraw {
		return nil, appErr.New(appErr.CodeValidation, "finish is only valid while drawing")
	}
	if len(s.pending) < geometry.MinVertices {
		err := appErr.Newf(appErr.CodeInvalidGeometry, "a region needs at least %d vertices, have %d", geometry.MinVertices, len(s.pending))
		s.warn(err)
		return nil, err
	}
	r, err := s.ws.AddRegion(ctx, s.pending)
	if r != nil {
		s.pending = nil
		s.selected = r.RegionID
	}
	return r, err
}

// Cancel discards the pending polygon.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// PointerDown starts a vertex drag on the selected region, or deletes the
// vertex when deleteVertex is set. It reports whether a vertex was hit.
func (s *Session) PointerDown(ctx context.Context, pt geometry.Point, deleteVertex bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tool != ToolEdit || s.selected == 0 || s.drag != nil {
		return false, nil
	}
	r, ok := s.ws.GetRegion(s.selected)
	if !ok {
		s.selected = 0
		return false, nil
	}
	idx := geometry.NearestVertex(r.Polygon, pt, s.threshold)
	if idx < 0 {
		return false, nil
	}

	if deleteVertex {
		if len(r.Polygon)-1 < geometry.MinVertices {
			s.warn(appErr.Newf(appErr.CodeInvalidGeometry, "region %d cannot have fewer than %d vertices", r.RegionID, geometry.MinVertices))
			return true, nil
		}
		s.pushLocked()
		poly := append(geometry.Clone(r.Polygon[:idx]), r.Polygon[idx+1:]...)
		_, err := s.ws.UpdateRegionPolygon(ctx, r.RegionID, poly)
		return true, err
	}

	s.pushLocked()
	s.drag = &drag{regionID: r.RegionID, vertex: idx}
	return true, nil
}

// PointerMove moves the dragged vertex to pt.
func (s *Session) PointerMove(pt geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return nil
	}
	return s.ws.MoveRegionVertex(s.drag.regionID, s.drag.vertex, pt)
}

// PointerUp ends a drag and commits the region polygon.
func (s *Session) PointerUp(ctx context.Context) (*models.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return nil, nil
	}
	return s.commitDragLocked(ctx)
}

// Undo restores the state saved before the latest drag or vertex delete.
func (s *Session) Undo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, err := s.history.Undo(s.currentLocked())
	if err != nil {
		return err
	}
	return s.applyLocked(ctx, prev)
}

// Redo reapplies the latest undone state.
func (s *Session) Redo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.history.Redo(s.currentLocked())
	if err != nil {
		return err
	}
	return s.applyLocked(ctx, next)
}

func (s *Session) commitDragLocked(ctx context.Context) (*models.Region, error) {
	d := s.drag
	s.drag = nil
	r, ok := s.ws.GetRegion(d.regionID)
	if !ok {
		return nil, appErr.Newf(appErr.CodeNotFound, "region %d not found", d.regionID)
	}
	return s.ws.UpdateRegionPolygon(ctx, d.regionID, r.Polygon)
}

func (s *Session) pushLocked() {
	s.history.Push(s.currentLocked())
}

func (s *Session) currentLocked() State {
	return State{Workspace: s.ws.Snapshot(), Pending: geometry.Clone(s.pending)}
}

func (s *Session) applyLocked(ctx context.Context, st State) error {
	s.drag = nil
	s.pending = geometry.Clone(st.Pending)
	if s.selected != 0 {
		found := false
		for _, r := range st.Workspace.Regions {
			if r.RegionID == s.selected {
				found = true
				break
			}
		}
		if !found {
			s.selected = 0
		}
	}
	return s.ws.Restore(ctx, st.Workspace)
}
