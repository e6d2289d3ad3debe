package editor

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/territory-studio/engine/internal/geometry"
	"github.com/territory-studio/engine/internal/services"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

var square = geometry.Polygon{geometry.Pt(0, 0), geometry.Pt(100, 0), geometry.Pt(100, 100), geometry.Pt(0, 100)}

type warnings struct {
	errs []error
}

func (w *warnings) record(err error) { w.errs = append(w.errs, err) }

func newSession(t *testing.T) (*Session, *services.Workspace, *warnings) {
	t.Helper()
	ws := services.NewWorkspace(nil, nil, services.Options{})
	warn := &warnings{}
	return NewSession(ws, Options{OnWarning: warn.record}), ws, warn
}

// drawSquare draws and commits square, leaving it selected in edit mode.
func drawSquare(t *testing.T, s *Session) int {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SetTool(ctx, ToolDraw))
	for _, pt := range square {
		_, err := s.Click(pt)
		require.NoError(t, err)
	}
	r, err := s.Finish(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetTool(ctx, ToolEdit))
	return r.RegionID
}

func TestFinishWithTwoVerticesStaysInDraw(t *testing.T) {
	s, ws, warn := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.SetTool(ctx, ToolDraw))
	_, _ = s.Click(geometry.Pt(0, 0))
	_, _ = s.Click(geometry.Pt(5, 5))

	_, err := s.Finish(ctx)
	require.True(t, appErr.IsCode(err, appErr.CodeInvalidGeometry))
	require.Equal(t, ToolDraw, s.Tool())
	require.Equal(t, geometry.Polygon{geometry.Pt(0, 0), geometry.Pt(5, 5)}, s.Pending())
	require.Empty(t, ws.ListRegions())
	require.Len(t, warn.errs, 1)

	_, _ = s.Click(geometry.Pt(0, 5))
	r, err := s.Finish(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, r.RegionID)
	require.Empty(t, s.Pending())
	id, ok := s.Selected()
	require.True(t, ok)
	require.Equal(t, r.RegionID, id)
}

func TestLeavingDrawDiscardsPending(t *testing.T) {
	s, _, _ := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.SetTool(ctx, ToolDraw))
	_, _ = s.Click(geometry.Pt(1, 1))
	require.NoError(t, s.SetTool(ctx, ToolSelect))
	require.Empty(t, s.Pending())

	require.True(t, appErr.IsCode(s.SetTool(ctx, Tool("lasso")), appErr.CodeValidation))
	_, err := s.Finish(ctx)
	require.True(t, appErr.IsCode(err, appErr.CodeValidation))
}

func TestSelectClickHitTests(t *testing.T) {
	s, _, _ := newSession(t)
	ctx := context.Background()
	id := drawSquare(t, s)
	require.NoError(t, s.SetTool(ctx, ToolSelect))

	r, err := s.Click(geometry.Pt(500, 500))
	require.NoError(t, err)
	require.Nil(t, r)
	_, ok := s.Selected()
	require.False(t, ok)

	r, err = s.Click(geometry.Pt(50, 50))
	require.NoError(t, err)
	require.Equal(t, id, r.RegionID)
}

func TestDragUndoRedo(t *testing.T) {
	s, ws, _ := newSession(t)
	ctx := context.Background()
	id := drawSquare(t, s)

	hit, err := s.PointerDown(ctx, geometry.Pt(98, 97), false)
	require.NoError(t, err)
	require.True(t, hit)
	require.NoError(t, s.PointerMove(geometry.Pt(120, 90)))
	require.NoError(t, s.PointerMove(geometry.Pt(150, 80)))
	_, err = s.PointerUp(ctx)
	require.NoError(t, err)

	dragged, _ := ws.GetRegion(id)
	require.Equal(t, geometry.Pt(150, 80), dragged.Polygon[2])

	require.NoError(t, s.Undo(ctx))
	undone, _ := ws.GetRegion(id)
	require.Equal(t, square, undone.Polygon)

	require.NoError(t, s.Redo(ctx))
	redone, _ := ws.GetRegion(id)
	require.Equal(t, dragged.Polygon, redone.Polygon)
	require.Equal(t, dragged.Area, redone.Area)
}

func TestPushAfterUndoTruncatesRedo(t *testing.T) {
	s, _, _ := newSession(t)
	ctx := context.Background()
	drawSquare(t, s)

	_, err := s.PointerDown(ctx, geometry.Pt(0, 0), false)
	require.NoError(t, err)
	require.NoError(t, s.PointerMove(geometry.Pt(-10, -10)))
	_, err = s.PointerUp(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Undo(ctx))
	require.True(t, s.CanRedo())

	_, err = s.PointerDown(ctx, geometry.Pt(100, 100), false)
	require.NoError(t, err)
	_, err = s.PointerUp(ctx)
	require.NoError(t, err)

	require.False(t, s.CanRedo())
	require.ErrorIs(t, s.Redo(ctx), ErrNothingToRedo)
}

func TestVertexDeleteRefusedBelowThree(t *testing.T) {
	s, ws, warn := newSession(t)
	ctx := context.Background()
	id := drawSquare(t, s)

	hit, err := s.PointerDown(ctx, geometry.Pt(0, 100), true)
	require.NoError(t, err)
	require.True(t, hit)
	r, _ := ws.GetRegion(id)
	require.Equal(t, 3, r.Vertices)

	hit, err = s.PointerDown(ctx, geometry.Pt(0, 0), true)
	require.NoError(t, err)
	require.True(t, hit)
	r, _ = ws.GetRegion(id)
	require.Equal(t, 3, r.Vertices)
	require.Len(t, warn.errs, 1)
	require.True(t, appErr.IsCode(warn.errs[0], appErr.CodeInvalidGeometry))

	require.NoError(t, s.Undo(ctx))
	r, _ = ws.GetRegion(id)
	require.Equal(t, square, r.Polygon)
	require.ErrorIs(t, s.Undo(ctx), ErrNothingToUndo)
}

func TestPointerDownMissesVertex(t *testing.T) {
	s, _, _ := newSession(t)
	drawSquare(t, s)
	hit, err := s.PointerDown(context.Background(), geometry.Pt(50, 50), false)
	require.NoError(t, err)
	require.False(t, hit)
	require.False(t, s.CanUndo())
}

func TestHistoryCapacityEvictsOldest(t *testing.T) {
	h := NewHistory(2)
	for i := 1; i <= 3; i++ {
		h.Push(State{Pending: geometry.Polygon{geometry.Pt(float64(i), 0)}})
	}
	require.Equal(t, 2, h.Len())

	st, err := h.Undo(State{})
	require.NoError(t, err)
	require.Equal(t, geometry.Pt(3, 0), st.Pending[0])
	st, err = h.Undo(State{})
	require.NoError(t, err)
	require.Equal(t, geometry.Pt(2, 0), st.Pending[0])
	_, err = h.Undo(State{})
	require.ErrorIs(t, err, ErrNothingToUndo)
}
