package editor

import (
	"github.com/territory-studio/engine/internal/geometry"
	"github.com/territory-studio/engine/internal/services"
)

// DefaultHistoryCapacity bounds the undo stack.
const DefaultHistoryCapacity = 50

// State is one restorable point in the edit history.
type State struct {
	Workspace services.Snapshot
	Pending   geometry.Polygon
}

func (s State) clone() State {
	return State{Workspace: s.Workspace.Clone(), Pending: geometry.Clone(s.Pending)}
}

// History is a bounded linear undo/redo history of full snapshots. Pushing
// discards the redo tail; overflowing drops the oldest entry.
type History struct {
	capacity int
	undo     []State
	redo     []State
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{capacity: capacity}
}

// Push records s as the state to return to on the next Undo.
func (h *History) Push(s State) {
	h.undo = append(h.undo, s.clone())
	if len(h.undo) > h.capacity {
		h.undo = append(h.undo[:0:0], h.undo[len(h.undo)-h.capacity:]...)
	}
	h.redo = nil
}

// Undo pops the latest state and stores current for Redo.
func (h *History) Undo(current State) (State, error) {
	if len(h.undo) == 0 {
		return State{}, ErrNothingToUndo
	}
	prev := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, current.clone())
	return prev, nil
}

// Redo pops the latest undone state and stores current for Undo.
func (h *History) Redo(current State) (State, error) {
	if len(h.redo) == 0 {
		return State{}, ErrNothingToRedo
	}
	next := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, current.clone())
	return next, nil
}

func (h *History) CanUndo() bool { return len(h.undo) > 0 }
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Len returns the number of undoable states.
func (h *History) Len() int { return len(h.undo) }
