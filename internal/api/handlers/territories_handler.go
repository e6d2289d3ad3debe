package handlers

import (
	"net/http"

	"github.com/territory-studio/engine/internal/geometry"
	"github.com/territory-studio/engine/internal/services"
	appErr "github.com/territory-studio/engine/pkg/errors"
)

type TerritoriesHandler struct {
	ws Workspace
}

func NewTerritoriesHandler(ws Workspace) *TerritoriesHandler {
	return &TerritoriesHandler{ws: ws}
}

func (h *TerritoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.ws.ListTerritories())
}

// Unplaced lists territories that have no polygon yet.
func (h *TerritoriesHandler) Unplaced(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.ws.GetTerritoriesWithoutPolygons())
}

func (h *TerritoriesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.ws.GetStats())
}

func (h *TerritoriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, ok := h.ws.GetTerritory(id)
	if !ok {
		writeError(w, r, appErr.Newf(appErr.CodeNotFound, "territory %d not found", id))
		return
	}
	writeData(w, http.StatusOK, t)
}

func (h *TerritoriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateTerritoryInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.ws.AddTerritory(r.Context(), &req)
	writeResult(w, r, http.StatusCreated, optional(t), err)
}

func (h *TerritoriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.UpdateTerritoryInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.ws.UpdateTerritory(r.Context(), id, &req)
	writeResult(w, r, http.StatusOK, optional(t), err)
}

// UpdatePolygon sets the territory polygon. An empty or null polygon clears
// it.
func (h *TerritoriesHandler) UpdatePolygon(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Polygon geometry.Polygon `json:"polygon"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.ws.UpdateTerritoryPolygon(r.Context(), id, req.Polygon)
	writeResult(w, r, http.StatusOK, optional(t), err)
}

func (h *TerritoriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ws.DeleteTerritory(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TerritoriesHandler) AddAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.CreateAssignmentInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.ws.AddAssignment(r.Context(), id, &req)
	writeResult(w, r, http.StatusCreated, optional(a), err)
}

func (h *TerritoriesHandler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	aid, err := int64Param(r, "assignmentID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.UpdateAssignmentInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.ws.UpdateAssignment(r.Context(), id, aid, &req)
	writeResult(w, r, http.StatusOK, optional(a), err)
}

func (h *TerritoriesHandler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	aid, err := int64Param(r, "assignmentID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ws.DeleteAssignment(r.Context(), id, aid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
