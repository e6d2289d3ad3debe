package handlers

import (
	"net/http"

	"github.com/territory-studio/engine/internal/api/types"
	"github.com/territory-studio/engine/internal/geometry"
	"github.com/territory-studio/engine/internal/models"
	"github.com/territory-studio/engine/internal/queue/tasks"
	appErr "github.com/territory-studio/engine/pkg/errors"
)

// RegionsHandler serves regions, the assignment index and region display data.
type RegionsHandler struct {
	ws             Workspace
	queue          tasks.Enqueuer
	defaultEpsilon float64
}

// NewRegionsHandler returns a handler. A nil queue makes simplification run
// inside the request.
func NewRegionsHandler(ws Workspace, queue tasks.Enqueuer, defaultEpsilon float64) *RegionsHandler {
	return &RegionsHandler{ws: ws, queue: queue, defaultEpsilon: defaultEpsilon}
}

// RegionView is a region with its derived display state.
type RegionView struct {
	models.Region
	Label     string            `json:"label"`
	Color     string            `json:"color"`
	Assigned  bool              `json:"assigned"`
	Territory *models.Territory `json:"territory,omitempty"`
}

func (h *RegionsHandler) view(r models.Region) RegionView {
	v := RegionView{
		Region:   r,
		Label:    h.ws.GetRegionLabel(r.RegionID),
		Color:    h.ws.GetRegionColor(r.RegionID),
		Assigned: h.ws.IsRegionAssigned(r.RegionID),
	}
	if t, ok := h.ws.GetAssignedTerritory(r.RegionID); ok {
		v.Territory = t
	}
	return v
}

func (h *RegionsHandler) List(w http.ResponseWriter, r *http.Request) {
	regions := h.ws.ListRegions()
	if r.URL.Query().Get("view") != "display" {
		writeData(w, http.StatusOK, regions)
		return
	}
	out := make([]RegionView, 0, len(regions))
	for _, reg := range regions {
		out = append(out, h.view(reg))
	}
	writeData(w, http.StatusOK, out)
}

func (h *RegionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	reg, ok := h.ws.GetRegion(id)
	if !ok {
		writeError(w, r, appErr.Newf(appErr.CodeNotFound, "region %d not found", id))
		return
	}
	writeData(w, http.StatusOK, h.view(*reg))
}

func (h *RegionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.PolygonRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reg, err := h.ws.AddRegion(r.Context(), req.Polygon)
	writeResult(w, r, http.StatusCreated, optional(reg), err)
}

func (h *RegionsHandler) UpdatePolygon(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.PolygonRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reg, err := h.ws.UpdateRegionPolygon(r.Context(), id, req.Polygon)
	writeResult(w, r, http.StatusOK, optional(reg), err)
}

// MoveVertex moves one vertex and commits the resulting polygon. Interactive
// drags batch their moves in the editor session instead.
func (h *RegionsHandler) MoveVertex(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.VertexMoveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cur, ok := h.ws.GetRegion(id)
	if !ok {
		writeError(w, r, appErr.Newf(appErr.CodeNotFound, "region %d not found", id))
		return
	}
	v := *req.Vertex
	if v < 0 || v >= len(cur.Polygon) {
		writeError(w, r, appErr.Newf(appErr.CodeValidation, "vertex %d out of range", v))
		return
	}
	cur.Polygon[v] = req.Point
	reg, err := h.ws.UpdateRegionPolygon(r.Context(), id, cur.Polygon)
	writeResult(w, r, http.StatusOK, optional(reg), err)
}

func (h *RegionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ws.DeleteRegion(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Hit returns the region under the point given by the x and y query values.
func (h *RegionsHandler) Hit(w http.ResponseWriter, r *http.Request) {
	x, err := floatQuery(r, "x")
	if err != nil {
		writeError(w, r, err)
		return
	}
	y, err := floatQuery(r, "y")
	if err != nil {
		writeError(w, r, err)
		return
	}
	reg, ok := h.ws.HitTest(geometry.Pt(x, y))
	if !ok {
		writeError(w, r, appErr.New(appErr.CodeNotFound, "no region at point"))
		return
	}
	writeData(w, http.StatusOK, h.view(*reg))
}

func (h *RegionsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.AssignRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.ws.AssignRegion(r.Context(), id, req.TerritoryID)
	writeResult(w, r, http.StatusOK, optional(t), err)
}

func (h *RegionsHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ws.UnassignRegion(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Simplify enqueues a simplification task, or runs it in place when no queue
// is configured.
func (h *RegionsHandler) Simplify(w http.ResponseWriter, r *http.Request) {
	var req types.SimplifyRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	eps := req.Epsilon
	if eps == 0 {
		eps = h.defaultEpsilon
	}
	if h.queue == nil {
		changed, err := h.ws.SimplifyRegions(r.Context(), eps)
		writeResult(w, r, http.StatusOK, map[string]any{"changed": changed, "epsilon": eps}, err)
		return
	}
	task, err := tasks.NewSimplifyTask(eps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := tasks.Enqueue(r.Context(), h.queue, task)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, map[string]any{"taskId": id, "epsilon": eps})
}

// RebuildIndex relinks regions and territories by geometry, on the worker
// when a queue is configured.
func (h *RegionsHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		linked, err := h.ws.RebuildIndex(r.Context())
		writeResult(w, r, http.StatusOK, map[string]int{"linked": linked}, err)
		return
	}
	id, err := tasks.Enqueue(r.Context(), h.queue, tasks.NewRebuildIndexTask())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, map[string]any{"taskId": id})
}

func (h *RegionsHandler) Boundary(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.ws.Boundary())
}

// optional turns a nil pointer into an untyped nil so writeResult can tell
// whether a record came back.
func optional[T any](v *T) any {
	if v == nil {
		return nil
	}
	return v
}
