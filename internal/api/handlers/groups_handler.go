package handlers

import (
	"net/http"

	"github.com/territory-studio/engine/internal/services"
	appErr "github.com/territory-studio/engine/pkg/errors"
)

type GroupsHandler struct {
	ws Workspace
}

func NewGroupsHandler(ws Workspace) *GroupsHandler {
	return &GroupsHandler{ws: ws}
}

func (h *GroupsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.ws.ListGroups())
}

func (h *GroupsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, ok := h.ws.GetGroup(id)
	if !ok {
		writeError(w, r, appErr.Newf(appErr.CodeNotFound, "group %d not found", id))
		return
	}
	writeData(w, http.StatusOK, g)
}

func (h *GroupsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateGroupInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := h.ws.AddGroup(r.Context(), &req)
	writeResult(w, r, http.StatusCreated, optional(g), err)
}

func (h *GroupsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.UpdateGroupInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := h.ws.UpdateGroup(r.Context(), id, &req)
	writeResult(w, r, http.StatusOK, optional(g), err)
}

func (h *GroupsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ws.DeleteGroup(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
