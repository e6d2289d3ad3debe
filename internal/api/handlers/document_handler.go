package handlers

import (
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/api/types"
	"github.com/territory-studio/engine/internal/persistence"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

// DocumentHandler exports and imports the whole map document and exposes
// stored revisions when the backend keeps them.
type DocumentHandler struct {
	ws        Workspace
	revisions persistence.Revisioned
}

// NewDocumentHandler returns a handler. revisions may be nil.
func NewDocumentHandler(ws Workspace, revisions persistence.Revisioned) *DocumentHandler {
	return &DocumentHandler{ws: ws, revisions: revisions}
}

// Export returns the current document in its canonical shape.
func (h *DocumentHandler) Export(w http.ResponseWriter, r *http.Request) {
	doc := h.ws.Document()
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="territories.json"`)
	}
	writeJSON(w, http.StatusOK, doc)
}

// Import replaces the document with an uploaded snapshot. Every known legacy
// layout is accepted; renumber=true renumbers regions by descending area.
func (h *DocumentHandler) Import(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, appErr.Wrap(err, appErr.CodeValidation, "failed to read body"))
		return
	}
	doc, err := persistence.ImportSnapshot(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if renumber, _ := strconv.ParseBool(r.URL.Query().Get("renumber")); renumber {
		persistence.RenumberByArea(doc.ExtractedRegions)
	}
	err = h.ws.ReplaceDocument(r.Context(), doc)
	summary := map[string]int{
		"regions":     len(doc.ExtractedRegions),
		"territories": len(doc.TerritoryData.Territories),
		"groups":      len(doc.TerritoryData.Groups),
	}
	logger.L().Info("document imported", zap.Int("bytes", len(raw)), zap.Any("summary", summary))
	writeResult(w, r, http.StatusOK, summary, err)
}

func (h *DocumentHandler) Revisions(w http.ResponseWriter, r *http.Request) {
	if h.revisions == nil {
		writeError(w, r, appErr.New(appErr.CodeUnavailable, "document store keeps no revisions"))
		return
	}
	items, err := h.revisions.History(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items, Meta: &types.Meta{Total: len(items)}})
}

// Restore makes a stored revision current and loads it into the workspace.
func (h *DocumentHandler) Restore(w http.ResponseWriter, r *http.Request) {
	if h.revisions == nil {
		writeError(w, r, appErr.New(appErr.CodeUnavailable, "document store keeps no revisions"))
		return
	}
	var req types.RestoreRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := h.revisions.Restore(r.Context(), req.Version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = h.ws.ReplaceDocument(r.Context(), doc)
	writeResult(w, r, http.StatusOK, map[string]int{"version": req.Version}, err)
}
