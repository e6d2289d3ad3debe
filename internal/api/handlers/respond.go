package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/api/middleware"
	"github.com/territory-studio/engine/internal/api/types"
	"github.com/territory-studio/engine/internal/models"
	"github.com/territory-studio/engine/internal/services"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
	"github.com/territory-studio/engine/pkg/validation"
)

// Workspace is everything the HTTP layer needs from the territory workspace.
type Workspace interface {
	services.RegionStore
	services.AssignmentIndex
	services.TerritoryStore
	services.GroupStore
	services.ReadModel

	Document() *models.Document
	ReplaceDocument(ctx context.Context, doc *models.Document) error
	Save(ctx context.Context) error
}

var _ Workspace = (*services.Workspace)(nil)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.APIResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := types.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logger.L().Error("request failed", zap.String("id", middleware.GetRequestID(r.Context())), zap.Error(err))
	}
	writeJSON(w, status, types.APIResponse{Success: false, Error: types.FromAppError(err), Meta: requestMeta(r)})
}

// writeResult reports a mutation. A change that was applied in memory but
// could not be saved is returned together with the save error.
func writeResult(w http.ResponseWriter, r *http.Request, status int, data any, err error) {
	if err == nil {
		writeData(w, status, data)
		return
	}
	if data == nil || !appErr.IsCode(err, appErr.CodeIO) && !appErr.IsCode(err, appErr.CodeUnavailable) {
		writeError(w, r, err)
		return
	}
	logger.L().Error("change applied but not saved", zap.String("id", middleware.GetRequestID(r.Context())), zap.Error(err))
	writeJSON(w, types.StatusOf(err), types.APIResponse{Success: false, Data: data, Error: types.FromAppError(err), Meta: requestMeta(r)})
}

// requestMeta lets clients quote the request id of a failure.
func requestMeta(r *http.Request) *types.Meta {
	id := middleware.GetRequestID(r.Context())
	if id == "" {
		return nil
	}
	return &types.Meta{RequestID: id}
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return appErr.New(appErr.CodeValidation, "request body required")
		}
		return appErr.Wrap(err, appErr.CodeValidation, "invalid json")
	}
	return validation.Struct(dst)
}

func intParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, appErr.Newf(appErr.CodeValidation, "invalid %s", name)
	}
	return v, nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, appErr.Newf(appErr.CodeValidation, "invalid %s", name)
	}
	return v, nil
}

func floatQuery(r *http.Request, name string) (float64, error) {
	v, err := strconv.ParseFloat(r.URL.Query().Get(name), 64)
	if err != nil {
		return 0, appErr.Newf(appErr.CodeValidation, "invalid %s", name)
	}
	return v, nil
}
