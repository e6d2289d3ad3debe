package types

import (
	"errors"
	"net/http"

	appErr "github.com/territory-studio/engine/pkg/errors"
)

func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	var e *appErr.AppError
	if errors.As(err, &e) {
		out := &APIError{Code: string(e.Code), Message: e.Message}
		// wrapped causes of server faults stay in the logs
		if e.Err != nil && StatusOf(e) < http.StatusInternalServerError {
			out.Details = e.Err.Error()
		}
		return out
	}
	return &APIError{Code: string(appErr.CodeUnknown), Message: err.Error()}
}

// StatusOf maps an error code to the HTTP status it is reported with.
func StatusOf(err error) int {
	switch appErr.CodeOf(err) {
	case appErr.CodeNotFound:
		return http.StatusNotFound
	case appErr.CodeValidation, appErr.CodeInvalidGeometry:
		return http.StatusBadRequest
	case appErr.CodeConflict, appErr.CodeDuplicateID:
		return http.StatusConflict
	case appErr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
