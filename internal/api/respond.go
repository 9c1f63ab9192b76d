package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"cellqc/domain/core"
	"cellqc/internal/errors"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "code", code, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// classify maps an error chain to an HTTP status and error code.
func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case stderrors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, errors.CodeNotFound
	case stderrors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, errors.CodeInvalidInput
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errors.CodeInternalError
	case stderrors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, errors.CodeInternalError
	}

	code := errors.GetCode(err)
	switch code {
	case errors.CodeInvalidInput, errors.CodeConfigInvalid, errors.CodeConfigConflict:
		return http.StatusBadRequest, code
	case errors.CodeInsufficientData:
		return http.StatusUnprocessableEntity, code
	case errors.CodeNotFound:
		return http.StatusNotFound, code
	case errors.CodeDatabaseError:
		return http.StatusServiceUnavailable, code
	}
	return http.StatusInternalServerError, errors.CodeInternalError
}
