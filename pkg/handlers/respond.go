package handlers

import (
	"encoding/json"
	stdErrors "errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/TFMV/gatehouse/pkg/errors"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a response. Anything that means the database
// cannot be used right now becomes a generic 503; internal failures become a
// generic 500. Neither leaks the underlying cause.
func writeError(w http.ResponseWriter, r *http.Request, logger Logger, err error) {
	code := errors.GetCode(err)
	reqID := middleware.GetReqID(r.Context())

	switch {
	case isUnavailable(code):
		logger.Error("Database unavailable", "error", err, "path", r.URL.Path, "request_id", reqID)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:     "service unavailable",
			RequestID: reqID,
		})
	case errors.HTTPStatus(code) >= http.StatusInternalServerError:
		logger.Error("Request failed", "error", err, "path", r.URL.Path, "request_id", reqID)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     "internal server error",
			RequestID: reqID,
		})
	default:
		var details map[string]interface{}
		var appErr *errors.AppError
		if stdErrors.As(err, &appErr) {
			details = appErr.Details
		}
		writeJSON(w, errors.HTTPStatus(code), errorResponse{
			Error:     errors.GetMessage(err),
			Code:      code,
			Details:   details,
			RequestID: reqID,
		})
	}
}

func isUnavailable(code string) bool {
	switch code {
	case errors.CodeConfiguration,
		errors.CodeConnectionFailed,
		errors.CodeUnavailable,
		errors.CodeDeadlineExceeded,
		errors.CodeCanceled:
		return true
	default:
		return false
	}
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if stdErrors.Is(err, io.EOF) {
			return errors.New(errors.CodeInvalidRequest, "request body is empty")
		}
		return errors.Wrap(err, errors.CodeInvalidRequest, "malformed request body")
	}
	return nil
}
