// Package errors maps application errors onto HTTP error envelopes.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/3leaps/blobfs/pkg/output"
	"github.com/3leaps/blobfs/pkg/storage"
)

// HTTP-only error codes; storage error codes come from package output.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// HTTPErrorResponse is the body of every error response:
// {"error":{"code","message","details","request_id"}}.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// BadRequestError marks a client input error.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

// BadRequest returns a *BadRequestError.
func BadRequest(msg string) error {
	return &BadRequestError{Message: msg}
}

// WriteHTTPError writes an error envelope with the given status.
func WriteHTTPError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	resp := HTTPErrorResponse{Error: HTTPError{
		Code:    code,
		Message: message,
		Details: details,
	}}
	if r != nil {
		resp.Error.RequestID = chimw.GetReqID(r.Context())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// RespondWithError classifies err and writes the matching envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var bad *BadRequestError
	if errors.As(err, &bad) {
		WriteHTTPError(w, r, http.StatusBadRequest, CodeBadRequest, bad.Message, nil)
		return
	}

	code := output.ErrorCode(err)
	var details map[string]any
	var oe *storage.OperationError
	if errors.As(err, &oe) {
		details = map[string]any{"operation": string(oe.Op), "path": oe.Path}
	}
	WriteHTTPError(w, r, StatusForCode(code), code, err.Error(), details)
}

// StatusForCode returns the HTTP status for an output error code.
func StatusForCode(code string) int {
	switch code {
	case output.ErrCodeNotFound, output.ErrCodeContainerNotFound:
		return http.StatusNotFound
	case output.ErrCodeAccessDenied:
		return http.StatusForbidden
	case output.ErrCodeThrottled:
		return http.StatusTooManyRequests
	case output.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case output.ErrCodeUnsupported:
		return http.StatusNotImplemented
	case output.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case output.ErrCodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
