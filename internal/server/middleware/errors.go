// Package middleware provides the HTTP middleware chain of the server.
package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/blobfs/internal/errors"
	"github.com/3leaps/blobfs/internal/observability"
)

// ErrorResponse is the JSON error body written by this package.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery turns a panic in next into a 500 INTERNAL_ERROR envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			msg := fmt.Sprintf("panic: %v", rec)
			observability.ServerLogger.Error("Recovered from panic",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			apperrors.WriteHTTPError(w, r, http.StatusInternalServerError, apperrors.CodeInternal, msg, nil)
		}()
		next.ServeHTTP(w, r)
	})
}
