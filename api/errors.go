package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dsuszek/dev-task/service"
)

// errBadRequest marks malformed client input (path id, query, body).
var errBadRequest = errors.New("bad request")

type requestError struct {
	msg string
}

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == errBadRequest }

func badRequest(msg string) error { return &requestError{msg: msg} }

// unexpectedPrefix is prepended to the message of every 500 response.
const unexpectedPrefix = "An unexpected error occurred: "

// statusFor maps an error to its HTTP status and client-facing body.
func statusFor(err error) (int, string) {
	switch {
	case service.IsNoDataAvailable(err):
		return http.StatusBadRequest, err.Error()
	case service.IsNotFound(err):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, unexpectedPrefix + err.Error()
	}
}

// writeError translates err into a plain-text response. Only unexpected
// errors are logged at error level.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, body := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
	} else {
		logger.Debug("request rejected", zap.Int("status", status), zap.String("reason", body))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
