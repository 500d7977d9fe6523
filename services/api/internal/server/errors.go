package server

import (
	"net/http"

	"legalmitra/internal/util"
	"legalmitra/services/api/internal/app"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

var kindStatus = map[app.Kind]int{
	app.KindBadRequest:   http.StatusBadRequest,
	app.KindUnauthorized: http.StatusUnauthorized,
	app.KindForbidden:    http.StatusForbidden,
	app.KindNotFound:     http.StatusNotFound,
	app.KindConflict:     http.StatusConflict,
	app.KindUpload:       http.StatusBadGateway,
	app.KindBadGateway:   http.StatusBadGateway,
	app.KindInternal:     http.StatusInternalServerError,
}

// writeAppError maps an application error to its HTTP status and JSON body.
// Causes of internal errors are logged, never returned.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := app.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "kind", kind, "err", err)
	} else if kind == app.KindUpload || kind == app.KindBadGateway {
		util.LoggerFromContext(r.Context()).Warn("upstream failure", "kind", kind, "err", err)
	}
	writeError(w, r, status, string(kind), app.PublicMessage(err))
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromRequest(r),
	})
}
