package web

// errors.go turns service errors into JSON responses.
//
// The flow:
//  1. A handler gets an error and calls respondError(w, r, err)
//  2. core.MapError picks the user message and its code
//  3. The technical error is logged with the request id
//  4. The client receives the user message with a status chosen by code

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/sheetstore/internal/core"
	"github.com/JonMunkholm/sheetstore/internal/logging"
)

// errInvalidBody marks request bodies that cannot be decoded (REQ001).
var errInvalidBody = errors.New("invalid request body")

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusByCode maps user message codes to HTTP status. Anything absent is 500.
var statusByCode = map[string]int{
	"DS001":  http.StatusNotFound,
	"DS002":  http.StatusNotFound,
	"DS003":  http.StatusInternalServerError,
	"DS004":  http.StatusServiceUnavailable,
	"DB001":  http.StatusConflict,
	"DB004":  http.StatusServiceUnavailable,
	"DB005":  http.StatusServiceUnavailable,
	"DB006":  http.StatusGatewayTimeout,
	"DB007":  http.StatusServiceUnavailable,
	"REQ001": http.StatusBadRequest,
	"REQ002": http.StatusRequestTimeout,
	"REQ003": http.StatusGatewayTimeout,
	"REQ004": http.StatusTooManyRequests,
}

func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its user-facing form.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(err)
	status := statusFor(msg.Code)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
