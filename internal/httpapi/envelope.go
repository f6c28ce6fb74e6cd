// Package httpapi implements the HTTP admin surface: namespaces,
// users/roles/permissions, cluster/health, config CRUD plus
// gray/aggregate/history/import/export, and the naming HTTP mirror. Every
// handler authorizes via internal/iam and responds with a {code, message,
// data} envelope.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/easynet-cn/batata/internal/apierr"
)

// Envelope is the V2/V3 response wrapper: code=0 on success, a non-zero
// code (the mapped HTTP status, per the stable mapping in
// apierr.HTTPStatus) otherwise.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeOK writes a success envelope with HTTP 200.
func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Code: 0, Message: "success", Data: data})
}

// writeErr maps err's apierr.Kind to its HTTP status and writes a
// matching envelope; the same status is used for both the transport status
// line and the envelope's code field.
func writeErr(w http.ResponseWriter, err error) {
	status := apierr.HTTPStatus(apierr.KindOf(err))
	writeJSON(w, status, Envelope{Code: status, Message: err.Error()})
}

// writeBadRequest is for request-shape errors (malformed form/query) that
// never reach a component and so never produced an apierr.Error.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, Envelope{Code: http.StatusBadRequest, Message: message})
}
