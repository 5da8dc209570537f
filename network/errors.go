package network

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aethercore-labs/aethercore/bridge"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var statusByKind = map[string]int{
	bridge.KindValidation:      http.StatusBadRequest,
	bridge.KindNotFound:        http.StatusNotFound,
	bridge.KindStateTransition: http.StatusConflict,
	bridge.KindCrypto:          http.StatusUnprocessableEntity,
	bridge.KindInfrastructure:  http.StatusServiceUnavailable,
}

// StatusFor maps an error to its HTTP status through its kind.
func StatusFor(err error) (int, string) {
	kind := bridge.KindOf(err)
	if status, ok := statusByKind[kind]; ok {
		return status, kind
	}
	return http.StatusInternalServerError, kind
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := StatusFor(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", kind),
			zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Kind: kind, Message: err.Error()})
}

var errUnauthorized = errors.New("missing or invalid bearer token")

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="aethercore"`)
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{Kind: "unauthorized", Message: errUnauthorized.Error()})
}

// decode reads a JSON body into v. Malformed bodies are validation errors.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &bridge.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}
