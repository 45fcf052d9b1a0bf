package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"paltransport.org/internal/audit"
	"paltransport.org/internal/identity"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the uniform error body. The message is safe for
// clients; internal detail stays in the logs.
func writeError(w http.ResponseWriter, r *http.Request, code int, errCode, msg string) {
	payload := map[string]any{
		"status":  code,
		"error":   errCode,
		"message": msg,
		"path":    r.URL.Path,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	payload := map[string]any{
		"status":           http.StatusBadRequest,
		"error":            "validation_failed",
		"message":          "request validation failed",
		"path":             r.URL.Path,
		"validationErrors": fields,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusBadRequest, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// userPayload is the identity representation returned by auth endpoints.
func userPayload(id identity.Identity) map[string]any {
	return map[string]any{
		"id":         id.ID(),
		"email":      id.Principal(),
		"name":       id.DisplayName(),
		"role":       string(id.AccessRole()),
		"provider":   string(id.AuthProvider()),
		"pictureUrl": id.Picture(),
	}
}
