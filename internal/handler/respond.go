package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/meetings/internal/jaas"
	"github.com/dukerupert/meetings/internal/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError maps domain errors onto HTTP responses. Unclassified errors are
// logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		cfgErr *model.ConfigError
		valErr *model.ValidationError
	)
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "meeting not found", "code": "not_found"})
	case errors.Is(err, model.ErrWrongProvider):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "code": "not_jaas"})
	case errors.Is(err, jaas.ErrMissingCredential):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "JaaS credentials are not configured for this meeting", "code": "configuration"})
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": cfgErr.Error(), "code": "configuration", "field": cfgErr.Field})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": valErr.Message, "code": "validation", "field": valErr.Field})
	case errors.Is(err, jaas.ErrSigning):
		logger.Error("token signing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate token", "code": "signing"})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
