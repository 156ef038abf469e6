package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/querychat/internal/remote"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeRemoteError maps a remote-store failure to a gateway response.
func writeRemoteError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, remote.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, message)
}
