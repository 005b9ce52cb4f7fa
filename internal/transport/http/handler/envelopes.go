package handler

import (
	"encoding/json"
	"net/http"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DispatchEnvelope wraps auth-event dispatch responses.
type DispatchEnvelope struct {
	OK          bool `json:"ok"`
	SentWelcome bool `json:"sentWelcome"`
	SentLogin   bool `json:"sentLogin"`
	Skipped     bool `json:"skipped,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
