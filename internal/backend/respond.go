package backend

import (
	"encoding/json"
	"net/http"
)

// envelope is the response wrapper of every REST endpoint.
type envelope struct {
	IsSuccess bool   `json:"isSuccess"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// respond sends a JSON envelope with the given status code.
func respond(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(envelope{
		IsSuccess: status >= 200 && status < 300,
		Message:   message,
		Data:      data,
	})
}

// fail sends an error envelope.
func fail(w http.ResponseWriter, status int, message string) {
	respond(w, status, message, nil)
}
