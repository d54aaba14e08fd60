// Package api is the REST surface: authentication, room management and
// history reads. Everything live goes over the websocket instead.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"chat-relay/errors"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps service errors onto status codes. Internal failures are
// logged with their cause but surfaced opaquely.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
