package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/hertzfm/hertz/internal/chat"
	"github.com/hertzfm/hertz/internal/connection"
	"github.com/hertzfm/hertz/internal/history"
	"github.com/hertzfm/hertz/internal/musicprofile"
	"github.com/hertzfm/hertz/internal/spotify"
	"github.com/hertzfm/hertz/internal/users"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("[api] encode response: %v", err)
		}
	}
}

// writeError maps domain errors onto HTTP status codes. Unknown errors
// become opaque 500s; the detail goes to the log, not the client.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, connection.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "connection already exists"})
	case errors.Is(err, connection.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "not allowed"})
	case errors.Is(err, chat.ErrNotConnected):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "users are not connected"})
	case errors.Is(err, connection.ErrNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, musicprofile.ErrNotFound),
		errors.Is(err, spotify.ErrNoToken):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, musicprofile.ErrInvalidProfile):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "no usable listening data"})
	case errors.Is(err, history.ErrNotEngaged):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "play below engagement threshold"})
	default:
		log.Printf("[api] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
