package api

import (
	"net/http"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/projection"

	"github.com/gorilla/mux"
)

// activityBody is the /debug/activity payload: the recent-message window
// and the users currently present in at least one room.
type activityBody struct {
	Messages []domain.Message `json:"messages"`
	Present  []domain.UserID  `json:"present"`
}

// Deps groups everything the router mounts.
type Deps struct {
	Auth     *AuthHandler
	Rooms    *RoomHandler
	Messages *MessageHandler
	Live     http.Handler
	Tokens   *auth.TokenManager
	Stats    *observability.Stats
	Timeline *projection.Timeline
	Inspect  http.Handler
}

// NewRouter wires the full HTTP surface. Auth endpoints are public, the
// rest of /api requires a bearer token, and the websocket endpoint does
// its own pre-upgrade authentication.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/auth/register", deps.Auth.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", deps.Auth.Login).Methods(http.MethodPost)

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return Authenticated(deps.Tokens, h)
	}

	r.HandleFunc("/api/rooms", authed(deps.Rooms.List)).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms", authed(deps.Rooms.Create)).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms/{id}", authed(deps.Rooms.Get)).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{id}", authed(deps.Rooms.Delete)).Methods(http.MethodDelete)
	r.HandleFunc("/api/rooms/{id}/join", authed(deps.Rooms.Join)).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms/{id}/leave", authed(deps.Rooms.Leave)).Methods(http.MethodPost)
	r.HandleFunc("/api/my-rooms", authed(deps.Rooms.MyRooms)).Methods(http.MethodGet)

	r.HandleFunc("/api/rooms/{id}/messages", authed(deps.Messages.History)).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{id}/search", authed(deps.Messages.Search)).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/{id}", authed(deps.Messages.Get)).Methods(http.MethodGet)

	r.Handle("/ws", deps.Live).Methods(http.MethodGet)

	r.HandleFunc("/debug/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Stats.Snapshot())
	}).Methods(http.MethodGet)

	if deps.Timeline != nil {
		r.HandleFunc("/debug/activity", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, activityBody{
				Messages: deps.Timeline.Messages(),
				Present:  deps.Timeline.Present(),
			})
		}).Methods(http.MethodGet)
	}

	if deps.Inspect != nil {
		r.Handle("/debug/inspect", deps.Inspect).Methods(http.MethodGet)
	}

	return r
}
