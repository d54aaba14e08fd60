package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"chat-relay/search"
	"chat-relay/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

type MessageHandler struct {
	history services.IHistoryService
	index   *search.Index
	log     *slog.Logger
}

func NewMessageHandler(history services.IHistoryService, index *search.Index, log *slog.Logger) *MessageHandler {
	return &MessageHandler{history: history, index: index, log: log}
}

// History serves GET /api/rooms/{id}/messages?limit=&before=.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var before *string
	if cursor := r.URL.Query().Get("before"); cursor != "" {
		before = lo.ToPtr(cursor)
	}

	page, err := h.history.Page(roomID(r), CallerID(r), limit, before)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get serves GET /api/messages/{id}. Only members of the message's room
// can fetch it.
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid message id"})
		return
	}

	message, err := h.history.Message(id, CallerID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

type searchResponse struct {
	Hits []search.Hit `json:"hits"`
}

// Search serves GET /api/rooms/{id}/search?q=&limit=. Access control piggy-
// backs on the history service's membership check: an empty page request
// fails the same way a search by a non-member should.
func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "query parameter q is required"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	if _, err := h.history.Page(roomID(r), CallerID(r), 1, nil); err != nil {
		writeError(w, h.log, err)
		return
	}

	hits, err := h.index.Search(r.Context(), roomID(r), query, limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Hits: hits})
}
