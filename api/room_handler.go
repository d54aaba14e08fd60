package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"chat-relay/domain"
	"chat-relay/services"

	"github.com/gorilla/mux"
)

type RoomHandler struct {
	service services.IRoomService
	log     *slog.Logger
}

func NewRoomHandler(service services.IRoomService, log *slog.Logger) *RoomHandler {
	return &RoomHandler{service: service, log: log}
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "room name is required"})
		return
	}
	summary, err := h.service.CreateRoom(req.Name, req.Description, CallerID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListRooms()
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetRoom(roomID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRoom(roomID(r), CallerID(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	if err := h.service.JoinRoom(CallerID(r), roomID(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.service.LeaveRoom(CallerID(r), roomID(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *RoomHandler) MyRooms(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.UserRooms(CallerID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func roomID(r *http.Request) domain.RoomID {
	return domain.RoomID(mux.Vars(r)["id"])
}
