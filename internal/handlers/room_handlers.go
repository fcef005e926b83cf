package handlers

import (
	"net/http"
	"strconv"

	"groupchat/internal/apperr"
	"groupchat/internal/models"
	"groupchat/internal/services"
	"groupchat/internal/websocket"
)

type RoomHandlers struct {
	rooms    *services.MembershipRegistry
	messages *services.MessageService
	hub      *websocket.Hub
}

func NewRoomHandlers(rooms *services.MembershipRegistry, messages *services.MessageService, hub *websocket.Hub) *RoomHandlers {
	return &RoomHandlers{
		rooms:    rooms,
		messages: messages,
		hub:      hub,
	}
}

func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	var req models.CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	room, err := h.rooms.CreateRoom(r.Context(), account.ID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.ListRoomsFor(r.Context(), accountFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandlers) ListCreatedRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.ListCreatedBy(r.Context(), accountFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	room, err := h.rooms.GetRoom(r.Context(), accountFrom(r.Context()).ID, roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandlers) GetRoomMembers(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	members, err := h.rooms.ListMembers(r.Context(), accountFrom(r.Context()).ID, roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func (h *RoomHandlers) GetActiveUsers(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.rooms.Authorize(r.Context(), accountFrom(r.Context()).ID, roomID); err != nil {
		writeError(w, r, err)
		return
	}

	online := h.hub.Online(roomID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":      roomID,
		"active_users": online,
		"count":        len(online),
	})
}

func (h *RoomHandlers) History(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, r, apperr.InvalidRequest("invalid limit"))
			return
		}
	}

	messages, err := h.messages.History(r.Context(), accountFrom(r.Context()).ID, roomID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *RoomHandlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req models.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.messages.Send(r.Context(), accountFrom(r.Context()).ID, roomID, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}
