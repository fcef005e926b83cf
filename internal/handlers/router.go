package handlers

import (
	"net/http"

	"groupchat/internal/auth"
)

type Handlers struct {
	Tokens    *auth.TokenService
	Auth      *AuthHandlers
	Rooms     *RoomHandlers
	Invites   *InviteHandlers
	WebSocket *WebSocketHandlers
}

// Routes registers every endpoint on a new mux, wrapped in RequestLog.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	authed := func(fn http.HandlerFunc) http.HandlerFunc {
		return RequireAuth(h.Tokens, fn)
	}

	// Auth routes
	mux.HandleFunc("POST /register", h.Auth.Register)
	mux.HandleFunc("POST /login", h.Auth.Login)
	mux.HandleFunc("POST /token", h.Auth.Token)
	mux.HandleFunc("GET /me", authed(h.Auth.Me))

	// Room routes
	mux.HandleFunc("GET /rooms", authed(h.Rooms.ListRooms))
	mux.HandleFunc("POST /rooms", authed(h.Rooms.CreateRoom))
	mux.HandleFunc("GET /rooms/created", authed(h.Rooms.ListCreatedRooms))
	mux.HandleFunc("GET /rooms/{id}", authed(h.Rooms.GetRoom))
	mux.HandleFunc("GET /rooms/{id}/members", authed(h.Rooms.GetRoomMembers))
	mux.HandleFunc("GET /rooms/{id}/active", authed(h.Rooms.GetActiveUsers))
	mux.HandleFunc("GET /rooms/{id}/messages", authed(h.Rooms.History))
	mux.HandleFunc("POST /rooms/{id}/messages", authed(h.Rooms.SendMessage))
	mux.HandleFunc("POST /rooms/{id}/invites", authed(h.Invites.CreateInvite))

	// Invite routes
	mux.HandleFunc("GET /invites", authed(h.Invites.ListPending))
	mux.HandleFunc("GET /invites/sent", authed(h.Invites.ListSent))
	mux.HandleFunc("POST /invites/{id}/accept", authed(h.Invites.Accept))
	mux.HandleFunc("POST /invites/{id}/decline", authed(h.Invites.Decline))

	// WebSocket route
	mux.HandleFunc("GET /ws", h.WebSocket.HandleWebSocket)

	return RequestLog(mux)
}
