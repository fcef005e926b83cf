package handlers

import (
	"net/http"
	"strconv"

	"groupchat/internal/apperr"
	"groupchat/internal/auth"
	"groupchat/internal/services"
	ws "groupchat/internal/websocket"
	"groupchat/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// recentHistory is replayed to every new connection. It stays below the
// client's send buffer.
const recentHistory = 50

type WebSocketHandlers struct {
	tokens   *auth.TokenService
	rooms    *services.MembershipRegistry
	messages *services.MessageService
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandlers accepts upgrades from allowedOrigins; an empty list
// allows any origin.
func NewWebSocketHandlers(tokens *auth.TokenService, rooms *services.MembershipRegistry, messages *services.MessageService, hub *ws.Hub, allowedOrigins []string) *WebSocketHandlers {
	return &WebSocketHandlers{
		tokens:   tokens,
		rooms:    rooms,
		messages: messages,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowedOrigins) == 0 || origin == "" || lo.Contains(allowedOrigins, origin)
			},
		},
	}
}

// HandleWebSocket authenticates with ?token= since browsers cannot set
// headers on the upgrade request.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr = bearerToken(r)
	}
	if tokenStr == "" {
		writeError(w, r, apperr.Unauthenticated("missing token"))
		return
	}

	account, err := h.tokens.Resolve(r.Context(), tokenStr)
	if err != nil {
		writeError(w, r, err)
		return
	}

	roomID, err := strconv.Atoi(r.URL.Query().Get("room"))
	if err != nil || roomID <= 0 {
		writeError(w, r, apperr.InvalidRequest("invalid room"))
		return
	}

	if err := h.rooms.Authorize(r.Context(), account.ID, roomID); err != nil {
		writeError(w, r, err)
		return
	}

	recent, err := h.messages.History(r.Context(), account.ID, roomID, recentHistory)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, account.ID, roomID, h.messages, logger.FromContext(r.Context()))
	if err := client.Replay(recent); err != nil {
		logger.FromContext(r.Context()).Warnw("failed to replay history", "room_id", roomID, "error", err)
		client.Close()
		return
	}
	h.hub.Join(roomID, client)

	go client.WritePump()
	client.ReadPump(r.Context())
}
