package models

type MessageType string

const (
	MessageTypeMessage  MessageType = "message"
	MessageTypeHistory  MessageType = "history"
	MessageTypePresence MessageType = "presence_update"
	MessageTypeError    MessageType = "error"
)

// WebSocketMessage is the envelope written to live connections.
type WebSocketMessage struct {
	Type    MessageType `json:"type"`
	RoomID  int         `json:"room_id,omitempty"`
	Message *Message    `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`

	// Presence fields: distinct online account ids and the connection count.
	ActiveUsers []int `json:"active_users,omitempty"`
	UserCount   int   `json:"user_count,omitempty"`
}
