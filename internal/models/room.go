package models

import "time"

type Account struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Room struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedBy int       `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Membership struct {
	AccountID int `json:"account_id"`
	RoomID    int `json:"room_id"`
}

// Member is a room member as listed to other members.
type Member struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Message is an append-only chat entry. AuthorID is nil once the author
// account has been removed; AuthorUsername is captured when the message is
// written and never re-derived.
type Message struct {
	ID             int       `json:"id"`
	AuthorID       *int      `json:"author_id"`
	RoomID         int       `json:"room_id"`
	Text           string    `json:"text"`
	AuthorUsername string    `json:"author_username"`
	CreatedAt      time.Time `json:"created_at"`
}

// Before reports whether m sorts before o in a room's history.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

type CreateRoomRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"required,min=1,max=4000"`
}
