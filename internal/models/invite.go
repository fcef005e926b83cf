package models

import "time"

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
)

func (s InviteStatus) Valid() bool {
	switch s {
	case InviteStatusPending, InviteStatusAccepted, InviteStatusDeclined:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s InviteStatus) Terminal() bool {
	return s == InviteStatusAccepted || s == InviteStatusDeclined
}

type Invite struct {
	ID         int          `json:"id"`
	SenderID   int          `json:"sender_id"`
	ReceiverID int          `json:"receiver_id"`
	RoomID     int          `json:"room_id"`
	Text       string       `json:"text"`
	Status     InviteStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

type CreateInviteRequest struct {
	ReceiverID int    `json:"receiver_id" validate:"required,gt=0"`
	Text       string `json:"text" validate:"max=500"`
}
