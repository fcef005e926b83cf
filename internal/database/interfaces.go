package database

import (
	"context"
	"errors"

	"groupchat/internal/models"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrInvalidReference    = errors.New("referenced record does not exist")
	ErrAccountExists       = errors.New("account already exists")
	ErrRoomExists          = errors.New("room already exists")
	ErrMembershipExists    = errors.New("membership already exists")
	ErrPendingInviteExists = errors.New("pending invite already exists")
)

// AccountRepository is the account directory. The chat core only reads it;
// CreateAccount exists for registration.
type AccountRepository interface {
	CreateAccount(ctx context.Context, username, email, passwordHash string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id int) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
}

type RoomRepository interface {
	CreateRoom(ctx context.Context, name string, creatorID int) (*models.Room, error)
	GetRoomByID(ctx context.Context, id int) (*models.Room, error)
	// ListMemberRooms and ListCreatedRooms return newest first.
	ListMemberRooms(ctx context.Context, accountID int) ([]*models.Room, error)
	ListCreatedRooms(ctx context.Context, accountID int) ([]*models.Room, error)
}

type MembershipRepository interface {
	// AddCreatorMembership fails with ErrMembershipExists on a duplicate.
	AddCreatorMembership(ctx context.Context, accountID, roomID int) error
	// AddMembership is idempotent.
	AddMembership(ctx context.Context, accountID, roomID int) error
	IsMember(ctx context.Context, accountID, roomID int) (bool, error)
	GetRoomMembers(ctx context.Context, roomID int) ([]*models.Member, error)
}

type InviteRepository interface {
	CreateInvite(ctx context.Context, inv models.Invite) (*models.Invite, error)
	// GetInviteForReceiver locks the row for the rest of the transaction.
	GetInviteForReceiver(ctx context.Context, inviteID, receiverID int) (*models.Invite, error)
	HasPendingInvite(ctx context.Context, receiverID, roomID int) (bool, error)
	UpdateInviteStatus(ctx context.Context, inviteID int, status models.InviteStatus) (*models.Invite, error)
	ListReceivedInvites(ctx context.Context, receiverID int, status models.InviteStatus) ([]*models.Invite, error)
	ListSentInvites(ctx context.Context, senderID int) ([]*models.Invite, error)
}

// MessageRepository is the durable message log.
type MessageRepository interface {
	// AppendMessage assigns ID and CreatedAt.
	AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error)
	// ListMessagesByRoom orders by (created_at, id); limit <= 0 means no limit.
	ListMessagesByRoom(ctx context.Context, roomID, limit int, descending bool) ([]*models.Message, error)
}

type Repository interface {
	AccountRepository
	RoomRepository
	MembershipRepository
	InviteRepository
	MessageRepository
}

type Database interface {
	Repository
	// WithTx runs fn in a single transaction. fn's error rolls everything
	// back and is returned unchanged.
	WithTx(ctx context.Context, fn func(Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}
