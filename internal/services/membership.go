package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"groupchat/internal/apperr"
	"groupchat/internal/database"
	"groupchat/internal/models"
	"groupchat/pkg/logger"
)

const maxRoomNameLen = 100

// MembershipRegistry owns rooms and who belongs to them.
type MembershipRegistry struct {
	db database.Database
}

func NewMembershipRegistry(db database.Database) *MembershipRegistry {
	return &MembershipRegistry{db: db}
}

func (s *MembershipRegistry) IsMember(ctx context.Context, accountID, roomID int) (bool, error) {
	ok, err := s.db.IsMember(ctx, accountID, roomID)
	if err != nil {
		return false, apperr.Internal("check membership", err)
	}
	return ok, nil
}

// CreateRoom creates the room and makes the creator its first member in one
// transaction.
func (s *MembershipRegistry) CreateRoom(ctx context.Context, creatorID int, name string) (*models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidRequest("room name is required")
	}
	if utf8.RuneCountInString(name) > maxRoomNameLen {
		return nil, apperr.InvalidRequest("room name is too long")
	}

	var room *models.Room
	err := s.db.WithTx(ctx, func(repo database.Repository) error {
		var err error
		room, err = repo.CreateRoom(ctx, name, creatorID)
		if err != nil {
			return err
		}
		return repo.AddCreatorMembership(ctx, creatorID, room.ID)
	})

	switch {
	case errors.Is(err, database.ErrRoomExists):
		return nil, apperr.Conflict("you already have a room with this name")
	case errors.Is(err, database.ErrInvalidReference):
		return nil, apperr.NotFound("account not found")
	case err != nil:
		return nil, apperr.Internal("create room", err)
	}

	logger.FromContext(ctx).Infow("room created", "room_id", room.ID, "creator_id", creatorID)
	return room, nil
}

// AddMember is idempotent.
func (s *MembershipRegistry) AddMember(ctx context.Context, accountID, roomID int) error {
	err := s.db.AddMembership(ctx, accountID, roomID)
	if errors.Is(err, database.ErrInvalidReference) {
		return apperr.NotFound("room or account not found")
	}
	if err != nil {
		return apperr.Internal("add member", err)
	}
	return nil
}

func (s *MembershipRegistry) ListRoomsFor(ctx context.Context, accountID int) ([]*models.Room, error) {
	rooms, err := s.db.ListMemberRooms(ctx, accountID)
	if err != nil {
		return nil, apperr.Internal("list rooms", err)
	}
	return rooms, nil
}

func (s *MembershipRegistry) ListCreatedBy(ctx context.Context, accountID int) ([]*models.Room, error) {
	rooms, err := s.db.ListCreatedRooms(ctx, accountID)
	if err != nil {
		return nil, apperr.Internal("list created rooms", err)
	}
	return rooms, nil
}

func (s *MembershipRegistry) GetRoom(ctx context.Context, accountID, roomID int) (*models.Room, error) {
	if err := s.Authorize(ctx, accountID, roomID); err != nil {
		return nil, err
	}

	room, err := s.db.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, apperr.Internal("load room", err)
	}
	return room, nil
}

func (s *MembershipRegistry) ListMembers(ctx context.Context, accountID, roomID int) ([]*models.Member, error) {
	if err := s.Authorize(ctx, accountID, roomID); err != nil {
		return nil, err
	}

	members, err := s.db.GetRoomMembers(ctx, roomID)
	if err != nil {
		return nil, apperr.Internal("list members", err)
	}
	return members, nil
}

// Authorize runs the member guard pipeline for accountID in roomID.
func (s *MembershipRegistry) Authorize(ctx context.Context, accountID, roomID int) error {
	return runGuards(ctx, s.db, accountID, roomID, memberGuards...)
}
