package services

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"groupchat/internal/apperr"
	"groupchat/internal/database"
	"groupchat/internal/models"
	"groupchat/pkg/logger"
)

const maxInviteTextLen = 500

// InviteWorkflow drives the pending -> accepted | declined lifecycle.
type InviteWorkflow struct {
	db database.Database
}

func NewInviteWorkflow(db database.Database) *InviteWorkflow {
	return &InviteWorkflow{db: db}
}

func (s *InviteWorkflow) Create(ctx context.Context, senderID, receiverID, roomID int, text string) (*models.Invite, error) {
	if senderID == receiverID {
		return nil, apperr.InvalidRequest("cannot invite yourself")
	}
	if utf8.RuneCountInString(text) > maxInviteTextLen {
		return nil, apperr.InvalidRequest("invite text is too long")
	}

	var invite *models.Invite
	err := s.db.WithTx(ctx, func(repo database.Repository) error {
		if err := runGuards(ctx, repo, senderID, roomID, memberGuards...); err != nil {
			return err
		}

		if _, err := repo.GetAccountByID(ctx, receiverID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return apperr.NotFound("receiver not found")
			}
			return err
		}

		member, err := repo.IsMember(ctx, receiverID, roomID)
		if err != nil {
			return err
		}
		if member {
			return apperr.Conflict("receiver is already a member")
		}

		pending, err := repo.HasPendingInvite(ctx, receiverID, roomID)
		if err != nil {
			return err
		}
		if pending {
			return apperr.Conflict("a pending invite already exists")
		}

		invite, err = repo.CreateInvite(ctx, models.Invite{
			SenderID:   senderID,
			ReceiverID: receiverID,
			RoomID:     roomID,
			Text:       text,
			Status:     models.InviteStatusPending,
		})
		return err
	})
	if err != nil {
		return nil, mapInviteError("create invite", err)
	}

	logger.FromContext(ctx).Infow("invite created",
		"invite_id", invite.ID, "room_id", roomID, "sender_id", senderID, "receiver_id", receiverID)
	return invite, nil
}

// Accept resolves a pending invite addressed to actingID and makes them a
// member of the room.
func (s *InviteWorkflow) Accept(ctx context.Context, inviteID, actingID int) (*models.Invite, error) {
	return s.resolve(ctx, inviteID, actingID, models.InviteStatusAccepted)
}

func (s *InviteWorkflow) Decline(ctx context.Context, inviteID, actingID int) (*models.Invite, error) {
	return s.resolve(ctx, inviteID, actingID, models.InviteStatusDeclined)
}

func (s *InviteWorkflow) resolve(ctx context.Context, inviteID, actingID int, to models.InviteStatus) (*models.Invite, error) {
	var invite *models.Invite
	err := s.db.WithTx(ctx, func(repo database.Repository) error {
		current, err := repo.GetInviteForReceiver(ctx, inviteID, actingID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return apperr.NotFound("invite not found")
			}
			return err
		}

		if current.Status.Terminal() {
			return apperr.Conflict(fmt.Sprintf("invite already %s", current.Status))
		}

		if to == models.InviteStatusAccepted {
			if err := repo.AddMembership(ctx, actingID, current.RoomID); err != nil {
				return err
			}
		}

		invite, err = repo.UpdateInviteStatus(ctx, inviteID, to)
		return err
	})
	if err != nil {
		return nil, mapInviteError("resolve invite", err)
	}

	logger.FromContext(ctx).Infow("invite resolved",
		"invite_id", invite.ID, "room_id", invite.RoomID, "status", invite.Status)
	return invite, nil
}

func (s *InviteWorkflow) ListPendingFor(ctx context.Context, accountID int) ([]*models.Invite, error) {
	invites, err := s.db.ListReceivedInvites(ctx, accountID, models.InviteStatusPending)
	if err != nil {
		return nil, apperr.Internal("list invites", err)
	}
	return invites, nil
}

func (s *InviteWorkflow) ListSentBy(ctx context.Context, accountID int) ([]*models.Invite, error) {
	invites, err := s.db.ListSentInvites(ctx, accountID)
	if err != nil {
		return nil, apperr.Internal("list sent invites", err)
	}
	return invites, nil
}

func mapInviteError(op string, err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, database.ErrPendingInviteExists):
		return apperr.Conflict("a pending invite already exists")
	case errors.Is(err, database.ErrInvalidReference):
		return apperr.NotFound("room or account not found")
	default:
		return apperr.Internal(op, err)
	}
}
