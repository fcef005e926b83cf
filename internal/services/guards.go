package services

import (
	"context"
	"errors"

	"groupchat/internal/apperr"
	"groupchat/internal/database"
)

// guard is one authorization step for an (account, room) pair.
type guard func(ctx context.Context, repo database.Repository, accountID, roomID int) error

func roomExists(ctx context.Context, repo database.Repository, _, roomID int) error {
	_, err := repo.GetRoomByID(ctx, roomID)
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound("room not found")
	}
	if err != nil {
		return apperr.Internal("load room", err)
	}
	return nil
}

func isMember(ctx context.Context, repo database.Repository, accountID, roomID int) error {
	ok, err := repo.IsMember(ctx, accountID, roomID)
	if err != nil {
		return apperr.Internal("check membership", err)
	}
	if !ok {
		return apperr.Forbidden("not a member of this room")
	}
	return nil
}

// memberGuards is the pipeline every room-scoped operation runs. Order
// matters: an unknown room reports NotFound before membership is checked.
var memberGuards = []guard{roomExists, isMember}

func runGuards(ctx context.Context, repo database.Repository, accountID, roomID int, guards ...guard) error {
	for _, g := range guards {
		if err := g(ctx, repo, accountID, roomID); err != nil {
			return err
		}
	}
	return nil
}
