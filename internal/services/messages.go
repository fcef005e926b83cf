package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"unicode/utf8"

	"groupchat/internal/apperr"
	"groupchat/internal/database"
	"groupchat/internal/models"
	"groupchat/internal/websocket"
	"groupchat/pkg/logger"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
	maxMessageLen       = 4000
)

// Publisher fans a committed message out to live connections.
type Publisher interface {
	Publish(roomID int, msg models.Message) websocket.PublishResult
}

type MessageService struct {
	db  database.Database
	hub Publisher
}

func NewMessageService(db database.Database, hub Publisher) *MessageService {
	return &MessageService{db: db, hub: hub}
}

// Send appends text to the room's log and, once stored, publishes it. A
// failed append publishes nothing.
func (s *MessageService) Send(ctx context.Context, authorID, roomID int, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.InvalidRequest("message text is required")
	}
	if utf8.RuneCountInString(text) > maxMessageLen {
		return nil, apperr.InvalidRequest("message text is too long")
	}

	if err := runGuards(ctx, s.db, authorID, roomID, memberGuards...); err != nil {
		return nil, err
	}

	author, err := s.db.GetAccountByID(ctx, authorID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Unauthenticated("account no longer exists")
	}
	if err != nil {
		return nil, apperr.Internal("load author", err)
	}

	msg, err := s.db.AppendMessage(ctx, models.Message{
		AuthorID:       &author.ID,
		RoomID:         roomID,
		Text:           text,
		AuthorUsername: author.Username,
	})
	if err != nil {
		return nil, apperr.Internal("append message", err)
	}

	res := s.hub.Publish(roomID, *msg)
	logger.FromContext(ctx).Debugw("message published",
		"message_id", msg.ID, "room_id", roomID, "delivered", res.Delivered, "pruned", res.Pruned)
	return msg, nil
}

// History returns up to limit of the room's most recent messages, oldest
// first.
func (s *MessageService) History(ctx context.Context, accountID, roomID, limit int) ([]*models.Message, error) {
	if err := runGuards(ctx, s.db, accountID, roomID, memberGuards...); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	messages, err := s.db.ListMessagesByRoom(ctx, roomID, limit, true)
	if err != nil {
		return nil, apperr.Internal("load history", err)
	}

	slices.Reverse(messages)
	return messages, nil
}
