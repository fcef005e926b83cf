package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"groupchat/internal/apperr"
	"groupchat/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 16 << 10
	sendBufferSize = 256
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrSendBuffer   = errors.New("send buffer full")
)

// Poster stores and publishes a message written by a live client.
type Poster interface {
	Send(ctx context.Context, authorID, roomID int, text string) (*models.Message, error)
}

// Client is one websocket connection of an account to a room.
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	once      sync.Once
	accountID int
	roomID    int
	poster    Poster
	log       *zap.SugaredLogger
}

func NewClient(hub *Hub, conn *websocket.Conn, accountID, roomID int, poster Poster, log *zap.SugaredLogger) *Client {
	id := uuid.NewString()
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		id:        id,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		accountID: accountID,
		roomID:    roomID,
		poster:    poster,
		log:       log.With("conn_id", id, "account_id", accountID, "room_id", roomID),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) AccountID() int {
	return c.accountID
}

// Send enqueues data without blocking. A full buffer means the peer is not
// keeping up; the client is closed and an error returned.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.stop()
		return ErrSendBuffer
	}
}

// Replay enqueues past messages as history frames. It is meant to run before
// the client joins the hub so history precedes live traffic.
func (c *Client) Replay(messages []*models.Message) error {
	for _, m := range messages {
		data, err := json.Marshal(models.WebSocketMessage{
			Type:    models.MessageTypeHistory,
			RoomID:  c.roomID,
			Message: m,
		})
		if err != nil {
			return err
		}
		if err := c.Send(data); err != nil {
			return err
		}
	}
	return nil
}

// stop signals the write pump, which closes the socket. It does no I/O so it
// is safe under the hub's room lock.
func (c *Client) stop() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Close stops the write pump and closes the socket. Safe to call more than
// once and from any goroutine.
func (c *Client) Close() {
	c.stop()
	_ = c.conn.Close()
}

// ReadPump hands each incoming text frame to the poster until the connection
// fails, then leaves the hub. The write pump closes the socket.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Leave(c.roomID, c)
		c.stop()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warnw("websocket read error", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		if _, err := c.poster.Send(ctx, c.accountID, c.roomID, string(message)); err != nil {
			c.reportError(err)
			// Losing membership or the room ends the session.
			if k := apperr.KindOf(err); k == apperr.KindForbidden || k == apperr.KindNotFound || k == apperr.KindUnauthenticated {
				return
			}
		}
	}
}

func (c *Client) reportError(err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		c.log.Errorw("failed to post message", "error", err)
	}

	data, mErr := json.Marshal(models.WebSocketMessage{
		Type:   models.MessageTypeError,
		RoomID: c.roomID,
		Error:  publicMessage(err),
	})
	if mErr != nil {
		return
	}
	_ = c.Send(data)
}

func publicMessage(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal {
		return appErr.Error()
	}
	return apperr.KindInternal.String()
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.flush()
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debugw("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is still buffered, stopping at the first error.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
