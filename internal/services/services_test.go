package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"groupchat/internal/database"
	"groupchat/internal/models"
	"groupchat/internal/websocket"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(roomID int, msg models.Message) websocket.PublishResult {
	args := m.Called(roomID, msg)
	return args.Get(0).(websocket.PublishResult)
}

// failingLog is a store whose message log rejects every append.
type failingLog struct {
	*database.MemoryDB
	mock.Mock
}

func (f *failingLog) AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	args := f.Called(ctx, msg)
	return nil, args.Error(0)
}

type fixture struct {
	db       *database.MemoryDB
	rooms    *MembershipRegistry
	invites  *InviteWorkflow
	messages *MessageService
	hub      *websocket.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		base = base.Add(time.Millisecond)
		return base
	}

	db := database.NewMemoryDB(database.WithMemoryClock(clock))
	hub := websocket.NewHub(nil)
	return &fixture{
		db:       db,
		rooms:    NewMembershipRegistry(db),
		invites:  NewInviteWorkflow(db),
		messages: NewMessageService(db, hub),
		hub:      hub,
	}
}

func (f *fixture) account(t *testing.T, name string) *models.Account {
	t.Helper()
	a, err := f.db.CreateAccount(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	return a
}

// fakeConn records what the hub sends it.
type fakeConn struct {
	id      string
	account int
	mu      sync.Mutex
	got     [][]byte
	err     error
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) AccountID() int { return c.account }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.got = append(c.got, data)
	return nil
}

// messages decodes the chat messages received so far, skipping presence.
func (c *fakeConn) messages(t *testing.T) []models.WebSocketMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.WebSocketMessage
	for _, data := range c.got {
		var env models.WebSocketMessage
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == models.MessageTypeMessage {
			out = append(out, env)
		}
	}
	return out
}

func (c *fakeConn) received(t *testing.T) int {
	return len(c.messages(t))
}
