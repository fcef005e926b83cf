package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"groupchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConn struct {
	id      string
	account int

	mu     sync.Mutex
	frames [][]byte
	closed atomic.Bool
	fail   atomic.Bool
}

func newTestConn(id string, account int) *testConn {
	return &testConn{id: id, account: account}
}

func (c *testConn) ID() string     { return c.id }
func (c *testConn) AccountID() int { return c.account }
func (c *testConn) Close()         { c.closed.Store(true) }

func (c *testConn) Send(data []byte) error {
	if c.fail.Load() || c.closed.Load() {
		return errors.New("closed")
	}
	c.mu.Lock()
	c.frames = append(c.frames, data)
	c.mu.Unlock()
	return nil
}

func (c *testConn) envelopes(t *testing.T, typ models.MessageType) []models.WebSocketMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.WebSocketMessage
	for _, f := range c.frames {
		var env models.WebSocketMessage
		require.NoError(t, json.Unmarshal(f, &env))
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

// count returns the number of chat messages received, ignoring presence.
func (c *testConn) count(t *testing.T) int {
	return len(c.envelopes(t, models.MessageTypeMessage))
}

func TestPublishReachesRoomOnly(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil)

	a := newTestConn("a", 1)
	b := newTestConn("b", 2)
	other := newTestConn("x", 3)
	hub.Join(10, a)
	hub.Join(10, b)
	hub.Join(20, other)

	res := hub.Publish(10, models.Message{ID: 1, RoomID: 10, Text: "hi"})
	req.Equal(PublishResult{Delivered: 2}, res)
	req.Equal(1, a.count(t))
	req.Equal(1, b.count(t))
	req.Equal(0, other.count(t))

	req.Equal("hi", a.envelopes(t, models.MessageTypeMessage)[0].Message.Text)
}

func TestPublishPrunesFailedConnections(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil)

	ok := newTestConn("ok", 1)
	dead := newTestConn("dead", 2)
	hub.Join(1, ok)
	hub.Join(1, dead)
	dead.fail.Store(true)

	res := hub.Publish(1, models.Message{ID: 1, Text: "one"})
	req.Equal(PublishResult{Delivered: 1, Pruned: 1}, res)
	req.Equal(1, hub.Count(1))

	res = hub.Publish(1, models.Message{ID: 2, Text: "two"})
	req.Equal(PublishResult{Delivered: 1}, res)
	req.Equal(2, ok.count(t))
}

func TestJoinPrunesFailedConnections(t *testing.T) {
	hub := NewHub(nil)
	dead := newTestConn("dead", 1)
	hub.Join(1, dead)
	dead.fail.Store(true)

	hub.Join(1, newTestConn("ok", 2))
	assert.Equal(t, 1, hub.Count(1))
	assert.Equal(t, []int{2}, hub.Online(1))
}

func TestPresenceOnJoinAndLeave(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil)
	a := newTestConn("a", 1)
	b := newTestConn("b", 2)

	hub.Join(5, a)
	hub.Join(5, b)
	hub.Leave(5, b)
	hub.Leave(5, b)

	got := a.envelopes(t, models.MessageTypePresence)
	req.Len(got, 3)
	req.Equal([]int{1}, got[0].ActiveUsers)
	req.Equal([]int{1, 2}, got[1].ActiveUsers)
	req.Equal(2, got[1].UserCount)
	req.Equal([]int{1}, got[2].ActiveUsers)
	req.Equal(5, got[2].RoomID)

	joined := b.envelopes(t, models.MessageTypePresence)
	req.Len(joined, 1, "a leaving connection gets no update")
	req.Equal([]int{1, 2}, joined[0].ActiveUsers)
}

func TestPublishEmptyRoom(t *testing.T) {
	hub := NewHub(nil)
	assert.Equal(t, PublishResult{}, hub.Publish(99, models.Message{}))
}

func TestLeaveIdempotent(t *testing.T) {
	hub := NewHub(nil)
	c := newTestConn("c", 1)

	hub.Leave(1, c)
	hub.Join(1, c)
	hub.Leave(1, c)
	hub.Leave(1, c)

	assert.Equal(t, 0, hub.Count(1))
	assert.Equal(t, PublishResult{}, hub.Publish(1, models.Message{}))

	hub.Join(1, c)
	assert.Equal(t, 1, hub.Count(1), "room set is recreated after emptying")
}

func TestOnlineDistinctAccounts(t *testing.T) {
	hub := NewHub(nil)
	hub.Join(1, newTestConn("a1", 5))
	hub.Join(1, newTestConn("a2", 5))
	hub.Join(1, newTestConn("b", 3))

	assert.Equal(t, []int{3, 5}, hub.Online(1))
	assert.Equal(t, 3, hub.Count(1))
	assert.Empty(t, hub.Online(2))
}

func TestCloseClosesConnections(t *testing.T) {
	hub := NewHub(nil)
	a := newTestConn("a", 1)
	b := newTestConn("b", 2)
	hub.Join(1, a)
	hub.Join(2, b)

	hub.Close()

	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
	assert.Equal(t, 0, hub.Count(1))
	assert.Equal(t, 0, hub.Count(2))
}

func TestConcurrentJoinLeavePublish(t *testing.T) {
	hub := NewHub(nil)
	const rooms, perRoom = 4, 25

	stable := make([]*testConn, rooms)
	for r := range rooms {
		stable[r] = newTestConn(fmt.Sprintf("stable-%d", r), 1000+r)
		hub.Join(r, stable[r])
	}

	var wg sync.WaitGroup
	for r := range rooms {
		for i := range perRoom {
			wg.Add(2)
			go func() {
				defer wg.Done()
				c := newTestConn(fmt.Sprintf("%d-%d", r, i), i)
				hub.Join(r, c)
				hub.Leave(r, c)
			}()
			go func() {
				defer wg.Done()
				hub.Publish(r, models.Message{ID: i, RoomID: r})
			}()
		}
	}
	wg.Wait()

	for r := range rooms {
		assert.Equal(t, 1, hub.Count(r))
		assert.Equal(t, perRoom, stable[r].count(t), "room %d", r)
	}
}
