package websocket

import (
	"encoding/json"
	"slices"
	"sync"

	"groupchat/internal/models"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Conn is a live connection registered with the hub. Send must not block: it
// either enqueues the payload or reports the connection as unusable.
type Conn interface {
	ID() string
	Send(data []byte) error
}

type accountConn interface {
	AccountID() int
}

type closer interface {
	Close()
}

// PublishResult summarizes one fan-out.
type PublishResult struct {
	Delivered int
	Pruned    int
}

type roomSet struct {
	mu    sync.Mutex
	conns map[string]Conn
	// closed is set once the set has been emptied and is about to be removed
	// from the hub; joiners must fetch a fresh set.
	closed bool
}

// Hub tracks live connections per room and fans messages out to them.
// Operations on one room are serialized; different rooms never contend
// beyond a map lookup.
type Hub struct {
	mu    sync.Mutex
	rooms map[int]*roomSet
	log   *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		rooms: make(map[int]*roomSet),
		log:   log,
	}
}

func (h *Hub) room(roomID int, create bool) *roomSet {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[roomID]
	if !ok && create {
		rs = &roomSet{conns: make(map[string]Conn)}
		h.rooms[roomID] = rs
	}
	return rs
}

// drop removes rs from the map unless it has already been replaced.
func (h *Hub) drop(roomID int, rs *roomSet) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomID] == rs {
		delete(h.rooms, roomID)
	}
}

// Join registers c and announces the room's new presence to everyone in it,
// c included.
func (h *Hub) Join(roomID int, c Conn) {
	for {
		rs := h.room(roomID, true)

		rs.mu.Lock()
		if rs.closed {
			rs.mu.Unlock()
			h.drop(roomID, rs)
			continue
		}
		rs.conns[c.ID()] = c
		pruned := h.announceLocked(roomID, rs)
		n := len(rs.conns)
		empty := rs.markClosedIfEmpty()
		rs.mu.Unlock()

		if empty {
			h.drop(roomID, rs)
		}
		h.logPruned(roomID, pruned)
		h.log.Debugw("connection joined room", "room_id", roomID, "conn_id", c.ID(), "connections", n)
		return
	}
}

// Leave is idempotent. The remaining connections get a presence update.
func (h *Hub) Leave(roomID int, c Conn) {
	rs := h.room(roomID, false)
	if rs == nil {
		return
	}

	var pruned []prunedConn
	rs.mu.Lock()
	_, present := rs.conns[c.ID()]
	delete(rs.conns, c.ID())
	if present {
		pruned = h.announceLocked(roomID, rs)
	}
	empty := rs.markClosedIfEmpty()
	rs.mu.Unlock()

	if empty {
		h.drop(roomID, rs)
	}
	h.logPruned(roomID, pruned)
	if present {
		h.log.Debugw("connection left room", "room_id", roomID, "conn_id", c.ID())
	}
}

// markClosedIfEmpty must be called with rs.mu held.
func (rs *roomSet) markClosedIfEmpty() bool {
	if len(rs.conns) == 0 && !rs.closed {
		rs.closed = true
		return true
	}
	return false
}

type prunedConn struct {
	conn Conn
	err  error
}

// fanOutLocked sends data to every connection in the set and removes the ones
// whose Send failed. rs.mu must be held.
func (rs *roomSet) fanOutLocked(data []byte) (int, []prunedConn) {
	var (
		delivered int
		failed    []prunedConn
	)
	for _, c := range rs.conns {
		if err := c.Send(data); err != nil {
			failed = append(failed, prunedConn{conn: c, err: err})
			continue
		}
		delivered++
	}
	for _, f := range failed {
		delete(rs.conns, f.conn.ID())
	}
	return delivered, failed
}

// onlineLocked must be called with rs.mu held.
func (rs *roomSet) onlineLocked() []int {
	ids := lo.FilterMap(lo.Values(rs.conns), func(c Conn, _ int) (int, bool) {
		ac, ok := c.(accountConn)
		if !ok {
			return 0, false
		}
		return ac.AccountID(), true
	})
	ids = lo.Uniq(ids)
	slices.Sort(ids)
	return ids
}

// announceLocked sends the room's presence to its connections. rs.mu must be
// held, so presence frames are ordered with messages.
func (h *Hub) announceLocked(roomID int, rs *roomSet) []prunedConn {
	if len(rs.conns) == 0 {
		return nil
	}

	data, err := json.Marshal(models.WebSocketMessage{
		Type:        models.MessageTypePresence,
		RoomID:      roomID,
		ActiveUsers: rs.onlineLocked(),
		UserCount:   len(rs.conns),
	})
	if err != nil {
		h.log.Errorw("failed to marshal presence update", "room_id", roomID, "error", err)
		return nil
	}

	_, failed := rs.fanOutLocked(data)
	return failed
}

func (h *Hub) logPruned(roomID int, pruned []prunedConn) {
	for _, p := range pruned {
		h.log.Debugw("pruned connection", "room_id", roomID, "conn_id", p.conn.ID(), "error", p.err)
	}
}

// Publish delivers msg to every connection in the room. Connections whose
// Send fails are removed after the pass. Delivery is best effort and never
// retried.
//
// Publishes for one room are serialized, but concurrent senders are not
// ordered against each other: two messages committed close together may be
// published in either order. Each sender's own messages keep their order.
// Clients that need history order should sort by (created_at, id).
func (h *Hub) Publish(roomID int, msg models.Message) PublishResult {
	data, err := json.Marshal(models.WebSocketMessage{
		Type:    models.MessageTypeMessage,
		RoomID:  roomID,
		Message: &msg,
	})
	if err != nil {
		h.log.Errorw("failed to marshal message", "room_id", roomID, "error", err)
		return PublishResult{}
	}

	rs := h.room(roomID, false)
	if rs == nil {
		return PublishResult{}
	}

	rs.mu.Lock()
	delivered, failed := rs.fanOutLocked(data)
	empty := rs.markClosedIfEmpty()
	rs.mu.Unlock()

	if empty {
		h.drop(roomID, rs)
	}
	h.logPruned(roomID, failed)
	return PublishResult{Delivered: delivered, Pruned: len(failed)}
}

// Online returns the distinct account ids connected to the room, ascending.
// Connections that do not carry an account are not counted.
func (h *Hub) Online(roomID int) []int {
	rs := h.room(roomID, false)
	if rs == nil {
		return []int{}
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.onlineLocked()
}

// Count returns the number of connections registered in the room.
func (h *Hub) Count(roomID int) int {
	rs := h.room(roomID, false)
	if rs == nil {
		return 0
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.conns)
}

// Close closes and forgets every registered connection.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[int]*roomSet)
	h.mu.Unlock()

	var conns []Conn
	for _, rs := range rooms {
		rs.mu.Lock()
		conns = append(conns, lo.Values(rs.conns)...)
		rs.conns = make(map[string]Conn)
		rs.closed = true
		rs.mu.Unlock()
	}

	for _, c := range conns {
		if cl, ok := c.(closer); ok {
			cl.Close()
		}
	}
	h.log.Infow("hub closed", "connections", len(conns))
}
