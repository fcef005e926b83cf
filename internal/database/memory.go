package database

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"groupchat/internal/models"
)

type memState struct {
	nextAccount, nextRoom, nextInvite, nextMessage int

	accounts map[int]models.Account
	rooms    map[int]models.Room
	members  map[models.Membership]struct{}
	invites  map[int]models.Invite
	messages []models.Message
}

func newMemState() *memState {
	return &memState{
		accounts: make(map[int]models.Account),
		rooms:    make(map[int]models.Room),
		members:  make(map[models.Membership]struct{}),
		invites:  make(map[int]models.Invite),
	}
}

func (s *memState) clone() *memState {
	c := *s
	c.accounts = make(map[int]models.Account, len(s.accounts))
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.rooms = make(map[int]models.Room, len(s.rooms))
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	c.members = make(map[models.Membership]struct{}, len(s.members))
	for k := range s.members {
		c.members[k] = struct{}{}
	}
	c.invites = make(map[int]models.Invite, len(s.invites))
	for k, v := range s.invites {
		c.invites[k] = v
	}
	c.messages = slices.Clone(s.messages)
	return &c
}

// MemoryDB keeps everything in process. It backs the test suites and the
// STORAGE=memory mode. Transactions run under the store lock against a copy
// of the state that is swapped in on success.
type MemoryDB struct {
	memRepo
	mu  sync.Mutex
	st  *memState
	now func() time.Time
}

type MemoryOption func(*MemoryDB)

// WithMemoryClock overrides time.Now for CreatedAt stamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(db *MemoryDB) {
		db.now = now
	}
}

func NewMemoryDB(opts ...MemoryOption) *MemoryDB {
	db := &MemoryDB{st: newMemState(), now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	db.memRepo = memRepo{mu: &db.mu, st: db.st, now: db.now}
	return db
}

func (db *MemoryDB) WithTx(ctx context.Context, fn func(Repository) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	clone := db.st.clone()
	if err := fn(&memRepo{st: clone, now: db.now}); err != nil {
		return err
	}
	*db.st = *clone
	return nil
}

func (db *MemoryDB) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (db *MemoryDB) Close() error {
	return nil
}

type memRepo struct {
	mu  *sync.Mutex // nil inside a transaction, which already holds the lock
	st  *memState
	now func() time.Time
}

func (r *memRepo) lock() func() {
	if r.mu == nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

// Account Repository Implementation
func (r *memRepo) CreateAccount(_ context.Context, username, email, passwordHash string) (*models.Account, error) {
	defer r.lock()()

	for _, a := range r.st.accounts {
		if a.Username == username || a.Email == email {
			return nil, ErrAccountExists
		}
	}

	r.st.nextAccount++
	a := models.Account{
		ID:           r.st.nextAccount,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    r.now(),
	}
	r.st.accounts[a.ID] = a
	return &a, nil
}

func (r *memRepo) GetAccountByID(_ context.Context, id int) (*models.Account, error) {
	defer r.lock()()

	a, ok := r.st.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *memRepo) GetAccountByUsername(_ context.Context, username string) (*models.Account, error) {
	defer r.lock()()

	for _, a := range r.st.accounts {
		if a.Username == username {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

// Room Repository Implementation
func (r *memRepo) CreateRoom(_ context.Context, name string, creatorID int) (*models.Room, error) {
	defer r.lock()()

	if _, ok := r.st.accounts[creatorID]; !ok {
		return nil, ErrInvalidReference
	}
	for _, room := range r.st.rooms {
		if room.Name == name && room.CreatedBy == creatorID {
			return nil, ErrRoomExists
		}
	}

	r.st.nextRoom++
	room := models.Room{
		ID:        r.st.nextRoom,
		Name:      name,
		CreatedBy: creatorID,
		CreatedAt: r.now(),
	}
	r.st.rooms[room.ID] = room
	return &room, nil
}

func (r *memRepo) GetRoomByID(_ context.Context, id int) (*models.Room, error) {
	defer r.lock()()

	room, ok := r.st.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &room, nil
}

func (r *memRepo) ListMemberRooms(_ context.Context, accountID int) ([]*models.Room, error) {
	defer r.lock()()

	return r.filterRooms(func(room models.Room) bool {
		_, ok := r.st.members[models.Membership{AccountID: accountID, RoomID: room.ID}]
		return ok
	}), nil
}

func (r *memRepo) ListCreatedRooms(_ context.Context, accountID int) ([]*models.Room, error) {
	defer r.lock()()

	return r.filterRooms(func(room models.Room) bool {
		return room.CreatedBy == accountID
	}), nil
}

func (r *memRepo) filterRooms(keep func(models.Room) bool) []*models.Room {
	rooms := make([]*models.Room, 0)
	for _, room := range r.st.rooms {
		if keep(room) {
			room := room
			rooms = append(rooms, &room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID > rooms[j].ID
	})
	return rooms
}

// Membership Repository Implementation
func (r *memRepo) addMembership(accountID, roomID int, strict bool) error {
	if _, ok := r.st.accounts[accountID]; !ok {
		return ErrInvalidReference
	}
	if _, ok := r.st.rooms[roomID]; !ok {
		return ErrInvalidReference
	}

	key := models.Membership{AccountID: accountID, RoomID: roomID}
	if _, ok := r.st.members[key]; ok {
		if strict {
			return ErrMembershipExists
		}
		return nil
	}
	r.st.members[key] = struct{}{}
	return nil
}

func (r *memRepo) AddCreatorMembership(_ context.Context, accountID, roomID int) error {
	defer r.lock()()
	return r.addMembership(accountID, roomID, true)
}

func (r *memRepo) AddMembership(_ context.Context, accountID, roomID int) error {
	defer r.lock()()
	return r.addMembership(accountID, roomID, false)
}

func (r *memRepo) IsMember(_ context.Context, accountID, roomID int) (bool, error) {
	defer r.lock()()

	_, ok := r.st.members[models.Membership{AccountID: accountID, RoomID: roomID}]
	return ok, nil
}

func (r *memRepo) GetRoomMembers(_ context.Context, roomID int) ([]*models.Member, error) {
	defer r.lock()()

	members := make([]*models.Member, 0)
	for m := range r.st.members {
		if m.RoomID != roomID {
			continue
		}
		if a, ok := r.st.accounts[m.AccountID]; ok {
			members = append(members, &models.Member{ID: a.ID, Username: a.Username})
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Username < members[j].Username
	})
	return members, nil
}

// Invite Repository Implementation
func (r *memRepo) CreateInvite(_ context.Context, inv models.Invite) (*models.Invite, error) {
	defer r.lock()()

	if _, ok := r.st.accounts[inv.SenderID]; !ok {
		return nil, ErrInvalidReference
	}
	if _, ok := r.st.accounts[inv.ReceiverID]; !ok {
		return nil, ErrInvalidReference
	}
	if _, ok := r.st.rooms[inv.RoomID]; !ok {
		return nil, ErrInvalidReference
	}
	if inv.Status == "" {
		inv.Status = models.InviteStatusPending
	}
	if inv.Status == models.InviteStatusPending && r.hasPending(inv.ReceiverID, inv.RoomID) {
		return nil, ErrPendingInviteExists
	}

	r.st.nextInvite++
	inv.ID = r.st.nextInvite
	inv.CreatedAt = r.now()
	r.st.invites[inv.ID] = inv
	return &inv, nil
}

func (r *memRepo) hasPending(receiverID, roomID int) bool {
	for _, inv := range r.st.invites {
		if inv.ReceiverID == receiverID && inv.RoomID == roomID && inv.Status == models.InviteStatusPending {
			return true
		}
	}
	return false
}

func (r *memRepo) GetInviteForReceiver(_ context.Context, inviteID, receiverID int) (*models.Invite, error) {
	defer r.lock()()

	inv, ok := r.st.invites[inviteID]
	if !ok || inv.ReceiverID != receiverID {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (r *memRepo) HasPendingInvite(_ context.Context, receiverID, roomID int) (bool, error) {
	defer r.lock()()
	return r.hasPending(receiverID, roomID), nil
}

func (r *memRepo) UpdateInviteStatus(_ context.Context, inviteID int, status models.InviteStatus) (*models.Invite, error) {
	defer r.lock()()

	inv, ok := r.st.invites[inviteID]
	if !ok {
		return nil, ErrNotFound
	}
	inv.Status = status
	r.st.invites[inviteID] = inv
	return &inv, nil
}

func (r *memRepo) ListReceivedInvites(_ context.Context, receiverID int, status models.InviteStatus) ([]*models.Invite, error) {
	defer r.lock()()

	return r.filterInvites(func(inv models.Invite) bool {
		return inv.ReceiverID == receiverID && inv.Status == status
	}), nil
}

func (r *memRepo) ListSentInvites(_ context.Context, senderID int) ([]*models.Invite, error) {
	defer r.lock()()

	return r.filterInvites(func(inv models.Invite) bool {
		return inv.SenderID == senderID
	}), nil
}

func (r *memRepo) filterInvites(keep func(models.Invite) bool) []*models.Invite {
	invites := make([]*models.Invite, 0)
	for _, inv := range r.st.invites {
		if keep(inv) {
			inv := inv
			invites = append(invites, &inv)
		}
	}
	sort.Slice(invites, func(i, j int) bool {
		if !invites[i].CreatedAt.Equal(invites[j].CreatedAt) {
			return invites[i].CreatedAt.After(invites[j].CreatedAt)
		}
		return invites[i].ID > invites[j].ID
	})
	return invites
}

// Message Repository Implementation
func (r *memRepo) AppendMessage(_ context.Context, msg models.Message) (*models.Message, error) {
	defer r.lock()()

	if _, ok := r.st.rooms[msg.RoomID]; !ok {
		return nil, ErrInvalidReference
	}
	if msg.AuthorID != nil {
		if _, ok := r.st.accounts[*msg.AuthorID]; !ok {
			return nil, ErrInvalidReference
		}
		id := *msg.AuthorID
		msg.AuthorID = &id
	}

	r.st.nextMessage++
	msg.ID = r.st.nextMessage
	msg.CreatedAt = r.now()
	r.st.messages = append(r.st.messages, msg)

	out := msg
	return &out, nil
}

func (r *memRepo) ListMessagesByRoom(_ context.Context, roomID, limit int, descending bool) ([]*models.Message, error) {
	defer r.lock()()

	messages := make([]*models.Message, 0)
	for _, m := range r.st.messages {
		if m.RoomID == roomID {
			m := m
			messages = append(messages, &m)
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if descending {
			return messages[j].Before(*messages[i])
		}
		return messages[i].Before(*messages[j])
	})

	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}
