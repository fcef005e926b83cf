package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"groupchat/internal/apperr"
	"groupchat/internal/database"
	"groupchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteAcceptFlow(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a := f.account(t, "alice")
	b := f.account(t, "bob")

	room, err := f.rooms.CreateRoom(ctx, a.ID, "team")
	req.NoError(err)

	inv, err := f.invites.Create(ctx, a.ID, b.ID, room.ID, "join us")
	req.NoError(err)
	req.Equal(models.InviteStatusPending, inv.Status)

	pending, err := f.invites.ListPendingFor(ctx, b.ID)
	req.NoError(err)
	req.Len(pending, 1)

	accepted, err := f.invites.Accept(ctx, inv.ID, b.ID)
	req.NoError(err)
	req.Equal(models.InviteStatusAccepted, accepted.Status)

	ok, err := f.rooms.IsMember(ctx, b.ID, room.ID)
	req.NoError(err)
	req.True(ok, "accepted invite implies membership")

	pending, err = f.invites.ListPendingFor(ctx, b.ID)
	req.NoError(err)
	req.Empty(pending)

	sent, err := f.invites.ListSentBy(ctx, a.ID)
	req.NoError(err)
	req.Len(sent, 1)
	req.Equal(models.InviteStatusAccepted, sent[0].Status)
}

func TestInviteSecondTransitionConflicts(t *testing.T) {
	ctx := context.Background()

	for _, first := range []models.InviteStatus{models.InviteStatusAccepted, models.InviteStatusDeclined} {
		t.Run(string(first), func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			a := f.account(t, "alice")
			b := f.account(t, "bob")
			room, err := f.rooms.CreateRoom(ctx, a.ID, "team")
			req.NoError(err)
			inv, err := f.invites.Create(ctx, a.ID, b.ID, room.ID, "")
			req.NoError(err)

			if first == models.InviteStatusAccepted {
				_, err = f.invites.Accept(ctx, inv.ID, b.ID)
			} else {
				_, err = f.invites.Decline(ctx, inv.ID, b.ID)
			}
			req.NoError(err)

			_, err = f.invites.Accept(ctx, inv.ID, b.ID)
			req.ErrorIs(err, apperr.ErrConflict)
			_, err = f.invites.Decline(ctx, inv.ID, b.ID)
			req.ErrorIs(err, apperr.ErrConflict)

			got, err := f.db.GetInviteForReceiver(ctx, inv.ID, b.ID)
			req.NoError(err)
			req.Equal(first, got.Status, "status unchanged")
		})
	}
}

func TestDeclineDoesNotAddMember(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a := f.account(t, "alice")
	b := f.account(t, "bob")
	room, err := f.rooms.CreateRoom(ctx, a.ID, "team")
	req.NoError(err)

	inv, err := f.invites.Create(ctx, a.ID, b.ID, room.ID, "")
	req.NoError(err)

	declined, err := f.invites.Decline(ctx, inv.ID, b.ID)
	req.NoError(err)
	req.Equal(models.InviteStatusDeclined, declined.Status)

	ok, err := f.rooms.IsMember(ctx, b.ID, room.ID)
	req.NoError(err)
	req.False(ok)

	_, err = f.invites.Create(ctx, a.ID, b.ID, room.ID, "second try")
	req.NoError(err, "a declined invite does not block a new one")
}

func TestCreateInviteRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.account(t, "alice")
	b := f.account(t, "bob")
	c := f.account(t, "carol")
	d := f.account(t, "dave")

	room, err := f.rooms.CreateRoom(ctx, a.ID, "team")
	require.NoError(t, err)
	require.NoError(t, f.rooms.AddMember(ctx, c.ID, room.ID))
	_, err = f.invites.Create(ctx, a.ID, b.ID, room.ID, "")
	require.NoError(t, err)

	tests := []struct {
		name     string
		sender   int
		receiver int
		room     int
		want     error
	}{
		{"self invite", a.ID, a.ID, room.ID, apperr.ErrInvalidRequest},
		{"unknown room", a.ID, d.ID, room.ID + 100, apperr.ErrNotFound},
		{"sender not a member", d.ID, b.ID, room.ID, apperr.ErrForbidden},
		{"unknown receiver", a.ID, 999, room.ID, apperr.ErrNotFound},
		{"receiver already member", a.ID, c.ID, room.ID, apperr.ErrConflict},
		{"pending invite exists", c.ID, b.ID, room.ID, apperr.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.invites.Create(ctx, tt.sender, tt.receiver, tt.room, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	sent, err := f.invites.ListSentBy(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, sent, 1, "no rows written by rejected invites")
}

func TestInviteTextLimitCountsRunes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.account(t, "alice")
	b := f.account(t, "bob")
	c := f.account(t, "carol")
	room, err := f.rooms.CreateRoom(ctx, a.ID, "team")
	require.NoError(t, err)

	_, err = f.invites.Create(ctx, a.ID, b.ID, room.ID, strings.Repeat("é", maxInviteTextLen))
	assert.NoError(t, err)

	_, err = f.invites.Create(ctx, a.ID, c.ID, room.ID, strings.Repeat("é", maxInviteTextLen+1))
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestResolveInviteForOtherAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.account(t, "alice")
	b := f.account(t, "bob")
	room, err := f.rooms.CreateRoom(ctx, a.ID, "team")
	require.NoError(t, err)
	inv, err := f.invites.Create(ctx, a.ID, b.ID, room.ID, "")
	require.NoError(t, err)

	_, err = f.invites.Accept(ctx, inv.ID, a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.invites.Accept(ctx, inv.ID+100, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentInvitesAndAccepts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a := f.account(t, "alice")
	b := f.account(t, "bob")
	room, err := f.rooms.CreateRoom(ctx, a.ID, "team")
	req.NoError(err)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*models.Invite
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := f.invites.Create(ctx, a.ID, b.ID, room.ID, "")
			if err == nil {
				mu.Lock()
				created = append(created, inv)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	req.Len(created, 1, "at most one pending invite per receiver and room")

	var accepted int
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.invites.Accept(ctx, created[0].ID, b.ID); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	req.Equal(1, accepted)
}

// statusWriteFails wraps a store so that invite status updates made inside a
// transaction fail after the earlier steps have run.
type statusWriteFails struct {
	*database.MemoryDB
}

func (s *statusWriteFails) WithTx(ctx context.Context, fn func(database.Repository) error) error {
	return s.MemoryDB.WithTx(ctx, func(repo database.Repository) error {
		return fn(failingStatusRepo{Repository: repo})
	})
}

type failingStatusRepo struct {
	database.Repository
}

func (failingStatusRepo) UpdateInviteStatus(context.Context, int, models.InviteStatus) (*models.Invite, error) {
	return nil, errors.New("write failed")
}

func TestAcceptIsAllOrNothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a := f.account(t, "alice")
	b := f.account(t, "bob")
	room, err := f.rooms.CreateRoom(ctx, a.ID, "team")
	req.NoError(err)
	inv, err := f.invites.Create(ctx, a.ID, b.ID, room.ID, "")
	req.NoError(err)

	broken := NewInviteWorkflow(&statusWriteFails{MemoryDB: f.db})
	_, err = broken.Accept(ctx, inv.ID, b.ID)
	req.ErrorIs(err, apperr.ErrInternal)

	member, err := f.rooms.IsMember(ctx, b.ID, room.ID)
	req.NoError(err)
	req.False(member, "membership rolled back with the failed status update")

	pending, err := f.invites.ListPendingFor(ctx, b.ID)
	req.NoError(err)
	req.Len(pending, 1)
	req.Equal(inv.ID, pending[0].ID)
	req.Equal(models.InviteStatusPending, pending[0].Status)

	accepted, err := f.invites.Accept(ctx, inv.ID, b.ID)
	req.NoError(err)
	req.Equal(models.InviteStatusAccepted, accepted.Status)
}
