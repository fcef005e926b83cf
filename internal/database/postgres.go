package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"groupchat/internal/models"
	"groupchat/pkg/logger"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepository struct {
	q querier
}

type PostgresDB struct {
	pgRepository
	pool *pgxpool.Pool
}

// Option alters the pgxpool.Config used by NewPostgresDB.
type Option func(*pgxpool.Config)

func MaxConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// WithQueryLog traces queries at or above level through zap.
func WithQueryLog(l *zap.Logger, level tracelog.LogLevel) Option {
	return func(c *pgxpool.Config) {
		c.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   NewTraceLogger(l),
			LogLevel: level,
		}
	}
}

func NewPostgresDB(ctx context.Context, databaseURL string, opts ...Option) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pgRepository: pgRepository{q: pool}, pool: pool}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func (db *PostgresDB) WithTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer tx.Rollback(context.Background())

	if err := fn(&pgRepository{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapError(err))
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			switch pgErr.ConstraintName {
			case "uq_account_username", "uq_account_email":
				return ErrAccountExists
			case "uq_room_name_creator":
				return ErrRoomExists
			case "memberships_pkey":
				return ErrMembershipExists
			case "uq_invite_pending":
				return ErrPendingInviteExists
			}
		case pgerrcode.ForeignKeyViolation:
			return ErrInvalidReference
		}
	}
	return err
}

// Account Repository Implementation
func (r *pgRepository) CreateAccount(ctx context.Context, username, email, passwordHash string) (*models.Account, error) {
	query := `
		INSERT INTO accounts (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, username, email, password_hash, created_at`

	a := &models.Account{}
	err := r.q.QueryRow(ctx, query, username, email, passwordHash).Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (r *pgRepository) GetAccountByID(ctx context.Context, id int) (*models.Account, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM accounts WHERE id = $1`

	a := &models.Account{}
	err := r.q.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (r *pgRepository) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM accounts WHERE username = $1`

	a := &models.Account{}
	err := r.q.QueryRow(ctx, query, username).Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

// Room Repository Implementation
func (r *pgRepository) CreateRoom(ctx context.Context, name string, creatorID int) (*models.Room, error) {
	query := `
		INSERT INTO rooms (name, created_by)
		VALUES ($1, $2)
		RETURNING id, name, created_by, created_at`

	room := &models.Room{}
	err := r.q.QueryRow(ctx, query, name, creatorID).Scan(
		&room.ID, &room.Name, &room.CreatedBy, &room.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return room, nil
}

func (r *pgRepository) GetRoomByID(ctx context.Context, id int) (*models.Room, error) {
	query := `SELECT id, name, created_by, created_at FROM rooms WHERE id = $1`

	room := &models.Room{}
	err := r.q.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Name, &room.CreatedBy, &room.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return room, nil
}

func (r *pgRepository) ListMemberRooms(ctx context.Context, accountID int) ([]*models.Room, error) {
	query := `
		SELECT r.id, r.name, r.created_by, r.created_at
		FROM rooms r
		JOIN memberships m ON m.room_id = r.id
		WHERE m.account_id = $1
		ORDER BY r.created_at DESC, r.id DESC`

	return r.queryRooms(ctx, query, accountID)
}

func (r *pgRepository) ListCreatedRooms(ctx context.Context, accountID int) ([]*models.Room, error) {
	query := `
		SELECT id, name, created_by, created_at
		FROM rooms
		WHERE created_by = $1
		ORDER BY created_at DESC, id DESC`

	return r.queryRooms(ctx, query, accountID)
}

func (r *pgRepository) queryRooms(ctx context.Context, query string, args ...any) ([]*models.Room, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]*models.Room, 0)
	for rows.Next() {
		room := &models.Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedBy, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// Membership Repository Implementation
func (r *pgRepository) AddCreatorMembership(ctx context.Context, accountID, roomID int) error {
	query := `INSERT INTO memberships (account_id, room_id) VALUES ($1, $2)`

	_, err := r.q.Exec(ctx, query, accountID, roomID)
	return mapError(err)
}

func (r *pgRepository) AddMembership(ctx context.Context, accountID, roomID int) error {
	query := `
		INSERT INTO memberships (account_id, room_id) VALUES ($1, $2)
		ON CONFLICT (account_id, room_id) DO NOTHING`

	_, err := r.q.Exec(ctx, query, accountID, roomID)
	return mapError(err)
}

func (r *pgRepository) IsMember(ctx context.Context, accountID, roomID int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM memberships WHERE account_id = $1 AND room_id = $2)`

	var exists bool
	err := r.q.QueryRow(ctx, query, accountID, roomID).Scan(&exists)
	return exists, err
}

func (r *pgRepository) GetRoomMembers(ctx context.Context, roomID int) ([]*models.Member, error) {
	query := `
		SELECT a.id, a.username
		FROM memberships m
		JOIN accounts a ON m.account_id = a.id
		WHERE m.room_id = $1
		ORDER BY a.username`

	rows, err := r.q.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]*models.Member, 0)
	for rows.Next() {
		member := &models.Member{}
		if err := rows.Scan(&member.ID, &member.Username); err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// Invite Repository Implementation
const inviteColumns = `id, sender_id, receiver_id, room_id, text, status, created_at`

func scanInvite(row pgx.Row) (*models.Invite, error) {
	inv := &models.Invite{}
	err := row.Scan(&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.RoomID, &inv.Text, &inv.Status, &inv.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if !inv.Status.Valid() {
		return nil, fmt.Errorf("invite %d: unknown status %q", inv.ID, inv.Status)
	}
	return inv, nil
}

func (r *pgRepository) CreateInvite(ctx context.Context, inv models.Invite) (*models.Invite, error) {
	query := `
		INSERT INTO invites (sender_id, receiver_id, room_id, text, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + inviteColumns

	return scanInvite(r.q.QueryRow(ctx, query, inv.SenderID, inv.ReceiverID, inv.RoomID, inv.Text, inv.Status))
}

func (r *pgRepository) GetInviteForReceiver(ctx context.Context, inviteID, receiverID int) (*models.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE id = $1 AND receiver_id = $2 FOR UPDATE`

	return scanInvite(r.q.QueryRow(ctx, query, inviteID, receiverID))
}

func (r *pgRepository) HasPendingInvite(ctx context.Context, receiverID, roomID int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM invites WHERE receiver_id = $1 AND room_id = $2 AND status = 'pending')`

	var exists bool
	err := r.q.QueryRow(ctx, query, receiverID, roomID).Scan(&exists)
	return exists, err
}

func (r *pgRepository) UpdateInviteStatus(ctx context.Context, inviteID int, status models.InviteStatus) (*models.Invite, error) {
	query := `UPDATE invites SET status = $2 WHERE id = $1 RETURNING ` + inviteColumns

	return scanInvite(r.q.QueryRow(ctx, query, inviteID, status))
}

func (r *pgRepository) ListReceivedInvites(ctx context.Context, receiverID int, status models.InviteStatus) ([]*models.Invite, error) {
	query := `
		SELECT ` + inviteColumns + `
		FROM invites
		WHERE receiver_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC`

	return r.queryInvites(ctx, query, receiverID, status)
}

func (r *pgRepository) ListSentInvites(ctx context.Context, senderID int) ([]*models.Invite, error) {
	query := `
		SELECT ` + inviteColumns + `
		FROM invites
		WHERE sender_id = $1
		ORDER BY created_at DESC, id DESC`

	return r.queryInvites(ctx, query, senderID)
}

func (r *pgRepository) queryInvites(ctx context.Context, query string, args ...any) ([]*models.Invite, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invites := make([]*models.Invite, 0)
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}

	return invites, rows.Err()
}

// Message Repository Implementation
func (r *pgRepository) AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (account_id, room_id, text, author_username)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	out := msg
	err := r.q.QueryRow(ctx, query, msg.AuthorID, msg.RoomID, msg.Text, msg.AuthorUsername).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

func (r *pgRepository) ListMessagesByRoom(ctx context.Context, roomID, limit int, descending bool) ([]*models.Message, error) {
	order := "ASC"
	if descending {
		order = "DESC"
	}

	query := `
		SELECT id, account_id, room_id, text, author_username, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at ` + order + `, id ` + order

	args := []any{roomID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.AuthorID, &msg.RoomID, &msg.Text, &msg.AuthorUsername, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
