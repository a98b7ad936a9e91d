package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store.
// dbPath is the path to the SQLite database file. WAL keeps readers from
// blocking on the single writer.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without running migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a registered user with a hashed password. The
// handle is stored case-normalized; uniqueness is enforced on that form.
func (s *SQLiteStore) CreateUser(ctx context.Context, handle, passwordHash string) (*store.User, error) {
	handle = store.NormalizeHandle(handle)
	if err := store.ValidateHandle(handle); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO users (handle, password_hash)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, handle, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetOrCreateUser fetches the participant with the given normalized handle,
// creating it on first use.
func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, handle string) (*store.User, error) {
	handle = store.NormalizeHandle(handle)
	if err := store.ValidateHandle(handle); err != nil {
		return nil, err
	}
	user, err := s.GetUserByHandle(ctx, handle)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.CreateUser(ctx, handle, "")
}

// GetUserByID retrieves a participant by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, handle, password_hash, created_at, last_active_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByHandle retrieves a participant by normalized handle.
func (s *SQLiteStore) GetUserByHandle(ctx context.Context, handle string) (*store.User, error) {
	query := `
		SELECT id, handle, password_hash, created_at, last_active_at
		FROM users
		WHERE handle = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, store.NormalizeHandle(handle)))
}

// TouchLastActive updates the participant's last-active time.
func (s *SQLiteStore) TouchLastActive(ctx context.Context, id int64) error {
	query := `UPDATE users SET last_active_at = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("touch last active: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Handle,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.LastActiveAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== RoomStore implementation ====

// CreateRoom creates a room owned by creatorID. Names are not released
// by soft-delete, so the uniqueness constraint covers tombstoned rooms too.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, creatorID int64) (*store.Room, error) {
	if err := store.ValidateRoomName(name); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO rooms (name, creator_id)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, name, creatorID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrRoomExists
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetRoomByID(ctx, id)
}

// GetRoomByID retrieves a room by ID, tombstoned rooms included.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	query := `
		SELECT id, name, creator_id, created_at, deleted_at
		FROM rooms
		WHERE id = ?
	`
	return s.scanRoom(s.db.QueryRowContext(ctx, query, id))
}

// GetRoomByName retrieves a room by name, tombstoned rooms included.
func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	query := `
		SELECT id, name, creator_id, created_at, deleted_at
		FROM rooms
		WHERE name = ?
	`
	return s.scanRoom(s.db.QueryRowContext(ctx, query, name))
}

// ListActiveRooms lists non-deleted rooms, newest first.
func (s *SQLiteStore) ListActiveRooms(ctx context.Context) ([]*store.Room, error) {
	query := `
		SELECT id, name, creator_id, created_at, deleted_at
		FROM rooms
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		var room store.Room
		var deletedAt sql.NullTime
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatorID, &room.CreatedAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if deletedAt.Valid {
			room.DeletedAt = &deletedAt.Time
		}
		rooms = append(rooms, &room)
	}

	return rooms, rows.Err()
}

// SoftDeleteRoom sets the tombstone. Only the creator may delete a room.
// Messages referencing the room are never touched.
func (s *SQLiteStore) SoftDeleteRoom(ctx context.Context, id, requesterID int64) error {
	room, err := s.GetRoomByID(ctx, id)
	if err != nil {
		return err
	}
	if room.CreatorID != requesterID {
		return store.ErrPermissionDenied
	}

	query := `
		UPDATE rooms
		SET deleted_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft delete room: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		// Already tombstoned.
		return store.ErrNotFound
	}
	return nil
}

// RestoreRoom clears the tombstone.
func (s *SQLiteStore) RestoreRoom(ctx context.Context, id int64) error {
	query := `UPDATE rooms SET deleted_at = NULL WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("restore room: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) scanRoom(row *sql.Row) (*store.Room, error) {
	var room store.Room
	var deletedAt sql.NullTime
	err := row.Scan(
		&room.ID,
		&room.Name,
		&room.CreatorID,
		&room.CreatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	if deletedAt.Valid {
		room.DeletedAt = &deletedAt.Time
	}
	return &room, nil
}

// ==== MessageStore implementation ====

// AppendMessage validates, escapes and persists a message with status pending.
func (s *SQLiteStore) AppendMessage(ctx context.Context, roomID, senderID int64, content string, clientTS int64) (*store.Message, error) {
	if clientTS <= 0 {
		return nil, store.ErrTimestampInvalid
	}
	escaped, err := store.SanitizeContent(content)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO messages (room_id, sender_id, content, client_ts, status, retry_count)
		VALUES (?, ?, ?, ?, 'pending', 0)
	`
	result, err := s.db.ExecContext(ctx, query, roomID, senderID, escaped, clientTS)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getMessageByID(ctx, id)
}

// MarkDelivered transitions the message to sent.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, store.MessageStatusSent)
}

// MarkFailed transitions the message to failed.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, store.MessageStatusFailed)
}

func (s *SQLiteStore) setStatus(ctx context.Context, id int64, status store.MessageStatus) error {
	query := `UPDATE messages SET status = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// IncrementRetry bumps the retry counter, bounded by MaxDeliveryRetries.
func (s *SQLiteStore) IncrementRetry(ctx context.Context, id int64) error {
	query := `
		UPDATE messages
		SET retry_count = retry_count + 1
		WHERE id = ? AND retry_count < ?
	`
	result, err := s.db.ExecContext(ctx, query, id, store.MaxDeliveryRetries)
	if err != nil {
		return fmt.Errorf("increment retry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		// Either the message is gone or the counter is at the bound.
		if _, err := s.getMessageByID(ctx, id); err != nil {
			return err
		}
		return store.ErrRetryExhausted
	}
	return nil
}

// CanRetry reports whether the message has retries left.
func (s *SQLiteStore) CanRetry(ctx context.Context, id int64) (bool, error) {
	query := `SELECT retry_count FROM messages WHERE id = ?`
	var count int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, store.ErrNotFound
		}
		return false, fmt.Errorf("query retry count: %w", err)
	}
	return count < store.MaxDeliveryRetries, nil
}

// PageMessages returns one history page ordered by client timestamp descending.
func (s *SQLiteStore) PageMessages(ctx context.Context, roomID int64, limit, offset int) (*store.MessagePage, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM messages WHERE room_id = ?`
	if err := s.db.QueryRowContext(ctx, countQuery, roomID).Scan(&total); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	query := `
		SELECT m.id, m.room_id, m.sender_id, u.handle, m.content, m.client_ts, m.status, m.retry_count, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = ?
		ORDER BY m.client_ts DESC, m.id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var status string
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderHandle, &msg.Content, &msg.ClientTS, &status, &msg.RetryCount, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Status = store.MessageStatus(status)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &store.MessagePage{
		Messages: messages,
		Total:    total,
		HasMore:  offset+len(messages) < total,
	}, nil
}

func (s *SQLiteStore) getMessageByID(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT m.id, m.room_id, m.sender_id, u.handle, m.content, m.client_ts, m.status, m.retry_count, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?
	`
	var msg store.Message
	var status string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&msg.SenderHandle,
		&msg.Content,
		&msg.ClientTS,
		&status,
		&msg.RetryCount,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	msg.Status = store.MessageStatus(status)
	return &msg, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
