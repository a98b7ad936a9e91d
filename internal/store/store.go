package store

import (
	"context"
	"time"
)

// User is a chat participant. Participants created through the socket
// authenticate flow have an empty PasswordHash; registered accounts carry
// a bcrypt hash.
type User struct {
	ID           int64
	Handle       string
	PasswordHash string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Room is a named channel scoping presence and message history.
// DeletedAt is the soft-delete tombstone; a non-nil value hides the room
// from active listings and join attempts but leaves its messages intact.
type Room struct {
	ID        int64
	Name      string
	CreatorID int64
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Deleted reports whether the room carries a tombstone.
func (r *Room) Deleted() bool {
	return r.DeletedAt != nil
}

// MessageStatus is the delivery lifecycle tag of a persisted message.
type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusFailed  MessageStatus = "failed"
)

// MaxDeliveryRetries bounds the per-message retry counter.
const MaxDeliveryRetries = 3

// Message is a persisted chat message. Content is stored HTML-escaped.
// ClientTS is the client-supplied logical timestamp used for ordering.
// SenderHandle is resolved on read and not stored on the row.
type Message struct {
	ID           int64
	RoomID       int64
	SenderID     int64
	SenderHandle string
	Content      string
	ClientTS     int64
	Status       MessageStatus
	RetryCount   int
	CreatedAt    time.Time
}

// MessagePage is one page of a room's history, ordered by ClientTS descending.
type MessagePage struct {
	Messages []*Message
	Total    int
	HasMore  bool
}

// UserStore handles participant persistence.
type UserStore interface {
	// CreateUser creates a registered user with a hashed password.
	CreateUser(ctx context.Context, handle, passwordHash string) (*User, error)

	// GetOrCreateUser fetches the participant with the given handle,
	// creating it on first use. The handle must already be normalized.
	GetOrCreateUser(ctx context.Context, handle string) (*User, error)

	// GetUserByID retrieves a participant by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByHandle retrieves a participant by normalized handle.
	GetUserByHandle(ctx context.Context, handle string) (*User, error)

	// TouchLastActive updates the participant's last-active time.
	TouchLastActive(ctx context.Context, id int64) error
}

// RoomStore handles the durable room directory.
type RoomStore interface {
	// CreateRoom creates a room owned by creatorID. Fails with
	// ErrNameInvalid on a malformed name and ErrRoomExists if any room,
	// deleted or active, already holds that exact name.
	CreateRoom(ctx context.Context, name string, creatorID int64) (*Room, error)

	// GetRoomByID retrieves a room by ID, tombstoned rooms included.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// GetRoomByName retrieves a room by name, tombstoned rooms included.
	GetRoomByName(ctx context.Context, name string) (*Room, error)

	// ListActiveRooms lists non-deleted rooms, newest first.
	ListActiveRooms(ctx context.Context) ([]*Room, error)

	// SoftDeleteRoom sets the tombstone. Fails with ErrPermissionDenied
	// unless requesterID is the room's creator, ErrNotFound if the room
	// does not exist. Messages are never touched.
	SoftDeleteRoom(ctx context.Context, id, requesterID int64) error

	// RestoreRoom clears the tombstone.
	RestoreRoom(ctx context.Context, id int64) error
}

// MessageStore handles the durable message ledger.
type MessageStore interface {
	// AppendMessage validates, escapes and persists a message with status
	// pending. Fails with ErrContentInvalid or ErrTimestampInvalid.
	AppendMessage(ctx context.Context, roomID, senderID int64, content string, clientTS int64) (*Message, error)

	// MarkDelivered transitions the message to sent. Idempotent;
	// ErrNotFound on an unknown id.
	MarkDelivered(ctx context.Context, id int64) error

	// MarkFailed transitions the message to failed. Idempotent;
	// ErrNotFound on an unknown id.
	MarkFailed(ctx context.Context, id int64) error

	// IncrementRetry bumps the retry counter. Fails with ErrRetryExhausted
	// once the counter would exceed MaxDeliveryRetries.
	IncrementRetry(ctx context.Context, id int64) error

	// CanRetry reports whether the message has retries left.
	CanRetry(ctx context.Context, id int64) (bool, error)

	// PageMessages returns one history page ordered by ClientTS descending.
	PageMessages(ctx context.Context, roomID int64, limit, offset int) (*MessagePage, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
