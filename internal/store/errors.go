package store

import "errors"

var (
	// ErrNotFound is returned when a room, user or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRoomExists is returned when a room name is already taken,
	// soft-deleted rooms included.
	ErrRoomExists = errors.New("room already exists")
	// ErrUserExists is returned when a handle is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrHandleInvalid is returned when a handle fails the format rules.
	ErrHandleInvalid = errors.New("invalid handle")
	// ErrNameInvalid is returned when a room name fails the format rules.
	ErrNameInvalid = errors.New("invalid room name")
	// ErrContentInvalid is returned when message content is empty after
	// trimming or exceeds the length bound.
	ErrContentInvalid = errors.New("invalid message content")
	// ErrTimestampInvalid is returned when the client timestamp is not positive.
	ErrTimestampInvalid = errors.New("invalid message timestamp")
	// ErrPermissionDenied is returned on a non-creator delete attempt.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRetryExhausted is returned when the retry counter would exceed
	// MaxDeliveryRetries.
	ErrRetryExhausted = errors.New("retry limit exhausted")
)
