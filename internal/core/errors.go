package core

import (
	"errors"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/store"
)

// Error codes for domain errors surfaced to clients.
const (
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeInvalidHandle    = "invalid_handle"
	ErrCodeDuplicateSession = "duplicate_session"
	ErrCodeInvalidRoomName  = "invalid_room_name"
	ErrCodeRoomNotFound     = "room_not_found"
	ErrCodeRoomGone         = "room_gone"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeNotInRoom        = "not_in_room"
	ErrCodePermissionDenied = "permission_denied"
	ErrCodeInvalidContent   = "invalid_content"
	ErrCodeInvalidTimestamp = "invalid_timestamp"
	ErrCodeInvalidPage      = "invalid_page"
	ErrCodeRetryExhausted   = "retry_exhausted"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeStorage          = "storage_error"
)

// CoreError wraps a code and human-readable message. Internal storage
// error text never leaks through it.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// errorFromStore maps storage sentinels onto protocol error codes.
// Anything unrecognized is reported as a generic storage failure.
func errorFromStore(err error) *CoreError {
	switch {
	case errors.Is(err, store.ErrHandleInvalid):
		return coreError(ErrCodeInvalidHandle, "handle must be 3-20 characters, letters, digits or underscore")
	case errors.Is(err, store.ErrNameInvalid):
		return coreError(ErrCodeInvalidRoomName, "room name must be 3-50 characters, letters, digits, hyphen or underscore")
	case errors.Is(err, store.ErrRoomExists):
		return coreError(ErrCodeAlreadyExists, "room name already taken")
	case errors.Is(err, store.ErrContentInvalid):
		return coreError(ErrCodeInvalidContent, "message must be 1-2000 characters")
	case errors.Is(err, store.ErrTimestampInvalid):
		return coreError(ErrCodeInvalidTimestamp, "timestamp must be a positive integer")
	case errors.Is(err, store.ErrPermissionDenied):
		return coreError(ErrCodePermissionDenied, "only the room creator may delete it")
	case errors.Is(err, store.ErrNotFound):
		return coreError(ErrCodeRoomNotFound, "not found")
	case errors.Is(err, store.ErrRetryExhausted):
		return coreError(ErrCodeRetryExhausted, "message delivery retries exhausted")
	default:
		return coreError(ErrCodeStorage, "storage failure")
	}
}
