package utils

import "github.com/google/uuid"

// NewConnID returns a unique identifier for a client connection.
func NewConnID() string {
	return uuid.NewString()
}
