package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/store"
)

// DefaultRooms are provisioned by Seed so a fresh deployment has somewhere
// to talk.
var DefaultRooms = []string{"general", "random"}

// seedCreatorHandle owns the default rooms. The "@" prefix fails the
// handle grammar, so no connection can ever authenticate as this account
// and claim creator rights over the seeded rooms.
const seedCreatorHandle = "@system"

// Seed provisions the default rooms under a synthetic system participant.
// Idempotent: rooms that already exist are left alone.
func (s *SQLiteStore) Seed(ctx context.Context) error {
	// Inserted directly because the reserved handle is rejected by
	// CreateUser's validation on purpose.
	query := `
		INSERT OR IGNORE INTO users (handle, password_hash)
		VALUES (?, '')
	`
	if _, err := s.db.ExecContext(ctx, query, seedCreatorHandle); err != nil {
		return fmt.Errorf("seed creator: %w", err)
	}
	creator, err := s.GetUserByHandle(ctx, seedCreatorHandle)
	if err != nil {
		return fmt.Errorf("seed creator lookup: %w", err)
	}

	for _, name := range DefaultRooms {
		if _, err := s.CreateRoom(ctx, name, creator.ID); err != nil {
			if errors.Is(err, store.ErrRoomExists) {
				continue
			}
			return fmt.Errorf("seed room %q: %w", name, err)
		}
	}
	return nil
}
