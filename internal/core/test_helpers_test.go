package core

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/presence"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/store"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/store/sqlite"
)

// newTestHub starts a hub over an in-memory store and returns both so
// tests can seed data directly.
func newTestHub(t testing.TB) (*Hub, store.Store) {
	t.Helper()

	st := newTestStore(t)
	return newTestHubWith(t, st), st
}

// newTestStore creates an in-memory store with the schema applied.
func newTestStore(t testing.TB) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(sqlite.Schema())
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

// newTestHubWith starts a hub over the given store.
func newTestHubWith(t testing.TB, st store.Store) *Hub {
	logger := zerolog.Nop()
	hub := NewHub(st, presence.NewTracker(), &logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	return hub
}

// authClient registers a connection and authenticates it as handle.
func authClient(t testing.TB, hub *Hub, handle string) *Client {
	t.Helper()

	c := NewClient(handle + "-conn")
	hub.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandAuthenticate, Handle: handle}

	ev := mustEvent(t, c.Events, EventAuthenticated)
	if ev.Handle != handle {
		t.Fatalf("authenticated as %q, wanted %q", ev.Handle, handle)
	}
	return c
}

func mustEvent(t testing.TB, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}
