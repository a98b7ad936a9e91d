package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/store"
)

// faultyHistoryStore fails PageMessages on demand so join-time history
// loading errors can be exercised.
type faultyHistoryStore struct {
	store.Store

	mu   sync.Mutex
	fail bool
}

func (s *faultyHistoryStore) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

func (s *faultyHistoryStore) PageMessages(ctx context.Context, roomID int64, limit, offset int) (*store.MessagePage, error) {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return nil, errors.New("history unavailable")
	}
	return s.Store.PageMessages(ctx, roomID, limit, offset)
}

func TestHubJoinBroadcastAndLeave(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := authClient(t, hub, "alice")
	bob := authClient(t, hub, "bob")

	alice.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	joined := mustEvent(t, alice.Events, EventRoomJoined)
	if joined.RoomName != "general" || len(joined.Members) != 1 {
		t.Fatalf("unexpected join confirmation: %+v", joined)
	}

	bob.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, bob.Events, EventRoomJoined)

	// Alice should see bob's arrival.
	arrival := mustEvent(t, alice.Events, EventUserJoined)
	if arrival.Handle != "bob" || arrival.RoomName != "general" {
		t.Fatalf("unexpected join notice: %+v", arrival)
	}

	alice.Commands <- &Command{Kind: CommandSendMessage, Content: "hi", Timestamp: 1}

	// Bob receives the broadcast, without delivery status.
	msgEv := mustEvent(t, bob.Events, EventNewMessage)
	if msgEv.Message == nil || msgEv.Message.Content != "hi" || msgEv.Message.Handle != "alice" {
		t.Fatalf("unexpected message notice: %+v", msgEv)
	}

	// Alice's own confirmation carries the final status.
	confirm := mustEvent(t, alice.Events, EventMessageSent)
	if confirm.Message == nil || confirm.Message.Status != "sent" {
		t.Fatalf("expected sent confirmation, got %+v", confirm)
	}

	alice.Commands <- &Command{Kind: CommandLeaveRoom}
	left := mustEvent(t, alice.Events, EventRoomLeft)
	if left.RoomName != "general" {
		t.Fatalf("unexpected leave confirmation: %+v", left)
	}
	notice := mustEvent(t, bob.Events, EventUserLeft)
	if notice.Handle != "alice" {
		t.Fatalf("unexpected leave notice: %+v", notice)
	}
}

func TestHubDuplicateSessionIsCaseInsensitive(t *testing.T) {
	hub, _ := newTestHub(t)

	authClient(t, hub, "alice")

	second := NewClient("second-conn")
	hub.RegisterClient(second)
	second.Commands <- &Command{Kind: CommandAuthenticate, Handle: "Alice"}

	ev := mustEvent(t, second.Events, EventAuthError)
	if ev.Error == nil || ev.Error.Code != ErrCodeDuplicateSession {
		t.Fatalf("expected duplicate_session, got %+v", ev)
	}
}

func TestHubRejectsMalformedHandle(t *testing.T) {
	hub, _ := newTestHub(t)

	c := NewClient("conn")
	hub.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandAuthenticate, Handle: "a!"}

	ev := mustEvent(t, c.Events, EventAuthError)
	if ev.Error == nil || ev.Error.Code != ErrCodeInvalidHandle {
		t.Fatalf("expected invalid_handle, got %+v", ev)
	}
}

func TestHubSendWithoutRoomProducesError(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := authClient(t, hub, "alice")
	alice.Commands <- &Command{Kind: CommandSendMessage, Content: "hi", Timestamp: 1}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotInRoom {
		t.Fatalf("expected not_in_room error, got %+v", ev)
	}
}

func TestHubUnauthenticatedJoinRejected(t *testing.T) {
	hub, _ := newTestHub(t)

	c := NewClient("conn")
	hub.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}

	ev := mustEvent(t, c.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", ev)
	}
}

func TestHubRoomSwitchLeavesOldRoomFirst(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := authClient(t, hub, "alice")
	bob := authClient(t, hub, "bob")

	alice.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, alice.Events, EventRoomJoined)
	bob.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, bob.Events, EventRoomJoined)

	// Bob switches; the leave confirmation must precede the join one.
	bob.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "random"}

	left := mustEvent(t, bob.Events, EventRoomLeft)
	if left.RoomName != "general" {
		t.Fatalf("expected leave confirmation for general, got %+v", left)
	}
	joined := mustEvent(t, bob.Events, EventRoomJoined)
	if joined.RoomName != "random" {
		t.Fatalf("expected join confirmation for random, got %+v", joined)
	}
	if len(joined.Members) != 1 || joined.Members[0] != "bob" {
		t.Fatalf("bob should be alone in random, got %v", joined.Members)
	}

	// General's remaining member sees the departure.
	notice := mustEvent(t, alice.Events, EventUserLeft)
	if notice.Handle != "bob" || notice.RoomName != "general" {
		t.Fatalf("unexpected departure notice: %+v", notice)
	}

	// A message in general must not reach bob anymore.
	alice.Commands <- &Command{Kind: CommandSendMessage, Content: "anyone?", Timestamp: 2}
	confirm := mustEvent(t, alice.Events, EventMessageSent)
	if confirm.Message.Status != "sent" {
		t.Fatalf("expected sent status, got %+v", confirm.Message)
	}
	select {
	case ev := <-bob.Events:
		if ev.Kind == EventNewMessage {
			t.Fatalf("bob received a message from a room he left: %+v", ev)
		}
	default:
	}
}

func TestHubCreateRoomDoesNotJoin(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := authClient(t, hub, "alice")
	alice.Commands <- &Command{Kind: CommandCreateRoom, RoomName: "workshop"}

	created := mustEvent(t, alice.Events, EventRoomCreated)
	if created.RoomName != "workshop" || created.Handle != "alice" {
		t.Fatalf("unexpected create confirmation: %+v", created)
	}

	// Still not in a room.
	alice.Commands <- &Command{Kind: CommandSendMessage, Content: "hi", Timestamp: 1}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotInRoom {
		t.Fatalf("expected not_in_room, got %+v", ev)
	}

	// Duplicate creation is rejected.
	alice.Commands <- &Command{Kind: CommandCreateRoom, RoomName: "workshop"}
	dup := mustEvent(t, alice.Events, EventError)
	if dup.Error == nil || dup.Error.Code != ErrCodeAlreadyExists {
		t.Fatalf("expected already_exists, got %+v", dup)
	}
}

func TestHubDeleteRoomCreatorOnly(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := authClient(t, hub, "alice")
	bob := authClient(t, hub, "bob")

	alice.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	joined := mustEvent(t, alice.Events, EventRoomJoined)
	roomID := joined.RoomID

	bob.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, bob.Events, EventRoomJoined)

	// Bob is not the creator.
	bob.Commands <- &Command{Kind: CommandDeleteRoom, RoomID: roomID}
	denied := mustEvent(t, bob.Events, EventError)
	if denied.Error == nil || denied.Error.Code != ErrCodePermissionDenied {
		t.Fatalf("expected permission_denied, got %+v", denied)
	}

	// The creator may delete; every member is notified and evicted.
	alice.Commands <- &Command{Kind: CommandDeleteRoom, RoomID: roomID}
	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, EventRoomDeleted)
		if ev.RoomID != roomID || ev.RoomName != "general" {
			t.Fatalf("unexpected deletion notice: %+v", ev)
		}
	}

	// Evicted sessions keep authentication but lose room binding.
	bob.Commands <- &Command{Kind: CommandSendMessage, Content: "hello?", Timestamp: 3}
	ev := mustEvent(t, bob.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotInRoom {
		t.Fatalf("expected not_in_room after eviction, got %+v", ev)
	}
}

func TestHubJoinDeletedRoomRejected(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := authClient(t, hub, "alice")
	bob := authClient(t, hub, "bob")

	alice.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "doomed"}
	joined := mustEvent(t, alice.Events, EventRoomJoined)

	alice.Commands <- &Command{Kind: CommandDeleteRoom, RoomID: joined.RoomID}
	mustEvent(t, alice.Events, EventRoomDeleted)

	bob.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "doomed"}
	ev := mustEvent(t, bob.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeRoomGone {
		t.Fatalf("expected room_gone, got %+v", ev)
	}
}

func TestHubLoadMessagesPagination(t *testing.T) {
	hub, st := newTestHub(t)

	alice := authClient(t, hub, "alice")
	alice.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	joined := mustEvent(t, alice.Events, EventRoomJoined)

	ctx := context.Background()
	for ts := int64(1); ts <= 120; ts++ {
		if _, err := st.AppendMessage(ctx, joined.RoomID, 1, "payload", ts); err != nil {
			t.Fatalf("seed message %d: %v", ts, err)
		}
	}

	alice.Commands <- &Command{Kind: CommandLoadMessages, Page: 1, PageSize: 50}
	first := mustEvent(t, alice.Events, EventMessagesLoaded)
	if len(first.Messages) != 50 || first.Total != 120 || !first.HasMore {
		t.Fatalf("unexpected first page: len=%d total=%d hasMore=%v", len(first.Messages), first.Total, first.HasMore)
	}
	if first.Messages[0].Timestamp != 120 {
		t.Fatalf("expected newest first, got ts=%d", first.Messages[0].Timestamp)
	}

	alice.Commands <- &Command{Kind: CommandLoadMessages, Page: 3, PageSize: 50}
	last := mustEvent(t, alice.Events, EventMessagesLoaded)
	if len(last.Messages) != 20 || last.HasMore {
		t.Fatalf("unexpected last page: len=%d hasMore=%v", len(last.Messages), last.HasMore)
	}

	// Pages must not overlap.
	seen := make(map[int64]struct{})
	for page := 1; page <= 3; page++ {
		alice.Commands <- &Command{Kind: CommandLoadMessages, Page: page, PageSize: 50}
		ev := mustEvent(t, alice.Events, EventMessagesLoaded)
		for _, m := range ev.Messages {
			if _, dup := seen[m.ID]; dup {
				t.Fatalf("message %d appeared on more than one page", m.ID)
			}
			seen[m.ID] = struct{}{}
		}
	}
	if len(seen) != 120 {
		t.Fatalf("expected 120 distinct messages across pages, got %d", len(seen))
	}

	// Only the bounded page sizes are accepted.
	alice.Commands <- &Command{Kind: CommandLoadMessages, Page: 1, PageSize: 25}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeInvalidPage {
		t.Fatalf("expected invalid_page, got %+v", ev)
	}
}

func TestHubContentEscapedBeforeBroadcast(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := authClient(t, hub, "alice")
	bob := authClient(t, hub, "bob")

	alice.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, alice.Events, EventRoomJoined)
	bob.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, bob.Events, EventRoomJoined)

	alice.Commands <- &Command{Kind: CommandSendMessage, Content: "<b>hi</b>", Timestamp: 1}
	ev := mustEvent(t, bob.Events, EventNewMessage)
	if ev.Message.Content != "&lt;b&gt;hi&lt;/b&gt;" {
		t.Fatalf("content not escaped: %q", ev.Message.Content)
	}
}

func TestHubRejectsInvalidTimestamp(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := authClient(t, hub, "alice")
	alice.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, alice.Events, EventRoomJoined)

	alice.Commands <- &Command{Kind: CommandSendMessage, Content: "hi", Timestamp: 0}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeInvalidTimestamp {
		t.Fatalf("expected invalid_timestamp, got %+v", ev)
	}
}

func TestHubSlowConsumerMarksMessageFailed(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := authClient(t, hub, "alice")
	bob := authClient(t, hub, "bob")

	alice.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, alice.Events, EventRoomJoined)
	bob.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, bob.Events, EventRoomJoined)

	// Bob never drains his events; once his buffer saturates, redelivery
	// retries run out and messages start failing.
	sawFailed := false
	for ts := int64(1); ts <= 40; ts++ {
		alice.Commands <- &Command{Kind: CommandSendMessage, Content: "flood", Timestamp: ts}
		confirm := mustEvent(t, alice.Events, EventMessageSent)
		if confirm.Message.Status == "failed" {
			sawFailed = true
			break
		}
	}
	if !sawFailed {
		t.Fatal("expected at least one failed delivery against a saturated consumer")
	}
}

func TestHubFailedJoinLeavesSessionOutOfRoom(t *testing.T) {
	st := &faultyHistoryStore{Store: newTestStore(t)}
	hub := newTestHubWith(t, st)

	alice := authClient(t, hub, "alice")
	st.setFail(true)

	alice.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeStorage {
		t.Fatalf("expected storage error, got %+v", ev)
	}

	// The rejected join must not have bound the session to the room.
	alice.Commands <- &Command{Kind: CommandSendMessage, Content: "hi", Timestamp: 1}
	ev = mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotInRoom {
		t.Fatalf("expected not_in_room after rejected join, got %+v", ev)
	}
}

func TestHubFailedSwitchKeepsOldRoom(t *testing.T) {
	st := &faultyHistoryStore{Store: newTestStore(t)}
	hub := newTestHubWith(t, st)

	alice := authClient(t, hub, "alice")
	bob := authClient(t, hub, "bob")

	alice.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, alice.Events, EventRoomJoined)
	bob.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, bob.Events, EventRoomJoined)
	mustEvent(t, alice.Events, EventUserJoined)

	st.setFail(true)
	bob.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "random"}
	ev := mustEvent(t, bob.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeStorage {
		t.Fatalf("expected storage error, got %+v", ev)
	}
	st.setFail(false)

	// Bob never left general: no departure notice, and he still
	// receives its traffic.
	alice.Commands <- &Command{Kind: CommandSendMessage, Content: "still here?", Timestamp: 1}
	msg := mustEvent(t, bob.Events, EventNewMessage)
	if msg.Message == nil || msg.Message.Content != "still here?" {
		t.Fatalf("bob lost his room after a rejected switch: %+v", msg)
	}
	for drained := false; !drained; {
		select {
		case stray := <-alice.Events:
			if stray.Kind == EventUserLeft {
				t.Fatalf("rejected switch broadcast a departure: %+v", stray)
			}
		default:
			drained = true
		}
	}

	bob.Commands <- &Command{Kind: CommandSendMessage, Content: "yes", Timestamp: 2}
	confirm := mustEvent(t, bob.Events, EventMessageSent)
	if confirm.Message.Status != "sent" {
		t.Fatalf("expected sent from the original room, got %+v", confirm.Message)
	}
}

func TestHubDisconnectReleasesHandle(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := authClient(t, hub, "alice")
	bob := authClient(t, hub, "bob")

	alice.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, alice.Events, EventRoomJoined)
	bob.Commands <- &Command{Kind: CommandJoinRoom, RoomName: "general"}
	mustEvent(t, bob.Events, EventRoomJoined)

	hub.UnregisterClient(alice)
	close(alice.Commands)

	// The room sees the implicit departure.
	notice := mustEvent(t, bob.Events, EventUserLeft)
	if notice.Handle != "alice" {
		t.Fatalf("unexpected departure notice: %+v", notice)
	}

	// The handle lock is released; reconnecting works.
	again := authClient(t, hub, "alice")
	if again.Handle() != "alice" {
		t.Fatalf("expected rebound handle, got %q", again.Handle())
	}
}
