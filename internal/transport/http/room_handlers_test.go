package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/proto"
)

func TestListRoomsRequiresAuth(t *testing.T) {
	ts, _, _ := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("rooms request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status without token: %d", resp.StatusCode)
	}
}

func TestListRoomsShowsLiveMembership(t *testing.T) {
	ts, _, authService := startTestServer(t)

	token, err := authService.Register(context.Background(), "observer", "secret123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// One live occupant makes the room visible with a member count.
	conn := dialWS(t, ctx, ts.URL)
	sendInbound(t, ctx, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{Handle: "alice"})
	readUntilEvent(t, ctx, conn, proto.EventAuthenticated)
	sendInbound(t, ctx, conn, proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "general"})
	readUntilEvent(t, ctx, conn, proto.EventRoomJoined)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/rooms", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("rooms request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var rooms []RoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 1 {
		t.Fatalf("expected 1 room, got %d", len(rooms))
	}
	if rooms[0].Name != "general" || rooms[0].MemberCount != 1 {
		t.Fatalf("unexpected room listing: %+v", rooms[0])
	}

	// The deleted room disappears from the listing.
	sendInbound(t, ctx, conn, proto.InboundTypeDeleteRoom, proto.DeleteRoomData{RoomID: rooms[0].ID})
	readUntilEvent(t, ctx, conn, proto.EventRoomDeleted)

	resp2, err := ts.Client().Do(req.Clone(ctx))
	if err != nil {
		t.Fatalf("second rooms request failed: %v", err)
	}
	defer resp2.Body.Close()

	rooms = rooms[:0]
	if err := json.NewDecoder(resp2.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms after delete: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("deleted room still listed: %+v", rooms)
	}
}
