package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/presence"
	"github.com/envisagecorpa/realtime-chat-sub000/internal/store"
)

// DefaultPageSize is the history page size used on join and when a
// load_messages request omits it.
const DefaultPageSize = 50

// AllowedPageSizes is the bounded set of accepted history page lengths.
var AllowedPageSizes = []int{50, 100, 200, 500}

// retryPushWait is how long one redelivery attempt waits on a saturated
// event buffer before burning a retry.
const retryPushWait = 5 * time.Millisecond

// Hub is the protocol state machine. A single Run goroutine owns every
// session transition, so commands from all connections are serialized and
// check-and-set operations (duplicate session, room switch) are atomic.
type Hub struct {
	store    store.Store
	presence *presence.Tracker
	log      *zerolog.Logger

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand

	clients     map[*Client]struct{}
	sessions    map[string]*Client
	roomClients map[int64]map[*Client]struct{}
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// NewHub creates a hub over the given store and presence tracker.
func NewHub(st store.Store, tracker *presence.Tracker, logger *zerolog.Logger) *Hub {
	return &Hub{
		store:       st,
		presence:    tracker,
		log:         logger,
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		commands:    make(chan clientCommand),
		clients:     make(map[*Client]struct{}),
		sessions:    make(map[string]*Client),
		roomClients: make(map[int64]map[*Client]struct{}),
	}
}

// RegisterClient adds a connection to the hub and starts pumping its
// commands into the hub loop. The pump exits when the transport closes
// the client's Commands channel.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
	go func() {
		for cmd := range c.Commands {
			h.commands <- clientCommand{client: c, cmd: cmd}
		}
	}()
}

// UnregisterClient tears down a connection: implicit leave, session
// release, event channel close.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			h.disconnect(c)
		case cc := <-h.commands:
			if _, ok := h.clients[cc.client]; !ok {
				// Command raced with disconnect; drop it.
				continue
			}
			h.dispatch(ctx, cc.client, cc.cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandAuthenticate:
		h.authenticate(ctx, c, cmd.Handle)
	case CommandJoinRoom:
		h.joinRoom(ctx, c, cmd.RoomName)
	case CommandLeaveRoom:
		h.leaveRoom(c)
	case CommandCreateRoom:
		h.createRoom(ctx, c, cmd.RoomName)
	case CommandDeleteRoom:
		h.deleteRoom(ctx, c, cmd.RoomID)
	case CommandSendMessage:
		h.sendMessage(ctx, c, cmd.Content, cmd.Timestamp)
	case CommandLoadMessages:
		h.loadMessages(ctx, c, cmd.Page, cmd.PageSize)
	default:
		h.pushError(c, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

// authenticate validates the handle, enforces the single-session rule on
// the normalized form and binds the connection to a participant.
func (h *Hub) authenticate(ctx context.Context, c *Client, rawHandle string) {
	if c.authed {
		h.push(c, &Event{Kind: EventAuthError, Error: coreError(ErrCodeBadRequest, "already authenticated")})
		return
	}

	handle := store.NormalizeHandle(rawHandle)
	if err := store.ValidateHandle(handle); err != nil {
		h.push(c, &Event{Kind: EventAuthError, Error: errorFromStore(err)})
		return
	}

	if _, bound := h.sessions[handle]; bound {
		h.push(c, &Event{Kind: EventAuthError, Error: coreError(ErrCodeDuplicateSession, "handle already connected")})
		return
	}

	user, err := h.store.GetOrCreateUser(ctx, handle)
	if err != nil {
		h.log.Error().Err(err).Str("handle", handle).Msg("get or create user")
		h.push(c, &Event{Kind: EventAuthError, Error: coreError(ErrCodeStorage, "authentication failed")})
		return
	}
	if err := h.store.TouchLastActive(ctx, user.ID); err != nil {
		h.log.Warn().Err(err).Int64("user_id", user.ID).Msg("touch last active")
	}

	c.authed = true
	c.userID = user.ID
	c.handle = handle
	h.sessions[handle] = c

	h.push(c, &Event{Kind: EventAuthenticated, Handle: handle, UserID: user.ID})
}

// joinRoom binds the session to a room, creating it implicitly when the
// name is unknown. Switching rooms performs a silent auto-leave first:
// the old room sees a departure notice, the caller sees an explicit leave
// confirmation before the join confirmation.
func (h *Hub) joinRoom(ctx context.Context, c *Client, name string) {
	if !c.authed {
		h.pushError(c, coreError(ErrCodeUnauthorized, "authenticate first"))
		return
	}
	if err := store.ValidateRoomName(name); err != nil {
		h.pushError(c, errorFromStore(err))
		return
	}

	room, err := h.store.GetRoomByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		room, err = h.store.CreateRoom(ctx, name, c.userID)
	}
	if err != nil {
		h.log.Error().Err(err).Str("room", name).Msg("resolve room for join")
		h.pushError(c, errorFromStore(err))
		return
	}
	if room.Deleted() {
		h.pushError(c, coreError(ErrCodeRoomGone, "room has been deleted"))
		return
	}

	// Load the history snapshot before touching any session state, so a
	// storage failure rejects the join without a partial room switch.
	page, err := h.store.PageMessages(ctx, room.ID, DefaultPageSize, 0)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", room.ID).Msg("load join history")
		h.pushError(c, coreError(ErrCodeStorage, "failed to load history"))
		return
	}

	if c.roomID == room.ID {
		// Rejoining the current room refreshes the snapshot without
		// emitting presence notices.
		h.pushJoined(c, room, page)
		return
	}

	if c.InRoom() {
		h.detachFromRoom(c, true)
	}

	h.presence.Join(room.ID, c.handle)
	members, ok := h.roomClients[room.ID]
	if !ok {
		members = make(map[*Client]struct{})
		h.roomClients[room.ID] = members
	}
	members[c] = struct{}{}
	c.roomID = room.ID
	c.roomName = room.Name

	h.pushJoined(c, room, page)
	h.broadcast(room.ID, c, &Event{Kind: EventUserJoined, RoomID: room.ID, RoomName: room.Name, Handle: c.handle})

	h.log.Debug().Str("handle", c.handle).Str("room", room.Name).Msg("joined room")
}

// pushJoined emits the join confirmation with membership and the
// preloaded first history page.
func (h *Hub) pushJoined(c *Client, room *store.Room, page *store.MessagePage) {
	h.push(c, &Event{
		Kind:     EventRoomJoined,
		RoomID:   room.ID,
		RoomName: room.Name,
		Members:  h.presence.MembersOf(room.ID),
		Messages: viewsFromStored(page.Messages),
		Total:    page.Total,
		HasMore:  page.HasMore,
	})
}

// leaveRoom handles an explicit leave_room request.
func (h *Hub) leaveRoom(c *Client) {
	if !c.authed {
		h.pushError(c, coreError(ErrCodeUnauthorized, "authenticate first"))
		return
	}
	if !c.InRoom() {
		h.pushError(c, coreError(ErrCodeNotInRoom, "not in a room"))
		return
	}
	h.detachFromRoom(c, true)
}

// detachFromRoom removes the client from its current room, notifying the
// room and, when confirm is set, the client itself.
func (h *Hub) detachFromRoom(c *Client, confirm bool) {
	roomID, roomName := c.roomID, c.roomName

	h.presence.Leave(roomID, c.handle)
	if members, ok := h.roomClients[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.roomClients, roomID)
		}
	}
	c.roomID = 0
	c.roomName = ""

	if confirm {
		h.push(c, &Event{Kind: EventRoomLeft, RoomID: roomID, RoomName: roomName})
	}
	h.broadcast(roomID, c, &Event{Kind: EventUserLeft, RoomID: roomID, RoomName: roomName, Handle: c.handle})
}

// createRoom creates a room without joining it.
func (h *Hub) createRoom(ctx context.Context, c *Client, name string) {
	if !c.authed {
		h.pushError(c, coreError(ErrCodeUnauthorized, "authenticate first"))
		return
	}

	room, err := h.store.CreateRoom(ctx, name, c.userID)
	if err != nil {
		if !errors.Is(err, store.ErrRoomExists) && !errors.Is(err, store.ErrNameInvalid) {
			h.log.Error().Err(err).Str("room", name).Msg("create room")
		}
		h.pushError(c, errorFromStore(err))
		return
	}

	h.push(c, &Event{Kind: EventRoomCreated, RoomID: room.ID, RoomName: room.Name, Handle: c.handle})
	h.log.Info().Str("room", room.Name).Str("creator", c.handle).Msg("room created")
}

// deleteRoom soft-deletes a room, broadcasts the deletion to its presence
// members and evicts every connection bound to it. Evicted sessions keep
// their authentication.
func (h *Hub) deleteRoom(ctx context.Context, c *Client, roomID int64) {
	if !c.authed {
		h.pushError(c, coreError(ErrCodeUnauthorized, "authenticate first"))
		return
	}

	room, err := h.store.GetRoomByID(ctx, roomID)
	if err != nil {
		h.pushError(c, errorFromStore(err))
		return
	}

	if err := h.store.SoftDeleteRoom(ctx, roomID, c.userID); err != nil {
		if !errors.Is(err, store.ErrPermissionDenied) && !errors.Is(err, store.ErrNotFound) {
			h.log.Error().Err(err).Int64("room_id", roomID).Msg("soft delete room")
		}
		h.pushError(c, errorFromStore(err))
		return
	}

	notice := &Event{Kind: EventRoomDeleted, RoomID: room.ID, RoomName: room.Name}
	callerNotified := false
	for member := range h.roomClients[roomID] {
		h.push(member, notice)
		if member == c {
			callerNotified = true
		}
		member.roomID = 0
		member.roomName = ""
	}
	delete(h.roomClients, roomID)
	h.presence.Clear(roomID)

	if !callerNotified {
		h.push(c, notice)
	}

	h.log.Info().Str("room", room.Name).Str("requester", c.handle).Msg("room deleted")
}

// sendMessage appends to the ledger and fans the message out to the rest
// of the room. Fan-out is best-effort: a member with a saturated event
// buffer gets bounded redelivery attempts charged against the message's
// retry counter; exhausting them marks the message failed.
func (h *Hub) sendMessage(ctx context.Context, c *Client, content string, clientTS int64) {
	if !c.authed {
		h.pushError(c, coreError(ErrCodeUnauthorized, "authenticate first"))
		return
	}
	if !c.InRoom() {
		h.pushError(c, coreError(ErrCodeNotInRoom, "join a room first"))
		return
	}

	msg, err := h.store.AppendMessage(ctx, c.roomID, c.userID, content, clientTS)
	if err != nil {
		if !errors.Is(err, store.ErrContentInvalid) && !errors.Is(err, store.ErrTimestampInvalid) {
			h.log.Error().Err(err).Int64("room_id", c.roomID).Msg("append message")
		}
		h.pushError(c, errorFromStore(err))
		return
	}

	view := viewFromStored(msg)
	notice := &Event{Kind: EventNewMessage, RoomID: c.roomID, RoomName: c.roomName, Message: &view}

	delivered := true
	for member := range h.roomClients[c.roomID] {
		if member == c {
			continue
		}
		if !h.pushWithRetry(ctx, member, notice, msg.ID) {
			delivered = false
		}
	}

	status := store.MessageStatusSent
	if delivered {
		err = h.store.MarkDelivered(ctx, msg.ID)
	} else {
		status = store.MessageStatusFailed
		err = h.store.MarkFailed(ctx, msg.ID)
	}
	if err != nil {
		h.log.Error().Err(err).Int64("message_id", msg.ID).Msg("update message status")
	}

	confirm := view
	confirm.Status = string(status)
	h.push(c, &Event{Kind: EventMessageSent, RoomID: c.roomID, RoomName: c.roomName, Message: &confirm})
}

// loadMessages fetches a history page for the current room only.
func (h *Hub) loadMessages(ctx context.Context, c *Client, page, pageSize int) {
	if !c.authed {
		h.pushError(c, coreError(ErrCodeUnauthorized, "authenticate first"))
		return
	}
	if !c.InRoom() {
		h.pushError(c, coreError(ErrCodeNotInRoom, "join a room first"))
		return
	}
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 || !validPageSize(pageSize) {
		h.pushError(c, coreError(ErrCodeInvalidPage, "page must be >= 1 and pageSize one of 50, 100, 200, 500"))
		return
	}

	result, err := h.store.PageMessages(ctx, c.roomID, pageSize, (page-1)*pageSize)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", c.roomID).Msg("page messages")
		h.pushError(c, coreError(ErrCodeStorage, "failed to load messages"))
		return
	}

	h.push(c, &Event{
		Kind:     EventMessagesLoaded,
		RoomID:   c.roomID,
		RoomName: c.roomName,
		Page:     page,
		Messages: viewsFromStored(result.Messages),
		Total:    result.Total,
		HasMore:  result.HasMore,
	})
}

// disconnect tears down a connection: implicit leave without a leave
// confirmation, session release, event channel close.
func (h *Hub) disconnect(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	if c.InRoom() {
		h.detachFromRoom(c, false)
	}
	if c.authed {
		delete(h.sessions, c.handle)
	}
	delete(h.clients, c)
	close(c.Events)
}

// broadcast pushes an event to every client in the room except the origin.
// Failures to third parties are logged, never surfaced to the origin.
func (h *Hub) broadcast(roomID int64, origin *Client, event *Event) {
	for member := range h.roomClients[roomID] {
		if member == origin {
			continue
		}
		if !h.push(member, event) {
			h.log.Warn().Str("client_id", member.ID).Msg("dropped event for slow consumer")
		}
	}
}

// push attempts a non-blocking event delivery.
func (h *Hub) push(c *Client, event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		return false
	}
}

// pushWithRetry redelivers to a saturated member, charging each extra
// attempt to the message's retry counter until the bound is hit.
func (h *Hub) pushWithRetry(ctx context.Context, c *Client, event *Event, messageID int64) bool {
	if h.push(c, event) {
		return true
	}

	for {
		if err := h.store.IncrementRetry(ctx, messageID); err != nil {
			if !errors.Is(err, store.ErrRetryExhausted) {
				h.log.Error().Err(err).Int64("message_id", messageID).Msg("increment retry")
			}
			return false
		}
		select {
		case c.Events <- event:
			return true
		case <-time.After(retryPushWait):
		}
	}
}

func (h *Hub) pushError(c *Client, cerr *CoreError) {
	h.push(c, &Event{Kind: EventError, Error: cerr})
}

func validPageSize(size int) bool {
	for _, allowed := range AllowedPageSizes {
		if size == allowed {
			return true
		}
	}
	return false
}
