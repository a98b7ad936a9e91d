package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventAuthenticated confirms a successful authenticate.
	EventAuthenticated EventKind = iota
	// EventAuthError reports a failed authenticate to the originator.
	EventAuthError
	// EventRoomJoined confirms a join, carrying members and history.
	EventRoomJoined
	// EventRoomLeft confirms a leave to the departing client.
	EventRoomLeft
	// EventRoomCreated confirms a create_room to the caller.
	EventRoomCreated
	// EventRoomDeleted notifies members that their room was deleted.
	EventRoomDeleted
	// EventUserJoined notifies room members about a new arrival.
	EventUserJoined
	// EventUserLeft notifies room members about a departure.
	EventUserLeft
	// EventMessageSent confirms a send to the author, with final status.
	EventMessageSent
	// EventNewMessage delivers a message to the rest of the room.
	EventNewMessage
	// EventMessagesLoaded delivers a requested history page.
	EventMessagesLoaded
	// EventError reports a domain error to the originating client.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	RoomID   int64
	RoomName string
	Handle   string
	UserID   int64
	Members  []string
	Message  *MessageView
	Messages []MessageView
	Page     int
	Total    int
	HasMore  bool
	Error    *CoreError
}
