package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeAuthenticate = "authenticate"
	InboundTypeJoinRoom     = "join_room"
	InboundTypeLeaveRoom    = "leave_room"
	InboundTypeCreateRoom   = "create_room"
	InboundTypeDeleteRoom   = "delete_room"
	InboundTypeSendMessage  = "send_message"
	InboundTypeLoadMessages = "load_messages"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Outbound event names.
const (
	EventAuthenticated  = "authenticated"
	EventAuthError      = "auth_error"
	EventRoomJoined     = "room_joined"
	EventRoomLeft       = "room_left"
	EventRoomCreated    = "room_created"
	EventRoomDeleted    = "room_deleted"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventMessageSent    = "message_sent"
	EventNewMessage     = "new_message"
	EventMessagesLoaded = "messages_loaded"
)

// AuthenticateData introduces the connection. Either a bare handle or a
// bearer token from the REST login endpoint.
type AuthenticateData struct {
	Handle   string `json:"handle,omitempty"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// JoinRoomData requests entry into a room by name.
type JoinRoomData struct {
	Room string `json:"room"`
}

// CreateRoomData requests creation of a room without joining it.
type CreateRoomData struct {
	Room string `json:"room"`
}

// DeleteRoomData requests soft deletion of a room by id.
type DeleteRoomData struct {
	RoomID int64 `json:"room_id"`
}

// SendMessageData is a chat message from the client. TS is the client's
// send time in milliseconds since the epoch.
type SendMessageData struct {
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

// LoadMessagesData requests one page of room history.
type LoadMessagesData struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// AuthenticatedData confirms a successful authenticate.
type AuthenticatedData struct {
	User     string `json:"user"`
	UserID   int64  `json:"user_id"`
	Protocol int    `json:"protocol"`
}

// MessageData is a persisted message as clients see it. Status is only
// present on the author's own message_sent confirmation.
type MessageData struct {
	ID     int64  `json:"id"`
	User   string `json:"user"`
	Text   string `json:"text"`
	TS     int64  `json:"ts"`
	Status string `json:"status,omitempty"`
}

// RoomJoinedData confirms a join with the current members and the first
// page of history, newest first.
type RoomJoinedData struct {
	RoomID   int64         `json:"room_id"`
	Room     string        `json:"room"`
	Members  []string      `json:"members"`
	Messages []MessageData `json:"messages"`
	Total    int           `json:"total"`
	HasMore  bool          `json:"has_more"`
}

// RoomLeftData confirms a leave to the departing client.
type RoomLeftData struct {
	RoomID int64  `json:"room_id"`
	Room   string `json:"room"`
}

// RoomCreatedData confirms a create_room to the caller.
type RoomCreatedData struct {
	RoomID  int64  `json:"room_id"`
	Room    string `json:"room"`
	Creator string `json:"creator"`
}

// RoomDeletedData notifies members that their room was deleted.
type RoomDeletedData struct {
	RoomID int64  `json:"room_id"`
	Room   string `json:"room"`
}

// PresenceData notifies room members about an arrival or departure.
type PresenceData struct {
	RoomID int64  `json:"room_id"`
	Room   string `json:"room"`
	User   string `json:"user"`
}

// MessagesLoadedData delivers one requested history page.
type MessagesLoadedData struct {
	RoomID   int64         `json:"room_id"`
	Page     int           `json:"page"`
	Messages []MessageData `json:"messages"`
	Total    int           `json:"total"`
	HasMore  bool          `json:"has_more"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
