package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandAuthenticate binds the connection to a participant handle.
	CommandAuthenticate CommandKind = iota
	// CommandJoinRoom subscribes the client to a room, creating it if absent.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the client from its current room.
	CommandLeaveRoom
	// CommandCreateRoom creates a room without joining it.
	CommandCreateRoom
	// CommandDeleteRoom soft-deletes a room owned by the caller.
	CommandDeleteRoom
	// CommandSendMessage delivers a chat message to room participants.
	CommandSendMessage
	// CommandLoadMessages fetches a history page for the current room.
	CommandLoadMessages
)

// Command represents an action requested by a client. Only the fields
// relevant to the Kind are set.
type Command struct {
	Kind      CommandKind
	Handle    string
	RoomName  string
	RoomID    int64
	Content   string
	Timestamp int64
	Page      int
	PageSize  int
}
