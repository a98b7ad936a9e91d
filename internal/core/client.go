package core

// Client is one connection session as seen by the protocol core.
// The exported channels bridge the transport layer; the session fields
// are owned exclusively by the hub loop.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	authed   bool
	userID   int64
	handle   string
	roomID   int64
	roomName string
}

// NewClient constructs a client with initialized channels. The events
// buffer is sized to absorb a history page without stalling the hub.
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 32),
	}
}

// Handle returns the authenticated handle, empty until authentication.
func (c *Client) Handle() string {
	return c.handle
}

// InRoom reports whether the session is currently bound to a room.
func (c *Client) InRoom() bool {
	return c.roomID != 0
}
