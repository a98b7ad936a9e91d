package core

import "github.com/envisagecorpa/realtime-chat-sub000/internal/store"

// MessageView is the protocol-facing shape of a persisted message.
// Content is already HTML-escaped. Status is only surfaced on the
// author's own confirmation.
type MessageView struct {
	ID        int64
	Handle    string
	Content   string
	Timestamp int64
	Status    string
}

func viewFromStored(m *store.Message) MessageView {
	return MessageView{
		ID:        m.ID,
		Handle:    m.SenderHandle,
		Content:   m.Content,
		Timestamp: m.ClientTS,
		Status:    string(m.Status),
	}
}

func viewsFromStored(msgs []*store.Message) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, viewFromStored(m))
	}
	return views
}
