package events

import (
	"time"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/go-monolith/mono/pkg/helper"
)

// MessageSentEvent is emitted when a message has been persisted.
type MessageSentEvent struct {
	MessageID  uint      `json:"message_id"`
	RoomID     uint      `json:"room_id"`
	SenderID   uint      `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SenderRole string    `json:"sender_role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
	Origin     string    `json:"origin"`
}

// Message converts the event back into a domain message.
func (e MessageSentEvent) Message() *domain.Message {
	return &domain.Message{
		ID:         e.MessageID,
		RoomID:     e.RoomID,
		SenderID:   e.SenderID,
		SenderName: e.SenderName,
		SenderRole: e.SenderRole,
		Content:    e.Content,
		CreatedAt:  e.CreatedAt,
		IsRead:     e.IsRead,
	}
}

// NewMessageSentEvent builds the event for a persisted message.
func NewMessageSentEvent(m *domain.Message, origin string) MessageSentEvent {
	return MessageSentEvent{
		MessageID:  m.ID,
		RoomID:     m.RoomID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		SenderRole: m.SenderRole,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		IsRead:     m.IsRead,
		Origin:     origin,
	}
}

// MessagesReadEvent is emitted when messages of a room were marked read.
type MessagesReadEvent struct {
	RoomID     uint      `json:"room_id"`
	ReaderID   uint      `json:"reader_id"`
	MessageIDs []uint    `json:"message_ids"`
	Origin     string    `json:"origin"`
	Timestamp  time.Time `json:"timestamp"`
}

// Event definitions.
// Subjects: events.chat.v1.message-sent, events.chat.v1.messages-read
var (
	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"chat", "MessageSent", "v1",
	)

	MessagesReadV1 = helper.EventDefinition[MessagesReadEvent](
		"chat", "MessagesRead", "v1",
	)
)
