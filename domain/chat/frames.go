package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frame tags shared by both directions of the socket protocol.
const (
	FrameMessage = "message"
	FrameRead    = "read"
)

var (
	// ErrMalformedFrame is returned for frames that are not valid for their tag.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownFrame is returned for frames with an unsupported tag.
	ErrUnknownFrame = errors.New("unknown frame type")
)

// InboundFrame is a decoded client frame: either *PostFrame or *ReadFrame.
type InboundFrame interface {
	Type() string
}

// PostFrame asks the server to persist and broadcast a message.
type PostFrame struct {
	Content string
}

// Type implements InboundFrame.
func (*PostFrame) Type() string { return FrameMessage }

// ReadFrame asks the server to mark messages as read.
type ReadFrame struct {
	MessageIDs []uint
}

// Type implements InboundFrame.
func (*ReadFrame) Type() string { return FrameRead }

type inboundEnvelope struct {
	Type       string          `json:"type"`
	Message    json.RawMessage `json:"message"`
	MessageIDs json.RawMessage `json:"message_ids"`
}

// DecodeInbound parses one client frame. A frame without a type tag is a
// message frame.
func DecodeInbound(data []byte) (InboundFrame, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case FrameMessage, "":
		var content string
		if len(env.Message) == 0 {
			return nil, fmt.Errorf("%w: missing message", ErrMalformedFrame)
		}
		if err := json.Unmarshal(env.Message, &content); err != nil {
			return nil, fmt.Errorf("%w: message must be a string", ErrMalformedFrame)
		}
		if strings.TrimSpace(content) == "" {
			return nil, fmt.Errorf("%w: empty message", ErrMalformedFrame)
		}
		return &PostFrame{Content: content}, nil

	case FrameRead:
		var ids []uint
		if len(env.MessageIDs) == 0 {
			return nil, fmt.Errorf("%w: missing message_ids", ErrMalformedFrame)
		}
		if err := json.Unmarshal(env.MessageIDs, &ids); err != nil {
			return nil, fmt.Errorf("%w: message_ids must be a list of ids", ErrMalformedFrame)
		}
		return &ReadFrame{MessageIDs: ids}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Type)
	}
}

// MessagePayload is the message body of an outbound message frame.
type MessagePayload struct {
	ID         uint      `json:"id"`
	Content    string    `json:"content"`
	SenderID   uint      `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SenderRole string    `json:"sender_role"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// MessageEvent is the outbound frame announcing a new message.
type MessageEvent struct {
	Type    string         `json:"type"`
	Message MessagePayload `json:"message"`
}

// ReadEvent is the outbound frame announcing read receipts.
type ReadEvent struct {
	Type       string `json:"type"`
	MessageIDs []uint `json:"message_ids"`
	ReaderID   uint   `json:"reader_id"`
}

// NewMessageEvent builds the outbound frame for m.
func NewMessageEvent(m *Message) MessageEvent {
	return MessageEvent{
		Type: FrameMessage,
		Message: MessagePayload{
			ID:         m.ID,
			Content:    m.Content,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			SenderRole: m.SenderRole,
			CreatedAt:  m.CreatedAt,
			IsRead:     m.IsRead,
		},
	}
}

// NewReadEvent builds the outbound read-receipt frame.
func NewReadEvent(ids []uint, readerID uint) ReadEvent {
	return ReadEvent{
		Type:       FrameRead,
		MessageIDs: ids,
		ReaderID:   readerID,
	}
}
