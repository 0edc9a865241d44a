package chat

import (
	"strings"
	"unicode/utf8"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
)

// Service names registered in the chat ServiceContainer.
const (
	ServiceCreateRoom       = "create-room"
	ServiceFindOrCreateRoom = "find-or-create-room"
	ServiceGetRoom          = "get-room"
	ServiceListRooms        = "list-rooms"
	ServiceIsParticipant    = "is-participant"
	ServicePostMessage      = "post-message"
	ServiceMarkRead         = "mark-read"
	ServiceListMessages     = "list-messages"
)

// Validation constants
const (
	MaxMessageLength    = 5000
	MaxParticipants     = 50
	MaxAttachmentsCount = 10
)

// ValidateMessage validates message content.
func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return domain.Validation("message content cannot be empty")
	}
	if !utf8.ValidString(content) {
		return domain.Validation("message contains invalid characters")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return domain.Validation("message exceeds maximum length of %d characters", MaxMessageLength)
	}
	return nil
}

// ErrorFields carries a domain error across the request-reply boundary.
type ErrorFields struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Err rebuilds the carried error, or returns nil.
func (e ErrorFields) Err() error {
	return domain.FromCode(e.Code, e.Error)
}

func errorFields(err error) ErrorFields {
	if err == nil {
		return ErrorFields{}
	}
	return ErrorFields{Code: domain.Code(err), Error: err.Error()}
}

// CreateRoomRequest creates a room for the creator and the listed participants.
type CreateRoomRequest struct {
	Creator      domain.Identity `json:"creator"`
	Participants []uint          `json:"participants"`
}

// FindOrCreateRoomRequest resolves the direct room between User and OtherUserID.
type FindOrCreateRoomRequest struct {
	User        domain.Identity `json:"user"`
	OtherUserID uint            `json:"other_user_id"`
}

// RoomResponse is returned by room creating services.
type RoomResponse struct {
	ErrorFields
	Room    *domain.Room `json:"room,omitempty"`
	Created bool         `json:"created"`
}

// GetRoomRequest fetches a room with its messages.
type GetRoomRequest struct {
	Viewer domain.Identity `json:"viewer"`
	RoomID uint            `json:"room_id"`
}

// RoomDetailResponse is the response of get-room.
type RoomDetailResponse struct {
	ErrorFields
	Room *domain.RoomDetail `json:"room,omitempty"`
}

// ListRoomsRequest lists the rooms of a user.
type ListRoomsRequest struct {
	User domain.Identity `json:"user"`
}

// ListRoomsResponse is the response of list-rooms.
type ListRoomsResponse struct {
	ErrorFields
	Rooms []domain.Room `json:"rooms"`
}

// IsParticipantRequest checks room membership.
type IsParticipantRequest struct {
	RoomID uint `json:"room_id"`
	UserID uint `json:"user_id"`
}

// IsParticipantResponse is the response of is-participant.
type IsParticipantResponse struct {
	ErrorFields
	Participant bool `json:"participant"`
}

// PostMessageRequest persists a new message.
type PostMessageRequest struct {
	Message domain.NewMessage `json:"message"`
}

// MessageResponse is the response of post-message.
type MessageResponse struct {
	ErrorFields
	Message *domain.Message `json:"message,omitempty"`
}

// MarkReadRequest marks messages as read on behalf of a reader.
type MarkReadRequest struct {
	RoomID     uint   `json:"room_id"`
	ReaderID   uint   `json:"reader_id"`
	MessageIDs []uint `json:"message_ids"`
}

// MarkReadResponse is the response of mark-read.
type MarkReadResponse struct {
	ErrorFields
	Updated int64 `json:"updated"`
}

// ListMessagesRequest lists the history of a room.
type ListMessagesRequest struct {
	Reader domain.Identity `json:"reader"`
	RoomID uint            `json:"room_id"`
	Desc   bool            `json:"desc"`
}

// ListMessagesResponse is the response of list-messages.
type ListMessagesResponse struct {
	ErrorFields
	Messages []domain.Message `json:"messages"`
}
