package chat

import "time"

// Roles a user can hold in the helpdesk.
const (
	RoleStudent    = "student"
	RoleTeacher    = "teacher"
	RoleTechnician = "technician"
	RoleAdmin      = "admin"
)

// Message origins. The origin tells the broadcast side whether a message
// still has to be fanned out to live sockets.
const (
	OriginSocket  = "socket"
	OriginHTTP    = "http"
	OriginHistory = "history"
)

// Identity is a verified caller as resolved by the identity context.
type Identity struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Participant is a room member as rendered to clients.
type Participant struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LastMessage summarizes the newest message of a room.
type LastMessage struct {
	Content    string    `json:"content"`
	SenderID   uint      `json:"sender"`
	SenderName string    `json:"sender_name"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// Room represents a chat room.
type Room struct {
	ID                 uint          `json:"id"`
	Participants       []uint        `json:"participants"`
	ParticipantDetails []Participant `json:"participant_details"`
	LastMessage        *LastMessage  `json:"last_message"`
	CreatedAt          time.Time     `json:"created_at"`
}

// RoomDetail is a room together with its full message history.
type RoomDetail struct {
	Room
	Messages []Message `json:"messages"`
}

// Attachment is a file reference riding on a message.
type Attachment struct {
	ID         uint      `json:"id"`
	File       string    `json:"file"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Message represents a chat message.
type Message struct {
	ID          uint         `json:"id"`
	RoomID      uint         `json:"room"`
	SenderID    uint         `json:"sender"`
	SenderName  string       `json:"sender_name"`
	SenderRole  string       `json:"sender_role"`
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"created_at"`
	IsRead      bool         `json:"is_read"`
	Attachments []Attachment `json:"attachments"`
}

// NewMessage is the input for posting a message to a room.
type NewMessage struct {
	RoomID   uint     `json:"room_id"`
	Sender   Identity `json:"sender"`
	Content  string   `json:"content"`
	FileRefs []string `json:"file_refs,omitempty"`
	Origin   string   `json:"origin"`
}
