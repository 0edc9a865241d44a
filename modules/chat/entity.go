package chat

import (
	"fmt"
	"time"
)

// User is the local profile cache of an identity seen by the chat.
type User struct {
	ID        uint   `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"size:201"`
	Email     string `gorm:"size:254"`
	Role      string `gorm:"size:20"`
	UpdatedAt time.Time
}

// TableName keeps the cache apart from the identity store's own tables.
func (User) TableName() string {
	return "chat_users"
}

// Room is a conversation between a fixed set of participants.
type Room struct {
	ID           uint    `gorm:"primaryKey"`
	DirectKey    *string `gorm:"uniqueIndex;size:64"`
	CreatedAt    time.Time
	Participants []RoomParticipant `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

// ParticipantIDs returns the member ids in insertion order.
func (r *Room) ParticipantIDs() []uint {
	ids := make([]uint, 0, len(r.Participants))
	for _, p := range r.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// RoomParticipant is one row of the room membership join table.
type RoomParticipant struct {
	RoomID uint `gorm:"primaryKey;autoIncrement:false"`
	UserID uint `gorm:"primaryKey;autoIncrement:false;index"`
}

// Message is a persisted chat message.
type Message struct {
	ID          uint         `gorm:"primaryKey"`
	RoomID      uint         `gorm:"not null;index"`
	SenderID    uint         `gorm:"not null;index"`
	Content     string       `gorm:"type:text;not null"`
	CreatedAt   time.Time    `gorm:"index"`
	IsRead      bool         `gorm:"not null;default:false"`
	Room        *Room        `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
	Attachments []Attachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

// Attachment is a file reference attached to a message.
type Attachment struct {
	ID         uint   `gorm:"primaryKey"`
	MessageID  uint   `gorm:"not null;index"`
	FileRef    string `gorm:"size:512;not null"`
	UploadedAt time.Time
}

// directKey is the canonical key of the unordered pair {a, b}.
func directKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
