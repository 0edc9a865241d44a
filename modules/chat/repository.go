package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides access to chat storage.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new chat repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the chat schema.
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&User{}, &Room{}, &RoomParticipant{}, &Message{}, &Attachment{}); err != nil {
		return fmt.Errorf("failed to migrate chat schema: %w", err)
	}
	return nil
}

// CreateRoom stores a room and its participants as one unit.
// Two-party rooms carry a direct key so that a pair owns at most one of them.
func (r *Repository) CreateRoom(ctx context.Context, participantIDs []uint) (*Room, error) {
	ids := uniqueIDs(participantIDs)
	if len(ids) < 2 {
		return nil, domain.Validation("a chat room must have at least 2 participants")
	}
	slices.Sort(ids)

	room := &Room{Participants: make([]RoomParticipant, 0, len(ids))}
	if len(ids) == 2 {
		key := directKey(ids[0], ids[1])
		room.DirectKey = &key
	}
	for _, id := range ids {
		room.Participants = append(room.Participants, RoomParticipant{UserID: id})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(room).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: direct room for %s already exists", domain.ErrConflict, *room.DirectKey)
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

// GetRoom retrieves a room with its participants.
func (r *Repository) GetRoom(ctx context.Context, roomID uint) (*Room, error) {
	var room Room
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("user_id") }).
		First(&room, "id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("room %d", roomID)
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

// FindRoomsContaining returns every room userID participates in, newest first.
func (r *Repository) FindRoomsContaining(ctx context.Context, userID uint) ([]*Room, error) {
	var rooms []*Room
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("user_id") }).
		Where("id IN (?)", r.db.Model(&RoomParticipant{}).Select("room_id").Where("user_id = ?", userID)).
		Order("created_at DESC, id DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find rooms: %w", err)
	}
	return rooms, nil
}

// FindDirectRooms returns the ids of rooms whose participants are exactly {a, b}.
func (r *Repository) FindDirectRooms(ctx context.Context, a, b uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Raw(`
		SELECT pa.room_id FROM room_participants pa
		JOIN room_participants pb ON pb.room_id = pa.room_id
		WHERE pa.user_id = ? AND pb.user_id = ?
		AND (SELECT COUNT(*) FROM room_participants pc WHERE pc.room_id = pa.room_id) = 2
		ORDER BY pa.room_id`, a, b).
		Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find direct rooms: %w", err)
	}
	return ids, nil
}

// IsParticipant reports whether userID belongs to roomID. A missing room
// has no participants.
func (r *Repository) IsParticipant(ctx context.Context, roomID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&RoomParticipant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return count > 0, nil
}

// CreateMessage stores a message and its attachments.
func (r *Repository) CreateMessage(ctx context.Context, roomID, senderID uint, content string, fileRefs []string) (*Message, error) {
	msg := &Message{
		RoomID:   roomID,
		SenderID: senderID,
		Content:  content,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := roomExists(tx, roomID); err != nil {
			return err
		}
		if err := tx.Omit("Room").Create(msg).Error; err != nil {
			return err
		}
		if len(fileRefs) == 0 {
			return nil
		}
		now := time.Now()
		msg.Attachments = make([]Attachment, 0, len(fileRefs))
		for _, ref := range fileRefs {
			msg.Attachments = append(msg.Attachments, Attachment{
				MessageID:  msg.ID,
				FileRef:    ref,
				UploadedAt: now,
			})
		}
		return tx.Create(&msg.Attachments).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

// MarkRead flags the given messages as read and returns how many rows matched.
func (r *Repository) MarkRead(ctx context.Context, messageIDs []uint) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&Message{}).
		Where("id IN ?", messageIDs).
		Update("is_read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// MarkUnreadFromOthers marks every unread message in roomID that was not sent
// by readerID as read, and returns the ids it changed.
func (r *Repository) MarkUnreadFromOthers(ctx context.Context, roomID, readerID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Message{}).
			Where("room_id = ? AND sender_id <> ? AND is_read = ?", roomID, readerID, false).
			Order("id").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&Message{}).Where("id IN ?", ids).Update("is_read", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark room read: %w", err)
	}
	return ids, nil
}

// ListMessages returns the messages of roomID ordered by creation time.
func (r *Repository) ListMessages(ctx context.Context, roomID uint, orderDesc bool) ([]*Message, error) {
	db := r.db.WithContext(ctx)
	if err := roomExists(db, roomID); err != nil {
		return nil, err
	}

	order := "created_at ASC, id ASC"
	if orderDesc {
		order = "created_at DESC, id DESC"
	}

	var messages []*Message
	err := db.Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("room_id = ?", roomID).
		Order(order).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// LastMessages returns the newest message of each given room.
func (r *Repository) LastMessages(ctx context.Context, roomIDs []uint) (map[uint]*Message, error) {
	last := make(map[uint]*Message, len(roomIDs))
	if len(roomIDs) == 0 {
		return last, nil
	}

	latest := r.db.Model(&Message{}).
		Select("MAX(id)").
		Where("room_id IN ?", roomIDs).
		Group("room_id")

	var messages []*Message
	if err := r.db.WithContext(ctx).Where("id IN (?)", latest).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to find last messages: %w", err)
	}
	for _, m := range messages {
		last[m.RoomID] = m
	}
	return last, nil
}

// UpsertUser refreshes the cached profile of an identity.
func (r *Repository) UpsertUser(ctx context.Context, user *User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "role", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// FindUsers returns cached profiles keyed by id. Unknown ids are absent.
func (r *Repository) FindUsers(ctx context.Context, ids []uint) (map[uint]*User, error) {
	users := make(map[uint]*User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	var rows []*User
	if err := r.db.WithContext(ctx).Where("id IN ?", uniqueIDs(ids)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	for _, u := range rows {
		users[u.ID] = u
	}
	return users, nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func roomExists(db *gorm.DB, roomID uint) error {
	var count int64
	if err := db.Model(&Room{}).Where("id = ?", roomID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to find room: %w", err)
	}
	if count == 0 {
		return domain.NotFound("room %d", roomID)
	}
	return nil
}

// uniqueIDs drops zero and duplicate ids, keeping first-seen order.
func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
