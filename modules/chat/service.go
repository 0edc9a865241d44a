package chat

import (
	"context"
	"fmt"
	"time"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/example/campus-helpdesk-chat/events"
	"github.com/go-monolith/mono/pkg/types"
)

// Publisher emits chat domain events.
type Publisher interface {
	MessageSent(ev events.MessageSentEvent)
	MessagesRead(ev events.MessagesReadEvent)
}

type noopPublisher struct{}

func (noopPublisher) MessageSent(events.MessageSentEvent)   {}
func (noopPublisher) MessagesRead(events.MessagesReadEvent) {}

// Service provides chat room operations on top of the repository.
type Service struct {
	repo      *Repository
	directory *Directory
	publisher Publisher
	logger    types.Logger
}

// NewService creates a new chat service. A nil publisher discards events.
func NewService(repo *Repository, directory *Directory, publisher Publisher, logger types.Logger) *Service {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Service{
		repo:      repo,
		directory: directory,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateRoom creates a room for the creator and the given participants.
// A two-party set resolves to the pair's direct room.
func (s *Service) CreateRoom(ctx context.Context, creator domain.Identity, participants []uint) (*domain.Room, bool, error) {
	if creator.UserID == 0 {
		return nil, false, fmt.Errorf("%w: identity required", domain.ErrUnauthorized)
	}

	ids := uniqueIDs(append(append([]uint{}, participants...), creator.UserID))
	if len(ids) < 2 {
		return nil, false, domain.Validation("a chat room must have at least 2 participants")
	}
	if len(ids) > MaxParticipants {
		return nil, false, domain.Validation("a chat room can have at most %d participants", MaxParticipants)
	}
	s.touch(ctx, creator)

	var (
		room    *Room
		created = true
		err     error
	)
	if len(ids) == 2 {
		room, created, err = s.directory.FindOrCreateDirectRoom(ctx, ids[0], ids[1])
	} else {
		room, err = s.repo.CreateRoom(ctx, ids)
	}
	if err != nil {
		return nil, false, err
	}

	views, err := s.roomViews(ctx, []*Room{room})
	if err != nil {
		return nil, false, err
	}
	return &views[0], created, nil
}

// FindOrCreateDirectRoom returns the direct room between user and otherUserID.
func (s *Service) FindOrCreateDirectRoom(ctx context.Context, user domain.Identity, otherUserID uint) (*domain.Room, bool, error) {
	if user.UserID == 0 {
		return nil, false, fmt.Errorf("%w: identity required", domain.ErrUnauthorized)
	}
	s.touch(ctx, user)

	room, created, err := s.directory.FindOrCreateDirectRoom(ctx, user.UserID, otherUserID)
	if err != nil {
		return nil, false, err
	}

	views, err := s.roomViews(ctx, []*Room{room})
	if err != nil {
		return nil, false, err
	}
	return &views[0], created, nil
}

// GetRoom returns a room with its history, oldest message first.
func (s *Service) GetRoom(ctx context.Context, viewer domain.Identity, roomID uint) (*domain.RoomDetail, error) {
	room, err := s.participantRoom(ctx, viewer, roomID)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, viewer)

	views, err := s.roomViews(ctx, []*Room{room})
	if err != nil {
		return nil, err
	}
	messages, err := s.repo.ListMessages(ctx, roomID, false)
	if err != nil {
		return nil, err
	}
	msgViews, err := s.messageViews(ctx, messages)
	if err != nil {
		return nil, err
	}
	return &domain.RoomDetail{Room: views[0], Messages: msgViews}, nil
}

// ListRooms returns the rooms user participates in.
func (s *Service) ListRooms(ctx context.Context, user domain.Identity) ([]domain.Room, error) {
	if user.UserID == 0 {
		return nil, fmt.Errorf("%w: identity required", domain.ErrUnauthorized)
	}
	s.touch(ctx, user)

	rooms, err := s.directory.RoomsFor(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	return s.roomViews(ctx, rooms)
}

// IsParticipant reports whether userID belongs to roomID.
func (s *Service) IsParticipant(ctx context.Context, roomID, userID uint) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	return s.directory.IsParticipant(ctx, roomID, userID)
}

// PostMessage persists a message from a participant and emits MessageSent.
func (s *Service) PostMessage(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	if err := ValidateMessage(in.Content); err != nil {
		return nil, err
	}
	if len(in.FileRefs) > MaxAttachmentsCount {
		return nil, domain.Validation("at most %d attachments per message", MaxAttachmentsCount)
	}
	if _, err := s.participantRoom(ctx, in.Sender, in.RoomID); err != nil {
		return nil, err
	}
	s.touch(ctx, in.Sender)

	msg, err := s.repo.CreateMessage(ctx, in.RoomID, in.Sender.UserID, in.Content, in.FileRefs)
	if err != nil {
		return nil, err
	}

	view := toMessageView(msg, &User{ID: in.Sender.UserID, Name: in.Sender.Name, Role: in.Sender.Role})
	s.publisher.MessageSent(events.NewMessageSentEvent(&view, in.Origin))
	s.logger.Debug("Message stored", "roomID", in.RoomID, "messageID", msg.ID, "origin", in.Origin)
	return &view, nil
}

// MarkRead flags the given messages as read. Any participant may mark any id.
func (s *Service) MarkRead(ctx context.Context, roomID, readerID uint, messageIDs []uint) (int64, error) {
	updated, err := s.repo.MarkRead(ctx, messageIDs)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Messages marked read", "roomID", roomID, "readerID", readerID, "updated", updated)
	return updated, nil
}

// ListMessages returns the history of a room. Listing marks every unread
// message sent by other participants as read and emits MessagesRead.
func (s *Service) ListMessages(ctx context.Context, reader domain.Identity, roomID uint, desc bool) ([]domain.Message, error) {
	if _, err := s.participantRoom(ctx, reader, roomID); err != nil {
		return nil, err
	}
	s.touch(ctx, reader)

	marked, err := s.repo.MarkUnreadFromOthers(ctx, roomID, reader.UserID)
	if err != nil {
		return nil, err
	}
	if len(marked) > 0 {
		s.publisher.MessagesRead(events.MessagesReadEvent{
			RoomID:     roomID,
			ReaderID:   reader.UserID,
			MessageIDs: marked,
			Origin:     domain.OriginHistory,
			Timestamp:  time.Now(),
		})
	}

	messages, err := s.repo.ListMessages(ctx, roomID, desc)
	if err != nil {
		return nil, err
	}
	return s.messageViews(ctx, messages)
}

// participantRoom loads roomID and checks that who is one of its participants.
func (s *Service) participantRoom(ctx context.Context, who domain.Identity, roomID uint) (*Room, error) {
	if who.UserID == 0 {
		return nil, fmt.Errorf("%w: identity required", domain.ErrUnauthorized)
	}
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, p := range room.Participants {
		if p.UserID == who.UserID {
			return room, nil
		}
	}
	return nil, fmt.Errorf("%w: you are not a participant in this chat room", domain.ErrUnauthorized)
}

// touch refreshes the profile cache. Failures only cost display names.
func (s *Service) touch(ctx context.Context, who domain.Identity) {
	if who.UserID == 0 {
		return
	}
	err := s.repo.UpsertUser(ctx, &User{ID: who.UserID, Name: who.Name, Email: who.Email, Role: who.Role})
	if err != nil {
		s.logger.Warn("Failed to refresh user profile", "userID", who.UserID, "error", err)
	}
}

func (s *Service) roomViews(ctx context.Context, rooms []*Room) ([]domain.Room, error) {
	var userIDs, roomIDs []uint
	for _, r := range rooms {
		roomIDs = append(roomIDs, r.ID)
		userIDs = append(userIDs, r.ParticipantIDs()...)
	}

	users, err := s.repo.FindUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	last, err := s.repo.LastMessages(ctx, roomIDs)
	if err != nil {
		return nil, err
	}

	views := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		view := domain.Room{
			ID:                 r.ID,
			Participants:       r.ParticipantIDs(),
			ParticipantDetails: make([]domain.Participant, 0, len(r.Participants)),
			CreatedAt:          r.CreatedAt,
		}
		for _, id := range view.Participants {
			p := domain.Participant{ID: id}
			if u, ok := users[id]; ok {
				p.Name, p.Email, p.Role = u.Name, u.Email, u.Role
			}
			view.ParticipantDetails = append(view.ParticipantDetails, p)
		}
		if m, ok := last[r.ID]; ok {
			lm := &domain.LastMessage{
				Content:   m.Content,
				SenderID:  m.SenderID,
				CreatedAt: m.CreatedAt,
				IsRead:    m.IsRead,
			}
			if u, ok := users[m.SenderID]; ok {
				lm.SenderName = u.Name
			}
			view.LastMessage = lm
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) messageViews(ctx context.Context, messages []*Message) ([]domain.Message, error) {
	senderIDs := make([]uint, 0, len(messages))
	for _, m := range messages {
		senderIDs = append(senderIDs, m.SenderID)
	}
	users, err := s.repo.FindUsers(ctx, senderIDs)
	if err != nil {
		return nil, err
	}

	views := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		views = append(views, toMessageView(m, users[m.SenderID]))
	}
	return views, nil
}

// toMessageView converts a stored message. sender may be nil.
func toMessageView(m *Message, sender *User) domain.Message {
	view := domain.Message{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		IsRead:      m.IsRead,
		Attachments: make([]domain.Attachment, 0, len(m.Attachments)),
	}
	if sender != nil {
		view.SenderName = sender.Name
		view.SenderRole = sender.Role
	}
	for _, a := range m.Attachments {
		view.Attachments = append(view.Attachments, domain.Attachment{
			ID:         a.ID,
			File:       a.FileRef,
			UploadedAt: a.UploadedAt,
		})
	}
	return view
}
