package chat

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ChatPort defines the interface for chat operations used by other modules.
type ChatPort interface {
	CreateRoom(ctx context.Context, creator domain.Identity, participants []uint) (*domain.Room, bool, error)
	FindOrCreateDirectRoom(ctx context.Context, user domain.Identity, otherUserID uint) (*domain.Room, bool, error)
	GetRoom(ctx context.Context, viewer domain.Identity, roomID uint) (*domain.RoomDetail, error)
	ListRooms(ctx context.Context, user domain.Identity) ([]domain.Room, error)
	IsParticipant(ctx context.Context, roomID, userID uint) (bool, error)
	PostMessage(ctx context.Context, in domain.NewMessage) (*domain.Message, error)
	MarkRead(ctx context.Context, roomID, readerID uint, messageIDs []uint) (int64, error)
	ListMessages(ctx context.Context, reader domain.Identity, roomID uint, desc bool) ([]domain.Message, error)
}

// ChatAdapter implements ChatPort using the service container.
type ChatAdapter struct {
	container mono.ServiceContainer
}

// NewChatAdapter creates a new ChatAdapter.
func NewChatAdapter(container mono.ServiceContainer) ChatPort {
	if container == nil {
		panic("chat: ServiceContainer is nil")
	}
	return &ChatAdapter{container: container}
}

// CreateRoom creates a room with the creator as a participant.
func (a *ChatAdapter) CreateRoom(ctx context.Context, creator domain.Identity, participants []uint) (*domain.Room, bool, error) {
	req := CreateRoomRequest{Creator: creator, Participants: participants}
	var resp RoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceCreateRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, false, fmt.Errorf("%s request failed: %w", ServiceCreateRoom, err)
	}
	if err := resp.Err(); err != nil {
		return nil, false, err
	}
	return resp.Room, resp.Created, nil
}

// FindOrCreateDirectRoom resolves the direct room of a pair.
func (a *ChatAdapter) FindOrCreateDirectRoom(ctx context.Context, user domain.Identity, otherUserID uint) (*domain.Room, bool, error) {
	req := FindOrCreateRoomRequest{User: user, OtherUserID: otherUserID}
	var resp RoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceFindOrCreateRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, false, fmt.Errorf("%s request failed: %w", ServiceFindOrCreateRoom, err)
	}
	if err := resp.Err(); err != nil {
		return nil, false, err
	}
	return resp.Room, resp.Created, nil
}

// GetRoom returns a room with its messages.
func (a *ChatAdapter) GetRoom(ctx context.Context, viewer domain.Identity, roomID uint) (*domain.RoomDetail, error) {
	req := GetRoomRequest{Viewer: viewer, RoomID: roomID}
	var resp RoomDetailResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s request failed: %w", ServiceGetRoom, err)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Room, nil
}

// ListRooms lists the rooms of a user.
func (a *ChatAdapter) ListRooms(ctx context.Context, user domain.Identity) ([]domain.Room, error) {
	req := ListRoomsRequest{User: user}
	var resp ListRoomsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListRooms,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s request failed: %w", ServiceListRooms, err)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// IsParticipant checks room membership.
func (a *ChatAdapter) IsParticipant(ctx context.Context, roomID, userID uint) (bool, error) {
	req := IsParticipantRequest{RoomID: roomID, UserID: userID}
	var resp IsParticipantResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceIsParticipant,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return false, fmt.Errorf("%s request failed: %w", ServiceIsParticipant, err)
	}
	if err := resp.Err(); err != nil {
		return false, err
	}
	return resp.Participant, nil
}

// PostMessage persists a message.
func (a *ChatAdapter) PostMessage(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	req := PostMessageRequest{Message: in}
	var resp MessageResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServicePostMessage,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s request failed: %w", ServicePostMessage, err)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// MarkRead marks messages as read.
func (a *ChatAdapter) MarkRead(ctx context.Context, roomID, readerID uint, messageIDs []uint) (int64, error) {
	req := MarkReadRequest{RoomID: roomID, ReaderID: readerID, MessageIDs: messageIDs}
	var resp MarkReadResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceMarkRead,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return 0, fmt.Errorf("%s request failed: %w", ServiceMarkRead, err)
	}
	if err := resp.Err(); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// ListMessages lists a room's history and marks it read for the reader.
func (a *ChatAdapter) ListMessages(ctx context.Context, reader domain.Identity, roomID uint, desc bool) ([]domain.Message, error) {
	req := ListMessagesRequest{Reader: reader, RoomID: roomID, Desc: desc}
	var resp ListMessagesResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListMessages,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s request failed: %w", ServiceListMessages, err)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}
