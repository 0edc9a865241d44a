package chat

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/example/campus-helpdesk-chat/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds chat storage settings.
type Config struct {
	DBPath  string
	DBDebug bool
}

// Module implements the chat module: storage, room directory and services.
type Module struct {
	cfg      Config
	db       *gorm.DB
	service  *Service
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ Publisher                  = (*Module)(nil)
)

// NewModule creates a new chat module.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger.WithModule("chat"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageSentV1.ToBase(),
		events.MessagesReadV1.ToBase(),
	}
}

// Start opens the database and builds the service.
func (m *Module) Start(_ context.Context) error {
	logLevel := logger.Silent
	if m.cfg.DBDebug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(m.cfg.DBPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db

	// SQLite allows one writer at a time.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	repo := NewRepository(db)
	if err := repo.Migrate(); err != nil {
		return err
	}
	m.service = NewService(repo, NewDirectory(repo, m.logger), m, m.logger)

	m.logger.Info("Chat module started", "database", m.cfg.DBPath)
	return nil
}

// Stop closes the database.
func (m *Module) Stop(_ context.Context) error {
	if m.db != nil {
		if sqlDB, err := m.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	m.logger.Info("Chat module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{Healthy: false, Message: "database not initialized"}
	}
	if err := m.service.repo.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"database": m.cfg.DBPath,
		},
	}
}

// MessageSent publishes a MessageSent event.
func (m *Module) MessageSent(ev events.MessageSentEvent) {
	if m.eventBus == nil {
		return
	}
	if err := events.MessageSentV1.Publish(m.eventBus, ev, nil); err != nil {
		m.logger.Warn("Failed to publish MessageSent event", "messageID", ev.MessageID, "error", err)
	}
}

// MessagesRead publishes a MessagesRead event.
func (m *Module) MessagesRead(ev events.MessagesReadEvent) {
	if m.eventBus == nil {
		return
	}
	if err := events.MessagesReadV1.Publish(m.eventBus, ev, nil); err != nil {
		m.logger.Warn("Failed to publish MessagesRead event", "roomID", ev.RoomID, "error", err)
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	registrations := []struct {
		name     string
		register func() error
	}{
		{ServiceCreateRoom, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceCreateRoom, json.Unmarshal, json.Marshal, m.handleCreateRoom)
		}},
		{ServiceFindOrCreateRoom, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceFindOrCreateRoom, json.Unmarshal, json.Marshal, m.handleFindOrCreateRoom)
		}},
		{ServiceGetRoom, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceGetRoom, json.Unmarshal, json.Marshal, m.handleGetRoom)
		}},
		{ServiceListRooms, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceListRooms, json.Unmarshal, json.Marshal, m.handleListRooms)
		}},
		{ServiceIsParticipant, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceIsParticipant, json.Unmarshal, json.Marshal, m.handleIsParticipant)
		}},
		{ServicePostMessage, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServicePostMessage, json.Unmarshal, json.Marshal, m.handlePostMessage)
		}},
		{ServiceMarkRead, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceMarkRead, json.Unmarshal, json.Marshal, m.handleMarkRead)
		}},
		{ServiceListMessages, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceListMessages, json.Unmarshal, json.Marshal, m.handleListMessages)
		}},
	}

	for _, r := range registrations {
		if err := r.register(); err != nil {
			return fmt.Errorf("failed to register %s service: %w", r.name, err)
		}
	}

	m.logger.Info("Registered chat services", "count", len(registrations))
	return nil
}

// Service handlers. Domain errors travel in the response body so that the
// adapter can rebuild them; only transport problems fail the call.

func (m *Module) handleCreateRoom(ctx context.Context, req CreateRoomRequest, _ *mono.Msg) (RoomResponse, error) {
	room, created, err := m.service.CreateRoom(ctx, req.Creator, req.Participants)
	return RoomResponse{ErrorFields: m.errorFields(ServiceCreateRoom, err), Room: room, Created: created}, nil
}

func (m *Module) handleFindOrCreateRoom(ctx context.Context, req FindOrCreateRoomRequest, _ *mono.Msg) (RoomResponse, error) {
	room, created, err := m.service.FindOrCreateDirectRoom(ctx, req.User, req.OtherUserID)
	return RoomResponse{ErrorFields: m.errorFields(ServiceFindOrCreateRoom, err), Room: room, Created: created}, nil
}

func (m *Module) handleGetRoom(ctx context.Context, req GetRoomRequest, _ *mono.Msg) (RoomDetailResponse, error) {
	room, err := m.service.GetRoom(ctx, req.Viewer, req.RoomID)
	return RoomDetailResponse{ErrorFields: m.errorFields(ServiceGetRoom, err), Room: room}, nil
}

func (m *Module) handleListRooms(ctx context.Context, req ListRoomsRequest, _ *mono.Msg) (ListRoomsResponse, error) {
	rooms, err := m.service.ListRooms(ctx, req.User)
	return ListRoomsResponse{ErrorFields: m.errorFields(ServiceListRooms, err), Rooms: rooms}, nil
}

func (m *Module) handleIsParticipant(ctx context.Context, req IsParticipantRequest, _ *mono.Msg) (IsParticipantResponse, error) {
	ok, err := m.service.IsParticipant(ctx, req.RoomID, req.UserID)
	return IsParticipantResponse{ErrorFields: m.errorFields(ServiceIsParticipant, err), Participant: ok}, nil
}

func (m *Module) handlePostMessage(ctx context.Context, req PostMessageRequest, _ *mono.Msg) (MessageResponse, error) {
	msg, err := m.service.PostMessage(ctx, req.Message)
	return MessageResponse{ErrorFields: m.errorFields(ServicePostMessage, err), Message: msg}, nil
}

func (m *Module) handleMarkRead(ctx context.Context, req MarkReadRequest, _ *mono.Msg) (MarkReadResponse, error) {
	updated, err := m.service.MarkRead(ctx, req.RoomID, req.ReaderID, req.MessageIDs)
	return MarkReadResponse{ErrorFields: m.errorFields(ServiceMarkRead, err), Updated: updated}, nil
}

func (m *Module) handleListMessages(ctx context.Context, req ListMessagesRequest, _ *mono.Msg) (ListMessagesResponse, error) {
	messages, err := m.service.ListMessages(ctx, req.Reader, req.RoomID, req.Desc)
	return ListMessagesResponse{ErrorFields: m.errorFields(ServiceListMessages, err), Messages: messages}, nil
}

func (m *Module) errorFields(service string, err error) ErrorFields {
	if err != nil && domain.Code(err) == domain.CodeInternal {
		m.logger.Error("Chat service failed", "service", service, "error", err)
	}
	return errorFields(err)
}
