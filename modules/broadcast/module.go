package broadcast

import (
	"context"
	"fmt"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/example/campus-helpdesk-chat/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Registry backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Config selects and configures the registry backend.
type Config struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	Prefix        string
}

// connector is implemented by backends that hold an external connection.
type connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// hubRegistry is a Registry that also exposes its local hub.
type hubRegistry interface {
	Registry
	GroupCount() int
	Shutdown() int
}

// Module owns the broadcast registry and relays chat events produced
// outside live sockets to the members of the affected room.
type Module struct {
	cfg      Config
	registry hubRegistry
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new broadcast module.
func NewModule(cfg Config, logger types.Logger) (*Module, error) {
	logger = logger.WithModule("broadcast")
	if cfg.Prefix == "" {
		cfg.Prefix = "chatgroups"
	}

	m := &Module{cfg: cfg, logger: logger}
	switch cfg.Backend {
	case "", BackendMemory:
		m.cfg.Backend = BackendMemory
		m.registry = NewHub(logger)
	case BackendRedis:
		m.registry = NewRedisRegistry(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Prefix,
		}, logger)
	case BackendNATS:
		m.registry = NewNATSRegistry(cfg.NATSURL, cfg.Prefix, logger)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
	return m, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Start connects the registry backend.
func (m *Module) Start(ctx context.Context) error {
	if c, ok := m.registry.(connector); ok {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}
	m.logger.Info("Broadcast module started", "backend", m.cfg.Backend)
	return nil
}

// Stop closes every live subscriber and the backend connection.
func (m *Module) Stop(_ context.Context) error {
	closed := m.registry.Shutdown()
	if c, ok := m.registry.(connector); ok {
		if err := c.Close(); err != nil {
			m.logger.Error("Failed to close registry backend", "error", err)
		}
	}
	m.logger.Info("Broadcast module stopped", "closed_clients", closed)
	return nil
}

// Health returns the health status.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	details := map[string]any{
		"backend":           m.cfg.Backend,
		"connected_clients": m.registry.ClientCount(),
		"groups":            m.registry.GroupCount(),
	}

	switch r := m.registry.(type) {
	case *RedisRegistry:
		if err := r.Ping(ctx); err != nil {
			return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("redis ping failed: %v", err), Details: details}
		}
	case *NATSRegistry:
		if !r.Connected() {
			return mono.HealthStatus{Healthy: false, Message: "nats disconnected", Details: details}
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}

// RegisterEventConsumers registers event handlers.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageSentV1, m.handleMessageSent, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageSent consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessagesReadV1, m.handleMessagesRead, m,
	); err != nil {
		return fmt.Errorf("failed to register MessagesRead consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", "MessageSent, MessagesRead")
	return nil
}

// Live sockets broadcast their own frames, so only other origins are relayed.
func (m *Module) handleMessageSent(ctx context.Context, event events.MessageSentEvent, _ *mono.Msg) error {
	if event.Origin == domain.OriginSocket {
		return nil
	}
	m.logger.Debug("Relaying message", "room", event.RoomID, "message", event.MessageID, "origin", event.Origin)
	return m.registry.Publish(ctx, GroupID(event.RoomID), domain.NewMessageEvent(event.Message()))
}

func (m *Module) handleMessagesRead(ctx context.Context, event events.MessagesReadEvent, _ *mono.Msg) error {
	if event.Origin == domain.OriginSocket || len(event.MessageIDs) == 0 {
		return nil
	}
	m.logger.Debug("Relaying read receipt", "room", event.RoomID, "reader", event.ReaderID, "count", len(event.MessageIDs))
	return m.registry.Publish(ctx, GroupID(event.RoomID), domain.NewReadEvent(event.MessageIDs, event.ReaderID))
}

// GetRegistry returns the registry for the API module to use.
func (m *Module) GetRegistry() Registry {
	return m.registry
}
