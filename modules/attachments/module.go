package attachments

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Attachment backends.
const (
	BackendDisk      = "disk"
	BackendJetStream = "jetstream"
)

// Config selects and configures the attachment backend.
type Config struct {
	Backend string
	Dir     string
	NATSURL string
	Bucket  string
}

// Module owns the attachment store.
type Module struct {
	cfg    Config
	store  Store
	logger types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new attachments module.
func NewModule(cfg Config, logger types.Logger) (*Module, error) {
	switch cfg.Backend {
	case "":
		cfg.Backend = BackendDisk
	case BackendDisk, BackendJetStream:
	default:
		return nil, fmt.Errorf("unknown attachment backend %q", cfg.Backend)
	}
	if cfg.Dir == "" {
		cfg.Dir = "media/chat_attachments"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "chat-attachments"
	}
	return &Module{cfg: cfg, logger: logger.WithModule("attachments")}, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "attachments"
}

// Start opens the configured backend.
func (m *Module) Start(ctx context.Context) error {
	switch m.cfg.Backend {
	case BackendJetStream:
		store, err := NewJetStreamStore(m.cfg.NATSURL, m.cfg.Bucket)
		if err != nil {
			return fmt.Errorf("failed to create attachment store: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			store.Close()
			return fmt.Errorf("failed to initialize attachment store: %w", err)
		}
		m.store = store
		m.logger.Info("Attachments module started", "backend", m.cfg.Backend, "bucket", m.cfg.Bucket)

	default:
		store := NewDiskStore(m.cfg.Dir, "chat_attachments")
		if err := store.Init(ctx); err != nil {
			return err
		}
		m.store = store
		m.logger.Info("Attachments module started", "backend", m.cfg.Backend, "dir", m.cfg.Dir)
	}
	return nil
}

// Stop closes the backend.
func (m *Module) Stop(_ context.Context) error {
	if s, ok := m.store.(*JetStreamStore); ok {
		_ = s.Close()
	}
	m.logger.Info("Attachments module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"backend": m.cfg.Backend}

	switch s := m.store.(type) {
	case nil:
		return mono.HealthStatus{Healthy: false, Message: "not started", Details: details}
	case *JetStreamStore:
		details["bucket"] = m.cfg.Bucket
		if !s.IsConnected() {
			return mono.HealthStatus{Healthy: false, Message: "disconnected", Details: details}
		}
	default:
		details["dir"] = m.cfg.Dir
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}

// GetStore returns the attachment store. It is nil until the module starts.
func (m *Module) GetStore() Store {
	return m.store
}
