package api

import (
	"context"
	"fmt"
	"time"

	"github.com/example/campus-helpdesk-chat/modules/attachments"
	"github.com/example/campus-helpdesk-chat/modules/broadcast"
	"github.com/example/campus-helpdesk-chat/modules/chat"
	"github.com/example/campus-helpdesk-chat/modules/identity"
	"github.com/example/campus-helpdesk-chat/modules/session"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Config holds HTTP settings.
type Config struct {
	Port             string
	CORSAllowOrigins string
	MaxUploadBytes   int
	Session          session.Config
}

// StoreProvider hands out the attachment store once it has started.
type StoreProvider interface {
	GetStore() attachments.Store
}

// HealthReporter reports the health of every registered module.
// mono.MonoApplication satisfies it.
type HealthReporter interface {
	Health(ctx context.Context) mono.FrameworkHealth
}

// Module is the HTTP API module with WebSocket support.
type Module struct {
	cfg         Config
	app         *fiber.App
	chatAdapter chat.ChatPort
	registry    broadcast.Registry
	attachments StoreProvider
	tokens      identity.Validator
	health      HealthReporter
	logger      types.Logger

	// Live sessions run under ctx and are cancelled on Stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new API module.
func NewModule(cfg Config, tokens identity.Validator, logger types.Logger) *Module {
	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if cfg.CORSAllowOrigins == "" {
		cfg.CORSAllowOrigins = "*"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Module{
		cfg:    cfg,
		tokens: tokens,
		logger: logger.WithModule("api"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"chat"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "chat":
		m.chatAdapter = chat.NewChatAdapter(container)
	}
}

// SetRegistry sets the broadcast registry (called from main.go).
func (m *Module) SetRegistry(registry broadcast.Registry) {
	m.registry = registry
}

// SetAttachments sets the attachment store provider (called from main.go).
func (m *Module) SetAttachments(provider StoreProvider) {
	m.attachments = provider
}

// SetHealthReporter sets the application-wide health source (called from main.go).
func (m *Module) SetHealthReporter(reporter HealthReporter) {
	m.health = reporter
}

// Start initializes the Fiber HTTP server.
func (m *Module) Start(_ context.Context) error {
	if m.chatAdapter == nil {
		return fmt.Errorf("chat adapter dependency not set")
	}
	if m.registry == nil {
		return fmt.Errorf("broadcast registry dependency not set")
	}
	if m.tokens == nil {
		return fmt.Errorf("token validator not set")
	}

	m.app = m.newApp()

	go func() {
		if err := m.app.Listen(":" + m.cfg.Port); err != nil {
			m.logger.Error("HTTP server error", "error", err)
		}
	}()

	m.logger.Info("HTTP server started", "port", m.cfg.Port)
	return nil
}

// Stop closes live sessions and shuts down the Fiber HTTP server.
func (m *Module) Stop(_ context.Context) error {
	m.cancel()
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	return m.app.Shutdown()
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"port": m.cfg.Port}
	if m.registry != nil {
		details["connected_clients"] = m.registry.ClientCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

// newApp builds the Fiber application with middleware and routes.
func (m *Module) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		BodyLimit:             m.cfg.MaxUploadBytes,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "[api] ${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		Next:   websocket.IsWebSocketUpgrade,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	m.setupRoutes(app)
	return app
}
