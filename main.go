package main

import (
	"context"
	"log"
	"os"

	"github.com/example/campus-helpdesk-chat/config"
	"github.com/example/campus-helpdesk-chat/modules/api"
	"github.com/example/campus-helpdesk-chat/modules/attachments"
	"github.com/example/campus-helpdesk-chat/modules/broadcast"
	"github.com/example/campus-helpdesk-chat/modules/chat"
	"github.com/example/campus-helpdesk-chat/modules/identity"
	"github.com/example/campus-helpdesk-chat/modules/session"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Campus Helpdesk Chat ===")

	cfg := config.Load()

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Create modules
	chatModule := chat.NewModule(chat.Config{
		DBPath:  cfg.DBPath,
		DBDebug: cfg.DBDebug,
	}, logger)

	broadcastModule, err := broadcast.NewModule(broadcast.Config{
		Backend:       cfg.RegistryBackend,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		NATSURL:       cfg.NATSURL,
		Prefix:        cfg.ChannelPrefix,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create broadcast module: %v", err)
	}

	attachmentsModule, err := attachments.NewModule(attachments.Config{
		Backend: cfg.AttachmentBackend,
		Dir:     cfg.AttachmentDir,
		NATSURL: cfg.NATSURL,
		Bucket:  cfg.AttachmentBucket,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create attachments module: %v", err)
	}

	tokens := identity.NewTokenManager(identity.Config{
		SecretKey: cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		TTL:       cfg.JWTTTL,
	})

	apiModule := api.NewModule(api.Config{
		Port:             cfg.Port,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		Session: session.Config{
			IdleTimeout:   cfg.Session.IdleTimeout,
			WriteWait:     cfg.Session.WriteWait,
			OpTimeout:     cfg.Session.OpTimeout,
			MaxFrameBytes: cfg.Session.MaxFrameBytes,
			SendBuffer:    cfg.Session.SendBuffer,
			FrameRate:     cfg.Session.FrameRate,
			FrameBurst:    cfg.Session.FrameBurst,
		},
	}, tokens, logger)

	// The registry and the attachment store are not exposed via ServiceContainer.
	apiModule.SetRegistry(broadcastModule.GetRegistry())
	apiModule.SetAttachments(attachmentsModule)
	apiModule.SetHealthReporter(app)

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - chat: rooms, messages, read receipts (ServiceProviderModule + EventEmitterModule)
	// - broadcast: group registry + relay of non-socket events (EventConsumerModule)
	// - attachments: file storage for message uploads
	// - api: Fiber HTTP/WebSocket server, depends on chat
	app.Register(chatModule)
	app.Register(broadcastModule)
	app.Register(attachmentsModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg *config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Configuration:")
	log.Printf("  - Database: %s", cfg.DBPath)
	log.Printf("  - Registry backend: %s (prefix %s)", cfg.RegistryBackend, cfg.ChannelPrefix)
	log.Printf("  - Attachments: %s", cfg.AttachmentBackend)
	log.Printf("  - Idle timeout: %s", cfg.Session.IdleTimeout)
	log.Println("")
	log.Println("Realtime flow:")
	log.Println("  - socket frames -> chat services -> registry -> room members")
	log.Println("  - HTTP messages and history reads -> EventBus -> broadcast module -> room members")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /health                                  - Health check")
	log.Println("  GET    /api/v1/chat/rooms                       - List my rooms")
	log.Println("  POST   /api/v1/chat/rooms                       - Create a room")
	log.Println("  GET    /api/v1/chat/rooms/find-or-create?user_id= - Direct room with a user")
	log.Println("  GET    /api/v1/chat/rooms/:id                   - Room details and history")
	log.Println("  GET    /api/v1/chat/rooms/:id/messages          - Messages (marks others' as read)")
	log.Println("  POST   /api/v1/chat/rooms/:id/messages          - Post a message (JSON or multipart)")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws/chat/:roomID?token=<jwt>):", cfg.Port)
	log.Println(`  Send: {"type":"message","message":"..."} or {"type":"read","message_ids":[1,2]}`)
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
