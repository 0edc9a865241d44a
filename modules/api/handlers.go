package api

import (
	"context"
	"errors"
	"mime/multipart"
	"strconv"
	"strings"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/example/campus-helpdesk-chat/modules/chat"
	"github.com/example/campus-helpdesk-chat/modules/identity"
	"github.com/example/campus-helpdesk-chat/modules/session"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const sessionKey = "chat_session"

// setupRoutes configures all HTTP routes.
func (m *Module) setupRoutes(app *fiber.App) {
	app.Get("/health", m.healthHandler)

	// Sockets accept anonymous callers so the session can reject them with 403.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat/:roomID",
		identity.Middleware(m.tokens, false),
		m.authorizeSocket,
		websocket.New(m.serveSocket),
	)

	api := app.Group("/api/v1/chat", identity.Middleware(m.tokens, true))
	api.Get("/rooms", m.listRooms)
	api.Post("/rooms", m.createRoom)
	api.Get("/rooms/find-or-create", m.findOrCreateRoom)
	api.Get("/rooms/:id", m.getRoom)
	api.Get("/rooms/:id/messages", m.listMessages)
	api.Post("/rooms/:id/messages", m.postMessage)
}

// healthHandler handles GET /health. With a health reporter set, the
// response carries every module's status and turns 503 when any is down.
func (m *Module) healthHandler(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.registry.ClientCount(),
		},
	}
	if m.health == nil {
		return c.JSON(resp)
	}

	fw := m.health.Health(c.UserContext())
	resp.Details["nats_healthy"] = fw.NATSHealthy
	resp.Details["modules"] = fw.Modules
	if !fw.Healthy {
		resp.Status = "unhealthy"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

// listRooms handles GET /api/v1/chat/rooms.
func (m *Module) listRooms(c *fiber.Ctx) error {
	rooms, err := m.chatAdapter.ListRooms(c.UserContext(), *identity.FromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(rooms)
}

// createRoom handles POST /api/v1/chat/rooms.
func (m *Module) createRoom(c *fiber.Ctx) error {
	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.Validation("invalid request body")
	}

	room, created, err := m.chatAdapter.CreateRoom(c.UserContext(), *identity.FromContext(c), req.Participants)
	if err != nil {
		return err
	}
	return c.Status(createdStatus(created)).JSON(room)
}

// findOrCreateRoom handles GET /api/v1/chat/rooms/find-or-create?user_id=.
func (m *Module) findOrCreateRoom(c *fiber.Ctx) error {
	raw := c.Query("user_id")
	if raw == "" {
		return domain.Validation("user_id is required")
	}
	otherID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || otherID == 0 {
		return domain.Validation("user_id must be a positive integer")
	}

	room, created, err := m.chatAdapter.FindOrCreateDirectRoom(c.UserContext(), *identity.FromContext(c), uint(otherID))
	if err != nil {
		return err
	}
	return c.Status(createdStatus(created)).JSON(room)
}

// getRoom handles GET /api/v1/chat/rooms/:id.
func (m *Module) getRoom(c *fiber.Ctx) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	detail, err := m.chatAdapter.GetRoom(c.UserContext(), *identity.FromContext(c), roomID)
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

// listMessages handles GET /api/v1/chat/rooms/:id/messages. Listing marks
// other participants' messages as read.
func (m *Module) listMessages(c *fiber.Ctx) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var desc bool
	switch strings.ToLower(c.Query("order", "desc")) {
	case "desc":
		desc = true
	case "asc":
	default:
		return domain.Validation("order must be asc or desc")
	}

	messages, err := m.chatAdapter.ListMessages(c.UserContext(), *identity.FromContext(c), roomID, desc)
	if err != nil {
		return err
	}
	return c.JSON(messages)
}

// postMessage handles POST /api/v1/chat/rooms/:id/messages with either a
// JSON body or a multipart form carrying "content" and "files".
func (m *Module) postMessage(c *fiber.Ctx) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	caller := identity.FromContext(c)

	var (
		content string
		files   []*multipart.FileHeader
	)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return domain.Validation("invalid multipart form")
		}
		if values := form.Value["content"]; len(values) > 0 {
			content = values[0]
		}
		files = form.File["files"]
	} else {
		var req PostMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return domain.Validation("invalid request body")
		}
		content = req.Content
	}

	// Reject before touching storage.
	if err := chat.ValidateMessage(content); err != nil {
		return err
	}
	if len(files) > chat.MaxAttachmentsCount {
		return domain.Validation("a message can carry at most %d attachments", chat.MaxAttachmentsCount)
	}
	if len(files) > 0 {
		ok, err := m.chatAdapter.IsParticipant(c.UserContext(), roomID, caller.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrUnauthorized
		}
	}

	refs, err := m.saveAttachments(c.UserContext(), files)
	if err != nil {
		return err
	}

	msg, err := m.chatAdapter.PostMessage(c.UserContext(), domain.NewMessage{
		RoomID:   roomID,
		Sender:   *caller,
		Content:  content,
		FileRefs: refs,
		Origin:   domain.OriginHTTP,
	})
	if err != nil {
		m.discardAttachments(refs)
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (m *Module) saveAttachments(ctx context.Context, files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if m.attachments == nil || m.attachments.GetStore() == nil {
		return nil, errors.New("attachment store not available")
	}
	store := m.attachments.GetStore()

	refs := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			m.discardAttachments(refs)
			return nil, err
		}
		ref, err := store.Save(ctx, fh.Filename, f, fh.Size, fh.Header.Get(fiber.HeaderContentType))
		_ = f.Close()
		if err != nil {
			m.discardAttachments(refs)
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (m *Module) discardAttachments(refs []string) {
	if len(refs) == 0 {
		return
	}
	store := m.attachments.GetStore()
	for _, ref := range refs {
		if err := store.Delete(context.Background(), ref); err != nil {
			m.logger.Warn("Failed to discard attachment", "ref", ref, "error", err)
		}
	}
}

// authorizeSocket checks room membership before the upgrade so that a
// rejected client gets a plain 403 and never an accepted socket.
func (m *Module) authorizeSocket(c *fiber.Ctx) error {
	roomID, err := idParam(c, "roomID")
	if err != nil {
		return err
	}

	sess := session.New(roomID, identity.FromContext(c), m.chatAdapter, m.registry, m.cfg.Session, m.logger)
	if err := sess.Authorize(c.UserContext()); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			m.logger.Debug("Socket rejected", "room", roomID, "error", err)
			return fiber.NewError(fiber.StatusForbidden, "not allowed to join this room")
		}
		return err
	}

	c.Locals(sessionKey, sess)
	return c.Next()
}

// serveSocket runs an authorized session on the upgraded connection.
func (m *Module) serveSocket(conn *websocket.Conn) {
	sess, ok := conn.Locals(sessionKey).(*session.Session)
	if !ok {
		_ = conn.Close()
		return
	}
	if err := sess.Open(conn); err != nil {
		m.logger.Warn("Failed to open session", "room", sess.RoomID(), "error", err)
		_ = conn.Close()
		return
	}
	sess.Run(m.ctx)
}

func idParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, domain.NotFound("room %q", c.Params(name))
	}
	return uint(id), nil
}

func createdStatus(created bool) int {
	if created {
		return fiber.StatusCreated
	}
	return fiber.StatusOK
}
