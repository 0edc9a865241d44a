// Package session runs one live chat connection scoped to a single room.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/example/campus-helpdesk-chat/modules/broadcast"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of a session.
type State int

const (
	StateConnecting State = iota
	StateAuthorizing
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthorizing:
		return "authorizing"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CloseRoomGone is sent when the room disappears under a live session.
const CloseRoomGone = 4004

var (
	// ErrClosed is returned when operating on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrInvalidState is returned when a transition is attempted out of order.
	ErrInvalidState = errors.New("invalid session state")
)

// ChatPort is the subset of chat operations a session needs.
type ChatPort interface {
	IsParticipant(ctx context.Context, roomID, userID uint) (bool, error)
	PostMessage(ctx context.Context, in domain.NewMessage) (*domain.Message, error)
	MarkRead(ctx context.Context, roomID, readerID uint, messageIDs []uint) (int64, error)
}

// Conn is the socket a session drives. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Config tunes a session.
type Config struct {
	IdleTimeout   time.Duration
	WriteWait     time.Duration
	OpTimeout     time.Duration
	MaxFrameBytes int64
	SendBuffer    int
	FrameRate     float64
	FrameBurst    int
}

// DefaultConfig returns the default session settings.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   60 * time.Second,
		WriteWait:     10 * time.Second,
		OpTimeout:     5 * time.Second,
		MaxFrameBytes: 8192,
		SendBuffer:    256,
		FrameRate:     20,
		FrameBurst:    40,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = d.OpTimeout
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.FrameBurst <= 0 {
		c.FrameBurst = d.FrameBurst
	}
	return c
}

// Session is one connection of one identity to one room.
type Session struct {
	id       string
	roomID   uint
	group    string
	identity *domain.Identity
	chat     ChatPort
	registry broadcast.Registry
	cfg      Config
	limiter  *rate.Limiter
	logger   types.Logger

	mu        sync.Mutex
	state     State
	conn      Conn
	joined    bool
	closeCode int

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ broadcast.Subscriber = (*Session)(nil)

// New creates a session in the Connecting state. identity may be nil for an
// anonymous caller.
func New(roomID uint, identity *domain.Identity, chat ChatPort, registry broadcast.Registry, cfg Config, logger types.Logger) *Session {
	cfg = cfg.withDefaults()

	limit := rate.Limit(cfg.FrameRate)
	if cfg.FrameRate <= 0 {
		limit = rate.Inf
	}

	id := uuid.NewString()
	return &Session{
		id:        id,
		roomID:    roomID,
		group:     broadcast.GroupID(roomID),
		identity:  identity,
		chat:      chat,
		registry:  registry,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, cfg.FrameBurst),
		logger:    logger.With("session", id, "room", roomID),
		state:     StateConnecting,
		closeCode: websocket.CloseNormalClosure,
		send:      make(chan []byte, cfg.SendBuffer),
		done:      make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// RoomID returns the room the session is scoped to.
func (s *Session) RoomID() uint { return s.roomID }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authorize checks that the identity is a participant of the room.
// On failure the session is closed and never joins the room's group.
func (s *Session) Authorize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: authorize in %s", ErrInvalidState, state)
	}
	s.state = StateAuthorizing
	s.mu.Unlock()

	if s.identity == nil || s.identity.UserID == 0 {
		s.Close()
		return fmt.Errorf("%w: anonymous connection", domain.ErrUnauthorized)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	ok, err := s.chat.IsParticipant(opCtx, s.roomID, s.identity.UserID)
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to check participant: %w", err)
	}
	if !ok {
		s.Close()
		return fmt.Errorf("%w: user %d is not a participant of room %d", domain.ErrUnauthorized, s.identity.UserID, s.roomID)
	}
	return nil
}

// Open attaches the accepted socket and joins the room's group.
func (s *Session) Open(conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAuthorizing:
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("%w: open in %s", ErrInvalidState, s.state)
	}

	s.conn = conn
	s.state = StateOpen
	s.joined = true
	s.registry.Join(s.group, s)
	s.logger.Info("Session opened", "user", s.identity.UserID)
	return nil
}

// Handle processes one inbound frame. It returns an error only when the
// session must end.
func (s *Session) Handle(ctx context.Context, raw []byte) error {
	if s.State() != StateOpen {
		return ErrClosed
	}

	frame, err := domain.DecodeInbound(raw)
	if err != nil {
		s.logger.Debug("Dropped inbound frame", "error", err)
		return nil
	}

	switch f := frame.(type) {
	case *domain.PostFrame:
		return s.handlePost(ctx, f)
	case *domain.ReadFrame:
		return s.handleRead(ctx, f)
	default:
		s.logger.Debug("Dropped inbound frame", "type", frame.Type())
		return nil
	}
}

func (s *Session) handlePost(ctx context.Context, f *domain.PostFrame) error {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	msg, err := s.chat.PostMessage(opCtx, domain.NewMessage{
		RoomID:  s.roomID,
		Sender:  *s.identity,
		Content: f.Content,
		Origin:  domain.OriginSocket,
	})
	if err != nil {
		return s.failed("post message", err)
	}

	if err := s.registry.Publish(ctx, s.group, domain.NewMessageEvent(msg)); err != nil {
		s.logger.Error("Failed to publish message", "message", msg.ID, "error", err)
	}
	return nil
}

func (s *Session) handleRead(ctx context.Context, f *domain.ReadFrame) error {
	if len(f.MessageIDs) == 0 {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	if _, err := s.chat.MarkRead(opCtx, s.roomID, s.identity.UserID, f.MessageIDs); err != nil {
		return s.failed("mark read", err)
	}

	if err := s.registry.Publish(ctx, s.group, domain.NewReadEvent(f.MessageIDs, s.identity.UserID)); err != nil {
		s.logger.Error("Failed to publish read receipt", "error", err)
	}
	return nil
}

// failed decides whether a persistence error ends the session.
func (s *Session) failed(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Warn("Room vanished, closing session", "op", op, "error", err)
		s.closeWith(CloseRoomGone)
		return err
	case errors.Is(err, domain.ErrUnauthorized):
		s.logger.Warn("Participant removed, closing session", "op", op, "error", err)
		s.closeWith(websocket.ClosePolicyViolation)
		return err
	case errors.Is(err, domain.ErrValidation):
		s.logger.Debug("Dropped invalid frame", "op", op, "error", err)
		return nil
	default:
		s.logger.Error("Chat operation failed", "op", op, "error", err)
		return nil
	}
}

// Deliver queues an outbound frame without blocking.
func (s *Session) Deliver(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- data:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Close ends the session. It is safe to call more than once and from any
// goroutine; the group is left exactly once.
func (s *Session) Close() {
	s.closeWith(websocket.CloseNormalClosure)
}

func (s *Session) closeWith(code int) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = StateClosed
		s.closeCode = code
		joined := s.joined
		s.mu.Unlock()

		if joined {
			s.registry.Leave(s.group, s)
		}
		close(s.done)

		if prev == StateOpen {
			s.logger.Info("Session closed", "code", code)
		}
	})
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
