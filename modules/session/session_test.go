package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/example/campus-helpdesk-chat/modules/broadcast"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

var (
	student = &domain.Identity{UserID: 1, Name: "Sam Student", Role: domain.RoleStudent}
	teacher = &domain.Identity{UserID: 2, Name: "Tess Teacher", Role: domain.RoleTeacher}
	tech    = &domain.Identity{UserID: 3, Name: "Toni Tech", Role: domain.RoleTechnician}
)

var createdAt = time.Date(2026, 3, 1, 9, 30, 0, 123000000, time.UTC)

// fakeChat is an in-memory ChatPort for one or more rooms.
type fakeChat struct {
	mu           sync.Mutex
	participants map[uint][]uint
	nextID       uint
	posted       []domain.NewMessage
	marked       [][]uint
	postErr      error
	markErr      error
	checkErr     error
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		participants: map[uint][]uint{1: {student.UserID, teacher.UserID}},
		nextID:       100,
	}
}

func (f *fakeChat) IsParticipant(_ context.Context, roomID, userID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return false, f.checkErr
	}
	for _, id := range f.participants[roomID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeChat) PostMessage(_ context.Context, in domain.NewMessage) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.posted = append(f.posted, in)
	f.nextID++
	return &domain.Message{
		ID:         f.nextID,
		RoomID:     in.RoomID,
		SenderID:   in.Sender.UserID,
		SenderName: in.Sender.Name,
		SenderRole: in.Sender.Role,
		Content:    in.Content,
		CreatedAt:  createdAt,
	}, nil
}

func (f *fakeChat) MarkRead(_ context.Context, _, _ uint, ids []uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return 0, f.markErr
	}
	f.marked = append(f.marked, ids)
	return int64(len(ids)), nil
}

func (f *fakeChat) postedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posted)
}

type written struct {
	kind int
	data []byte
}

// fakeConn feeds inbound frames from a channel and records writes.
type fakeConn struct {
	in        chan []byte
	mu        sync.Mutex
	writes    []written
	readLimit int64
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, written{kind: kind, data: data})
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) SetReadLimit(limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readLimit = limit
}

func (c *fakeConn) limit() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLimit
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) text() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, w := range c.writes {
		if w.kind == websocket.TextMessage {
			out = append(out, string(w.data))
		}
	}
	return out
}

func (c *fakeConn) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.writes {
		if w.kind == websocket.CloseMessage {
			return w.data
		}
	}
	return nil
}

func (c *fakeConn) waitText(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.text()) >= n }, 2*time.Second, 5*time.Millisecond)
	return c.text()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameRate = 0
	return cfg
}

// openSession authorizes, opens and runs a session in the background.
func openSession(t *testing.T, chat ChatPort, hub broadcast.Registry, id *domain.Identity) (*Session, *fakeConn, <-chan struct{}) {
	t.Helper()
	s := New(1, id, chat, hub, testConfig(), &mockLogger{})
	require.NoError(t, s.Authorize(context.Background()))

	conn := newFakeConn()
	require.NoError(t, s.Open(conn))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		s.Run(context.Background())
	}()
	t.Cleanup(func() {
		s.Close()
		<-finished
	})
	return s, conn, finished
}

func TestSession_Authorize(t *testing.T) {
	tests := []struct {
		name     string
		identity *domain.Identity
		checkErr error
		wantErr  error
	}{
		{"participant", student, nil, nil},
		{"anonymous", nil, nil, domain.ErrUnauthorized},
		{"zero user", &domain.Identity{Name: "ghost"}, nil, domain.ErrUnauthorized},
		{"outsider", tech, nil, domain.ErrUnauthorized},
		{"lookup failure", student, errors.New("db down"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := newFakeChat()
			chat.checkErr = tt.checkErr
			hub := broadcast.NewHub(&mockLogger{})
			s := New(1, tt.identity, chat, hub, testConfig(), &mockLogger{})
			assert.Equal(t, StateConnecting, s.State())

			err := s.Authorize(context.Background())
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, StateClosed, s.State())
			case tt.checkErr != nil:
				assert.ErrorIs(t, err, tt.checkErr)
				assert.Equal(t, StateClosed, s.State())
			default:
				require.NoError(t, err)
				assert.Equal(t, StateAuthorizing, s.State())
			}
			assert.Equal(t, 0, hub.GroupSize(broadcast.GroupID(1)), "no join before open")
		})
	}
}

func TestSession_RejectedSessionCannotOpen(t *testing.T) {
	hub := broadcast.NewHub(&mockLogger{})
	s := New(1, tech, newFakeChat(), hub, testConfig(), &mockLogger{})
	require.Error(t, s.Authorize(context.Background()))

	assert.ErrorIs(t, s.Open(newFakeConn()), ErrClosed)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestSession_OpenRequiresAuthorize(t *testing.T) {
	s := New(1, student, newFakeChat(), broadcast.NewHub(&mockLogger{}), testConfig(), &mockLogger{})
	assert.ErrorIs(t, s.Open(newFakeConn()), ErrInvalidState)

	require.NoError(t, s.Authorize(context.Background()))
	assert.ErrorIs(t, s.Authorize(context.Background()), ErrInvalidState)
}

func TestSession_MessageBroadcastToRoom(t *testing.T) {
	chat := newFakeChat()
	hub := broadcast.NewHub(&mockLogger{})

	sender, senderConn, _ := openSession(t, chat, hub, student)
	_, peerConn, _ := openSession(t, chat, hub, teacher)
	assert.Equal(t, StateOpen, sender.State())
	assert.Equal(t, 2, hub.GroupSize(broadcast.GroupID(1)))

	senderConn.in <- []byte(`{"type":"message","message":"my projector is broken"}`)

	for _, conn := range []*fakeConn{senderConn, peerConn} {
		frames := conn.waitText(t, 1)
		assert.JSONEq(t, `{
			"type": "message",
			"message": {
				"id": 101,
				"content": "my projector is broken",
				"sender_id": 1,
				"sender_name": "Sam Student",
				"sender_role": "student",
				"created_at": "2026-03-01T09:30:00.123Z",
				"is_read": false
			}
		}`, frames[0])
	}

	assert.Equal(t, int64(8192), senderConn.limit())
	require.Len(t, chat.posted, 1)
	assert.Equal(t, domain.OriginSocket, chat.posted[0].Origin)
	assert.Equal(t, uint(1), chat.posted[0].RoomID)
}

func TestSession_UntaggedFrameIsMessage(t *testing.T) {
	chat := newFakeChat()
	hub := broadcast.NewHub(&mockLogger{})

	_, senderConn, _ := openSession(t, chat, hub, student)
	_, peerConn, _ := openSession(t, chat, hub, teacher)

	senderConn.in <- []byte(`{"message":"hi"}`)

	for _, conn := range []*fakeConn{senderConn, peerConn} {
		frames := conn.waitText(t, 1)
		var got struct {
			Type    string `json:"type"`
			Message struct {
				Content  string `json:"content"`
				SenderID uint   `json:"sender_id"`
			} `json:"message"`
		}
		require.NoError(t, json.Unmarshal([]byte(frames[0]), &got))
		assert.Equal(t, "message", got.Type)
		assert.Equal(t, "hi", got.Message.Content)
		assert.Equal(t, student.UserID, got.Message.SenderID)
	}
	assert.Equal(t, 1, chat.postedCount())
}

func TestSession_ReadBroadcastToRoom(t *testing.T) {
	chat := newFakeChat()
	hub := broadcast.NewHub(&mockLogger{})

	_, studentConn, _ := openSession(t, chat, hub, student)
	_, teacherConn, _ := openSession(t, chat, hub, teacher)

	teacherConn.in <- []byte(`{"type":"read","message_ids":[101,102]}`)

	for _, conn := range []*fakeConn{studentConn, teacherConn} {
		frames := conn.waitText(t, 1)
		assert.JSONEq(t, `{"type":"read","message_ids":[101,102],"reader_id":2}`, frames[0])
	}
	assert.Equal(t, [][]uint{{101, 102}}, chat.marked)
}

func TestSession_DropsMalformedFrames(t *testing.T) {
	chat := newFakeChat()
	hub := broadcast.NewHub(&mockLogger{})
	s, conn, _ := openSession(t, chat, hub, student)

	for _, raw := range []string{
		`not json`,
		`{"type":"message"}`,
		`{"type":"message","message":42}`,
		`{"type":"message","message":"   "}`,
		`{"type":"read","message_ids":["a"]}`,
		`{"type":"read","message_ids":[]}`,
		`{"type":"typing"}`,
	} {
		conn.in <- []byte(raw)
	}
	// A valid frame after the junk proves the session kept serving in order.
	conn.in <- []byte(`{"type":"message","message":"still here"}`)

	frames := conn.waitText(t, 1)
	assert.Len(t, frames, 1)
	assert.Contains(t, frames[0], "still here")
	assert.Equal(t, StateOpen, s.State())
	assert.Empty(t, chat.marked)
}

func TestSession_PersistenceFailureKeepsServing(t *testing.T) {
	chat := newFakeChat()
	chat.markErr = errors.New("database is locked")
	hub := broadcast.NewHub(&mockLogger{})
	s, conn, _ := openSession(t, chat, hub, student)

	conn.in <- []byte(`{"type":"read","message_ids":[5]}`)
	conn.in <- []byte(`{"type":"message","message":"after failure"}`)

	frames := conn.waitText(t, 1)
	assert.Len(t, frames, 1)
	assert.Contains(t, frames[0], "after failure")
	assert.Equal(t, StateOpen, s.State())
}

func TestSession_RoomVanishedClosesSession(t *testing.T) {
	chat := newFakeChat()
	chat.postErr = domain.NotFound("room %d", 1)
	hub := broadcast.NewHub(&mockLogger{})
	s, conn, finished := openSession(t, chat, hub, student)

	conn.in <- []byte(`{"type":"message","message":"hello?"}`)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, hub.GroupSize(broadcast.GroupID(1)))
	assert.True(t, conn.isClosed())
	assert.Equal(t, websocket.FormatCloseMessage(CloseRoomGone, ""), conn.closeFrame())
}

func TestSession_ClientDisconnectLeavesGroup(t *testing.T) {
	chat := newFakeChat()
	hub := broadcast.NewHub(&mockLogger{})
	s, conn, finished := openSession(t, chat, hub, student)
	_, peerConn, _ := openSession(t, chat, hub, teacher)

	close(conn.in)
	<-finished

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, hub.GroupSize(broadcast.GroupID(1)))

	// Frames published after close are not delivered to the closed session.
	require.NoError(t, hub.Publish(context.Background(), broadcast.GroupID(1), domain.NewReadEvent([]uint{1}, 2)))
	peerConn.waitText(t, 1)
	assert.Empty(t, conn.text())
	assert.False(t, s.Deliver([]byte(`{}`)))
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	hub := broadcast.NewHub(&mockLogger{})
	s, conn, finished := openSession(t, newFakeChat(), hub, student)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
	<-finished

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, hub.ClientCount())
	assert.True(t, conn.isClosed())
	assert.Equal(t, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), conn.closeFrame())
	assert.ErrorIs(t, s.Handle(context.Background(), []byte(`{"type":"message","message":"late"}`)), ErrClosed)
}

func TestSession_CloseRacesInflightFrame(t *testing.T) {
	chat := newFakeChat()
	hub := broadcast.NewHub(&mockLogger{})
	s, conn, finished := openSession(t, chat, hub, student)

	conn.in <- []byte(`{"type":"message","message":"racing"}`)
	s.Close()
	<-finished

	assert.Equal(t, 0, hub.GroupSize(broadcast.GroupID(1)))
	assert.LessOrEqual(t, chat.postedCount(), 1)
}

func TestSession_ContextCancelClosesSession(t *testing.T) {
	hub := broadcast.NewHub(&mockLogger{})
	s := New(1, student, newFakeChat(), hub, testConfig(), &mockLogger{})
	require.NoError(t, s.Authorize(context.Background()))
	conn := newFakeConn()
	require.NoError(t, s.Open(conn))

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		s.Run(ctx)
	}()

	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	assert.Equal(t, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), conn.closeFrame())
}

func TestSession_HubShutdownClosesSessions(t *testing.T) {
	hub := broadcast.NewHub(&mockLogger{})
	_, _, first := openSession(t, newFakeChat(), hub, student)
	_, _, second := openSession(t, newFakeChat(), hub, teacher)

	assert.Equal(t, 2, hub.Shutdown())
	<-first
	<-second
	assert.Equal(t, 0, hub.ClientCount())
}

func TestSession_DeliverDoesNotBlock(t *testing.T) {
	cfg := testConfig()
	cfg.SendBuffer = 1
	s := New(1, student, newFakeChat(), broadcast.NewHub(&mockLogger{}), cfg, &mockLogger{})

	assert.True(t, s.Deliver([]byte(`{"n":1}`)))
	assert.False(t, s.Deliver([]byte(`{"n":2}`)), "full queue drops")
}

func TestSession_OrderPreserved(t *testing.T) {
	chat := newFakeChat()
	hub := broadcast.NewHub(&mockLogger{})
	_, conn, _ := openSession(t, chat, hub, student)

	for _, text := range []string{"one", "two", "three", "four"} {
		data, err := json.Marshal(map[string]string{"type": "message", "message": text})
		require.NoError(t, err)
		conn.in <- data
	}

	frames := conn.waitText(t, 4)
	var got []string
	for _, f := range frames {
		var ev domain.MessageEvent
		require.NoError(t, json.Unmarshal([]byte(f), &ev))
		got = append(got, ev.Message.Content)
	}
	assert.Equal(t, []string{"one", "two", "three", "four"}, got)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{IdleTimeout: time.Second}.withDefaults()
	assert.Equal(t, time.Second, cfg.IdleTimeout)
	assert.Equal(t, DefaultConfig().WriteWait, cfg.WriteWait)
	assert.Equal(t, DefaultConfig().MaxFrameBytes, cfg.MaxFrameBytes)
	assert.Equal(t, DefaultConfig().SendBuffer, cfg.SendBuffer)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
