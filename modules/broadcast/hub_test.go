package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
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

// fakeSubscriber records delivered frames.
type fakeSubscriber struct {
	id      string
	mu      sync.Mutex
	frames  [][]byte
	full    bool
	closed  int
	onClose func()
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (s *fakeSubscriber) ID() string { return s.id }

func (s *fakeSubscriber) Deliver(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.frames = append(s.frames, data)
	return true
}

func (s *fakeSubscriber) Close() {
	s.mu.Lock()
	s.closed++
	onClose := s.onClose
	s.mu.Unlock()
	if onClose != nil {
		onClose()
	}
}

func (s *fakeSubscriber) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

// waitForFrames polls until sub has n frames or the deadline passes.
func waitForFrames(t *testing.T, sub *fakeSubscriber, n int) [][]byte {
	t.Helper()
	require.Eventually(t, func() bool { return len(sub.received()) >= n }, 2*time.Second, 10*time.Millisecond)
	return sub.received()
}

func TestGroupID(t *testing.T) {
	assert.Equal(t, "chat_7", GroupID(7))
	assert.Equal(t, "chat_120", GroupID(120))
}

func TestHub_JoinLeave(t *testing.T) {
	hub := NewHub(&mockLogger{})
	a := newFakeSubscriber("a")
	b := newFakeSubscriber("b")

	hub.Join("chat_1", a)
	hub.Join("chat_1", b)
	hub.Join("chat_2", a)
	hub.Join("chat_1", a) // joining twice does not duplicate

	assert.Equal(t, 2, hub.GroupSize("chat_1"))
	assert.Equal(t, 1, hub.GroupSize("chat_2"))
	assert.Equal(t, 2, hub.ClientCount())
	assert.Equal(t, 2, hub.GroupCount())

	hub.Leave("chat_2", a)
	hub.Leave("chat_2", a)
	hub.Leave("chat_9", b)

	assert.Equal(t, 0, hub.GroupSize("chat_2"))
	assert.Equal(t, 1, hub.GroupCount())
	assert.Equal(t, 2, hub.ClientCount())
}

func TestHub_PublishReachesOnlyGroupMembers(t *testing.T) {
	hub := NewHub(&mockLogger{})
	a := newFakeSubscriber("a")
	b := newFakeSubscriber("b")
	outsider := newFakeSubscriber("c")

	hub.Join("chat_1", a)
	hub.Join("chat_1", b)
	hub.Join("chat_2", outsider)

	require.NoError(t, hub.Publish(context.Background(), "chat_1", map[string]string{"type": "message"}))

	for _, sub := range []*fakeSubscriber{a, b} {
		frames := sub.received()
		require.Len(t, frames, 1)
		assert.JSONEq(t, `{"type":"message"}`, string(frames[0]))
	}
	assert.Empty(t, outsider.received())
}

func TestHub_PublishRawBytes(t *testing.T) {
	hub := NewHub(&mockLogger{})
	a := newFakeSubscriber("a")
	hub.Join("chat_1", a)

	require.NoError(t, hub.Publish(context.Background(), "chat_1", []byte(`{"type":"read"}`)))
	require.NoError(t, hub.Publish(context.Background(), "chat_1", json.RawMessage(`{"type":"message"}`)))

	frames := a.received()
	require.Len(t, frames, 2)
	assert.Equal(t, `{"type":"read"}`, string(frames[0]))
	assert.Equal(t, `{"type":"message"}`, string(frames[1]))
}

func TestHub_PublishToEmptyGroup(t *testing.T) {
	hub := NewHub(&mockLogger{})
	assert.NoError(t, hub.Publish(context.Background(), "chat_404", map[string]string{"type": "message"}))
}

func TestHub_PublishUnencodable(t *testing.T) {
	hub := NewHub(&mockLogger{})
	assert.Error(t, hub.Publish(context.Background(), "chat_1", make(chan int)))
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(&mockLogger{})
	slow := newFakeSubscriber("slow")
	slow.full = true
	fast := newFakeSubscriber("fast")

	hub.Join("chat_1", slow)
	hub.Join("chat_1", fast)

	assert.Equal(t, 1, hub.deliver("chat_1", []byte(`{}`)))
	assert.Len(t, fast.received(), 1)
	assert.Empty(t, slow.received())
}

func TestHub_Shutdown(t *testing.T) {
	hub := NewHub(&mockLogger{})
	a := newFakeSubscriber("a")
	b := newFakeSubscriber("b")

	// Subscribers leave their groups when closed, as sessions do.
	a.onClose = func() { hub.Leave("chat_1", a) }
	b.onClose = func() { hub.Leave("chat_1", b) }

	hub.Join("chat_1", a)
	hub.Join("chat_2", a)
	hub.Join("chat_1", b)

	assert.Equal(t, 2, hub.Shutdown())
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.GroupCount())
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub(&mockLogger{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := newFakeSubscriber(string(rune('a' + i)))
			group := GroupID(uint(i % 3))
			hub.Join(group, sub)
			_ = hub.Publish(ctx, group, map[string]int{"n": i})
			hub.Leave(group, sub)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.ClientCount())
}
