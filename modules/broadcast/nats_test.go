package broadcast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a NATS server on localhost:4222
const testNATSURL = "nats://localhost:4222"

func setupNATSRegistry(t *testing.T, prefix string) *NATSRegistry {
	t.Helper()

	r := NewNATSRegistry(testNATSURL, prefix, &mockLogger{})
	if err := r.Connect(context.Background()); err != nil {
		t.Skipf("NATS not available at %s: %v", testNATSURL, err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestNATSRegistry_FanOutAcrossInstances(t *testing.T) {
	first := setupNATSRegistry(t, "chatgroups-test")
	second := setupNATSRegistry(t, "chatgroups-test")

	a := newFakeSubscriber("a")
	b := newFakeSubscriber("b")
	first.Join("chat_3", a)
	second.Join("chat_3", b)

	require.NoError(t, second.Publish(context.Background(), "chat_3", map[string]any{"type": "read", "message_ids": []uint{1}}))

	for _, sub := range []*fakeSubscriber{a, b} {
		frames := waitForFrames(t, sub, 1)
		assert.JSONEq(t, `{"type":"read","message_ids":[1]}`, string(frames[0]))
	}
	assert.True(t, first.Connected())
}

func TestNATSRegistry_PublishBeforeConnect(t *testing.T) {
	r := NewNATSRegistry(testNATSURL, "chatgroups-test", &mockLogger{})
	assert.Error(t, r.Publish(context.Background(), "chat_1", []byte(`{}`)))
	assert.False(t, r.Connected())
	assert.NoError(t, r.Close())
}
