package chat

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    InboundFrame
		wantErr error
	}{
		{
			name:  "message frame",
			input: `{"type":"message","message":"hello"}`,
			want:  &PostFrame{Content: "hello"},
		},
		{
			name:  "read frame",
			input: `{"type":"read","message_ids":[3,4]}`,
			want:  &ReadFrame{MessageIDs: []uint{3, 4}},
		},
		{
			name:  "read frame with empty list",
			input: `{"type":"read","message_ids":[]}`,
			want:  &ReadFrame{MessageIDs: []uint{}},
		},
		{
			name:    "message missing content",
			input:   `{"type":"message"}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "message content not a string",
			input:   `{"type":"message","message":42}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "message content blank",
			input:   `{"type":"message","message":"   "}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "read ids not integers",
			input:   `{"type":"read","message_ids":["a"]}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "read ids negative",
			input:   `{"type":"read","message_ids":[-1]}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "read missing ids",
			input:   `{"type":"read"}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "invalid json",
			input:   `{"type":`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "unknown tag",
			input:   `{"type":"typing"}`,
			wantErr: ErrUnknownFrame,
		},
		{
			name:  "missing tag defaults to message",
			input: `{"message":"hi"}`,
			want:  &PostFrame{Content: "hi"},
		},
		{
			name:    "missing tag without content",
			input:   `{"message_ids":[1]}`,
			wantErr: ErrMalformedFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.input))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "error = %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewMessageEvent_WireShape(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	ev := NewMessageEvent(&Message{
		ID:         9,
		RoomID:     7,
		SenderID:   1,
		SenderName: "Ada Lovelace",
		SenderRole: RoleStudent,
		Content:    "hello",
		CreatedAt:  created,
	})

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "message", decoded["type"])

	msg, ok := decoded["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(9), msg["id"])
	assert.Equal(t, "hello", msg["content"])
	assert.Equal(t, float64(1), msg["sender_id"])
	assert.Equal(t, "Ada Lovelace", msg["sender_name"])
	assert.Equal(t, "student", msg["sender_role"])
	assert.Equal(t, "2026-03-01T10:30:00Z", msg["created_at"])
	assert.Equal(t, false, msg["is_read"])
	assert.NotContains(t, msg, "room")
}

func TestNewMessageEvent_CreatedAtKeepsSubSecond(t *testing.T) {
	tests := []struct {
		name    string
		created time.Time
		want    string
	}{
		{"whole seconds", time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), "2026-03-01T10:30:00Z"},
		{"milliseconds", time.Date(2026, 3, 1, 10, 30, 0, 123000000, time.UTC), "2026-03-01T10:30:00.123Z"},
		{"microseconds", time.Date(2026, 3, 1, 10, 30, 0, 123456000, time.UTC), "2026-03-01T10:30:00.123456Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(NewMessageEvent(&Message{ID: 1, CreatedAt: tt.created}))
			require.NoError(t, err)

			var decoded struct {
				Message struct {
					CreatedAt string `json:"created_at"`
				} `json:"message"`
			}
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, tt.want, decoded.Message.CreatedAt)
		})
	}
}

func TestNewReadEvent_WireShape(t *testing.T) {
	data, err := json.Marshal(NewReadEvent([]uint{5, 6}, 2))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"read","message_ids":[5,6],"reader_id":2}`, string(data))
}
