package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
)

// Subscriber is a live connection that can receive group frames.
type Subscriber interface {
	ID() string
	// Deliver queues one encoded frame. It must not block and reports
	// whether the frame was accepted.
	Deliver(data []byte) bool
	// Close terminates the connection. It must be idempotent.
	Close()
}

// Registry tracks which subscribers belong to which group and fans out
// frames to the members of a group.
type Registry interface {
	Join(groupID string, sub Subscriber)
	Leave(groupID string, sub Subscriber)
	Publish(ctx context.Context, groupID string, payload any) error
	GroupSize(groupID string) int
	ClientCount() int
}

// GroupID returns the broadcast group of a room.
func GroupID(roomID uint) string {
	return fmt.Sprintf("chat_%d", roomID)
}

// encode marshals a payload once for every member of a group.
func encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal broadcast payload: %w", err)
		}
		return data, nil
	}
}
