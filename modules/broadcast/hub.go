package broadcast

import (
	"context"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
)

// Hub is the in-process Registry: a map of group to members guarded by a lock.
type Hub struct {
	groups map[string]map[string]Subscriber // groupID -> subscriberID -> subscriber
	mu     sync.RWMutex
	logger types.Logger
}

var _ Registry = (*Hub)(nil)

// NewHub creates a new Hub.
func NewHub(logger types.Logger) *Hub {
	return &Hub{
		groups: make(map[string]map[string]Subscriber),
		logger: logger,
	}
}

// Join adds sub to groupID.
func (h *Hub) Join(groupID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[groupID]
	if !ok {
		members = make(map[string]Subscriber)
		h.groups[groupID] = members
	}
	members[sub.ID()] = sub
	h.logger.Debug("Subscriber joined group", "group", groupID, "subscriber", sub.ID(), "members", len(members))
}

// Leave removes sub from groupID. Leaving twice is a no-op.
func (h *Hub) Leave(groupID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[groupID]
	if !ok {
		return
	}
	if _, ok := members[sub.ID()]; !ok {
		return
	}
	delete(members, sub.ID())
	if len(members) == 0 {
		delete(h.groups, groupID)
	}
	h.logger.Debug("Subscriber left group", "group", groupID, "subscriber", sub.ID())
}

// Publish delivers payload to every current member of groupID.
func (h *Hub) Publish(_ context.Context, groupID string, payload any) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}
	h.deliver(groupID, data)
	return nil
}

// deliver hands data to the members present at call time and returns how
// many accepted it.
func (h *Hub) deliver(groupID string, data []byte) int {
	h.mu.RLock()
	members := make([]Subscriber, 0, len(h.groups[groupID]))
	for _, sub := range h.groups[groupID] {
		members = append(members, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range members {
		if sub.Deliver(data) {
			delivered++
		} else {
			h.logger.Warn("Dropped frame for slow or closed subscriber", "group", groupID, "subscriber", sub.ID())
		}
	}
	return delivered
}

// GroupSize returns the number of members of groupID.
func (h *Hub) GroupSize(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}

// ClientCount returns the number of distinct subscribers across all groups.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, members := range h.groups {
		for id := range members {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// GroupCount returns the number of non-empty groups.
func (h *Hub) GroupCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups)
}

// Shutdown empties the hub and closes every subscriber.
func (h *Hub) Shutdown() int {
	h.mu.Lock()
	var subs []Subscriber
	seen := make(map[string]struct{})
	for _, members := range h.groups {
		for id, sub := range members {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			subs = append(subs, sub)
		}
	}
	h.groups = make(map[string]map[string]Subscriber)
	h.mu.Unlock()

	// Closing calls back into Leave, so it runs without the lock.
	for _, sub := range subs {
		sub.Close()
	}
	return len(subs)
}
