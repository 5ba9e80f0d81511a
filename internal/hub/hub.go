package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Group names. One room per conversation, one chat-list and one status group
// per user, and a single global group for online/offline broadcast.
const GlobalStatusGroup = "online_status"

func ConversationGroup(conversationID string) string { return "conversation_" + conversationID }
func ChatListGroup(userID string) string             { return "user_" + userID + "_chatlist" }
func StatusGroup(userID string) string               { return "status_" + userID }

// Subscriber is a session handle registered in one or more groups.
// Deliver must never block; a slow consumer drops the payload instead of
// stalling fan-out to the rest of the group.
type Subscriber interface {
	Deliver(payload []byte) bool
}

// Hub is the group broadcast router: a name -> subscriber-set table shared by
// every connection. Events are delivered to whoever is subscribed at the
// moment of the call; there is no replay.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[Subscriber]struct{}

	// publish forwards a group event to other instances. Nil for
	// single-instance deployments; set by the redis bridge.
	publish func(ctx context.Context, group string, payload []byte) error

	logger *zap.SugaredLogger
}

func New(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		groups: make(map[string]map[Subscriber]struct{}),
		logger: logger,
	}
}

// SetPublisher installs the cross-instance fan-out hook.
func (h *Hub) SetPublisher(fn func(ctx context.Context, group string, payload []byte) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publish = fn
}

func (h *Hub) Join(group string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.groups[group]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.groups[group] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) Leave(group string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.groups[group]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.groups, group)
		}
	}
}

// LeaveAll removes the subscriber from every group. Run on every disconnect
// path, including abnormal termination.
func (h *Hub) LeaveAll(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, set := range h.groups {
		delete(set, s)
		if len(set) == 0 {
			delete(h.groups, name)
		}
	}
}

// Send delivers payload to every subscriber currently in the group and, when
// a publisher is installed, to the other instances.
func (h *Hub) Send(ctx context.Context, group string, payload []byte) {
	h.mu.RLock()
	var dropped int
	for s := range h.groups[group] {
		if !s.Deliver(payload) {
			dropped++
		}
	}
	publish := h.publish
	h.mu.RUnlock()

	if dropped > 0 {
		h.logger.Warnw("dropped deliveries to slow subscribers", "group", group, "count", dropped)
	}
	if publish != nil {
		if err := publish(ctx, group, payload); err != nil {
			h.logger.Warnw("cross-instance publish failed", "group", group, "error", err)
		}
	}
}

// DeliverLocal fans out to local subscribers only. The redis bridge uses it
// for events that originated on another instance.
func (h *Hub) DeliverLocal(group string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.groups[group] {
		s.Deliver(payload)
	}
}

// Size reports the current subscriber count of a group.
func (h *Hub) Size(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
