package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ce-phus/atlas-path-relocation/internal/hub"
	"github.com/ce-phus/atlas-path-relocation/internal/models"
)

// StatusSession tracks a user's presence connection: it joins the user's own
// status group plus the global presence group, broadcasts online/offline
// transitions to everyone, and accepts custom status updates.
type StatusSession struct {
	deps   Deps
	client *Client
	user   models.User
	joined bool
}

func NewStatusSession(deps Deps, client *Client, user models.User) *StatusSession {
	return &StatusSession{deps: deps, client: client, user: user}
}

func (s *StatusSession) Join(ctx context.Context) error {
	s.deps.Router.Join(hub.StatusGroup(s.user.ID), s.client)
	s.deps.Router.Join(hub.GlobalStatusGroup, s.client)
	s.joined = true

	if err := s.deps.Presence.SetOnline(ctx, s.user.ID, true); err != nil {
		s.deps.Logger.Warnw("set online failed", "user", s.user.ID, "error", err)
	}
	s.broadcastStatus(ctx, true)
	return nil
}

func (s *StatusSession) Leave(ctx context.Context) {
	if !s.joined {
		return
	}
	s.joined = false
	if err := s.deps.Presence.SetOnline(ctx, s.user.ID, false); err != nil {
		s.deps.Logger.Warnw("set offline failed", "user", s.user.ID, "error", err)
	}
	s.broadcastStatus(ctx, false)
	s.deps.Router.LeaveAll(s.client)
}

func (s *StatusSession) HandleEvent(ctx context.Context, raw []byte) {
	var ev inboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.deps.Logger.Warnw("undecodable payload dropped", "user", s.user.ID, "error", err)
		return
	}
	if ev.Type != "update_status" {
		return
	}
	status := ev.Status
	if status == "" {
		status = "online"
	}
	if err := s.deps.Presence.SetCustomStatus(ctx, s.user.ID, status); err != nil {
		s.deps.Logger.Warnw("set custom status failed", "user", s.user.ID, "error", err)
	}
}

// broadcastStatus is at-least-once; duplicate online events are harmless to
// consumers.
func (s *StatusSession) broadcastStatus(ctx context.Context, online bool) {
	payload, err := json.Marshal(userStatusEvent{
		Type:      "user_status",
		UserID:    s.user.ID,
		Username:  s.user.Username,
		IsOnline:  online,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	s.deps.Router.Send(ctx, hub.GlobalStatusGroup, payload)
}
