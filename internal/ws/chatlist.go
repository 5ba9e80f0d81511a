package ws

import (
	"context"

	"github.com/ce-phus/atlas-path-relocation/internal/hub"
	"github.com/ce-phus/atlas-path-relocation/internal/models"
)

// ChatListSession feeds a client its sidebar updates. It only ever joins the
// user's own chat-list group and relays chatlist_update events; inbound
// payloads are ignored.
type ChatListSession struct {
	deps   Deps
	client *Client
	user   models.User
	joined bool
}

func NewChatListSession(deps Deps, client *Client, user models.User) *ChatListSession {
	return &ChatListSession{deps: deps, client: client, user: user}
}

func (s *ChatListSession) Join(_ context.Context) error {
	s.deps.Router.Join(hub.ChatListGroup(s.user.ID), s.client)
	s.joined = true
	s.deps.Logger.Infow("chat list session joined", "user", s.user.Username)
	return nil
}

func (s *ChatListSession) Leave(_ context.Context) {
	if !s.joined {
		return
	}
	s.joined = false
	s.deps.Router.LeaveAll(s.client)
}
