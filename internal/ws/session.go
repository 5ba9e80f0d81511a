package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ce-phus/atlas-path-relocation/internal/hub"
	"github.com/ce-phus/atlas-path-relocation/internal/media"
	"github.com/ce-phus/atlas-path-relocation/internal/models"
	"github.com/ce-phus/atlas-path-relocation/internal/notify"
	"github.com/ce-phus/atlas-path-relocation/internal/store"
	"github.com/ce-phus/atlas-path-relocation/pkg/apperrors"
)

// Deps bundles everything a session needs. Identity and context always arrive
// as call parameters, never through ambient lookup.
type Deps struct {
	Conversations store.ConversationStore
	Messages      store.MessageStore
	Presence      store.PresenceStore
	Users         store.UserDirectory
	Router        *hub.Hub
	Lists         *notify.ListNotifier
	Push          notify.PushPublisher
	Media         *media.Processor
	Logger        *zap.SugaredLogger
}

// ChatSession is the per-connection protocol handler for one conversation.
// Inbound events are processed strictly in arrival order by the single read
// loop; each handler catches its own failures so one bad message never kills
// the connection.
type ChatSession struct {
	deps   Deps
	client *Client
	user   models.User

	peer models.User
	conv *models.Conversation

	roomGroup string
	listGroup string
	joined    bool
}

func NewChatSession(deps Deps, client *Client, user models.User) *ChatSession {
	return &ChatSession{deps: deps, client: client, user: user}
}

// Join resolves the counterpart, gets or creates the conversation, subscribes
// to the room and chat-list groups, flips presence online and pushes the most
// recent page to the client.
func (s *ChatSession) Join(ctx context.Context, peerUsername string) error {
	if peerUsername == s.user.Username {
		return apperrors.Validation("cannot open a conversation with yourself")
	}
	peer, err := s.deps.Users.ByUsername(ctx, peerUsername)
	if err != nil {
		return err
	}
	s.peer = *peer

	conv, _, err := s.deps.Conversations.GetOrCreate(ctx, s.user.ID, s.peer.ID)
	if err != nil {
		return err
	}
	s.conv = conv
	s.roomGroup = hub.ConversationGroup(conv.ID)
	s.listGroup = hub.ChatListGroup(s.user.ID)

	s.deps.Router.Join(s.roomGroup, s.client)
	s.deps.Router.Join(s.listGroup, s.client)
	s.joined = true

	if err := s.deps.Presence.SetOnline(ctx, s.user.ID, true); err != nil {
		s.deps.Logger.Warnw("set online failed", "user", s.user.ID, "error", err)
	}

	s.sendRecentMessages(ctx)
	s.deps.Logger.Infow("chat session joined",
		"user", s.user.Username, "peer", s.peer.Username, "conversation", conv.ID)
	return nil
}

// Leave runs on every disconnect path, abrupt ones included: unsubscribe from
// all joined groups and flip presence offline.
func (s *ChatSession) Leave(ctx context.Context) {
	if !s.joined {
		return
	}
	s.joined = false
	s.deps.Router.LeaveAll(s.client)
	if err := s.deps.Presence.SetOnline(ctx, s.user.ID, false); err != nil {
		s.deps.Logger.Warnw("set offline failed", "user", s.user.ID, "error", err)
	}
}

// HandleEvent parses one inbound payload and dispatches it. Malformed
// payloads are logged and dropped; store failures become error events.
func (s *ChatSession) HandleEvent(ctx context.Context, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Logger.Errorw("panic handling event", "user", s.user.ID, "panic", r)
		}
	}()

	var ev inboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.deps.Logger.Warnw("undecodable payload dropped", "user", s.user.ID, "error", err)
		return
	}

	switch ev.Type {
	case "message", "":
		s.handleNewMessage(ctx, ev)
	case "typing":
		s.handleTyping(ctx, ev)
	case "read_receipt":
		s.handleReadReceipt(ctx, ev)
	case "delete_message":
		s.handleDeleteMessage(ctx, ev)
	case "load_more":
		s.handleLoadMore(ctx, ev)
	case "update_message":
		s.handleUpdateMessage(ctx, ev)
	default:
		s.deps.Logger.Debugw("unknown event type ignored", "type", ev.Type)
	}
}

func (s *ChatSession) handleNewMessage(ctx context.Context, ev inboundEvent) {
	var imageURL, thumbURL string
	if ev.Image != "" {
		if s.deps.Media == nil {
			s.sendError("image attachments are not enabled")
			return
		}
		var err error
		imageURL, thumbURL, err = s.deps.Media.SaveImage(ctx, ev.Image)
		if err != nil {
			s.sendStoreError(err, "could not store image")
			return
		}
	}

	msg, err := s.deps.Messages.Create(ctx, store.CreateMessage{
		ConversationID: s.conv.ID,
		SenderID:       s.user.ID,
		Text:           ev.Text,
		ImageURL:       imageURL,
		ThumbnailURL:   thumbURL,
	})
	if err != nil {
		s.sendStoreError(err, "could not send message")
		return
	}

	messagesSent.Inc()

	// keep the sidebar ordering correct even though message write and touch
	// are two steps; a duplicate touch is harmless
	if err := s.deps.Conversations.Touch(ctx, s.conv.ID); err != nil {
		s.deps.Logger.Warnw("conversation touch failed", "conversation", s.conv.ID, "error", err)
	}

	// confirmation straight back to the sender, with the correlation id for
	// optimistic UI matching
	s.sendDirect(messageEvent{Type: "message", Message: viewOf(msg), TempID: ev.TempID})

	receiverOnline, err := s.deps.Presence.IsOnline(ctx, s.peer.ID)
	if err != nil {
		s.deps.Logger.Warnw("presence lookup failed", "user", s.peer.ID, "error", err)
	}
	if receiverOnline {
		if err := s.deps.Messages.MarkDelivered(ctx, msg.ID); err != nil {
			s.deps.Logger.Warnw("mark delivered failed", "message", msg.ID, "error", err)
		} else {
			msg.Status = models.StatusDelivered
		}
		s.broadcast(ctx, s.roomGroup, messageEvent{Type: "message", Message: viewOf(msg)})
	} else {
		s.deps.Logger.Infow("receiver offline, message queued", "user", s.peer.Username)
	}

	s.deps.Lists.NotifyNewMessage(ctx, s.conv, msg)
	s.pushNotification(ctx, msg)
}

func (s *ChatSession) handleTyping(ctx context.Context, ev inboundEvent) {
	if p, err := s.deps.Presence.Profile(ctx, s.user.ID); err == nil && !p.ShowTypingIndicators {
		return
	}
	s.broadcast(ctx, s.roomGroup, typingEvent{
		Type:      "typing",
		UserID:    s.user.ID,
		IsTyping:  ev.IsTyping,
		Timestamp: time.Now().UTC(),
	})
}

func (s *ChatSession) handleReadReceipt(ctx context.Context, ev inboundEvent) {
	if len(ev.MessageIDs) == 0 {
		return
	}
	updated, err := s.deps.Messages.MarkRead(ctx, s.conv.ID, s.user.ID, ev.MessageIDs)
	if err != nil {
		s.sendStoreError(err, "could not mark messages read")
		return
	}
	if updated == 0 {
		return
	}
	if p, err := s.deps.Presence.Profile(ctx, s.user.ID); err == nil && !p.ShowReadReceipts {
		return
	}
	s.broadcast(ctx, s.roomGroup, readReceiptEvent{
		Type:       "read_receipt",
		UserID:     s.user.ID,
		MessageIDs: ev.MessageIDs,
		Timestamp:  time.Now().UTC(),
	})
}

func (s *ChatSession) handleDeleteMessage(ctx context.Context, ev inboundEvent) {
	if ev.MessageID == "" {
		s.sendError("message id is required for deletion")
		return
	}
	deleted, err := s.deps.Messages.Delete(ctx, ev.MessageID, s.user.ID, ev.DeleteForEveryone)
	if err != nil {
		s.sendStoreError(err, "could not delete message")
		return
	}
	if !deleted {
		return
	}
	s.broadcast(ctx, s.roomGroup, messageDeletedEvent{
		Type:              "message_deleted",
		UserID:            s.user.ID,
		MessageID:         ev.MessageID,
		DeleteForEveryone: ev.DeleteForEveryone,
		Timestamp:         time.Now().UTC(),
	})
}

func (s *ChatSession) handleLoadMore(ctx context.Context, ev inboundEvent) {
	if ev.BeforeID == "" {
		s.sendError("before_id is required")
		return
	}
	msgs, err := s.deps.Messages.ListBefore(ctx, s.conv.ID, s.user.ID, ev.BeforeID, store.PageSize)
	if err != nil {
		s.sendStoreError(err, "could not load messages")
		return
	}
	s.sendDirect(messagesLoadedEvent{
		Type:     "messages_loaded",
		Messages: viewsOf(msgs),
		HasMore:  len(msgs) == store.PageSize,
	})
}

func (s *ChatSession) handleUpdateMessage(ctx context.Context, ev inboundEvent) {
	if ev.MessageID == "" || ev.NewText == "" {
		s.sendError("message id and new text are required for updating")
		return
	}
	updated, err := s.deps.Messages.UpdateText(ctx, ev.MessageID, s.user.ID, ev.NewText)
	if err != nil {
		s.sendStoreError(err, "could not update message")
		return
	}
	if !updated {
		return
	}
	s.broadcast(ctx, s.roomGroup, messageUpdatedEvent{
		Type:      "message_updated",
		MessageID: ev.MessageID,
		NewText:   ev.NewText,
		Timestamp: time.Now().UTC(),
		UpdatedBy: s.user.ID,
	})
}

func (s *ChatSession) sendRecentMessages(ctx context.Context) {
	msgs, err := s.deps.Messages.ListRecent(ctx, s.conv.ID, s.user.ID, store.PageSize)
	if err != nil {
		s.deps.Logger.Warnw("recent messages fetch failed", "conversation", s.conv.ID, "error", err)
		return
	}
	s.sendDirect(recentMessagesEvent{
		Type:           "recent_messages",
		Messages:       viewsOf(msgs),
		ConversationID: s.conv.ID,
	})
}

func (s *ChatSession) pushNotification(ctx context.Context, msg *models.Message) {
	if p, err := s.deps.Presence.Profile(ctx, s.peer.ID); err == nil && !p.NotifyNewMessages {
		return
	}
	err := s.deps.Push.PublishNewMessage(ctx, notify.PushNotification{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		RecipientID:    s.peer.ID,
		SenderUsername: s.user.Username,
		Preview:        notify.Preview(msg, 100),
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		// best effort, never on the delivery path
		s.deps.Logger.Warnw("push notification publish failed", "message", msg.ID, "error", err)
	}
}

func (s *ChatSession) broadcast(ctx context.Context, group string, ev any) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.deps.Logger.Errorw("marshal outbound event", "error", err)
		return
	}
	s.deps.Router.Send(ctx, group, payload)
}

func (s *ChatSession) sendDirect(ev any) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.deps.Logger.Errorw("marshal outbound event", "error", err)
		return
	}
	s.client.Deliver(payload)
}

func (s *ChatSession) sendError(msg string) {
	s.sendDirect(errorEvent{Type: "error", Message: msg})
}

// sendStoreError converts a store failure into a client-visible error event;
// the connection stays open either way.
func (s *ChatSession) sendStoreError(err error, fallback string) {
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		switch ae.Code {
		case apperrors.CodeValidation, apperrors.CodeForbidden, apperrors.CodeNotFound:
			s.sendError(ae.Message)
			return
		}
	}
	s.deps.Logger.Errorw("store operation failed", "user", s.user.ID, "error", err)
	s.sendError(fallback)
}
