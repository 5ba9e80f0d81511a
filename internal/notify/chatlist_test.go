package notify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ce-phus/atlas-path-relocation/internal/hub"
	"github.com/ce-phus/atlas-path-relocation/internal/models"
	"github.com/ce-phus/atlas-path-relocation/pkg/logger"
)

type captureSub struct{ ch chan []byte }

func newCaptureSub(router *hub.Hub, group string) *captureSub {
	s := &captureSub{ch: make(chan []byte, 4)}
	router.Join(group, s)
	return s
}

func (s *captureSub) Deliver(p []byte) bool {
	select {
	case s.ch <- p:
		return true
	default:
		return false
	}
}

func (s *captureSub) update(t *testing.T) ChatListUpdate {
	t.Helper()
	select {
	case p := <-s.ch:
		var u ChatListUpdate
		require.NoError(t, json.Unmarshal(p, &u))
		return u
	case <-time.After(time.Second):
		t.Fatal("no chatlist update received")
		return ChatListUpdate{}
	}
}

func TestNotifyNewMessageFansOutToBothSides(t *testing.T) {
	router := hub.New(logger.Nop())
	n := NewListNotifier(router, logger.Nop())

	senderSub := newCaptureSub(router, hub.ChatListGroup("u1"))
	receiverSub := newCaptureSub(router, hub.ChatListGroup("u2"))

	conv := &models.Conversation{ID: "c1", User1ID: "u1", User2ID: "u2"}
	msg := &models.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "u1",
		Text:           "see you at the airport",
		CreatedAt:      time.Now().UTC(),
	}
	n.NotifyNewMessage(context.Background(), conv, msg)

	forSender := senderSub.update(t)
	assert.Equal(t, "chatlist_update", forSender.Type)
	assert.Equal(t, "c1", forSender.ConversationID)
	assert.Equal(t, "new_message", forSender.Action)
	assert.True(t, forSender.LastMessage.IsOwn)
	assert.Equal(t, 0, forSender.UnreadIncrement)

	forReceiver := receiverSub.update(t)
	assert.False(t, forReceiver.LastMessage.IsOwn)
	assert.Equal(t, 1, forReceiver.UnreadIncrement)
	assert.Equal(t, "see you at the airport", forReceiver.LastMessage.Text)
	assert.Equal(t, "u1", forReceiver.LastMessage.SenderID)
}

func TestNotifyNewMessageReceiverIsUser1(t *testing.T) {
	router := hub.New(logger.Nop())
	n := NewListNotifier(router, logger.Nop())
	receiverSub := newCaptureSub(router, hub.ChatListGroup("u1"))

	conv := &models.Conversation{ID: "c1", User1ID: "u1", User2ID: "u2"}
	msg := &models.Message{ID: "m1", ConversationID: "c1", SenderID: "u2", Text: "hi"}
	n.NotifyNewMessage(context.Background(), conv, msg)

	forReceiver := receiverSub.update(t)
	assert.Equal(t, 1, forReceiver.UnreadIncrement)
}

func TestPreview(t *testing.T) {
	short := &models.Message{Text: "brief"}
	assert.Equal(t, "brief", Preview(short, 50))

	long := &models.Message{Text: strings.Repeat("a", 80)}
	got := Preview(long, 50)
	assert.Equal(t, strings.Repeat("a", 50)+"...", got)

	// rune boundaries, not byte boundaries
	unicode := &models.Message{Text: strings.Repeat("ü", 60)}
	got = Preview(unicode, 50)
	assert.Equal(t, strings.Repeat("ü", 50)+"...", got)

	imageOnly := &models.Message{ImageURL: "/media/x.png"}
	assert.Equal(t, ImagePlaceholder, Preview(imageOnly, 50))
}
