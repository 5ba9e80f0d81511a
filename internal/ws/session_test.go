package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ce-phus/atlas-path-relocation/internal/hub"
	"github.com/ce-phus/atlas-path-relocation/internal/media"
	"github.com/ce-phus/atlas-path-relocation/internal/models"
	"github.com/ce-phus/atlas-path-relocation/internal/notify"
	"github.com/ce-phus/atlas-path-relocation/internal/store"
	"github.com/ce-phus/atlas-path-relocation/pkg/logger"
)

var (
	alice = models.User{ID: "u1", Username: "alice"}
	bob   = models.User{ID: "u2", Username: "bob"}
)

func newTestDeps(t *testing.T) (Deps, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.AddUser(&alice)
	mem.AddUser(&bob)
	nop := logger.Nop()
	router := hub.New(nop)
	deps := Deps{
		Conversations: mem,
		Messages:      mem,
		Presence:      mem,
		Users:         mem,
		Router:        router,
		Lists:         notify.NewListNotifier(router, nop),
		Push:          notify.NopPublisher{},
		Media:         media.NewProcessor(media.NewMemoryStore("/media/"), nop),
		Logger:        nop,
	}
	return deps, mem
}

// recvType reads events off the client's outbound queue until one of the
// given type shows up.
func recvType(t *testing.T, c *Client, typ string) map[string]any {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case p := <-c.send:
			var m map[string]any
			require.NoError(t, json.Unmarshal(p, &m))
			if m["type"] == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("no %q event received", typ)
		}
	}
}

func assertNoEvent(t *testing.T, c *Client, typ string) {
	t.Helper()
	for {
		select {
		case p := <-c.send:
			var m map[string]any
			require.NoError(t, json.Unmarshal(p, &m))
			require.NotEqual(t, typ, m["type"])
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func joinChat(t *testing.T, deps Deps, user models.User, peer string) (*ChatSession, *Client) {
	t.Helper()
	client := NewClient(nil)
	sess := NewChatSession(deps, client, user)
	require.NoError(t, sess.Join(context.Background(), peer))
	recvType(t, client, "recent_messages")
	return sess, client
}

// listListener subscribes a bare listener to a user's chat-list group, like a
// chatlist session on another device would.
type listListener struct{ ch chan []byte }

func newListListener(deps Deps, userID string) *listListener {
	l := &listListener{ch: make(chan []byte, 16)}
	deps.Router.Join(hub.ChatListGroup(userID), l)
	return l
}

func (l *listListener) Deliver(p []byte) bool {
	select {
	case l.ch <- p:
		return true
	default:
		return false
	}
}

func (l *listListener) recv(t *testing.T) map[string]any {
	t.Helper()
	select {
	case p := <-l.ch:
		var m map[string]any
		require.NoError(t, json.Unmarshal(p, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no chatlist event received")
		return nil
	}
}

func TestJoinRejectsSelfAndUnknownPeer(t *testing.T) {
	deps, _ := newTestDeps(t)
	sess := NewChatSession(deps, NewClient(nil), alice)

	err := sess.Join(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, CloseBadPeer, joinCloseCode(err))

	err = sess.Join(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, CloseBadPeer, joinCloseCode(err))
}

func TestSendToOfflineReceiver(t *testing.T) {
	deps, mem := newTestDeps(t)
	sess, aliceConn := joinChat(t, deps, alice, "bob")
	bobList := newListListener(deps, bob.ID)

	before, _ := mem.Conversation(sess.conv.ID)

	sess.HandleEvent(context.Background(), []byte(`{"type":"message","text":"hello","temp_id":"t-1"}`))

	// sender confirmation carries the correlation id and status stays sent
	ev := recvType(t, aliceConn, "message")
	assert.Equal(t, "t-1", ev["temp_id"])
	msg := ev["message"].(map[string]any)
	assert.Equal(t, "hello", msg["text"])
	assert.Equal(t, "sent", msg["status"])

	// sender's own chat list reorders without an unread bump
	listEv := recvType(t, aliceConn, "chatlist_update")
	assert.Equal(t, float64(0), listEv["unread_increment"])
	assert.Equal(t, true, listEv["last_message"].(map[string]any)["is_own"])

	// receiver's chat list gets the unread bump even though bob is offline
	bobEv := bobList.recv(t)
	assert.Equal(t, "chatlist_update", bobEv["type"])
	assert.Equal(t, float64(1), bobEv["unread_increment"])
	last := bobEv["last_message"].(map[string]any)
	assert.Equal(t, "hello", last["text"])
	assert.Equal(t, false, last["is_own"])

	// persisted as sent, conversation moved forward
	stored, err := mem.Get(context.Background(), msg["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, stored.Status)
	after, _ := mem.Conversation(sess.conv.ID)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
}

func TestDeliveredAndReadWhenReceiverConnects(t *testing.T) {
	deps, mem := newTestDeps(t)
	sessA, connA := joinChat(t, deps, alice, "bob")
	bobSess, bobConn := joinChat(t, deps, bob, "alice")

	// alice sends while bob's session is live
	sessA.HandleEvent(context.Background(), []byte(`{"type":"message","text":"hi bob"}`))
	ev := recvType(t, connA, "message")
	msgID := ev["message"].(map[string]any)["id"].(string)

	// bob, online, receives the room broadcast already marked delivered
	bobEv := recvType(t, bobConn, "message")
	assert.Equal(t, "delivered", bobEv["message"].(map[string]any)["status"])

	// bob acknowledges; the room sees exactly one receipt
	bobSess.HandleEvent(context.Background(), []byte(`{"type":"read_receipt","message_ids":["`+msgID+`"]}`))
	receipt := recvType(t, connA, "read_receipt")
	assert.Equal(t, bob.ID, receipt["user_id"])
	assertNoEvent(t, connA, "read_receipt")

	stored, err := mem.Get(context.Background(), msgID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, stored.Status)

	// a second identical receipt changes nothing and is not re-broadcast
	bobSess.HandleEvent(context.Background(), []byte(`{"type":"read_receipt","message_ids":["`+msgID+`"]}`))
	assertNoEvent(t, connA, "read_receipt")
}

func TestTypingSurvivesClosedPeer(t *testing.T) {
	deps, _ := newTestDeps(t)
	_, aliceConn := joinChat(t, deps, alice, "bob")
	bobSess, bobConn := joinChat(t, deps, bob, "alice")

	// alice's connection dies without a clean leave
	aliceConn.Close()

	bobSess.HandleEvent(context.Background(), []byte(`{"type":"typing","is_typing":true}`))

	// delivery to the dead session must not block delivery to the rest of
	// the room
	ev := recvType(t, bobConn, "typing")
	assert.Equal(t, bob.ID, ev["user_id"])
	assert.Equal(t, true, ev["is_typing"])
}

func TestDeleteForEveryoneRequiresSender(t *testing.T) {
	deps, mem := newTestDeps(t)
	sessA, connA := joinChat(t, deps, alice, "bob")
	bobSess, bobConn := joinChat(t, deps, bob, "alice")

	sessA.HandleEvent(context.Background(), []byte(`{"type":"message","text":"secret"}`))
	msgID := recvType(t, connA, "message")["message"].(map[string]any)["id"].(string)
	recvType(t, bobConn, "message")

	bobSess.HandleEvent(context.Background(), []byte(`{"type":"delete_message","message_id":"`+msgID+`","delete_for_everyone":true}`))
	errEv := recvType(t, bobConn, "error")
	assert.Contains(t, errEv["message"], "sender")
	assertNoEvent(t, connA, "message_deleted")

	// message intact
	_, err := mem.Get(context.Background(), msgID)
	require.NoError(t, err)

	// soft delete only hides it from bob
	bobSess.HandleEvent(context.Background(), []byte(`{"type":"delete_message","message_id":"`+msgID+`"}`))
	del := recvType(t, connA, "message_deleted")
	assert.Equal(t, false, del["delete_for_everyone"])

	forBob, err := mem.ListRecent(context.Background(), sessA.conv.ID, bob.ID, store.PageSize)
	require.NoError(t, err)
	assert.Empty(t, forBob)
	forAlice, err := mem.ListRecent(context.Background(), sessA.conv.ID, alice.ID, store.PageSize)
	require.NoError(t, err)
	assert.Len(t, forAlice, 1)
}

func TestUpdateMessageBroadcastsToRoom(t *testing.T) {
	deps, _ := newTestDeps(t)
	sessA, connA := joinChat(t, deps, alice, "bob")
	bobSess, bobConn := joinChat(t, deps, bob, "alice")

	sessA.HandleEvent(context.Background(), []byte(`{"type":"message","text":"helo"}`))
	msgID := recvType(t, connA, "message")["message"].(map[string]any)["id"].(string)

	// a non-sender edit is refused without closing anything
	bobSess.HandleEvent(context.Background(), []byte(`{"type":"update_message","message_id":"`+msgID+`","new_text":"hax"}`))
	recvType(t, bobConn, "error")

	sessA.HandleEvent(context.Background(), []byte(`{"type":"update_message","message_id":"`+msgID+`","new_text":"hello"}`))
	ev := recvType(t, bobConn, "message_updated")
	assert.Equal(t, "hello", ev["new_text"])
	assert.Equal(t, alice.ID, ev["updated_by"])
}

func TestEmptyMessageRejected(t *testing.T) {
	deps, _ := newTestDeps(t)
	sess, conn := joinChat(t, deps, alice, "bob")

	sess.HandleEvent(context.Background(), []byte(`{"type":"message","text":"   "}`))
	ev := recvType(t, conn, "error")
	assert.Contains(t, ev["message"], "content")
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	deps, _ := newTestDeps(t)
	sess, conn := joinChat(t, deps, alice, "bob")

	sess.HandleEvent(context.Background(), []byte(`{not json`))
	assertNoEvent(t, conn, "error")
}

func TestLoadMorePagination(t *testing.T) {
	deps, _ := newTestDeps(t)
	sess, conn := joinChat(t, deps, alice, "bob")

	for i := 0; i < store.PageSize+10; i++ {
		sess.HandleEvent(context.Background(), []byte(`{"type":"message","text":"m"}`))
	}
	// oldest visible message of the live page
	var oldest string
	for i := 0; i < store.PageSize+10; i++ {
		ev := recvType(t, conn, "message")
		if i == 10 {
			oldest = ev["message"].(map[string]any)["id"].(string)
		}
	}

	sess.HandleEvent(context.Background(), []byte(`{"type":"load_more","before_id":"`+oldest+`"}`))
	ev := recvType(t, conn, "messages_loaded")
	assert.Equal(t, false, ev["has_more"])
	assert.Len(t, ev["messages"], 10)
}

func TestImageMessage(t *testing.T) {
	deps, _ := newTestDeps(t)
	sess, conn := joinChat(t, deps, alice, "bob")
	bobList := newListListener(deps, bob.ID)

	payload, err := json.Marshal(map[string]any{
		"type":  "message",
		"image": testPNGDataURL(t),
	})
	require.NoError(t, err)
	sess.HandleEvent(context.Background(), payload)

	ev := recvType(t, conn, "message")
	msg := ev["message"].(map[string]any)
	assert.NotEmpty(t, msg["image_url"])
	assert.Nil(t, msg["text"])

	listEv := bobList.recv(t)
	assert.Equal(t, notify.ImagePlaceholder, listEv["last_message"].(map[string]any)["text"])
}

func TestTypingSuppressedByPreference(t *testing.T) {
	deps, mem := newTestDeps(t)
	sessA, _ := joinChat(t, deps, alice, "bob")
	_, bobConn := joinChat(t, deps, bob, "alice")

	mem.SetPreferences(alice.ID, true, false, true)
	sessA.HandleEvent(context.Background(), []byte(`{"type":"typing","is_typing":true}`))
	assertNoEvent(t, bobConn, "typing")
}

func TestReadReceiptSuppressedButStillMarked(t *testing.T) {
	deps, mem := newTestDeps(t)
	sessA, connA := joinChat(t, deps, alice, "bob")
	bobSess, _ := joinChat(t, deps, bob, "alice")

	sessA.HandleEvent(context.Background(), []byte(`{"type":"message","text":"hi"}`))
	msgID := recvType(t, connA, "message")["message"].(map[string]any)["id"].(string)

	mem.SetPreferences(bob.ID, false, true, true)
	bobSess.HandleEvent(context.Background(), []byte(`{"type":"read_receipt","message_ids":["`+msgID+`"]}`))

	// the mark still lands, only the broadcast is withheld
	assertNoEvent(t, connA, "read_receipt")
	stored, err := mem.Get(context.Background(), msgID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, stored.Status)
}

type capturePush struct{ got []notify.PushNotification }

func (c *capturePush) PublishNewMessage(_ context.Context, n notify.PushNotification) error {
	c.got = append(c.got, n)
	return nil
}

func TestPushNotificationRespectsPreference(t *testing.T) {
	deps, mem := newTestDeps(t)
	push := &capturePush{}
	deps.Push = push
	sess, _ := joinChat(t, deps, alice, "bob")

	sess.HandleEvent(context.Background(), []byte(`{"type":"message","text":"first"}`))
	require.Len(t, push.got, 1)
	assert.Equal(t, bob.ID, push.got[0].RecipientID)
	assert.Equal(t, "alice", push.got[0].SenderUsername)
	assert.Equal(t, "first", push.got[0].Preview)

	mem.SetPreferences(bob.ID, true, true, false)
	sess.HandleEvent(context.Background(), []byte(`{"type":"message","text":"second"}`))
	assert.Len(t, push.got, 1)
}

func TestDisconnectCleanup(t *testing.T) {
	deps, mem := newTestDeps(t)
	sess, conn := joinChat(t, deps, alice, "bob")

	online, err := mem.IsOnline(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.True(t, online)

	sess.Leave(context.Background())
	conn.Close()

	online, err = mem.IsOnline(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.False(t, online)
	assert.Equal(t, 0, deps.Router.Size(hub.ConversationGroup(sess.conv.ID)))
}

func testPNGDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var b strings.Builder
	enc := base64.NewEncoder(base64.StdEncoding, &b)
	require.NoError(t, png.Encode(enc, img))
	require.NoError(t, enc.Close())
	return "data:image/png;base64," + b.String()
}
