package ws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ce-phus/atlas-path-relocation/internal/hub"
)

func TestStatusSessionBroadcastsTransitions(t *testing.T) {
	deps, mem := newTestDeps(t)
	ctx := context.Background()

	// bob watches the global presence feed
	bobConn := NewClient(nil)
	bobSess := NewStatusSession(deps, bobConn, bob)
	require.NoError(t, bobSess.Join(ctx))
	recvType(t, bobConn, "user_status") // bob's own online event

	aliceConn := NewClient(nil)
	aliceSess := NewStatusSession(deps, aliceConn, alice)
	require.NoError(t, aliceSess.Join(ctx))

	ev := recvType(t, bobConn, "user_status")
	assert.Equal(t, alice.ID, ev["user_id"])
	assert.Equal(t, "alice", ev["username"])
	assert.Equal(t, true, ev["is_online"])

	online, err := mem.IsOnline(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, online)

	aliceSess.Leave(ctx)
	ev = recvType(t, bobConn, "user_status")
	assert.Equal(t, alice.ID, ev["user_id"])
	assert.Equal(t, false, ev["is_online"])

	online, err = mem.IsOnline(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, online)

	// leaving is idempotent, no second offline broadcast
	aliceSess.Leave(ctx)
	assertNoEvent(t, bobConn, "user_status")
}

func TestStatusSessionCustomStatus(t *testing.T) {
	deps, mem := newTestDeps(t)
	ctx := context.Background()

	sess := NewStatusSession(deps, NewClient(nil), alice)
	require.NoError(t, sess.Join(ctx))

	sess.HandleEvent(ctx, []byte(`{"type":"update_status","status":"in a meeting"}`))
	p, err := mem.Profile(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "in a meeting", p.CustomStatus)

	// clearing falls back to the default label
	sess.HandleEvent(ctx, []byte(`{"type":"update_status"}`))
	p, err = mem.Profile(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "online", p.CustomStatus)
}

func TestChatListSessionRelaysUpdates(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()

	listConn := NewClient(nil)
	listSess := NewChatListSession(deps, listConn, bob)
	require.NoError(t, listSess.Join(ctx))

	// a chat session elsewhere sends bob a message
	chatSess, chatConn := joinChat(t, deps, alice, "bob")
	chatSess.HandleEvent(ctx, []byte(`{"type":"message","text":"ping"}`))
	recvType(t, chatConn, "message")

	ev := recvType(t, listConn, "chatlist_update")
	assert.Equal(t, float64(1), ev["unread_increment"])

	listSess.Leave(ctx)
	assert.Equal(t, 0, deps.Router.Size(hub.ChatListGroup(bob.ID)))
}
