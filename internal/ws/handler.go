package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/ce-phus/atlas-path-relocation/internal/auth"
	"github.com/ce-phus/atlas-path-relocation/internal/models"
	"github.com/ce-phus/atlas-path-relocation/pkg/apperrors"
)

const pongWait = 60 * time.Second

type Config struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
}

// Gateway owns the websocket routes. Each accepted connection gets a client
// handle, a session and a write pump; the handler goroutine itself is the
// read loop, so inbound events stay in arrival order.
type Gateway struct {
	deps      Deps
	validator *auth.Validator
	cfg       Config
}

func NewGateway(deps Deps, validator *auth.Validator, cfg Config) *Gateway {
	return &Gateway{deps: deps, validator: validator, cfg: cfg}
}

// ServeChat handles /ws/chat/:username?token=...
func (g *Gateway) ServeChat(c *websocket.Conn) {
	user, ok := g.authenticate(c)
	if !ok {
		return
	}
	ctx := context.Background()
	client := NewClient(c)
	session := NewChatSession(g.deps, client, user)

	if err := session.Join(ctx, c.Params("username")); err != nil {
		g.deps.Logger.Warnw("chat join rejected", "user", user.Username, "error", err)
		closeWith(c, joinCloseCode(err), "could not join conversation")
		return
	}

	activeConnections.WithLabelValues("chat").Inc()
	defer activeConnections.WithLabelValues("chat").Dec()

	go client.WritePump(g.cfg.PingInterval, g.cfg.WriteDeadline, g.deps.Logger)
	defer func() {
		session.Leave(ctx)
		client.Close()
	}()

	g.readLoop(c, func(data []byte) { session.HandleEvent(ctx, data) })
}

// ServeChatList handles /ws/chatlist?token=...
func (g *Gateway) ServeChatList(c *websocket.Conn) {
	user, ok := g.authenticate(c)
	if !ok {
		return
	}
	ctx := context.Background()
	client := NewClient(c)
	session := NewChatListSession(g.deps, client, user)
	if err := session.Join(ctx); err != nil {
		closeWith(c, CloseInternal, "could not join chat list")
		return
	}

	activeConnections.WithLabelValues("chatlist").Inc()
	defer activeConnections.WithLabelValues("chatlist").Dec()

	go client.WritePump(g.cfg.PingInterval, g.cfg.WriteDeadline, g.deps.Logger)
	defer func() {
		session.Leave(ctx)
		client.Close()
	}()

	g.readLoop(c, func([]byte) {})
}

// ServeStatus handles /ws/status?token=...
func (g *Gateway) ServeStatus(c *websocket.Conn) {
	user, ok := g.authenticate(c)
	if !ok {
		return
	}
	ctx := context.Background()
	client := NewClient(c)
	session := NewStatusSession(g.deps, client, user)
	if err := session.Join(ctx); err != nil {
		closeWith(c, CloseInternal, "could not join status channel")
		return
	}

	activeConnections.WithLabelValues("status").Inc()
	defer activeConnections.WithLabelValues("status").Dec()

	go client.WritePump(g.cfg.PingInterval, g.cfg.WriteDeadline, g.deps.Logger)
	defer func() {
		session.Leave(ctx)
		client.Close()
	}()

	g.readLoop(c, func(data []byte) { session.HandleEvent(ctx, data) })
}

func (g *Gateway) authenticate(c *websocket.Conn) (models.User, bool) {
	token := c.Query("token")
	if token == "" {
		closeWith(c, CloseNoToken, "token required")
		return models.User{}, false
	}
	claims, err := g.validator.Validate(token)
	if err != nil {
		closeWith(c, CloseInvalidToken, "invalid token")
		return models.User{}, false
	}
	return models.User{ID: claims.UserID, Username: claims.Username}, true
}

func (g *Gateway) readLoop(c *websocket.Conn, handle func([]byte)) {
	c.SetReadLimit(g.cfg.MaxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

func joinCloseCode(err error) int {
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		switch ae.Code {
		case apperrors.CodeValidation, apperrors.CodeNotFound:
			return CloseBadPeer
		}
	}
	return CloseInternal
}

func closeWith(c *websocket.Conn, code int, reason string) {
	_ = c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second))
	_ = c.Close()
}
