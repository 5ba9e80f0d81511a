package hub

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge mirrors group sends over redis pub/sub so a multi-instance
// deployment delivers to sessions connected elsewhere. The session and store
// logic never see it; the hub keeps working unchanged without one.
type RedisBridge struct {
	rdb        *redis.Client
	hub        *Hub
	prefix     string
	instanceID string
	logger     *zap.SugaredLogger
}

type bridgeEnvelope struct {
	Source  string          `json:"src"`
	Payload json.RawMessage `json:"payload"`
}

func NewRedisBridge(rdb *redis.Client, h *Hub, prefix string, logger *zap.SugaredLogger) *RedisBridge {
	if prefix == "" {
		prefix = "chat"
	}
	return &RedisBridge{
		rdb:        rdb,
		hub:        h,
		prefix:     prefix,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

func (b *RedisBridge) channel(group string) string {
	return b.prefix + ":group:" + group
}

// Start hooks the bridge into the hub and consumes remote events until ctx is
// cancelled.
func (b *RedisBridge) Start(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, b.prefix+":group:*")
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.hub.SetPublisher(b.Publish)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.handle(msg)
			}
		}
	}()
	return nil
}

func (b *RedisBridge) handle(msg *redis.Message) {
	var env bridgeEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.logger.Warnw("undecodable bridge payload", "channel", msg.Channel, "error", err)
		return
	}
	if env.Source == b.instanceID {
		return
	}
	group := strings.TrimPrefix(msg.Channel, b.prefix+":group:")
	b.hub.DeliverLocal(group, env.Payload)
}

func (b *RedisBridge) Publish(ctx context.Context, group string, payload []byte) error {
	env, err := json.Marshal(bridgeEnvelope{Source: b.instanceID, Payload: payload})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel(group), env).Err()
}
