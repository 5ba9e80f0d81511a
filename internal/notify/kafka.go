package notify

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// PushNotification is the event consumed by the notification workers. It is
// keyed by recipient so per-user delivery stays ordered.
type PushNotification struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	RecipientID    string    `json:"recipient_id"`
	SenderUsername string    `json:"sender_username"`
	Preview        string    `json:"preview"`
	CreatedAt      time.Time `json:"created_at"`
}

// PushPublisher dispatches best-effort push notifications. Never on the
// critical delivery path.
type PushPublisher interface {
	PublishNewMessage(ctx context.Context, n PushNotification) error
}

type KafkaPublisher struct {
	writer *kafkago.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
	}}
}

func (p *KafkaPublisher) PublishNewMessage(ctx context.Context, n PushNotification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(n.RecipientID),
		Value: b,
		Time:  time.Now(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops notifications; used when kafka is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishNewMessage(context.Context, PushNotification) error { return nil }
