// Package notify dispatches organizer notifications about event decisions.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// Notifier sends approval and denial notices. Delivery is best-effort.
type Notifier interface {
	SendApproval(ctx context.Context, e *model.Event) error
	SendDenial(ctx context.Context, e *model.Event, feedback string) error
}

// Message is the wire form of a notification.
type Message struct {
	Kind        model.NotificationKind `json:"kind"`
	EventID     string                 `json:"event_id"`
	EventName   string                 `json:"event_name"`
	OrganizerID string                 `json:"organizer_id"`
	Feedback    string                 `json:"feedback,omitempty"`
	SentAt      time.Time              `json:"sent_at"`
}

// NewMessage builds the message for e.
func NewMessage(kind model.NotificationKind, e *model.Event, feedback string) Message {
	return Message{
		Kind:        kind,
		EventID:     e.ID,
		EventName:   e.Name,
		OrganizerID: e.OrganizerID,
		Feedback:    feedback,
		SentAt:      time.Now().UTC(),
	}
}

// Log writes notifications to the structured log. Used in development.
type Log struct{}

func (Log) SendApproval(_ context.Context, e *model.Event) error {
	log.WithFields(log.Fields{"event_id": e.ID, "organizer_id": e.OrganizerID}).
		Infof("event %q was approved", e.Name)
	return nil
}

func (Log) SendDenial(_ context.Context, e *model.Event, feedback string) error {
	log.WithFields(log.Fields{"event_id": e.ID, "organizer_id": e.OrganizerID, "feedback": feedback}).
		Infof("event %q was not approved", e.Name)
	return nil
}

// Redis publishes notifications on a pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis creates a Redis notifier publishing to channel.
func NewRedis(client *redis.Client, channel string) *Redis {
	return &Redis{client: client, channel: channel}
}

func (r *Redis) SendApproval(ctx context.Context, e *model.Event) error {
	return r.publish(ctx, NewMessage(model.NotifyApproval, e, ""))
}

func (r *Redis) SendDenial(ctx context.Context, e *model.Event, feedback string) error {
	return r.publish(ctx, NewMessage(model.NotifyDenial, e, feedback))
}

func (r *Redis) publish(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Kafka writes notifications to a topic, keyed by event ID.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka creates a Kafka notifier.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka notifier requires at least one broker")
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
	}, nil
}

func (k *Kafka) SendApproval(ctx context.Context, e *model.Event) error {
	return k.write(ctx, NewMessage(model.NotifyApproval, e, ""))
}

func (k *Kafka) SendDenial(ctx context.Context, e *model.Event, feedback string) error {
	return k.write(ctx, NewMessage(model.NotifyDenial, e, feedback))
}

func (k *Kafka) write(ctx context.Context, m Message) error {
	msg, err := kafkaMessage(m)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

func kafkaMessage(m Message) (kafka.Message, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode notification: %w", err)
	}
	return kafka.Message{
		Key:   []byte(m.EventID),
		Value: payload,
		Time:  m.SentAt,
	}, nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
