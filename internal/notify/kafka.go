package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used by KafkaSender.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes notifications as JSON to a topic. Messages are keyed
// by kind so every consumer sees one kind in order.
type KafkaSender struct {
	writer messageWriter
	topic  string
}

// NewKafkaSender returns a sender writing to topic on brokers.
func NewKafkaSender(brokers []string, topic string) (*KafkaSender, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sender requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka sender requires a topic")
	}
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

// Send implements Sender.
func (s *KafkaSender) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	at := n.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(n.Kind),
		Value: payload,
		Time:  at,
	}); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
