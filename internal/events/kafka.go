package events

import (
  "context"
  "encoding/json"
  "fmt"
  "time"

  "github.com/segmentio/kafka-go"

  "github.com/trackside-org/trackside-backend/internal/logger"
)

type KafkaConfig struct {
  Brokers     []string
  Topic       string
}

// KafkaPublisher writes events keyed by ticket id so every event for a ticket
// lands on the same partition in order.
type KafkaPublisher struct {
  writer      *kafka.Writer
  log         *logger.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, log *logger.Logger) *KafkaPublisher {
  w := &kafka.Writer{
    Addr:                   kafka.TCP(cfg.Brokers...),
    Topic:                  cfg.Topic,
    Balancer:               &kafka.Hash{},
    MaxAttempts:            3,
    BatchTimeout:           10 * time.Millisecond,
    ReadTimeout:            5 * time.Second,
    WriteTimeout:           5 * time.Second,
    RequiredAcks:           kafka.RequireOne,
    AllowAutoTopicCreation: true,
  }
  return &KafkaPublisher{writer: w, log: log.With("service", "KafkaPublisher", "topic", cfg.Topic)}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
  msg, err := encodeMessage(evt)
  if err != nil {
    return err
  }
  if err := p.writer.WriteMessages(ctx, msg); err != nil {
    p.log.Error("Failed to write event to kafka", "type", evt.Type, "error", err)
    return fmt.Errorf("failed to write message: %w", err)
  }
  p.log.Debug("Event written to kafka", "type", evt.Type, "ticketID", evt.TicketID)
  return nil
}

func (p *KafkaPublisher) Close() error {
  return p.writer.Close()
}

func encodeMessage(evt Event) (kafka.Message, error) {
  value, err := json.Marshal(evt)
  if err != nil {
    return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
  }
  return kafka.Message{
    Key:   []byte(evt.TicketID.String()),
    Value: value,
    Time:  evt.OccurredAt,
    Headers: []kafka.Header{
      {Key: "event-type", Value: []byte(evt.Type)},
    },
  }, nil
}
