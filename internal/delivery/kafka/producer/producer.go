package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	kafka "github.com/vogiaan1904/consultroom/internal/delivery/kafka"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

type Producer interface {
	PublishSessionStarted(ctx context.Context, event kafka.SessionStartedEvent) error
	PublishSessionBilled(ctx context.Context, event kafka.SessionBilledEvent) error
	PublishSessionEnded(ctx context.Context, event kafka.SessionEndedEvent) error
	PublishQueueJoined(ctx context.Context, event kafka.QueueJoinedEvent) error
	PublishQueueLeft(ctx context.Context, event kafka.QueueLeftEvent) error
	PublishQueueAdmitted(ctx context.Context, event kafka.QueueAdmittedEvent) error
	PublishCreditsLedger(ctx context.Context, event kafka.CreditsLedgerEvent) error
	PublishBillingAlert(ctx context.Context, event kafka.BillingAlertEvent) error
	Close() error
}

type implProducer struct {
	l    logger.Logger
	prod sarama.SyncProducer
}

func NewProducer(prod sarama.SyncProducer, l logger.Logger) Producer {
	return &implProducer{
		l:    l,
		prod: prod,
	}
}

func (p *implProducer) send(ctx context.Context, op, topic, key string, event any) error {
	val, err := json.Marshal(event)
	if err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.%s: %v", op, err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(time.Now().Format(time.RFC3339)),
			},
		},
	}

	if _, _, err = p.prod.SendMessage(msg); err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.%s: %v", op, err)
		return err
	}

	return nil
}

// Session events are keyed by session id so one session's events stay in order.

func (p *implProducer) PublishSessionStarted(ctx context.Context, event kafka.SessionStartedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, "PublishSessionStarted", kafka.TopicSessionStarted, event.SessionID, event)
}

func (p *implProducer) PublishSessionBilled(ctx context.Context, event kafka.SessionBilledEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, "PublishSessionBilled", kafka.TopicSessionBilled, event.SessionID, event)
}

func (p *implProducer) PublishSessionEnded(ctx context.Context, event kafka.SessionEndedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, "PublishSessionEnded", kafka.TopicSessionEnded, event.SessionID, event)
}

// Queue and ledger events are keyed by client id.

func (p *implProducer) PublishQueueJoined(ctx context.Context, event kafka.QueueJoinedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, "PublishQueueJoined", kafka.TopicQueueJoined, event.ClientID, event)
}

func (p *implProducer) PublishQueueLeft(ctx context.Context, event kafka.QueueLeftEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, "PublishQueueLeft", kafka.TopicQueueLeft, event.ClientID, event)
}

func (p *implProducer) PublishQueueAdmitted(ctx context.Context, event kafka.QueueAdmittedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, "PublishQueueAdmitted", kafka.TopicQueueAdmitted, event.ClientID, event)
}

func (p *implProducer) PublishCreditsLedger(ctx context.Context, event kafka.CreditsLedgerEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, "PublishCreditsLedger", kafka.TopicCreditsLedger, event.ClientID, event)
}

func (p *implProducer) PublishBillingAlert(ctx context.Context, event kafka.BillingAlertEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, "PublishBillingAlert", kafka.TopicBillingAlert, event.SessionID, event)
}

func (p *implProducer) Close() error {
	if err := p.prod.Close(); err != nil {
		return err
	}

	return nil
}
