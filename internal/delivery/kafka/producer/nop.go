package producer

import (
	"context"

	kafka "github.com/vogiaan1904/consultroom/internal/delivery/kafka"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

// nopProducer is used when KAFKA_ENABLED=false. Events are only logged at debug level.
type nopProducer struct {
	l logger.Logger
}

func NewNopProducer(l logger.Logger) Producer {
	return &nopProducer{l: l}
}

func (p *nopProducer) PublishSessionStarted(ctx context.Context, event kafka.SessionStartedEvent) error {
	p.l.Debugf(ctx, "nopProducer: %s session_id=%s", kafka.TopicSessionStarted, event.SessionID)
	return nil
}

func (p *nopProducer) PublishSessionBilled(ctx context.Context, event kafka.SessionBilledEvent) error {
	p.l.Debugf(ctx, "nopProducer: %s session_id=%s minute=%d", kafka.TopicSessionBilled, event.SessionID, event.Minute)
	return nil
}

func (p *nopProducer) PublishSessionEnded(ctx context.Context, event kafka.SessionEndedEvent) error {
	p.l.Debugf(ctx, "nopProducer: %s session_id=%s reason=%s", kafka.TopicSessionEnded, event.SessionID, event.EndReason)
	return nil
}

func (p *nopProducer) PublishQueueJoined(ctx context.Context, event kafka.QueueJoinedEvent) error {
	p.l.Debugf(ctx, "nopProducer: %s request_id=%s", kafka.TopicQueueJoined, event.RequestID)
	return nil
}

func (p *nopProducer) PublishQueueLeft(ctx context.Context, event kafka.QueueLeftEvent) error {
	p.l.Debugf(ctx, "nopProducer: %s request_id=%s reason=%s", kafka.TopicQueueLeft, event.RequestID, event.Reason)
	return nil
}

func (p *nopProducer) PublishQueueAdmitted(ctx context.Context, event kafka.QueueAdmittedEvent) error {
	p.l.Debugf(ctx, "nopProducer: %s request_id=%s", kafka.TopicQueueAdmitted, event.RequestID)
	return nil
}

func (p *nopProducer) PublishCreditsLedger(ctx context.Context, event kafka.CreditsLedgerEvent) error {
	p.l.Debugf(ctx, "nopProducer: %s client_id=%s", kafka.TopicCreditsLedger, event.ClientID)
	return nil
}

func (p *nopProducer) PublishBillingAlert(ctx context.Context, event kafka.BillingAlertEvent) error {
	p.l.Warnf(ctx, "nopProducer: %s session_id=%s error=%s", kafka.TopicBillingAlert, event.SessionID, event.Error)
	return nil
}

func (p *nopProducer) Close() error {
	return nil
}
