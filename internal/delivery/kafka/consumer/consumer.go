package consumer

import (
	"context"
	"sync"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka"
	"github.com/vogiaan1904/consultroom/internal/service"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

var topics = []string{
	kafka.TopicConsultantProfileUpdated,
	kafka.TopicConsultantPresenceChanged,
	kafka.TopicCreditsPurchased,
	kafka.TopicConsultationDisconnected,
}

type Consumer struct {
	consGr   sarama.ConsumerGroup
	registry service.RegistryService
	matching service.MatchingService
	sessions service.SessionManager
	ledger   service.LedgerService
	l        logger.Logger
	wg       sync.WaitGroup
}

func NewConsumer(
	consGr sarama.ConsumerGroup,
	registry service.RegistryService,
	matching service.MatchingService,
	sessions service.SessionManager,
	ledger service.LedgerService,
	l logger.Logger,
) *Consumer {
	return &Consumer{
		consGr:   consGr,
		registry: registry,
		matching: matching,
		sessions: sessions,
		ledger:   ledger,
		l:        l,
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	switch msg.Topic {
	case kafka.TopicConsultantProfileUpdated:
		return c.HandleProfileUpdated(ctx, msg)
	case kafka.TopicConsultantPresenceChanged:
		return c.HandlePresenceChanged(ctx, msg)
	case kafka.TopicCreditsPurchased:
		return c.HandleCreditsPurchased(ctx, msg)
	case kafka.TopicConsultationDisconnected:
		return c.HandleDisconnected(ctx, msg)
	default:
		c.l.Warnf(ctx, "Unknown topic %s", msg.Topic)
		return nil
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Go(func() {
		for {
			if err := c.consGr.Consume(ctx, topics, c); err != nil {
				c.l.Errorf(ctx, "delivery.kafka.consumer.consumer.Start: %v", err)
			}

			if ctx.Err() != nil {
				c.l.Infof(ctx, "delivery.kafka.consumer.consumer.Start: %v", ctx.Err())
				return
			}
		}
	})

	// Handle errors
	c.wg.Go(func() {
		for err := range c.consGr.Errors() {
			c.l.Errorf(ctx, "delivery.kafka.consumer.consumer.Start: %v", err)
		}
	})

	c.l.Infof(ctx, "Consumer is consuming topics: %v", topics)
	return nil
}

func (c *Consumer) Close() error {
	if err := c.consGr.Close(); err != nil {
		return err
	}

	c.wg.Wait()
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	c.l.Debug(context.Background(), "Consumer group session started")
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.l.Debug(context.Background(), "Consumer group session ended")
	return nil
}

// ConsumeClaim leaves a message unmarked when its handler fails, so it is redelivered after a rebalance.
func (c *Consumer) ConsumeClaim(ss sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if err := c.processMessage(ss.Context(), message); err != nil {
				c.l.Errorf(ss.Context(), "delivery.kafka.consumer.consumer.ConsumeClaim: topic %s offset %d: %v",
					message.Topic, message.Offset, err)
				continue
			}

			ss.MarkMessage(message, "")

		case <-ss.Context().Done():
			return nil
		}
	}
}
