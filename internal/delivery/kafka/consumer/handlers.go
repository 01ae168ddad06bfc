package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka"
	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/service"
)

// permanent reports errors that a redelivery would not fix.
func permanent(err error) bool {
	return errors.Is(err, service.ErrNotFound) ||
		errors.Is(err, service.ErrInvalidRequest) ||
		errors.Is(err, service.ErrInvalidAmount) ||
		errors.Is(err, service.ErrInvalidCapacity)
}

func (c *Consumer) decode(ctx context.Context, op string, msg *sarama.ConsumerMessage, v any) bool {
	if err := json.Unmarshal(msg.Value, v); err != nil {
		c.l.Warnf(ctx, "delivery.kafka.consumer.handlers.%s: dropping malformed message at offset %d: %v", op, msg.Offset, err)
		return false
	}
	return true
}

func (c *Consumer) settle(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if permanent(err) {
		c.l.Warnf(ctx, "delivery.kafka.consumer.handlers.%s: dropping message: %v", op, err)
		return nil
	}
	c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.%s: %v", op, err)
	return err
}

func (c *Consumer) HandleProfileUpdated(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.ConsultantProfileUpdatedEvent
	if !c.decode(ctx, "HandleProfileUpdated", message, &e) {
		return nil
	}

	methods := make([]models.CommunicationMethod, 0, len(e.CommunicationMethods))
	for _, m := range e.CommunicationMethods {
		methods = append(methods, models.CommunicationMethod(m))
	}

	_, err := c.registry.UpsertConsultant(ctx, service.UpsertConsultantInput{
		ConsultantID:         e.ConsultantID,
		PricePerMinute:       models.Money(e.PricePerMinute),
		Capacity:             e.Capacity,
		Specialties:          e.Specialties,
		CommunicationMethods: methods,
	})
	if err != nil {
		return c.settle(ctx, "HandleProfileUpdated", err)
	}

	// A raised capacity frees slots for waiting clients.
	c.matching.OnCapacityFreed(ctx, e.ConsultantID)
	return nil
}

func (c *Consumer) HandlePresenceChanged(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.ConsultantPresenceChangedEvent
	if !c.decode(ctx, "HandlePresenceChanged", message, &e) {
		return nil
	}

	_, err := c.matching.SetPresence(ctx, e.ConsultantID, e.Online)
	return c.settle(ctx, "HandlePresenceChanged", err)
}

func (c *Consumer) HandleCreditsPurchased(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.CreditsPurchasedEvent
	if !c.decode(ctx, "HandleCreditsPurchased", message, &e) {
		return nil
	}

	out, err := c.ledger.Purchase(ctx, service.PurchaseInput{
		PurchaseID:  e.PurchaseID,
		ClientID:    e.ClientID,
		Amount:      models.Money(e.Amount),
		BonusAmount: models.Money(e.BonusAmount),
	})
	if err != nil {
		return c.settle(ctx, "HandleCreditsPurchased", err)
	}

	if out.Applied {
		c.l.Infof(ctx, "Credited purchase %s to client %s", e.PurchaseID, e.ClientID)
	}
	return nil
}

func (c *Consumer) HandleDisconnected(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.ConsultationDisconnectedEvent
	if !c.decode(ctx, "HandleDisconnected", message, &e) {
		return nil
	}

	_, err := c.sessions.EndSession(ctx, e.SessionID, models.EndReasonDisconnected)
	return c.settle(ctx, "HandleDisconnected", err)
}
