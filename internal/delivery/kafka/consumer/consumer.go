package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	kafka "github.com/vogiaan1904/ticketbottle-allocation/internal/delivery/kafka"
	apperrors "github.com/vogiaan1904/ticketbottle-allocation/internal/errors"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/queue"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/service"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
)

// Consumer drives the ingress topics. Reservation requests are keyed by
// event id at the producer, so all jobs for one event land on one partition
// and apply in order.
type Consumer struct {
	group sarama.ConsumerGroup
	svc   service.WaitlistService
	jobs  queue.JobStore
	l     logger.Logger
}

func NewConsumer(group sarama.ConsumerGroup, svc service.WaitlistService, jobs queue.JobStore, l logger.Logger) *Consumer {
	return &Consumer{
		group: group,
		svc:   svc,
		jobs:  jobs,
		l:     l,
	}
}

// Start consumes until ctx is cancelled. Rebalances re-enter the Consume
// loop; a cancelled context exits it.
func (c *Consumer) Start(ctx context.Context) error {
	topics := []string{
		kafka.TopicReservationRequested,
		kafka.TopicPaymentCompleted,
		kafka.TopicEventCancelled,
	}

	c.l.Info("Kafka consumer starting", "topics", topics)

	for {
		if err := c.group.Consume(ctx, topics, c); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("consumer group error: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	c.l.Info("Consumer group session started", "member_id", session.MemberID())
	return nil
}

func (c *Consumer) Cleanup(session sarama.ConsumerGroupSession) error {
	c.l.Info("Consumer group session ended", "member_id", session.MemberID())
	return nil
}

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.processMessage(session.Context(), message); err != nil {
				c.l.Error("Failed to process message",
					"topic", message.Topic,
					"partition", message.Partition,
					"offset", message.Offset,
					"error", err,
				)
				// Failed reservation jobs are still marked: the mirror
				// queue redelivers them. The payment and cancellation
				// topics have no second path, so their offsets stay
				// uncommitted and the group redelivers after a rebalance.
				if message.Topic != kafka.TopicReservationRequested {
					continue
				}
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	switch message.Topic {
	case kafka.TopicReservationRequested:
		return c.handleReservationRequested(ctx, message.Value)
	case kafka.TopicPaymentCompleted:
		return c.handlePaymentCompleted(ctx, message.Value)
	case kafka.TopicEventCancelled:
		return c.handleEventCancelled(ctx, message.Value)
	default:
		c.l.Warn("Message on unexpected topic", "topic", message.Topic)
		return nil
	}
}

func (c *Consumer) handleReservationRequested(ctx context.Context, value []byte) error {
	var event kafka.ReservationRequestedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		c.l.Error("Dropping undecodable reservation requested event", "error", err)
		return nil
	}

	done, err := c.jobs.IsCompleted(ctx, event.Token)
	if err != nil {
		c.l.Warn("Failed to check job status, applying anyway",
			"token", event.Token,
			"error", err,
		)
	}
	if done {
		c.l.Debug("Reservation job already handled", "token", event.Token)
		return nil
	}

	job := queue.ReservationJob{
		Token:        event.Token,
		EntryID:      event.EntryID,
		EventID:      event.EventID,
		UserID:       event.UserID,
		TicketTypeID: event.TicketTypeID,
		Quantity:     event.Quantity,
		EnqueuedAt:   event.EnqueuedAt,
	}

	if err := c.svc.ApplyReservation(ctx, job); err != nil {
		return fmt.Errorf("failed to apply reservation: %w", err)
	}

	if err := c.jobs.MarkCompleted(ctx, event.Token); err != nil {
		c.l.Warn("Failed to mark reservation job completed",
			"token", event.Token,
			"error", err,
		)
	}

	return nil
}

func (c *Consumer) handlePaymentCompleted(ctx context.Context, value []byte) error {
	var event kafka.PaymentCompletedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		// Poison message; redelivery cannot fix it.
		c.l.Error("Dropping undecodable payment completed event", "error", err)
		return nil
	}

	_, err := c.svc.FinalizePurchase(ctx, service.FinalizePurchaseInput{
		EntryID:          event.EntryID,
		PaymentReference: event.PaymentReference,
	})
	if err != nil {
		// Terminal outcomes will not change on redelivery.
		if errors.Is(err, apperrors.ErrOfferExpired) ||
			errors.Is(err, apperrors.ErrAlreadyPurchased) ||
			errors.Is(err, apperrors.ErrEntryNotFound) {
			c.l.Warn("Payment completed event not applicable",
				"entry_id", event.EntryID,
				"payment_reference", event.PaymentReference,
				"reason", err,
			)
			return nil
		}
		return fmt.Errorf("failed to finalize purchase for entry %s: %w", event.EntryID, err)
	}

	return nil
}

func (c *Consumer) handleEventCancelled(ctx context.Context, value []byte) error {
	var event kafka.EventCancelledEvent
	if err := json.Unmarshal(value, &event); err != nil {
		c.l.Error("Dropping undecodable event cancelled event", "error", err)
		return nil
	}

	if err := c.svc.ExpireWaitingForEvent(ctx, event.EventID); err != nil {
		return fmt.Errorf("failed to expire waiting entries for event %s: %w", event.EventID, err)
	}

	return nil
}
