package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	kafka "github.com/vogiaan1904/ticketbottle-allocation/internal/delivery/kafka"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
)

type Producer interface {
	PublishReservationRequested(ctx context.Context, event kafka.ReservationRequestedEvent) error
	PublishOfferCreated(ctx context.Context, event kafka.OfferCreatedEvent) error
	PublishOfferExpired(ctx context.Context, event kafka.OfferExpiredEvent) error
	PublishTicketIssued(ctx context.Context, event kafka.TicketIssuedEvent) error
	Close() error
}

type kafkaProducer struct {
	producer sarama.SyncProducer
	l        logger.Logger
}

func NewProducer(prod sarama.SyncProducer, l logger.Logger) Producer {
	return &kafkaProducer{
		producer: prod,
		l:        l,
	}
}

func (p *kafkaProducer) PublishReservationRequested(ctx context.Context, event kafka.ReservationRequestedEvent) error {
	event.Timestamp = time.Now()
	return p.publishEvent(kafka.TopicReservationRequested, event.EventID, event)
}

func (p *kafkaProducer) PublishOfferCreated(ctx context.Context, event kafka.OfferCreatedEvent) error {
	event.Timestamp = time.Now()
	return p.publishEvent(kafka.TopicOfferCreated, event.EventID, event)
}

func (p *kafkaProducer) PublishOfferExpired(ctx context.Context, event kafka.OfferExpiredEvent) error {
	event.Timestamp = time.Now()
	return p.publishEvent(kafka.TopicOfferExpired, event.EventID, event)
}

func (p *kafkaProducer) PublishTicketIssued(ctx context.Context, event kafka.TicketIssuedEvent) error {
	event.Timestamp = time.Now()
	return p.publishEvent(kafka.TopicTicketIssued, event.EventID, event)
}

func (p *kafkaProducer) publishEvent(topic string, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key), // Partition by event_id for per-event ordering
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.l.Error("Failed to send kafka message",
			"topic", topic,
			"error", err,
		)
		return fmt.Errorf("failed to send kafka message: %w", err)
	}

	p.l.Debug("Kafka message sent",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"key", key,
	)

	return nil
}

func (p *kafkaProducer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
