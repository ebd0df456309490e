package kafka

import "time"

// Events consumed by the allocation service

type ReservationRequestedEvent struct {
	Token        string    `json:"token"`
	EntryID      string    `json:"entry_id"`
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	Timestamp    time.Time `json:"timestamp"`
}

type PaymentCompletedEvent struct {
	EntryID          string    `json:"entry_id"`
	EventID          string    `json:"event_id"`
	UserID           string    `json:"user_id"`
	PaymentReference string    `json:"payment_reference"`
	Amount           int64     `json:"amount"`
	Timestamp        time.Time `json:"timestamp"`
}

type EventCancelledEvent struct {
	EventID   string    `json:"event_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Events published by the allocation service

type OfferCreatedEvent struct {
	EntryID        string    `json:"entry_id"`
	EventID        string    `json:"event_id"`
	UserID         string    `json:"user_id"`
	TicketTypeID   string    `json:"ticket_type_id"`
	Quantity       int       `json:"quantity"`
	OfferExpiresAt time.Time `json:"offer_expires_at"`
	Timestamp      time.Time `json:"timestamp"`
}

type OfferExpiredEvent struct {
	EntryID      string    `json:"entry_id"`
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	Reason       string    `json:"reason"` // deadline_passed, user_released
	Timestamp    time.Time `json:"timestamp"`
}

type TicketIssuedEvent struct {
	TicketID         string    `json:"ticket_id"`
	EntryID          string    `json:"entry_id"`
	EventID          string    `json:"event_id"`
	UserID           string    `json:"user_id"`
	PaymentReference string    `json:"payment_reference"`
	Timestamp        time.Time `json:"timestamp"`
}

// Topic names
const (
	TopicReservationRequested = "RESERVATION_REQUESTED"
	TopicPaymentCompleted     = "PAYMENT_COMPLETED"
	TopicEventCancelled       = "EVENT_CANCELLED"
	TopicOfferCreated         = "OFFER_CREATED"
	TopicOfferExpired         = "OFFER_EXPIRED"
	TopicTicketIssued         = "TICKET_ISSUED"
)
