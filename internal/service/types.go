package service

import (
	"time"

	"github.com/vogiaan1904/ticketbottle-allocation/internal/models"
)

type JoinWaitlistInput struct {
	EventID      string `json:"event_id" validate:"required"`
	UserID       string `json:"user_id" validate:"required"`
	TicketTypeID string `json:"ticket_type_id" validate:"required"`
	Quantity     int    `json:"quantity" validate:"gte=1,lte=10"`
	// DedupToken is supplied by the client so retried joins collapse into
	// one reservation. Generated server-side when absent.
	DedupToken string `json:"dedup_token"`
}

type JoinWaitlistOutput struct {
	Entry    *models.WaitlistEntry `json:"entry"`
	Position int64                 `json:"position"`
}

type QueuePositionOutput struct {
	EntryID        string             `json:"entry_id"`
	Status         models.EntryStatus `json:"status"`
	Position       int64              `json:"position,omitempty"`
	OfferExpiresAt *time.Time         `json:"offer_expires_at,omitempty"`
	OfferToken     string             `json:"offer_token,omitempty"`
}

type TicketTypeAvailability struct {
	TicketTypeID string `json:"ticket_type_id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	Remaining    int    `json:"remaining"`
	IsSoldOut    bool   `json:"is_sold_out"`
}

type AvailabilityOutput struct {
	EventID     string                   `json:"event_id"`
	TicketTypes []TicketTypeAvailability `json:"ticket_types"`
	IsSoldOut   bool                     `json:"is_sold_out"`
}

type FinalizePurchaseInput struct {
	EntryID          string `json:"entry_id" validate:"required"`
	PaymentReference string `json:"payment_reference" validate:"required"`
	OfferToken       string `json:"offer_token"`
}
