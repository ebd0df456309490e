package models

import "time"

// Ticket is created exactly once per finalized purchase. PaymentReference
// carries the gateway's reference and doubles as the idempotency key.
type Ticket struct {
	ID               string    `bson:"_id" json:"id"`
	EntryID          string    `bson:"entry_id" json:"entry_id"`
	EventID          string    `bson:"event_id" json:"event_id"`
	UserID           string    `bson:"user_id" json:"user_id"`
	TicketTypeID     string    `bson:"ticket_type_id" json:"ticket_type_id"`
	Quantity         int       `bson:"quantity" json:"quantity"`
	PaymentReference string    `bson:"payment_reference" json:"payment_reference"`
	IssuedAt         time.Time `bson:"issued_at" json:"issued_at"`
}
