package queue

import "time"

// ReservationJob is the unit of work flowing through the ingress queue and
// its delayed mirror. Token is the client-supplied deduplication token; both
// delivery paths are safe to run for the same token.
type ReservationJob struct {
	Token        string    `json:"token"`
	EntryID      string    `json:"entry_id"`
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}
