package models

import "time"

type EntryStatus string

const (
	EntryStatusWaiting   EntryStatus = "waiting"
	EntryStatusOffered   EntryStatus = "offered"
	EntryStatusPurchased EntryStatus = "purchased"
	EntryStatusExpired   EntryStatus = "expired"
)

// WaitlistEntry is the allocation unit. One active (waiting or offered)
// entry exists per user per event, enforced by a partial unique index.
type WaitlistEntry struct {
	ID             string      `bson:"_id" json:"id"`
	EventID        string      `bson:"event_id" json:"event_id"`
	UserID         string      `bson:"user_id" json:"user_id"`
	TicketTypeID   string      `bson:"ticket_type_id" json:"ticket_type_id"`
	Quantity       int         `bson:"quantity" json:"quantity"`
	Status         EntryStatus `bson:"status" json:"status"`
	OfferExpiresAt *time.Time  `bson:"offer_expires_at,omitempty" json:"offer_expires_at,omitempty"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `bson:"updated_at" json:"updated_at"`
}

func (e *WaitlistEntry) IsActive() bool {
	return e.Status == EntryStatusWaiting || e.Status == EntryStatusOffered
}

func (e *WaitlistEntry) IsTerminal() bool {
	return e.Status == EntryStatusPurchased || e.Status == EntryStatusExpired
}

func (e *WaitlistEntry) OfferExpired(now time.Time) bool {
	if e.Status != EntryStatusOffered || e.OfferExpiresAt == nil {
		return false
	}
	return !now.Before(*e.OfferExpiresAt)
}
