package models

import "time"

// Event is the aggregate the ledger mutates. Version backs the optimistic
// lock used by the mongo repository; it must only change through
// EventRepository.Mutate.
type Event struct {
	ID          string       `bson:"_id" json:"id"`
	Name        string       `bson:"name" json:"name"`
	Description string       `bson:"description,omitempty" json:"description,omitempty"`
	Category    string       `bson:"category,omitempty" json:"category,omitempty"`
	Cancelled   bool         `bson:"cancelled" json:"cancelled"`
	TicketTypes []TicketType `bson:"ticket_types" json:"ticket_types"`
	Version     int64        `bson:"version" json:"-"`
	StartsAt    time.Time    `bson:"starts_at" json:"starts_at"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
}

type TicketType struct {
	ID        string `bson:"id" json:"id"`
	Name      string `bson:"name" json:"name"`
	Price     int64  `bson:"price" json:"price"` // minor currency units
	Quantity  int    `bson:"quantity" json:"quantity"`
	Remaining int    `bson:"remaining" json:"remaining"`
	IsSoldOut bool   `bson:"is_sold_out" json:"is_sold_out"`
}

// TicketType returns a pointer into the aggregate's slice so ledger
// operations mutate the event in place.
func (e *Event) TicketType(id string) *TicketType {
	for i := range e.TicketTypes {
		if e.TicketTypes[i].ID == id {
			return &e.TicketTypes[i]
		}
	}
	return nil
}

func (e *Event) HasAvailability() bool {
	for i := range e.TicketTypes {
		if e.TicketTypes[i].Remaining > 0 {
			return true
		}
	}
	return false
}
