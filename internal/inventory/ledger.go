// Package inventory holds the ledger operations on an Event aggregate's
// ticket-type counters. The operations mutate the aggregate in memory;
// atomicity comes from applying them inside EventRepository.Mutate, which
// persists the whole aggregate under an optimistic lock.
package inventory

import (
	"github.com/vogiaan1904/ticketbottle-allocation/internal/errors"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/models"
)

// Reserve decrements remaining by qty, failing if not enough is left.
// remaining == 0 marks the type sold out.
func Reserve(event *models.Event, ticketTypeID string, qty int) error {
	tt := event.TicketType(ticketTypeID)
	if tt == nil {
		return errors.ErrTicketTypeUnavailable
	}

	if tt.Remaining < qty {
		return errors.ErrInsufficientInventory
	}

	tt.Remaining -= qty
	tt.IsSoldOut = tt.Remaining == 0

	return nil
}

// Release restores qty units, clamped so remaining never exceeds quantity.
func Release(event *models.Event, ticketTypeID string, qty int) error {
	tt := event.TicketType(ticketTypeID)
	if tt == nil {
		return errors.ErrTicketTypeUnavailable
	}

	tt.Remaining += qty
	if tt.Remaining > tt.Quantity {
		tt.Remaining = tt.Quantity
	}
	if tt.Remaining > 0 {
		tt.IsSoldOut = false
	}

	return nil
}

// Commit finalizes a reservation. The units were already subtracted at
// reserve time; the named transition exists for auditability.
func Commit(event *models.Event, ticketTypeID string, qty int) error {
	if event.TicketType(ticketTypeID) == nil {
		return errors.ErrTicketTypeUnavailable
	}
	return nil
}
