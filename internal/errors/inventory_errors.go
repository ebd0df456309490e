package errors

import "errors"

var (
	ErrInsufficientInventory = errors.New("insufficient inventory for ticket type")
	ErrTicketTypeUnavailable = errors.New("ticket type not available for this event")
	ErrEventNotFound         = errors.New("event not found")
	ErrEventCancelled        = errors.New("event has been cancelled")
)
