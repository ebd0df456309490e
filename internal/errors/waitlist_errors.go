package errors

import "errors"

var (
	ErrEntryNotFound     = errors.New("waitlist entry not found")
	ErrOfferExpired      = errors.New("offer has expired")
	ErrAlreadyPurchased  = errors.New("user already holds a purchased ticket for this event")
	ErrDuplicateRequest  = errors.New("duplicate reservation request")
	ErrNotEntryOwner     = errors.New("waitlist entry belongs to another user")
	ErrOfferTokenInvalid = errors.New("offer token is invalid")

	// ErrStaleTransition signals a lost conditional update: the entry was no
	// longer in the expected status. Callers treat it as already handled.
	ErrStaleTransition = errors.New("waitlist entry status changed concurrently")
)
