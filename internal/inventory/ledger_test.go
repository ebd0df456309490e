package inventory

import (
	"errors"
	"testing"

	apperrors "github.com/vogiaan1904/ticketbottle-allocation/internal/errors"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/models"
)

func newEvent(quantity, remaining int) *models.Event {
	return &models.Event{
		ID: "evt-1",
		TicketTypes: []models.TicketType{
			{ID: "general", Name: "General", Quantity: quantity, Remaining: remaining},
		},
	}
}

func TestReserve_Success(t *testing.T) {
	evt := newEvent(10, 10)

	if err := Reserve(evt, "general", 3); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}

	tt := evt.TicketType("general")
	if tt.Remaining != 7 {
		t.Errorf("expected remaining 7, got %d", tt.Remaining)
	}
	if tt.IsSoldOut {
		t.Error("expected not sold out")
	}
}

func TestReserve_SetsSoldOutAtZero(t *testing.T) {
	evt := newEvent(2, 2)

	if err := Reserve(evt, "general", 2); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}

	tt := evt.TicketType("general")
	if tt.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", tt.Remaining)
	}
	if !tt.IsSoldOut {
		t.Error("expected sold out")
	}
}

func TestReserve_InsufficientInventory(t *testing.T) {
	evt := newEvent(10, 1)

	err := Reserve(evt, "general", 2)
	if !errors.Is(err, apperrors.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got: %v", err)
	}

	if evt.TicketType("general").Remaining != 1 {
		t.Error("remaining must not change on failed reserve")
	}
}

func TestReserve_UnknownTicketType(t *testing.T) {
	evt := newEvent(10, 10)

	err := Reserve(evt, "vip", 1)
	if !errors.Is(err, apperrors.ErrTicketTypeUnavailable) {
		t.Fatalf("expected ErrTicketTypeUnavailable, got: %v", err)
	}
}

func TestRelease_RestoresAndClearsSoldOut(t *testing.T) {
	evt := newEvent(5, 0)
	evt.TicketTypes[0].IsSoldOut = true

	if err := Release(evt, "general", 2); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}

	tt := evt.TicketType("general")
	if tt.Remaining != 2 {
		t.Errorf("expected remaining 2, got %d", tt.Remaining)
	}
	if tt.IsSoldOut {
		t.Error("expected sold out cleared")
	}
}

func TestRelease_ClampedAtQuantity(t *testing.T) {
	evt := newEvent(5, 4)

	if err := Release(evt, "general", 3); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}

	if got := evt.TicketType("general").Remaining; got != 5 {
		t.Errorf("expected remaining clamped to 5, got %d", got)
	}
}

func TestCommit_LeavesCountersUntouched(t *testing.T) {
	evt := newEvent(5, 3)

	if err := Commit(evt, "general", 2); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}

	if got := evt.TicketType("general").Remaining; got != 3 {
		t.Errorf("expected remaining 3, got %d", got)
	}
}
