package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafka "github.com/vogiaan1904/ticketbottle-allocation/internal/delivery/kafka"
	apperrors "github.com/vogiaan1904/ticketbottle-allocation/internal/errors"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/models"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/queue"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/service"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
)

type stubWaitlistService struct {
	applyCalls    int
	applyErr      error
	finalizeCalls int
	finalizeErr   error
	expireCalls   int
}

func (s *stubWaitlistService) JoinWaitlist(context.Context, service.JoinWaitlistInput) (*service.JoinWaitlistOutput, error) {
	return nil, nil
}

func (s *stubWaitlistService) ApplyReservation(context.Context, queue.ReservationJob) error {
	s.applyCalls++
	return s.applyErr
}

func (s *stubWaitlistService) QueuePosition(context.Context, string) (*service.QueuePositionOutput, error) {
	return nil, nil
}

func (s *stubWaitlistService) ReleaseOffer(context.Context, string, string) error { return nil }

func (s *stubWaitlistService) GetEvent(context.Context, string) (*models.Event, error) {
	return nil, nil
}

func (s *stubWaitlistService) Availability(context.Context, string) (*service.AvailabilityOutput, error) {
	return nil, nil
}

func (s *stubWaitlistService) SearchEvents(context.Context, string) ([]models.Event, error) {
	return nil, nil
}

func (s *stubWaitlistService) ListCategories(context.Context) ([]string, error) { return nil, nil }

func (s *stubWaitlistService) FinalizePurchase(context.Context, service.FinalizePurchaseInput) (*models.Ticket, error) {
	s.finalizeCalls++
	if s.finalizeErr != nil {
		return nil, s.finalizeErr
	}
	return &models.Ticket{}, nil
}

func (s *stubWaitlistService) ExpireOffer(context.Context, string) error { return nil }

func (s *stubWaitlistService) ExpireWaitingForEvent(context.Context, string) error {
	s.expireCalls++
	return nil
}

type memConsumerJobStore struct {
	completed map[string]bool
}

func newMemConsumerJobStore() *memConsumerJobStore {
	return &memConsumerJobStore{completed: map[string]bool{}}
}

func (s *memConsumerJobStore) Begin(_ context.Context, token string) (bool, error) {
	return true, nil
}

func (s *memConsumerJobStore) MarkCompleted(_ context.Context, token string) error {
	s.completed[token] = true
	return nil
}

func (s *memConsumerJobStore) IsCompleted(_ context.Context, token string) (bool, error) {
	return s.completed[token], nil
}

func newTestConsumer(svc *stubWaitlistService, jobs queue.JobStore) *Consumer {
	return NewConsumer(nil, svc, jobs, logger.NewNop())
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestHandleReservationRequestedAppliesAndCompletes(t *testing.T) {
	svc := &stubWaitlistService{}
	jobs := newMemConsumerJobStore()
	c := newTestConsumer(svc, jobs)

	payload := mustMarshal(t, kafka.ReservationRequestedEvent{
		Token:        "tok-1",
		EntryID:      "entry-1",
		EventID:      "ev-1",
		UserID:       "user-1",
		TicketTypeID: "tt-ga",
		Quantity:     2,
	})

	if err := c.handleReservationRequested(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if svc.applyCalls != 1 {
		t.Errorf("apply calls = %d, want 1", svc.applyCalls)
	}
	if !jobs.completed["tok-1"] {
		t.Error("job must be marked completed after apply")
	}
}

func TestHandleReservationRequestedSkipsCompletedJob(t *testing.T) {
	svc := &stubWaitlistService{}
	jobs := newMemConsumerJobStore()
	jobs.completed["tok-1"] = true
	c := newTestConsumer(svc, jobs)

	payload := mustMarshal(t, kafka.ReservationRequestedEvent{Token: "tok-1"})

	if err := c.handleReservationRequested(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if svc.applyCalls != 0 {
		t.Errorf("apply calls = %d, want 0 for completed job", svc.applyCalls)
	}
}

func TestHandleReservationRequestedPropagatesApplyError(t *testing.T) {
	svc := &stubWaitlistService{applyErr: errors.New("store down")}
	jobs := newMemConsumerJobStore()
	c := newTestConsumer(svc, jobs)

	payload := mustMarshal(t, kafka.ReservationRequestedEvent{Token: "tok-1"})

	if err := c.handleReservationRequested(context.Background(), payload); err == nil {
		t.Fatal("expected error from failed apply")
	}
	if jobs.completed["tok-1"] {
		t.Error("failed job must not be marked completed")
	}
}

func TestHandlePaymentCompletedSwallowsTerminalErrors(t *testing.T) {
	for _, terminal := range []error{
		apperrors.ErrOfferExpired,
		apperrors.ErrAlreadyPurchased,
		apperrors.ErrEntryNotFound,
	} {
		svc := &stubWaitlistService{finalizeErr: terminal}
		c := newTestConsumer(svc, newMemConsumerJobStore())

		payload := mustMarshal(t, kafka.PaymentCompletedEvent{
			EntryID:          "entry-1",
			PaymentReference: "pay-123",
		})

		if err := c.handlePaymentCompleted(context.Background(), payload); err != nil {
			t.Errorf("terminal error %v must not propagate, got: %v", terminal, err)
		}
	}
}

func TestHandlePaymentCompletedPropagatesTransientErrors(t *testing.T) {
	svc := &stubWaitlistService{finalizeErr: errors.New("store down")}
	c := newTestConsumer(svc, newMemConsumerJobStore())

	payload := mustMarshal(t, kafka.PaymentCompletedEvent{
		EntryID:          "entry-1",
		PaymentReference: "pay-123",
	})

	if err := c.handlePaymentCompleted(context.Background(), payload); err == nil {
		t.Fatal("transient error must propagate so the offset stays uncommitted")
	}
}

func TestUndecodablePayloadsAreDropped(t *testing.T) {
	svc := &stubWaitlistService{}
	c := newTestConsumer(svc, newMemConsumerJobStore())

	garbage := []byte("{not json")

	if err := c.handleReservationRequested(context.Background(), garbage); err != nil {
		t.Errorf("reservation: %v", err)
	}
	if err := c.handlePaymentCompleted(context.Background(), garbage); err != nil {
		t.Errorf("payment: %v", err)
	}
	if err := c.handleEventCancelled(context.Background(), garbage); err != nil {
		t.Errorf("cancellation: %v", err)
	}
	if svc.applyCalls != 0 || svc.finalizeCalls != 0 || svc.expireCalls != 0 {
		t.Error("no service call expected for undecodable payloads")
	}
}

func TestHandleEventCancelledExpiresWaiting(t *testing.T) {
	svc := &stubWaitlistService{}
	c := newTestConsumer(svc, newMemConsumerJobStore())

	payload := mustMarshal(t, kafka.EventCancelledEvent{EventID: "ev-1", Reason: "organizer"})

	if err := c.handleEventCancelled(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if svc.expireCalls != 1 {
		t.Errorf("expire calls = %d, want 1", svc.expireCalls)
	}
}
