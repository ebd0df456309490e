package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vogiaan1904/ticketbottle-allocation/config"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/cache"
	kafka "github.com/vogiaan1904/ticketbottle-allocation/internal/delivery/kafka"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/delivery/kafka/producer"
	apperrors "github.com/vogiaan1904/ticketbottle-allocation/internal/errors"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/inventory"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/models"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/queue"
	repo "github.com/vogiaan1904/ticketbottle-allocation/internal/repository/mongo"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/clock"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
)

type WaitlistService interface {
	JoinWaitlist(ctx context.Context, in JoinWaitlistInput) (*JoinWaitlistOutput, error)
	ApplyReservation(ctx context.Context, job queue.ReservationJob) error
	QueuePosition(ctx context.Context, entryID string) (*QueuePositionOutput, error)
	ReleaseOffer(ctx context.Context, entryID, userID string) error
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	Availability(ctx context.Context, eventID string) (*AvailabilityOutput, error)
	SearchEvents(ctx context.Context, query string) ([]models.Event, error)
	ListCategories(ctx context.Context) ([]string, error)
	FinalizePurchase(ctx context.Context, in FinalizePurchaseInput) (*models.Ticket, error)
	ExpireOffer(ctx context.Context, entryID string) error
	ExpireWaitingForEvent(ctx context.Context, eventID string) error
}

type waitlistService struct {
	eventRepo    repo.EventRepository
	waitlistRepo repo.WaitlistRepository
	ticketRepo   repo.TicketRepository
	cache        *cache.Client
	prod         producer.Producer
	jobs         queue.JobStore
	mirror       queue.MirrorQueue
	tokens       *OfferTokenIssuer
	clk          clock.Clock
	offerCfg     config.OfferConfig
	resvCfg      config.ReservationConfig
	cacheCfg     config.CacheConfig
	l            logger.Logger
}

func NewWaitlistService(
	eventRepo repo.EventRepository,
	waitlistRepo repo.WaitlistRepository,
	ticketRepo repo.TicketRepository,
	cacheClient *cache.Client,
	prod producer.Producer,
	jobs queue.JobStore,
	mirror queue.MirrorQueue,
	tokens *OfferTokenIssuer,
	clk clock.Clock,
	offerCfg config.OfferConfig,
	resvCfg config.ReservationConfig,
	cacheCfg config.CacheConfig,
	l logger.Logger,
) WaitlistService {
	return &waitlistService{
		eventRepo:    eventRepo,
		waitlistRepo: waitlistRepo,
		ticketRepo:   ticketRepo,
		cache:        cacheClient,
		prod:         prod,
		jobs:         jobs,
		mirror:       mirror,
		tokens:       tokens,
		clk:          clk,
		offerCfg:     offerCfg,
		resvCfg:      resvCfg,
		cacheCfg:     cacheCfg,
		l:            l,
	}
}

// JoinWaitlist creates the entry in waiting status and hands the actual
// ledger work to the ingress queue. The mirror is scheduled before the
// primary publish so a crash between the two still delivers the job.
func (s *waitlistService) JoinWaitlist(ctx context.Context, in JoinWaitlistInput) (*JoinWaitlistOutput, error) {
	evt, err := s.eventRepo.Get(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if evt.Cancelled {
		return nil, apperrors.ErrEventCancelled
	}
	if evt.TicketType(in.TicketTypeID) == nil {
		return nil, apperrors.ErrTicketTypeUnavailable
	}

	ticket, err := s.ticketRepo.GetByUserAndEvent(ctx, in.UserID, in.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing ticket: %w", err)
	}
	if ticket != nil {
		return nil, apperrors.ErrAlreadyPurchased
	}

	// An active entry makes a repeat join an idempotent no-op.
	if existing, err := s.waitlistRepo.GetActiveByUserAndEvent(ctx, in.UserID, in.EventID); err == nil {
		return s.joinOutput(ctx, existing)
	} else if !errors.Is(err, apperrors.ErrEntryNotFound) {
		return nil, err
	}

	token := in.DedupToken
	if token == "" {
		token = uuid.New().String()
	}

	fresh, err := s.jobs.Begin(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to register dedup token: %w", err)
	}
	if !fresh {
		// Token replay without an active entry: the earlier request already
		// ran to completion. Report the current state instead of re-queueing.
		if existing, err := s.waitlistRepo.GetActiveByUserAndEvent(ctx, in.UserID, in.EventID); err == nil {
			return s.joinOutput(ctx, existing)
		}
		return nil, apperrors.ErrDuplicateRequest
	}

	now := s.clk.Now()
	entry := &models.WaitlistEntry{
		ID:           uuid.New().String(),
		EventID:      in.EventID,
		UserID:       in.UserID,
		TicketTypeID: in.TicketTypeID,
		Quantity:     in.Quantity,
		Status:       models.EntryStatusWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.waitlistRepo.Create(ctx, entry); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateRequest) {
			// Lost the unique-index race to a concurrent join.
			if existing, err := s.waitlistRepo.GetActiveByUserAndEvent(ctx, in.UserID, in.EventID); err == nil {
				return s.joinOutput(ctx, existing)
			}
		}
		return nil, err
	}

	job := queue.ReservationJob{
		Token:        token,
		EntryID:      entry.ID,
		EventID:      entry.EventID,
		UserID:       entry.UserID,
		TicketTypeID: entry.TicketTypeID,
		Quantity:     entry.Quantity,
		EnqueuedAt:   now,
	}

	if err := s.mirror.Push(ctx, job, now.Add(s.resvCfg.MirrorDelay)); err != nil {
		s.l.Error("Failed to schedule mirror job",
			"token", token,
			"entry_id", entry.ID,
			"error", err,
		)
	}

	if err := s.prod.PublishReservationRequested(ctx, kafka.ReservationRequestedEvent{
		Token:        job.Token,
		EntryID:      job.EntryID,
		EventID:      job.EventID,
		UserID:       job.UserID,
		TicketTypeID: job.TicketTypeID,
		Quantity:     job.Quantity,
		EnqueuedAt:   job.EnqueuedAt,
	}); err != nil {
		// The mirror path will pick the job up after the delay.
		s.l.Error("Failed to publish reservation request, relying on mirror",
			"token", token,
			"entry_id", entry.ID,
			"error", err,
		)
	}

	s.l.Info("User joined waitlist",
		"entry_id", entry.ID,
		"event_id", entry.EventID,
		"user_id", entry.UserID,
		"ticket_type_id", entry.TicketTypeID,
		"quantity", entry.Quantity,
	)

	return s.joinOutput(ctx, entry)
}

func (s *waitlistService) joinOutput(ctx context.Context, entry *models.WaitlistEntry) (*JoinWaitlistOutput, error) {
	out := &JoinWaitlistOutput{Entry: entry}

	if entry.Status == models.EntryStatusWaiting {
		ahead, err := s.waitlistRepo.CountWaitingAhead(ctx, entry.EventID, entry.TicketTypeID, entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to count waiting entries: %w", err)
		}
		out.Position = ahead + 1
	}

	return out, nil
}

// ApplyReservation attempts to turn a waiting entry into an offer. It is the
// single worker-side entry point for both delivery paths and is idempotent:
// an entry that already left waiting status is a no-op.
func (s *waitlistService) ApplyReservation(ctx context.Context, job queue.ReservationJob) error {
	entry, err := s.waitlistRepo.Get(ctx, job.EntryID)
	if err != nil {
		if errors.Is(err, apperrors.ErrEntryNotFound) {
			s.l.Warn("Reservation job for unknown entry", "entry_id", job.EntryID)
			return nil
		}
		return err
	}

	if entry.Status != models.EntryStatusWaiting {
		return nil
	}

	offered, err := s.tryOffer(ctx, entry)
	if err != nil {
		return err
	}

	if !offered {
		s.l.Debug("No inventory for entry, stays waiting",
			"entry_id", entry.ID,
			"ticket_type_id", entry.TicketTypeID,
		)
	}

	return nil
}

// tryOffer soft-reserves inventory and flips the entry to offered. The
// reserve happens first; a lost status race rolls the units back.
func (s *waitlistService) tryOffer(ctx context.Context, entry *models.WaitlistEntry) (bool, error) {
	_, err := s.eventRepo.Mutate(ctx, entry.EventID, func(evt *models.Event) error {
		if evt.Cancelled {
			return apperrors.ErrEventCancelled
		}
		return inventory.Reserve(evt, entry.TicketTypeID, entry.Quantity)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientInventory) {
			return false, nil
		}
		if errors.Is(err, apperrors.ErrEventCancelled) {
			return false, nil
		}
		return false, fmt.Errorf("failed to reserve inventory: %w", err)
	}

	expiresAt := s.clk.Now().Add(s.offerCfg.Window)
	err = s.waitlistRepo.TransitionStatus(ctx, entry.ID, models.EntryStatusWaiting, models.EntryStatusOffered, &expiresAt)
	if err != nil {
		// Entry left waiting status concurrently; give the units back.
		s.releaseInventory(ctx, entry.EventID, entry.TicketTypeID, entry.Quantity)
		if errors.Is(err, apperrors.ErrStaleTransition) {
			return false, nil
		}
		return false, err
	}

	s.cache.Invalidate(ctx, cache.AvailabilityKey(entry.EventID))

	if err := s.prod.PublishOfferCreated(ctx, kafka.OfferCreatedEvent{
		EntryID:        entry.ID,
		EventID:        entry.EventID,
		UserID:         entry.UserID,
		TicketTypeID:   entry.TicketTypeID,
		Quantity:       entry.Quantity,
		OfferExpiresAt: expiresAt,
	}); err != nil {
		s.l.Error("Failed to publish offer created event",
			"entry_id", entry.ID,
			"error", err,
		)
	}

	s.l.Info("Offer created",
		"entry_id", entry.ID,
		"event_id", entry.EventID,
		"ticket_type_id", entry.TicketTypeID,
		"offer_expires_at", expiresAt,
	)

	return true, nil
}

func (s *waitlistService) QueuePosition(ctx context.Context, entryID string) (*QueuePositionOutput, error) {
	return cache.Lookup(ctx, s.cache, cache.PositionKey(entryID), s.cacheCfg.PositionTTL,
		func(ctx context.Context) (*QueuePositionOutput, error) {
			return s.loadQueuePosition(ctx, entryID)
		})
}

func (s *waitlistService) loadQueuePosition(ctx context.Context, entryID string) (*QueuePositionOutput, error) {
	entry, err := s.waitlistRepo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	out := &QueuePositionOutput{
		EntryID: entry.ID,
		Status:  entry.Status,
	}

	switch entry.Status {
	case models.EntryStatusWaiting:
		ahead, err := s.waitlistRepo.CountWaitingAhead(ctx, entry.EventID, entry.TicketTypeID, entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to count waiting entries: %w", err)
		}
		out.Position = ahead + 1

	case models.EntryStatusOffered:
		out.OfferExpiresAt = entry.OfferExpiresAt
		token, err := s.tokens.Generate(entry)
		if err != nil {
			s.l.Error("Failed to generate offer token", "entry_id", entry.ID, "error", err)
		} else {
			out.OfferToken = token
		}
	}

	return out, nil
}

// ReleaseOffer handles an explicit user cancel. Waiting entries just leave
// the queue; offered entries give their units back and trigger promotion.
func (s *waitlistService) ReleaseOffer(ctx context.Context, entryID, userID string) error {
	entry, err := s.waitlistRepo.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.UserID != userID {
		return apperrors.ErrNotEntryOwner
	}

	switch entry.Status {
	case models.EntryStatusWaiting:
		err := s.waitlistRepo.TransitionStatus(ctx, entry.ID, models.EntryStatusWaiting, models.EntryStatusExpired, nil)
		if errors.Is(err, apperrors.ErrStaleTransition) {
			return nil
		}
		return err

	case models.EntryStatusOffered:
		return s.expireOfferedEntry(ctx, entry, "user_released")

	case models.EntryStatusPurchased:
		return apperrors.ErrAlreadyPurchased

	default:
		// Already expired.
		return nil
	}
}

func (s *waitlistService) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return cache.Lookup(ctx, s.cache, cache.EventKey(eventID), s.cacheCfg.EventTTL,
		func(ctx context.Context) (*models.Event, error) {
			return s.eventRepo.Get(ctx, eventID)
		})
}

func (s *waitlistService) Availability(ctx context.Context, eventID string) (*AvailabilityOutput, error) {
	return cache.Lookup(ctx, s.cache, cache.AvailabilityKey(eventID), s.cacheCfg.AvailabilityTTL,
		func(ctx context.Context) (*AvailabilityOutput, error) {
			evt, err := s.eventRepo.Get(ctx, eventID)
			if err != nil {
				return nil, err
			}

			out := &AvailabilityOutput{
				EventID:   evt.ID,
				IsSoldOut: !evt.HasAvailability(),
			}
			for _, tt := range evt.TicketTypes {
				out.TicketTypes = append(out.TicketTypes, TicketTypeAvailability{
					TicketTypeID: tt.ID,
					Name:         tt.Name,
					Price:        tt.Price,
					Remaining:    tt.Remaining,
					IsSoldOut:    tt.IsSoldOut,
				})
			}
			return out, nil
		})
}

func (s *waitlistService) SearchEvents(ctx context.Context, query string) ([]models.Event, error) {
	return cache.Lookup(ctx, s.cache, cache.SearchKey(query), s.cacheCfg.SearchTTL,
		func(ctx context.Context) ([]models.Event, error) {
			return s.eventRepo.Search(ctx, query, 50)
		})
}

func (s *waitlistService) ListCategories(ctx context.Context) ([]string, error) {
	return cache.Lookup(ctx, s.cache, cache.CategoriesKey(), s.cacheCfg.CategoryTTL,
		func(ctx context.Context) ([]string, error) {
			return s.eventRepo.ListCategories(ctx)
		})
}

// FinalizePurchase turns a live offer into a ticket. The payment reference
// is the idempotency key: replayed webhooks return the already-issued ticket.
func (s *waitlistService) FinalizePurchase(ctx context.Context, in FinalizePurchaseInput) (*models.Ticket, error) {
	if existing, err := s.ticketRepo.GetByPaymentReference(ctx, in.PaymentReference); err != nil {
		return nil, err
	} else if existing != nil {
		s.l.Info("Duplicate purchase finalization, returning issued ticket",
			"payment_reference", in.PaymentReference,
			"ticket_id", existing.ID,
		)
		return existing, nil
	}

	if in.OfferToken != "" {
		tokenEntryID, err := s.tokens.Validate(in.OfferToken)
		if err != nil {
			return nil, err
		}
		if tokenEntryID != in.EntryID {
			return nil, apperrors.ErrOfferTokenInvalid
		}
	}

	entry, err := s.waitlistRepo.Get(ctx, in.EntryID)
	if err != nil {
		return nil, err
	}

	if entry.Status == models.EntryStatusPurchased {
		// The status transition won on a previous attempt but the ticket
		// insert may have failed afterwards. Issue it now instead of
		// rejecting, or the paid user is stuck without a ticket.
		existing, err := s.ticketRepo.GetByUserAndEvent(ctx, entry.UserID, entry.EventID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperrors.ErrAlreadyPurchased
		}

		s.l.Warn("Recovering purchase with missing ticket",
			"entry_id", entry.ID,
			"payment_reference", in.PaymentReference,
		)
		return s.issueTicket(ctx, entry, in.PaymentReference)
	}
	if entry.Status != models.EntryStatusOffered || entry.OfferExpired(s.clk.Now()) {
		return nil, apperrors.ErrOfferExpired
	}

	err = s.waitlistRepo.TransitionStatus(ctx, entry.ID, models.EntryStatusOffered, models.EntryStatusPurchased, nil)
	if err != nil {
		if errors.Is(err, apperrors.ErrStaleTransition) {
			return nil, apperrors.ErrOfferExpired
		}
		return nil, err
	}

	return s.issueTicket(ctx, entry, in.PaymentReference)
}

func (s *waitlistService) issueTicket(ctx context.Context, entry *models.WaitlistEntry, paymentRef string) (*models.Ticket, error) {
	ticket := &models.Ticket{
		ID:               uuid.New().String(),
		EntryID:          entry.ID,
		EventID:          entry.EventID,
		UserID:           entry.UserID,
		TicketTypeID:     entry.TicketTypeID,
		Quantity:         entry.Quantity,
		PaymentReference: paymentRef,
		IssuedAt:         s.clk.Now(),
	}

	if err := s.ticketRepo.Create(ctx, ticket); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateRequest) {
			return s.ticketRepo.GetByPaymentReference(ctx, paymentRef)
		}
		return nil, fmt.Errorf("failed to insert ticket: %w", err)
	}

	// Units were consumed at offer time; commit is the named audit
	// transition on the ledger.
	if _, err := s.eventRepo.Mutate(ctx, entry.EventID, func(evt *models.Event) error {
		return inventory.Commit(evt, entry.TicketTypeID, entry.Quantity)
	}); err != nil {
		s.l.Error("Failed to record ledger commit",
			"entry_id", entry.ID,
			"error", err,
		)
	}

	if err := s.prod.PublishTicketIssued(ctx, kafka.TicketIssuedEvent{
		TicketID:         ticket.ID,
		EntryID:          entry.ID,
		EventID:          entry.EventID,
		UserID:           entry.UserID,
		PaymentReference: paymentRef,
	}); err != nil {
		s.l.Error("Failed to publish ticket issued event",
			"ticket_id", ticket.ID,
			"error", err,
		)
	}

	s.l.Info("Purchase finalized",
		"ticket_id", ticket.ID,
		"entry_id", entry.ID,
		"payment_reference", paymentRef,
	)

	return ticket, nil
}

// ExpireOffer applies the offered -> expired transition for an entry whose
// deadline passed. Safe to call repeatedly and concurrently: the conditional
// transition guarantees the release happens at most once.
func (s *waitlistService) ExpireOffer(ctx context.Context, entryID string) error {
	entry, err := s.waitlistRepo.Get(ctx, entryID)
	if err != nil {
		if errors.Is(err, apperrors.ErrEntryNotFound) {
			return nil
		}
		return err
	}

	if !entry.OfferExpired(s.clk.Now()) {
		return nil
	}

	return s.expireOfferedEntry(ctx, entry, "deadline_passed")
}

func (s *waitlistService) expireOfferedEntry(ctx context.Context, entry *models.WaitlistEntry, reason string) error {
	err := s.waitlistRepo.TransitionStatus(ctx, entry.ID, models.EntryStatusOffered, models.EntryStatusExpired, nil)
	if err != nil {
		if errors.Is(err, apperrors.ErrStaleTransition) {
			// Another sweep or the purchase path got here first.
			return nil
		}
		return err
	}

	s.releaseInventory(ctx, entry.EventID, entry.TicketTypeID, entry.Quantity)

	if err := s.prod.PublishOfferExpired(ctx, kafka.OfferExpiredEvent{
		EntryID:      entry.ID,
		EventID:      entry.EventID,
		UserID:       entry.UserID,
		TicketTypeID: entry.TicketTypeID,
		Quantity:     entry.Quantity,
		Reason:       reason,
	}); err != nil {
		s.l.Error("Failed to publish offer expired event",
			"entry_id", entry.ID,
			"error", err,
		)
	}

	s.l.Info("Offer expired",
		"entry_id", entry.ID,
		"event_id", entry.EventID,
		"reason", reason,
	)

	s.promote(ctx, entry.EventID, entry.TicketTypeID)

	return nil
}

// releaseRetries bounds the release attempts. The caller has already won the
// status transition, so a release that never lands leaks the units until an
// operator reconciles the ledger; retrying here makes that window small.
const releaseRetries = 3

func (s *waitlistService) releaseInventory(ctx context.Context, eventID, ticketTypeID string, qty int) {
	var err error
	for attempt := 0; attempt < releaseRetries; attempt++ {
		_, err = s.eventRepo.Mutate(ctx, eventID, func(evt *models.Event) error {
			return inventory.Release(evt, ticketTypeID, qty)
		})
		if err == nil {
			s.cache.Invalidate(ctx, cache.AvailabilityKey(eventID))
			return
		}
	}

	s.l.Error("Failed to release inventory, units need manual reconciliation",
		"event_id", eventID,
		"ticket_type_id", ticketTypeID,
		"quantity", qty,
		"error", err,
	)
}

// promote cascades released inventory into the waiting queue: oldest entry
// first, until units or waiting entries run out. Entries whose status races
// away mid-promotion are skipped and the next candidate is tried.
func (s *waitlistService) promote(ctx context.Context, eventID, ticketTypeID string) {
	for {
		next, err := s.waitlistRepo.OldestWaiting(ctx, eventID, ticketTypeID)
		if err != nil {
			if !errors.Is(err, apperrors.ErrEntryNotFound) {
				s.l.Error("Failed to find next waiting entry",
					"event_id", eventID,
					"ticket_type_id", ticketTypeID,
					"error", err,
				)
			}
			return
		}

		offered, err := s.tryOffer(ctx, next)
		if err != nil {
			s.l.Error("Failed to promote waiting entry",
				"entry_id", next.ID,
				"error", err,
			)
			return
		}
		if !offered {
			// tryOffer reports false both when inventory ran out and when
			// the entry's status raced away. Distinguish via the entry.
			cur, err := s.waitlistRepo.Get(ctx, next.ID)
			if err != nil || cur.Status == models.EntryStatusWaiting {
				return
			}
			continue
		}
	}
}

// ExpireWaitingForEvent handles an event cancellation: waiting entries move
// straight to expired with no ledger effect.
func (s *waitlistService) ExpireWaitingForEvent(ctx context.Context, eventID string) error {
	entries, err := s.waitlistRepo.FindByEventAndStatus(ctx, eventID, models.EntryStatusWaiting)
	if err != nil {
		return err
	}

	expired := 0
	for _, entry := range entries {
		err := s.waitlistRepo.TransitionStatus(ctx, entry.ID, models.EntryStatusWaiting, models.EntryStatusExpired, nil)
		if err != nil {
			if errors.Is(err, apperrors.ErrStaleTransition) {
				continue
			}
			return err
		}
		expired++
	}

	s.l.Info("Expired waiting entries for cancelled event",
		"event_id", eventID,
		"count", expired,
	)

	return nil
}
