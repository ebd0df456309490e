package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/vogiaan1904/ticketbottle-allocation/internal/errors"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/queue"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/service"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
)

type Handler struct {
	svc      service.WaitlistService
	sweeper  service.Sweeper
	mirror   queue.MirrorRunner
	validate *validator.Validate
	l        logger.Logger
}

func NewHandler(svc service.WaitlistService, sweeper service.Sweeper, mirror queue.MirrorRunner, l logger.Logger) *Handler {
	return &Handler{
		svc:      svc,
		sweeper:  sweeper,
		mirror:   mirror,
		validate: validator.New(),
		l:        l,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.HTTPLogger(h.l))

	r.Get("/healthz", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/waitlist", h.joinWaitlist)
		r.Get("/waitlist/{entryId}", h.queuePosition)
		r.Delete("/waitlist/{entryId}", h.releaseOffer)

		r.Get("/events/{eventId}", h.getEvent)
		r.Get("/events/{eventId}/availability", h.availability)
		r.Get("/events/search", h.searchEvents)
		r.Get("/events/categories", h.listCategories)

		r.Post("/webhooks/payment", h.paymentWebhook)
	})

	return r
}

func (h *Handler) joinWaitlist(w http.ResponseWriter, r *http.Request) {
	var in service.JoinWaitlistInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.svc.JoinWaitlist(r.Context(), in)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, out)
}

func (h *Handler) queuePosition(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")
	if entryID == "" {
		respondError(w, http.StatusBadRequest, "entry id is required")
		return
	}

	out, err := h.svc.QueuePosition(r.Context(), entryID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) releaseOffer(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")
	userID := r.Header.Get("X-User-ID")
	if entryID == "" || userID == "" {
		respondError(w, http.StatusBadRequest, "entry id and X-User-ID header are required")
		return
	}

	if err := h.svc.ReleaseOffer(r.Context(), entryID, userID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "event id is required")
		return
	}

	evt, err := h.svc.GetEvent(r.Context(), eventID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, evt)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "event id is required")
		return
	}

	out, err := h.svc.Availability(r.Context(), eventID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) searchEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	events, err := h.svc.SearchEvents(r.Context(), query)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.ListCategories(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var in service.FinalizePurchaseInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ticket, err := h.svc.FinalizePurchase(r.Context(), in)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ticket)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"sweeper": h.sweeper.Status(),
		"mirror":  h.mirror.Status(),
	})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrEventNotFound),
		errors.Is(err, apperrors.ErrEntryNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrEventCancelled),
		errors.Is(err, apperrors.ErrTicketTypeUnavailable):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperrors.ErrAlreadyPurchased),
		errors.Is(err, apperrors.ErrDuplicateRequest):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperrors.ErrOfferExpired):
		respondError(w, http.StatusGone, err.Error())
	case errors.Is(err, apperrors.ErrNotEntryOwner):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, apperrors.ErrOfferTokenInvalid):
		respondError(w, http.StatusUnauthorized, err.Error())
	default:
		h.l.Error("Internal error handling request", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already out; nothing useful left to do.
		return
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
