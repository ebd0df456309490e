package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/vogiaan1904/ticketbottle-allocation/internal/errors"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/models"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
)

type TicketRepository interface {
	// Create inserts the ticket; a payment reference seen before returns
	// ErrDuplicateRequest so finalization stays idempotent under races.
	Create(ctx context.Context, ticket *models.Ticket) error
	GetByPaymentReference(ctx context.Context, paymentRef string) (*models.Ticket, error)
	GetByUserAndEvent(ctx context.Context, userID, eventID string) (*models.Ticket, error)
	EnsureIndexes(ctx context.Context) error
}

type mongoTicketRepository struct {
	col *mongo.Collection
	l   logger.Logger
}

func NewTicketRepository(db *mongo.Database, l logger.Logger) TicketRepository {
	return &mongoTicketRepository{
		col: db.Collection("tickets"),
		l:   l,
	}
}

func (r *mongoTicketRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "payment_reference", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("tickets_payment_reference_unique"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "event_id", Value: 1}},
			Options: options.Index().SetName("tickets_user_event"),
		},
	})
	if err != nil {
		return fmt.Errorf("ticket indexes: %w", err)
	}
	return nil
}

func (r *mongoTicketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	if _, err := r.col.InsertOne(ctx, ticket); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrDuplicateRequest
		}
		return fmt.Errorf("insert ticket: %w", err)
	}

	r.l.Info("Ticket issued",
		"ticket_id", ticket.ID,
		"entry_id", ticket.EntryID,
		"payment_reference", ticket.PaymentReference,
	)

	return nil
}

func (r *mongoTicketRepository) GetByPaymentReference(ctx context.Context, paymentRef string) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := r.col.FindOne(ctx, bson.M{"payment_reference": paymentRef}).Decode(&ticket); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ticket by payment reference: %w", err)
	}
	return &ticket, nil
}

func (r *mongoTicketRepository) GetByUserAndEvent(ctx context.Context, userID, eventID string) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := r.col.FindOne(ctx, bson.M{"user_id": userID, "event_id": eventID}).Decode(&ticket); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ticket by user and event: %w", err)
	}
	return &ticket, nil
}
