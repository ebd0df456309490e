package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/vogiaan1904/ticketbottle-allocation/internal/errors"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/models"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
)

type WaitlistRepository interface {
	Create(ctx context.Context, entry *models.WaitlistEntry) error
	Get(ctx context.Context, entryID string) (*models.WaitlistEntry, error)
	GetActiveByUserAndEvent(ctx context.Context, userID, eventID string) (*models.WaitlistEntry, error)
	// TransitionStatus flips status from -> to only if the entry is still in
	// the from status. A lost race returns ErrStaleTransition.
	TransitionStatus(ctx context.Context, entryID string, from, to models.EntryStatus, offerExpiresAt *time.Time) error
	OldestWaiting(ctx context.Context, eventID, ticketTypeID string) (*models.WaitlistEntry, error)
	CountWaitingAhead(ctx context.Context, eventID, ticketTypeID string, createdAt time.Time) (int64, error)
	FindExpiredOffers(ctx context.Context, now time.Time, limit int) ([]models.WaitlistEntry, error)
	FindByEventAndStatus(ctx context.Context, eventID string, status models.EntryStatus) ([]models.WaitlistEntry, error)
	EnsureIndexes(ctx context.Context) error
}

type mongoWaitlistRepository struct {
	col *mongo.Collection
	l   logger.Logger
}

func NewWaitlistRepository(db *mongo.Database, l logger.Logger) WaitlistRepository {
	return &mongoWaitlistRepository{
		col: db.Collection("waitlist_entries"),
		l:   l,
	}
}

func (r *mongoWaitlistRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// One active entry per user per event. The partial filter keeps
			// terminal entries out of the constraint so users can rejoin.
			Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("waitlist_active_user_event_unique").
				SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": bson.A{
						string(models.EntryStatusWaiting),
						string(models.EntryStatusOffered),
					}},
				}),
		},
		{
			Keys: bson.D{
				{Key: "event_id", Value: 1},
				{Key: "ticket_type_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("waitlist_promotion_order"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "offer_expires_at", Value: 1}},
			Options: options.Index().SetName("waitlist_offer_expiry"),
		},
	})
	if err != nil {
		return fmt.Errorf("waitlist indexes: %w", err)
	}
	return nil
}

func (r *mongoWaitlistRepository) Create(ctx context.Context, entry *models.WaitlistEntry) error {
	if _, err := r.col.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrDuplicateRequest
		}
		return fmt.Errorf("insert waitlist entry: %w", err)
	}

	r.l.Debug("Waitlist entry created",
		"entry_id", entry.ID,
		"event_id", entry.EventID,
		"user_id", entry.UserID,
	)

	return nil
}

func (r *mongoWaitlistRepository) Get(ctx context.Context, entryID string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	if err := r.col.FindOne(ctx, bson.M{"_id": entryID}).Decode(&entry); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrEntryNotFound
		}
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *mongoWaitlistRepository) GetActiveByUserAndEvent(ctx context.Context, userID, eventID string) (*models.WaitlistEntry, error) {
	filter := bson.M{
		"user_id":  userID,
		"event_id": eventID,
		"status": bson.M{"$in": bson.A{
			string(models.EntryStatusWaiting),
			string(models.EntryStatusOffered),
		}},
	}

	var entry models.WaitlistEntry
	if err := r.col.FindOne(ctx, filter).Decode(&entry); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrEntryNotFound
		}
		return nil, fmt.Errorf("get active waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *mongoWaitlistRepository) TransitionStatus(ctx context.Context, entryID string, from, to models.EntryStatus, offerExpiresAt *time.Time) error {
	set := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	if offerExpiresAt != nil {
		set["offer_expires_at"] = *offerExpiresAt
	}

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": entryID, "status": from},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("transition waitlist entry: %w", err)
	}

	if res.MatchedCount == 0 {
		if _, err := r.Get(ctx, entryID); err != nil {
			return err
		}
		return apperrors.ErrStaleTransition
	}

	r.l.Debug("Waitlist entry transitioned",
		"entry_id", entryID,
		"from", from,
		"to", to,
	)

	return nil
}

func (r *mongoWaitlistRepository) OldestWaiting(ctx context.Context, eventID, ticketTypeID string) (*models.WaitlistEntry, error) {
	filter := bson.M{
		"event_id":       eventID,
		"ticket_type_id": ticketTypeID,
		"status":         string(models.EntryStatusWaiting),
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})

	var entry models.WaitlistEntry
	if err := r.col.FindOne(ctx, filter, opts).Decode(&entry); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrEntryNotFound
		}
		return nil, fmt.Errorf("get oldest waiting entry: %w", err)
	}
	return &entry, nil
}

func (r *mongoWaitlistRepository) CountWaitingAhead(ctx context.Context, eventID, ticketTypeID string, createdAt time.Time) (int64, error) {
	filter := bson.M{
		"event_id":       eventID,
		"ticket_type_id": ticketTypeID,
		"status":         string(models.EntryStatusWaiting),
		"created_at":     bson.M{"$lt": createdAt},
	}

	count, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count waiting entries: %w", err)
	}
	return count, nil
}

func (r *mongoWaitlistRepository) FindExpiredOffers(ctx context.Context, now time.Time, limit int) ([]models.WaitlistEntry, error) {
	filter := bson.M{
		"status":           string(models.EntryStatusOffered),
		"offer_expires_at": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "offer_expires_at", Value: 1}}).
		SetLimit(int64(limit))

	return r.find(ctx, filter, opts)
}

func (r *mongoWaitlistRepository) FindByEventAndStatus(ctx context.Context, eventID string, status models.EntryStatus) ([]models.WaitlistEntry, error) {
	filter := bson.M{
		"event_id": eventID,
		"status":   string(status),
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	return r.find(ctx, filter, opts)
}

func (r *mongoWaitlistRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.WaitlistEntry, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find waitlist entries: %w", err)
	}
	defer cur.Close(ctx)

	var entries []models.WaitlistEntry
	for cur.Next(ctx) {
		var entry models.WaitlistEntry
		if err := cur.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode waitlist entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("waitlist entries cursor: %w", err)
	}
	return entries, nil
}
