package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	apperrors "github.com/vogiaan1904/ticketbottle-allocation/internal/errors"
	"github.com/vogiaan1904/ticketbottle-allocation/internal/models"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
)

// mutateRetries bounds the optimistic-lock loop. Contention on a single
// event aggregate is levelled by the ingress queue, so conflicts are rare.
const mutateRetries = 5

var ErrMutateConflict = errors.New("event aggregate version conflict")

type EventRepository interface {
	Get(ctx context.Context, eventID string) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	// Mutate applies fn to the aggregate and persists it atomically using a
	// version check, retrying on conflict. Errors returned by fn abort the
	// mutation and are returned unchanged.
	Mutate(ctx context.Context, eventID string, fn func(*models.Event) error) (*models.Event, error)
	Search(ctx context.Context, query string, limit int64) ([]models.Event, error)
	ListCategories(ctx context.Context) ([]string, error)
}

type mongoEventRepository struct {
	col *mongo.Collection
	l   logger.Logger
}

func NewEventRepository(db *mongo.Database, l logger.Logger) EventRepository {
	return &mongoEventRepository{
		col: db.Collection("events"),
		l:   l,
	}
}

func (r *mongoEventRepository) Get(ctx context.Context, eventID string) (*models.Event, error) {
	var evt models.Event
	if err := r.col.FindOne(ctx, bson.M{"_id": eventID}).Decode(&evt); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &evt, nil
}

func (r *mongoEventRepository) Create(ctx context.Context, event *models.Event) error {
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Version = 1

	if _, err := r.col.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *mongoEventRepository) Mutate(ctx context.Context, eventID string, fn func(*models.Event) error) (*models.Event, error) {
	for attempt := 0; attempt < mutateRetries; attempt++ {
		evt, err := r.Get(ctx, eventID)
		if err != nil {
			return nil, err
		}

		if err := fn(evt); err != nil {
			return nil, err
		}

		prevVersion := evt.Version
		evt.Version++
		evt.UpdatedAt = time.Now()

		res, err := r.col.ReplaceOne(ctx, bson.M{"_id": eventID, "version": prevVersion}, evt)
		if err != nil {
			return nil, fmt.Errorf("replace event: %w", err)
		}

		if res.MatchedCount > 0 {
			return evt, nil
		}

		// Someone else committed first; reload and retry.
		r.l.Debug("Event version conflict, retrying",
			"event_id", eventID,
			"attempt", attempt+1,
		)
	}

	return nil, ErrMutateConflict
}

func (r *mongoEventRepository) Search(ctx context.Context, query string, limit int64) ([]models.Event, error) {
	filter := bson.M{
		"cancelled": false,
		"name":      bson.M{"$regex": query, "$options": "i"},
	}

	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer cur.Close(ctx)

	var result []models.Event
	for cur.Next(ctx) {
		if limit > 0 && int64(len(result)) >= limit {
			break
		}
		var evt models.Event
		if err := cur.Decode(&evt); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		result = append(result, evt)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("search events cursor: %w", err)
	}
	return result, nil
}

func (r *mongoEventRepository) ListCategories(ctx context.Context) ([]string, error) {
	raw, err := r.col.Distinct(ctx, "category", bson.M{"cancelled": false})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	categories := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			categories = append(categories, s)
		}
	}
	return categories, nil
}
