package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pos-monitor/models"
)

// SessionStore persists DailySession documents. FindByCashierAndDate returns
// (nil, nil) when no document exists for the pair.
type SessionStore interface {
	FindByCashierAndDate(ctx context.Context, cashierID, sessionDate string) (*models.DailySession, error)
	CreateDay(ctx context.Context, session *models.DailySession) error
	AppendEntry(ctx context.Context, id primitive.ObjectID, entry models.SessionEntry, rollups models.SessionRollups, updatedAt time.Time) error
	CloseEntry(ctx context.Context, id primitive.ObjectID, entryIndex int, entry models.SessionEntry, rollups models.SessionRollups, updatedAt time.Time) error
	UpdateEntryActivity(ctx context.Context, id primitive.ObjectID, entryIndex int, at time.Time) error
	UpdateEntryScreenShare(ctx context.Context, id primitive.ObjectID, entryIndex int, enabled bool, peerID string, at time.Time) error
	FindByCashier(ctx context.Context, cashierID string, limit, skip int) ([]models.DailySession, int64, error)
	FindByDate(ctx context.Context, sessionDate string) ([]models.DailySession, error)
	MarkReviewed(ctx context.Context, cashierID, sessionDate, reviewedBy string, at time.Time) error
}

// SalesStore answers checkout-statistics queries against the order store.
type SalesStore interface {
	SalesForWindow(ctx context.Context, cashierID string, from, to time.Time) (total float64, count int, err error)
}

// Directory resolves cashier identifiers to employee records.
type Directory interface {
	FindByID(ctx context.Context, userID string) (*models.User, error)
}

// MongoSessionStore is the MongoDB-backed SessionStore.
type MongoSessionStore struct {
	collection *mongo.Collection
}

func NewMongoSessionStore() *MongoSessionStore {
	return &MongoSessionStore{collection: GetDatabase().Collection("daily_sessions")}
}

func (s *MongoSessionStore) FindByCashierAndDate(ctx context.Context, cashierID, sessionDate string) (*models.DailySession, error) {
	var session models.DailySession
	err := s.collection.FindOne(ctx, bson.M{
		"cashier_id":   cashierID,
		"session_date": sessionDate,
	}).Decode(&session)

	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get daily session: %w", err)
	}

	return &session, nil
}

func (s *MongoSessionStore) CreateDay(ctx context.Context, session *models.DailySession) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	_, err := s.collection.InsertOne(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to create daily session: %w", err)
	}
	return nil
}

// AppendEntry pushes a new entry onto a day that has no open entry. The
// currently_active guard makes a racing double check-in match zero documents;
// the caller re-reads and returns the already-open entry.
func (s *MongoSessionStore) AppendEntry(ctx context.Context, id primitive.ObjectID, entry models.SessionEntry, rollups models.SessionRollups, updatedAt time.Time) error {
	result, err := s.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "currently_active": false},
		bson.M{
			"$push": bson.M{"entries": entry},
			"$set":  rollupSet(rollups, updatedAt),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to append session entry: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseEntry overwrites the entry at entryIndex, guarded on it still being
// open. Two racing checkouts cannot both close the same entry; the loser
// matches zero documents and gets ErrNotFound.
func (s *MongoSessionStore) CloseEntry(ctx context.Context, id primitive.ObjectID, entryIndex int, entry models.SessionEntry, rollups models.SessionRollups, updatedAt time.Time) error {
	entryField := fmt.Sprintf("entries.%d", entryIndex)
	set := rollupSet(rollups, updatedAt)
	set[entryField] = entry

	result, err := s.collection.UpdateOne(
		ctx,
		bson.M{
			"_id":                           id,
			entryField + ".check_out_time": nil,
		},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to close session entry: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoSessionStore) UpdateEntryActivity(ctx context.Context, id primitive.ObjectID, entryIndex int, at time.Time) error {
	entryField := fmt.Sprintf("entries.%d", entryIndex)
	_, err := s.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, entryField + ".check_out_time": nil},
		bson.M{"$set": bson.M{
			entryField + ".last_activity_time": at,
			"updated_at":                       at,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update entry activity: %w", err)
	}
	return nil
}

func (s *MongoSessionStore) UpdateEntryScreenShare(ctx context.Context, id primitive.ObjectID, entryIndex int, enabled bool, peerID string, at time.Time) error {
	entryField := fmt.Sprintf("entries.%d", entryIndex)
	_, err := s.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, entryField + ".check_out_time": nil},
		bson.M{"$set": bson.M{
			entryField + ".screen_share_enabled":     enabled,
			entryField + ".peer_id":                  peerID,
			entryField + ".last_screen_share_update": at,
			"updated_at":                             at,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update entry screen share: %w", err)
	}
	return nil
}

func (s *MongoSessionStore) FindByCashier(ctx context.Context, cashierID string, limit, skip int) ([]models.DailySession, int64, error) {
	filter := bson.M{"cashier_id": cashierID}

	totalCount, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count daily sessions: %w", err)
	}

	findOptions := options.Find().
		SetSort(bson.M{"session_date": -1}).
		SetLimit(int64(limit)).
		SetSkip(int64(skip))

	cursor, err := s.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find daily sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []models.DailySession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, 0, fmt.Errorf("failed to decode daily sessions: %w", err)
	}

	return sessions, totalCount, nil
}

func (s *MongoSessionStore) FindByDate(ctx context.Context, sessionDate string) ([]models.DailySession, error) {
	cursor, err := s.collection.Find(ctx,
		bson.M{"session_date": sessionDate},
		options.Find().SetSort(bson.M{"cashier_name": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find daily sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []models.DailySession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode daily sessions: %w", err)
	}

	return sessions, nil
}

func (s *MongoSessionStore) MarkReviewed(ctx context.Context, cashierID, sessionDate, reviewedBy string, at time.Time) error {
	result, err := s.collection.UpdateOne(
		ctx,
		bson.M{"cashier_id": cashierID, "session_date": sessionDate},
		bson.M{"$set": bson.M{
			"admin_reviewed":    true,
			"admin_reviewed_at": at,
			"admin_reviewed_by": reviewedBy,
			"updated_at":        at,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark session reviewed: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func rollupSet(rollups models.SessionRollups, updatedAt time.Time) bson.M {
	return bson.M{
		"currently_active":       rollups.CurrentlyActive,
		"active_entry_index":     rollups.ActiveEntryIndex,
		"total_check_ins":        rollups.TotalCheckIns,
		"total_check_outs":       rollups.TotalCheckOuts,
		"total_duration":         rollups.TotalDuration,
		"total_sales":            rollups.TotalSales,
		"total_transactions":     rollups.TotalTransactions,
		"checkout_reason_counts": rollups.CheckoutReasonCounts,
		"updated_at":             updatedAt,
	}
}

// MongoSalesStore queries the orders collection for checkout statistics.
type MongoSalesStore struct {
	collection *mongo.Collection
}

func NewMongoSalesStore() *MongoSalesStore {
	return &MongoSalesStore{collection: GetDatabase().Collection("orders")}
}

func (s *MongoSalesStore) SalesForWindow(ctx context.Context, cashierID string, from, to time.Time) (float64, int, error) {
	cursor, err := s.collection.Find(ctx, bson.M{
		"cashier_id": cashierID,
		"created_at": bson.M{"$gte": from, "$lte": to},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return 0, 0, fmt.Errorf("failed to decode orders: %w", err)
	}

	var total float64
	for _, order := range orders {
		total += order.Total
	}

	return total, len(orders), nil
}

// MongoDirectory resolves users from the users collection.
type MongoDirectory struct {
	collection *mongo.Collection
}

func NewMongoDirectory() *MongoDirectory {
	return &MongoDirectory{collection: GetDatabase().Collection("users")}
}

func (d *MongoDirectory) FindByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := d.collection.FindOne(ctx, bson.M{"user_id": userID, "is_active": true}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
