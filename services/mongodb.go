package services

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	mongoClient *mongo.Client
	database    *mongo.Database
)

// GetDatabase returns the MongoDB database instance
func GetDatabase() *mongo.Database {
	return database
}

// InitMongoDB initializes MongoDB connection
func InitMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	slog.Info("Connected to MongoDB")
	mongoClient = client

	return client, nil
}

// InitServices initializes the database handle and indexes
func InitServices(client *mongo.Client, databaseName string) {
	database = client.Database(databaseName)

	createIndexes()
}

// createIndexes creates necessary database indexes
func createIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// One DailySession document per cashier per calendar date
	sessionsCollection := database.Collection("daily_sessions")
	sessionsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cashier_id", Value: 1}, {Key: "session_date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.M{"session_date": -1}},
		{Keys: bson.M{"currently_active": 1}},
	})

	ordersCollection := database.Collection("orders")
	ordersCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "cashier_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.M{"order_id": 1}, Options: options.Index().SetUnique(true)},
	})

	usersCollection := database.Collection("users")
	usersCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"user_id": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"email": 1}},
		{Keys: bson.M{"role": 1}},
	})

	notificationsCollection := database.Collection("notifications")
	notificationsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"cashier_id": 1}},
		{Keys: bson.M{"created_at": -1}},
	})
}
