// Package mongo holds the MongoDB repositories. Conditional writes filter on
// the expected status so a concurrent transition can never be overwritten.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"shiptrack-api-server/internal/apperrors"
)

const (
	shipmentsCollection     = "shipments"
	countersCollection      = "counters"
	notificationsCollection = "notifications"
	messagesCollection      = "messages"
	issuesCollection        = "issues"
	profilesCollection      = "users"
	proofsCollection        = "delivery_proofs"
)

// Connect dials MongoDB and pings the primary.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the repositories query by.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		shipmentsCollection: {
			{Keys: bson.D{{Key: "customerId", Value: 1}, {Key: "date", Value: -1}}},
			{Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		notificationsCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "shipmentId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		issuesCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		profilesCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}}},
		},
		proofsCollection: {
			{Keys: bson.D{{Key: "shipmentId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for coll, idx := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// classify maps a driver error onto the shared taxonomy.
func classify(op, kind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperrors.NotFound(kind, id)
	case mongo.IsDuplicateKeyError(err):
		return apperrors.Conflict(fmt.Sprintf("%s %s already exists", kind, id))
	default:
		return apperrors.Transport(op, err)
	}
}
