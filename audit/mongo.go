// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// LogCollection holds request records.
	LogCollection = "requestlogs"
	// Retention is how long request records are kept.
	Retention = 7 * 24 * time.Hour
)

// MongoSink writes records to LogCollection.
type MongoSink struct {
	coll *mongo.Collection
}

// NewMongoSink returns a sink over db.
func NewMongoSink(db *mongo.Database) *MongoSink {
	return &MongoSink{coll: db.Collection(LogCollection)}
}

// EnsureIndexes creates the retention TTL index and the lookup indexes.
func (s *MongoSink) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(Retention.Seconds())).SetName("timestamp_ttl"),
		},
		{Keys: bson.D{{Key: "clientId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "clientIp", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("audit: create indexes: %w", err)
	}
	return nil
}

// Append implements Sink.
func (s *MongoSink) Append(ctx context.Context, r Record) error {
	if _, err := s.coll.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("audit: insert record: %w", err)
	}
	return nil
}
