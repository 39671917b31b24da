// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package catalog

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func skipIfNoMongoDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(time.Second))
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("MongoDB not available: %v", err)
	}
	db := client.Database("oddsgate_catalog_test_" + primitive.NewObjectID().Hex())
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestMongoStore_SnapshotRoundTrip(t *testing.T) {
	db := skipIfNoMongoDB(t)
	ctx := context.Background()
	store := NewMongoStore(db)
	require.NoError(t, store.EnsureIndexes(ctx))

	_, err := store.GetSnapshot(ctx, KindInplayList, "sr:sport:1")
	assert.ErrorIs(t, err, ErrNotFound)

	first := json.RawMessage(`{"status":"RS_OK","eventsCount":2,"events":[{"eventId":"sr:match:1","odds":1.85},{"eventId":"sr:match:2"}]}`)
	require.NoError(t, store.PutSnapshot(ctx, Snapshot{Kind: KindInplayList, Key: "sr:sport:1", Data: first}))
	second := json.RawMessage(`{"status":"RS_OK","eventsCount":0,"events":[]}`)
	require.NoError(t, store.PutSnapshot(ctx, Snapshot{Kind: KindInplayList, Key: "sr:sport:1", Data: second}))

	snap, err := store.GetSnapshot(ctx, KindInplayList, "sr:sport:1")
	require.NoError(t, err)
	assert.JSONEq(t, string(second), string(snap.Data))
	assert.False(t, snap.UpdatedAt.IsZero())

	n, err := db.Collection(InplayListCollection).CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.PutSnapshot(ctx, Snapshot{Kind: KindRoyalMarkets, Key: MarketKey("teen20", "T1"), Data: json.RawMessage(`{"markets":[1]}`)}))
	var doc bson.M
	require.NoError(t, db.Collection(RoyalCollection).FindOne(ctx, bson.M{"type": "markets"}).Decode(&doc))
	assert.Equal(t, "teen20", doc["gameId"])
	assert.Equal(t, "T1", doc["tableId"])

	assert.Error(t, store.PutSnapshot(ctx, Snapshot{Kind: KindSRLInplay, Key: KeySRLInplay, Data: json.RawMessage(`[1,2]`)}))
}

func TestMongoStore_Sports(t *testing.T) {
	db := skipIfNoMongoDB(t)
	ctx := context.Background()
	store := NewMongoStore(db)

	n, err := store.CountSports(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, store.UpsertSports(ctx, []Sport{
		{SportID: "sr:sport:1", SportName: "Soccer", Status: SportActive},
		{SportID: "sr:sport:5", SportName: "Tennis", Status: "INACTIVE"},
	}))
	require.NoError(t, store.UpsertSports(ctx, []Sport{
		{SportID: "sr:sport:5", SportName: "Tennis", Status: SportActive},
	}))

	n, err = store.CountSports(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	active, err := store.ListSports(ctx, SportActive)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "sr:sport:1", active[0].SportID)
}

func TestMongoStore_UnknownKind(t *testing.T) {
	store := &MongoStore{}
	_, err := store.GetSnapshot(context.Background(), Kind("nope"), "x")
	assert.Error(t, err)
	assert.Error(t, store.PutSnapshot(context.Background(), Snapshot{Kind: Kind("nope")}))
}
