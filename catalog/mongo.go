// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	SportsCollection            = "sportradarsports"
	InplayCatalogueCollection   = "inplaycatalogues"
	UpcomingCatalogueCollection = "upcomingcatalogues"
	EventCountCollection        = "sporteventcounts"
	SRLInplayCollection         = "srlinplaycatalogues"
	SRLUpcomingCollection       = "srlupcomingcatalogues"
	InplayListCollection        = "sportinplaylists"
	UpcomingListCollection      = "sportupcominglists"
	RoyalCollection             = "royalcasino"
)

// layout maps a Kind onto its collection and the document that identifies
// one key inside it.
type layout struct {
	collection string
	stampField string
	identity   func(key string) bson.D
}

func bySportID(key string) bson.D { return bson.D{{Key: "sportId", Value: key}} }
func byID(key string) bson.D      { return bson.D{{Key: "id", Value: key}} }

var layouts = map[Kind]layout{
	KindInplayCatalogue:   {InplayCatalogueCollection, "lastUpdated", bySportID},
	KindUpcomingCatalogue: {UpcomingCatalogueCollection, "lastUpdated", bySportID},
	KindInplayList:        {InplayListCollection, "lastUpdated", bySportID},
	KindUpcomingList:      {UpcomingListCollection, "lastUpdated", bySportID},
	KindEventCounts:       {EventCountCollection, "lastUpdated", byID},
	KindSRLInplay:         {SRLInplayCollection, "lastUpdated", byID},
	KindSRLUpcoming:       {SRLUpcomingCollection, "lastUpdated", byID},
	KindRoyalTables: {RoyalCollection, "updatedAt", func(string) bson.D {
		return bson.D{{Key: "type", Value: "tables"}}
	}},
	KindRoyalMarkets: {RoyalCollection, "updatedAt", func(key string) bson.D {
		game, table := splitMarketKey(key)
		return bson.D{{Key: "type", Value: "markets"}, {Key: "gameId", Value: game}, {Key: "tableId", Value: table}}
	}},
}

// MongoStore persists snapshots in one collection per kind.
type MongoStore struct {
	db     *mongo.Database
	sports *mongo.Collection
}

// NewMongoStore returns a Store over db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db, sports: db.Collection(SportsCollection)}
}

func layoutFor(kind Kind) (layout, error) {
	l, ok := layouts[kind]
	if !ok {
		return layout{}, fmt.Errorf("catalog: unknown snapshot kind %q", kind)
	}
	return l, nil
}

// EnsureIndexes creates the unique identity index of every collection.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := map[string]bson.D{
		SportsCollection:            {{Key: "sportId", Value: 1}},
		InplayCatalogueCollection:   {{Key: "sportId", Value: 1}},
		UpcomingCatalogueCollection: {{Key: "sportId", Value: 1}},
		InplayListCollection:        {{Key: "sportId", Value: 1}},
		UpcomingListCollection:      {{Key: "sportId", Value: 1}},
		EventCountCollection:        {{Key: "id", Value: 1}},
		SRLInplayCollection:         {{Key: "id", Value: 1}},
		SRLUpcomingCollection:       {{Key: "id", Value: 1}},
	}
	for coll, keys := range unique {
		model := mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
		if _, err := s.db.Collection(coll).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("catalog: index %s: %w", coll, err)
		}
	}
	royal := mongo.IndexModel{Keys: bson.D{{Key: "type", Value: 1}, {Key: "gameId", Value: 1}, {Key: "tableId", Value: 1}}}
	if _, err := s.db.Collection(RoyalCollection).Indexes().CreateOne(ctx, royal); err != nil {
		return fmt.Errorf("catalog: index %s: %w", RoyalCollection, err)
	}
	return nil
}

// PutSnapshot implements Store as a single upsert.
func (s *MongoStore) PutSnapshot(ctx context.Context, snap Snapshot) error {
	l, err := layoutFor(snap.Kind)
	if err != nil {
		return err
	}
	var data bson.D
	if err := bson.UnmarshalExtJSON(snap.Data, false, &data); err != nil {
		return fmt.Errorf("catalog: %s %s payload is not a JSON object: %w", snap.Kind, snap.Key, err)
	}
	stamp := snap.UpdatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}

	filter := l.identity(snap.Key)
	set := append(bson.D{}, filter...)
	set = append(set, bson.E{Key: "data", Value: data}, bson.E{Key: l.stampField, Value: stamp})

	_, err = s.db.Collection(l.collection).UpdateOne(ctx, filter,
		bson.D{{Key: "$set", Value: set}}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("catalog: upsert %s %s: %w", snap.Kind, snap.Key, err)
	}
	return nil
}

// GetSnapshot implements Store.
func (s *MongoStore) GetSnapshot(ctx context.Context, kind Kind, key string) (*Snapshot, error) {
	l, err := layoutFor(kind)
	if err != nil {
		return nil, err
	}
	var doc bson.Raw
	err = s.db.Collection(l.collection).FindOne(ctx, l.identity(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: find %s %s: %w", kind, key, err)
	}

	dataVal, err := doc.LookupErr("data")
	if err != nil {
		return nil, fmt.Errorf("catalog: %s %s has no data: %w", kind, key, err)
	}
	data, ok := dataVal.DocumentOK()
	if !ok {
		return nil, fmt.Errorf("catalog: %s %s data is %s, not a document", kind, key, dataVal.Type)
	}
	out, err := bson.MarshalExtJSON(data, false, false)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode %s %s: %w", kind, key, err)
	}

	snap := &Snapshot{Kind: kind, Key: key, Data: out}
	if ts, ok := doc.Lookup(l.stampField).TimeOK(); ok {
		snap.UpdatedAt = ts
	}
	return snap, nil
}

// UpsertSports implements Store with one bulk write keyed by sportId.
func (s *MongoStore) UpsertSports(ctx context.Context, sports []Sport) error {
	if len(sports) == 0 {
		return nil
	}
	now := time.Now()
	models := make([]mongo.WriteModel, 0, len(sports))
	for _, sp := range sports {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"sportId": sp.SportID}).
			SetUpdate(bson.M{"$set": bson.M{
				"sportName":   sp.SportName,
				"status":      sp.Status,
				"partnerId":   sp.PartnerID,
				"lastUpdated": now,
			}}).
			SetUpsert(true))
	}
	if _, err := s.sports.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("catalog: upsert sports: %w", err)
	}
	return nil
}

// ListSports implements Store.
func (s *MongoStore) ListSports(ctx context.Context, status string) ([]Sport, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	cur, err := s.sports.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "sportId", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("catalog: list sports: %w", err)
	}
	var sports []Sport
	if err := cur.All(ctx, &sports); err != nil {
		return nil, fmt.Errorf("catalog: decode sports: %w", err)
	}
	return sports, nil
}

// CountSports implements Store.
func (s *MongoStore) CountSports(ctx context.Context) (int64, error) {
	n, err := s.sports.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("catalog: count sports: %w", err)
	}
	return n, nil
}
