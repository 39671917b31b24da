// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection names shared with the administration service.
const (
	PolicyCollection  = "allowedips"
	AccountCollection = "clients"
)

type policyDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	IP           string             `bson:"ip"`
	ClientID     primitive.ObjectID `bson:"clientId"`
	Status       string             `bson:"status"`
	Mode         string             `bson:"mode"`
	Notes        string             `bson:"notes,omitempty"`
	HitsToday    int64              `bson:"hitsToday"`
	BlockedToday int64              `bson:"blockedToday"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

type permissionDoc struct {
	Provider string   `bson:"provider"`
	Enabled  bool     `bson:"enabled"`
	APIs     []string `bson:"apis"`
}

type accountDoc struct {
	ID                primitive.ObjectID `bson:"_id"`
	Name              string             `bson:"name"`
	NumericID         int64              `bson:"numericId,omitempty"`
	Status            string             `bson:"status"`
	ClientType        string             `bson:"clientType"`
	APIPermissions    []permissionDoc    `bson:"apiPermissions"`
	TotalHitsToday    int64              `bson:"totalHitsToday"`
	TotalBlockedToday int64              `bson:"totalBlockedToday"`
	MonthlyHits       int64              `bson:"monthlyHits"`
	StartDate         time.Time          `bson:"startDate"`
	EndDate           *time.Time         `bson:"endDate,omitempty"`
}

func (d policyDoc) toPolicy() *AccessPolicy {
	mode := Mode(d.Mode)
	if mode == "" {
		mode = ModeProduction
	}
	return &AccessPolicy{
		ID:           d.ID.Hex(),
		Address:      d.IP,
		AccountID:    d.ClientID.Hex(),
		Status:       PolicyStatus(d.Status),
		Mode:         mode,
		HitsToday:    d.HitsToday,
		BlockedToday: d.BlockedToday,
		Note:         d.Notes,
		CreatedAt:    d.CreatedAt,
	}
}

func (d accountDoc) toAccount() *Account {
	perms := make([]ProviderPermission, 0, len(d.APIPermissions))
	for _, p := range d.APIPermissions {
		perms = append(perms, ProviderPermission{Provider: p.Provider, Enabled: p.Enabled, APIs: p.APIs})
	}
	typ := Mode(d.ClientType)
	if typ == "" {
		typ = ModeDemo
	}
	return &Account{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		NumericID:    d.NumericID,
		Status:       AccountStatus(d.Status),
		Type:         typ,
		Permissions:  perms,
		HitsToday:    d.TotalHitsToday,
		BlockedToday: d.TotalBlockedToday,
		MonthlyHits:  d.MonthlyHits,
		StartDate:    d.StartDate,
		EndDate:      d.EndDate,
	}
}

// MongoStore reads policies and accounts from MongoDB.
type MongoStore struct {
	policies *mongo.Collection
	accounts *mongo.Collection
}

// NewMongoStore returns a Store over db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		policies: db.Collection(PolicyCollection),
		accounts: db.Collection(AccountCollection),
	}
}

// FindActivePolicy implements Store.
func (s *MongoStore) FindActivePolicy(ctx context.Context, address string) (*AccessPolicy, error) {
	var doc policyDoc
	err := s.policies.FindOne(ctx, bson.M{"ip": address, "status": string(PolicyActive)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("access: find policy %s: %w", address, err)
	}
	return doc.toPolicy(), nil
}

// FindAccount implements Store.
func (s *MongoStore) FindAccount(ctx context.Context, id string) (*Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc accountDoc
	err = s.accounts.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("access: find account %s: %w", id, err)
	}
	return doc.toAccount(), nil
}

// IncrementCounter implements Store with a single $inc per call.
func (s *MongoStore) IncrementCounter(ctx context.Context, ref EntityRef, counters ...Counter) error {
	if len(counters) == 0 {
		return nil
	}
	inc := bson.M{}
	for _, c := range counters {
		field, err := fieldFor(ref.Kind, c)
		if err != nil {
			return err
		}
		inc[field] = 1
	}
	oid, err := primitive.ObjectIDFromHex(ref.ID)
	if err != nil {
		return fmt.Errorf("access: invalid %s id %q: %w", ref.Kind, ref.ID, err)
	}

	coll := s.accounts
	if ref.Kind == KindPolicy {
		coll = s.policies
	}
	res, err := coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$inc": inc})
	if err != nil {
		return fmt.Errorf("access: increment %s %s: %w", ref.Kind, ref.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetDailyCounters implements Store.
func (s *MongoStore) ResetDailyCounters(ctx context.Context) error {
	if _, err := s.policies.UpdateMany(ctx, bson.M{},
		bson.M{"$set": bson.M{"hitsToday": 0, "blockedToday": 0}}); err != nil {
		return fmt.Errorf("access: reset policy counters: %w", err)
	}
	if _, err := s.accounts.UpdateMany(ctx, bson.M{},
		bson.M{"$set": bson.M{"totalHitsToday": 0, "totalBlockedToday": 0}}); err != nil {
		return fmt.Errorf("access: reset account counters: %w", err)
	}
	return nil
}
