// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package catalog keeps local snapshots of the paginated provider catalogs
// fresh. A Scheduler pulls from the upstream feeds on a fixed interval and
// replaces each snapshot wholesale; gateway read routes serve those
// snapshots without touching the upstream.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrNotFound is returned when a snapshot has never been synced.
var ErrNotFound = errors.New("catalog: snapshot not found")

// Kind names one snapshot family. Each kind is persisted separately.
type Kind string

const (
	KindInplayCatalogue   Kind = "inplay-catalogue"
	KindUpcomingCatalogue Kind = "upcoming-catalogue"
	KindEventCounts       Kind = "event-counts"
	KindSRLInplay         Kind = "srl-inplay"
	KindSRLUpcoming       Kind = "srl-upcoming"
	KindInplayList        Kind = "inplay-list"
	KindUpcomingList      Kind = "upcoming-list"
	KindRoyalTables       Kind = "royal-tables"
	KindRoyalMarkets      Kind = "royal-markets"
)

// Fixed keys for kinds that hold a single document.
const (
	KeyGlobalCount = "global_count"
	KeySRLInplay   = "srl_inplay"
	KeySRLUpcoming = "srl_upcoming"
	KeyRoyalTables = "tables"
)

// SportActive is the status the per-sport jobs iterate over.
const SportActive = "ACTIVE"

// Snapshot is the last merged result for one (kind, key) pair.
type Snapshot struct {
	Kind      Kind
	Key       string
	Data      json.RawMessage
	UpdatedAt time.Time
}

// Sport is one row of the provider's sports list.
type Sport struct {
	SportID     string    `json:"sportId" bson:"sportId"`
	SportName   string    `json:"sportName" bson:"sportName"`
	Status      string    `json:"status" bson:"status"`
	PartnerID   string    `json:"partnerId" bson:"partnerId"`
	LastUpdated time.Time `json:"-" bson:"lastUpdated"`
}

// Store persists snapshots and the sports list. Every write targets a
// single document.
type Store interface {
	PutSnapshot(ctx context.Context, s Snapshot) error
	// GetSnapshot returns ErrNotFound when the pair was never written.
	GetSnapshot(ctx context.Context, kind Kind, key string) (*Snapshot, error)
	UpsertSports(ctx context.Context, sports []Sport) error
	// ListSports returns every sport, or only those with status when it is set.
	ListSports(ctx context.Context, status string) ([]Sport, error)
	CountSports(ctx context.Context) (int64, error)
}

const (
	sportPrefix = "sr:sport:"
	matchPrefix = "sr:match:"
)

var numericID = regexp.MustCompile(`^\d+$`)

// SportKey is the storage key of a per-sport snapshot.
func SportKey(sportID string) string {
	if strings.HasPrefix(sportID, sportPrefix) {
		return sportID
	}
	return sportPrefix + sportID
}

// NormalizeSportID prefixes bare numeric sport ids.
func NormalizeSportID(id string) string {
	if numericID.MatchString(id) {
		return sportPrefix + id
	}
	return id
}

// NormalizeMatchID prefixes bare numeric event ids.
func NormalizeMatchID(id string) string {
	if numericID.MatchString(id) {
		return matchPrefix + id
	}
	return id
}

// MarketKey is the snapshot key of one Royal table's markets.
func MarketKey(gameID, tableID string) string {
	return gameID + ":" + tableID
}

func splitMarketKey(key string) (gameID, tableID string) {
	gameID, tableID, _ = strings.Cut(key, ":")
	return gameID, tableID
}
