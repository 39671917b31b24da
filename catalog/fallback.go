// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package catalog

import (
	"context"
	"encoding/json"
	"errors"
)

var emptyPayloads = map[Kind]json.RawMessage{
	KindInplayCatalogue:   json.RawMessage(`{"status":"RS_OK","errorDescription":"No inplay events found","inplayEvents":[]}`),
	KindUpcomingCatalogue: json.RawMessage(`{"status":"RS_OK","errorDescription":"No upcoming events found","upcomingEvents":[]}`),
	KindEventCounts:       json.RawMessage(`{"status":"RS_OK","errorDescription":"No event counts found","data":[]}`),
	KindSRLInplay:         json.RawMessage(`{"status":"RS_OK","events":[],"eventsCount":0}`),
	KindSRLUpcoming:       json.RawMessage(`{"status":"RS_OK","events":[],"eventsCount":0}`),
	KindInplayList:        json.RawMessage(`{"status":"RS_OK","events":[],"eventsCount":0}`),
	KindUpcomingList:      json.RawMessage(`{"status":"RS_OK","events":[],"eventsCount":0}`),
}

// Empty returns the payload served for kind before its first sync, or nil
// for kinds that have none.
func Empty(kind Kind) json.RawMessage {
	p, ok := emptyPayloads[kind]
	if !ok {
		return nil
	}
	return append(json.RawMessage(nil), p...)
}

// Read returns the snapshot payload for (kind, key), or the kind's empty
// payload when nothing was synced yet. Kinds without an empty payload
// return ErrNotFound.
func Read(ctx context.Context, store Store, kind Kind, key string) (json.RawMessage, error) {
	snap, err := store.GetSnapshot(ctx, kind, key)
	if errors.Is(err, ErrNotFound) {
		if p := Empty(kind); p != nil {
			return p, nil
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snap.Data, nil
}

// SportsDocument is the sports list in the provider's own response shape.
type SportsDocument struct {
	Status           string  `json:"status"`
	ErrorDescription string  `json:"errorDescription"`
	Sports           []Sport `json:"sports"`
}

// ReadSports returns every stored sport as a SportsDocument.
func ReadSports(ctx context.Context, store Store) (SportsDocument, error) {
	sports, err := store.ListSports(ctx, "")
	if err != nil {
		return SportsDocument{}, err
	}
	if sports == nil {
		sports = []Sport{}
	}
	return SportsDocument{Status: StatusOK, Sports: sports}, nil
}
