// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package catalog

import (
	"context"
	"sort"
	"sync"
	"time"
)

type snapshotID struct {
	kind Kind
	key  string
}

// MemoryStore is an in-process Store used by tests and by deployments
// without MongoDB.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[snapshotID]Snapshot
	sports    map[string]Sport
	now       func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[snapshotID]Snapshot),
		sports:    make(map[string]Sport),
		now:       time.Now,
	}
}

func (s *MemoryStore) PutSnapshot(_ context.Context, snap Snapshot) error {
	snap.Data = append([]byte(nil), snap.Data...)
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = s.now()
	}
	s.mu.Lock()
	s.snapshots[snapshotID{snap.Kind, snap.Key}] = snap
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, kind Kind, key string) (*Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[snapshotID{kind, key}]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	snap.Data = append([]byte(nil), snap.Data...)
	return &snap, nil
}

func (s *MemoryStore) UpsertSports(_ context.Context, sports []Sport) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range sports {
		sp.LastUpdated = now
		s.sports[sp.SportID] = sp
	}
	return nil
}

func (s *MemoryStore) ListSports(_ context.Context, status string) ([]Sport, error) {
	s.mu.RLock()
	out := make([]Sport, 0, len(s.sports))
	for _, sp := range s.sports {
		if status == "" || sp.Status == status {
			out = append(out, sp)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SportID < out[j].SportID })
	return out, nil
}

func (s *MemoryStore) CountSports(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sports)), nil
}
