// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package access

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]*AccessPolicy // by address
	byID     map[string]*AccessPolicy
	accounts map[string]*Account
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies: make(map[string]*AccessPolicy),
		byID:     make(map[string]*AccessPolicy),
		accounts: make(map[string]*Account),
	}
}

// PutPolicy inserts or replaces a policy. Address stays unique: a policy
// previously stored under the same address is replaced.
func (s *MemoryStore) PutPolicy(p AccessPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.policies[p.Address]; ok {
		delete(s.byID, old.ID)
	}
	cp := p
	s.policies[p.Address] = &cp
	s.byID[p.ID] = &cp
}

// PutAccount inserts or replaces an account.
func (s *MemoryStore) PutAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	cp.Permissions = append([]ProviderPermission(nil), a.Permissions...)
	s.accounts[a.ID] = &cp
}

// FindActivePolicy implements Store.
func (s *MemoryStore) FindActivePolicy(_ context.Context, address string) (*AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[address]
	if !ok || p.Status != PolicyActive {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// FindAccount implements Store.
func (s *MemoryStore) FindAccount(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	cp.Permissions = append([]ProviderPermission(nil), a.Permissions...)
	return &cp, nil
}

// IncrementCounter implements Store.
func (s *MemoryStore) IncrementCounter(_ context.Context, ref EntityRef, counters ...Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range counters {
		if _, err := fieldFor(ref.Kind, c); err != nil {
			return err
		}
	}

	switch ref.Kind {
	case KindPolicy:
		p, ok := s.byID[ref.ID]
		if !ok {
			return ErrNotFound
		}
		for _, c := range counters {
			switch c {
			case CounterHits:
				p.HitsToday++
			case CounterBlocked:
				p.BlockedToday++
			}
		}
	case KindAccount:
		a, ok := s.accounts[ref.ID]
		if !ok {
			return ErrNotFound
		}
		for _, c := range counters {
			switch c {
			case CounterHits:
				a.HitsToday++
			case CounterBlocked:
				a.BlockedToday++
			case CounterMonthlyHits:
				a.MonthlyHits++
			}
		}
	}
	return nil
}

// ResetDailyCounters implements Store.
func (s *MemoryStore) ResetDailyCounters(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.policies {
		p.HitsToday = 0
		p.BlockedToday = 0
	}
	for _, a := range s.accounts {
		a.HitsToday = 0
		a.BlockedToday = 0
	}
	return nil
}
