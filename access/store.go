// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package access is the gateway's read view of allowlisted addresses and the
// accounts that own them, plus the per-day usage counters those documents
// carry. Administration creates and edits the documents elsewhere; the
// gateway only reads them and bumps counters.
package access

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no matching document exists.
	ErrNotFound = errors.New("access: not found")
	// ErrUnknownCounter is returned for a counter the entity does not carry.
	ErrUnknownCounter = errors.New("access: unknown counter")
)

// Store is the lookup interface the admission layer consumes.
type Store interface {
	// FindActivePolicy returns the active policy for address, or ErrNotFound.
	FindActivePolicy(ctx context.Context, address string) (*AccessPolicy, error)
	// FindAccount returns the account with id, or ErrNotFound.
	FindAccount(ctx context.Context, id string) (*Account, error)
	// IncrementCounter adds one to each named counter of ref atomically.
	IncrementCounter(ctx context.Context, ref EntityRef, counters ...Counter) error
	// ResetDailyCounters zeroes the per-day counters of every policy and account.
	ResetDailyCounters(ctx context.Context) error
}

// fieldFor maps a counter to the stored field name of the entity kind.
func fieldFor(kind EntityKind, c Counter) (string, error) {
	switch kind {
	case KindPolicy:
		switch c {
		case CounterHits:
			return "hitsToday", nil
		case CounterBlocked:
			return "blockedToday", nil
		}
	case KindAccount:
		switch c {
		case CounterHits:
			return "totalHitsToday", nil
		case CounterBlocked:
			return "totalBlockedToday", nil
		case CounterMonthlyHits:
			return "monthlyHits", nil
		}
	}
	return "", fmt.Errorf("%w: %s on %s", ErrUnknownCounter, c, kind)
}
