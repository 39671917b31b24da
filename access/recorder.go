// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package access

import (
	"context"
	"sync"
	"time"

	"oddsgate/platform/shared/logger"
)

// Recorder applies counter increments in the background. Failures are logged
// and never reach the request path.
type Recorder struct {
	store   Store
	log     *logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store Store, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{store: store, log: log, timeout: 5 * time.Second}
}

// Hit counts one forwarded request against policy and account. Either may be nil.
func (r *Recorder) Hit(policy *AccessPolicy, account *Account) {
	if policy != nil {
		r.apply(PolicyRef(policy.ID), CounterHits)
	}
	if account != nil {
		r.apply(AccountRef(account.ID), CounterHits, CounterMonthlyHits)
	}
}

// Blocked counts one denied request against policy and account. Either may be nil.
func (r *Recorder) Blocked(policy *AccessPolicy, account *Account) {
	if policy != nil {
		r.apply(PolicyRef(policy.ID), CounterBlocked)
	}
	if account != nil {
		r.apply(AccountRef(account.ID), CounterBlocked)
	}
}

func (r *Recorder) apply(ref EntityRef, counters ...Counter) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Debug("", "", "counter update after shutdown dropped", map[string]interface{}{
			"entity": string(ref.Kind),
			"id":     ref.ID,
		})
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.IncrementCounter(ctx, ref, counters...); err != nil {
			r.log.Warn("", "", "counter update failed", map[string]interface{}{
				"entity":   string(ref.Kind),
				"id":       ref.ID,
				"counters": counters,
				"error":    err.Error(),
			})
		}
	}()
}

// Wait stops accepting updates and blocks until every pending one has
// finished. Updates requested after Wait has started are dropped.
func (r *Recorder) Wait() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}
