// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"oddsgate/platform/shared/logger"
)

// QueueConfig sizes the background writer.
type QueueConfig struct {
	Size         int
	Workers      int
	FallbackPath string        // records that cannot be persisted are appended here; empty disables
	WriteTimeout time.Duration
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Size <= 0 {
		c.Size = 10000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Queued    uint64 `json:"queued"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
}

// Queue accepts records without blocking the caller and writes them to a Sink
// from a pool of workers. After a write attempt each record is handed to the
// Publisher, if any.
type Queue struct {
	cfg       QueueConfig
	sink      Sink
	publisher Publisher
	log       *logger.Logger

	queue chan Record
	wg    sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	fileMu   sync.Mutex
	fallback *os.File

	queued    atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewQueue starts cfg.Workers writers. sink and publisher may each be nil.
func NewQueue(cfg QueueConfig, sink Sink, publisher Publisher, log *logger.Logger) (*Queue, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}

	q := &Queue{
		cfg:       cfg,
		sink:      sink,
		publisher: publisher,
		log:       log,
		queue:     make(chan Record, cfg.Size),
	}

	if cfg.FallbackPath != "" {
		f, err := os.OpenFile(cfg.FallbackPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("audit: open fallback file: %w", err)
		}
		q.fallback = f
	}

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	log.Info("", "", "audit queue started", map[string]interface{}{
		"workers":  cfg.Workers,
		"size":     cfg.Size,
		"fallback": cfg.FallbackPath,
	})
	return q, nil
}

// Append enqueues r. It never blocks: when the queue is full the record goes
// to the fallback file, or is dropped when there is none.
func (q *Queue) Append(r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return
	}

	select {
	case q.queue <- r:
		q.queued.Add(1)
	default:
		if err := q.writeToFallback(r); err != nil {
			q.dropped.Add(1)
			q.log.Warn(r.ClientIP, r.RequestID, "audit queue full, record dropped", map[string]interface{}{
				"endpoint": r.Endpoint,
				"error":    err.Error(),
			})
		}
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	for r := range q.queue {
		// One attempt per record; failures go to the fallback file.
		if err := q.write(r); err == nil {
			q.processed.Add(1)
		} else {
			q.failed.Add(1)
			q.log.Error(r.ClientIP, r.RequestID, "audit write failed", map[string]interface{}{
				"worker":   id,
				"endpoint": r.Endpoint,
				"error":    err.Error(),
			})
			if ferr := q.writeToFallback(r); ferr != nil && !errors.Is(ferr, errNoFallback) {
				q.log.Error(r.ClientIP, r.RequestID, "audit fallback write failed", map[string]interface{}{
					"error": ferr.Error(),
				})
			}
		}

		if q.publisher != nil {
			q.publisher.Publish(r)
		}
	}
}

func (q *Queue) write(r Record) error {
	if q.sink == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.WriteTimeout)
	defer cancel()
	return q.sink.Append(ctx, r)
}

var errNoFallback = errors.New("audit: no fallback configured")

func (q *Queue) writeToFallback(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	q.fileMu.Lock()
	defer q.fileMu.Unlock()
	if q.fallback == nil {
		return errNoFallback
	}
	if _, err := fmt.Fprintf(q.fallback, "%s\n", data); err != nil {
		return fmt.Errorf("audit: write fallback: %w", err)
	}
	return q.fallback.Sync()
}

// Shutdown stops accepting records and waits for the workers to drain the
// queue. If ctx expires first, whatever is still queued goes to the fallback.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return nil
	}
	q.closed = true
	close(q.queue)
	q.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		saved := 0
		for r := range q.queue {
			if q.writeToFallback(r) == nil {
				saved++
			}
		}
		q.log.Warn("", "", "audit queue shutdown timed out", map[string]interface{}{"saved_to_fallback": saved})
		err = ctx.Err()
	}

	st := q.Stats()
	q.log.Info("", "", "audit queue stopped", map[string]interface{}{
		"processed": st.Processed,
		"failed":    st.Failed,
		"dropped":   st.Dropped,
	})

	if q.fallback != nil {
		q.fileMu.Lock()
		_ = q.fallback.Close()
		q.fallback = nil
		q.fileMu.Unlock()
	}
	return err
}

// Stats returns the current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Queued:    q.queued.Load(),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
		Pending:   len(q.queue),
	}
}
