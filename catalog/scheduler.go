// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"oddsgate/platform/shared/logger"
)

// Job names one sync family. Used in logs and metrics.
type Job string

const (
	JobSports            Job = "sports"
	JobEventCounts       Job = "event-counts"
	JobInplayCatalogue   Job = "inplay-catalogue"
	JobUpcomingCatalogue Job = "upcoming-catalogue"
	JobSRLInplay         Job = "srl-inplay"
	JobSRLUpcoming       Job = "srl-upcoming"
	JobInplayList        Job = "inplay-list"
	JobUpcomingList      Job = "upcoming-list"
	JobRoyalTables       Job = "royal-tables"
	JobRoyalMarkets      Job = "royal-markets"
	JobCounterReset      Job = "counter-reset"
)

// Feed is the upstream side of the scheduler. *Client implements it.
type Feed interface {
	Sports(ctx context.Context) ([]Sport, error)
	EventCounts(ctx context.Context) (json.RawMessage, error)
	Catalogue(ctx context.Context, sportID string, inplay bool) (json.RawMessage, error)
	SRLEventsPage(ctx context.Context, inplay bool, page int) (json.RawMessage, error)
	EventsPage(ctx context.Context, sportID string, inplay bool, page int) (json.RawMessage, error)
	RoyalTables(ctx context.Context) (json.RawMessage, error)
	RoyalMarkets(ctx context.Context, gameID, tableID string) (json.RawMessage, error)
}

// CounterResetter zeroes per-day usage counters. access.Store implements it.
type CounterResetter interface {
	ResetDailyCounters(ctx context.Context) error
}

// SchedulerConfig wires a Scheduler. Zero intervals and timeouts take the
// defaults noted; zero delays mean no delay, see DefaultDelays.
type SchedulerConfig struct {
	Feed  Feed
	Store Store
	// Counters is reset at local midnight when set.
	Counters CounterResetter

	Interval      time.Duration // 60s
	SportDelay    time.Duration // before each sport
	PairDelay     time.Duration // between the inplay and upcoming call of a sport
	SRLDelay      time.Duration // between the SRL inplay and upcoming walks
	Royal         bool
	RoyalInterval time.Duration // 60s
	RoyalWorkers  int           // 4
	RoyalTimeout  time.Duration // 5s per table

	Logger *logger.Logger
	// OnResult observes every job run, for metrics.
	OnResult func(job Job, err error)
	Now      func() time.Time
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.RoyalInterval <= 0 {
		c.RoyalInterval = c.Interval
	}
	if c.RoyalWorkers <= 0 {
		c.RoyalWorkers = 4
	}
	if c.RoyalTimeout <= 0 {
		c.RoyalTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// DefaultDelays returns the inter-call delays used in production.
func DefaultDelays() (sport, pair, srl time.Duration) {
	return 500 * time.Millisecond, 200 * time.Millisecond, time.Second
}

// Scheduler runs the sync job families. Each family has its own loop, and
// a failure in one sport or table is logged and skipped.
type Scheduler struct {
	cfg SchedulerConfig
	log *logger.Logger
	wg  sync.WaitGroup

	// sportsMu serializes the bootstrap of the sports list across loops.
	sportsMu sync.Mutex
}

// NewScheduler returns a Scheduler for cfg.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{cfg: cfg, log: cfg.Logger}
}

// Start launches every loop in the background and returns immediately.
// Loops stop when ctx is cancelled; Wait blocks until they have.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("", "", "Catalog sync scheduler starting", map[string]interface{}{
		"interval": s.cfg.Interval.String(),
		"royal":    s.cfg.Royal,
	})

	s.loop(ctx, s.cfg.Interval, s.SyncEventCounts)
	s.loop(ctx, s.cfg.Interval, s.SyncCatalogues)
	s.loop(ctx, s.cfg.Interval, s.SyncEventLists)
	s.loop(ctx, s.cfg.Interval, s.SyncSRL)
	if s.cfg.Royal {
		s.loop(ctx, s.cfg.RoyalInterval, func(ctx context.Context) {
			if s.SyncRoyalTables(ctx) == nil {
				s.SyncRoyalMarkets(ctx)
			}
		})
	}
	if s.cfg.Counters != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.midnightResets(ctx)
		}()
	}
}

// Wait blocks until every loop started by Start has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// loop runs fn now and then every interval until ctx is done. A run that
// overlaps the next tick delays it.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

func (s *Scheduler) result(job Job, key string, err error) {
	if s.cfg.OnResult != nil {
		s.cfg.OnResult(job, err)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("", "", "Catalog sync failed", map[string]interface{}{
			"job":   string(job),
			"key":   key,
			"error": err.Error(),
		})
	}
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// EnsureSports fetches the sports list when none is stored yet.
func (s *Scheduler) EnsureSports(ctx context.Context) {
	s.sportsMu.Lock()
	defer s.sportsMu.Unlock()
	n, err := s.cfg.Store.CountSports(ctx)
	if err != nil {
		s.result(JobSports, "", err)
		return
	}
	if n > 0 {
		return
	}
	s.result(JobSports, "", s.SyncSports(ctx))
}

// SyncSports replaces the stored sports list with the upstream one.
func (s *Scheduler) SyncSports(ctx context.Context) error {
	sports, err := s.cfg.Feed.Sports(ctx)
	if err != nil {
		return err
	}
	if err := s.cfg.Store.UpsertSports(ctx, sports); err != nil {
		return err
	}
	s.log.Info("", "", "Synced sports list", map[string]interface{}{"count": len(sports)})
	return nil
}

// RunCycle runs one pass of the counts, catalogue and full-list families in
// that order. Start runs each of them on its own loop instead.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.SyncEventCounts(ctx)
	s.SyncCatalogues(ctx)
	s.SyncEventLists(ctx)
}

// SyncEventCounts refreshes the global event counts.
func (s *Scheduler) SyncEventCounts(ctx context.Context) {
	s.result(JobEventCounts, KeyGlobalCount, s.syncEventCounts(ctx))
}

// SyncCatalogues refreshes the inplay and upcoming catalogue of every active
// sport.
func (s *Scheduler) SyncCatalogues(ctx context.Context) {
	sports, ok := s.activeSports(ctx, JobInplayCatalogue)
	if !ok {
		return
	}
	start := s.cfg.Now()
	s.forEachSport(ctx, sports, func(ctx context.Context, id string, inplay bool) {
		job := JobUpcomingCatalogue
		if inplay {
			job = JobInplayCatalogue
		}
		s.result(job, id, s.syncCatalogue(ctx, id, inplay))
	})
	s.log.Debug("", "", "Catalogue pass completed", map[string]interface{}{
		"sports":      len(sports),
		"duration_ms": s.cfg.Now().Sub(start).Milliseconds(),
	})
}

// SyncEventLists walks the full paginated lists of every active sport.
func (s *Scheduler) SyncEventLists(ctx context.Context) {
	sports, ok := s.activeSports(ctx, JobInplayList)
	if !ok {
		return
	}
	start := s.cfg.Now()
	s.forEachSport(ctx, sports, func(ctx context.Context, id string, inplay bool) {
		job := JobUpcomingList
		if inplay {
			job = JobInplayList
		}
		s.result(job, id, s.SyncEventsList(ctx, id, inplay))
	})
	s.log.Debug("", "", "Full list pass completed", map[string]interface{}{
		"sports":      len(sports),
		"duration_ms": s.cfg.Now().Sub(start).Milliseconds(),
	})
}

// activeSports bootstraps the sports list if needed and returns the active
// sports. A store failure is reported against job.
func (s *Scheduler) activeSports(ctx context.Context, job Job) ([]Sport, bool) {
	s.EnsureSports(ctx)
	sports, err := s.cfg.Store.ListSports(ctx, SportActive)
	if err != nil {
		s.result(job, "", err)
		return nil, false
	}
	return sports, true
}

// forEachSport calls fn for the inplay then the upcoming side of every
// sport, with the configured delays between calls.
func (s *Scheduler) forEachSport(ctx context.Context, sports []Sport, fn func(context.Context, string, bool)) {
	for _, sp := range sports {
		if sleep(ctx, s.cfg.SportDelay) != nil {
			return
		}
		fn(ctx, sp.SportID, true)
		if sleep(ctx, s.cfg.PairDelay) != nil {
			return
		}
		fn(ctx, sp.SportID, false)
	}
}

func (s *Scheduler) put(ctx context.Context, kind Kind, key string, data json.RawMessage) error {
	return s.cfg.Store.PutSnapshot(ctx, Snapshot{Kind: kind, Key: key, Data: data, UpdatedAt: s.cfg.Now()})
}

func (s *Scheduler) syncEventCounts(ctx context.Context) error {
	data, err := s.cfg.Feed.EventCounts(ctx)
	if err != nil {
		return err
	}
	return s.put(ctx, KindEventCounts, KeyGlobalCount, data)
}

func (s *Scheduler) syncCatalogue(ctx context.Context, sportID string, inplay bool) error {
	data, err := s.cfg.Feed.Catalogue(ctx, sportID, inplay)
	if err != nil {
		return err
	}
	kind := KindUpcomingCatalogue
	if inplay {
		kind = KindInplayCatalogue
	}
	return s.put(ctx, kind, SportKey(sportID), data)
}

// SyncEventsList walks every page of one sport's full event list and
// stores the merged result.
func (s *Scheduler) SyncEventsList(ctx context.Context, sportID string, inplay bool) error {
	merged, _, err := FetchAll(ctx, func(ctx context.Context, n int) (json.RawMessage, error) {
		return s.cfg.Feed.EventsPage(ctx, sportID, inplay, n)
	})
	if err != nil {
		return err
	}
	kind := KindUpcomingList
	if inplay {
		kind = KindInplayList
	}
	return s.putMerged(ctx, kind, SportKey(sportID), merged)
}

func (s *Scheduler) putMerged(ctx context.Context, kind Kind, key string, m Merged) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("catalog: encode %s: %w", kind, err)
	}
	return s.put(ctx, kind, key, data)
}

// SyncSRL walks the inplay then the upcoming SRL feed.
func (s *Scheduler) SyncSRL(ctx context.Context) {
	s.result(JobSRLInplay, KeySRLInplay, s.syncSRL(ctx, true))
	if sleep(ctx, s.cfg.SRLDelay) != nil {
		return
	}
	s.result(JobSRLUpcoming, KeySRLUpcoming, s.syncSRL(ctx, false))
}

func (s *Scheduler) syncSRL(ctx context.Context, inplay bool) error {
	merged, pages, err := FetchAll(ctx, func(ctx context.Context, n int) (json.RawMessage, error) {
		return s.cfg.Feed.SRLEventsPage(ctx, inplay, n)
	})
	if err != nil {
		return err
	}
	kind, key := KindSRLUpcoming, KeySRLUpcoming
	if inplay {
		kind, key = KindSRLInplay, KeySRLInplay
	}
	s.log.Debug("", "", "Synced SRL events", map[string]interface{}{
		"inplay": inplay,
		"pages":  pages,
		"events": merged.EventsCount,
	})
	return s.putMerged(ctx, kind, key, merged)
}

// RoyalTable is one entry of the Royal Gaming table list.
type RoyalTable struct {
	GameID    string `json:"gameId"`
	TableID   string `json:"tableId"`
	TableName string `json:"tableName,omitempty"`
}

type royalTables struct {
	Tables []RoyalTable `json:"tables"`
}

// SyncRoyalTables stores the Royal Gaming table list. A response without a
// tables list is rejected and the previous snapshot kept.
func (s *Scheduler) SyncRoyalTables(ctx context.Context) error {
	err := s.syncRoyalTables(ctx)
	s.result(JobRoyalTables, KeyRoyalTables, err)
	return err
}

func (s *Scheduler) syncRoyalTables(ctx context.Context) error {
	data, err := s.cfg.Feed.RoyalTables(ctx)
	if err != nil {
		return err
	}
	var doc royalTables
	if err := json.Unmarshal(data, &doc); err != nil || doc.Tables == nil {
		return errors.New("catalog: royal tables missing from response")
	}
	return s.put(ctx, KindRoyalTables, KeyRoyalTables, data)
}

// SyncRoyalMarkets refreshes the markets of every stored table, a few
// tables at a time. Each table has its own timeout and failures are
// isolated per table.
func (s *Scheduler) SyncRoyalMarkets(ctx context.Context) {
	snap, err := s.cfg.Store.GetSnapshot(ctx, KindRoyalTables, KeyRoyalTables)
	if err != nil {
		s.result(JobRoyalMarkets, "", err)
		return
	}
	var doc royalTables
	if err := json.Unmarshal(snap.Data, &doc); err != nil {
		s.result(JobRoyalMarkets, "", fmt.Errorf("catalog: decode royal tables: %w", err))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.RoyalWorkers)
	for _, t := range doc.Tables {
		t := t
		g.Go(func() error {
			key := MarketKey(t.GameID, t.TableID)
			s.result(JobRoyalMarkets, key, s.syncRoyalMarket(gctx, t))
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) syncRoyalMarket(ctx context.Context, t RoyalTable) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RoyalTimeout)
	defer cancel()
	data, err := s.cfg.Feed.RoyalMarkets(ctx, t.GameID, t.TableID)
	if err != nil {
		return err
	}
	return s.put(ctx, KindRoyalMarkets, MarketKey(t.GameID, t.TableID), data)
}

// NextMidnight returns the first local midnight strictly after t.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func (s *Scheduler) midnightResets(ctx context.Context) {
	for {
		now := s.cfg.Now()
		if sleep(ctx, NextMidnight(now).Sub(now)) != nil {
			return
		}
		s.ResetCounters(ctx)
	}
}

// ResetCounters zeroes the per-day counters now.
func (s *Scheduler) ResetCounters(ctx context.Context) {
	if s.cfg.Counters == nil {
		return
	}
	err := s.cfg.Counters.ResetDailyCounters(ctx)
	s.result(JobCounterReset, "", err)
	if err == nil {
		s.log.Info("", "", "Daily usage counters reset", nil)
	}
}
