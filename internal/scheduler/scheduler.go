// Package scheduler runs the periodic CMV sweep and watchlist price refresh.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
)

const defaultSweepLimit = 200

// StaleFinder lists collection items due for a recompute.
type StaleFinder interface {
	StaleItemIDs(ctx context.Context, staleAfter, retryAfter, refreshAfter time.Duration, limit int) ([]uint, error)
}

// Enqueuer hands an item to the CMV worker pool.
type Enqueuer interface {
	Enqueue(id uint) bool
}

// PriceRefresher re-prices watchlist items and evaluates their targets.
type PriceRefresher interface {
	RefreshPrices(ctx context.Context, olderThan time.Duration, limit int) (refreshed, alerts int, err error)
}

// Options configures job cadence and thresholds.
type Options struct {
	SweepSpec     string // e.g. "@every 5m"
	WatchlistSpec string // e.g. "@every 1h"
	StaleAfter    time.Duration
	RetryAfter    time.Duration
	RefreshAfter  time.Duration
	WatchMaxAge   time.Duration
	Limit         int
}

// Scheduler wraps robfig/cron and owns the background jobs.
type Scheduler struct {
	cron      *cron.Cron
	stale     StaleFinder
	queue     Enqueuer
	watchlist PriceRefresher
	opts      Options
}

// New creates a Scheduler. watchlist may be nil to skip price refreshes.
func New(stale StaleFinder, queue Enqueuer, watchlist PriceRefresher, opts Options) *Scheduler {
	if opts.SweepSpec == "" {
		opts.SweepSpec = "@every 5m"
	}
	if opts.WatchlistSpec == "" {
		opts.WatchlistSpec = "@every 1h"
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultSweepLimit
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cron.DefaultLogger), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		stale:     stale,
		queue:     queue,
		watchlist: watchlist,
		opts:      opts,
	}
}

// Start registers the jobs and starts the scheduler. One sweep also runs
// immediately so items left pending by a restart are picked up right away.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.opts.SweepSpec, func() { s.RunSweep(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc sweep: %w", err)
	}
	if s.watchlist != nil {
		if _, err := s.cron.AddFunc(s.opts.WatchlistSpec, func() { s.RunWatchlistRefresh(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc watchlist: %w", err)
		}
	}

	s.cron.Start()
	log.Printf("Scheduler: started (sweep %s, watchlist %s)", s.opts.SweepSpec, s.opts.WatchlistSpec)

	go s.RunSweep(ctx)
	return nil
}

// Stop waits for running jobs and shuts down the scheduler.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("Scheduler: stopped")
}

// RunSweep re-enqueues stale pending, failed and aged items. It returns the number queued.
func (s *Scheduler) RunSweep(ctx context.Context) int {
	ids, err := s.stale.StaleItemIDs(ctx, s.opts.StaleAfter, s.opts.RetryAfter, s.opts.RefreshAfter, s.opts.Limit)
	if err != nil {
		log.Printf("Scheduler: stale item lookup failed: %v", err)
		return 0
	}

	queued := 0
	for _, id := range ids {
		if s.queue.Enqueue(id) {
			queued++
		}
	}
	if queued > 0 {
		metrics.CmvSweepRequeued.Add(float64(queued))
		log.Printf("Scheduler: sweep re-enqueued %d of %d stale item(s)", queued, len(ids))
	}
	return queued
}

// RunWatchlistRefresh re-prices watchlist items older than the configured age.
func (s *Scheduler) RunWatchlistRefresh(ctx context.Context) {
	refreshed, alerts, err := s.watchlist.RefreshPrices(ctx, s.opts.WatchMaxAge, s.opts.Limit)
	if err != nil {
		log.Printf("Scheduler: watchlist refresh failed: %v", err)
		return
	}
	log.Printf("Scheduler: refreshed %d watchlist item(s), %d new alert(s)", refreshed, alerts)
}
