package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
)

const (
	// defaultCmvQueueSize bounds the number of items waiting for a recompute
	defaultCmvQueueSize = 500
	// defaultCmvJobTimeout caps one fetch-and-persist cycle
	defaultCmvJobTimeout = 45 * time.Second
)

// CmvWorker recomputes collection CMVs in the background. Enqueue never blocks;
// an item dropped from a full queue stays pending and is picked up by the sweep.
type CmvWorker struct {
	cmv        *CmvService
	workers    int
	jobTimeout time.Duration

	queue  chan uint
	mu     sync.Mutex
	queued map[uint]bool

	// Stats (reset at midnight)
	statsMu        sync.RWMutex
	processedToday int
	failedToday    int
	lastRunAt      time.Time
	lastStatsDay   time.Time
}

// CmvWorkerStatus is the worker's externally visible state.
type CmvWorkerStatus struct {
	Workers        int       `json:"workers"`
	QueueSize      int       `json:"queue_size"`
	ProcessedToday int       `json:"processed_today"`
	FailedToday    int       `json:"failed_today"`
	LastRunAt      time.Time `json:"last_run_at,omitempty"`
}

func NewCmvWorker(cmv *CmvService, workers int) *CmvWorker {
	if workers <= 0 {
		workers = 1
	}
	return &CmvWorker{
		cmv:        cmv,
		workers:    workers,
		jobTimeout: defaultCmvJobTimeout,
		queue:      make(chan uint, defaultCmvQueueSize),
		queued:     make(map[uint]bool),
	}
}

// Enqueue schedules a recompute for an item. It reports false when the item is
// already queued or the queue is full.
func (w *CmvWorker) Enqueue(id uint) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.queued[id] {
		return false
	}
	select {
	case w.queue <- id:
		w.queued[id] = true
		metrics.CmvQueueSize.Set(float64(len(w.queued)))
		return true
	default:
		log.Printf("CMV worker: queue full, dropping item %d until next sweep", id)
		return false
	}
}

// QueueSize returns the number of items waiting or in flight.
func (w *CmvWorker) QueueSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queued)
}

func (w *CmvWorker) done(id uint) {
	w.mu.Lock()
	delete(w.queued, id)
	metrics.CmvQueueSize.Set(float64(len(w.queued)))
	w.mu.Unlock()
}

// Start runs the worker pool until ctx is cancelled.
func (w *CmvWorker) Start(ctx context.Context) {
	log.Printf("CMV worker started: %d workers, queue capacity %d", w.workers, cap(w.queue))

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-w.queue:
					w.process(ctx, id)
				}
			}
		}()
	}

	<-ctx.Done()
	log.Println("CMV worker stopping...")
	wg.Wait()
}

func (w *CmvWorker) process(ctx context.Context, id uint) {
	defer w.done(id)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	status, err := w.cmv.Recompute(jobCtx, id)
	w.recordRun(err != nil)
	if err != nil {
		log.Printf("CMV worker: item %d not updated: %v", id, err)
		return
	}
	log.Printf("CMV worker: item %d is now %s", id, status)
}

func (w *CmvWorker) recordRun(failed bool) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if w.lastStatsDay.Before(today) {
		if !w.lastStatsDay.IsZero() {
			log.Printf("CMV worker: daily stats reset (previous day: %d processed, %d failed)", w.processedToday, w.failedToday)
		}
		w.processedToday, w.failedToday = 0, 0
		w.lastStatsDay = today
	}
	w.processedToday++
	if failed {
		w.failedToday++
	}
	w.lastRunAt = now
}

// Status reports queue depth and today's counters.
func (w *CmvWorker) Status() CmvWorkerStatus {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return CmvWorkerStatus{
		Workers:        w.workers,
		QueueSize:      w.QueueSize(),
		ProcessedToday: w.processedToday,
		FailedToday:    w.failedToday,
		LastRunAt:      w.lastRunAt,
	}
}
