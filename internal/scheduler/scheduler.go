// Package scheduler runs discoveries over batches of entries with a bounded
// number in flight, leaving each entry's status as the durable record of
// progress.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ZacMelendez/passporter/config"
	"github.com/ZacMelendez/passporter/internal/metrics"
	"github.com/ZacMelendez/passporter/internal/model"
	"github.com/ZacMelendez/passporter/internal/persistence"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const maxErrorMessageLen = 500

// Discoverer runs the full discovery for one raw URL and never fails.
type Discoverer interface {
	DiscoverWithFallback(ctx context.Context, rawURL string) *model.DiscoveryResult
}

type BatchScheduler struct {
	cfg       *config.SchedulerConfig
	store     persistence.EntryStorage
	discovery Discoverer
	events    chan<- *model.DiscoveryEvent
	metrics   *metrics.DiscoveryMetrics
	limiter   *rate.Limiter
	log       *slog.Logger

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewBatchScheduler wires the scheduler. events and m may be nil; event
// publishing and metrics are then skipped.
func NewBatchScheduler(cfg *config.SchedulerConfig, store persistence.EntryStorage, discovery Discoverer,
	events chan<- *model.DiscoveryEvent, m *metrics.DiscoveryMetrics, log *slog.Logger) *BatchScheduler {
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &BatchScheduler{
		cfg:       cfg,
		store:     store,
		discovery: discovery,
		events:    events,
		metrics:   m,
		limiter:   limiter,
		log:       log,
		quit:      make(chan struct{}),
	}
}

// StartBatch queues the ids in the order supplied and returns immediately
// with the batch correlation id. A pool of min(concurrency, len(ids)) workers
// drains the queue; as soon as one entry finishes, the next queued id starts.
// Completion is observable only through the store's aggregate status counts.
func (bs *BatchScheduler) StartBatch(ids []int64, concurrency int) string {
	batchID := uuid.NewString()
	if concurrency <= 0 {
		concurrency = bs.cfg.Concurrency
	}
	if concurrency > len(ids) {
		concurrency = len(ids)
	}
	if len(ids) == 0 {
		bs.log.Info("batch has no entries.", slog.String("batch_id", batchID))
		return batchID
	}

	idChan := make(chan int64, len(ids))
	for _, id := range ids {
		idChan <- id
	}
	close(idChan)

	bs.log.Info("starting batch.", slog.String("batch_id", batchID),
		slog.Int("entries", len(ids)), slog.Int("concurrency", concurrency))
	if bs.metrics != nil {
		bs.metrics.BatchesStarted.Inc()
	}

	bs.wg.Add(1)
	go func() {
		defer bs.wg.Done()
		start := time.Now()
		workerWg := &sync.WaitGroup{}
		for i := 0; i < concurrency; i++ {
			workerWg.Add(1)
			go bs.runWorker(batchID, idChan, workerWg)
		}
		workerWg.Wait()
		bs.log.Info("batch finished.", slog.String("batch_id", batchID),
			slog.Int("entries", len(ids)), slog.Duration("took", time.Since(start)))
	}()

	return batchID
}

// StartPendingBatch collects entries in pending or error status, oldest
// first, and starts them as one batch.
func (bs *BatchScheduler) StartPendingBatch(concurrency int) (string, int, error) {
	entries, err := bs.store.List([]model.EntryStatus{model.StatusPending, model.StatusError})
	if err != nil {
		return "", 0, err
	}
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}

	return bs.StartBatch(ids, concurrency), len(ids), nil
}

// DiscoverOne synchronously runs the discovery lifecycle for one entry and
// returns its refreshed state. Unknown ids surface ErrEntryNotFound.
func (bs *BatchScheduler) DiscoverOne(id int64) (*model.Entry, error) {
	entry, err := bs.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	bs.runDiscovery("", entry)

	return bs.store.GetByID(id)
}

// Stop prevents workers from taking further queued entries and waits for the
// in-flight ones to finish. Entries left queued keep their current status and
// are picked up by a later batch.
func (bs *BatchScheduler) Stop() {
	close(bs.quit)
	bs.wg.Wait()
	bs.log.Info("scheduler stopped.")
}

func (bs *BatchScheduler) runWorker(batchID string, idChan <-chan int64, wg *sync.WaitGroup) {
	defer wg.Done()
	for id := range idChan {
		select {
		case <-bs.quit:
			return
		default:
		}
		bs.processOne(batchID, id)
	}
}

// processOne skips ids that vanished between batch collection and execution.
func (bs *BatchScheduler) processOne(batchID string, id int64) {
	entry, err := bs.store.GetByID(id)
	if err != nil {
		if errors.Is(err, persistence.ErrEntryNotFound) {
			bs.log.Warn("entry vanished before discovery. skipping.", slog.Int64("id", id))
			return
		}
		bs.log.Error("failed to load entry.", slog.Int64("id", id), slog.String("err", err.Error()))
		return
	}
	bs.runDiscovery(batchID, entry)
}

func (bs *BatchScheduler) runDiscovery(batchID string, entry *model.Entry) {
	if bs.metrics != nil {
		bs.metrics.InFlight.Inc()
		defer bs.metrics.InFlight.Dec()
	}
	start := time.Now()
	status, result := bs.attemptDiscovery(entry)
	elapsed := time.Since(start)
	if bs.metrics != nil {
		bs.metrics.ObserveDiscovery(string(status), elapsed)
	}
	bs.publish(batchID, entry, status, result, elapsed)
}

// attemptDiscovery runs the status lifecycle for one entry:
// in_progress, then done, no_results or error. A panic anywhere inside is
// written to the entry as status=error; nothing propagates to the worker, so
// one failing entry cannot stop its batch.
func (bs *BatchScheduler) attemptDiscovery(entry *model.Entry) (status model.EntryStatus, result *model.DiscoveryResult) {
	defer func() {
		if r := recover(); r != nil {
			bs.log.Error("discovery panicked.", slog.Int64("id", entry.ID), slog.Any("err", r))
			bs.markError(entry.ID, fmt.Sprint(r))
			status, result = model.StatusError, nil
		}
	}()

	if bs.limiter != nil {
		if err := bs.limiter.Wait(context.Background()); err != nil {
			bs.markError(entry.ID, err.Error())
			return model.StatusError, nil
		}
	}

	if err := bs.store.MarkInProgress(entry.ID); err != nil {
		bs.log.Error("failed to mark entry in progress.", slog.Int64("id", entry.ID),
			slog.String("err", err.Error()))
		bs.markError(entry.ID, err.Error())
		return model.StatusError, nil
	}

	result = bs.discovery.DiscoverWithFallback(context.Background(), entry.URL)

	if result.IsEmpty() {
		if err := bs.store.MarkNoResults(entry.ID); err != nil {
			bs.markError(entry.ID, err.Error())
			return model.StatusError, nil
		}
		return model.StatusNoResults, result
	}
	if err := bs.store.MarkDone(entry.ID, result.PrivacyURL, result.Emails); err != nil {
		bs.markError(entry.ID, err.Error())
		return model.StatusError, nil
	}

	return model.StatusDone, result
}

func (bs *BatchScheduler) markError(id int64, message string) {
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}
	if err := bs.store.MarkError(id, message); err != nil {
		bs.log.Error("failed to mark entry errored.", slog.Int64("id", id),
			slog.String("err", err.Error()))
	}
}

func (bs *BatchScheduler) publish(batchID string, entry *model.Entry, status model.EntryStatus,
	result *model.DiscoveryResult, elapsed time.Duration) {
	if bs.events == nil {
		return
	}
	event := &model.DiscoveryEvent{
		BatchID:    batchID,
		EntryID:    entry.ID,
		URL:        entry.URL,
		Status:     status,
		DurationMs: elapsed.Milliseconds(),
	}
	if result != nil {
		if result.PrivacyURL != nil {
			event.PrivacyURL = *result.PrivacyURL
		}
		event.Emails = result.Emails
	}
	bs.events <- event
}
