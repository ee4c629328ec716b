package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/observability"
	"github.com/rentfolio/escrow-ledger/internal/service"
)

// ReleaseWorker auto-releases held escrow funds whose deadline has passed.
// It polls at regular intervals; SKIP LOCKED claiming makes concurrent
// instances safe.
type ReleaseWorker struct {
	releaseService *service.ReleaseService
	pollInterval   time.Duration
	batchSize      int32
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewReleaseWorker creates a new ReleaseWorker instance.
func NewReleaseWorker(releaseSvc *service.ReleaseService) *ReleaseWorker {
	return &ReleaseWorker{
		releaseService: releaseSvc,
		pollInterval:   30 * time.Second,
		batchSize:      25,
		stopCh:         make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *ReleaseWorker) WithPollInterval(interval time.Duration) *ReleaseWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize sets the batch size for the worker.
func (w *ReleaseWorker) WithBatchSize(size int32) *ReleaseWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and runs the release loop until Stop is called or the context
// is canceled.
func (w *ReleaseWorker) Start(ctx context.Context) {
	zap.L().Info("release worker starting",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int32("batch_size", w.batchSize))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("release worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("release worker stop signal received")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *ReleaseWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func (w *ReleaseWorker) processBatch(ctx context.Context) {
	released, err := w.releaseService.ProcessDueReleases(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("release", "failed")
		zap.L().Error("release worker batch failed", zap.Error(err), zap.Int("released", released))
		return
	}
	observability.IncrementWorkerRun("release", "success")
}

// ProcessOnce processes a single batch immediately.
// Useful for testing or manual triggering.
func (w *ReleaseWorker) ProcessOnce(ctx context.Context) (int, error) {
	return w.releaseService.ProcessDueReleases(ctx, w.batchSize)
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReleaseWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// String returns a string representation of the worker.
func (w *ReleaseWorker) String() string {
	return fmt.Sprintf("ReleaseWorker(interval=%v, batch=%d)", w.pollInterval, w.batchSize)
}
