package roi_worker

import (
	"context"
	"time"

	"github.com/ledger-service/ledger_service/internal/domain/services/roi"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// Worker drives the ROI scheduler on a fixed interval. Ticks are
// idempotent, so a missed or doubled interval is harmless.
type Worker struct {
	roiService *roi.Service
	interval   time.Duration
	logger     *logger.Logger
	stopCh     chan struct{}
}

func NewWorker(roiService *roi.Service, interval time.Duration, log *logger.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		roiService: roiService,
		interval:   interval,
		logger:     log,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the worker processing loop
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting ROI worker", "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Catch up immediately on boot rather than waiting a full interval
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ROI worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("ROI worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Stop signals the worker to stop
func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := w.roiService.Tick(tickCtx, time.Now()); err != nil {
		w.logger.Error("ROI tick failed", "error", err)
	}
}
