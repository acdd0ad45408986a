package settlement_recovery

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ledger-service/ledger_service/internal/domain/services/engine"
	"github.com/ledger-service/ledger_service/internal/infrastructure/config"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// Worker runs the two maintenance sweeps over the ledger: resuming
// PENDING entries that lost their process, and the nightly balance
// reconciliation.
type Worker struct {
	engine *engine.Service
	cfg    config.RecoveryConfig
	cron   *cron.Cron
	logger *logger.Logger
}

func NewWorker(engineService *engine.Service, cfg config.RecoveryConfig, log *logger.Logger) *Worker {
	return &Worker{
		engine: engineService,
		cfg:    cfg,
		cron:   cron.New(),
		logger: log,
	}
}

func (w *Worker) Start() error {
	grace := time.Duration(w.cfg.GraceSeconds) * time.Second

	_, err := w.cron.AddFunc(w.cfg.ResumeSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if _, err := w.engine.ResumePending(ctx, grace, w.cfg.BatchSize); err != nil {
			w.logger.Error("Failed to resume pending entries", "error", err)
		}
	})
	if err != nil {
		return err
	}

	_, err = w.cron.AddFunc(w.cfg.ReconcileSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		drifts, err := w.engine.Reconcile(ctx)
		if err != nil {
			w.logger.Error("Reconciliation sweep failed", "error", err)
			return
		}
		if len(drifts) > 0 {
			w.logger.Error("Reconciliation found drifted wallets", "count", len(drifts))
		}
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Settlement recovery worker started",
		"resume_spec", w.cfg.ResumeSpec, "reconcile_spec", w.cfg.ReconcileSpec)
	return nil
}

func (w *Worker) Stop() {
	w.cron.Stop()
	w.logger.Info("Settlement recovery worker stopped")
}
