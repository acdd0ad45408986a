package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	"github.com/ledger-service/ledger_service/pkg/metrics"
)

// Drift describes one wallet whose projection disagrees with the sum of
// its SUCCESS entries.
type Drift struct {
	UserID     uuid.UUID         `json:"user_id"`
	Currency   entities.Currency `json:"currency"`
	Projected  decimal.Decimal   `json:"projected"`
	Recomputed decimal.Decimal   `json:"recomputed"`
	Delta      decimal.Decimal   `json:"delta"`
}

// Reconcile recomputes every wallet balance from the ledger and reports
// wallets that drifted. It never mutates anything; drift means a bug,
// and the fix is a human decision.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	wallets, err := s.walletRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, wallet := range wallets {
		if err := ctx.Err(); err != nil {
			return drifts, err
		}

		recomputed, err := s.ledgerRepo.SumSuccess(ctx, wallet.UserID, wallet.Currency)
		if err != nil {
			return drifts, err
		}

		if !wallet.Balance.Equal(recomputed) {
			drift := Drift{
				UserID:     wallet.UserID,
				Currency:   wallet.Currency,
				Projected:  wallet.Balance,
				Recomputed: recomputed,
				Delta:      wallet.Balance.Sub(recomputed),
			}
			drifts = append(drifts, drift)
			s.logger.Error("wallet balance drift detected",
				"user_id", drift.UserID, "currency", drift.Currency,
				"projected", drift.Projected.String(),
				"recomputed", drift.Recomputed.String())
		}
	}

	metrics.ReconciliationDriftGauge.Set(float64(len(drifts)))
	return drifts, nil
}
