package engine

import (
	"context"
	"time"

	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
)

// ResumePending settles PENDING entries that were appended but never
// applied, typically after a crash. Only entries older than grace are
// touched so in-flight transactions are not raced. Returns the number
// of entries resumed.
func (s *Service) ResumePending(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	cutoff := time.Now().Add(-grace)
	entries, err := s.ledgerRepo.ListPending(ctx, cutoff, batchSize)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return resumed, err
		}
		if err := s.ApplyEntry(ctx, entry.ID); err != nil {
			// A busy wallet just means next sweep; anything else is
			// worth surfacing but should not stall the batch.
			if apperrors.IsBusy(err) {
				continue
			}
			s.logger.Error("failed to resume pending entry",
				"entry_id", entry.ID, "error", err)
			continue
		}
		resumed++
	}

	if resumed > 0 {
		s.logger.Info("resumed pending entries", "count", resumed)
	}
	return resumed, nil
}
