package market

import (
	"context"
	"errors"
	"time"

	"github.com/stake-plus/escrow-market/src/api/escrow"
	"github.com/stake-plus/escrow-market/src/api/types"
	"github.com/stake-plus/escrow-market/src/logging"
)

// SyncReport summarises one reconciler pass.
type SyncReport struct {
	Checked  int
	Advanced int
	Diverged int
	Failed   int
}

// SyncPending reconciles contracts flagged as needing a sync plus live
// contracts whose last sync is older than the stale window. It stops early
// when ctx is cancelled.
func (s *Service) SyncPending(ctx context.Context, limit int) (SyncReport, error) {
	var rep SyncReport
	if s.syncer == nil {
		return rep, nil
	}
	if limit <= 0 {
		limit = 50
	}

	live := []escrow.Status{escrow.StatusCreated, escrow.StatusFunded, escrow.StatusBothSigned,
		escrow.StatusWorkSubmitted, escrow.StatusDisputed}
	cutoff := time.Now().UTC().Add(-s.staleAfter)

	var batch []types.Contract
	err := s.db.WithContext(ctx).
		Where("contract_id IS NOT NULL").
		Where(s.db.Where("needs_sync = ?", true).
			Or("status IN ? AND (chain_synced_at IS NULL OR chain_synced_at < ?)", live, cutoff)).
		Order("needs_sync DESC, chain_synced_at ASC, id ASC").
		Limit(limit).
		Find(&batch).Error
	if err != nil {
		return rep, err
	}

	for i := range batch {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		c := &batch[i]
		rep.Checked++
		outcome, err := s.syncContract(ctx, c, "")
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return rep, err
			}
			rep.Failed++
			logging.Warn(ctx, "contract sync failed", "contract_id", c.EscrowID(), "error", err)
			continue
		}
		switch outcome {
		case escrow.Advanced:
			rep.Advanced++
		case escrow.Diverged:
			rep.Diverged++
		default:
			continue
		}
		msg := "Contract status is now " + string(c.Status)
		s.tell(ctx, c.ClientID, nil, types.NotifySystem, msg, contractLink(c.ID))
		s.tell(ctx, c.FreelancerID, nil, types.NotifySystem, msg, contractLink(c.ID))
	}
	return rep, nil
}
