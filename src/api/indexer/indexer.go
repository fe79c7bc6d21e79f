// Package indexer keeps the contract mirror in step with the escrow
// contract between user actions.
package indexer

import (
	"context"
	"time"

	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/logging"
)

// Reconciler is the part of the market service the indexer drives.
type Reconciler interface {
	SyncPending(ctx context.Context, limit int) (market.SyncReport, error)
}

const batchSize = 50

// RunOnce reconciles one batch of contracts.
func RunOnce(ctx context.Context, r Reconciler) {
	start := time.Now()
	rep, err := r.SyncPending(ctx, batchSize)
	if err != nil {
		if ctx.Err() == nil {
			logging.Error(ctx, "contract sync pass failed", "error", err)
		}
		return
	}
	if rep.Checked == 0 {
		return
	}
	logging.Info(ctx, "contract sync pass",
		"checked", rep.Checked,
		"advanced", rep.Advanced,
		"diverged", rep.Diverged,
		"failed", rep.Failed,
		"took", time.Since(start).Round(time.Millisecond))
}

// IndexerService runs a pass immediately and then every interval until ctx
// is done.
func IndexerService(ctx context.Context, r Reconciler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	RunOnce(ctx, r)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RunOnce(ctx, r)
		}
	}
}
