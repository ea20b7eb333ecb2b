package chaindriver

import (
	"context"
	"fmt"
	"time"

	"github.com/bsq-chain/bsqparser/internal/clock"
)

// RunCatchUpAndFollow polls the source for its best height, ingests any
// blocks the driver hasn't seen yet, then sleeps pollInterval and repeats
// until ctx is cancelled — grounded on the teacher's
// blockchain.FtClient.SyncBlocks poll loop, generalized from a
// contract-indexer's "last indexed height" to ChainState.Height().
//
// onFirstSyncDone, if non-nil, fires once after the first catch-up sweep
// reaches the source's best height, mirroring the teacher's
// onFirstSyncDone callback used to gate downstream services until the
// indexer is live.
func (d *Driver) RunCatchUpAndFollow(ctx context.Context, pollInterval time.Duration, onBlock OnBlock, onFirstSyncDone func()) error {
	firstSyncDone := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		bestHeight, err := d.src.BestHeight(ctx)
		if err != nil {
			d.log.Error().Err(err).Msg("failed to query source best height")
			if !clock.SleepWithContext(ctx, pollInterval) {
				return ctx.Err()
			}
			continue
		}

		localHeight := d.cs.Height()
		var nextHeight uint32
		if localHeight < 0 {
			nextHeight = 0 // no blocks committed yet: sweep from height 0, not from the genesis height
		} else {
			nextHeight = uint32(localHeight) + 1
		}

		if bestHeight < nextHeight {
			if !firstSyncDone {
				firstSyncDone = true
				d.log.Info().Int64("height", localHeight).Msg("caught up to source tip")
				if onFirstSyncDone != nil {
					onFirstSyncDone()
				}
			}
			if !clock.SleepWithContext(ctx, pollInterval) {
				return ctx.Err()
			}
			continue
		}

		d.log.Info().Uint32("from", nextHeight).Uint32("to", bestHeight).Msg("catching up")
		if err := d.ParseBlocks(ctx, nextHeight, bestHeight, onBlock); err != nil {
			if orphan := asOrphan(err); orphan != nil {
				commonHeight, err2 := d.reconcileOrphan(ctx, orphan)
				if err2 != nil {
					return fmt.Errorf("reorg reconciliation failed: %w", err2)
				}
				d.log.Warn().Uint32("common_height", commonHeight).Msg("reconciled reorg, resuming from common ancestor")
				continue
			}
			return err
		}
	}
}
