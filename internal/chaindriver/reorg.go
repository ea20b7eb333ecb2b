package chaindriver

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsq-chain/bsqparser/internal/bsqtypes"
	"github.com/bsq-chain/bsqparser/internal/journal"
)

// asOrphan unwraps err into an *bsqtypes.OrphanDetected if that's what it
// (or something it wraps) is.
func asOrphan(err error) *bsqtypes.OrphanDetected {
	var orphan *bsqtypes.OrphanDetected
	if errors.As(err, &orphan) {
		return orphan
	}
	return nil
}

// maxReorgScanDepth bounds how far back FindLastCommonHeight will walk
// before giving up, matching the teacher's FindReorgHeight's fixed
// 500-block lookback window.
const maxReorgScanDepth = 500

// FindLastCommonHeight walks backward from the local tip, comparing each
// locally-recorded block hash against the source's hash at that height,
// and returns the highest height at which they agree — grounded on the
// teacher's blockchain.Client.FindReorgHeight, generalized from a
// SQL-backed IndexerLog scan to ChainState's in-memory block list.
func (d *Driver) FindLastCommonHeight(ctx context.Context) (uint32, error) {
	signedTip := d.cs.Height()
	if signedTip < 0 {
		return 0, nil
	}
	tipHeight := uint32(signedTip)

	scanFloor := uint32(0)
	if tipHeight > maxReorgScanDepth {
		scanFloor = tipHeight - maxReorgScanDepth
	}

	for h := tipHeight; h > scanFloor; h-- {
		local, ok := d.cs.Block(h)
		if !ok {
			continue
		}
		remote, err := d.src.RequestBlock(ctx, h)
		if err != nil {
			return 0, &bsqtypes.SourceUnavailable{Op: "FindLastCommonHeight", Err: err}
		}
		if local.Hash == remote.Hash {
			return h, nil
		}
	}
	return scanFloor, nil
}

// reconcileOrphan is invoked when the driver observes a block whose
// previous-hash no longer matches its tip. It locates the last common
// ancestor, journals the reorg, and reports the height ingestion should
// resume from — the caller (RunCatchUpAndFollow) is responsible for
// actually re-driving ChainState back to that point, since ChainState
// itself has no rollback primitive (spec.md's Non-goals exclude
// reorg-aware rollback; this path only detects and reports).
func (d *Driver) reconcileOrphan(ctx context.Context, orphan *bsqtypes.OrphanDetected) (uint32, error) {
	commonHeight, err := d.FindLastCommonHeight(ctx)
	if err != nil {
		return 0, err
	}

	_ = d.journal.InsertReorg(journal.ReorgRow{
		Height:       commonHeight + 1,
		EndHeight:    orphan.Height,
		BlockHash:    orphan.PreviousHash,
		NewBlockHash: orphan.TipHash,
		ReorgSize:    int(orphan.Height - commonHeight),
		Timestamp:    nowUnix(),
	})
	d.metrics.OrphanDetected("reorg_reconciled")

	if tip := d.cs.Height(); tip >= 0 && int64(commonHeight) >= tip {
		return 0, fmt.Errorf("reorg reconciliation found no divergence below current tip at height %d", tip)
	}
	return commonHeight, nil
}
