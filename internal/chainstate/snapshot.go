package chainstate

import "github.com/bsq-chain/bsqparser/internal/bsqtypes"

// Snapshot is an immutable, deep-copied read view of ChainState, published
// after each successful block commit. Readers on other goroutines (UI,
// the optional HTTP surface, the optional snapshot persister) consume
// Snapshot values instead of touching ChainState's live maps directly.
type Snapshot struct {
	Height      int64
	TipHash     string
	TxCount     int
	OutputCount int
	SpentCount  int
	BurnedTotal uint64
	LastBlocks  []bsqtypes.ColoredBlock
}

// maxSnapshotBlocks bounds how many recent colored blocks a snapshot
// carries, so a long-running chain doesn't make every snapshot O(height).
const maxSnapshotBlocks = 64

// Snapshot returns the current immutable read view.
func (c *ChainState) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *ChainState) snapshotLocked() Snapshot {
	var burned uint64
	for _, v := range c.burned {
		burned += v
	}
	n := len(c.blocks)
	start := 0
	if n > maxSnapshotBlocks {
		start = n - maxSnapshotBlocks
	}
	last := make([]bsqtypes.ColoredBlock, n-start)
	copy(last, c.blocks[start:])
	for i := range last {
		last[i].ColoredTxIDs = append([]string(nil), last[i].ColoredTxIDs...)
	}

	return Snapshot{
		Height:      c.heightLocked(),
		TipHash:     c.tipHash,
		TxCount:     len(c.txs),
		OutputCount: len(c.outputs),
		SpentCount:  len(c.spent),
		BurnedTotal: burned,
		LastBlocks:  last,
	}
}

// Subscribe registers fn to be invoked, synchronously and on the calling
// (parser worker) goroutine, from within every successful AddBlock: after
// the block is appended, while ChainState's write lock is still held, and
// before AddBlock returns.
// A subscriber that must not block the worker is responsible for handing
// the snapshot off to its own goroutine, exactly as internal/chainsnapshot
// does.
func (c *ChainState) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// notifyLocked must be called with c.mu held for writing, after a
// successful AddBlock, so subscribers observe chain state that already
// includes the just-committed block.
func (c *ChainState) notifyLocked() {
	if len(c.subscribers) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, fn := range c.subscribers {
		fn(snap)
	}
}
