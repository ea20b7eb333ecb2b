// Package chainstate implements ChainState, the in-memory authoritative
// store of parsed BSQ blocks, colored transactions, unspent colored
// outputs, spent-info records, and burned-fee tallies.
//
// ChainState exclusively owns its maps and the block list; every mutation
// flows through its methods, mirroring the ownership discipline the
// teacher's UTXOIndexer applies to its Pebble-backed stores, but kept
// entirely in memory per this package's scope (persistence is an
// external collaborator, see internal/chainsnapshot).
package chainstate

import (
	"sync"

	"github.com/bsq-chain/bsqparser/internal/bsqtypes"
)

// ChainState is the single shared mutable resource described in the
// concurrency model: exactly one writer (the parser worker) calls the
// mutating methods below; all methods take the internal mutex, so other
// contexts may call the read methods safely from any goroutine.
type ChainState struct {
	mu sync.RWMutex

	blocks  []bsqtypes.ColoredBlock
	tipHash string

	genesisTxID string
	genesisSet  bool

	txs     map[string]bsqtypes.Tx
	outputs map[string]bsqtypes.TxOutput // key: "txid:index", verified-colored-and-unspent
	spent   map[string]bsqtypes.SpentInfo
	burned  map[string]uint64

	subscribers []func(Snapshot)
}

// New returns an empty ChainState.
func New() *ChainState {
	return &ChainState{
		txs:     make(map[string]bsqtypes.Tx),
		outputs: make(map[string]bsqtypes.TxOutput),
		spent:   make(map[string]bsqtypes.SpentInfo),
		burned:  make(map[string]uint64),
	}
}

// IsBlockConnecting reports whether prevHash is acceptable as the
// previous-hash of the next block to be appended: true if the store is
// empty, or prevHash equals the most recently appended block's hash.
func (c *ChainState) IsBlockConnecting(prevHash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isBlockConnectingLocked(prevHash)
}

func (c *ChainState) isBlockConnectingLocked(prevHash string) bool {
	if len(c.blocks) == 0 {
		return true
	}
	return c.tipHash == prevHash
}

// AddBlock appends a fully parsed colored-block record. The precondition
// IsBlockConnecting(block.PreviousHash) must have held when parsing of
// this block began; it is re-checked here at commit time, since another
// writer could in principle have mutated chain state in between (the
// single-writer discipline makes this check a defensive re-validation
// rather than a race window in practice).
func (c *ChainState) AddBlock(block bsqtypes.ColoredBlock) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isBlockConnectingLocked(block.PreviousHash) {
		return &bsqtypes.ChainLinkageError{
			Height:       block.Height,
			Expected:     c.tipHash,
			PreviousHash: block.PreviousHash,
		}
	}

	c.blocks = append(c.blocks, block)
	c.tipHash = block.Hash
	c.notifyLocked()
	return nil
}

// SetGenesisTx records the genesis tx id once. Subsequent calls with a
// different id fail with GenesisConflictError; calls with the same id are
// idempotent.
func (c *ChainState) SetGenesisTx(txID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.genesisSet && c.genesisTxID != txID {
		return &bsqtypes.GenesisConflictError{Existing: c.genesisTxID, Attempted: txID}
	}
	c.genesisTxID = txID
	c.genesisSet = true
	return nil
}

// AddTx inserts a tx into the colored-tx map keyed by id. Idempotent.
func (c *ChainState) AddTx(tx bsqtypes.Tx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[tx.ID] = tx
}

// AddVerifiedTxOutput marks an output as colored and unspent. Idempotent.
func (c *ChainState) AddVerifiedTxOutput(out bsqtypes.TxOutput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[out.Key()] = out
}

// GetSpendableTxOutput returns the output iff it is verified colored and
// has not been recorded as spent.
func (c *ChainState) GetSpendableTxOutput(txID string, index uint32) (bsqtypes.TxOutput, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key := bsqtypes.OutpointKey(txID, index)
	out, ok := c.outputs[key]
	if !ok {
		return bsqtypes.TxOutput{}, false
	}
	if _, spent := c.spent[key]; spent {
		return bsqtypes.TxOutput{}, false
	}
	return out, true
}

// AddSpentTxWithSpentInfo records consumption of a previously colored
// output; subsequent GetSpendableTxOutput calls for the same key return
// false.
func (c *ChainState) AddSpentTxWithSpentInfo(out bsqtypes.TxOutput, info bsqtypes.SpentInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spent[out.Key()] = info
}

// AddBurnedFee records the colored-value burn for a tx. amount must be
// positive; callers are expected to have already checked this (the
// coloring rule only calls it with a positive remainder).
func (c *ChainState) AddBurnedFee(txID string, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.burned[txID] += amount
}

// BurnedFee returns the recorded burn for a tx, 0 if none.
func (c *ChainState) BurnedFee(txID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.burned[txID]
}

// TxByID returns a recorded colored tx.
func (c *ChainState) TxByID(txID string) (bsqtypes.Tx, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.txs[txID]
	return tx, ok
}

// Height returns the height of the most recently appended block, or -1
// if the store is empty.
func (c *ChainState) Height() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heightLocked()
}

func (c *ChainState) heightLocked() int64 {
	if len(c.blocks) == 0 {
		return -1
	}
	return int64(c.blocks[len(c.blocks)-1].Height)
}

// TipHash returns the hash of the most recently appended block, "" if
// the store is empty.
func (c *ChainState) TipHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tipHash
}

// Block returns the colored block at the given height, if present.
func (c *ChainState) Block(height uint32) (bsqtypes.ColoredBlock, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.blocks {
		if b.Height == height {
			return b, true
		}
	}
	return bsqtypes.ColoredBlock{}, false
}
