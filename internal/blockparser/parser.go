// Package blockparser classifies one block's transactions into the
// colored set using the BSQ coloring rule plus an intra-block fixed
// point, following spec.md §4.3.
//
// Output-index ordering makes the coloring deterministic and
// user-controllable: the tx author places colored outputs first. Burned
// fees are the implicit mechanism by which protocol fees are paid in the
// colored asset (grounded on the conservation-check style of the
// klingnet-chain token package: Σ consumed == Σ produced + burned).
package blockparser

import (
	"fmt"

	"github.com/bsq-chain/bsqparser/internal/bsqtypes"
	"github.com/bsq-chain/bsqparser/internal/chainstate"
)

// DefaultMaxIntraBlockRecursions is the reference cap from spec.md §4.3 /
// §6: derived from a theoretical block-size bound, large enough that no
// legitimate block should ever approach it.
const DefaultMaxIntraBlockRecursions = 5300

// DefaultWarnRecursionThreshold is the reference depth above which a
// warning should be logged (spec.md §6).
const DefaultWarnRecursionThreshold = 100

// Config carries the genesis identity and fixed-point guard values a
// Parser needs; it is a narrow view of internal/config.Config so this
// package has no dependency on the config loader.
type Config struct {
	GenesisHeight          uint32
	GenesisTxID            string
	MaxIntraBlockRecursions int
	WarnRecursionThreshold  int
}

// WithDefaults fills zero-valued guard fields with the spec's reference
// constants.
func (c Config) WithDefaults() Config {
	if c.MaxIntraBlockRecursions <= 0 {
		c.MaxIntraBlockRecursions = DefaultMaxIntraBlockRecursions
	}
	if c.WarnRecursionThreshold <= 0 {
		c.WarnRecursionThreshold = DefaultWarnRecursionThreshold
	}
	return c
}

// DepthWarner is invoked when the fixed-point's depth counter exceeds
// WarnRecursionThreshold; it is expected to log, not abort.
type DepthWarner func(height uint32, depth int, remaining int)

// Parser classifies a block's transactions against a ChainState.
type Parser struct {
	cfg    Config
	warner DepthWarner
}

// New returns a Parser. warner may be nil.
func New(cfg Config, warner DepthWarner) *Parser {
	return &Parser{cfg: cfg.WithDefaults(), warner: warner}
}

// stagedOutput and stagedSpend are the staged effects of classifying one
// tx, applied to ChainState only once the whole block has classified
// cleanly (see internal/chaindriver's atomicity note, spec.md §7 EXP-9).
type stagedOutput struct {
	out bsqtypes.TxOutput
}

type stagedSpend struct {
	spentTxID    string
	spentIndex   uint32
	info         bsqtypes.SpentInfo
}

// Result is the staged outcome of parsing one block: nothing has been
// written to ChainState yet.
type Result struct {
	Block        bsqtypes.ColoredBlock
	GenesisTxID  string // set iff this block contains the genesis tx
	Txs          []bsqtypes.Tx
	Outputs      []stagedOutput
	Spends       []stagedSpend
	BurnedFees   map[string]uint64
	MaxDepth     int
}

// spendableLookup abstracts ChainState.GetSpendableTxOutput plus the
// outputs/spends staged so far in this same block — a tx later in the
// same block must be able to see outputs verified by an earlier tx in
// the fixed-point, even though none of them have reached ChainState yet.
type spendableLookup struct {
	cs      *chainstate.ChainState
	staged  map[string]bsqtypes.TxOutput // txid:index -> output, this block only
	spent   map[string]bool              // txid:index spent within this block so far
}

func (l *spendableLookup) get(txID string, index uint32) (bsqtypes.TxOutput, bool) {
	key := bsqtypes.OutpointKey(txID, index)
	if l.spent[key] {
		return bsqtypes.TxOutput{}, false
	}
	if out, ok := l.staged[key]; ok {
		return out, true
	}
	return l.cs.GetSpendableTxOutput(txID, index)
}

func (l *spendableLookup) markSpent(txID string, index uint32) {
	l.spent[bsqtypes.OutpointKey(txID, index)] = true
}

func (l *spendableLookup) stage(out bsqtypes.TxOutput) {
	l.staged[out.Key()] = out
}

// Parse classifies every tx in block against cs (read-only; all effects
// are staged into the returned Result) and returns an error only for a
// fatal InvariantViolation — a structural check failure, or the
// fixed-point exceeding its recursion cap.
func (p *Parser) Parse(cs *chainstate.ChainState, block *bsqtypes.RawBlock) (*Result, error) {
	res := &Result{
		Block: bsqtypes.ColoredBlock{
			Height:       block.Height,
			Hash:         block.Hash,
			PreviousHash: block.PreviousHash,
			BlockTime:    block.BlockTime,
		},
		BurnedFees: make(map[string]uint64),
	}
	lookup := &spendableLookup{
		cs:     cs,
		staged: make(map[string]bsqtypes.TxOutput),
		spent:  make(map[string]bool),
	}

	remaining := make([]*bsqtypes.RawTx, 0, len(block.Txs))
	for _, tx := range block.Txs {
		if p.isGenesis(block.Height, tx.ID) {
			p.classifyGenesis(res, lookup, tx)
			res.GenesisTxID = tx.ID
			continue
		}
		remaining = append(remaining, tx)
	}

	if err := p.fixedPoint(res, lookup, block.Height, remaining); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Parser) isGenesis(height uint32, txID string) bool {
	return height == p.cfg.GenesisHeight && txID == p.cfg.GenesisTxID
}

// classifyGenesis implements spec.md §4.3 step 1: every output of the
// genesis tx is colored at full face value; the tx itself is recorded.
func (p *Parser) classifyGenesis(res *Result, lookup *spendableLookup, tx *bsqtypes.RawTx) {
	res.Txs = append(res.Txs, bsqtypes.Tx{
		ID:          tx.ID,
		BlockHeight: res.Block.Height,
		Inputs:      toRawInputs(tx.Inputs),
		Outputs:     tx.Outputs,
	})
	for _, out := range tx.Outputs {
		colored := bsqtypes.TxOutput{TxID: tx.ID, Index: out.Index, Value: out.Value, Address: out.Address}
		res.Outputs = append(res.Outputs, stagedOutput{out: colored})
		lookup.stage(colored)
	}
	res.Block.ColoredTxIDs = append(res.Block.ColoredTxIDs, tx.ID)
}

func toRawInputs(ins []bsqtypes.RawInput) []bsqtypes.RawInput {
	out := make([]bsqtypes.RawInput, len(ins))
	copy(out, ins)
	return out
}

// fixedPoint implements spec.md §4.3 steps 2-4 as a worklist loop over
// (ready, deferred) partitions — equivalent to one pass of Kahn's
// algorithm over the intra-block dependency DAG, per §9's recommendation
// and this spec's EXP-5. Each iteration, every tx whose inputs don't
// reference another not-yet-classified tx in the same worklist is
// "ready" and gets classified; the producer set for the next iteration
// strictly shrinks (every ready tx is now classified, so its outputs are
// either in ChainState/staged or will never be), guaranteeing
// termination within the cap.
func (p *Parser) fixedPoint(res *Result, lookup *spendableLookup, height uint32, txs []*bsqtypes.RawTx) error {
	depth := 0
	for len(txs) > 0 {
		depth++
		if depth > p.cfg.MaxIntraBlockRecursions {
			return &bsqtypes.InvariantViolation{
				Height: height,
				Reason: fmt.Sprintf("fixed-point exceeded max_intra_block_recursions=%d with %d tx(s) still deferred", p.cfg.MaxIntraBlockRecursions, len(txs)),
			}
		}
		if depth > p.cfg.WarnRecursionThreshold && p.warner != nil {
			p.warner(height, depth, len(txs))
		}

		producers := make(map[string]bool, len(txs))
		for _, tx := range txs {
			producers[tx.ID] = true
		}

		var ready, deferred []*bsqtypes.RawTx
		for _, tx := range txs {
			isDeferred := false
			for _, in := range tx.Inputs {
				if in.SpendingTxID != tx.ID && producers[in.SpendingTxID] {
					isDeferred = true
					break
				}
			}
			if isDeferred {
				deferred = append(deferred, tx)
			} else {
				ready = append(ready, tx)
			}
		}

		if len(ready) == 0 {
			// Every remaining tx claims to depend on another remaining
			// tx, i.e. a cycle — impossible under a valid same-block
			// producer/consumer DAG. This is the partition arithmetic
			// check from spec.md §7.
			return &bsqtypes.InvariantViolation{
				Height: height,
				Reason: fmt.Sprintf("intra-block partition made no progress with %d tx(s) remaining (dependency cycle)", len(txs)),
			}
		}

		for _, tx := range ready {
			p.classifyTx(res, lookup, height, tx)
		}

		txs = deferred
	}
	res.MaxDepth = depth
	return nil
}

// classifyTx implements the per-tx coloring rule from spec.md §4.3.
func (p *Parser) classifyTx(res *Result, lookup *spendableLookup, height uint32, tx *bsqtypes.RawTx) {
	var available uint64

	// Step 1: walk inputs in declared order. Every spendable input found
	// is consumed and recorded as spent immediately — not deferred until
	// we know whether the tx ends up colored — so that an output
	// referenced twice (by two inputs of this tx, or across txs in the
	// same block) is honored only once: the first reference wins, the
	// second finds it already spent (spec.md §4.3 tie-break).
	for idx, in := range tx.Inputs {
		out, ok := lookup.get(in.SpendingTxID, in.SpendingOutputIndex)
		if !ok {
			continue // non-colored or already-spent input: silently contributes nothing
		}
		lookup.markSpent(in.SpendingTxID, in.SpendingOutputIndex)
		res.Spends = append(res.Spends, stagedSpend{
			spentTxID:  in.SpendingTxID,
			spentIndex: in.SpendingOutputIndex,
			info: bsqtypes.SpentInfo{
				BlockHeight:  height,
				SpendingTxID: tx.ID,
				InputIndex:   idx,
			},
		})
		available += out.Value
	}

	if available == 0 {
		return // not colored; no further effect
	}

	res.Txs = append(res.Txs, bsqtypes.Tx{
		ID:          tx.ID,
		BlockHeight: height,
		Inputs:      toRawInputs(tx.Inputs),
		Outputs:     tx.Outputs,
	})
	res.Block.ColoredTxIDs = append(res.Block.ColoredTxIDs, tx.ID)

	for _, out := range tx.Outputs {
		if available == 0 {
			break
		}
		if available < out.Value {
			break
		}
		colored := bsqtypes.TxOutput{TxID: tx.ID, Index: out.Index, Value: out.Value, Address: out.Address}
		res.Outputs = append(res.Outputs, stagedOutput{out: colored})
		lookup.stage(colored)
		available -= out.Value
	}

	if available > 0 {
		res.BurnedFees[tx.ID] += available
	}
}
