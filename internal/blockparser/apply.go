package blockparser

import (
	"github.com/bsq-chain/bsqparser/internal/bsqtypes"
	"github.com/bsq-chain/bsqparser/internal/chainstate"
)

// Apply commits a Result's staged effects to cs as a single pass of
// ChainState mutator calls. Only SetGenesisTx can fail here — a second,
// distinct genesis tx would be a GenesisConflictError — and it is called
// first, before any other mutation, so a conflict leaves cs completely
// untouched for this block (spec.md §7 EXP-9's per-block atomicity).
func (r *Result) Apply(cs *chainstate.ChainState) error {
	if r.GenesisTxID != "" {
		if err := cs.SetGenesisTx(r.GenesisTxID); err != nil {
			return err
		}
	}
	for _, tx := range r.Txs {
		cs.AddTx(tx)
	}
	for _, o := range r.Outputs {
		cs.AddVerifiedTxOutput(o.out)
	}
	for _, s := range r.Spends {
		spentOut := bsqtypes.TxOutput{TxID: s.spentTxID, Index: s.spentIndex}
		cs.AddSpentTxWithSpentInfo(spentOut, s.info)
	}
	for txID, amount := range r.BurnedFees {
		if amount > 0 {
			cs.AddBurnedFee(txID, amount)
		}
	}
	return nil
}
