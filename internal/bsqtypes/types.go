// Package bsqtypes defines the wire and domain data model shared by the
// BSQ parser packages: raw chain data as supplied by a BlockSource, and
// the colored-coin view produced by the parser.
package bsqtypes

import "fmt"

// RawInput is one input of a transaction as reported by the underlying
// chain, identified by the outpoint it spends.
type RawInput struct {
	SpendingTxID          string
	SpendingOutputIndex   uint32
}

// RawOutput is one output of a transaction as reported by the underlying
// chain.
type RawOutput struct {
	Index   uint32
	Value   uint64
	Address string // optional, empty if the chain didn't decode one
}

// RawTx is a full transaction as supplied by BlockSource.request_transaction.
type RawTx struct {
	ID      string
	Inputs  []RawInput
	Outputs []RawOutput
}

// Validate checks structural well-formedness of a fetched transaction.
func (t *RawTx) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("tx has empty id")
	}
	for idx, out := range t.Outputs {
		if int(out.Index) != idx {
			return fmt.Errorf("tx %s: output %d has non-sequential index %d", t.ID, idx, out.Index)
		}
	}
	return nil
}

// RawBlock is the block envelope as supplied by BlockSource.request_block:
// height, hash linkage, block time, and the ordered tx-id list. Outputs and
// inputs for each tx are fetched separately and attached by the caller
// before the block reaches BlockParser.
type RawBlock struct {
	Height       uint32
	Hash         string
	PreviousHash string
	BlockTime    int64
	TxIDs        []string
	Txs          []*RawTx // same order as TxIDs, populated by the fetch step
}

// Validate checks structural well-formedness of a fetched block.
func (b *RawBlock) Validate() error {
	if b.Hash == "" {
		return fmt.Errorf("block %d has empty hash", b.Height)
	}
	if len(b.Txs) != len(b.TxIDs) {
		return fmt.Errorf("block %d: %d txs fetched, expected %d", b.Height, len(b.Txs), len(b.TxIDs))
	}
	for i, tx := range b.Txs {
		if tx.ID != b.TxIDs[i] {
			return fmt.Errorf("block %d: tx at position %d is %s, expected %s", b.Height, i, tx.ID, b.TxIDs[i])
		}
	}
	return nil
}

// TxOutput is a single colored output, keyed by (TxID, Index).
type TxOutput struct {
	TxID    string
	Index   uint32
	Value   uint64
	Address string
}

// Key returns the canonical "txid:index" identity of the output.
func (o TxOutput) Key() string {
	return OutpointKey(o.TxID, o.Index)
}

// OutpointKey builds the canonical identity string for an output.
func OutpointKey(txID string, index uint32) string {
	return fmt.Sprintf("%s:%d", txID, index)
}

// SpentInfo records the consumer of a previously colored output.
type SpentInfo struct {
	BlockHeight   uint32
	SpendingTxID  string
	InputIndex    int
}

// Tx is a colored transaction as recorded in chain state: its id, the
// height it was classified at, and its ordered inputs/outputs exactly as
// they arrived from the chain (outputs beyond the colored prefix are kept
// here too, since ChainState's verified-output set is the source of truth
// for which of them are colored).
type Tx struct {
	ID          string
	BlockHeight uint32
	Inputs      []RawInput
	Outputs     []RawOutput
}

// ColoredBlock is the colored view of one underlying block: a subset of
// its transactions, in the order the fixed-point discovered them.
type ColoredBlock struct {
	Height       uint32
	Hash         string
	PreviousHash string
	BlockTime    int64
	ColoredTxIDs []string
}
