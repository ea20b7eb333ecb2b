// Package blocksource defines the BlockSource collaborator contract
// (spec.md §4.2) and provides a btcd-RPC-backed implementation.
package blocksource

import (
	"context"

	"github.com/bsq-chain/bsqparser/internal/bsqtypes"
)

// BlockSource supplies raw blocks and transactions on demand from the
// underlying chain node. It is the only collaborator ChainDriver's
// catch-up and live paths block on.
type BlockSource interface {
	// RequestBlock returns the block envelope at height, without its
	// transactions' bodies populated (RawBlock.Txs is left nil; callers
	// fetch those separately via RequestTransaction). Fails with
	// *bsqtypes.SourceUnavailable on transport error.
	RequestBlock(ctx context.Context, height uint32) (*bsqtypes.RawBlock, error)

	// RequestTransaction returns the full transaction with ordered
	// inputs and outputs. expectedHeight is used only for diagnostics
	// (some backends can validate the tx was actually confirmed at that
	// height); it is not required for correctness.
	RequestTransaction(ctx context.Context, txID string, expectedHeight uint32) (*bsqtypes.RawTx, error)

	// BestHeight returns the underlying chain's current tip height.
	BestHeight(ctx context.Context) (uint32, error)
}
