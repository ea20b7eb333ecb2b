package blocksource

import (
	"context"
	"sync"

	"github.com/bsq-chain/bsqparser/internal/bsqtypes"
)

// FetchBlockTxs populates block.Txs by fetching each of block.TxIDs via
// src.RequestTransaction, using a bounded worker pool for the concurrent
// I/O (adapted from blockinsight7000-backend's pkg/workerpool.Process).
// §5 only requires that BlockParser see transactions in declared order,
// not that the fetch itself be sequential — RPC calls are independent
// reads — so results are written into a pre-sized slice by index rather
// than appended, keeping block.TxIDs' order intact regardless of which
// worker finishes first.
func FetchBlockTxs(ctx context.Context, src BlockSource, block *bsqtypes.RawBlock, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	n := len(block.TxIDs)
	block.Txs = make([]*bsqtypes.RawTx, n)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type job struct {
		idx  int
		txID string
	}
	jobs := make(chan job, concurrency)
	errs := make(chan error, 1)
	var wg sync.WaitGroup

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				tx, err := src.RequestTransaction(ctx, j.txID, block.Height)
				if err != nil {
					select {
					case errs <- err:
					default:
					}
					cancel()
					return
				}
				block.Txs[j.idx] = tx
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, txID := range block.TxIDs {
			select {
			case <-ctx.Done():
				return
			case jobs <- job{idx: i, txID: txID}:
			}
		}
	}()

	wg.Wait()
	select {
	case err := <-errs:
		return err
	default:
	}
	// A cancelled parent ctx can stop the feeder before every tx was
	// fetched; report it rather than return a partially populated block.
	return ctx.Err()
}
