package chaindriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bsq-chain/bsqparser/internal/blockparser"
	"github.com/bsq-chain/bsqparser/internal/bsqtypes"
	"github.com/bsq-chain/bsqparser/internal/chainstate"
)

const (
	genesisHeight = 100
	genesisTxID   = "G"
)

// fakeSource is an in-memory blocksource.BlockSource backed by a fixed
// set of RawBlocks/RawTxs, for driving ChainDriver in tests without any
// real RPC or network dependency.
type fakeSource struct {
	blocks map[uint32]*bsqtypes.RawBlock
	txs    map[string]*bsqtypes.RawTx
	best   uint32
}

func newFakeSource() *fakeSource {
	return &fakeSource{blocks: map[uint32]*bsqtypes.RawBlock{}, txs: map[string]*bsqtypes.RawTx{}}
}

func (f *fakeSource) addBlock(height uint32, hash, prevHash string, txs ...*bsqtypes.RawTx) {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
		f.txs[tx.ID] = tx
	}
	f.blocks[height] = &bsqtypes.RawBlock{Height: height, Hash: hash, PreviousHash: prevHash, TxIDs: ids}
	if height > f.best {
		f.best = height
	}
}

func (f *fakeSource) RequestBlock(_ context.Context, height uint32) (*bsqtypes.RawBlock, error) {
	b, ok := f.blocks[height]
	if !ok {
		return nil, &bsqtypes.SourceUnavailable{Op: "RequestBlock"}
	}
	copy := *b
	copy.TxIDs = append([]string(nil), b.TxIDs...)
	return &copy, nil
}

func (f *fakeSource) RequestTransaction(_ context.Context, txID string, _ uint32) (*bsqtypes.RawTx, error) {
	tx, ok := f.txs[txID]
	if !ok {
		return nil, &bsqtypes.SourceUnavailable{Op: "RequestTransaction"}
	}
	return tx, nil
}

func (f *fakeSource) BestHeight(_ context.Context) (uint32, error) { return f.best, nil }

func rawTx(id string, inputs []bsqtypes.RawInput, outputs []uint64) *bsqtypes.RawTx {
	outs := make([]bsqtypes.RawOutput, len(outputs))
	for i, v := range outputs {
		outs[i] = bsqtypes.RawOutput{Index: uint32(i), Value: v}
	}
	return &bsqtypes.RawTx{ID: id, Inputs: inputs, Outputs: outs}
}

func newTestDriver(src *fakeSource) *Driver {
	cs := chainstate.New()
	return New(cs, src, blockparser.Config{GenesisHeight: genesisHeight, GenesisTxID: genesisTxID})
}

func TestParseBlocksCatchUpSweep(t *testing.T) {
	src := newFakeSource()
	src.addBlock(genesisHeight, "H100", "", rawTx("G", nil, []uint64{1000}))
	src.addBlock(101, "H101", "H100", rawTx("T1", []bsqtypes.RawInput{{SpendingTxID: "G", SpendingOutputIndex: 0}}, []uint64{700, 300}))

	d := newTestDriver(src)
	var seen []bsqtypes.ColoredBlock
	err := d.ParseBlocks(context.Background(), genesisHeight, 101, func(b bsqtypes.ColoredBlock) { seen = append(seen, b) })
	require.NoError(t, err)
	require.Len(t, seen, 2)
	require.Equal(t, []string{"G"}, seen[0].ColoredTxIDs)
	require.Equal(t, []string{"T1"}, seen[1].ColoredTxIDs)
	require.Equal(t, int64(101), d.ChainState().Height())
}

func TestParseBlocksStopsOnOrphanWithoutMutation(t *testing.T) {
	src := newFakeSource()
	src.addBlock(genesisHeight, "H100", "", rawTx("G", nil, []uint64{1000}))
	src.addBlock(101, "H101", "WRONG_PREV", rawTx("T1", nil, []uint64{1}))

	d := newTestDriver(src)
	err := d.ParseBlocks(context.Background(), genesisHeight, 101, nil)
	require.Error(t, err)
	var orphan *bsqtypes.OrphanDetected
	require.ErrorAs(t, err, &orphan)
	require.Equal(t, uint32(101), orphan.Height)
	require.Equal(t, int64(genesisHeight), d.ChainState().Height())
}

func TestParseBlockLivePath(t *testing.T) {
	src := newFakeSource()
	d := newTestDriver(src)

	block := &bsqtypes.RawBlock{
		Height: genesisHeight, Hash: "H100",
		TxIDs: []string{"G"},
		Txs:   []*bsqtypes.RawTx{rawTx("G", nil, []uint64{1000})},
	}
	colored, err := d.ParseBlock(context.Background(), block)
	require.NoError(t, err)
	require.Equal(t, []string{"G"}, colored.ColoredTxIDs)
	require.Equal(t, "H100", d.ChainState().TipHash())
}

func TestParseBsqBlocksPreMaterialized(t *testing.T) {
	d := newTestDriver(newFakeSource())

	blocks := []*bsqtypes.RawBlock{
		{Height: genesisHeight, Hash: "H100", TxIDs: []string{"G"}, Txs: []*bsqtypes.RawTx{rawTx("G", nil, []uint64{1000})}},
		{Height: 101, Hash: "H101", PreviousHash: "H100", TxIDs: []string{"T1"}, Txs: []*bsqtypes.RawTx{
			rawTx("T1", []bsqtypes.RawInput{{SpendingTxID: "G", SpendingOutputIndex: 0}}, []uint64{1000}),
		}},
	}

	var count int
	err := d.ParseBsqBlocks(context.Background(), blocks, func(bsqtypes.ColoredBlock) { count++ })
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, int64(101), d.ChainState().Height())
}

func TestRunCatchUpAndFollowStopsOnContextCancel(t *testing.T) {
	src := newFakeSource()
	src.addBlock(genesisHeight, "H100", "", rawTx("G", nil, []uint64{1000}))
	d := newTestDriver(src)
	// Seed the store already at the source's tip so the loop's first pass
	// goes straight to the "caught up" branch without needing blocks
	// below genesisHeight in the fake source.
	require.NoError(t, d.ChainState().AddBlock(bsqtypes.ColoredBlock{Height: genesisHeight, Hash: "H100"}))

	ctx, cancel := context.WithCancel(context.Background())
	firstSyncCh := make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		done <- d.RunCatchUpAndFollow(ctx, 10*time.Millisecond, nil, func() { firstSyncCh <- struct{}{} })
	}()

	<-firstSyncCh
	cancel()
	err := <-done
	require.Error(t, err)
	require.Equal(t, int64(genesisHeight), d.ChainState().Height())
}
