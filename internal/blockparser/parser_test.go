package blockparser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bsq-chain/bsqparser/internal/bsqtypes"
	"github.com/bsq-chain/bsqparser/internal/chainstate"
)

const (
	genesisHeight = 100
	genesisTxID   = "G"
)

func newTestParser() *Parser {
	return New(Config{GenesisHeight: genesisHeight, GenesisTxID: genesisTxID}, nil)
}

func rawTx(id string, inputs []bsqtypes.RawInput, outputs []uint64) *bsqtypes.RawTx {
	outs := make([]bsqtypes.RawOutput, len(outputs))
	for i, v := range outputs {
		outs[i] = bsqtypes.RawOutput{Index: uint32(i), Value: v}
	}
	return &bsqtypes.RawTx{ID: id, Inputs: inputs, Outputs: outs}
}

func in(txID string, index uint32) bsqtypes.RawInput {
	return bsqtypes.RawInput{SpendingTxID: txID, SpendingOutputIndex: index}
}

// parseAndCommit runs Parse then Apply+AddBlock, mirroring what
// chaindriver.Driver.commit does, so scenario tests exercise the same
// atomicity path production code uses.
func parseAndCommit(t *testing.T, p *Parser, cs *chainstate.ChainState, block *bsqtypes.RawBlock) *Result {
	t.Helper()
	res, err := p.Parse(cs, block)
	require.NoError(t, err)
	require.NoError(t, res.Apply(cs))
	require.NoError(t, cs.AddBlock(res.Block))
	return res
}

// S1 Genesis-only block.
func TestGenesisOnlyBlock(t *testing.T) {
	cs := chainstate.New()
	p := newTestParser()

	block := &bsqtypes.RawBlock{
		Height: genesisHeight,
		Hash:   "H100",
		Txs:    []*bsqtypes.RawTx{rawTx("G", nil, []uint64{1000, 500})},
	}
	res := parseAndCommit(t, p, cs, block)

	require.Equal(t, []string{"G"}, res.Block.ColoredTxIDs)
	out, ok := cs.GetSpendableTxOutput("G", 0)
	require.True(t, ok)
	require.Equal(t, uint64(1000), out.Value)
	out1, ok := cs.GetSpendableTxOutput("G", 1)
	require.True(t, ok)
	require.Equal(t, uint64(500), out1.Value)
	require.Equal(t, uint64(0), cs.BurnedFee("G"))
}

// S2 Simple spend.
func TestSimpleSpend(t *testing.T) {
	cs := chainstate.New()
	p := newTestParser()

	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: genesisHeight, Hash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("G", nil, []uint64{1000, 500})},
	})

	res := parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: 101, Hash: "H101", PreviousHash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("T1", []bsqtypes.RawInput{in("G", 0)}, []uint64{700, 300})},
	})

	require.Equal(t, []string{"T1"}, res.Block.ColoredTxIDs)
	_, spendable := cs.GetSpendableTxOutput("G", 0)
	require.False(t, spendable)
	o0, ok := cs.GetSpendableTxOutput("T1", 0)
	require.True(t, ok)
	require.Equal(t, uint64(700), o0.Value)
	o1, ok := cs.GetSpendableTxOutput("T1", 1)
	require.True(t, ok)
	require.Equal(t, uint64(300), o1.Value)
	require.Equal(t, uint64(0), cs.BurnedFee("T1"))
}

// S3 Burn.
func TestBurn(t *testing.T) {
	cs := chainstate.New()
	p := newTestParser()

	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: genesisHeight, Hash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("G", nil, []uint64{1000, 500})},
	})
	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: 102, Hash: "H102", PreviousHash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("T2", []bsqtypes.RawInput{in("G", 1)}, []uint64{400})},
	})

	o0, ok := cs.GetSpendableTxOutput("T2", 0)
	require.True(t, ok)
	require.Equal(t, uint64(400), o0.Value)
	require.Equal(t, uint64(100), cs.BurnedFee("T2"))
}

// S4 Output cutoff.
func TestOutputCutoff(t *testing.T) {
	cs := chainstate.New()
	p := newTestParser()

	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: genesisHeight, Hash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("G", nil, []uint64{1000})},
	})
	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: 101, Hash: "H101", PreviousHash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("T1", []bsqtypes.RawInput{in("G", 0)}, []uint64{700, 300})},
	})
	res := parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: 103, Hash: "H103", PreviousHash: "H101",
		Txs: []*bsqtypes.RawTx{rawTx("T3", []bsqtypes.RawInput{in("T1", 0)}, []uint64{300, 500, 100})},
	})

	require.Equal(t, []string{"T3"}, res.Block.ColoredTxIDs)
	o0, ok := cs.GetSpendableTxOutput("T3", 0)
	require.True(t, ok)
	require.Equal(t, uint64(300), o0.Value)
	_, ok = cs.GetSpendableTxOutput("T3", 1)
	require.False(t, ok)
	_, ok = cs.GetSpendableTxOutput("T3", 2)
	require.False(t, ok)
	require.Equal(t, uint64(400), cs.BurnedFee("T3"))
}

// S5 Intra-block dependency: txA spends txB's output 0, both arrive in
// underlying order [txA, txB]. Expect discovery order [txB, txA].
func TestIntraBlockDependencyOrdering(t *testing.T) {
	cs := chainstate.New()
	p := newTestParser()

	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: genesisHeight, Hash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("G", nil, []uint64{1000})},
	})

	txA := rawTx("txA", []bsqtypes.RawInput{in("txB", 0)}, []uint64{50})
	txB := rawTx("txB", []bsqtypes.RawInput{in("G", 0)}, []uint64{200})

	res := parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: 104, Hash: "H104", PreviousHash: "H100",
		Txs: []*bsqtypes.RawTx{txA, txB},
	})

	require.Equal(t, []string{"txB", "txA"}, res.Block.ColoredTxIDs)
	_, ok := cs.GetSpendableTxOutput("txA", 0)
	require.True(t, ok)
}

// S6 Orphan: AddBlock rejects a block whose previous-hash doesn't match
// the tip, and IsBlockConnecting against the prior tip still holds.
func TestOrphanDetectionLeavesStateUntouched(t *testing.T) {
	cs := chainstate.New()
	require.NoError(t, cs.AddBlock(bsqtypes.ColoredBlock{Height: 100, Hash: "H100"}))

	require.False(t, cs.IsBlockConnecting("HX"))
	err := cs.AddBlock(bsqtypes.ColoredBlock{Height: 101, Hash: "H101", PreviousHash: "HX"})
	require.Error(t, err)
	require.True(t, cs.IsBlockConnecting("H100"))
}

// A doubly-referenced output is honored only once: first input wins.
func TestDoubleSpendWithinBlockFirstWins(t *testing.T) {
	cs := chainstate.New()
	p := newTestParser()

	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: genesisHeight, Hash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("G", nil, []uint64{1000})},
	})

	txA := rawTx("txA", []bsqtypes.RawInput{in("G", 0)}, []uint64{500})
	txB := rawTx("txB", []bsqtypes.RawInput{in("G", 0)}, []uint64{500})

	res := parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: 105, Hash: "H105", PreviousHash: "H100",
		Txs: []*bsqtypes.RawTx{txA, txB},
	})

	require.Equal(t, []string{"txA"}, res.Block.ColoredTxIDs)
	_, ok := cs.GetSpendableTxOutput("txA", 0)
	require.True(t, ok)
}

// A zero-value output is colored if it appears before available is
// exhausted, but not once a prior output has consumed all of it.
func TestZeroValueOutputColoredOnlyBeforeExhaustion(t *testing.T) {
	cs := chainstate.New()
	p := newTestParser()

	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: genesisHeight, Hash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("G", nil, []uint64{100})},
	})
	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: 101, Hash: "H101", PreviousHash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("T1", []bsqtypes.RawInput{in("G", 0)}, []uint64{0, 100, 0})},
	})

	o0, ok := cs.GetSpendableTxOutput("T1", 0)
	require.True(t, ok, "zero-value output before exhaustion should be colored")
	require.Equal(t, uint64(0), o0.Value)
	o1, ok := cs.GetSpendableTxOutput("T1", 1)
	require.True(t, ok)
	require.Equal(t, uint64(100), o1.Value)
	_, ok = cs.GetSpendableTxOutput("T1", 2)
	require.False(t, ok, "zero-value output after available is exhausted must not be colored")
}

// An input referencing an output not in chain state contributes nothing:
// the tx is not colored.
func TestUncoloredInputYieldsNotColoredTx(t *testing.T) {
	cs := chainstate.New()
	p := newTestParser()

	res, err := p.Parse(cs, &bsqtypes.RawBlock{
		Height: 101, Hash: "H101",
		Txs: []*bsqtypes.RawTx{rawTx("T1", []bsqtypes.RawInput{in("nonexistent", 0)}, []uint64{100})},
	})
	require.NoError(t, err)
	require.Empty(t, res.Block.ColoredTxIDs)
	require.Empty(t, res.Txs)
}

// P6-style check: the fixed-point must classify every tx, even across
// several chained dependency levels, within one Parse call.
func TestMultiLevelFixedPointConverges(t *testing.T) {
	cs := chainstate.New()
	p := newTestParser()

	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: genesisHeight, Hash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("G", nil, []uint64{1000})},
	})

	// chain: G -> t0 -> t1 -> t2 -> t3, declared in reverse order.
	t3 := rawTx("t3", []bsqtypes.RawInput{in("t2", 0)}, []uint64{10})
	t2 := rawTx("t2", []bsqtypes.RawInput{in("t1", 0)}, []uint64{20})
	t1 := rawTx("t1", []bsqtypes.RawInput{in("t0", 0)}, []uint64{30})
	t0 := rawTx("t0", []bsqtypes.RawInput{in("G", 0)}, []uint64{40})

	res := parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: 106, Hash: "H106", PreviousHash: "H100",
		Txs: []*bsqtypes.RawTx{t3, t2, t1, t0},
	})

	require.Equal(t, []string{"t0", "t1", "t2", "t3"}, res.Block.ColoredTxIDs)
	require.Equal(t, 4, res.MaxDepth)
}

// A dependency cycle within one block (impossible under a valid
// producer/consumer DAG) is a fatal InvariantViolation, not an infinite
// loop.
func TestDependencyCycleIsInvariantViolation(t *testing.T) {
	cs := chainstate.New()
	p := newTestParser()

	txA := rawTx("txA", []bsqtypes.RawInput{in("txB", 0)}, []uint64{10})
	txB := rawTx("txB", []bsqtypes.RawInput{in("txA", 0)}, []uint64{10})

	_, err := p.Parse(cs, &bsqtypes.RawBlock{
		Height: 107, Hash: "H107",
		Txs: []*bsqtypes.RawTx{txA, txB},
	})
	require.Error(t, err)
	var iv *bsqtypes.InvariantViolation
	require.ErrorAs(t, err, &iv)
}

func TestFixedPointCapExceeded(t *testing.T) {
	cs := chainstate.New()
	p := New(Config{GenesisHeight: genesisHeight, GenesisTxID: genesisTxID, MaxIntraBlockRecursions: 2}, nil)

	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: genesisHeight, Hash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("G", nil, []uint64{1000})},
	})

	// chain of 4 dependency levels, cap set to 2 -> must fail.
	t3 := rawTx("t3", []bsqtypes.RawInput{in("t2", 0)}, []uint64{10})
	t2 := rawTx("t2", []bsqtypes.RawInput{in("t1", 0)}, []uint64{20})
	t1 := rawTx("t1", []bsqtypes.RawInput{in("t0", 0)}, []uint64{30})
	t0 := rawTx("t0", []bsqtypes.RawInput{in("G", 0)}, []uint64{40})

	_, err := p.Parse(cs, &bsqtypes.RawBlock{
		Height: 108, Hash: "H108", PreviousHash: "H100",
		Txs: []*bsqtypes.RawTx{t3, t2, t1, t0},
	})
	require.Error(t, err)
	var iv *bsqtypes.InvariantViolation
	require.ErrorAs(t, err, &iv)
}

// P2 Conservation, checked for every colored tx of one block whose tx
// has its outputs cut off and the remainder burned.
func TestConservationHoldsWithCutoffAndBurn(t *testing.T) {
	cs := chainstate.New()
	p := newTestParser()

	parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: genesisHeight, Hash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("G", nil, []uint64{1000})},
	})
	res := parseAndCommit(t, p, cs, &bsqtypes.RawBlock{
		Height: 101, Hash: "H101", PreviousHash: "H100",
		Txs: []*bsqtypes.RawTx{rawTx("T1", []bsqtypes.RawInput{in("G", 0)}, []uint64{300, 500, 300})},
	})

	for _, txID := range res.Block.ColoredTxIDs {
		var consumed uint64
		for _, s := range res.Spends {
			if s.info.SpendingTxID == txID {
				// the spent output's value: look it up from genesis output
				// staged earlier in this test (only "G" output 0 = 1000).
				consumed += 1000
			}
		}
		var produced uint64
		for _, o := range res.Outputs {
			if o.out.TxID == txID {
				produced += o.out.Value
			}
		}
		burned := res.BurnedFees[txID]
		require.Equal(t, consumed, produced+burned, "conservation violated for %s", txID)
	}
}
