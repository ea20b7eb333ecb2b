package blocksource

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/bsq-chain/bsqparser/internal/bsqtypes"
	"github.com/bsq-chain/bsqparser/internal/metrics"
)

// RPCConfig is the connection info for the underlying chain node,
// grounded on the teacher's config.RPCConfig.
type RPCConfig struct {
	Host     string
	Port     string
	User     string
	Password string
}

// RPCSource is a BlockSource backed by btcd's JSON-RPC client, grounded
// on the teacher's blockchain/adapter_btc.go, with per-call metrics
// observation adapted from blockinsight7000-backend's ObservedClient.
type RPCSource struct {
	client *rpcclient.Client
}

// NewRPCSource connects to the underlying chain node.
func NewRPCSource(cfg RPCConfig) (*RPCSource, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		User:         cfg.User,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}
	return &RPCSource{client: client}, nil
}

// Shutdown closes the underlying RPC connection.
func (s *RPCSource) Shutdown() {
	s.client.Shutdown()
}

func (s *RPCSource) BestHeight(_ context.Context) (uint32, error) {
	started := time.Now()
	count, err := s.client.GetBlockCount()
	metrics.ObserveRPC("get_block_count", err, started)
	if err != nil {
		return 0, &bsqtypes.SourceUnavailable{Op: "get_block_count", Err: err}
	}
	return uint32(count), nil
}

func (s *RPCSource) RequestBlock(_ context.Context, height uint32) (*bsqtypes.RawBlock, error) {
	started := time.Now()
	hash, err := s.client.GetBlockHash(int64(height))
	metrics.ObserveRPC("get_block_hash", err, started)
	if err != nil {
		return nil, &bsqtypes.SourceUnavailable{Op: "get_block_hash", Err: err}
	}

	started = time.Now()
	header, err := s.client.GetBlockHeaderVerbose(hash)
	metrics.ObserveRPC("get_block_header", err, started)
	if err != nil {
		return nil, &bsqtypes.SourceUnavailable{Op: "get_block_header", Err: err}
	}

	started = time.Now()
	raw, err := s.client.GetBlockVerbose(hash)
	metrics.ObserveRPC("get_block_verbose", err, started)
	if err != nil {
		return nil, &bsqtypes.SourceUnavailable{Op: "get_block_verbose", Err: err}
	}

	return &bsqtypes.RawBlock{
		Height:       height,
		Hash:         hash.String(),
		PreviousHash: header.PreviousHash,
		BlockTime:    header.Time,
		TxIDs:        raw.Tx,
	}, nil
}

func (s *RPCSource) RequestTransaction(_ context.Context, txID string, _ uint32) (*bsqtypes.RawTx, error) {
	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return nil, fmt.Errorf("invalid tx id %q: %w", txID, err)
	}

	started := time.Now()
	raw, err := s.client.GetRawTransactionVerbose(hash)
	metrics.ObserveRPC("get_raw_transaction", err, started)
	if err != nil {
		return nil, &bsqtypes.SourceUnavailable{Op: "get_raw_transaction", Err: err}
	}

	tx := &bsqtypes.RawTx{ID: txID}
	for _, in := range raw.Vin {
		if in.Coinbase != "" {
			continue // coinbase inputs never reference a colored output
		}
		tx.Inputs = append(tx.Inputs, bsqtypes.RawInput{
			SpendingTxID:        in.Txid,
			SpendingOutputIndex: in.Vout,
		})
	}
	for i, out := range raw.Vout {
		tx.Outputs = append(tx.Outputs, bsqtypes.RawOutput{
			Index:   uint32(i),
			Value:   satoshisFromBTC(out.Value),
			Address: firstAddress(out.ScriptPubKey.Addresses),
		})
	}
	return tx, nil
}

func firstAddress(addrs []string) string {
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

// satoshisFromBTC converts btcd's float BTC amount to the smallest
// indivisible unit, matching the teacher's amount-string convention but
// expressed as an integer per spec.md §3's TxOutput.value type.
func satoshisFromBTC(btc float64) uint64 {
	const satPerBTC = 1e8
	return uint64(btc*satPerBTC + 0.5)
}
