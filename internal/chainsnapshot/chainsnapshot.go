// Package chainsnapshot is an optional external persistence collaborator:
// it receives immutable post-commit ChainState snapshots and writes them
// to a Pebble-backed key-value store, grounded on the teacher's
// storage/pebble.go MetaStore (Get/Set/Close, GetLastHeight/SaveLastHeight),
// simplified from the teacher's sharded multi-store layout to the single
// small store this package's single snapshot stream needs.
//
// The core parser never consults this package and never blocks on it —
// per spec.md's scope, persistence of chain state is external to the
// BsqParser/BsqChainState core. Publisher only ever calls
// chainstate.ChainState.Subscribe, never its mutating methods.
package chainsnapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/pebble"

	"github.com/bsq-chain/bsqparser/internal/chainstate"
)

const lastHeightKey = "last_height"

// noopLogger silences Pebble's internal logging, matching the teacher's
// storage.customLogger.
type noopLogger struct{}

func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Fatalf(string, ...interface{}) {}
func (noopLogger) Errorf(string, ...interface{}) {}

// Publisher persists ChainState snapshots to a Pebble store, one record
// per committed block height, trimming records older than RetainBlocks.
type Publisher struct {
	db           *pebble.DB
	retainBlocks int
	queue        chan chainstate.Snapshot
	done         chan struct{}
}

// Open opens (creating if needed) the snapshot store at dataDir.
// retainBlocks <= 0 means retain every snapshot ever published.
func Open(dataDir string, retainBlocks int) (*Publisher, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	db, err := pebble.Open(dataDir, &pebble.Options{Logger: noopLogger{}})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	p := &Publisher{
		db:           db,
		retainBlocks: retainBlocks,
		queue:        make(chan chainstate.Snapshot, 16),
		done:         make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// Attach registers the publisher as a subscriber of cs. Per spec.md
// EXP-3, Subscribe invokes fn synchronously on the parser worker; Attach
// therefore only enqueues onto Publisher's own goroutine so a slow disk
// write never delays the worker.
func (p *Publisher) Attach(cs *chainstate.ChainState) {
	cs.Subscribe(func(snap chainstate.Snapshot) {
		select {
		case p.queue <- snap:
		default:
			// queue full: drop this snapshot rather than block the
			// parser worker; the snapshots already queued are kept.
			// The next commit's snapshot supersedes it anyway.
		}
	})
}

func (p *Publisher) run() {
	defer close(p.done)
	for snap := range p.queue {
		if err := p.writeLocked(snap); err != nil {
			// Persistence is a best-effort external collaborator; a
			// failure here must never propagate back into the parser
			// worker, so it is dropped. An operator-facing logger would
			// be threaded in by cmd/bsqparserd if this mattered beyond
			// this package's scope.
			continue
		}
	}
}

func (p *Publisher) writeLocked(snap chainstate.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	key := snapshotKey(uint32(snap.Height))
	if err := p.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := p.db.Set([]byte(lastHeightKey), []byte(strconv.FormatInt(snap.Height, 10)), pebble.Sync); err != nil {
		return fmt.Errorf("failed to write last height: %w", err)
	}
	if p.retainBlocks > 0 && snap.Height > int64(p.retainBlocks) {
		_ = p.db.Delete(snapshotKey(uint32(snap.Height-int64(p.retainBlocks))), pebble.NoSync)
	}
	return nil
}

func snapshotKey(height uint32) []byte {
	return []byte(filepath.Join("snapshot", fmt.Sprintf("%010d", height)))
}

// LastHeight returns the height of the most recently persisted snapshot,
// -1 if none has been published yet.
func (p *Publisher) LastHeight() (int64, error) {
	data, closer, err := p.db.Get([]byte(lastHeightKey))
	if err != nil {
		if err == pebble.ErrNotFound {
			return -1, nil
		}
		return -1, err
	}
	defer closer.Close()
	height, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return -1, fmt.Errorf("failed to parse last height: %w", err)
	}
	return height, nil
}

// Close drains pending writes and closes the underlying store.
func (p *Publisher) Close() error {
	close(p.queue)
	<-p.done
	return p.db.Close()
}
