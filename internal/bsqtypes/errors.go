package bsqtypes

import "fmt"

// ChainLinkageError is returned by ChainState.AddBlock when the
// supplied block's PreviousHash no longer matches the chain tip at
// commit time.
type ChainLinkageError struct {
	Height       uint32
	Expected     string
	PreviousHash string
}

func (e *ChainLinkageError) Error() string {
	return fmt.Sprintf("chain linkage broken at height %d: expected previous hash %q, got %q", e.Height, e.Expected, e.PreviousHash)
}

// GenesisConflictError is returned by ChainState.SetGenesisTx when a
// second, distinct genesis tx is observed.
type GenesisConflictError struct {
	Existing string
	Attempted string
}

func (e *GenesisConflictError) Error() string {
	return fmt.Sprintf("genesis conflict: chain state already has genesis tx %q, attempted to set %q", e.Existing, e.Attempted)
}

// OrphanDetected is returned when an incoming block's previous-hash does
// not connect to the chain tip. No state mutation has occurred.
type OrphanDetected struct {
	Height       uint32
	PreviousHash string
	TipHash      string
}

func (e *OrphanDetected) Error() string {
	return fmt.Sprintf("orphan block at height %d: previous hash %q does not match tip %q", e.Height, e.PreviousHash, e.TipHash)
}

// InvariantViolation signals a fatal parser invariant failure: the
// intra-block fixed-point exceeded its recursion cap, or a partition
// arithmetic check failed.
type InvariantViolation struct {
	Height uint32
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation at height %d: %s", e.Height, e.Reason)
}

// SourceUnavailable wraps a BlockSource I/O failure.
type SourceUnavailable struct {
	Op  string
	Err error
}

func (e *SourceUnavailable) Error() string {
	return fmt.Sprintf("block source unavailable during %s: %v", e.Op, e.Err)
}

func (e *SourceUnavailable) Unwrap() error { return e.Err }

// ChainIngestError wraps a SourceUnavailable surfaced to the caller of a
// ChainDriver ingestion method.
type ChainIngestError struct {
	Height uint32
	Err    error
}

func (e *ChainIngestError) Error() string {
	return fmt.Sprintf("ingest failed at height %d: %v", e.Height, e.Err)
}

func (e *ChainIngestError) Unwrap() error { return e.Err }
