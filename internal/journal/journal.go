// Package journal persists a per-block/error/reorg audit trail to
// SQLite, grounded on the teacher's syslogs/base.go.
package journal

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// BlockRow is one row of the per-block parse log, equivalent to the
// teacher's syslogs.IndexerLog.
type BlockRow struct {
	Height          uint32
	BlockHash       string
	ExpectedTxCount int
	ColoredTxCount  int
	BurnedTotal     uint64
	FixedPointDepth int
	CompletionTime  int64
	BlockTime       int64
	Reorg           bool

	// CorrelationID is stored with the row as given. Left empty, Insert*
	// fills it in with a freshly generated UUID, so rows inserted without
	// one (as ChainDriver inserts them) each get their own ID and are not
	// linked to one another.
	CorrelationID string
}

// ErrorRow records a fatal or surfaced error, equivalent to syslogs.ErrLog.
type ErrorRow struct {
	ErrType       string
	Height        uint32
	BlockHash     string
	Timestamp     int64
	ErrorMessage  string
	CorrelationID string
}

// ReorgRow records an orphan/re-org event, equivalent to syslogs.ReorgLog.
type ReorgRow struct {
	Height        uint32
	EndHeight     uint32
	BlockHash     string
	NewBlockHash  string
	ReorgSize     int
	Timestamp     int64
	CorrelationID string
}

// Recorder is the narrow interface ChainDriver depends on, satisfied by
// both *Journal and NoOp.
type Recorder interface {
	InsertBlock(BlockRow) error
	InsertError(ErrorRow) error
	InsertReorg(ReorgRow) error
}

// Journal is a thin wrapper over a SQLite handle.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at dbPath.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	j := &Journal{db: db}
	if err := j.createTables(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS BlockLog (
			ID INTEGER PRIMARY KEY AUTOINCREMENT,
			Height INTEGER,
			BlockHash TEXT,
			ExpectedTxCount INTEGER,
			ColoredTxCount INTEGER,
			BurnedTotal INTEGER,
			FixedPointDepth INTEGER,
			CompletionTime INTEGER,
			BlockTime INTEGER,
			Reorg INTEGER,
			CorrelationID TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS ErrLog (
			ID INTEGER PRIMARY KEY AUTOINCREMENT,
			ErrType TEXT,
			Height INTEGER,
			BlockHash TEXT,
			Timestamp INTEGER,
			ErrorMessage TEXT,
			CorrelationID TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS ReorgLog (
			ID INTEGER PRIMARY KEY AUTOINCREMENT,
			Height INTEGER,
			EndHeight INTEGER,
			BlockHash TEXT,
			NewBlockHash TEXT,
			ReorgSize INTEGER,
			Timestamp INTEGER,
			CorrelationID TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blocklog_height ON BlockLog(Height);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create journal table: %w", err)
		}
	}
	return nil
}

// InsertBlock records one parsed block.
func (j *Journal) InsertBlock(row BlockRow) error {
	if row.CorrelationID == "" {
		row.CorrelationID = uuid.New().String()
	}
	_, err := j.db.Exec(
		`INSERT INTO BlockLog (Height, BlockHash, ExpectedTxCount, ColoredTxCount, BurnedTotal, FixedPointDepth, CompletionTime, BlockTime, Reorg, CorrelationID)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Height, row.BlockHash, row.ExpectedTxCount, row.ColoredTxCount, row.BurnedTotal, row.FixedPointDepth, row.CompletionTime, row.BlockTime, boolToInt(row.Reorg), row.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert block log: %w", err)
	}
	return nil
}

// InsertError records a surfaced or fatal error.
func (j *Journal) InsertError(row ErrorRow) error {
	if row.CorrelationID == "" {
		row.CorrelationID = uuid.New().String()
	}
	_, err := j.db.Exec(
		`INSERT INTO ErrLog (ErrType, Height, BlockHash, Timestamp, ErrorMessage, CorrelationID) VALUES (?, ?, ?, ?, ?, ?)`,
		row.ErrType, row.Height, row.BlockHash, row.Timestamp, row.ErrorMessage, row.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert error log: %w", err)
	}
	return nil
}

// InsertReorg records an orphan/re-org event.
func (j *Journal) InsertReorg(row ReorgRow) error {
	if row.CorrelationID == "" {
		row.CorrelationID = uuid.New().String()
	}
	_, err := j.db.Exec(
		`INSERT INTO ReorgLog (Height, EndHeight, BlockHash, NewBlockHash, ReorgSize, Timestamp, CorrelationID) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.Height, row.EndHeight, row.BlockHash, row.NewBlockHash, row.ReorgSize, row.Timestamp, row.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reorg log: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NoOp is a Journal-shaped no-op used when journaling is disabled.
type NoOp struct{}

func (NoOp) InsertBlock(BlockRow) error { return nil }
func (NoOp) InsertError(ErrorRow) error { return nil }
func (NoOp) InsertReorg(ReorgRow) error  { return nil }
