// Package logging builds the structured logger used by cmd/bsqparserd and
// the driver (which also logs the parser's depth warnings; the block
// source does not log). The teacher logs through the standard
// library's "log" package; this module upgrades that to zerolog's
// leveled, structured form (adopted from the klingnet-chain and teranode
// pack members) while keeping the teacher's terse, unembellished log-site
// phrasing.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console-writer zerolog.Logger at the given level.
func New(level string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}
