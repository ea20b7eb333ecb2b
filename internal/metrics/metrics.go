// Package metrics exposes Prometheus collectors for the parser, the
// driver, and the block source, grounded on the blockinsight7000-backend
// pack member's internal/metrics collector style (promauto-registered
// vectors labeled by outcome).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksParsedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bsqparser",
		Subsystem: "driver",
		Name:      "blocks_parsed_total",
		Help:      "Count of blocks successfully parsed and committed.",
	}, []string{"path"})

	blockParseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bsqparser",
		Subsystem: "driver",
		Name:      "block_parse_duration_seconds",
		Help:      "Duration of parsing and committing one block.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path"})

	orphansDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bsqparser",
		Subsystem: "driver",
		Name:      "orphans_detected_total",
		Help:      "Count of blocks rejected for failing the linkage check.",
	}, []string{"path"})

	invariantViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bsqparser",
		Subsystem: "driver",
		Name:      "invariant_violations_total",
		Help:      "Count of fatal parser invariant violations.",
	}, []string{"kind"})

	fixedPointDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bsqparser",
		Subsystem: "parser",
		Name:      "fixed_point_depth",
		Help:      "Depth reached by the intra-block fixed-point worklist per block.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1..8192
	})

	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bsqparser",
		Subsystem: "blocksource",
		Name:      "rpc_requests_total",
		Help:      "Count of BlockSource RPC calls.",
	}, []string{"operation", "status"})

	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bsqparser",
		Subsystem: "blocksource",
		Name:      "rpc_request_duration_seconds",
		Help:      "Duration of BlockSource RPC calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// Recorder is the narrow interface ChainDriver depends on, so
// callers that don't want Prometheus wired in at all can pass a
// no-op Recorder instead of threading *prometheus.Registry through.
type Recorder interface {
	BlockParsed(path string, d time.Duration)
	OrphanDetected(path string)
	InvariantViolation(kind string)
	FixedPointDepth(depth int)
}

// Default is the promauto-backed Recorder, grounded on
// blockinsight7000-backend's metrics.BackfillIngester.
type Default struct{}

func (Default) BlockParsed(path string, d time.Duration) {
	blocksParsedTotal.WithLabelValues(path).Inc()
	blockParseDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (Default) OrphanDetected(path string) {
	orphansDetectedTotal.WithLabelValues(path).Inc()
}

func (Default) InvariantViolation(kind string) {
	invariantViolationsTotal.WithLabelValues(kind).Inc()
}

func (Default) FixedPointDepth(depth int) {
	fixedPointDepth.Observe(float64(depth))
}

// NoOp satisfies Recorder without touching any collector; used by tests
// and by callers that don't run an HTTP /metrics endpoint.
type NoOp struct{}

func (NoOp) BlockParsed(string, time.Duration) {}
func (NoOp) OrphanDetected(string)              {}
func (NoOp) InvariantViolation(string)          {}
func (NoOp) FixedPointDepth(int)                {}

// ObserveRPC records one BlockSource RPC call's outcome, grounded on
// blockinsight7000-backend's internal/pkg/btcd/rpcclient.ObservedClient.
func ObserveRPC(operation string, err error, started time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	rpcRequestsTotal.WithLabelValues(operation, status).Inc()
	rpcRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
