// Package metrics records engine events and latencies.
package metrics

import "time"

// Recorder is implemented by NoopRecorder and PrometheusRecorder.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Event and operation names.
const (
	EventFrameIn     = "frame_in"
	EventFrameOut    = "frame_out"
	EventFeeApplied  = "fee_applied"
	EventFeeStale    = "fee_stale"
	EventSocketError = "socket_error"
	OpHandshake      = "handshake"
	OpTransaction    = "transaction"
)

// Label keys.
const (
	LabelKind    = "kind"
	LabelOutcome = "outcome"
)
