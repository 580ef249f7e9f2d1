package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	commandsProcessed atomic.Uint64
	settlements       atomic.Uint64
	rejections        atomic.Uint64
	cancellations     atomic.Uint64
	rollbacks         atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	feedSubscribers atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordCommand records a processed command with its latency.
func (m *Metrics) RecordCommand(latencyNs int64) {
	m.commandsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordSettlement records a settled order.
func (m *Metrics) RecordSettlement() {
	m.settlements.Add(1)
}

// RecordRejection records a rejected settlement attempt.
func (m *Metrics) RecordRejection() {
	m.rejections.Add(1)
}

// RecordCancellation records a nonce cancellation.
func (m *Metrics) RecordCancellation() {
	m.cancellations.Add(1)
}

// RecordRollback records a settlement whose transfers were reverted.
func (m *Metrics) RecordRollback() {
	m.rollbacks.Add(1)
}

// IncrementSubscribers increments feed subscribers by 1.
func (m *Metrics) IncrementSubscribers() {
	m.feedSubscribers.Add(1)
}

// DecrementSubscribers decrements feed subscribers by 1.
func (m *Metrics) DecrementSubscribers() {
	m.feedSubscribers.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CommandsProcessed uint64
	Settlements       uint64
	Rejections        uint64
	Cancellations     uint64
	Rollbacks         uint64
	AvgLatencyNs      int64
	FeedSubscribers   int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		CommandsProcessed: m.commandsProcessed.Load(),
		Settlements:       m.settlements.Load(),
		Rejections:        m.rejections.Load(),
		Cancellations:     m.cancellations.Load(),
		Rollbacks:         m.rollbacks.Load(),
		AvgLatencyNs:      avgLatency,
		FeedSubscribers:   m.feedSubscribers.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.commandsProcessed.Store(0)
	m.settlements.Store(0)
	m.rejections.Store(0)
	m.cancellations.Store(0)
	m.rollbacks.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.feedSubscribers.Store(0)
}
