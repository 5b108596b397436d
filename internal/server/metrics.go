package server

import (
	"sync/atomic"
	"time"
)

// Metrics holds server runtime counters. A nil *Metrics is never
// passed around; Config.Metrics defaults to a fresh instance.
type Metrics struct {
	RequestsTotal     atomic.Int64
	ActiveConnections atomic.Int64
	ErrorsTotal       atomic.Int64
	Errors4xx         atomic.Int64
	Errors5xx         atomic.Int64

	TotalLatencyNs atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest records one completed transaction's status and
// handling latency.
func (m *Metrics) RecordRequest(statusCode int, duration time.Duration) {
	m.RequestsTotal.Add(1)
	m.TotalLatencyNs.Add(duration.Nanoseconds())

	if statusCode >= 400 && statusCode < 500 {
		m.Errors4xx.Add(1)
	} else if statusCode >= 500 {
		m.Errors5xx.Add(1)
		m.ErrorsTotal.Add(1)
	}
}

func (m *Metrics) AverageLatency() time.Duration {
	total := m.RequestsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.TotalLatencyNs.Load() / total)
}

// MetricsSnapshot is a point-in-time, lock-free read of Metrics.
type MetricsSnapshot struct {
	RequestsTotal     int64
	ActiveConnections int64
	ErrorsTotal       int64
	Errors4xx         int64
	Errors5xx         int64
	AverageLatency    time.Duration
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		RequestsTotal:     m.RequestsTotal.Load(),
		ActiveConnections: m.ActiveConnections.Load(),
		ErrorsTotal:       m.ErrorsTotal.Load(),
		Errors4xx:         m.Errors4xx.Load(),
		Errors5xx:         m.Errors5xx.Load(),
		AverageLatency:    m.AverageLatency(),
	}
}
