package common

import (
	"fmt"
	"sync"
	"time"
)

// Metrics counts the work done by a long-running process.
type Metrics struct {
	mu       sync.Mutex
	start    time.Time
	images   int64
	bytes    int64
	applied  int64
	reverted int64
	failures int64
}

func NewMetrics() *Metrics {
	return &Metrics{start: time.Now()}
}

// AddImage records one image of size bytes handed to the core.
func (m *Metrics) AddImage(size int64) {
	if m == nil || size < 0 {
		return
	}
	m.mu.Lock()
	m.images++
	m.bytes += size
	m.mu.Unlock()
}

func (m *Metrics) IncApplied() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.applied++
	m.mu.Unlock()
}

func (m *Metrics) IncReverted() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.reverted++
	m.mu.Unlock()
}

func (m *Metrics) IncFailure() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Uptime:   time.Since(m.start),
		Images:   m.images,
		Bytes:    m.bytes,
		Applied:  m.applied,
		Reverted: m.reverted,
		Failures: m.failures,
	}
}

type MetricsSnapshot struct {
	Uptime   time.Duration `json:"uptime"`
	Images   int64         `json:"images"`
	Bytes    int64         `json:"bytes"`
	Applied  int64         `json:"applied"`
	Reverted int64         `json:"reverted"`
	Failures int64         `json:"failures"`
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 5; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}
