package memory

import (
	"context"
	"runtime/metrics"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/KilimcininKorOglu/voron/internal/logging"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// LowMemoryHandler is notified when memory pressure starts and ends.
type LowMemoryHandler interface {
	LowMemory()
	LowMemoryOver()
}

// UsageSource reports native bytes held outside the Go heap.
type UsageSource func() uint64

// LowMemoryMonitor polls memory usage and notifies handlers when it crosses
// the configured threshold.
type LowMemoryMonitor struct {
	threshold uint64
	interval  time.Duration
	logger    logging.Logger

	mu       sync.Mutex
	handlers []LowMemoryHandler
	sources  []UsageSource
	low      bool
	sample   []metrics.Sample
}

// NewLowMemoryMonitor creates a monitor. A zero threshold disables automatic
// detection; Simulate still works.
func NewLowMemoryMonitor(threshold uint64, interval time.Duration, logger logging.Logger) *LowMemoryMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LowMemoryMonitor{
		threshold: threshold,
		interval:  interval,
		logger:    logger.WithComponent("low-memory"),
		sample:    []metrics.Sample{{Name: heapObjectsMetric}},
	}
}

// Register adds a handler.
func (m *LowMemoryMonitor) Register(h LowMemoryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// AddSource adds a native memory source to the usage computation.
func (m *LowMemoryMonitor) AddSource(src UsageSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, src)
}

// Usage returns Go heap object bytes plus all registered native sources.
func (m *LowMemoryMonitor) Usage() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usageLocked()
}

func (m *LowMemoryMonitor) usageLocked() uint64 {
	metrics.Read(m.sample)
	var total uint64
	if m.sample[0].Value.Kind() == metrics.KindUint64 {
		total = m.sample[0].Value.Uint64()
	}
	for _, src := range m.sources {
		total += src()
	}
	return total
}

// Check samples usage once and notifies handlers on a state change.
func (m *LowMemoryMonitor) Check() bool {
	m.mu.Lock()
	threshold := m.threshold
	if threshold == 0 {
		low := m.low
		m.mu.Unlock()
		return low
	}
	usage := m.usageLocked()
	m.mu.Unlock()
	return m.Simulate(usage >= threshold)
}

// SetThreshold changes the usage threshold. Zero disables detection.
func (m *LowMemoryMonitor) SetThreshold(threshold uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// SetInterval changes the polling interval of Run from its next tick.
func (m *LowMemoryMonitor) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interval = interval
}

func (m *LowMemoryMonitor) pollInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Simulate forces the low-memory state. It returns the resulting state.
func (m *LowMemoryMonitor) Simulate(low bool) bool {
	m.mu.Lock()
	if m.low == low {
		m.mu.Unlock()
		return low
	}
	m.low = low
	threshold := m.threshold
	handlers := append([]LowMemoryHandler(nil), m.handlers...)
	m.mu.Unlock()

	if low {
		m.logger.Warn("low memory", "threshold", humanize.IBytes(threshold))
	} else {
		m.logger.Info("memory pressure relieved")
	}
	for _, h := range handlers {
		if low {
			h.LowMemory()
		} else {
			h.LowMemoryOver()
		}
	}
	return low
}

// IsLow reports the current state.
func (m *LowMemoryMonitor) IsLow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.low
}

// Run polls until ctx is done.
func (m *LowMemoryMonitor) Run(ctx context.Context) {
	interval := m.pollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
			if next := m.pollInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}
