package batch

import (
	"sync"
)

type HandlerMetrics struct {
	EntriesEmitted  int
	EntriesFlushed  int
	EntriesDropped  int
	EntriesLost     int
	EntriesRequeued int
	Flushes         int
	FailedFlushes   int
	Retries         int
	mu              sync.RWMutex
}

func (m *HandlerMetrics) IncEntriesEmitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntriesEmitted++
}

func (m *HandlerMetrics) AddEntriesDropped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntriesDropped += n
}

func (m *HandlerMetrics) AddEntriesLost(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntriesLost += n
}

func (m *HandlerMetrics) AddEntriesRequeued(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntriesRequeued += n
}

func (m *HandlerMetrics) IncRetries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Retries++
}

func (m *HandlerMetrics) IncFailedFlushes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedFlushes++
}

// AddFlush records a successful push of n entries.
func (m *HandlerMetrics) AddFlush(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Flushes++
	m.EntriesFlushed += n
}

func (m *HandlerMetrics) GetMetricsStamp() HandlerMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return HandlerMetrics{
		EntriesEmitted:  m.EntriesEmitted,
		EntriesFlushed:  m.EntriesFlushed,
		EntriesDropped:  m.EntriesDropped,
		EntriesLost:     m.EntriesLost,
		EntriesRequeued: m.EntriesRequeued,
		Flushes:         m.Flushes,
		FailedFlushes:   m.FailedFlushes,
		Retries:         m.Retries,
	}
}
