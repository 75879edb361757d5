package daemon

import (
	"sync"
)

type TailMetrics struct {
	FilesDiscovered    int
	FilesTailing       int
	FilesFailed        int
	FilesIdle          int
	FilesResumed       int
	QueuedFiles        int
	FilesQueueCapacity int
	LinesRead          int
	LinesFailed        int
	mu                 sync.RWMutex
}

func (m *TailMetrics) IncFilesDiscovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesDiscovered++
}

func (m *TailMetrics) IncFilesTailing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesTailing++
}

func (m *TailMetrics) DecFilesTailing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesTailing--
}

func (m *TailMetrics) IncFilesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesFailed++
}

func (m *TailMetrics) IncFilesIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesIdle++
}

func (m *TailMetrics) IncFilesResumed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesResumed++
}

func (m *TailMetrics) IncQueuedFiles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueuedFiles++
}

func (m *TailMetrics) DecQueuedFiles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueuedFiles--
}

func (m *TailMetrics) IncLinesRead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinesRead++
}

func (m *TailMetrics) IncLinesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinesFailed++
}

func (m *TailMetrics) GetMetricsStamp() TailMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return TailMetrics{
		FilesDiscovered:    m.FilesDiscovered,
		FilesTailing:       m.FilesTailing,
		FilesFailed:        m.FilesFailed,
		FilesIdle:          m.FilesIdle,
		FilesResumed:       m.FilesResumed,
		QueuedFiles:        m.QueuedFiles,
		FilesQueueCapacity: m.FilesQueueCapacity,
		LinesRead:          m.LinesRead,
		LinesFailed:        m.LinesFailed,
	}
}

func (m *TailMetrics) GetQueueUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FilesQueueCapacity == 0 {
		return 0
	}
	return float64(m.QueuedFiles) / float64(m.FilesQueueCapacity)
}
