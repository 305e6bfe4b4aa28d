package executor

import (
	"sync"
	"time"
)

// ExecutorMetrics accumulates statistics across every plan an executor runs.
type ExecutorMetrics struct {
	PlansExecuted    int
	BatchesExecuted  int
	CallsExecuted    int // calls that reached the tool, including failures
	CallsSuccessful  int
	CallsFailed      int
	CallsCached      int
	CallsCancelled   int // calls cancelled before reaching the tool
	TotalDuration    time.Duration
	LongestCallTime  time.Duration
	ShortestCallTime time.Duration
	TotalRetries     int

	mu sync.Mutex // Protects metrics updates
}

// Copy returns a snapshot without the mutex.
func (m *ExecutorMetrics) Copy() ExecutorMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ExecutorMetrics{
		PlansExecuted:    m.PlansExecuted,
		BatchesExecuted:  m.BatchesExecuted,
		CallsExecuted:    m.CallsExecuted,
		CallsSuccessful:  m.CallsSuccessful,
		CallsFailed:      m.CallsFailed,
		CallsCached:      m.CallsCached,
		CallsCancelled:   m.CallsCancelled,
		TotalDuration:    m.TotalDuration,
		LongestCallTime:  m.LongestCallTime,
		ShortestCallTime: m.ShortestCallTime,
		TotalRetries:     m.TotalRetries,
	}
}

func (m *ExecutorMetrics) recordCall(outcome callOutcome, duration time.Duration, retries int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRetries += retries
	switch outcome {
	case outcomeCached:
		m.CallsCached++
		return
	case outcomeCancelled:
		m.CallsCancelled++
		return
	case outcomeSucceeded:
		m.CallsSuccessful++
	case outcomeFailed:
		m.CallsFailed++
	}

	m.CallsExecuted++
	m.TotalDuration += duration
	if duration > m.LongestCallTime {
		m.LongestCallTime = duration
	}
	if duration > 0 && (m.ShortestCallTime == 0 || duration < m.ShortestCallTime) {
		m.ShortestCallTime = duration
	}
}

func (m *ExecutorMetrics) recordBatch() {
	m.mu.Lock()
	m.BatchesExecuted++
	m.mu.Unlock()
}

func (m *ExecutorMetrics) recordPlan() {
	m.mu.Lock()
	m.PlansExecuted++
	m.mu.Unlock()
}
