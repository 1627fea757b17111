package observability

import (
	"strconv"
	"sync"
	"time"
)

// Flow outcome labels recorded by the orchestrator.
const (
	FlowInterview = "interview"
	FlowDecision  = "decision"

	OutcomeCompleted   = "completed"
	OutcomeCancelled   = "cancelled"
	OutcomeTimedOut    = "timed_out"
	OutcomeConflict    = "session_conflict"
	OutcomeUnreachable = "unreachable"
	OutcomeFailed      = "failed"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	flowCount    map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		flowCount:    make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordFlow counts the outcome of a verification flow.
func (m *Metrics) RecordFlow(flow, outcome string) {
	if m == nil {
		return
	}
	key := flow + "|" + outcome
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flowCount[key]++
}

// FlowCount returns the recorded count for a flow/outcome pair.
func (m *Metrics) FlowCount(flow, outcome string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flowCount[flow+"|"+outcome]
}
