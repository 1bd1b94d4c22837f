// Package metrics provides application-level metrics collection.
// This is a lightweight metrics foundation using atomic counters.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds application metrics using atomic counters for thread safety.
type Metrics struct {
	// Chain RPC metrics
	rpcCallsTotal   atomic.Int64
	rpcErrorsTotal  atomic.Int64
	rpcLatencyNanos atomic.Int64

	// Relayer metrics
	relayerCallsTotal  atomic.Int64
	relayerErrorsTotal atomic.Int64

	// Account operation metrics
	accountOpsTotal  atomic.Int64
	accountOpsErrors atomic.Int64

	mu        sync.Mutex
	chainRPC  map[string]int64
	accountOp map[string]int64
}

// Global is the global metrics instance.
// Use this for recording metrics throughout the application.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordRPCCall records a chain RPC call with its duration and success status.
func (m *Metrics) RecordRPCCall(chain string, duration time.Duration, err error) {
	m.rpcCallsTotal.Add(1)
	m.rpcLatencyNanos.Add(duration.Nanoseconds())

	if err != nil {
		m.rpcErrorsTotal.Add(1)
	}

	m.mu.Lock()
	if m.chainRPC == nil {
		m.chainRPC = make(map[string]int64)
	}
	m.chainRPC[chain]++
	m.mu.Unlock()
}

// RecordRelayerCall records one relayer request, including its retries.
func (m *Metrics) RecordRelayerCall(_ time.Duration, err error) {
	m.relayerCallsTotal.Add(1)
	if err != nil {
		m.relayerErrorsTotal.Add(1)
	}
}

// RecordAccountOp records one smart-account operation.
func (m *Metrics) RecordAccountOp(op string, _ time.Duration, err error) {
	m.accountOpsTotal.Add(1)
	if err != nil {
		m.accountOpsErrors.Add(1)
	}

	m.mu.Lock()
	if m.accountOp == nil {
		m.accountOp = make(map[string]int64)
	}
	m.accountOp[op]++
	m.mu.Unlock()
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	RPCCallsTotal      int64
	RPCErrorsTotal     int64
	RPCLatencyNanos    int64
	RelayerCallsTotal  int64
	RelayerErrorsTotal int64
	AccountOpsTotal    int64
	AccountOpsErrors   int64
	ChainRPCCalls      map[string]int64
	AccountOps         map[string]int64
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		RPCCallsTotal:      m.rpcCallsTotal.Load(),
		RPCErrorsTotal:     m.rpcErrorsTotal.Load(),
		RPCLatencyNanos:    m.rpcLatencyNanos.Load(),
		RelayerCallsTotal:  m.relayerCallsTotal.Load(),
		RelayerErrorsTotal: m.relayerErrorsTotal.Load(),
		AccountOpsTotal:    m.accountOpsTotal.Load(),
		AccountOpsErrors:   m.accountOpsErrors.Load(),
		ChainRPCCalls:      make(map[string]int64),
		AccountOps:         make(map[string]int64),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.chainRPC {
		s.ChainRPCCalls[k] = v
	}
	for k, v := range m.accountOp {
		s.AccountOps[k] = v
	}
	return s
}

// Chains returns the chains with recorded RPC calls, sorted.
func (s Snapshot) Chains() []string {
	out := make([]string, 0, len(s.ChainRPCCalls))
	for k := range s.ChainRPCCalls {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RPCCallsTotal returns the total number of RPC calls made.
func (m *Metrics) RPCCallsTotal() int64 {
	return m.rpcCallsTotal.Load()
}

// RPCErrorsTotal returns the total number of RPC errors.
func (m *Metrics) RPCErrorsTotal() int64 {
	return m.rpcErrorsTotal.Load()
}

// RPCLatencyAvgMs returns the average RPC latency in milliseconds.
// Returns 0 if no calls have been made.
func (m *Metrics) RPCLatencyAvgMs() float64 {
	calls := m.rpcCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	nanos := m.rpcLatencyNanos.Load()
	return float64(nanos) / float64(calls) / 1e6
}

// AccountErrorRate returns the share of failed account operations as a
// percentage (0-100). Returns 0 if no operations have been recorded.
func (m *Metrics) AccountErrorRate() float64 {
	total := m.accountOpsTotal.Load()
	if total == 0 {
		return 0
	}
	return float64(m.accountOpsErrors.Load()) / float64(total) * 100
}

// Reset resets all metrics to zero.
// Useful for testing.
func (m *Metrics) Reset() {
	m.rpcCallsTotal.Store(0)
	m.rpcErrorsTotal.Store(0)
	m.rpcLatencyNanos.Store(0)
	m.relayerCallsTotal.Store(0)
	m.relayerErrorsTotal.Store(0)
	m.accountOpsTotal.Store(0)
	m.accountOpsErrors.Store(0)

	m.mu.Lock()
	m.chainRPC = nil
	m.accountOp = nil
	m.mu.Unlock()
}
