// Package metrics provides per-process metrics collection for a running
// panelrund instance, exposed as Prometheus text exposition at GET
// /metrics per spec §6.1.
//
// The Collector accumulates counters for the lifetime of the process. It
// is a leaf package with no internal dependencies. Sandbox pool gauges
// (active/available instances, cache hit rate) are absorbed from
// sandbox.Stats at scrape time rather than recorded live, avoiding
// double-counting against the pool's own bookkeeping.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all collected metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Panel lifecycle
	PanelsCreated   int64
	PanelsDestroyed int64
	PanelsErrored   int64

	// Handler invocations
	InvocationsStarted   int64
	InvocationsSucceeded int64
	InvocationsFailed    int64
	InvocationsSuspended int64

	// Error breakdown by ExecutionResult error code (e.g. "TIMEOUT")
	ErrorsByKind map[string]int64

	// Suspension
	SuspensionsOpened    int64
	SuspensionsResolved  int64
	SuspensionsTimedOut  int64
	SuspensionsCancelled int64

	// Extension calls
	ExtensionCallSuccess int64
	ExtensionCallFailure int64

	// Sandbox pool (absorbed from sandbox.Stats at scrape time)
	SandboxActiveInstances    int
	SandboxAvailableInstances int
	SandboxCacheHitRate       float64
	SandboxTotalExecutions    int64

	// WebSocket fan-out
	WSClientsConnected int64
	WSMessagesSent      int64
	WSMessagesDropped   int64

	// Dimensions (informational, set at construction)
	Version string
}

// Collector accumulates metrics for one running panelrund process.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	panelsCreated   int64
	panelsDestroyed int64
	panelsErrored   int64

	invocationsStarted   int64
	invocationsSucceeded int64
	invocationsFailed    int64
	invocationsSuspended int64
	errorsByKind         map[string]int64

	suspensionsOpened    int64
	suspensionsResolved  int64
	suspensionsTimedOut  int64
	suspensionsCancelled int64

	extensionCallSuccess int64
	extensionCallFailure int64

	wsClientsConnected int64
	wsMessagesSent      int64
	wsMessagesDropped   int64

	version string
}

// NewCollector creates a Collector tagged with the running binary's version.
func NewCollector(version string) *Collector {
	return &Collector{
		errorsByKind: make(map[string]int64),
		version:      version,
	}
}

// --- Panel lifecycle ---

func (c *Collector) IncPanelCreated() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.panelsCreated++
	c.mu.Unlock()
}

func (c *Collector) IncPanelDestroyed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.panelsDestroyed++
	c.mu.Unlock()
}

func (c *Collector) IncPanelErrored() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.panelsErrored++
	c.mu.Unlock()
}

// --- Handler invocations ---

func (c *Collector) IncInvocationStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.invocationsStarted++
	c.mu.Unlock()
}

func (c *Collector) IncInvocationSucceeded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.invocationsSucceeded++
	c.mu.Unlock()
}

// IncInvocationFailed records a terminal ExecutionResult.status=error,
// tallied both overall and by its error kind (e.g. "TIMEOUT",
// "PERMISSION_DENIED") for the /metrics breakdown.
func (c *Collector) IncInvocationFailed(errorKind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.invocationsFailed++
	c.errorsByKind[errorKind]++
	c.mu.Unlock()
}

func (c *Collector) IncInvocationSuspended() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.invocationsSuspended++
	c.mu.Unlock()
}

// --- Suspension ---

func (c *Collector) IncSuspensionOpened() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.suspensionsOpened++
	c.mu.Unlock()
}

func (c *Collector) IncSuspensionResolved() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.suspensionsResolved++
	c.mu.Unlock()
}

func (c *Collector) IncSuspensionTimedOut() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.suspensionsTimedOut++
	c.mu.Unlock()
}

func (c *Collector) IncSuspensionCancelled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.suspensionsCancelled++
	c.mu.Unlock()
}

// --- Extension calls ---

func (c *Collector) IncExtensionCallSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.extensionCallSuccess++
	c.mu.Unlock()
}

func (c *Collector) IncExtensionCallFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.extensionCallFailure++
	c.mu.Unlock()
}

// --- WebSocket fan-out ---

func (c *Collector) IncWSClientConnected() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.wsClientsConnected++
	c.mu.Unlock()
}

func (c *Collector) IncWSMessageSent() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.wsMessagesSent++
	c.mu.Unlock()
}

func (c *Collector) IncWSMessageDropped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.wsMessagesDropped++
	c.mu.Unlock()
}

// --- Snapshot ---

// SandboxGauges carries the point-in-time pool gauges to absorb into a
// Snapshot; the collector does not track these live since sandbox.Pool
// already owns that bookkeeping (spec §4.1 sandbox.stats()).
type SandboxGauges struct {
	ActiveInstances    int
	AvailableInstances int
	CacheHitRate       float64
	TotalExecutions    int64
}

// Snapshot returns an immutable point-in-time view of all metrics, with
// gauges absorbed in from the sandbox pool's own stats.
func (c *Collector) Snapshot(gauges SandboxGauges) Snapshot {
	if c == nil {
		return Snapshot{
			SandboxActiveInstances:    gauges.ActiveInstances,
			SandboxAvailableInstances: gauges.AvailableInstances,
			SandboxCacheHitRate:       gauges.CacheHitRate,
			SandboxTotalExecutions:    gauges.TotalExecutions,
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	errKinds := make(map[string]int64, len(c.errorsByKind))
	for k, v := range c.errorsByKind {
		errKinds[k] = v
	}

	return Snapshot{
		PanelsCreated:   c.panelsCreated,
		PanelsDestroyed: c.panelsDestroyed,
		PanelsErrored:   c.panelsErrored,

		InvocationsStarted:   c.invocationsStarted,
		InvocationsSucceeded: c.invocationsSucceeded,
		InvocationsFailed:    c.invocationsFailed,
		InvocationsSuspended: c.invocationsSuspended,
		ErrorsByKind:         errKinds,

		SuspensionsOpened:    c.suspensionsOpened,
		SuspensionsResolved:  c.suspensionsResolved,
		SuspensionsTimedOut:  c.suspensionsTimedOut,
		SuspensionsCancelled: c.suspensionsCancelled,

		ExtensionCallSuccess: c.extensionCallSuccess,
		ExtensionCallFailure: c.extensionCallFailure,

		SandboxActiveInstances:    gauges.ActiveInstances,
		SandboxAvailableInstances: gauges.AvailableInstances,
		SandboxCacheHitRate:       gauges.CacheHitRate,
		SandboxTotalExecutions:    gauges.TotalExecutions,

		WSClientsConnected: c.wsClientsConnected,
		WSMessagesSent:      c.wsMessagesSent,
		WSMessagesDropped:   c.wsMessagesDropped,

		Version: c.version,
	}
}
