package execctx

import (
	"time"

	"github.com/panelkit/runtime/capability"
)

// ExecutionContext is constructed fresh for every handler invocation per
// spec §3 and stays with that invocation across its suspend/resume
// cycles. It carries the inputs visible to the sandbox and accumulates the
// effects the handler produces in the order they occur, so they can be
// applied and emitted in that same order once the invocation completes or
// suspends; NewExecutionResult hands them over and clears them.
type ExecutionContext struct {
	PanelID     string
	Handler     string
	Args        []any
	StateView   map[string]any // read-only snapshot visible to $state.get
	Grants      capability.Set
	SuspendedAt *time.Time // not set by sandbox.Pool or the orchestrator; nil unless a caller sets it

	mutations    []StateMutation
	events       []EmittedEvent
	viewCommands []ViewCommand
	logs         []LogEntry
	hostCalls    int
}

// NewExecutionContext builds a context for a fresh (non-resuming)
// invocation of handler on panel, with stateView as the read-only snapshot
// visible to $state.get calls during this invocation.
func NewExecutionContext(panelID, handler string, args []any, stateView map[string]any, grants capability.Set) *ExecutionContext {
	return &ExecutionContext{
		PanelID:   panelID,
		Handler:   handler,
		Args:      args,
		StateView: stateView,
		Grants:    grants,
	}
}

// RecordMutation appends a state mutation, gated by the caller having
// already checked Grants. Order of calls is preserved.
func (c *ExecutionContext) RecordMutation(m StateMutation) {
	c.mutations = append(c.mutations, m)
}

// EmitEvent appends an emitted event with the current wall-clock time.
func (c *ExecutionContext) EmitEvent(name string, payload any) {
	c.events = append(c.events, EmittedEvent{
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// PushViewCommand appends a view command targeting componentID.
func (c *ExecutionContext) PushViewCommand(componentID, command string, params []any) {
	c.viewCommands = append(c.viewCommands, ViewCommand{
		ComponentID: componentID,
		Command:     command,
		Params:      params,
	})
}

// Log appends a $log(...) entry.
func (c *ExecutionContext) Log(level LogLevel, message string, data any) {
	c.logs = append(c.logs, LogEntry{
		Level:     level,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// IncrementHostCalls records one host-function boundary crossing. Callers
// enforce the per-invocation host-call limit by comparing the return value
// against their configured ceiling.
func (c *ExecutionContext) IncrementHostCalls() int {
	c.hostCalls++
	return c.hostCalls
}

// HostCalls returns the number of host-function calls made so far.
func (c *ExecutionContext) HostCalls() int {
	return c.hostCalls
}

// Mutations returns the accumulated state mutations in call order.
func (c *ExecutionContext) Mutations() []StateMutation {
	return c.mutations
}

// Events returns the accumulated emitted events in call order.
func (c *ExecutionContext) Events() []EmittedEvent {
	return c.events
}

// ViewCommands returns the accumulated view commands in call order.
func (c *ExecutionContext) ViewCommands() []ViewCommand {
	return c.viewCommands
}

// Logs returns the accumulated log entries in call order.
func (c *ExecutionContext) Logs() []LogEntry {
	return c.logs
}
