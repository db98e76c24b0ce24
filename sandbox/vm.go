package sandbox

import (
	"time"

	"github.com/dop251/goja"

	"github.com/panelkit/runtime/execctx"
)

// vmSlot is one interpreter slot in the pool, per spec §3 InterpreterSlot.
// Exactly one invocation owns a slot at a time, including across its
// suspend/resume cycles.
type vmSlot struct {
	id int
	rt *goja.Runtime
}

func newVMSlot(id int) *vmSlot {
	return &vmSlot{id: id, rt: goja.New()}
}

// reset discards the slot's Runtime and replaces it with a fresh one.
// Used after a terminal error (timeout, memory limit, etc.) per spec
// §4.1 "Slot reset on any terminal error".
func (s *vmSlot) reset() {
	s.rt = goja.New()
}

// suspendRequest is sent from the goroutine blocked inside __host_ext to
// the driver loop (Pool.Execute / Pool.Resume), handing over both the
// suspension's public details and the private channel the driver must
// use to resume it later.
type suspendRequest struct {
	details execctx.SuspensionDetails
	reply   chan execctx.AsyncResult
}

// invocationOutcome is sent from the goroutine running RunProgram to the
// driver loop once the script returns, throws, or is interrupted.
type invocationOutcome struct {
	value goja.Value
	err   error
}

// invocation tracks one handler call across however many suspend/resume
// cycles it takes to reach a terminal result. A fresh invocation is NOT
// created per resume — the same one lives until status is success/error.
type invocation struct {
	suspendCh chan suspendRequest
	doneCh    chan invocationOutcome

	startedAt    time.Time
	budget       time.Duration // cumulative wall-clock cap across all cycles
	ectx         *execctx.ExecutionContext
	slot         *vmSlot
	cacheHit     bool
}

func newInvocation(ectx *execctx.ExecutionContext, slot *vmSlot, budget time.Duration, cacheHit bool) *invocation {
	return &invocation{
		suspendCh: make(chan suspendRequest, 1),
		doneCh:    make(chan invocationOutcome, 1),
		startedAt: time.Now(),
		budget:    budget,
		ectx:      ectx,
		slot:      slot,
		cacheHit:  cacheHit,
	}
}

// remainingBudget returns how much cumulative wall-clock time is left
// before the invocation must be force-terminated, per spec §4.1
// "maximum total execution time across suspend/resume cycles".
func (inv *invocation) remainingBudget() time.Duration {
	left := inv.budget - time.Since(inv.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// run executes program on inv's slot in a dedicated goroutine, reporting
// the terminal outcome on inv.doneCh. Must be launched at most once per
// invocation; resumption does not re-enter run — it only unblocks the
// goroutine already parked inside __host_ext.
//
// A thrown JS exception (including one raised by a host binding via
// panic(rt.NewGoError(...))) is caught internally by goja and returned
// as a *goja.Exception error, not a Go panic; likewise Interrupt causes
// RunProgram to return a *goja.InterruptedError. Neither needs a
// recover here.
func (inv *invocation) run(program *compiledProgram) {
	go func() {
		v, err := inv.slot.rt.RunProgram(program.program)
		inv.doneCh <- invocationOutcome{value: v, err: err}
	}()
}
