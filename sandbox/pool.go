package sandbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/panelkit/runtime/execctx"
)

// Config configures a Pool, per spec §4.1 "Pool behavior" and §5's
// resource model.
type Config struct {
	MinInstances int
	MaxInstances int

	DefaultTimeout  time.Duration
	AcquireTimeout  time.Duration
	HostCallLimit   int
	SuspendedBudget time.Duration // cumulative cap across suspend/resume cycles

	CacheMaxBytes int
	CacheDiskDir  string
}

// DefaultConfig mirrors the "typically a few seconds" guidance in
// spec §4.1.
func DefaultConfig() Config {
	return Config{
		MinInstances:    2,
		MaxInstances:    8,
		DefaultTimeout:  2 * time.Second,
		AcquireTimeout:  5 * time.Second,
		HostCallLimit:   10_000,
		SuspendedBudget: 5 * time.Minute,
		CacheMaxBytes:   64 << 20,
	}
}

// Pool is the default Interpreter implementation: a bounded set of
// goja-backed vmSlots with a shared compilation cache, satisfying spec
// §4.1's Sandbox Execution Engine.
type Pool struct {
	cfg   Config
	cache *compileCache

	mu    sync.Mutex
	idle  []*vmSlot
	total int

	suspensions map[string]*pendingSuspension

	lookup ExtensionLookup

	totalExecutions int64
	totalExecMicros int64
}

type pendingSuspension struct {
	slot    *vmSlot
	inv     *invocation
	replyCh chan execctx.AsyncResult
}

// NewPool builds a Pool pre-warmed to cfg.MinInstances slots.
func NewPool(cfg Config, lookup ExtensionLookup) *Pool {
	p := &Pool{
		cfg:         cfg,
		cache:       newCompileCache(cfg.CacheMaxBytes, cfg.CacheDiskDir),
		suspensions: make(map[string]*pendingSuspension),
		lookup:      lookup,
	}
	for i := 0; i < cfg.MinInstances; i++ {
		p.idle = append(p.idle, newVMSlot(i))
	}
	p.total = cfg.MinInstances
	return p
}

// acquire blocks until a slot is available or acquireTimeout elapses.
func (p *Pool) acquire(ctx context.Context) (*vmSlot, error) {
	deadline := time.Now().Add(p.cfg.AcquireTimeout)
	for {
		p.mu.Lock()
		if n := len(p.idle); n > 0 {
			s := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return s, nil
		}
		if p.total < p.cfg.MaxInstances {
			s := newVMSlot(p.total)
			p.total++
			p.mu.Unlock()
			return s, nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("sandbox: timed out acquiring interpreter slot")
			}
		}
	}
}

func (p *Pool) release(s *vmSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, s)
}

func (p *Pool) discard(s *vmSlot) {
	s.reset()
	p.release(s)
}

// Execute implements Interpreter.Execute.
func (p *Pool) Execute(ctx context.Context, source string, ectx *execctx.ExecutionContext, timeout time.Duration) execctx.ExecutionResult {
	program, _, hit, err := p.cache.getOrCompile(source)
	if err != nil {
		return errorResult(execctx.CompilationError, err.Error())
	}
	return p.executeProgram(ctx, program, hit, ectx, timeout)
}

// ExecuteCompiled implements Interpreter.ExecuteCompiled.
func (p *Pool) ExecuteCompiled(ctx context.Context, bc Bytecode, ectx *execctx.ExecutionContext, timeout time.Duration) execctx.ExecutionResult {
	if bc.Program == nil {
		return errorResult(execctx.InvalidHandler, "nil bytecode")
	}
	return p.executeProgram(ctx, bc.Program, true, ectx, timeout)
}

// Precompile implements Interpreter.Precompile.
func (p *Pool) Precompile(source string) (Bytecode, error) {
	program, key, _, err := p.cache.getOrCompile(source)
	if err != nil {
		return Bytecode{}, err
	}
	return Bytecode{Key: key, Program: program}, nil
}

func (p *Pool) executeProgram(ctx context.Context, program *compiledProgram, cacheHit bool, ectx *execctx.ExecutionContext, timeout time.Duration) execctx.ExecutionResult {
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}

	slot, err := p.acquire(ctx)
	if err != nil {
		return errorResult(execctx.ResourceLimit, err.Error())
	}

	budget := p.cfg.SuspendedBudget
	if budget < timeout {
		budget = timeout
	}
	inv := newInvocation(ectx, slot, budget, cacheHit)
	bindHostFunctions(slot.rt, ectx, p.lookup, inv, p.cfg.HostCallLimit)

	if _, err := slot.rt.RunString(bootstrapSource); err != nil {
		p.discard(slot)
		return errorResult(execctx.InternalError, "bootstrap failed: "+err.Error())
	}
	if _, err := slot.rt.RunString(preludeSource); err != nil {
		p.discard(slot)
		return errorResult(execctx.InternalError, "prelude failed: "+err.Error())
	}

	atomic.AddInt64(&p.totalExecutions, 1)
	start := time.Now()
	inv.run(program)

	result := p.drive(slot, inv, timeout)
	atomic.AddInt64(&p.totalExecMicros, time.Since(start).Microseconds())
	return result
}

// Resume implements Interpreter.Resume.
func (p *Pool) Resume(ctx context.Context, suspensionID string, asyncResult execctx.AsyncResult) execctx.ExecutionResult {
	p.mu.Lock()
	pending, ok := p.suspensions[suspensionID]
	if ok {
		delete(p.suspensions, suspensionID)
	}
	p.mu.Unlock()

	if !ok {
		return errorResult(execctx.InternalError, "unknown suspension id: "+suspensionID)
	}

	timeout := pending.inv.remainingBudget()
	if timeout <= 0 {
		p.forceTimeout(pending.slot, pending.inv)
		return errorResult(execctx.Timeout, "cumulative execution budget exceeded")
	}

	// Hand the value to the goroutine parked inside __host_ext.
	pending.replyCh <- asyncResult

	return p.drive(pending.slot, pending.inv, timeout)
}

// drive waits for the running invocation to either suspend again,
// complete, or exceed its remaining budget.
func (p *Pool) drive(slot *vmSlot, inv *invocation, timeout time.Duration) execctx.ExecutionResult {
	select {
	case req := <-inv.suspendCh:
		p.mu.Lock()
		p.suspensions[req.details.SuspensionID] = &pendingSuspension{slot: slot, inv: inv, replyCh: req.reply}
		p.mu.Unlock()

		return execctx.NewExecutionResult(execctx.StatusSuspended, inv.ectx, nil, &execctx.SuspensionDetails{
			SuspensionID: req.details.SuspensionID,
			Extension:    req.details.Extension,
			Method:       req.details.Method,
			Params:       req.details.Params,
		}, p.metricsFor(inv))

	case outcome := <-inv.doneCh:
		p.release(slot)
		return p.finalResult(inv, outcome)

	case <-time.After(timeout):
		p.forceTimeout(slot, inv)
		return errorResultWithEffects(execctx.Timeout, "execution timed out", inv.ectx)
	}
}

func (p *Pool) forceTimeout(slot *vmSlot, inv *invocation) {
	slot.rt.Interrupt("timeout")
	go func() {
		<-inv.doneCh // drain so the goroutine running RunProgram can exit
		p.discard(slot)
	}()
}

func (p *Pool) finalResult(inv *invocation, outcome invocationOutcome) execctx.ExecutionResult {
	metrics := p.metricsFor(inv)
	if outcome.err != nil {
		kind := execctx.ExecutionError
		if _, ok := outcome.err.(*goja.InterruptedError); ok {
			kind = execctx.Timeout
		}
		if rerr, ok := asRuntimeError(outcome.err); ok {
			return execctx.ExecutionResult{
				Status:         execctx.StatusError,
				StateMutations: inv.ectx.Mutations(),
				Events:         inv.ectx.Events(),
				ViewCommands:   inv.ectx.ViewCommands(),
				Error:          rerr,
				Metrics:        metrics,
			}
		}
		return execctx.ExecutionResult{
			Status:         execctx.StatusError,
			StateMutations: inv.ectx.Mutations(),
			Events:         inv.ectx.Events(),
			ViewCommands:   inv.ectx.ViewCommands(),
			Error:          execctx.NewRuntimeError(kind, outcome.err.Error()),
			Metrics:        metrics,
		}
	}
	var ret any
	if outcome.value != nil {
		ret = outcome.value.Export()
	}
	result := execctx.NewExecutionResult(execctx.StatusOK, inv.ectx, ret, nil, metrics)
	return result
}

func (p *Pool) metricsFor(inv *invocation) execctx.ExecutionMetrics {
	return execctx.ExecutionMetrics{
		ExecutionTimeUs: time.Since(inv.startedAt).Microseconds(),
		HostCalls:       inv.ectx.HostCalls(),
		CacheHit:        inv.cacheHit,
	}
}

// Stats implements Interpreter.Stats.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	active := p.total - len(p.idle)
	available := len(p.idle)
	p.mu.Unlock()

	execs := atomic.LoadInt64(&p.totalExecutions)
	micros := atomic.LoadInt64(&p.totalExecMicros)
	var avg int64
	if execs > 0 {
		avg = micros / execs
	}

	return Stats{
		TotalExecutions:    execs,
		ActiveInstances:    active,
		AvailableInstances: available,
		CacheHitRate:       p.cache.hitRate(),
		AvgExecutionTimeUs: avg,
	}
}

func errorResult(kind execctx.ErrorKind, message string) execctx.ExecutionResult {
	return execctx.ExecutionResult{
		Status: execctx.StatusError,
		Error:  execctx.NewRuntimeError(kind, message),
	}
}

func errorResultWithEffects(kind execctx.ErrorKind, message string, ectx *execctx.ExecutionContext) execctx.ExecutionResult {
	return execctx.ExecutionResult{
		Status:         execctx.StatusError,
		StateMutations: ectx.Mutations(),
		Events:         ectx.Events(),
		ViewCommands:   ectx.ViewCommands(),
		Error:          execctx.NewRuntimeError(kind, message),
	}
}

// asRuntimeError recovers a *execctx.RuntimeError from a JS exception
// thrown via panic(rt.NewGoError(rerr)) in a host binding. NewGoError
// stores the original Go error on the thrown object's "value" property.
func asRuntimeError(err error) (*execctx.RuntimeError, bool) {
	exc, ok := err.(*goja.Exception)
	if !ok {
		return nil, false
	}
	obj, ok := exc.Value().(*goja.Object)
	if !ok {
		return nil, false
	}
	wrapped := obj.Get("value")
	if wrapped == nil {
		return nil, false
	}
	goErr, ok := wrapped.Export().(error)
	if !ok {
		return nil, false
	}
	rerr, ok := goErr.(*execctx.RuntimeError)
	return rerr, ok
}
