package workerproc

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/panelkit/runtime/execctx"
	"github.com/panelkit/runtime/ipc"
	"github.com/panelkit/runtime/sandbox"
)

// Interpreter adapts a panel-worker subprocess to sandbox.Interpreter,
// so panelmgr.Manager (via orchestrator.Orchestrator) can be configured
// to run handlers out-of-process without knowing the difference.
//
// Extension invocation never happens here: a suspended ResultFrame is
// relayed straight up to the orchestrator, which owns invoking the
// named extension and later calling Resume with the outcome, exactly as
// it does for the in-process sandbox.Pool. This Interpreter's only job
// is moving InvokeFrame/ResumeFrame/ResultFrame across the subprocess
// boundary.
//
// Execution is strictly serialized: one Invoke/Resume round trip
// completes before the next begins, since a single subprocess handles
// one panel-worker protocol conversation at a time.
type Interpreter struct {
	proc *Manager

	mu     sync.Mutex        // guards source and serializes round trips
	source map[string]string // Bytecode.Key -> source, populated by Precompile
}

// NewInterpreter builds an Interpreter driving proc.
func NewInterpreter(proc *Manager) *Interpreter {
	return &Interpreter{proc: proc, source: make(map[string]string)}
}

// Execute sends source for execution against ectx's state/capabilities
// and returns whatever ResultFrame the worker replies with.
func (i *Interpreter) Execute(ctx context.Context, source string, ectx *execctx.ExecutionContext, timeout time.Duration) execctx.ExecutionResult {
	invoke := ipc.NewInvokeFrame(ectx.PanelID, ectx.Handler, source, ectx.Args, ectx.StateView,
		capabilityTokens(ectx), timeout.Milliseconds())

	frame, err := ipc.EncodeInvokeFrame(invoke)
	if err != nil {
		return errorResult(execctx.InternalError, "encode invoke frame: "+err.Error())
	}
	return i.roundTrip(frame)
}

// ExecuteCompiled looks up the source cached under bc.Key by a prior
// Precompile call and executes it. The worker process compiles its own
// bytecode internally; Bytecode.Program is never populated by this
// Interpreter.
func (i *Interpreter) ExecuteCompiled(ctx context.Context, bc sandbox.Bytecode, ectx *execctx.ExecutionContext, timeout time.Duration) execctx.ExecutionResult {
	i.mu.Lock()
	source, ok := i.source[bc.Key]
	i.mu.Unlock()
	if !ok {
		return errorResult(execctx.InternalError, "no cached source for bytecode key "+bc.Key)
	}
	return i.Execute(ctx, source, ectx, timeout)
}

// Precompile caches source under a content-derived key for later
// ExecuteCompiled calls. There is no bytecode to produce here — the
// worker process owns its own compilation cache — so Bytecode.Program
// stays nil.
func (i *Interpreter) Precompile(source string) (sandbox.Bytecode, error) {
	key := precompileKey(source)
	i.mu.Lock()
	i.source[key] = source
	i.mu.Unlock()
	return sandbox.Bytecode{Key: key}, nil
}

// Resume sends result to the worker to resume suspensionID.
func (i *Interpreter) Resume(ctx context.Context, suspensionID string, result execctx.AsyncResult) execctx.ExecutionResult {
	resume := ipc.NewResumeFrame(suspensionID, result.Success, result.Value, result.Error)
	frame, err := ipc.EncodeResumeFrame(resume)
	if err != nil {
		return errorResult(execctx.InternalError, "encode resume frame: "+err.Error())
	}
	return i.roundTrip(frame)
}

// Stats is not meaningful for a single out-of-process worker in the
// same way as sandbox.Pool's instance accounting; callers that need
// fleet-wide stats across multiple Interpreter/Manager pairs aggregate
// them at the call site.
func (i *Interpreter) Stats() sandbox.Stats {
	return sandbox.Stats{ActiveInstances: 1, AvailableInstances: 0}
}

// roundTrip writes frame and reads back exactly one ResultFrame. The
// worker never sends anything else in reply to an Invoke/Resume frame:
// it either runs to completion, errors, or suspends — in every case the
// answer is a single ResultFrame.
func (i *Interpreter) roundTrip(frame []byte) execctx.ExecutionResult {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.proc.WriteFrame(frame); err != nil {
		return errorResult(execctx.InternalError, "write frame to worker: "+err.Error())
	}

	decoded, err := i.proc.ReadFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errorResult(execctx.InternalError, "worker closed connection")
		}
		return errorResult(execctx.InternalError, "read frame from worker: "+err.Error())
	}

	result, ok := decoded.(*ipc.ResultFrame)
	if !ok {
		return errorResult(execctx.InternalError, "unexpected frame from worker")
	}
	return resultFromWire(result)
}

func capabilityTokens(ectx *execctx.ExecutionContext) []string {
	s := ectx.Grants.String()
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func resultFromWire(f *ipc.ResultFrame) execctx.ExecutionResult {
	result := execctx.ExecutionResult{
		Status:      execctx.Status(f.Status),
		ReturnValue: f.ReturnValue,
	}
	for _, m := range f.StateMutations {
		result.StateMutations = append(result.StateMutations, execctx.StateMutation{
			Op: execctx.MutationOp(m.Op), Key: m.Key, Value: m.Value,
		})
	}
	for _, e := range f.Events {
		result.Events = append(result.Events, execctx.EmittedEvent{Name: e.Name, Payload: e.Payload})
	}
	for _, v := range f.ViewCommands {
		result.ViewCommands = append(result.ViewCommands, execctx.ViewCommand{
			ComponentID: v.ComponentID, Command: v.Command, Params: v.Params,
		})
	}
	if f.Suspension != nil {
		result.Suspension = &execctx.SuspensionDetails{
			SuspensionID: f.Suspension.SuspensionID,
			Extension:    f.Suspension.Extension,
			Method:       f.Suspension.Method,
			Params:       f.Suspension.Params,
		}
	}
	if f.ErrorMessage != "" || f.ErrorKind != "" {
		result.Error = execctx.NewRuntimeError(errorKindFromWire(f.ErrorKind), f.ErrorMessage)
	}
	return result
}

func errorKindFromWire(kind string) execctx.ErrorKind {
	switch kind {
	case "TIMEOUT":
		return execctx.Timeout
	case "MEMORY_LIMIT":
		return execctx.MemoryLimit
	case "RESOURCE_LIMIT":
		return execctx.ResourceLimit
	case "COMPILATION_ERROR":
		return execctx.CompilationError
	case "PERMISSION_DENIED":
		return execctx.PermissionDenied
	case "EXTENSION_NOT_FOUND":
		return execctx.ExtensionNotFound
	case "METHOD_NOT_FOUND":
		return execctx.MethodNotFound
	case "INVALID_HANDLER":
		return execctx.InvalidHandler
	case "EXECUTION_ERROR":
		return execctx.ExecutionError
	default:
		return execctx.InternalError
	}
}

func errorResult(kind execctx.ErrorKind, message string) execctx.ExecutionResult {
	return execctx.ExecutionResult{
		Status: execctx.StatusError,
		Error:  execctx.NewRuntimeError(kind, message),
	}
}

// precompileKey derives a stable cache key from source text (64-bit
// FNV-1a). Two sources that collide share one key, and ExecuteCompiled
// then runs whichever of them was precompiled last.
func precompileKey(source string) string {
	var h uint64 = 1469598103934665603 // FNV-1a offset basis
	for i := 0; i < len(source); i++ {
		h ^= uint64(source[i])
		h *= 1099511628211
	}
	return hex16(h)
}

func hex16(v uint64) string {
	const hex = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hex[v&0xf]
		v >>= 4
	}
	return string(buf)
}

var _ sandbox.Interpreter = (*Interpreter)(nil)
