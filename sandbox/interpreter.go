// Package sandbox implements the pool of isolated JavaScript interpreter
// instances that run panel handlers, per spec §4.1. The default
// implementation embeds github.com/dop251/goja; suspension/resumption
// (spec §4.4) is implemented by blocking the goroutine driving a
// handler's $ext call on a channel handoff rather than by any native
// interpreter continuation support, per the design note in spec §9.
package sandbox

import (
	"context"
	"time"

	"github.com/panelkit/runtime/execctx"
)

// Bytecode is an opaque compiled program plus the cache key it was
// compiled under.
type Bytecode struct {
	Key     string
	Program *compiledProgram
}

// Stats mirrors the sandbox.stats() operation in spec §4.1.
type Stats struct {
	TotalExecutions    int64
	ActiveInstances     int
	AvailableInstances  int
	CacheHitRate        float64
	AvgExecutionTimeUs  int64
	TotalMemoryBytes    int64
}

// Interpreter is the engine-level contract the rest of the runtime
// depends on, satisfied by *Pool. It is an interface so the orchestrator
// and panel manager can be tested against a fake.
type Interpreter interface {
	Execute(ctx context.Context, source string, ectx *execctx.ExecutionContext, timeout time.Duration) execctx.ExecutionResult
	ExecuteCompiled(ctx context.Context, bc Bytecode, ectx *execctx.ExecutionContext, timeout time.Duration) execctx.ExecutionResult
	Precompile(source string) (Bytecode, error)
	Resume(ctx context.Context, suspensionID string, result execctx.AsyncResult) execctx.ExecutionResult
	Stats() Stats
}
