// Package orchestrator implements the Handler Orchestrator (spec §4.7):
// the execute→suspend→extension→resume loop, applying interim effects to
// panel state and broadcasting them before ever invoking the extension
// that caused the suspension.
package orchestrator

import (
	"context"
	"time"

	"github.com/panelkit/runtime/execctx"
	"github.com/panelkit/runtime/extension"
	"github.com/panelkit/runtime/sandbox"
)

// PanelEffects is the subset of the panel manager (spec §4.6) the
// orchestrator drives mutations, events, and suspension bookkeeping
// through. Defined here rather than imported from panelmgr to keep the
// dependency one-directional: panelmgr depends on orchestrator, not the
// reverse.
type PanelEffects interface {
	ApplyMutations(ctx context.Context, panelID string, mutations []execctx.StateMutation) error
	EmitEvent(ctx context.Context, panelID string, event execctx.EmittedEvent)
	BroadcastViewCommand(ctx context.Context, panelID string, cmd execctx.ViewCommand)
	RegisterSuspension(ctx context.Context, panelID, handlerName string, details execctx.SuspensionDetails)
	CompleteSuspension(ctx context.Context, suspensionID string)
}

// Orchestrator runs one handler invocation to a terminal result, per the
// algorithm in spec §4.7.
type Orchestrator struct {
	sandbox    sandbox.Interpreter
	extensions *extension.Registry
	panels     PanelEffects
	timeout    time.Duration
}

// New builds an Orchestrator wired to the given sandbox pool, extension
// registry, and panel effects sink.
func New(pool sandbox.Interpreter, extensions *extension.Registry, panels PanelEffects, timeout time.Duration) *Orchestrator {
	return &Orchestrator{sandbox: pool, extensions: extensions, panels: panels, timeout: timeout}
}

// Run drives source (a tool handler or a mount/unmount lifecycle hook)
// on panelID to a terminal ExecutionResult, applying and broadcasting
// every interim effect along the way per the ordering guarantee in
// spec §4.4.
func (o *Orchestrator) Run(ctx context.Context, panelID, handlerName, source string, ectx *execctx.ExecutionContext) execctx.ExecutionResult {
	result := o.sandbox.Execute(ctx, source, ectx, o.timeout)

	for {
		o.applyInterimEffects(ctx, panelID, result)

		switch result.Status {
		case execctx.StatusOK, execctx.StatusError:
			return result
		case execctx.StatusSuspended:
			result = o.stepSuspension(ctx, panelID, handlerName, result)
		default:
			return result
		}
	}
}

// applyInterimEffects applies result's mutations/events/view commands to
// panel state, in program order, before the orchestrator does anything
// else with this result — including, for a suspended result, invoking
// the extension that caused it. This is what makes the ordering
// guarantee in spec §4.4 hold.
func (o *Orchestrator) applyInterimEffects(ctx context.Context, panelID string, result execctx.ExecutionResult) {
	if len(result.StateMutations) > 0 {
		_ = o.panels.ApplyMutations(ctx, panelID, result.StateMutations)
	}
	for _, ev := range result.Events {
		o.panels.EmitEvent(ctx, panelID, ev)
	}
	for _, cmd := range result.ViewCommands {
		o.panels.BroadcastViewCommand(ctx, panelID, cmd)
	}
}

// stepSuspension registers the suspension, invokes the named extension
// method, converts any error it returns into a failure AsyncResult
// (never lets it propagate as a Go error out of the loop), and resumes
// the frozen interpreter.
func (o *Orchestrator) stepSuspension(ctx context.Context, panelID, handlerName string, result execctx.ExecutionResult) execctx.ExecutionResult {
	details := *result.Suspension
	o.panels.RegisterSuspension(ctx, panelID, handlerName, details)

	asyncResult := o.invokeExtension(ctx, details)

	o.panels.CompleteSuspension(ctx, details.SuspensionID)
	return o.sandbox.Resume(ctx, details.SuspensionID, asyncResult)
}

// invokeExtension calls the extension and converts its outcome into an
// AsyncResult, catching any error so it surfaces as a catchable
// exception inside the handler rather than aborting the loop, per
// spec §4.7: "The orchestrator is responsible for catching exceptions
// from the extension call."
func (o *Orchestrator) invokeExtension(ctx context.Context, details execctx.SuspensionDetails) execctx.AsyncResult {
	value, err := o.extensions.Call(ctx, details.Extension, details.Method, details.Params)
	if err != nil {
		return execctx.AsyncResult{Success: false, Error: err.Error()}
	}
	return execctx.AsyncResult{Success: true, Value: value}
}
