package sandbox

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/panelkit/runtime/execctx"
)

// ExtensionLookup is the subset of the extension registry (§4.8) the
// sandbox needs to validate an $ext call before suspending: whether the
// extension is registered and whether it advertises the called method.
// Invocation itself happens outside the sandbox, by the orchestrator.
type ExtensionLookup interface {
	Has(name string) bool
	HasMethod(name, method string) bool
}

// maxLoggedValueLen caps the length of a string data value accepted by
// $log (longer strings are truncated; other values are kept as they are)
// to avoid a misbehaving handler pinning large strings in log entries.
const maxLoggedValueLen = 8192

// bindHostFunctions installs the flat `__host_*` primitives consumed by
// bundle/prelude.js onto rt, closing over ectx for capability checks and
// effect accumulation, and over inv for the $ext suspend handoff.
func bindHostFunctions(rt *goja.Runtime, ectx *execctx.ExecutionContext, lookup ExtensionLookup, inv *invocation, hostCallLimit int) {
	must := func(name string, fn func(goja.FunctionCall) goja.Value) {
		if err := rt.Set(name, fn); err != nil {
			panic(fmt.Sprintf("sandbox: failed to bind %s: %v", name, err))
		}
	}

	checkCall := func() {
		if ectx.IncrementHostCalls() > hostCallLimit {
			panic(rt.NewGoError(execctx.NewRuntimeError(execctx.ResourceLimit, "host call limit exceeded")))
		}
	}

	requireCapability := func(required string) {
		if !ectx.Grants.Check(required) {
			panic(rt.NewGoError(execctx.NewRuntimeError(execctx.PermissionDenied, "missing capability "+required)))
		}
	}

	must("__host_state_get", func(call goja.FunctionCall) goja.Value {
		checkCall()
		key := call.Argument(0).String()
		requireCapability(fmt.Sprintf("state:read:%s", key))
		v, ok := ectx.StateView[key]
		if !ok {
			return goja.Undefined()
		}
		return rt.ToValue(v)
	})

	must("__host_state_has", func(call goja.FunctionCall) goja.Value {
		checkCall()
		key := call.Argument(0).String()
		requireCapability(fmt.Sprintf("state:read:%s", key))
		_, ok := ectx.StateView[key]
		return rt.ToValue(ok)
	})

	must("__host_state_keys", func(call goja.FunctionCall) goja.Value {
		checkCall()
		requireCapability("state:read:*")
		keys := make([]string, 0, len(ectx.StateView))
		for k := range ectx.StateView {
			keys = append(keys, k)
		}
		return rt.ToValue(keys)
	})

	must("__host_state_set", func(call goja.FunctionCall) goja.Value {
		checkCall()
		key := call.Argument(0).String()
		requireCapability(fmt.Sprintf("state:write:%s", key))
		ectx.RecordMutation(execctx.StateMutation{Op: execctx.OpSet, Key: key, Value: call.Argument(1).Export()})
		return goja.Undefined()
	})

	must("__host_state_delete", func(call goja.FunctionCall) goja.Value {
		checkCall()
		key := call.Argument(0).String()
		requireCapability(fmt.Sprintf("state:write:%s", key))
		ectx.RecordMutation(execctx.StateMutation{Op: execctx.OpDelete, Key: key})
		return goja.Undefined()
	})

	must("__host_emit", func(call goja.FunctionCall) goja.Value {
		checkCall()
		name := call.Argument(0).String()
		requireCapability(fmt.Sprintf("events:emit:%s", name))
		ectx.EmitEvent(name, call.Argument(1).Export())
		return goja.Undefined()
	})

	must("__host_view", func(call goja.FunctionCall) goja.Value {
		checkCall()
		componentID := call.Argument(0).String()
		command := call.Argument(1).String()
		requireCapability(fmt.Sprintf("view:update:%s", componentID))
		params, _ := call.Argument(2).Export().([]any)
		ectx.PushViewCommand(componentID, command, params)
		return goja.Undefined()
	})

	must("__host_log", func(call goja.FunctionCall) goja.Value {
		level := execctx.LogLevel(call.Argument(0).String())
		message := call.Argument(1).String()
		data := call.Argument(2).Export()
		if s, ok := data.(string); ok && len(s) > maxLoggedValueLen {
			data = s[:maxLoggedValueLen] + "...(truncated)"
		}
		ectx.Log(level, message, data)
		return goja.Undefined()
	})

	must("__host_ext", func(call goja.FunctionCall) goja.Value {
		checkCall()
		name := call.Argument(0).String()
		method := call.Argument(1).String()
		requireCapability(fmt.Sprintf("ext:%s", name))

		if !lookup.Has(name) {
			panic(rt.NewGoError(execctx.NewRuntimeError(execctx.ExtensionNotFound, "extension not registered: "+name)))
		}
		if !lookup.HasMethod(name, method) {
			panic(rt.NewGoError(execctx.NewRuntimeError(execctx.MethodNotFound, "method not found: "+name+"."+method)))
		}

		params, _ := call.Argument(2).Export().([]any)

		reply := make(chan execctx.AsyncResult, 1)
		suspensionID := uuid.NewString()
		inv.suspendCh <- suspendRequest{
			details: execctx.SuspensionDetails{
				SuspensionID: suspensionID,
				Extension:    name,
				Method:       method,
				Params:       params,
			},
			reply: reply,
		}

		// This is the cooperative yield: the goroutine driving this
		// goja.Runtime parks here. The driver loop learned of the
		// suspension from the send above and has already returned a
		// status=suspended ExecutionResult to its caller.
		result := <-reply

		if !result.Success {
			panic(rt.NewGoError(execctx.NewRuntimeError(execctx.ExecutionError, result.Error)))
		}
		return rt.ToValue(result.Value)
	})
}
