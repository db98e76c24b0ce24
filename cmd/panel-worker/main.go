// Package main provides the panel-worker subprocess entrypoint: a
// standalone sandbox.Pool driven entirely over stdin/stdout framing
// (see package ipc), for deployments that run handler execution
// isolated into its own OS process rather than in-process inside
// panelrund. See package workerproc for the manager and
// sandbox.Interpreter adapter that drive this binary from the host
// side.
//
// Extension invocation never happens in this process: a suspended
// ResultFrame is written back to the host unchanged, and this binary
// simply waits for the matching ResumeFrame. The host's orchestrator
// owns calling the real extension registry.
package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/panelkit/runtime/capability"
	"github.com/panelkit/runtime/execctx"
	"github.com/panelkit/runtime/ipc"
	"github.com/panelkit/runtime/sandbox"
)

// errUnexpectedFrame marks a decoded frame this process has no reply
// for (a ResultFrame arriving on our own stdin, say) — dropped rather
// than treated as fatal, since framing stays in sync regardless.
var errUnexpectedFrame = errors.New("panel-worker: unexpected frame type")

func durationMs(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// permissiveLookup lets every $ext call through to the suspend point.
// The real check of whether the extension and method exist happens in
// the host process's orchestrator when it invokes the extension
// registry; rejecting here too would just duplicate that decision with
// a staler view of what's registered.
type permissiveLookup struct{}

func (permissiveLookup) Has(name string) bool              { return true }
func (permissiveLookup) HasMethod(name, method string) bool { return true }

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	pool := sandbox.NewPool(sandbox.DefaultConfig(), permissiveLookup{})

	decoder := ipc.NewFrameDecoder(bufio.NewReader(os.Stdin))
	out := os.Stdout

	if err := run(context.Background(), pool, decoder, out, log); err != nil {
		log.Error("panel-worker exiting", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, pool *sandbox.Pool, decoder *ipc.FrameDecoder, out io.Writer, log *zap.Logger) error {
	for {
		payload, err := decoder.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		decoded, err := ipc.DecodeFrame(payload)
		if err != nil {
			log.Warn("dropping unparseable frame", zap.Error(err))
			continue
		}

		result, err := dispatch(ctx, pool, decoded)
		if err != nil {
			log.Warn("dropping frame with no result to send", zap.Error(err))
			continue
		}

		frame, err := ipc.EncodeResultFrame(resultToWire(result))
		if err != nil {
			log.Error("failed to encode result frame", zap.Error(err))
			continue
		}
		if _, err := out.Write(frame); err != nil {
			return err
		}
	}
}

func dispatch(ctx context.Context, pool *sandbox.Pool, decoded any) (execctx.ExecutionResult, error) {
	switch f := decoded.(type) {
	case *ipc.InvokeFrame:
		grants := capability.ParseSet(capability.OriginDeclared, f.Capabilities)
		ectx := execctx.NewExecutionContext(f.PanelID, f.HandlerName, f.Args, f.State, grants)
		return pool.Execute(ctx, f.Source, ectx, durationMs(f.TimeoutMs)), nil
	case *ipc.ResumeFrame:
		asyncResult := execctx.AsyncResult{Success: f.Success, Value: f.Value, Error: f.Error}
		return pool.Resume(ctx, f.SuspensionID, asyncResult), nil
	default:
		return execctx.ExecutionResult{}, errUnexpectedFrame
	}
}

func resultToWire(result execctx.ExecutionResult) *ipc.ResultFrame {
	wire := &ipc.ResultFrame{
		Status:      string(result.Status),
		ReturnValue: result.ReturnValue,
	}
	for _, m := range result.StateMutations {
		wire.StateMutations = append(wire.StateMutations, ipc.StateMutationWire{
			Op: string(m.Op), Key: m.Key, Value: m.Value,
		})
	}
	for _, e := range result.Events {
		wire.Events = append(wire.Events, ipc.EmittedEventWire{Name: e.Name, Payload: e.Payload})
	}
	for _, v := range result.ViewCommands {
		wire.ViewCommands = append(wire.ViewCommands, ipc.ViewCommandWire{
			ComponentID: v.ComponentID, Command: v.Command, Params: v.Params,
		})
	}
	if result.Suspension != nil {
		wire.Suspension = &ipc.SuspensionWire{
			SuspensionID: result.Suspension.SuspensionID,
			Extension:    result.Suspension.Extension,
			Method:       result.Suspension.Method,
			Params:       result.Suspension.Params,
		}
	}
	if result.Error != nil {
		wire.ErrorKind = result.Error.Kind.String()
		wire.ErrorMessage = result.Error.Message
	}
	return wire
}
