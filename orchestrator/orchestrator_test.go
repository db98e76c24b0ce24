package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/panelkit/runtime/capability"
	"github.com/panelkit/runtime/execctx"
	"github.com/panelkit/runtime/extension"
	"github.com/panelkit/runtime/sandbox"
)

type recordingPanels struct {
	mutations []execctx.StateMutation
	events    []execctx.EmittedEvent
	commands  []execctx.ViewCommand
}

func (p *recordingPanels) ApplyMutations(_ context.Context, _ string, mutations []execctx.StateMutation) error {
	p.mutations = append(p.mutations, mutations...)
	return nil
}
func (p *recordingPanels) EmitEvent(_ context.Context, _ string, event execctx.EmittedEvent) {
	p.events = append(p.events, event)
}
func (p *recordingPanels) BroadcastViewCommand(_ context.Context, _ string, cmd execctx.ViewCommand) {
	p.commands = append(p.commands, cmd)
}
func (p *recordingPanels) RegisterSuspension(context.Context, string, string, execctx.SuspensionDetails) {
}
func (p *recordingPanels) CompleteSuspension(context.Context, string) {}

type echoExtension struct{}

func (echoExtension) Name() string      { return "http" }
func (echoExtension) Methods() []string { return []string{"get"} }
func (echoExtension) Call(_ context.Context, _ string, _ []any) (any, error) {
	return map[string]any{"data": "ok"}, nil
}

func TestOrchestratorAppliesEffectsBeforeExtensionCall(t *testing.T) {
	registry := extension.NewRegistry()
	_ = registry.Register(echoExtension{})

	pool := sandbox.NewPool(sandbox.DefaultConfig(), registry)
	panels := &recordingPanels{}
	orch := New(pool, registry, panels, 2*time.Second)

	grants := capability.ParseSet(capability.OriginDeclared, []string{"state:write:*", "ext:http"})
	ectx := execctx.NewExecutionContext("panel-1", "fetch", nil, map[string]any{}, grants)

	src := `
		$state.set("pending", true);
		var r = $ext.http.get("https://example.test/x");
		$state.set("pending", false);
		$state.set("body", r.data);
	`

	result := orch.Run(context.Background(), "panel-1", "fetch", src, ectx)
	if result.Status != execctx.StatusOK {
		t.Fatalf("expected success, got %v (%+v)", result.Status, result.Error)
	}

	if len(panels.mutations) != 3 {
		t.Fatalf("expected 3 total applied mutations, got %+v", panels.mutations)
	}
	if panels.mutations[0].Key != "pending" || panels.mutations[0].Value != true {
		t.Fatalf("expected pending=true applied first, got %+v", panels.mutations[0])
	}
}
