package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/panelkit/runtime/capability"
	"github.com/panelkit/runtime/execctx"
)

type stubLookup struct {
	methods map[string][]string
}

func (s stubLookup) Has(name string) bool { _, ok := s.methods[name]; return ok }
func (s stubLookup) HasMethod(name, method string) bool {
	for _, m := range s.methods[name] {
		if m == method {
			return true
		}
	}
	return false
}

func newTestPool(lookup ExtensionLookup) *Pool {
	cfg := DefaultConfig()
	cfg.MinInstances = 1
	cfg.MaxInstances = 2
	cfg.DefaultTimeout = 2 * time.Second
	return NewPool(cfg, lookup)
}

func TestExecuteStateSet(t *testing.T) {
	p := newTestPool(stubLookup{})
	grants := capability.ParseSet(capability.OriginDeclared, []string{"state:read:count", "state:write:count"})
	ectx := execctx.NewExecutionContext("panel-1", "inc", nil, map[string]any{"count": float64(0)}, grants)

	src := `$state.set("count", $state.get("count") + 1);`
	result := p.Execute(context.Background(), src, ectx, 2*time.Second)

	if result.Status != execctx.StatusOK {
		t.Fatalf("status = %v, error = %+v", result.Status, result.Error)
	}
	if len(result.StateMutations) != 1 {
		t.Fatalf("expected 1 mutation, got %d: %+v", len(result.StateMutations), result.StateMutations)
	}
	m := result.StateMutations[0]
	if m.Key != "count" || m.Value != float64(1) {
		t.Errorf("unexpected mutation: %+v", m)
	}
}

func TestExecutePermissionDenied(t *testing.T) {
	p := newTestPool(stubLookup{})
	grants := capability.ParseSet(capability.OriginDeclared, []string{"state:write:public"})
	ectx := execctx.NewExecutionContext("panel-1", "setSecret", nil, map[string]any{}, grants)

	src := `$state.set("secret", 42);`
	result := p.Execute(context.Background(), src, ectx, 2*time.Second)

	if result.Status != execctx.StatusError {
		t.Fatalf("expected error status, got %v", result.Status)
	}
	if result.Error == nil || result.Error.Kind != execctx.PermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED, got %+v", result.Error)
	}
	if len(result.StateMutations) != 0 {
		t.Errorf("expected no mutations applied, got %+v", result.StateMutations)
	}
}

func TestExecuteSuspendAndResume(t *testing.T) {
	p := newTestPool(stubLookup{methods: map[string][]string{"http": {"get"}}})
	grants := capability.ParseSet(capability.OriginDeclared, []string{"state:write:*", "ext:http"})
	ectx := execctx.NewExecutionContext("panel-1", "fetch", nil, map[string]any{}, grants)

	src := `
		$state.set("pending", true);
		var r = $ext.http.get("https://example.test/x");
		$state.set("pending", false);
		$state.set("body", r.data);
	`
	result := p.Execute(context.Background(), src, ectx, 2*time.Second)
	if result.Status != execctx.StatusSuspended {
		t.Fatalf("expected suspended, got %v (%+v)", result.Status, result.Error)
	}
	if result.Suspension == nil || result.Suspension.Extension != "http" || result.Suspension.Method != "get" {
		t.Fatalf("unexpected suspension details: %+v", result.Suspension)
	}
	if len(result.StateMutations) != 1 || result.StateMutations[0].Key != "pending" {
		t.Fatalf("expected interim pending=true mutation, got %+v", result.StateMutations)
	}

	final := p.Resume(context.Background(), result.Suspension.SuspensionID, execctx.AsyncResult{
		Success: true,
		Value:   map[string]any{"data": "ok"},
	})
	if final.Status != execctx.StatusOK {
		t.Fatalf("expected success after resume, got %v (%+v)", final.Status, final.Error)
	}
	if len(final.StateMutations) != 2 {
		t.Fatalf("expected 2 mutations after resume, got %+v", final.StateMutations)
	}
}

func TestResumeUnknownSuspensionID(t *testing.T) {
	p := newTestPool(stubLookup{})
	result := p.Resume(context.Background(), "does-not-exist", execctx.AsyncResult{Success: true})
	if result.Status != execctx.StatusError || result.Error.Kind != execctx.InternalError {
		t.Fatalf("expected INTERNAL_ERROR, got %+v", result)
	}
}

func TestCacheHitOnSecondCompile(t *testing.T) {
	c := newCompileCache(1<<20, "")
	src := "1 + 1;"
	if _, _, hit, err := c.getOrCompile(src); err != nil || hit {
		t.Fatalf("first compile: hit=%v err=%v", hit, err)
	}
	if _, _, hit, err := c.getOrCompile(src); err != nil || !hit {
		t.Fatalf("second compile: hit=%v err=%v", hit, err)
	}
}
