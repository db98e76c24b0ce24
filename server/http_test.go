package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/panelkit/runtime/extension"
	"github.com/panelkit/runtime/metrics"
	"github.com/panelkit/runtime/panelmgr"
	"github.com/panelkit/runtime/sandbox"
	"github.com/panelkit/runtime/suspension"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := extension.NewRegistry()
	cfg := sandbox.DefaultConfig()
	cfg.MinInstances = 1
	cfg.MaxInstances = 2
	pool := sandbox.NewPool(cfg, registry)
	suspMgr := suspension.NewManager(pool, 500*time.Millisecond)
	sched := panelmgr.NewTriggerScheduler(2)
	mgr := panelmgr.NewManager(pool, registry, suspMgr, sched, time.Second)
	return New(mgr, pool, metrics.NewCollector("test"), zap.NewNop(), "test-version")
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test-version" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHandleMetrics(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("panelrund_panels_created_total")) {
		t.Fatalf("expected exposition to contain panel counters, got:\n%s", w.Body.String())
	}
}

func TestHandleCreateListGetDestroyPanel(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	createBody := `{
		"kind": "widget",
		"state": [{"name": "count", "type": "number", "initial": 0}],
		"tools": [{"name": "inc", "source": "$state.set(\"count\", $state.get(\"count\") + 1);"}],
		"capabilities": ["state:read:count", "state:write:count"]
	}`
	req := httptest.NewRequest(http.MethodPost, "/panels", bytes.NewBufferString(createBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("expected non-empty panel id, got %+v", created)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panels", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panels/"+id, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	triggerReq := httptest.NewRequest(http.MethodPost, "/panels/"+id+"/trigger/inc", nil)
	r.ServeHTTP(w, triggerReq)
	if w.Code != http.StatusOK {
		t.Fatalf("trigger status = %d, body = %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panels/"+id+"/state", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get state status = %d", w.Code)
	}
	var state map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state["count"] != float64(1) {
		t.Fatalf("expected count=1 after trigger, got %+v", state)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/panels/"+id, nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("destroy status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panels/"+id, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after destroy, got %d", w.Code)
	}
}

func TestHandleTriggerUnknownPanel(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/panels/missing/trigger/inc", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleTriggerUnknownTool(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/panels", bytes.NewBufferString(`{"kind":"widget"}`)))
	var created map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	id := created["id"].(string)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/panels/"+id+"/trigger/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
