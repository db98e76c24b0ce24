package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestServeWSConnectAndTrigger(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	createResp := httptest.NewRecorder()
	createBody := `{
		"kind": "widget",
		"state": [{"name": "count", "type": "number", "initial": 0}],
		"tools": [{"name": "inc", "source": "$state.set(\"count\", $state.get(\"count\") + 1);"}],
		"capabilities": ["state:read:count", "state:write:count"]
	}`
	r.ServeHTTP(createResp, httptest.NewRequest(http.MethodPost, "/panels", bytes.NewBufferString(createBody)))
	var created map[string]any
	if err := json.Unmarshal(createResp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	id := created["id"].(string)

	httpSrv := httptest.NewServer(r)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/panels/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var connected map[string]any
	if err := conn.ReadJSON(&connected); err != nil {
		t.Fatalf("read CONNECTED: %v", err)
	}
	if connected["type"] != "CONNECTED" {
		t.Fatalf("expected CONNECTED, got %+v", connected)
	}

	if err := conn.WriteJSON(map[string]any{"type": "TRIGGER", "tool": "inc", "requestId": "r1"}); err != nil {
		t.Fatalf("write TRIGGER: %v", err)
	}

	var patch map[string]any
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&patch); err != nil {
		t.Fatalf("read PATCH: %v", err)
	}
	if patch["type"] != "PATCH" {
		t.Fatalf("expected PATCH before RESULT, got %+v", patch)
	}

	var result map[string]any
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&result); err != nil {
		t.Fatalf("read RESULT: %v", err)
	}
	if result["type"] != "RESULT" {
		t.Fatalf("expected RESULT, got %+v", result)
	}
}

func TestServeWSUnknownPanelRejected(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	httpSrv := httptest.NewServer(r)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/panels/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown panel")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 404, got %d", status)
	}
}
