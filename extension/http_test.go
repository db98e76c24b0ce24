package extension

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPExtensionGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"hello": "world"})
	}))
	defer srv.Close()

	ext := NewHTTPExtension(HTTPConfig{})
	result, err := ext.Call(context.Background(), "get", []any{srv.URL})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	m := result.(map[string]any)
	if m["status"] != 200 {
		t.Fatalf("unexpected status: %+v", m["status"])
	}
	data := m["data"].(map[string]any)
	if data["hello"] != "world" {
		t.Errorf("unexpected body: %+v", data)
	}
}

func TestHTTPExtensionAllowList(t *testing.T) {
	ext := NewHTTPExtension(HTTPConfig{AllowedHosts: []string{"allowed.test"}})
	_, err := ext.Call(context.Background(), "get", []any{"https://blocked.test/x"})
	if err == nil {
		t.Fatal("expected allow-list rejection")
	}
}

func TestHTTPExtensionPostEncodesJSONBody(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ext := NewHTTPExtension(HTTPConfig{})
	_, err := ext.Call(context.Background(), "post", []any{srv.URL, map[string]any{"x": float64(1)}})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if received["x"] != float64(1) {
		t.Errorf("server did not receive expected body: %+v", received)
	}
}
