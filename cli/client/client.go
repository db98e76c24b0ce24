// Package client is a thin HTTP client over a running panelrund
// instance's REST surface (spec §6.1), used by panelctl to inspect and
// render panel state without importing panelmgr directly.
package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to one panelrund instance's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client bound to addr (e.g. "http://localhost:8080").
func New(addr string) *Client {
	return &Client{
		baseURL: addr,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Health mirrors GET /health's response shape.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  float64 `json:"uptime"`
	Panels  struct {
		Active    int `json:"active"`
		Suspended int `json:"suspended"`
	} `json:"panels"`
	Runtime struct {
		ActiveInstances    int     `json:"activeInstances"`
		AvailableInstances int     `json:"availableInstances"`
		CacheHitRate       float64 `json:"cacheHitRate"`
		MemoryBytes        int64   `json:"memoryBytes"`
	} `json:"runtime"`
}

// PanelInfo mirrors panelmgr.Info's JSON shape.
type PanelInfo struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Title        string    `json:"title,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	ClientCount  int       `json:"clientCount"`
}

// Health fetches GET /health.
func (c *Client) Health() (*Health, error) {
	var h Health
	if err := c.getJSON("/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListPanels fetches GET /panels.
func (c *Client) ListPanels() ([]PanelInfo, error) {
	var panels []PanelInfo
	if err := c.getJSON("/panels", &panels); err != nil {
		return nil, err
	}
	return panels, nil
}

// GetPanel fetches GET /panels/:id.
func (c *Client) GetPanel(id string) (*PanelInfo, error) {
	var p PanelInfo
	if err := c.getJSON("/panels/"+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetState fetches GET /panels/:id/state.
func (c *Client) GetState(id string) (map[string]any, error) {
	var state map[string]any
	if err := c.getJSON("/panels/"+id+"/state", &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *Client) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
