// Package panelmgr owns the live panel map: it mediates client
// attach/detach, applies mutations to panel state, and fans out patches
// and events to subscribed clients, per spec §4.6.
package panelmgr

import (
	"sync"
	"time"

	"github.com/panelkit/runtime/capability"
	"github.com/panelkit/runtime/panelstate"
)

// Status is a panel's lifecycle state, per spec §3 Panel.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusSuspended    Status = "suspended"
	StatusError        Status = "error"
	StatusStopped      Status = "stopped"
)

// Tool is a named, callable operation on a panel, bound to a handler
// (spec §3 HandlerDefinition plus its trigger spec).
type Tool struct {
	Name        string
	Source      string
	Trigger     TriggerSpec
	Description string
	Grants      capability.Set
}

// Client is anything the panel manager can push server messages to —
// satisfied by *server.wsClient. Kept minimal and defined here (rather
// than imported from server) so panelmgr has no dependency on the HTTP
// transport layer.
type Client interface {
	ID() string
	Send(messageType string, payload any)
	HasTopic(topic string) bool
}

// Panel is a live instance of a declared application, per spec §3 Panel.
type Panel struct {
	ID     string
	Kind   string
	Title  string
	Status Status

	State *panelstate.State
	Tools map[string]*Tool

	MountHook   string
	UnmountHook string

	Grants   capability.Set // panel-level capabilities, merged into per-tool grants
	Metadata map[string]any

	CreatedAt    time.Time
	LastActivity time.Time

	mu      sync.RWMutex
	clients map[string]Client
}

// newPanel builds a Panel in StatusInitializing.
func newPanel(id, kind, title string, grants capability.Set, metadata map[string]any) *Panel {
	now := time.Now()
	return &Panel{
		ID:           id,
		Kind:         kind,
		Title:        title,
		Status:       StatusInitializing,
		State:        panelstate.NewState(),
		Tools:        make(map[string]*Tool),
		Grants:       grants,
		Metadata:     metadata,
		CreatedAt:    now,
		LastActivity: now,
		clients:      make(map[string]Client),
	}
}

// setStatus transitions the panel's status. Callers hold no lock;
// setStatus takes its own.
func (p *Panel) setStatus(s Status) {
	p.mu.Lock()
	p.Status = s
	p.mu.Unlock()
}

func (p *Panel) currentStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

func (p *Panel) touch() {
	p.mu.Lock()
	p.LastActivity = time.Now()
	p.mu.Unlock()
}

func (p *Panel) addClient(c Client) {
	p.mu.Lock()
	p.clients[c.ID()] = c
	p.mu.Unlock()
}

func (p *Panel) removeClient(id string) {
	p.mu.Lock()
	delete(p.clients, id)
	p.mu.Unlock()
}

func (p *Panel) clientList() []Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Client, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c)
	}
	return out
}

// Info is the JSON-facing snapshot returned by GET /panels/:id.
type Info struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Title        string    `json:"title,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	ClientCount  int       `json:"clientCount"`
}

// Info snapshots the panel's externally visible metadata.
func (p *Panel) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Info{
		ID:           p.ID,
		Kind:         p.Kind,
		Title:        p.Title,
		Status:       p.Status,
		CreatedAt:    p.CreatedAt,
		LastActivity: p.LastActivity,
		ClientCount:  len(p.clients),
	}
}
