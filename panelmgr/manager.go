package panelmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/panelkit/runtime/capability"
	"github.com/panelkit/runtime/execctx"
	"github.com/panelkit/runtime/extension"
	"github.com/panelkit/runtime/orchestrator"
	"github.com/panelkit/runtime/panelstate"
	"github.com/panelkit/runtime/sandbox"
	"github.com/panelkit/runtime/suspension"
)

// DefaultHandlerTimeout is the default per-invocation wall-clock timeout,
// per spec §8 scenario 5 ("Default timeout 2000ms").
const DefaultHandlerTimeout = 2 * time.Second

// ErrPanelNotFound is returned for operations on an unknown panel id.
var ErrPanelNotFound = fmt.Errorf("panelmgr: panel not found")

// ErrToolNotFound is returned by Trigger for an unknown tool name.
var ErrToolNotFound = fmt.Errorf("panelmgr: tool not found")

// StateSlotSpec declares one initial state slot for panel creation.
type StateSlotSpec struct {
	Name    string
	Type    string
	Initial any
}

// Config declares a panel to create, per spec §6.3 "Panel creation input".
type Config struct {
	ID       string // optional; generated if empty
	Kind     string
	Title    string
	Tools    []Tool
	State    []StateSlotSpec
	Grants   []string // panel-level capability wire strings
	Metadata map[string]any
}

// Relay publishes a locally emitted event to other panelrund instances
// sharing this panel's audience, for deployments running more than one
// process behind a load balancer. Optional: a Manager with no Relay
// configured behaves exactly as a single-instance deployment.
type Relay interface {
	Publish(ctx context.Context, panelID string, event execctx.EmittedEvent) error
}

// Manager owns the live panel map and is the sole mutator of panel
// state, per spec §4.6 and §5's "Shared-resource policy".
type Manager struct {
	sandbox     sandbox.Interpreter
	extensions  *extension.Registry
	suspensions *suspension.Manager
	scheduler   *TriggerScheduler
	timeout     time.Duration
	relay       Relay

	mu     sync.RWMutex
	panels map[string]*Panel
}

// NewManager builds a Manager. sandboxPool and extensions back every
// handler invocation; suspensions tracks in-flight $ext suspensions. A
// timeout of 0 selects DefaultHandlerTimeout.
func NewManager(sandboxPool sandbox.Interpreter, extensions *extension.Registry, suspensions *suspension.Manager, scheduler *TriggerScheduler, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}
	return &Manager{
		sandbox:     sandboxPool,
		extensions:  extensions,
		suspensions: suspensions,
		scheduler:   scheduler,
		timeout:     timeout,
		panels:      make(map[string]*Panel),
	}
}

// WithRelay attaches a cross-instance event relay and returns m for
// chaining, mirroring server.Server's WithSnapshots pattern.
func (m *Manager) WithRelay(r Relay) *Manager {
	m.relay = r
	return m
}

// orchestrator builds an Orchestrator scoped to this Manager acting as
// the PanelEffects sink, per orchestrator.PanelEffects.
func (m *Manager) orchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(m.sandbox, m.extensions, m, m.timeout)
}

// CreatePanel implements create_panel: status initializing → running,
// mount hook scheduled asynchronously if declared.
func (m *Manager) CreatePanel(cfg Config) (*Panel, error) {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	grants := capability.ParseSet(capability.OriginDeclared, cfg.Grants)
	p := newPanel(id, cfg.Kind, cfg.Title, grants, cfg.Metadata)

	for _, s := range cfg.State {
		if err := p.State.DeclareSlot(s.Name, panelstate.PrimitiveType(s.Type), s.Initial); err != nil {
			return nil, fmt.Errorf("panelmgr: declare slot %s: %w", s.Name, err)
		}
	}

	for i := range cfg.Tools {
		t := cfg.Tools[i]
		p.Tools[t.Name] = &t
		if m.scheduler != nil && t.Trigger.Type != TriggerManual && t.Trigger.Type != "" {
			toolName := t.Name
			m.scheduler.Register(id, toolName, t.Trigger, func(ctx context.Context) {
				_, _ = m.Trigger(ctx, id, toolName, nil)
			})
		}
	}

	m.mu.Lock()
	m.panels[id] = p
	m.mu.Unlock()

	p.setStatus(StatusRunning)

	if p.MountHook != "" {
		go func() {
			ectx := execctx.NewExecutionContext(id, "mount", nil, p.State.Snapshot(), p.Grants)
			m.orchestrator().Run(context.Background(), id, "mount", p.MountHook, ectx)
		}()
	}

	return p, nil
}

// DestroyPanel implements destroy_panel: removes the panel from the map,
// runs the unmount hook if declared, stops its scheduled triggers,
// cancels every open suspension, sends every client a CLOSED message and
// transitions to stopped. It does not close the clients' sockets.
func (m *Manager) DestroyPanel(ctx context.Context, panelID string) error {
	m.mu.Lock()
	p, ok := m.panels[panelID]
	if ok {
		delete(m.panels, panelID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrPanelNotFound
	}

	if p.UnmountHook != "" {
		ectx := execctx.NewExecutionContext(panelID, "unmount", nil, p.State.Snapshot(), p.Grants)
		m.orchestrator().Run(ctx, panelID, "unmount", p.UnmountHook, ectx)
	}

	if m.scheduler != nil {
		m.scheduler.UnregisterPanel(panelID)
	}
	m.suspensions.CancelAll(panelID)

	for _, c := range p.clientList() {
		c.Send("CLOSED", map[string]any{"panelId": panelID})
	}
	p.setStatus(StatusStopped)
	return nil
}

// Get returns a panel by id.
func (m *Manager) Get(panelID string) (*Panel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.panels[panelID]
	if !ok {
		return nil, ErrPanelNotFound
	}
	return p, nil
}

// List returns every live panel's info.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.panels))
	for _, p := range m.panels {
		out = append(out, p.Info())
	}
	return out
}

// Trigger runs tool on panelID with args, to a terminal ExecutionResult.
// This is the entry point for both the HTTP trigger endpoint and the
// WebSocket TRIGGER message, per spec §4.7. The handler runs with the
// panel-level grants plus the tool's own; when both are empty it runs
// with capability.InferConservative().
func (m *Manager) Trigger(ctx context.Context, panelID, tool string, args []any) (execctx.ExecutionResult, error) {
	p, err := m.Get(panelID)
	if err != nil {
		return execctx.ExecutionResult{}, err
	}
	t, ok := p.Tools[tool]
	if !ok {
		return execctx.ExecutionResult{}, ErrToolNotFound
	}

	grants := t.Grants
	if len(p.Grants.Tokens()) > 0 {
		merged := append(append([]capability.Token{}, p.Grants.Tokens()...), t.Grants.Tokens()...)
		grants = capability.NewSet(t.Grants.Origin, merged...)
	}
	if len(grants.Tokens()) == 0 {
		grants = capability.InferConservative()
	}

	ectx := execctx.NewExecutionContext(panelID, tool, args, p.State.Snapshot(), grants)
	result := m.orchestrator().Run(ctx, panelID, tool, t.Source, ectx)
	return result, nil
}

// --- orchestrator.PanelEffects ---

// ApplyMutations implements spec §4.6 apply_mutations: mutates state,
// updates last-activity, and broadcasts a PATCH to subscribed clients.
func (m *Manager) ApplyMutations(ctx context.Context, panelID string, mutations []execctx.StateMutation) error {
	p, err := m.Get(panelID)
	if err != nil {
		return err
	}
	notifications, err := p.State.ApplyMutations(mutations)
	if err != nil {
		return err
	}
	p.touch()

	if m.scheduler != nil {
		for _, n := range notifications {
			m.scheduler.NotifyStateChange(n.Mutation.Key)
		}
	}

	m.broadcast(p, "state", "PATCH", map[string]any{"mutations": mutations})
	return nil
}

// EmitEvent implements spec §4.6 emit_event: fans out an EVENT message.
func (m *Manager) EmitEvent(ctx context.Context, panelID string, event execctx.EmittedEvent) {
	p, err := m.Get(panelID)
	if err != nil {
		return
	}
	p.touch()
	if m.scheduler != nil {
		m.scheduler.NotifyEvent(event.Name)
	}
	m.broadcast(p, "events", "EVENT", map[string]any{"event": event})
	if m.relay != nil {
		_ = m.relay.Publish(ctx, panelID, event)
	}
}

// ReceiveRemoteEvent fans out an event published by another instance's
// EmitEvent to this instance's locally connected clients, without
// re-publishing it back to the relay (which would echo forever across
// the cluster).
func (m *Manager) ReceiveRemoteEvent(panelID string, event execctx.EmittedEvent) {
	p, err := m.Get(panelID)
	if err != nil {
		return
	}
	m.broadcast(p, "events", "EVENT", map[string]any{"event": event})
}

// BroadcastViewCommand fans out a view command to every client; view
// commands are not gated by topic subscription since they target a
// specific UI component the client either has or doesn't.
func (m *Manager) BroadcastViewCommand(ctx context.Context, panelID string, cmd execctx.ViewCommand) {
	p, err := m.Get(panelID)
	if err != nil {
		return
	}
	m.broadcast(p, "", "VIEW", map[string]any{"command": cmd})
}

// RegisterSuspension implements spec §4.6 register_suspension: arms the
// suspension's timeout and transitions the panel to suspended.
func (m *Manager) RegisterSuspension(ctx context.Context, panelID, handlerName string, details execctx.SuspensionDetails) {
	m.suspensions.Register(panelID, handlerName, details)
	if p, err := m.Get(panelID); err == nil {
		p.setStatus(StatusSuspended)
	}
}

// CompleteSuspension implements spec §4.6 complete_suspension: clears
// the suspension; if no suspensions remain for the panel, returns it to
// running.
func (m *Manager) CompleteSuspension(ctx context.Context, suspensionID string) {
	panelID, ok := m.suspensions.Lookup(suspensionID)
	m.suspensions.Complete(suspensionID)
	if !ok {
		return
	}
	if p, err := m.Get(panelID); err == nil {
		if m.suspensions.OpenCount(panelID) == 0 && p.currentStatus() == StatusSuspended {
			p.setStatus(StatusRunning)
		}
	}
}

// AddClient attaches c to panelID, per spec §4.6. Topic filtering uses
// c.HasTopic; the server's WebSocket clients start subscribed to
// {state, events}.
func (m *Manager) AddClient(panelID string, c Client) error {
	p, err := m.Get(panelID)
	if err != nil {
		return err
	}
	p.addClient(c)
	return nil
}

// RemoveClient detaches c from panelID.
func (m *Manager) RemoveClient(panelID string, clientID string) {
	if p, err := m.Get(panelID); err == nil {
		p.removeClient(clientID)
	}
}

// broadcast sends messageType/payload to every client of p subscribed to
// topic (or every client, if topic is empty).
func (m *Manager) broadcast(p *Panel, topic, messageType string, payload any) {
	for _, c := range p.clientList() {
		if topic != "" && !c.HasTopic(topic) {
			continue
		}
		c.Send(messageType, payload)
	}
}
