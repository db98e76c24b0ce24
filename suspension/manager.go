// Package suspension tracks in-flight handler suspensions and enforces
// their per-suspension timeout, per spec §4.4 / §4.6.
package suspension

import (
	"context"
	"sync"
	"time"

	"github.com/panelkit/runtime/execctx"
)

// Resumer is the subset of sandbox.Pool the manager needs to force a
// timed-out suspension back to life.
type Resumer interface {
	Resume(ctx context.Context, suspensionID string, result execctx.AsyncResult) execctx.ExecutionResult
}

// Context tracks one in-flight suspension, per spec §3 SuspensionContext.
type Context struct {
	Details     execctx.SuspensionDetails
	PanelID     string
	HandlerName string
	CreatedAt   time.Time

	timer *time.Timer
}

// Manager owns the suspension table described in spec §4.4's
// "Correlation" and §4.6's register_suspension/complete_suspension.
type Manager struct {
	resumer Resumer
	timeout time.Duration

	mu      sync.Mutex
	byID    map[string]*Context
	byPanel map[string]map[string]bool // panelID -> set of open suspension ids
}

// NewManager builds a Manager whose suspensions time out after timeout
// if neither resolved nor completed by then.
func NewManager(resumer Resumer, timeout time.Duration) *Manager {
	return &Manager{
		resumer: resumer,
		timeout: timeout,
		byID:    make(map[string]*Context),
		byPanel: make(map[string]map[string]bool),
	}
}

// Register records a new suspension and arms its timeout timer, per
// spec §4.6 register_suspension.
func (m *Manager) Register(panelID, handlerName string, details execctx.SuspensionDetails) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc := &Context{
		Details:     details,
		PanelID:     panelID,
		HandlerName: handlerName,
		CreatedAt:   time.Now(),
	}
	sc.timer = time.AfterFunc(m.timeout, func() { m.onTimeout(details.SuspensionID) })

	m.byID[details.SuspensionID] = sc
	if m.byPanel[panelID] == nil {
		m.byPanel[panelID] = make(map[string]bool)
	}
	m.byPanel[panelID][details.SuspensionID] = true
	return sc
}

// Lookup returns the panel id a suspension belongs to, if still open.
func (m *Manager) Lookup(suspensionID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.byID[suspensionID]
	if !ok {
		return "", false
	}
	return sc.PanelID, true
}

// Complete removes a suspension and clears its timer, per spec §4.6
// complete_suspension. Returns false if the id was not known (already
// resolved by timeout, or never registered).
func (m *Manager) Complete(suspensionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remove(suspensionID)
}

// remove deletes the bookkeeping for suspensionID. Caller must hold m.mu.
func (m *Manager) remove(suspensionID string) bool {
	sc, ok := m.byID[suspensionID]
	if !ok {
		return false
	}
	sc.timer.Stop()
	delete(m.byID, suspensionID)
	if set := m.byPanel[sc.PanelID]; set != nil {
		delete(set, suspensionID)
		if len(set) == 0 {
			delete(m.byPanel, sc.PanelID)
		}
	}
	return true
}

// OpenCount returns the number of open suspensions for panelID.
func (m *Manager) OpenCount(panelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byPanel[panelID])
}

// onTimeout resumes the frozen interpreter with a failure AsyncResult,
// per spec §4.4 "Timeouts": `{success:false, error:"suspension timeout"}`.
func (m *Manager) onTimeout(suspensionID string) {
	m.mu.Lock()
	ok := m.remove(suspensionID)
	m.mu.Unlock()
	if !ok {
		return // already completed by a normal resume racing the timer
	}
	m.resumer.Resume(context.Background(), suspensionID, execctx.AsyncResult{
		Success: false,
		Error:   "suspension timeout",
	})
}

// CancelAll resolves every open suspension for panelID with a
// panel-destroyed failure, per spec §5 "Cancellation" and §8 invariant 8
// ("deletion of a panel with open suspensions resolves each with an
// error AsyncResult before the panel record is removed").
func (m *Manager) CancelAll(panelID string) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.byPanel[panelID]))
	for id := range m.byPanel[panelID] {
		ids = append(ids, id)
	}
	for _, id := range ids {
		m.remove(id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.resumer.Resume(context.Background(), id, execctx.AsyncResult{
			Success: false,
			Error:   "panel destroyed",
		})
	}
}
