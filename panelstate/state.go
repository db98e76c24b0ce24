package panelstate

import (
	"errors"
	"sync"

	"github.com/panelkit/runtime/execctx"
)

// maxComputedDepth bounds recursive computed evaluation chains (A depends
// on B depends on C ...), per spec §4.5 "a recomputation-depth limit (e.g.
// 50) guards against write-inside-computed cycles."
const maxComputedDepth = 50

// ErrUnknownSlot is returned when a mutation or read targets a name that
// is neither a declared slot nor a declared computed.
var ErrUnknownSlot = errors.New("panelstate: unknown slot")

// ErrComputedIsReadOnly is returned when a mutation targets a name that
// backs a Computed.
var ErrComputedIsReadOnly = errors.New("panelstate: computed slots are read-only")

// ChangeNotification describes one applied mutation, handed to whatever
// fan-out layer observes state (spec §4.5 "emit a change notification
// that feeds into §4.6 fan-out").
type ChangeNotification struct {
	Mutation execctx.StateMutation
	Version  uint64
}

// State holds one panel's typed slots and computed slots, and implements
// the write/read paths of spec §4.5.
type State struct {
	mu        sync.Mutex
	slots     map[string]*Slot
	computed  map[string]*Computed
	evaluator map[string]Evaluator

	// evaluating tracks the in-progress evaluation stack by name, used to
	// detect self-referential computed cycles without recursing forever.
	evaluating map[string]bool
	depth      int
}

// NewState builds an empty State. Slots are declared via DeclareSlot and
// DeclareComputed before use.
func NewState() *State {
	return &State{
		slots:      make(map[string]*Slot),
		computed:   make(map[string]*Computed),
		evaluator:  make(map[string]Evaluator),
		evaluating: make(map[string]bool),
	}
}

// DeclareSlot registers a typed slot with an initial value, coercing it
// to the declared type per the table in spec §4.5.
func (s *State) DeclareSlot(name string, t PrimitiveType, initial any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := coerce(t, initial)
	if err != nil {
		return err
	}
	s.slots[name] = &Slot{Name: name, Type: t, Value: v, Version: 0}
	return nil
}

// DeclareComputed registers a computed slot backed by evaluator. The
// cache starts invalid; the first read triggers evaluation.
func (s *State) DeclareComputed(name string, evaluator Evaluator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.computed[name] = NewComputed(name)
	s.evaluator[name] = evaluator
}

// IsComputed reports whether name backs a Computed rather than a Slot.
func (s *State) IsComputed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.computed[name]
	return ok
}

// ApplyMutations applies mutations in order per spec §4.5's write path,
// returning the change notifications emitted (in application order) for
// the caller to fan out. Processing stops at the first error — mutations
// before the failure point are not rolled back, matching spec §7's
// "effects are not rolled back" guarantee.
func (s *State) ApplyMutations(mutations []execctx.StateMutation) ([]ChangeNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notifications := make([]ChangeNotification, 0, len(mutations))
	for _, m := range mutations {
		if _, ok := s.computed[m.Key]; ok {
			return notifications, ErrComputedIsReadOnly
		}
		slot, ok := s.slots[m.Key]
		if !ok {
			return notifications, ErrUnknownSlot
		}

		switch m.Op {
		case execctx.OpSet:
			v, err := coerce(slot.Type, m.Value)
			if err != nil {
				return notifications, err
			}
			slot.Value = v
		case execctx.OpDelete:
			v, _ := coerce(slot.Type, nil)
			slot.Value = v
		default:
			return notifications, errors.New("panelstate: unknown mutation op " + string(m.Op))
		}
		slot.Version++
		s.invalidateDependents(m.Key)

		notifications = append(notifications, ChangeNotification{Mutation: m, Version: slot.Version})
	}
	return notifications, nil
}

// invalidateDependents marks invalid every Computed whose last-observed
// dependency set contains name, per spec §3 ComputedSlot's invariant.
// Caller must hold s.mu.
func (s *State) invalidateDependents(name string) {
	for _, c := range s.computed {
		if c.DependsOn(name) {
			c.Invalidate()
		}
	}
}

// Get reads a slot or computed value by name. Computed reads may trigger
// evaluation; self-referential cycles resolve to nil rather than
// recursing indefinitely, and chains deeper than maxComputedDepth do the
// same, per spec §4.5 "Recursion safety".
func (s *State) Get(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(name)
}

func (s *State) get(name string) (any, bool) {
	if slot, ok := s.slots[name]; ok {
		return slot.Value, true
	}
	if _, ok := s.computed[name]; ok {
		return s.evaluateComputed(name), true
	}
	return nil, false
}

// evaluateComputed returns the computed's cached value if valid,
// otherwise re-evaluates it, rebuilding its dependency set from exactly
// the slot names the evaluator reads this time. Caller must hold s.mu.
func (s *State) evaluateComputed(name string) any {
	c := s.computed[name]
	if c.Valid() {
		v, _ := c.Cached()
		return v
	}

	if s.evaluating[name] || s.depth >= maxComputedDepth {
		return nil // self-reference or runaway chain: sentinel, not a panic
	}

	s.evaluating[name] = true
	s.depth++
	defer func() {
		delete(s.evaluating, name)
		s.depth--
	}()

	observed := make(map[string]bool)
	readThrough := func(depName string) any {
		observed[depName] = true
		v, _ := s.get(depName)
		return v
	}

	evaluator := s.evaluator[name]
	value, err := evaluator(readThrough)
	if err != nil {
		value = nil
	}
	c.store(value, observed)
	return value
}

// Snapshot returns a flat map of every slot's current value, suitable as
// the read-only ExecutionContext.StateView per spec §4.3. Computed values
// are included, evaluated if their cache is stale.
func (s *State) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]any, len(s.slots)+len(s.computed))
	for name, slot := range s.slots {
		out[name] = slot.Value
	}
	for name := range s.computed {
		out[name] = s.evaluateComputed(name)
	}
	return out
}

// Version returns a slot's current version counter, or 0 if name is not
// a declared slot.
func (s *State) Version(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.slots[name]; ok {
		return slot.Version
	}
	return 0
}
