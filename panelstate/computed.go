package panelstate

// Computed is a read-only derived value evaluated from an expression
// against panel state, per spec §3 ComputedSlot.
//
// Expr is invoked by the caller (typically the sandbox, evaluating a
// small JS expression) with a readThrough view that records which slot
// names were accessed; Computed itself only tracks the resulting
// dependency set and cache.
type Computed struct {
	Name    string
	cached  any
	valid   bool
	depends map[string]bool
}

// NewComputed builds an unevaluated Computed; its cache is invalid until
// State first evaluates it on a read.
func NewComputed(name string) *Computed {
	return &Computed{Name: name, depends: make(map[string]bool)}
}

// Dependencies returns the slot names observed during the last
// evaluation. Empty before the first evaluation.
func (c *Computed) Dependencies() []string {
	out := make([]string, 0, len(c.depends))
	for name := range c.depends {
		out = append(out, name)
	}
	return out
}

// DependsOn reports whether name was observed as a dependency in the
// last evaluation.
func (c *Computed) DependsOn(name string) bool {
	return c.depends[name]
}

// Invalidate marks the cache stale. Called when any tracked dependency's
// version changes.
func (c *Computed) Invalidate() {
	c.valid = false
}

// Valid reports whether the cached value can be returned without
// re-evaluation.
func (c *Computed) Valid() bool {
	return c.valid
}

// Cached returns the last cached value and whether the cache is valid.
func (c *Computed) Cached() (any, bool) {
	return c.cached, c.valid
}

// Evaluator evaluates a Computed's expression. It receives a readThrough
// callback: the evaluator must call it for every slot name it reads, so
// the dependency set can be rebuilt to exactly what this evaluation
// observed, per the "dependency set is recomputed on each evaluation"
// invariant in spec §3.
type Evaluator func(readThrough func(name string) any) (any, error)

// store recomputes the dependency set from an evaluation and caches the
// result. Called by State.evaluateComputed, which supplies the
// recursion-guarded readThrough wrapper.
func (c *Computed) store(value any, observed map[string]bool) {
	c.cached = value
	c.depends = observed
	c.valid = true
}
