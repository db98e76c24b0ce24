package capability

import "strings"

// Origin records whether a capability set was declared by the handler
// author or inferred by the runtime as a conservative fallback, per
// spec §4.2. Observability surfaces (stats, logs) should report this.
type Origin int

const (
	// OriginDeclared means the handler explicitly listed capabilities.
	OriginDeclared Origin = iota
	// OriginInferred means no capabilities were declared and the runtime
	// granted a broad fallback set. This is explicitly unsafe and is a
	// documented TODO for replacement by static source analysis — see
	// InferConservative.
	OriginInferred
)

// Set is a granted collection of capability tokens evaluated against
// required wire strings.
type Set struct {
	tokens []Token
	Origin Origin
}

// NewSet builds a Set from already-parsed tokens.
func NewSet(origin Origin, tokens ...Token) Set {
	return Set{tokens: tokens, Origin: origin}
}

// ParseSet parses a list of wire-form capability strings.
// Malformed entries are skipped (they can never match, so omitting them
// is equivalent to keeping and always-failing them, but keeps the set
// clean for enumeration).
func ParseSet(origin Origin, wire []string) Set {
	tokens := make([]Token, 0, len(wire))
	for _, w := range wire {
		if tok, err := Parse(w); err == nil {
			tokens = append(tokens, tok)
		}
	}
	return Set{tokens: tokens, Origin: origin}
}

// Check returns true iff some token in the set matches required.
// Per invariant 3 in spec §8: PERMISSION_DENIED occurs iff this is false.
func (s Set) Check(required string) bool {
	for _, t := range s.tokens {
		if t.Matches(required) {
			return true
		}
	}
	return false
}

// Tokens returns the underlying token slice (read-only use expected).
func (s Set) Tokens() []Token {
	return s.tokens
}

// String renders the set as a comma-separated wire-form list, for logging.
func (s Set) String() string {
	parts := make([]string, len(s.tokens))
	for i, t := range s.tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

// InferConservative returns a broad capability set granting full access to
// every domain. Used when a HandlerDefinition declares no capabilities.
//
// This is intentionally unsafe per spec §4.2 / §9: a conforming
// implementation should prefer static scanning of the handler source for
// $state.*, $emit(...), $view.*, $ext.* and derive a minimal set, but that
// algorithm is left as a documented TODO rather than guessed at here.
func InferConservative() Set {
	return Set{
		Origin: OriginInferred,
		tokens: []Token{
			{Kind: StateReadAll},
			{Kind: StateWriteAll},
			{Kind: EventsEmitAll},
			{Kind: ViewUpdateAll},
			{Kind: ExtensionAll},
		},
	}
}
