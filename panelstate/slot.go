// Package panelstate implements a panel's typed state slots, derived
// computed slots with dependency tracking, and the mutation write path.
package panelstate

import "fmt"

// PrimitiveType is one of the five declared slot types, per spec §3
// StateSlot.
type PrimitiveType string

const (
	TypeString  PrimitiveType = "string"
	TypeNumber  PrimitiveType = "number"
	TypeBoolean PrimitiveType = "boolean"
	TypeList    PrimitiveType = "list"
	TypeObject  PrimitiveType = "object"
)

// Slot is a typed mutable cell within a panel's state.
type Slot struct {
	Name    string
	Type    PrimitiveType
	Value   any
	Version uint64
}

// coerce applies the coercion table from spec §4.5 to make v conform to t.
func coerce(t PrimitiveType, v any) (any, error) {
	switch t {
	case TypeString:
		return coerceString(v), nil
	case TypeNumber:
		return coerceNumber(v), nil
	case TypeBoolean:
		return coerceBoolean(v), nil
	case TypeList:
		return coerceList(v), nil
	case TypeObject:
		return coerceObject(v), nil
	default:
		return nil, fmt.Errorf("panelstate: unknown slot type %q", t)
	}
}
