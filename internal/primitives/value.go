package primitives

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind tags the variant a Value currently holds.
type Kind int

const (
	KindEmpty Kind = iota
	KindDecimal
	KindInt
	KindBool
	KindString
	KindDistribution
	KindEntityRef
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindDecimal:
		return "decimal"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindDistribution:
		return "distribution"
	case KindEntityRef:
		return "entity"
	default:
		return "unknown"
	}
}

// Entity is the minimal capability a Value needs from an entity-reference.
// internal/core.FrozenEntity implements this; live MutableEntity instances
// are never stored directly in a Value, so a reference crossing an
// attribute boundary can only ever carry an immutable snapshot.
type Entity interface {
	Freeze() Entity
}

// Value is a tagged scalar/boolean/string/distribution/entity-reference,
// carrying Units where magnitude applies. It is immutable after
// construction; Freeze returns an equally-immutable copy (entity-references
// recurse, everything else is a value type already).
type Value struct {
	kind  Kind
	units Tag
	dec   decimal.Decimal
	i     int64
	b     bool
	s     string
	dist  *Distribution
	ent   Entity
}

// Empty is the sentinel "unset" value. It is never stored in an attribute
// slot (those use *Value with a nil pointer for "absent"); it only appears
// as an intermediate result on the expression machine stack or as a
// Selector's non-match signal.
var Empty = Value{kind: KindEmpty}

// NewDecimal builds a decimal-backed numeric Value.
func NewDecimal(d decimal.Decimal, units Tag) Value {
	return Value{kind: KindDecimal, dec: d, units: units}
}

// NewInt builds an integer-backed numeric Value (counts, indices).
func NewInt(i int64, units Tag) Value {
	return Value{kind: KindInt, i: i, units: units}
}

// NewBool builds a boolean Value. Booleans carry no units.
func NewBool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// NewString builds a string Value. Units are occasionally meaningful for
// strings (e.g. a categorical unit tag), so the slot is preserved.
func NewString(s string, units Tag) Value {
	return Value{kind: KindString, s: s, units: units}
}

// NewDistribution builds a Value wrapping a Distribution.
func NewDistribution(d *Distribution) Value {
	return Value{kind: KindDistribution, dist: d}
}

// NewEntityRef builds a Value wrapping an entity-reference.
func NewEntityRef(e Entity) Value {
	return Value{kind: KindEntityRef, ent: e}
}

// ParseNumber builds a decimal Value from numeric text, the factory path
// declaration loaders and external readers use.
func ParseNumber(text string, units Tag) (Value, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return Empty, fmt.Errorf("%w: %q is not a number", ErrParse, text)
	}
	return NewDecimal(d, units), nil
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) Units() Tag   { return v.units }
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// Decimal returns the decimal magnitude, promoting an int variant.
func (v Value) Decimal() (decimal.Decimal, error) {
	switch v.kind {
	case KindDecimal:
		return v.dec, nil
	case KindInt:
		return decimal.NewFromInt(v.i), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: cannot read %s as decimal", ErrType, v.kind)
	}
}

// Int returns the int64 magnitude; only valid for the int variant.
func (v Value) Int() (int64, error) {
	if v.kind != KindInt {
		return 0, fmt.Errorf("%w: cannot read %s as int", ErrType, v.kind)
	}
	return v.i, nil
}

// Bool returns the boolean payload.
func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("%w: cannot read %s as bool", ErrType, v.kind)
	}
	return v.b, nil
}

// String returns the string payload.
func (v Value) String() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("%w: cannot read %s as string", ErrType, v.kind)
	}
	return v.s, nil
}

// Distribution returns the wrapped Distribution.
func (v Value) Distribution() (*Distribution, error) {
	if v.kind != KindDistribution {
		return nil, fmt.Errorf("%w: cannot read %s as distribution", ErrType, v.kind)
	}
	return v.dist, nil
}

// EntityRef returns the wrapped entity-reference.
func (v Value) EntityRef() (Entity, error) {
	if v.kind != KindEntityRef {
		return nil, fmt.Errorf("%w: cannot read %s as entity", ErrType, v.kind)
	}
	return v.ent, nil
}

// IsNumeric reports whether the value is int or decimal.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindDecimal
}

// Freeze returns an immutable copy of v. For entity-references this
// recurses into the referenced entity; every other variant is already a
// value type and is returned unchanged. Freeze is idempotent.
func (v Value) Freeze() Value {
	if v.kind == KindEntityRef && v.ent != nil {
		return NewEntityRef(v.ent.Freeze())
	}
	return v
}

// Equal reports structural equality, including units. Distribution and
// entity-reference values compare by identity of their wrapped pointer,
// matching the "no semantic deep-equal for distributions" stance of the
// source engine (aggregation ops are how you compare distribution content).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind || v.units != other.units {
		return false
	}
	switch v.kind {
	case KindEmpty:
		return true
	case KindDecimal:
		return v.dec.Equal(other.dec)
	case KindInt:
		return v.i == other.i
	case KindBool:
		return v.b == other.b
	case KindString:
		return v.s == other.s
	case KindDistribution:
		return v.dist == other.dist
	case KindEntityRef:
		return v.ent == other.ent
	default:
		return false
	}
}
