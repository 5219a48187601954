package core

import (
	"fmt"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

// FrozenEntity is an immutable, read-only snapshot of a MutableEntity taken
// at a step boundary. It is what Value.EntityRef holds once an
// entity-reference crosses an attribute boundary — live MutableEntity
// state never leaks past a lock — and what the snapshot exporters and live
// viewer serialize.
type FrozenEntity struct {
	schema     *EntitySchema
	sequenceID uint64
	geometry   primitives.Geometry
	values     []primitives.Value
}

// Freeze implements primitives.Entity. A FrozenEntity is already frozen, so
// this returns itself.
func (f *FrozenEntity) Freeze() primitives.Entity {
	return f
}

// Name returns the entity-type name this snapshot belongs to.
func (f *FrozenEntity) Name() string {
	return f.schema.Name
}

// SequenceID returns the process-wide identity of the entity this snapshot
// was taken from.
func (f *FrozenEntity) SequenceID() uint64 {
	return f.sequenceID
}

// Geometry returns the location the entity occupied at freeze time.
func (f *FrozenEntity) Geometry() primitives.Geometry {
	return f.geometry
}

// Attribute returns the frozen value for name.
func (f *FrozenEntity) Attribute(name string) (primitives.Value, error) {
	idx, ok := f.schema.IndexOf(name)
	if !ok {
		return primitives.Empty, fmt.Errorf("%w: %s has no attribute %q", primitives.ErrSchema, f.schema.Name, name)
	}
	return f.values[idx], nil
}

// AttributeNames returns the schema's attribute names in index order,
// useful for deterministic snapshot export column ordering.
func (f *FrozenEntity) AttributeNames() []string {
	names := make([]string, f.schema.AttributeCount())
	copy(names, f.schema.indexToAttrName)
	return names
}

// Values returns the full attribute array in schema index order. The
// returned slice is shared with the snapshot and must not be mutated.
func (f *FrozenEntity) Values() []primitives.Value {
	return f.values
}
