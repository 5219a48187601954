package primitives

// Distribution is an ordered collection of Values sharing a conceptual
// source (a spatial query result, a sampled population, ...). Aggregation
// (count/max/min/mean/std/sum) and further sampling are expression-machine
// operations (internal/extensibility); Distribution itself is a plain,
// append-only container.
type Distribution struct {
	values []Value
}

// NewDistributionOf builds a Distribution from the given values, copying
// the slice so the caller's backing array can be reused.
func NewDistributionOf(values ...Value) *Distribution {
	d := &Distribution{values: make([]Value, len(values))}
	copy(d.values, values)
	return d
}

// Values returns the distribution's members. Callers must not mutate the
// returned slice.
func (d *Distribution) Values() []Value {
	if d == nil {
		return nil
	}
	return d.values
}

// Len returns the number of members.
func (d *Distribution) Len() int {
	if d == nil {
		return 0
	}
	return len(d.values)
}

// Append returns a new Distribution with value appended; the receiver is
// left unmodified (Distributions behave as immutable value types once
// built, matching Value's overall immutability).
func (d *Distribution) Append(value Value) *Distribution {
	next := make([]Value, 0, d.Len()+1)
	next = append(next, d.Values()...)
	next = append(next, value)
	return &Distribution{values: next}
}

// Freeze returns a Distribution whose members are all frozen.
func (d *Distribution) Freeze() *Distribution {
	if d == nil {
		return nil
	}
	frozen := make([]Value, len(d.values))
	for i, v := range d.values {
		frozen[i] = v.Freeze()
	}
	return &Distribution{values: frozen}
}
