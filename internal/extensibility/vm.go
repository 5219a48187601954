// Package extensibility provides the expression machine, selector
// evaluation, and action running that substep handlers compile down to: a
// small stack VM plus the pluggable collaborators (Resolver,
// TargetResolver, MapMethodRegistry) an orchestrator wires in per
// simulation.
package extensibility

import (
	"fmt"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

// Resolver looks up an attribute's current value for PushAttribute. The
// orchestrator binds one per handler invocation, backed by the locked
// MutableEntity the handler is running against.
type Resolver interface {
	ResolveAttribute(name string) (primitives.Value, error)
}

// TargetResolver executes a compiled spatial query against the running
// simulation's spatial index, returning the matching entities as a
// Distribution of entity-reference Values. Bound per handler invocation,
// same as Resolver: QueryDistance searches around the bound entity's own
// location, Query searches an explicit region.
type TargetResolver interface {
	Query(region primitives.Geometry) (*primitives.Distribution, error)
	QueryDistance(distance float64) (*primitives.Distribution, error)
}

// EntityCreator instantiates a new entity of the named type during a
// create_entity op. Bound per handler invocation by the orchestrator.
type EntityCreator interface {
	CreateEntity(name string) (primitives.Entity, error)
}

// ExternalReader reads an external geospatial resource (a raster band, a
// COG window) covering the bound entity's location. The orchestrator backs
// this with the replicate's resource cache, so repeated reads of the same
// resource at the same location never leave the process; the underlying
// I/O happens outside any entity lock.
type ExternalReader interface {
	ReadExternal(pathOrURL string) (*primitives.Distribution, error)
}

// Op is one compiled instruction. A Program is an ordered list of Ops.
type Op interface {
	Execute(m *Machine) error
}

// OpFunc adapts a plain function to the Op interface.
type OpFunc func(m *Machine) error

func (f OpFunc) Execute(m *Machine) error { return f(m) }

// Program is a compiled sequence of Ops — what primitives.SelectorRef and
// primitives.ActionRef hold underneath their opaque any. The builder/parser
// produces these; core never constructs one itself.
type Program []Op

// Machine is the single-owner, non-thread-safe stack VM a substep handler
// or selector runs on. The orchestrator allocates one per handler
// invocation and discards it afterward; nothing about a Machine survives
// past that invocation.
type Machine struct {
	stack     []primitives.Value
	locals    map[string]primitives.Value
	resolver  Resolver
	targets   TargetResolver
	creator   EntityCreator
	externals ExternalReader
	mapFns    *MapMethodRegistry
	units     *primitives.ConversionEngine
	ended     bool
}

// NewMachine builds a Machine bound to the given collaborators. Any
// collaborator may be nil if the program never exercises that capability; a
// nil collaborator used anyway surfaces ErrProgram rather than panicking.
func NewMachine(resolver Resolver, targets TargetResolver, creator EntityCreator, externals ExternalReader, mapFns *MapMethodRegistry, units *primitives.ConversionEngine) *Machine {
	if mapFns == nil {
		mapFns = NewMapMethodRegistry()
	}
	return &Machine{
		locals:    make(map[string]primitives.Value),
		resolver:  resolver,
		targets:   targets,
		creator:   creator,
		externals: externals,
		mapFns:    mapFns,
		units:     units,
	}
}

// Run executes program in order, stopping early if End is hit or an op
// returns an error. It returns the final stack top, or Empty if the stack
// is empty when the program completes.
func (m *Machine) Run(program Program) (primitives.Value, error) {
	for _, op := range program {
		if m.ended {
			break
		}
		if err := op.Execute(m); err != nil {
			return primitives.Empty, err
		}
	}
	return m.Peek(), nil
}

// Push pushes v onto the stack.
func (m *Machine) Push(v primitives.Value) {
	m.stack = append(m.stack, v)
}

// Pop removes and returns the top of the stack. Popping an empty stack is
// ErrProgram: a miscompiled program, not a recoverable runtime condition.
func (m *Machine) Pop() (primitives.Value, error) {
	if len(m.stack) == 0 {
		return primitives.Empty, fmt.Errorf("%w: pop on empty stack", primitives.ErrProgram)
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

// Peek returns the current stack top without removing it, or Empty if the
// stack is empty.
func (m *Machine) Peek() primitives.Value {
	if len(m.stack) == 0 {
		return primitives.Empty
	}
	return m.stack[len(m.stack)-1]
}

// SaveLocal stores the current stack top under name without popping it.
func (m *Machine) SaveLocal(name string) error {
	m.locals[name] = m.Peek()
	return nil
}

// LoadLocal pushes the value previously saved under name.
func (m *Machine) LoadLocal(name string) error {
	v, ok := m.locals[name]
	if !ok {
		return fmt.Errorf("%w: no local named %q", primitives.ErrResolution, name)
	}
	m.Push(v)
	return nil
}

// End marks the program as finished; subsequent ops in the same Run are
// skipped.
func (m *Machine) End() {
	m.ended = true
}

// Ended reports whether End has been called this invocation.
func (m *Machine) Ended() bool {
	return m.ended
}

// Resolver returns the bound attribute resolver, or nil.
func (m *Machine) Resolver() Resolver { return m.resolver }

// Targets returns the bound spatial query resolver, or nil.
func (m *Machine) Targets() TargetResolver { return m.targets }

// Creator returns the bound entity creator, or nil.
func (m *Machine) Creator() EntityCreator { return m.creator }

// Externals returns the bound external resource reader, or nil.
func (m *Machine) Externals() ExternalReader { return m.externals }

// MapMethods returns the bound ApplyMap method registry.
func (m *Machine) MapMethods() *MapMethodRegistry { return m.mapFns }

// Units returns the bound unit conversion engine, or nil.
func (m *Machine) Units() *primitives.ConversionEngine { return m.units }
