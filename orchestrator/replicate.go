package orchestrator

import (
	"fmt"
	"sync"

	"github.com/SchmidtDSE/josh/internal/core"
	"github.com/SchmidtDSE/josh/internal/primitives"
)

// Replicate is one independent simulation world: the registered entity
// schemas, the live entity population, and the spatial index over it. A
// run may drive several replicates; they share nothing, so there is no
// cross-replicate locking.
type Replicate struct {
	units *primitives.ConversionEngine
	index *core.SpatialIndex

	mu       sync.Mutex
	schemas  map[string]*core.EntitySchema
	entities []*core.MutableEntity
	pending  []*core.MutableEntity
}

// NewReplicate creates an empty replicate with its own (per-simulation)
// unit conversion engine.
func NewReplicate(units *primitives.ConversionEngine) *Replicate {
	if units == nil {
		units = primitives.NewConversionEngine(nil)
	}
	return &Replicate{
		units:   units,
		index:   core.NewSpatialIndex(),
		schemas: make(map[string]*core.EntitySchema),
	}
}

// Units returns the replicate's conversion engine.
func (r *Replicate) Units() *primitives.ConversionEngine {
	return r.units
}

// Index returns the replicate's spatial index.
func (r *Replicate) Index() *core.SpatialIndex {
	return r.index
}

// RegisterSchema makes an entity type available for instantiation.
// Re-registering a name is ErrSchema: schemas are immutable and shared, so
// silently swapping one mid-run would desynchronize existing instances.
func (r *Replicate) RegisterSchema(schema *core.EntitySchema) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schemas[schema.Name]; exists {
		return fmt.Errorf("%w: schema %q already registered", primitives.ErrSchema, schema.Name)
	}
	r.schemas[schema.Name] = schema
	return nil
}

// Schema returns the registered schema for name.
func (r *Replicate) Schema(name string) (*core.EntitySchema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	schema, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: no schema named %q", primitives.ErrResolution, name)
	}
	return schema, nil
}

// AddPatch instantiates a root spatial entity owning its geometry, indexed
// under patchIndex for lock ordering and work sharding.
func (r *Replicate) AddPatch(schemaName string, geometry primitives.Geometry, patchIndex uint64) (*core.MutableEntity, error) {
	schema, err := r.Schema(schemaName)
	if err != nil {
		return nil, err
	}
	patch := core.NewMutableEntity(schema, geometry, true, patchIndex)
	r.adopt(patch)
	return patch, nil
}

// AddMember instantiates a member entity (an agent, a disturbance) inside
// parent: it borrows the parent's geometry and inherits its patch index, so
// the parent's lifetime dominates the member's.
func (r *Replicate) AddMember(schemaName string, parent *core.MutableEntity) (*core.MutableEntity, error) {
	schema, err := r.Schema(schemaName)
	if err != nil {
		return nil, err
	}
	member := core.NewMutableEntity(schema, parent.Geometry(), false, parent.PatchIndex())
	r.adopt(member)
	return member, nil
}

func (r *Replicate) adopt(e *core.MutableEntity) {
	r.index.Insert(e)
	r.mu.Lock()
	r.entities = append(r.entities, e)
	r.mu.Unlock()
}

// Defer stages an entity created from inside a running handler. It enters
// the spatial index immediately (creation is one of the two sanctioned
// index writes) but joins the substep iteration order only at the next
// Absorb, so the in-flight substep's shard partitioning stays stable.
func (r *Replicate) Defer(e *core.MutableEntity) {
	r.index.Insert(e)
	r.mu.Lock()
	r.pending = append(r.pending, e)
	r.mu.Unlock()
}

// Absorb merges entities staged by Defer into the main population and
// returns them. The runner calls this between substeps and runs the
// newcomers' init handlers before they see their first regular substep.
func (r *Replicate) Absorb() []*core.MutableEntity {
	r.mu.Lock()
	defer r.mu.Unlock()
	absorbed := r.pending
	r.entities = append(r.entities, absorbed...)
	r.pending = nil
	return absorbed
}

// Remove deletes e from the population and the spatial index. The caller
// runs e's "remove" handlers first; this is only the bookkeeping half of
// destruction.
func (r *Replicate) Remove(e *core.MutableEntity) {
	r.index.Remove(e)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, candidate := range r.entities {
		if candidate == e {
			r.entities = append(r.entities[:i], r.entities[i+1:]...)
			return
		}
	}
}

// Entities returns a stable copy of the current population.
func (r *Replicate) Entities() []*core.MutableEntity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*core.MutableEntity, len(r.entities))
	copy(out, r.entities)
	return out
}
