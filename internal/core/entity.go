package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

// LockToken identifies the call chain currently allowed to hold an entity's
// lock. The orchestrator mints one token per top-level substep invocation
// and threads it through every nested handler call (spatial queries,
// create_entity) so a handler can safely re-enter its own entity without
// deadlocking on itself.
type LockToken uint64

var sequenceCounter uint64

// nextSequenceID hands out process-wide, monotonically increasing sequence
// numbers used to break lock-ordering ties: entities always lock in
// (patch_index, sequence_id) ascending order.
func nextSequenceID() uint64 {
	return atomic.AddUint64(&sequenceCounter, 1)
}

// MutableEntity is the per-instance runtime state for one agent, patch, or
// disturbance: current and prior attribute arrays, a re-entrant lock, and
// the geometry it occupies. Every instance shares a single *EntitySchema by
// reference; the schema is read-only from here on.
type MutableEntity struct {
	Schema *EntitySchema

	geometry     primitives.Geometry
	ownsGeometry bool
	patchIndex   uint64
	sequenceID   uint64
	seqOnce      sync.Once

	stateMu sync.Mutex
	sem     chan struct{}
	owner   LockToken
	depth   int

	substep primitives.Substep

	current     []*primitives.Value
	prior       []*primitives.Value
	onlyOnPrior *roaring.Bitmap
}

// NewMutableEntity constructs a runtime instance bound to schema, seeded
// with the schema's declared initial values and occupying geometry.
// ownsGeometry marks whether this entity's lifecycle owns the Geometry
// value (patches own their grid cell; member entities borrow their parent
// patch's).
func NewMutableEntity(schema *EntitySchema, geometry primitives.Geometry, ownsGeometry bool, patchIndex uint64) *MutableEntity {
	n := schema.AttributeCount()
	e := &MutableEntity{
		Schema:       schema,
		geometry:     geometry,
		ownsGeometry: ownsGeometry,
		patchIndex:   patchIndex,
		sem:          make(chan struct{}, 1),
		current:      make([]*primitives.Value, n),
		prior:        make([]*primitives.Value, n),
		onlyOnPrior:  roaring.New(),
	}
	e.sem <- struct{}{}
	for i := 0; i < n; i++ {
		if iv := schema.InitialValue(uint32(i)); iv != nil {
			v := *iv
			e.prior[i] = &v
			e.onlyOnPrior.Add(uint32(i))
		}
	}
	return e
}

// SequenceID lazily assigns and returns this entity's process-wide unique
// ordering key, used by lock-ordering and display identity alike.
func (e *MutableEntity) SequenceID() uint64 {
	e.seqOnce.Do(func() {
		e.sequenceID = nextSequenceID()
	})
	return e.sequenceID
}

// PatchIndex returns the shard/patch this entity currently belongs to, the
// other half of the (patch_index, sequence_id) lock-ordering key.
func (e *MutableEntity) PatchIndex() uint64 {
	return e.patchIndex
}

// Geometry returns the entity's current spatial location.
func (e *MutableEntity) Geometry() primitives.Geometry {
	return e.geometry
}

// OwnsGeometry reports whether this entity's lifecycle owns its Geometry
// value; member entities borrow their parent's and must not outlive it.
func (e *MutableEntity) OwnsGeometry() bool {
	return e.ownsGeometry
}

// SetGeometry updates the entity's location (movement). The caller must
// already hold this entity's lock.
func (e *MutableEntity) SetGeometry(g primitives.Geometry) {
	e.geometry = g
}

// TryLock acquires the entity's re-entrant lock under token, blocking up to
// timeout. A second TryLock under the same token (from a nested handler
// call on the same logical call chain) succeeds immediately and increments
// the reentrancy depth. Exceeding timeout against a different owner returns
// ErrContention, never blocks indefinitely; callers are expected to
// release held locks and retry in the global order.
func (e *MutableEntity) TryLock(token LockToken, timeout time.Duration) error {
	e.stateMu.Lock()
	if e.depth > 0 && e.owner == token {
		e.depth++
		e.stateMu.Unlock()
		return nil
	}
	e.stateMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.sem:
	case <-timer.C:
		return fmt.Errorf("%w: entity seq=%d held past %s", primitives.ErrContention, e.SequenceID(), timeout)
	}

	e.stateMu.Lock()
	e.owner = token
	e.depth = 1
	e.stateMu.Unlock()
	return nil
}

// Unlock releases one level of reentrancy under token. Panics on misuse
// (unlocking a token that does not hold the lock): that is a programming
// error, not a runtime condition callers can recover from.
func (e *MutableEntity) Unlock(token LockToken) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.depth == 0 || e.owner != token {
		panic(fmt.Errorf("%w: unlock of entity seq=%d by non-owning token", primitives.ErrProgram, e.SequenceID()))
	}
	e.depth--
	if e.depth == 0 {
		e.owner = 0
		e.sem <- struct{}{}
	}
}

// StartSubstep records which substep is currently executing against this
// entity. The caller must hold the entity's lock. At most one named
// substep may be active at a time: starting a second one before EndSubstep
// is ErrState.
func (e *MutableEntity) StartSubstep(s primitives.Substep) error {
	if e.substep != "" {
		return fmt.Errorf("%w: substep %q already active on entity seq=%d, cannot start %q", primitives.ErrState, e.substep, e.SequenceID(), s)
	}
	e.substep = s
	return nil
}

// EndSubstep clears the active-substep marker. Ending with no substep
// active is ErrState.
func (e *MutableEntity) EndSubstep() error {
	if e.substep == "" {
		return fmt.Errorf("%w: no substep active on entity seq=%d", primitives.ErrState, e.SequenceID())
	}
	e.substep = ""
	return nil
}

// ActiveSubstep returns the substep currently running against this entity,
// or "" if none.
func (e *MutableEntity) ActiveSubstep() primitives.Substep {
	return e.substep
}

// GetAttribute resolves index's current value: this step's write if one
// exists, else last step's frozen value (carry-over), else the schema's
// declared initial value. A known attribute that has never been assigned —
// no write, no prior, no initial — is ErrResolution: silently handing back
// Empty would let a handler whose selector never fired masquerade as a
// real value. The caller must hold the entity's lock.
func (e *MutableEntity) GetAttribute(index uint32) (primitives.Value, error) {
	if int(index) >= len(e.current) {
		return primitives.Empty, fmt.Errorf("%w: attribute index %d out of range", primitives.ErrSchema, index)
	}
	if v := e.current[index]; v != nil {
		return *v, nil
	}
	if e.onlyOnPrior.Contains(index) {
		if v := e.prior[index]; v != nil {
			return *v, nil
		}
	}
	if iv := e.Schema.InitialValue(index); iv != nil {
		return *iv, nil
	}
	return primitives.Empty, fmt.Errorf("%w: attribute %q of %s has never been assigned",
		primitives.ErrResolution, e.Schema.NameOf(index), e.Schema.Name)
}

// PriorAttribute resolves index's value as of the last freeze boundary,
// ignoring any write made during the current substep: the schema's declared
// initial value before the first freeze. A slot with no prior and no
// initial value is ErrResolution, same as GetAttribute. The caller must
// hold the entity's lock.
func (e *MutableEntity) PriorAttribute(index uint32) (primitives.Value, error) {
	if int(index) >= len(e.prior) {
		return primitives.Empty, fmt.Errorf("%w: attribute index %d out of range", primitives.ErrSchema, index)
	}
	if v := e.prior[index]; v != nil {
		return *v, nil
	}
	if iv := e.Schema.InitialValue(index); iv != nil {
		return *iv, nil
	}
	return primitives.Empty, fmt.Errorf("%w: attribute %q of %s has no prior value",
		primitives.ErrResolution, e.Schema.NameOf(index), e.Schema.Name)
}

// SetAttribute writes index for the currently running substep. The caller
// must hold the entity's lock.
func (e *MutableEntity) SetAttribute(index uint32, value primitives.Value) error {
	if int(index) >= len(e.current) {
		return fmt.Errorf("%w: attribute index %d out of range", primitives.ErrSchema, index)
	}
	v := value
	e.current[index] = &v
	e.onlyOnPrior.Remove(index)
	return nil
}

// HasNoHandlers reports whether index is exempt from handler resolution for
// substep: either the schema precomputed it has none, or consults the
// schema's no-handlers bitmap directly.
func (e *MutableEntity) HasNoHandlers(substep primitives.Substep, index uint32) bool {
	return e.Schema.NoHandlers(substep, index)
}

// StateValue returns the value of the schema's state-qualifying attribute,
// or Empty if the schema declares no state-qualified handlers.
func (e *MutableEntity) StateValue() (primitives.Value, error) {
	if !e.Schema.UsesState() || e.Schema.StateIndex() < 0 {
		return primitives.Empty, nil
	}
	v, err := e.GetAttribute(uint32(e.Schema.StateIndex()))
	if errors.Is(err, primitives.ErrResolution) {
		// A state attribute that was never assigned means "no state", not
		// a resolution failure: state-agnostic handlers still apply.
		return primitives.Empty, nil
	}
	return v, err
}

// Snapshot produces an immutable FrozenEntity view of this entity's
// currently resolved attribute values without advancing the substep
// boundary. The caller must hold the entity's lock. Spatial queries use
// this to hand another entity's state across a lock boundary mid-substep.
func (e *MutableEntity) Snapshot() *FrozenEntity {
	n := len(e.current)
	values := make([]primitives.Value, n)
	for i := 0; i < n; i++ {
		resolved, _ := e.GetAttribute(uint32(i))
		values[i] = resolved.Freeze()
	}
	return &FrozenEntity{
		schema:     e.Schema,
		sequenceID: e.SequenceID(),
		geometry:   e.geometry,
		values:     values,
	}
}

// Freeze produces an immutable FrozenEntity snapshot of this step's
// resolved attribute values, then rolls current into prior for the next
// step. The caller must hold the entity's lock, and no substep may be
// active: freezing mid-substep panics with ErrState, the same
// unrecoverable-misuse treatment as unlocking a lock the caller does not
// hold.
func (e *MutableEntity) Freeze() *FrozenEntity {
	if e.substep != "" {
		panic(fmt.Errorf("%w: freeze during active substep %q on entity seq=%d", primitives.ErrState, e.substep, e.SequenceID()))
	}
	frozen := e.Snapshot()

	n := len(e.current)
	nextPrior := make([]*primitives.Value, n)
	nextOnlyOnPrior := roaring.New()
	for i := 0; i < n; i++ {
		// A never-assigned slot stays null across the boundary; promoting
		// it to a stored Empty would make the next step's read succeed
		// where it must surface ErrResolution.
		if frozen.values[i].IsEmpty() {
			continue
		}
		v := frozen.values[i]
		nextPrior[i] = &v
		nextOnlyOnPrior.Add(uint32(i))
	}
	e.prior = nextPrior
	e.current = make([]*primitives.Value, n)
	e.onlyOnPrior = nextOnlyOnPrior

	return frozen
}
