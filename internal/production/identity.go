package production

import (
	"fmt"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

// IdentityKey identifies one entity instance, not one location. Unlike
// primitives.GeoKey — whose equality is deliberately location-only so
// spatial maps stay location-based — IdentityKey includes sequence_id, so
// a set of IdentityKeys distinguishes two entities standing on the same
// cell. Replay and diff tooling keys on this.
type IdentityKey struct {
	EntityName string
	SequenceID uint64
}

// IdentityOf derives the identity key from a GeoKey.
func IdentityOf(k primitives.GeoKey) IdentityKey {
	return IdentityKey{EntityName: k.EntityName, SequenceID: k.SequenceID}
}

func (k IdentityKey) String() string {
	return fmt.Sprintf("%s#%d", k.EntityName, k.SequenceID)
}

// GeometryEntity adapts a Geometry into the entity-reference capability so
// a compiled program can carry a search region on the expression machine
// stack.
type GeometryEntity struct {
	primitives.Geometry
}

// Freeze implements primitives.Entity; a geometry is already immutable.
func (g GeometryEntity) Freeze() primitives.Entity {
	return g
}

// GeometryValue wraps g as a Value for pushing onto the machine stack.
func GeometryValue(g primitives.Geometry) primitives.Value {
	return primitives.NewEntityRef(GeometryEntity{Geometry: g})
}
