package core

import (
	"sync"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

// spatialKey is the grid-location-only identity used to bucket entities in
// a SpatialIndex, matching primitives.GeoKey.Equal's semantics (location
// only, sequence_id ignored) without depending on GeoKey's unexported hash
// representation.
type spatialKey struct {
	x, y float64
}

func keyOf(g primitives.Geometry) spatialKey {
	return spatialKey{x: g.CenterX(), y: g.CenterY()}
}

// SpatialIndex is a concurrency-safe lookup from grid location to the
// entities occupying it. Reads (queries from within a substep handler) and
// writes (entity creation, movement, removal) both take the RWMutex; the
// index never itself takes an entity lock, so callers must acquire entity
// locks separately and in the global ordering when an operation needs both.
type SpatialIndex struct {
	mu      sync.RWMutex
	byCell  map[spatialKey][]*MutableEntity
}

// NewSpatialIndex creates an empty index.
func NewSpatialIndex() *SpatialIndex {
	return &SpatialIndex{byCell: make(map[spatialKey][]*MutableEntity)}
}

// Insert adds entity at its current geometry.
func (idx *SpatialIndex) Insert(entity *MutableEntity) {
	key := keyOf(entity.Geometry())
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byCell[key] = append(idx.byCell[key], entity)
}

// Remove removes entity from the cell it currently occupies.
func (idx *SpatialIndex) Remove(entity *MutableEntity) {
	key := keyOf(entity.Geometry())
	idx.mu.Lock()
	defer idx.mu.Unlock()
	bucket := idx.byCell[key]
	for i, e := range bucket {
		if e == entity {
			idx.byCell[key] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(idx.byCell[key]) == 0 {
		delete(idx.byCell, key)
	}
}

// Move relocates entity from its old geometry to its new one. Callers must
// update entity.Geometry() (via SetGeometry, under the entity's lock)
// before calling Move with the prior geometry so the index can find and
// re-bucket it.
func (idx *SpatialIndex) Move(entity *MutableEntity, from primitives.Geometry) {
	oldKey := keyOf(from)
	newKey := keyOf(entity.Geometry())
	if oldKey == newKey {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	bucket := idx.byCell[oldKey]
	for i, e := range bucket {
		if e == entity {
			idx.byCell[oldKey] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(idx.byCell[oldKey]) == 0 {
		delete(idx.byCell, oldKey)
	}
	idx.byCell[newKey] = append(idx.byCell[newKey], entity)
}

// Query returns every entity whose geometry intersects region. The
// returned slice is a snapshot copy, safe to range over after the RWMutex
// is released.
func (idx *SpatialIndex) Query(region primitives.Geometry) []*MutableEntity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var matches []*MutableEntity
	for _, bucket := range idx.byCell {
		for _, entity := range bucket {
			if region.Intersects(entity.Geometry()) {
				matches = append(matches, entity)
			}
		}
	}
	return matches
}

// At returns every entity occupying exactly the cell at (x, y).
func (idx *SpatialIndex) At(x, y float64) []*MutableEntity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	bucket := idx.byCell[spatialKey{x: x, y: y}]
	out := make([]*MutableEntity, len(bucket))
	copy(out, bucket)
	return out
}
