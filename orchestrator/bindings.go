package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SchmidtDSE/josh/internal/core"
	"github.com/SchmidtDSE/josh/internal/extensibility"
	"github.com/SchmidtDSE/josh/internal/primitives"
	"github.com/SchmidtDSE/josh/internal/production"
)

// entityResolver implements extensibility.Resolver against one locked
// entity. Names resolve against the current substep's view by default; a
// "prior." prefix pins the read to the last freeze boundary, and a
// "current." prefix is accepted as an explicit spelling of the default.
type entityResolver struct {
	entity *core.MutableEntity
}

func (r entityResolver) ResolveAttribute(name string) (primitives.Value, error) {
	prior := false
	switch {
	case strings.HasPrefix(name, "prior."):
		name = strings.TrimPrefix(name, "prior.")
		prior = true
	case strings.HasPrefix(name, "current."):
		name = strings.TrimPrefix(name, "current.")
	}
	idx, ok := r.entity.Schema.IndexOf(name)
	if !ok {
		return primitives.Empty, fmt.Errorf("%w: %s has no attribute %q", primitives.ErrResolution, r.entity.Schema.Name, name)
	}
	if prior {
		return r.entity.PriorAttribute(idx)
	}
	return r.entity.GetAttribute(idx)
}

// targetResolver implements extensibility.TargetResolver: spatial queries
// from a handler running on self, scoped to one target entity type. Found
// entities are locked in the global order under the invocation's token,
// snapshotted, and released, so the returned distribution only ever holds
// immutable views.
type targetResolver struct {
	replicate  *Replicate
	self       *core.MutableEntity
	targetName string
	token      core.LockToken
	timeout    time.Duration
}

// TargetsFor implements extensibility.TargetResolverFactory.
func (t targetResolver) TargetsFor(name string) extensibility.TargetResolver {
	t.targetName = name
	return t
}

func (t targetResolver) QueryDistance(distance float64) (*primitives.Distribution, error) {
	g := t.self.Geometry()
	var center *primitives.Point
	if g.OnGrid() {
		center = primitives.NewGridPoint(int(g.CenterX()), int(g.CenterY()))
	} else {
		center = primitives.NewEarthPoint(g.CenterX(), g.CenterY(), "")
	}
	return t.Query(primitives.NewSquareCentered(center, 2*distance))
}

func (t targetResolver) Query(region primitives.Geometry) (*primitives.Distribution, error) {
	matches := t.replicate.Index().Query(region)
	targets := matches[:0]
	for _, e := range matches {
		if t.targetName == "" || e.Schema.Name == t.targetName {
			targets = append(targets, e)
		}
	}

	locks := core.NewLockSet(t.token, targets...)
	if err := locks.Acquire(t.timeout); err != nil {
		return nil, err
	}
	defer locks.Abort()

	refs := make([]primitives.Value, len(targets))
	for i, e := range targets {
		refs[i] = primitives.NewEntityRef(e.Snapshot())
	}
	return primitives.NewDistributionOf(refs...), nil
}

// entityCreator implements extensibility.EntityCreator: entities created
// from a running handler materialize at the creating entity's location and
// join the population between substeps.
type entityCreator struct {
	replicate *Replicate
	self      *core.MutableEntity
}

func (c entityCreator) CreateEntity(name string) (primitives.Entity, error) {
	schema, err := c.replicate.Schema(name)
	if err != nil {
		return nil, err
	}
	created := core.NewMutableEntity(schema, c.self.Geometry(), false, c.self.PatchIndex())
	snapshot := created.Snapshot()
	c.replicate.Defer(created)
	return snapshot, nil
}

// externalReader implements extensibility.ExternalReader: read_resource
// handlers fetch external data covering the bound entity's location
// through the run's sharded resource cache. The underlying I/O happens on
// a cache miss only, inside the cache shard's lock but never under another
// entity's lock.
type externalReader struct {
	ctx   context.Context
	cache *production.ResourceCache
	self  *core.MutableEntity
}

func (x externalReader) ReadExternal(pathOrURL string) (*primitives.Distribution, error) {
	return x.cache.Read(x.ctx, pathOrURL, x.self.Geometry())
}

var _ extensibility.Resolver = entityResolver{}
var _ extensibility.TargetResolver = targetResolver{}
var _ extensibility.EntityCreator = entityCreator{}
var _ extensibility.ExternalReader = externalReader{}
