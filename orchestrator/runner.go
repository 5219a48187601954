package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/SchmidtDSE/josh/internal/core"
	"github.com/SchmidtDSE/josh/internal/diagnostics"
	"github.com/SchmidtDSE/josh/internal/extensibility"
	"github.com/SchmidtDSE/josh/internal/primitives"
	"github.com/SchmidtDSE/josh/internal/production"
)

// SnapshotSink receives end-of-step snapshots; the production snapshot
// writers satisfy it.
type SnapshotSink interface {
	Write(snapshot production.Snapshot) error
}

// Runner drives one replicate through the configured number of time steps.
type Runner struct {
	cfg       Config
	replicate *Replicate
	runID     string

	logger    *diagnostics.SubstepLogger
	metrics   *diagnostics.Metrics
	viewer    *production.LiveViewer
	sink      SnapshotSink
	mapFns    *extensibility.MapMethodRegistry
	resources *production.ResourceCache

	tokens atomic.Uint64
	step   uint64
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics wires Prometheus collectors into the run.
func WithMetrics(m *diagnostics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithViewer broadcasts end-of-step snapshots to connected websocket
// clients.
func WithViewer(v *production.LiveViewer) Option {
	return func(r *Runner) { r.viewer = v }
}

// WithSnapshotSink exports end-of-step snapshots through sink.
func WithSnapshotSink(sink SnapshotSink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithMapMethods registers extra ApplyMap response curves for this run.
func WithMapMethods(registry *extensibility.MapMethodRegistry) Option {
	return func(r *Runner) { r.mapFns = registry }
}

// WithResourceReader fronts reader with the replicate's sharded cache
// (Config.CacheShards) and makes it available to read_resource handlers.
func WithResourceReader(reader production.ResourceReader) Option {
	return func(r *Runner) {
		r.resources = production.NewResourceCache(reader, r.cfg.CacheShards, production.DefaultReadAttempts)
	}
}

// NewRunner builds a Runner over replicate with a fresh run id.
func NewRunner(cfg Config, replicate *Replicate, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:       cfg,
		replicate: replicate,
		runID:     uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = diagnostics.NewSubstepLogger(r.runID)
	return r, nil
}

// RunID returns this run's identifier, stamped on every log line.
func (r *Runner) RunID() string {
	return r.runID
}

// Step returns the index of the time step currently executing (or the
// number completed, between steps).
func (r *Runner) Step() uint64 {
	return atomic.LoadUint64(&r.step)
}

func (r *Runner) nextToken() core.LockToken {
	return core.LockToken(r.tokens.Add(1))
}

// Run executes the simulation: constant handlers once, init handlers once,
// then Steps time steps of start/step/end, freezing at every substep
// boundary and publishing snapshots at every step boundary.
func (r *Runner) Run(ctx context.Context) error {
	for _, substep := range []primitives.Substep{primitives.Constant, primitives.Init} {
		if err := r.runSubstep(ctx, substep, r.replicate.Entities()); err != nil {
			return err
		}
		if _, err := r.freezeAll(); err != nil {
			return err
		}
	}
	if err := r.initNewcomers(ctx); err != nil {
		return err
	}

	for step := 0; step < r.cfg.Steps; step++ {
		atomic.StoreUint64(&r.step, uint64(step))
		var frozen []*core.FrozenEntity
		for _, substep := range []primitives.Substep{primitives.Start, primitives.Step, primitives.End} {
			if err := r.runSubstep(ctx, substep, r.replicate.Entities()); err != nil {
				return err
			}
			var err error
			frozen, err = r.freezeAll()
			if err != nil {
				return err
			}
			if err := r.initNewcomers(ctx); err != nil {
				return err
			}
		}
		if err := r.publish(frozen, uint64(step)); err != nil {
			return err
		}
	}
	atomic.StoreUint64(&r.step, uint64(r.cfg.Steps))
	return nil
}

// RemoveEntity runs e's remove handlers, freezes it one final time, and
// deletes it from the replicate.
func (r *Runner) RemoveEntity(ctx context.Context, e *core.MutableEntity) error {
	if err := r.processEntity(ctx, e, primitives.Remove); err != nil {
		return err
	}
	if err := r.freezeOne(e); err != nil {
		return err
	}
	r.replicate.Remove(e)
	return nil
}

// initNewcomers absorbs entities created by handlers during the previous
// substep and runs their constant and init handlers before they join the
// regular cadence.
func (r *Runner) initNewcomers(ctx context.Context) error {
	for {
		newcomers := r.replicate.Absorb()
		if len(newcomers) == 0 {
			return nil
		}
		for _, substep := range []primitives.Substep{primitives.Constant, primitives.Init} {
			if err := r.runSubstep(ctx, substep, newcomers); err != nil {
				return err
			}
		}
		for _, e := range newcomers {
			if err := r.freezeOne(e); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) runSubstep(ctx context.Context, substep primitives.Substep, entities []*core.MutableEntity) error {
	if len(entities) == 0 {
		return nil
	}
	started := time.Now()

	shards := r.shard(entities)
	g, ctx := errgroup.WithContext(ctx)
	for shardIdx, shard := range shards {
		r.logger.SubstepStarted(substep, shardIdx, len(shard))
		shard := shard
		shardIdx := shardIdx
		g.Go(func() error {
			shardStart := time.Now()
			var err error
			for _, e := range shard {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
					break
				}
				if err = r.processEntity(ctx, e, substep); err != nil {
					break
				}
			}
			r.logger.SubstepCompleted(substep, shardIdx, time.Since(shardStart), err)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.metrics.SubstepCompleted(string(substep), time.Since(started))
	return nil
}

// shard partitions entities into contiguous worker-sized slices of the
// population order. Slices are cut by count alone, so a patch and its
// member entities can land in different shards.
func (r *Runner) shard(entities []*core.MutableEntity) [][]*core.MutableEntity {
	workers := r.cfg.Workers
	if workers > len(entities) {
		workers = len(entities)
	}
	shards := make([][]*core.MutableEntity, 0, workers)
	per := (len(entities) + workers - 1) / workers
	for start := 0; start < len(entities); start += per {
		end := start + per
		if end > len(entities) {
			end = len(entities)
		}
		shards = append(shards, entities[start:end])
	}
	return shards
}

func (r *Runner) processEntity(ctx context.Context, e *core.MutableEntity, substep primitives.Substep) error {
	token := r.nextToken()
	// The self-lock is held directly for the whole substep, outside any
	// LockSet: a nested query's LockSet.Abort releases only the target
	// locks it acquired, never this one. Two entities querying each other
	// can therefore still contend, which the bounded TryLock timeout
	// converts into a retryable ErrContention rather than a deadlock.
	if err := e.TryLock(token, r.cfg.LockTimeout); err != nil {
		r.metrics.Contention()
		return err
	}
	defer e.Unlock(token)

	if err := e.StartSubstep(substep); err != nil {
		return err
	}
	defer e.EndSubstep()

	n := e.Schema.AttributeCount()
	for i := 0; i < n; i++ {
		index := uint32(i)
		if e.HasNoHandlers(substep, index) {
			continue
		}
		groups, err := core.ResolveHandlers(e, index, substep)
		if err != nil {
			if recorded := r.recordHandlerError(substep, e, index, err); recorded != nil {
				return recorded
			}
			continue
		}
		if len(groups) == 0 {
			continue
		}

		handler, ok, err := core.SelectHandler(groups, func(sel primitives.SelectorRef) (bool, error) {
			return r.evaluateSelector(ctx, e, token, sel)
		})
		if err != nil {
			if recorded := r.recordHandlerError(substep, e, index, err); recorded != nil {
				return recorded
			}
			continue
		}
		if !ok {
			continue // every selector declined: the attribute keeps its prior value
		}

		value, err := r.runAction(ctx, e, token, index, handler.Action)
		if err != nil {
			if recorded := r.recordHandlerError(substep, e, index, err); recorded != nil {
				return recorded
			}
			continue
		}
		if value.IsEmpty() {
			continue
		}
		if err := e.SetAttribute(index, value); err != nil {
			return err
		}
	}
	return nil
}

// recordHandlerError absorbs a handler error in lenient mode and returns
// it in strict mode. State and program errors are never recoverable.
func (r *Runner) recordHandlerError(substep primitives.Substep, e *core.MutableEntity, index uint32, err error) error {
	r.metrics.HandlerError(e.Schema.Name)
	r.logger.HandlerFailed(substep, e.Schema.Name, e.Schema.NameOf(index), err)
	if r.cfg.Strict || errors.Is(err, primitives.ErrState) || errors.Is(err, primitives.ErrProgram) {
		return err
	}
	return nil
}

func (r *Runner) newMachine(ctx context.Context, e *core.MutableEntity, token core.LockToken) *extensibility.Machine {
	var externals extensibility.ExternalReader
	if r.resources != nil {
		externals = externalReader{ctx: ctx, cache: r.resources, self: e}
	}
	return extensibility.NewMachine(
		entityResolver{entity: e},
		targetResolver{replicate: r.replicate, self: e, token: token, timeout: r.cfg.LockTimeout},
		entityCreator{replicate: r.replicate, self: e},
		externals,
		r.mapFns,
		r.replicate.Units(),
	)
}

func (r *Runner) evaluateSelector(ctx context.Context, e *core.MutableEntity, token core.LockToken, sel primitives.SelectorRef) (bool, error) {
	program, ok := sel.(extensibility.Program)
	if !ok {
		return false, fmt.Errorf("%w: selector is %T, not a compiled program", primitives.ErrProgram, sel)
	}
	result, err := r.newMachine(ctx, e, token).Run(program)
	if err != nil {
		return false, err
	}
	if result.IsEmpty() {
		return false, nil
	}
	matched, err := result.Bool()
	if err != nil {
		return false, err
	}
	return matched, nil
}

func (r *Runner) runAction(ctx context.Context, e *core.MutableEntity, token core.LockToken, index uint32, action primitives.ActionRef) (primitives.Value, error) {
	program, ok := action.(extensibility.Program)
	if !ok {
		return primitives.Empty, fmt.Errorf("%w: action is %T, not a compiled program", primitives.ErrProgram, action)
	}
	var runner diagnostics.HandlerRunner = diagnostics.HandlerRunnerFunc(
		func(m *extensibility.Machine, p extensibility.Program) (primitives.Value, error) {
			return m.Run(p)
		})
	if r.cfg.Verbose {
		runner = diagnostics.NewLoggingHandlerRunner(runner, e.Schema.Name, e.Schema.NameOf(index))
	}
	return runner.Run(r.newMachine(ctx, e, token), program)
}

func (r *Runner) freezeOne(e *core.MutableEntity) error {
	token := r.nextToken()
	if err := e.TryLock(token, r.cfg.LockTimeout); err != nil {
		r.metrics.Contention()
		return err
	}
	defer e.Unlock(token)
	e.Freeze()
	return nil
}

// freezeAll commits the substep boundary across the whole population and
// returns the frozen snapshots.
func (r *Runner) freezeAll() ([]*core.FrozenEntity, error) {
	entities := r.replicate.Entities()
	frozen := make([]*core.FrozenEntity, 0, len(entities))
	for _, e := range entities {
		token := r.nextToken()
		if err := e.TryLock(token, r.cfg.LockTimeout); err != nil {
			r.metrics.Contention()
			return nil, err
		}
		frozen = append(frozen, e.Freeze())
		e.Unlock(token)
	}
	return frozen, nil
}

func (r *Runner) publish(frozen []*core.FrozenEntity, step uint64) error {
	if r.viewer == nil && r.sink == nil {
		return nil
	}
	snapshots := make([]production.Snapshot, len(frozen))
	for i, f := range frozen {
		snapshots[i] = production.SnapshotOf(f, step)
	}
	if r.viewer != nil {
		r.viewer.Broadcast(snapshots)
	}
	if r.sink != nil {
		for _, s := range snapshots {
			if err := r.sink.Write(s); err != nil {
				return err
			}
		}
	}
	return nil
}
