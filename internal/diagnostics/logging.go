// Package diagnostics provides the observability surface of the substep
// engine: structured log lines around handler execution and Prometheus
// metrics for substeps, handler errors, and lock contention.
package diagnostics

import (
	"log"
	"time"

	"github.com/SchmidtDSE/josh/internal/extensibility"
	"github.com/SchmidtDSE/josh/internal/primitives"
)

// HandlerRunner executes one compiled handler action for an attribute. The
// orchestrator's inline runner satisfies this; LoggingHandlerRunner wraps
// any implementation with before/after log lines.
type HandlerRunner interface {
	Run(machine *extensibility.Machine, program extensibility.Program) (primitives.Value, error)
}

// HandlerRunnerFunc adapts a plain function to HandlerRunner.
type HandlerRunnerFunc func(machine *extensibility.Machine, program extensibility.Program) (primitives.Value, error)

func (f HandlerRunnerFunc) Run(machine *extensibility.Machine, program extensibility.Program) (primitives.Value, error) {
	return f(machine, program)
}

// LoggingHandlerRunner wraps a HandlerRunner and logs around execution.
type LoggingHandlerRunner struct {
	inner  HandlerRunner
	entity string
	attr   string
}

// NewLoggingHandlerRunner creates a LoggingHandlerRunner annotating its
// lines with the entity type and attribute being computed.
func NewLoggingHandlerRunner(inner HandlerRunner, entity, attr string) *LoggingHandlerRunner {
	return &LoggingHandlerRunner{inner: inner, entity: entity, attr: attr}
}

// Run logs before and after delegating to the inner runner.
func (r *LoggingHandlerRunner) Run(machine *extensibility.Machine, program extensibility.Program) (primitives.Value, error) {
	log.Printf("LOG: executing handler entity=%s attr=%s ops=%d", r.entity, r.attr, len(program))
	start := time.Now()
	v, err := r.inner.Run(machine, program)
	log.Printf("LOG: handler entity=%s attr=%s completed in %v: %v", r.entity, r.attr, time.Since(start), err)
	return v, err
}

// SubstepLogger emits one line per (substep, patch shard) at start and
// completion, the orchestrator-level counterpart of LoggingHandlerRunner.
type SubstepLogger struct {
	runID string
}

// NewSubstepLogger creates a SubstepLogger annotated with the run id.
func NewSubstepLogger(runID string) *SubstepLogger {
	return &SubstepLogger{runID: runID}
}

// SubstepStarted logs the beginning of a substep over a shard of entities.
func (l *SubstepLogger) SubstepStarted(substep primitives.Substep, shard, entities int) {
	log.Printf("LOG: run=%s substep=%s shard=%d entities=%d started", l.runID, substep, shard, entities)
}

// SubstepCompleted logs the completion of a substep over a shard.
func (l *SubstepLogger) SubstepCompleted(substep primitives.Substep, shard int, elapsed time.Duration, err error) {
	log.Printf("LOG: run=%s substep=%s shard=%d completed in %v: %v", l.runID, substep, shard, elapsed, err)
}

// HandlerFailed records a handler error that the orchestrator absorbed in
// lenient mode (the attribute kept its prior value).
func (l *SubstepLogger) HandlerFailed(substep primitives.Substep, entity, attr string, err error) {
	log.Printf("LOG: run=%s substep=%s entity=%s attr=%s handler error: %v", l.runID, substep, entity, attr, err)
}
