package primitives

import "fmt"

// Substep names the closed set of phases a handler may be bound to.
// "remove" is part of the set but only ever runs during entity
// destruction, never in the per-step cadence.
type Substep string

const (
	Init     Substep = "init"
	Start    Substep = "start"
	Step     Substep = "step"
	End      Substep = "end"
	Constant Substep = "constant"
	Remove   Substep = "remove"
)

// Substeps lists init followed by the per-step substeps, in run order. The
// runner runs constant and then init once before the first time step, and
// start, step and end in every time step; Remove only runs at entity
// destruction.
var Substeps = []Substep{Init, Start, Step, End}

// AllEvents lists every member of the closed event set, used by the
// builder/schema when it needs to enumerate "every substep" irrespective of
// whether a given entity declares handlers for it.
var AllEvents = []Substep{Init, Start, Step, End, Constant, Remove}

// SelectorRef references a compiled predicate: a callable taking the
// expression machine's resolution context and returning a match/no-match
// Value (true/false, or Empty for "not applicable"). The concrete callable
// type is extensibility.Program in internal/extensibility, kept out of this
// package to avoid a primitives -> extensibility import cycle; here it is
// carried opaquely.
type SelectorRef any

// ActionRef references a compiled handler action (opaque callable, see
// SelectorRef). Produced by the external parser/AST; the core never parses
// source text into one.
type ActionRef any

// EventKey identifies a handler binding: the attribute it writes, the
// substep it runs in, and an optional state qualifier.
type EventKey struct {
	Attribute string
	Event     Substep
	State     string // "" means state-agnostic
}

// String renders a cache-style key "attr:event" or "attr:event:state".
func (k EventKey) String() string {
	if k.State == "" {
		return fmt.Sprintf("%s:%s", k.Attribute, k.Event)
	}
	return fmt.Sprintf("%s:%s:%s", k.Attribute, k.Event, k.State)
}

// EventHandler pairs an optional Selector with the Action it guards. A nil
// Selector is an unconditional fallback: it always fires.
type EventHandler struct {
	Selector SelectorRef
	Action   ActionRef
}

// EventHandlerGroup is an ordered list of EventHandlers sharing an
// EventKey. Handlers are tried in declaration order; the first whose
// selector evaluates true is chosen.
type EventHandlerGroup struct {
	Handlers []EventHandler
}

// HandlerDeclaration pairs an EventKey with the group declared under it;
// this is the builder's flat input list, indexed into EntitySchema's
// handlers_by_key / handler_cache by BuildSchema.
type HandlerDeclaration struct {
	Key   EventKey
	Group EventHandlerGroup
}
