package core

import (
	"github.com/SchmidtDSE/josh/internal/primitives"
)

// ResolveHandlers returns, for a given entity, attribute, and substep, the
// ordered list of EventHandlerGroups to consider. State-agnostic groups are always
// included; when the entity's schema uses state, the state-qualified group
// for the entity's current state (if any) is appended after it, so a
// state-specific handler is only ever layered on top of the general one,
// never ahead of it for a different state.
//
// This is a pure function over already-resolved schema data: the no-handler
// fast path should be checked by the caller (MutableEntity.HasNoHandlers)
// before ever reaching here.
func ResolveHandlers(entity *MutableEntity, index uint32, substep primitives.Substep) ([]primitives.EventHandlerGroup, error) {
	schema := entity.Schema
	attr := schema.NameOf(index)

	state := ""
	if schema.UsesState() {
		sv, err := entity.StateValue()
		if err != nil {
			return nil, err
		}
		if !sv.IsEmpty() {
			s, err := sv.String()
			if err == nil {
				state = s
			}
		}
	}

	groups := schema.candidateGroups(attr, substep, state)
	if len(groups) == 0 && state != "" {
		// The entity is in a state no handler declaration mentions; the
		// state-agnostic group still applies.
		groups = schema.candidateGroups(attr, substep, "")
	}
	return groups, nil
}

// SelectHandler walks an ordered handler group and returns the first
// EventHandler whose selector is satisfied, evaluated via evaluate. A nil
// Selector is an unconditional fallback and always matches. When nothing
// in groups matches, ok is false.
func SelectHandler(groups []primitives.EventHandlerGroup, evaluate func(primitives.SelectorRef) (bool, error)) (primitives.EventHandler, bool, error) {
	for _, group := range groups {
		for _, handler := range group.Handlers {
			if handler.Selector == nil {
				return handler, true, nil
			}
			matched, err := evaluate(handler.Selector)
			if err != nil {
				return primitives.EventHandler{}, false, err
			}
			if matched {
				return handler, true, nil
			}
		}
	}
	return primitives.EventHandler{}, false, nil
}
