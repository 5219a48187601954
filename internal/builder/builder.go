// Package builder provides the fluent construction path from an entity
// declaration (parsed or handwritten) to a shared core.EntitySchema.
// Handlers added for the same (attribute, event, state) key accumulate into
// one ordered group, so declaration order is selection order at runtime.
package builder

import (
	"github.com/SchmidtDSE/josh/internal/core"
	"github.com/SchmidtDSE/josh/internal/primitives"
)

// EntityBuilder accumulates an entity declaration and finalizes it into an
// immutable EntitySchema.
type EntityBuilder struct {
	name     string
	initial  map[string]primitives.Value
	order    []primitives.EventKey
	handlers map[primitives.EventKey][]primitives.EventHandler
}

// Entity starts a declaration for the named entity type.
func Entity(name string) *EntityBuilder {
	return &EntityBuilder{
		name:     name,
		initial:  make(map[string]primitives.Value),
		handlers: make(map[primitives.EventKey][]primitives.EventHandler),
	}
}

// Initial declares an initial attribute value.
func (b *EntityBuilder) Initial(attr string, value primitives.Value) *EntityBuilder {
	b.initial[attr] = value
	return b
}

// Handler appends a state-agnostic handler for attr at event. A nil
// selector makes the handler unconditional.
func (b *EntityBuilder) Handler(attr string, event primitives.Substep, selector primitives.SelectorRef, action primitives.ActionRef) *EntityBuilder {
	return b.add(primitives.EventKey{Attribute: attr, Event: event}, selector, action)
}

// HandlerForState appends a handler that only fires while the entity's
// state attribute equals state.
func (b *EntityBuilder) HandlerForState(state, attr string, event primitives.Substep, selector primitives.SelectorRef, action primitives.ActionRef) *EntityBuilder {
	return b.add(primitives.EventKey{Attribute: attr, Event: event, State: state}, selector, action)
}

func (b *EntityBuilder) add(key primitives.EventKey, selector primitives.SelectorRef, action primitives.ActionRef) *EntityBuilder {
	if _, seen := b.handlers[key]; !seen {
		b.order = append(b.order, key)
	}
	b.handlers[key] = append(b.handlers[key], primitives.EventHandler{Selector: selector, Action: action})
	return b
}

// Config flattens the accumulated declaration into an EntityConfig without
// finalizing it, for callers that validate or merge declarations before
// building.
func (b *EntityBuilder) Config() *primitives.EntityConfig {
	cfg := primitives.NewEntityConfig(b.name)
	for attr, value := range b.initial {
		cfg.WithInitial(attr, value)
	}
	for _, key := range b.order {
		cfg.WithHandler(key, b.handlers[key]...)
	}
	return cfg
}

// Build finalizes the declaration into a shared, immutable EntitySchema.
func (b *EntityBuilder) Build() (*core.EntitySchema, error) {
	return core.BuildSchema(b.Config())
}
