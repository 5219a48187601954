// Package core provides the runtime tier of the Josh substep engine: the
// shared immutable EntitySchema, the per-instance locked MutableEntity, and
// the pure handler-resolution functions that connect them.
package core

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

// EntitySchema is the shared, immutable per-type metadata for one entity
// declaration: attribute indexing, handler lookup tables, and per-substep
// no-handler bitmaps. One instance is built per declaration (BuildSchema,
// driven by builder.EntityBuilder) and shared by reference across every
// instance of that type and every goroutine that touches one.
type EntitySchema struct {
	Name            string
	attrNameToIndex map[string]uint32
	indexToAttrName []string
	attributeNames  map[string]struct{}
	handlersByKey   map[primitives.EventKey]primitives.EventHandlerGroup
	noHandlers      map[primitives.Substep]*roaring.Bitmap
	handlerCache    map[string][]primitives.EventHandlerGroup
	usesState       bool
	stateIndex      int32
	initialValues   []*primitives.Value
}

// AttributeCount returns the number of attributes this schema indexes.
func (s *EntitySchema) AttributeCount() int {
	return len(s.indexToAttrName)
}

// IndexOf returns the attribute index for name, and whether it was found.
func (s *EntitySchema) IndexOf(name string) (uint32, bool) {
	idx, ok := s.attrNameToIndex[name]
	return idx, ok
}

// NameOf returns the attribute name at index. An out-of-range index is a
// fatal error and panics with ErrSchema.
func (s *EntitySchema) NameOf(index uint32) string {
	if int(index) >= len(s.indexToAttrName) {
		panic(fmt.Errorf("%w: attribute index %d out of range (0..%d)", primitives.ErrSchema, index, len(s.indexToAttrName)))
	}
	return s.indexToAttrName[index]
}

// HasAttribute reports whether name is a declared attribute.
func (s *EntitySchema) HasAttribute(name string) bool {
	_, ok := s.attributeNames[name]
	return ok
}

// UsesState reports whether any handler in this schema is state-qualified.
func (s *EntitySchema) UsesState() bool {
	return s.usesState
}

// StateIndex returns the attribute index backing agent "state", or -1 if
// this schema declares no state-qualified handlers.
func (s *EntitySchema) StateIndex() int32 {
	return s.stateIndex
}

// NoHandlers reports whether the attribute at index has an initial value
// and no handler group for substep: the fast-path skip used by both
// handler resolution and the substep orchestrator.
func (s *EntitySchema) NoHandlers(substep primitives.Substep, index uint32) bool {
	bm, ok := s.noHandlers[substep]
	if !ok {
		return false
	}
	return bm.Contains(index)
}

// InitialValue returns the declared initial value for index, or nil.
func (s *EntitySchema) InitialValue(index uint32) *primitives.Value {
	if int(index) >= len(s.initialValues) {
		return nil
	}
	return s.initialValues[index]
}

// HandlerCacheKey formats the handler-cache lookup key for (attr, substep,
// state): "attr:substep", or "attr:substep:state" when state-qualified.
func HandlerCacheKey(attr string, substep primitives.Substep, state string) string {
	if state == "" {
		return fmt.Sprintf("%s:%s", attr, substep)
	}
	return fmt.Sprintf("%s:%s:%s", attr, substep, state)
}

// candidateGroups returns the handler_cache entry for the given key,
// possibly nil/empty.
func (s *EntitySchema) candidateGroups(attr string, substep primitives.Substep, state string) []primitives.EventHandlerGroup {
	return s.handlerCache[HandlerCacheKey(attr, substep, state)]
}

// BuildSchema produces one immutable, shareable EntitySchema from an
// entity name, declared initial attributes, and a flat list of handler
// declarations.
func BuildSchema(config *primitives.EntityConfig) (*EntitySchema, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil entity config", primitives.ErrSchema)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Step 1: union of initial-attr names and every handler-target
	// attribute name.
	nameSet := make(map[string]struct{}, len(config.InitialAttrs))
	for name := range config.InitialAttrs {
		nameSet[name] = struct{}{}
	}
	for _, decl := range config.Handlers {
		nameSet[decl.Key.Attribute] = struct{}{}
	}

	// Step 2: sort alphabetically, assign indices.
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	attrNameToIndex := make(map[string]uint32, len(names))
	for i, name := range names {
		attrNameToIndex[name] = uint32(i)
	}

	// Step 3: handlers_by_key, as-is.
	handlersByKey := make(map[primitives.EventKey]primitives.EventHandlerGroup, len(config.Handlers))
	for _, decl := range config.Handlers {
		if decl.Key == (primitives.EventKey{}) {
			continue // a null key is ignored for no-handler analysis (and everywhere else)
		}
		handlersByKey[decl.Key] = decl.Group
	}

	// Step 4: per-substep no-handler bitmaps.
	noHandlers := make(map[primitives.Substep]*roaring.Bitmap, len(primitives.AllEvents))
	for _, substep := range primitives.AllEvents {
		bm := roaring.New()
		for name := range config.InitialAttrs {
			bm.Add(attrNameToIndex[name])
		}
		noHandlers[substep] = bm
	}
	for _, decl := range config.Handlers {
		bm, ok := noHandlers[decl.Key.Event]
		if !ok {
			continue
		}
		bm.Remove(attrNameToIndex[decl.Key.Attribute])
	}

	// Step 5: handler_cache.
	states := map[string]struct{}{"": {}}
	for _, decl := range config.Handlers {
		if decl.Key.State != "" {
			states[decl.Key.State] = struct{}{}
		}
	}
	usesState := len(states) > 1

	handlerCache := make(map[string][]primitives.EventHandlerGroup)
	for attr := range nameSet {
		for _, substep := range primitives.AllEvents {
			for state := range states {
				var groups []primitives.EventHandlerGroup
				if g, ok := handlersByKey[primitives.EventKey{Attribute: attr, Event: substep}]; ok {
					groups = append(groups, g)
				}
				if state != "" {
					if g, ok := handlersByKey[primitives.EventKey{Attribute: attr, Event: substep, State: state}]; ok {
						groups = append(groups, g)
					}
				}
				if len(groups) > 0 {
					handlerCache[HandlerCacheKey(attr, substep, state)] = groups
				}
			}
		}
	}

	// Step 6: initial_values.
	initialValues := make([]*primitives.Value, len(names))
	for name, value := range config.InitialAttrs {
		v := value
		initialValues[attrNameToIndex[name]] = &v
	}

	stateIndex := int32(-1)
	if idx, ok := attrNameToIndex["state"]; ok && usesState {
		stateIndex = int32(idx)
	}

	return &EntitySchema{
		Name:            config.Name,
		attrNameToIndex: attrNameToIndex,
		indexToAttrName: names,
		attributeNames:  nameSet,
		handlersByKey:   handlersByKey,
		noHandlers:      noHandlers,
		handlerCache:    handlerCache,
		usesState:       usesState,
		stateIndex:      stateIndex,
		initialValues:   initialValues,
	}, nil
}
