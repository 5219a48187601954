package primitives

import "fmt"

// EntityConfig is the builder's input to core.BuildSchema: an entity name,
// its declared initial attribute values, and the flat list of handler
// declarations gathered from the entity's compiled definition.
type EntityConfig struct {
	Name         string
	InitialAttrs map[string]Value
	Handlers     []HandlerDeclaration
}

// NewEntityConfig creates an empty EntityConfig for the given entity name.
func NewEntityConfig(name string) *EntityConfig {
	return &EntityConfig{
		Name:         name,
		InitialAttrs: make(map[string]Value),
	}
}

// WithInitial declares an initial attribute value.
func (c *EntityConfig) WithInitial(attr string, value Value) *EntityConfig {
	c.InitialAttrs[attr] = value
	return c
}

// WithHandler appends a handler declaration for the given key.
func (c *EntityConfig) WithHandler(key EventKey, handlers ...EventHandler) *EntityConfig {
	c.Handlers = append(c.Handlers, HandlerDeclaration{
		Key:   key,
		Group: EventHandlerGroup{Handlers: handlers},
	})
	return c
}

// Validate performs shallow structural validation independent of
// BuildSchema's attribute-indexing pass: a non-empty name, and no handler
// declaration with a zero-value key's Event.
func (c *EntityConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: entity name is required", ErrSchema)
	}
	for i, decl := range c.Handlers {
		if decl.Key.Attribute == "" {
			return fmt.Errorf("%w: handler %d has empty attribute", ErrSchema, i)
		}
		if decl.Key.Event == "" {
			return fmt.Errorf("%w: handler %d (%s) has empty event", ErrSchema, i, decl.Key.Attribute)
		}
		if len(decl.Group.Handlers) == 0 {
			return fmt.Errorf("%w: handler group %s has no handlers", ErrSchema, decl.Key)
		}
	}
	return nil
}
