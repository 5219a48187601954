package primitives

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Tag is an interned unit name. Equality is name-equality: two Tags with the
// same canonical string are the same unit.
type Tag string

// Count is the dimensionless unit used for bare counts (e.g. "2 count").
const Count Tag = "count"

// Unitless is the unit of values that carry no physical dimension.
const Unitless Tag = ""

// Conversion converts a decimal magnitude from one unit to another.
type Conversion func(decimal.Decimal) (decimal.Decimal, error)

// AliasTable maps unit spelling variants ("m", "meter", "meters") to a
// canonical Tag. Scope is per-simulation: each ConversionEngine owns its
// own table so two concurrently loaded simulations cannot clobber each
// other's aliases.
type AliasTable struct {
	mu      sync.RWMutex
	aliases map[string]Tag
}

// NewAliasTable creates an empty alias table.
func NewAliasTable() *AliasTable {
	return &AliasTable{aliases: make(map[string]Tag)}
}

// Register adds alias -> canonical. Re-registering the same alias to a
// different canonical tag overwrites the previous mapping.
func (t *AliasTable) Register(alias string, canonical Tag) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aliases[normalizeAlias(alias)] = canonical
}

// Canonicalize resolves an alias (or already-canonical tag) to its
// canonical Tag. Unknown spellings pass through unchanged: an unrecognized
// tag is still a valid, if un-aliased, unit.
func (t *AliasTable) Canonicalize(tag Tag) Tag {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if canon, ok := t.aliases[normalizeAlias(string(tag))]; ok {
		return canon
	}
	return tag
}

func normalizeAlias(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ConversionEngine maps (source, destination) canonical tag pairs to a
// compiled Conversion. Identity pairs (after alias canonicalization) never
// consult the map: they are the noop conversion.
type ConversionEngine struct {
	aliases     *AliasTable
	mu          sync.RWMutex
	conversions map[conversionKey]Conversion
}

type conversionKey struct {
	from, to Tag
}

// NewConversionEngine creates a ConversionEngine backed by the given
// (per-simulation) alias table.
func NewConversionEngine(aliases *AliasTable) *ConversionEngine {
	if aliases == nil {
		aliases = NewAliasTable()
	}
	return &ConversionEngine{aliases: aliases, conversions: make(map[conversionKey]Conversion)}
}

// Aliases returns the alias table backing this engine.
func (e *ConversionEngine) Aliases() *AliasTable {
	return e.aliases
}

// Register compiles a conversion from source to destination. Conversions
// are directional; register the inverse explicitly if it is needed.
func (e *ConversionEngine) Register(source, destination Tag, fn Conversion) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conversions[conversionKey{e.aliases.Canonicalize(source), e.aliases.Canonicalize(destination)}] = fn
}

// Convert converts magnitude from source to destination units. Tags that
// canonicalize to the same tag convert as a noop. When no conversion is
// registered between two different tags, force returns the magnitude
// unchanged instead of failing with ErrUnit.
func (e *ConversionEngine) Convert(magnitude decimal.Decimal, source, destination Tag, force bool) (decimal.Decimal, error) {
	src := e.aliases.Canonicalize(source)
	dst := e.aliases.Canonicalize(destination)
	if src == dst {
		return magnitude, nil
	}

	e.mu.RLock()
	fn, ok := e.conversions[conversionKey{src, dst}]
	e.mu.RUnlock()
	if ok {
		return fn(magnitude)
	}

	if force {
		return magnitude, nil
	}

	return decimal.Zero, fmt.Errorf("%w: no conversion from %q to %q", ErrUnit, source, destination)
}
