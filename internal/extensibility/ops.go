package extensibility

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

// PushConst pushes a constant Value.
func PushConst(v primitives.Value) Op {
	return OpFunc(func(m *Machine) error {
		m.Push(v)
		return nil
	})
}

// PushAttribute resolves name via the Machine's bound Resolver and pushes
// the result.
func PushAttribute(name string) Op {
	return OpFunc(func(m *Machine) error {
		if m.resolver == nil {
			return fmt.Errorf("%w: push_attribute %q with no resolver bound", primitives.ErrProgram, name)
		}
		v, err := m.resolver.ResolveAttribute(name)
		if err != nil {
			return err
		}
		m.Push(v)
		return nil
	})
}

// Pop discards the stack top.
func Pop() Op {
	return OpFunc(func(m *Machine) error {
		_, err := m.Pop()
		return err
	})
}

// SaveLocal stores the stack top under name without consuming it.
func SaveLocal(name string) Op {
	return OpFunc(func(m *Machine) error {
		return m.SaveLocal(name)
	})
}

// LoadLocal pushes the value previously saved under name.
func LoadLocal(name string) Op {
	return OpFunc(func(m *Machine) error {
		return m.LoadLocal(name)
	})
}

func binaryDecimal(m *Machine, op func(a, b decimal.Decimal) (decimal.Decimal, error)) error {
	b, err := m.Pop()
	if err != nil {
		return err
	}
	a, err := m.Pop()
	if err != nil {
		return err
	}
	if a.Units() != b.Units() {
		return fmt.Errorf("%w: mismatched units %q vs %q", primitives.ErrUnit, a.Units(), b.Units())
	}
	da, err := a.Decimal()
	if err != nil {
		return err
	}
	db, err := b.Decimal()
	if err != nil {
		return err
	}
	result, err := op(da, db)
	if err != nil {
		return err
	}
	m.Push(primitives.NewDecimal(result, a.Units()))
	return nil
}

// Add pops two numeric values of matching units and pushes their sum.
func Add() Op {
	return OpFunc(func(m *Machine) error {
		return binaryDecimal(m, func(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Add(b), nil })
	})
}

// Subtract pops (a, b) and pushes a - b.
func Subtract() Op {
	return OpFunc(func(m *Machine) error {
		return binaryDecimal(m, func(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Sub(b), nil })
	})
}

// Multiply pops two numeric values and pushes their product. Units are not
// required to match for multiplication; the result keeps the left
// operand's unit tag (no dimensional analysis beyond tag equality).
func Multiply() Op {
	return OpFunc(func(m *Machine) error {
		b, err := m.Pop()
		if err != nil {
			return err
		}
		a, err := m.Pop()
		if err != nil {
			return err
		}
		da, err := a.Decimal()
		if err != nil {
			return err
		}
		db, err := b.Decimal()
		if err != nil {
			return err
		}
		m.Push(primitives.NewDecimal(da.Mul(db), a.Units()))
		return nil
	})
}

// Divide pops (a, b) and pushes a / b, erroring ErrMath on division by zero.
func Divide() Op {
	return OpFunc(func(m *Machine) error {
		b, err := m.Pop()
		if err != nil {
			return err
		}
		a, err := m.Pop()
		if err != nil {
			return err
		}
		da, err := a.Decimal()
		if err != nil {
			return err
		}
		db, err := b.Decimal()
		if err != nil {
			return err
		}
		if db.IsZero() {
			return fmt.Errorf("%w: division by zero", primitives.ErrMath)
		}
		m.Push(primitives.NewDecimal(da.Div(db), a.Units()))
		return nil
	})
}

// Pow pops (base, exponent) and pushes base^exponent.
func Pow() Op {
	return OpFunc(func(m *Machine) error {
		exp, err := m.Pop()
		if err != nil {
			return err
		}
		base, err := m.Pop()
		if err != nil {
			return err
		}
		db, err := base.Decimal()
		if err != nil {
			return err
		}
		de, err := exp.Decimal()
		if err != nil {
			return err
		}
		result := db.Pow(de)
		m.Push(primitives.NewDecimal(result, base.Units()))
		return nil
	})
}

func unaryDecimal(m *Machine, op func(decimal.Decimal) decimal.Decimal) error {
	v, err := m.Pop()
	if err != nil {
		return err
	}
	d, err := v.Decimal()
	if err != nil {
		return err
	}
	m.Push(primitives.NewDecimal(op(d), v.Units()))
	return nil
}

// Abs pushes the absolute value of the popped numeric operand.
func Abs() Op {
	return OpFunc(func(m *Machine) error { return unaryDecimal(m, decimal.Decimal.Abs) })
}

// Ceil rounds the popped numeric operand up to the nearest integer.
func Ceil() Op {
	return OpFunc(func(m *Machine) error { return unaryDecimal(m, decimal.Decimal.Ceil) })
}

// Floor rounds the popped numeric operand down to the nearest integer.
func Floor() Op {
	return OpFunc(func(m *Machine) error { return unaryDecimal(m, decimal.Decimal.Floor) })
}

// Round rounds the popped numeric operand to the nearest integer.
func Round() Op {
	return OpFunc(func(m *Machine) error {
		return unaryDecimal(m, func(d decimal.Decimal) decimal.Decimal { return d.Round(0) })
	})
}

// Log10 pushes log10 of the popped operand, erroring ErrMath for a
// non-positive argument.
func Log10() Op {
	return OpFunc(func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}
		d, err := v.Decimal()
		if err != nil {
			return err
		}
		f, _ := d.Float64()
		if f <= 0 {
			return fmt.Errorf("%w: log10 of non-positive value %s", primitives.ErrMath, d)
		}
		m.Push(primitives.NewDecimal(decimal.NewFromFloat(math.Log10(f)), v.Units()))
		return nil
	})
}

// Ln pushes the natural log of the popped operand, erroring ErrMath for a
// non-positive argument.
func Ln() Op {
	return OpFunc(func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}
		d, err := v.Decimal()
		if err != nil {
			return err
		}
		f, _ := d.Float64()
		if f <= 0 {
			return fmt.Errorf("%w: ln of non-positive value %s", primitives.ErrMath, d)
		}
		m.Push(primitives.NewDecimal(decimal.NewFromFloat(math.Log(f)), v.Units()))
		return nil
	})
}

func comparisonOp(m *Machine, op func(a, b decimal.Decimal) bool) error {
	b, err := m.Pop()
	if err != nil {
		return err
	}
	a, err := m.Pop()
	if err != nil {
		return err
	}
	if a.Units() != b.Units() {
		return fmt.Errorf("%w: mismatched units %q vs %q", primitives.ErrUnit, a.Units(), b.Units())
	}
	da, err := a.Decimal()
	if err != nil {
		return err
	}
	db, err := b.Decimal()
	if err != nil {
		return err
	}
	m.Push(primitives.NewBool(op(da, db)))
	return nil
}

// Equal compares two values for equality, numerically if both are numeric.
func Equal() Op {
	return OpFunc(func(m *Machine) error {
		b, err := m.Pop()
		if err != nil {
			return err
		}
		a, err := m.Pop()
		if err != nil {
			return err
		}
		m.Push(primitives.NewBool(valuesEqual(a, b)))
		return nil
	})
}

// NotEqual is the negation of Equal.
func NotEqual() Op {
	return OpFunc(func(m *Machine) error {
		b, err := m.Pop()
		if err != nil {
			return err
		}
		a, err := m.Pop()
		if err != nil {
			return err
		}
		m.Push(primitives.NewBool(!valuesEqual(a, b)))
		return nil
	})
}

// valuesEqual compares two numeric values by units and decimal magnitude,
// so an int and a decimal of equal magnitude are equal; any other pair
// falls back to Value.Equal.
func valuesEqual(a, b primitives.Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		if a.Units() != b.Units() {
			return false
		}
		da, _ := a.Decimal()
		db, _ := b.Decimal()
		return da.Equal(db)
	}
	return a.Equal(b)
}

// LessThan pops (a, b) and pushes a < b.
func LessThan() Op {
	return OpFunc(func(m *Machine) error {
		return comparisonOp(m, func(a, b decimal.Decimal) bool { return a.LessThan(b) })
	})
}

// LessOrEqual pops (a, b) and pushes a <= b.
func LessOrEqual() Op {
	return OpFunc(func(m *Machine) error {
		return comparisonOp(m, func(a, b decimal.Decimal) bool { return a.LessThanOrEqual(b) })
	})
}

// GreaterThan pops (a, b) and pushes a > b.
func GreaterThan() Op {
	return OpFunc(func(m *Machine) error {
		return comparisonOp(m, func(a, b decimal.Decimal) bool { return a.GreaterThan(b) })
	})
}

// GreaterOrEqual pops (a, b) and pushes a >= b.
func GreaterOrEqual() Op {
	return OpFunc(func(m *Machine) error {
		return comparisonOp(m, func(a, b decimal.Decimal) bool { return a.GreaterThanOrEqual(b) })
	})
}

func popFloatSlice(m *Machine) ([]float64, primitives.Tag, error) {
	v, err := m.Pop()
	if err != nil {
		return nil, "", err
	}
	dist, err := v.Distribution()
	if err != nil {
		return nil, "", err
	}
	values := dist.Values()
	floats := make([]float64, 0, len(values))
	var units primitives.Tag
	for i, entry := range values {
		d, err := entry.Decimal()
		if err != nil {
			return nil, "", err
		}
		if i == 0 {
			units = entry.Units()
		}
		f, _ := d.Float64()
		floats = append(floats, f)
	}
	return floats, units, nil
}

// Count pops a Distribution and pushes its length as an int Value.
func Count() Op {
	return OpFunc(func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}
		dist, err := v.Distribution()
		if err != nil {
			return err
		}
		m.Push(primitives.NewInt(int64(dist.Len()), primitives.Count))
		return nil
	})
}

// Max pops a Distribution and pushes its maximum value.
func Max() Op {
	return OpFunc(func(m *Machine) error {
		floats, units, err := popFloatSlice(m)
		if err != nil {
			return err
		}
		if len(floats) == 0 {
			return fmt.Errorf("%w: max of an empty distribution", primitives.ErrMath)
		}
		best := floats[0]
		for _, f := range floats[1:] {
			if f > best {
				best = f
			}
		}
		m.Push(primitives.NewDecimal(decimal.NewFromFloat(best), units))
		return nil
	})
}

// Min pops a Distribution and pushes its minimum value.
func Min() Op {
	return OpFunc(func(m *Machine) error {
		floats, units, err := popFloatSlice(m)
		if err != nil {
			return err
		}
		if len(floats) == 0 {
			return fmt.Errorf("%w: min of an empty distribution", primitives.ErrMath)
		}
		best := floats[0]
		for _, f := range floats[1:] {
			if f < best {
				best = f
			}
		}
		m.Push(primitives.NewDecimal(decimal.NewFromFloat(best), units))
		return nil
	})
}

// Mean pops a Distribution and pushes its arithmetic mean, via
// gonum.org/v1/gonum/stat.Mean.
func Mean() Op {
	return OpFunc(func(m *Machine) error {
		floats, units, err := popFloatSlice(m)
		if err != nil {
			return err
		}
		if len(floats) == 0 {
			return fmt.Errorf("%w: mean of an empty distribution", primitives.ErrMath)
		}
		mean := stat.Mean(floats, nil)
		m.Push(primitives.NewDecimal(decimal.NewFromFloat(mean), units))
		return nil
	})
}

// Std pops a Distribution and pushes its sample standard deviation, via
// gonum.org/v1/gonum/stat.StdDev.
func Std() Op {
	return OpFunc(func(m *Machine) error {
		floats, units, err := popFloatSlice(m)
		if err != nil {
			return err
		}
		if len(floats) < 2 {
			return fmt.Errorf("%w: std of fewer than 2 samples", primitives.ErrMath)
		}
		sd := stat.StdDev(floats, nil)
		m.Push(primitives.NewDecimal(decimal.NewFromFloat(sd), units))
		return nil
	})
}

// Sum pops a Distribution and pushes the sum of its members.
func Sum() Op {
	return OpFunc(func(m *Machine) error {
		floats, units, err := popFloatSlice(m)
		if err != nil {
			return err
		}
		total := 0.0
		for _, f := range floats {
			total += f
		}
		m.Push(primitives.NewDecimal(decimal.NewFromFloat(total), units))
		return nil
	})
}

// Bound clamps the popped numeric value against optional min/max bounds
// also taken from the stack, in (value, [min], [max]) push order.
func Bound(hasMin, hasMax bool) Op {
	return OpFunc(func(m *Machine) error {
		var maxV, minV decimal.Decimal
		if hasMax {
			v, err := m.Pop()
			if err != nil {
				return err
			}
			maxV, err = v.Decimal()
			if err != nil {
				return err
			}
		}
		if hasMin {
			v, err := m.Pop()
			if err != nil {
				return err
			}
			minV, err = v.Decimal()
			if err != nil {
				return err
			}
		}
		v, err := m.Pop()
		if err != nil {
			return err
		}
		d, err := v.Decimal()
		if err != nil {
			return err
		}
		if hasMin && d.LessThan(minV) {
			d = minV
		}
		if hasMax && d.GreaterThan(maxV) {
			d = maxV
		}
		m.Push(primitives.NewDecimal(d, v.Units()))
		return nil
	})
}

// ApplyMap rescales a numeric operand from a source range onto a
// destination range through a named response curve. Stack on entry, bottom
// to top: operand, from_low, from_high, to_low, to_high. The operand's
// position within [from_low, from_high] is normalized to a fraction, run
// through the curve, then projected onto [to_low, to_high]; the result
// carries the destination range's units. "linear", "sigmoid", and
// "quadratic" are built in; any other name is looked up in the Machine's
// bound MapMethodRegistry.
func ApplyMap(method string) Op {
	return OpFunc(func(m *Machine) error {
		popFloat := func() (float64, primitives.Tag, error) {
			v, err := m.Pop()
			if err != nil {
				return 0, "", err
			}
			d, err := v.Decimal()
			if err != nil {
				return 0, "", err
			}
			f, _ := d.Float64()
			return f, v.Units(), nil
		}
		toHigh, toUnits, err := popFloat()
		if err != nil {
			return err
		}
		toLow, _, err := popFloat()
		if err != nil {
			return err
		}
		fromHigh, _, err := popFloat()
		if err != nil {
			return err
		}
		fromLow, _, err := popFloat()
		if err != nil {
			return err
		}
		operand, _, err := popFloat()
		if err != nil {
			return err
		}
		if fromHigh == fromLow {
			return fmt.Errorf("%w: degenerate map source range [%v, %v]", primitives.ErrMath, fromLow, fromHigh)
		}

		fraction := (operand - fromLow) / (fromHigh - fromLow)
		switch method {
		case "linear":
			// identity curve
		case "sigmoid":
			fraction = 1 / (1 + math.Exp(-(fraction*12 - 6)))
		case "quadratic":
			fraction = fraction * fraction
		default:
			fn, ok := m.MapMethods().Lookup(method)
			if !ok {
				return fmt.Errorf("%w: unknown map method %q", primitives.ErrProgram, method)
			}
			fraction, err = fn(fraction)
			if err != nil {
				return err
			}
		}

		result := toLow + fraction*(toHigh-toLow)
		m.Push(primitives.NewDecimal(decimal.NewFromFloat(result), toUnits))
		return nil
	})
}

// Cast pops a numeric value and converts it to destination units via the
// Machine's bound ConversionEngine, honoring force to bypass an
// unregistered conversion.
func Cast(destination primitives.Tag, force bool) Op {
	return OpFunc(func(m *Machine) error {
		if m.units == nil {
			return fmt.Errorf("%w: cast with no conversion engine bound", primitives.ErrProgram)
		}
		v, err := m.Pop()
		if err != nil {
			return err
		}
		d, err := v.Decimal()
		if err != nil {
			return err
		}
		converted, err := m.units.Convert(d, v.Units(), destination, force)
		if err != nil {
			return err
		}
		m.Push(primitives.NewDecimal(converted, destination))
		return nil
	})
}

// ExecuteSpatialQuery pops the query operand and pushes the matching
// entities as a Distribution of entity-reference Values. A numeric operand
// is a search distance around the entity the resolver is bound to; an
// entity-reference wrapping a Geometry is an explicit search region.
func ExecuteSpatialQuery(resolver TargetResolver) Op {
	return OpFunc(func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}
		if resolver == nil {
			resolver = m.targets
		}
		if resolver == nil {
			return fmt.Errorf("%w: spatial query with no target resolver bound", primitives.ErrProgram)
		}

		var dist *primitives.Distribution
		if v.IsNumeric() {
			d, err := v.Decimal()
			if err != nil {
				return err
			}
			radius, _ := d.Float64()
			dist, err = resolver.QueryDistance(radius)
			if err != nil {
				return err
			}
		} else {
			region, ok := geometryOf(v)
			if !ok {
				return fmt.Errorf("%w: spatial query operand is neither a distance nor a geometry", primitives.ErrType)
			}
			dist, err = resolver.Query(region)
			if err != nil {
				return err
			}
		}
		m.Push(primitives.NewDistribution(dist))
		return nil
	})
}

// TargetResolverFactory scopes a bound TargetResolver to one entity type.
// The orchestrator's per-invocation resolver implements this so a compiled
// query can name its target ("Patch", "Tree") while the binding stays a
// run-time concern.
type TargetResolverFactory interface {
	TargetsFor(name string) TargetResolver
}

// SpatialQueryFor is ExecuteSpatialQuery scoped to the named target entity
// type, when the Machine's bound resolver supports scoping; otherwise it
// falls back to the unscoped resolver.
func SpatialQueryFor(target string) Op {
	return OpFunc(func(m *Machine) error {
		resolver := m.targets
		if factory, ok := resolver.(TargetResolverFactory); ok {
			resolver = factory.TargetsFor(target)
		}
		return ExecuteSpatialQuery(resolver).Execute(m)
	})
}

// geometryOf extracts a Geometry carried in a Value. Geometries travel as
// entity-references whose wrapped Entity also satisfies the narrower
// Geometry capability (production.GeometryEntity).
func geometryOf(v primitives.Value) (primitives.Geometry, bool) {
	ent, err := v.EntityRef()
	if err != nil {
		return nil, false
	}
	g, ok := ent.(primitives.Geometry)
	return g, ok
}

// ReadResource pushes the contents of the named external resource at the
// bound entity's location, as a Distribution. Reads go through the
// Machine's bound ExternalReader (the replicate's cache), so only the
// first read of a (resource, location) pair pays the I/O.
func ReadResource(pathOrURL string) Op {
	return OpFunc(func(m *Machine) error {
		if m.externals == nil {
			return fmt.Errorf("%w: read_resource %q with no external reader bound", primitives.ErrProgram, pathOrURL)
		}
		dist, err := m.externals.ReadExternal(pathOrURL)
		if err != nil {
			return err
		}
		m.Push(primitives.NewDistribution(dist))
		return nil
	})
}

// CreateEntity pops a count and instantiates that many new entities of
// name via the Machine's bound EntityCreator, pushing a Distribution of
// references to them.
func CreateEntity(name string) Op {
	return OpFunc(func(m *Machine) error {
		if m.creator == nil {
			return fmt.Errorf("%w: create_entity %q with no creator bound", primitives.ErrProgram, name)
		}
		cv, err := m.Pop()
		if err != nil {
			return err
		}
		cd, err := cv.Decimal()
		if err != nil {
			return err
		}
		count := int(cd.IntPart())
		if count < 0 {
			return fmt.Errorf("%w: create_entity %q with negative count %d", primitives.ErrMath, name, count)
		}
		refs := make([]primitives.Value, count)
		for i := 0; i < count; i++ {
			ent, err := m.creator.CreateEntity(name)
			if err != nil {
				return err
			}
			refs[i] = primitives.NewEntityRef(ent)
		}
		m.Push(primitives.NewDistribution(primitives.NewDistributionOf(refs...)))
		return nil
	})
}

// Sample pops (count, target) — count on top — and pushes a Distribution
// of count values drawn from target. With replacement, each draw is
// independent; without, drawn members are removed from the candidate pool,
// and asking for more members than the target holds is ErrMath. src picks
// an index in [0, n); nil uses the package default source.
func Sample(withReplacement bool, src func(n int) int) Op {
	if src == nil {
		src = rand.Intn
	}
	return OpFunc(func(m *Machine) error {
		cv, err := m.Pop()
		if err != nil {
			return err
		}
		cd, err := cv.Decimal()
		if err != nil {
			return err
		}
		count := int(cd.IntPart())
		if count < 0 {
			return fmt.Errorf("%w: negative sample count %d", primitives.ErrMath, count)
		}

		tv, err := m.Pop()
		if err != nil {
			return err
		}
		target, err := tv.Distribution()
		if err != nil {
			return err
		}
		if target.Len() == 0 && count > 0 {
			return fmt.Errorf("%w: sample of an empty distribution", primitives.ErrMath)
		}

		var drawn []primitives.Value
		if withReplacement {
			drawn = make([]primitives.Value, count)
			for i := 0; i < count; i++ {
				drawn[i] = target.Values()[src(target.Len())]
			}
		} else {
			if count > target.Len() {
				return fmt.Errorf("%w: sample of %d from %d members without replacement", primitives.ErrMath, count, target.Len())
			}
			pool := make([]primitives.Value, target.Len())
			copy(pool, target.Values())
			drawn = make([]primitives.Value, count)
			for i := 0; i < count; i++ {
				j := src(len(pool))
				drawn[i] = pool[j]
				pool[j] = pool[len(pool)-1]
				pool = pool[:len(pool)-1]
			}
		}
		m.Push(primitives.NewDistribution(primitives.NewDistributionOf(drawn...)))
		return nil
	})
}

// RandUniform pushes a draw from the uniform distribution on [low, high).
func RandUniform(low, high float64, units primitives.Tag) Op {
	dist := distuv.Uniform{Min: low, Max: high}
	return OpFunc(func(m *Machine) error {
		if high < low {
			return fmt.Errorf("%w: uniform range [%v, %v) is inverted", primitives.ErrMath, low, high)
		}
		m.Push(primitives.NewDecimal(decimal.NewFromFloat(dist.Rand()), units))
		return nil
	})
}

// RandNorm pushes a draw from the normal distribution N(mean, stdev).
func RandNorm(mean, stdev float64, units primitives.Tag) Op {
	dist := distuv.Normal{Mu: mean, Sigma: stdev}
	return OpFunc(func(m *Machine) error {
		if stdev < 0 {
			return fmt.Errorf("%w: negative standard deviation %v", primitives.ErrMath, stdev)
		}
		m.Push(primitives.NewDecimal(decimal.NewFromFloat(dist.Rand()), units))
		return nil
	})
}

// Concat pops (a, b) and pushes their string concatenation. Non-string
// operands render through their display form, so a program can splice a
// number into a label without an explicit cast.
func Concat() Op {
	return OpFunc(func(m *Machine) error {
		b, err := m.Pop()
		if err != nil {
			return err
		}
		a, err := m.Pop()
		if err != nil {
			return err
		}
		sa, err := displayString(a)
		if err != nil {
			return err
		}
		sb, err := displayString(b)
		if err != nil {
			return err
		}
		m.Push(primitives.NewString(sa+sb, a.Units()))
		return nil
	})
}

func displayString(v primitives.Value) (string, error) {
	switch v.Kind() {
	case primitives.KindString:
		return v.String()
	case primitives.KindDecimal, primitives.KindInt:
		d, err := v.Decimal()
		if err != nil {
			return "", err
		}
		return d.String(), nil
	case primitives.KindBool:
		b, err := v.Bool()
		if err != nil {
			return "", err
		}
		if b {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("%w: cannot concat %s", primitives.ErrType, v.Kind())
	}
}

// Debug logs the current stack top under label without consuming it.
func Debug(label string) Op {
	return OpFunc(func(m *Machine) error {
		log.Printf("DEBUG: %s stack_top=%v", label, m.Peek())
		return nil
	})
}

// End marks the program as finished.
func End() Op {
	return OpFunc(func(m *Machine) error {
		m.End()
		return nil
	})
}

// IsEnded pushes whether End has already been called.
func IsEnded() Op {
	return OpFunc(func(m *Machine) error {
		m.Push(primitives.NewBool(m.Ended()))
		return nil
	})
}
