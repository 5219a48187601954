package extensibility

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

func pushDec(f float64, units primitives.Tag) Op {
	return PushConst(primitives.NewDecimal(decimal.NewFromFloat(f), units))
}

func TestAddRejectsMismatchedUnits(t *testing.T) {
	m := newTestMachine(nil, nil)
	_, err := m.Run(Program{pushDec(1, "m"), pushDec(1, "kg"), Add()})
	if !errors.Is(err, primitives.ErrUnit) {
		t.Errorf("expected ErrUnit, got %v", err)
	}
}

func TestDivideByZeroIsMathError(t *testing.T) {
	m := newTestMachine(nil, nil)
	_, err := m.Run(Program{pushDec(1, "m"), pushDec(0, "m"), Divide()})
	if !errors.Is(err, primitives.ErrMath) {
		t.Errorf("expected ErrMath, got %v", err)
	}
}

func TestComparisonOps(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		want bool
	}{
		{"less_than", LessThan(), true},
		{"less_or_equal", LessOrEqual(), true},
		{"greater_than", GreaterThan(), false},
		{"greater_or_equal", GreaterOrEqual(), false},
		{"equal", Equal(), false},
		{"not_equal", NotEqual(), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMachine(nil, nil)
			result, err := m.Run(Program{pushDec(2, "m"), pushDec(3, "m"), tc.op})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			b, err := result.Bool()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if b != tc.want {
				t.Errorf("2 vs 3: expected %v, got %v", tc.want, b)
			}
		})
	}
}

func distValue(units primitives.Tag, members ...float64) primitives.Value {
	values := make([]primitives.Value, len(members))
	for i, f := range members {
		values[i] = primitives.NewDecimal(decimal.NewFromFloat(f), units)
	}
	return primitives.NewDistribution(primitives.NewDistributionOf(values...))
}

func TestAggregationOps(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		want float64
	}{
		{"max", Max(), 9},
		{"min", Min(), 1},
		{"mean", Mean(), 4},
		{"sum", Sum(), 12},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMachine(nil, nil)
			result, err := m.Run(Program{PushConst(distValue("m", 1, 2, 9)), tc.op})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			f, _ := mustDecimal(t, result).Float64()
			if f != tc.want {
				t.Errorf("expected %v, got %v", tc.want, f)
			}
			if result.Units() != "m" {
				t.Errorf("expected units carried through, got %q", result.Units())
			}
		})
	}
}

func TestCountPushesDimensionlessCount(t *testing.T) {
	m := newTestMachine(nil, nil)
	result, err := m.Run(Program{PushConst(distValue("m", 1, 2, 9)), Count()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, _ := result.Int()
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
	if result.Units() != primitives.Count {
		t.Errorf("expected count units, got %q", result.Units())
	}
}

func TestStdNeedsTwoSamples(t *testing.T) {
	m := newTestMachine(nil, nil)
	_, err := m.Run(Program{PushConst(distValue("m", 1)), Std()})
	if !errors.Is(err, primitives.ErrMath) {
		t.Errorf("expected ErrMath, got %v", err)
	}
}

func TestBoundClampsBothSides(t *testing.T) {
	tests := []struct {
		name    string
		operand float64
		want    float64
	}{
		{"below_min", -5, 0},
		{"within", 5, 5},
		{"above_max", 15, 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMachine(nil, nil)
			program := Program{
				pushDec(tc.operand, "m"),
				pushDec(0, "m"),
				pushDec(10, "m"),
				Bound(true, true),
			}
			result, err := m.Run(program)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			f, _ := mustDecimal(t, result).Float64()
			if f != tc.want {
				t.Errorf("expected %v, got %v", tc.want, f)
			}
		})
	}
}

func TestApplyMapLinear(t *testing.T) {
	m := newTestMachine(nil, nil)
	// 5 within [0, 10] maps to 50 within [0, 100].
	program := Program{
		pushDec(5, "m"),
		pushDec(0, "m"),
		pushDec(10, "m"),
		pushDec(0, "percent"),
		pushDec(100, "percent"),
		ApplyMap("linear"),
	}
	result, err := m.Run(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, _ := mustDecimal(t, result).Float64()
	if f != 50 {
		t.Errorf("expected 50, got %v", f)
	}
	if result.Units() != "percent" {
		t.Errorf("expected destination units, got %q", result.Units())
	}
}

func TestApplyMapQuadratic(t *testing.T) {
	m := newTestMachine(nil, nil)
	program := Program{
		pushDec(5, "m"),
		pushDec(0, "m"),
		pushDec(10, "m"),
		pushDec(0, ""),
		pushDec(1, ""),
		ApplyMap("quadratic"),
	}
	result, err := m.Run(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, _ := mustDecimal(t, result).Float64()
	if f != 0.25 {
		t.Errorf("expected 0.25, got %v", f)
	}
}

func TestApplyMapRegisteredMethod(t *testing.T) {
	registry := NewMapMethodRegistry()
	registry.Register("invert", func(fraction float64) (float64, error) { return 1 - fraction, nil })
	m := NewMachine(nil, nil, nil, nil, registry, nil)
	program := Program{
		pushDec(2, "m"),
		pushDec(0, "m"),
		pushDec(10, "m"),
		pushDec(0, ""),
		pushDec(10, ""),
		ApplyMap("invert"),
	}
	result, err := m.Run(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, _ := mustDecimal(t, result).Float64()
	if f != 8 {
		t.Errorf("expected 8, got %v", f)
	}
}

func TestApplyMapUnknownMethodIsProgramError(t *testing.T) {
	m := newTestMachine(nil, nil)
	program := Program{
		pushDec(1, ""), pushDec(0, ""), pushDec(1, ""), pushDec(0, ""), pushDec(1, ""),
		ApplyMap("spline"),
	}
	_, err := m.Run(program)
	if !errors.Is(err, primitives.ErrProgram) {
		t.Errorf("expected ErrProgram, got %v", err)
	}
}

func TestCastConvertsThroughEngine(t *testing.T) {
	engine := primitives.NewConversionEngine(nil)
	engine.Register("g", "kg", func(d decimal.Decimal) (decimal.Decimal, error) {
		return d.Div(decimal.NewFromInt(1000)), nil
	})
	m := NewMachine(nil, nil, nil, nil, nil, engine)
	result, err := m.Run(Program{pushDec(1500, "g"), Cast("kg", false)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mustDecimal(t, result).Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("expected 1.5, got %v", result)
	}
	if result.Units() != "kg" {
		t.Errorf("expected kg, got %q", result.Units())
	}
}

func TestCastUnregisteredWithoutForceIsUnitError(t *testing.T) {
	m := newTestMachine(nil, nil)
	_, err := m.Run(Program{pushDec(1, "g"), Cast("kg", false)})
	if !errors.Is(err, primitives.ErrUnit) {
		t.Errorf("expected ErrUnit, got %v", err)
	}
}

func TestCastForceRetags(t *testing.T) {
	m := newTestMachine(nil, nil)
	result, err := m.Run(Program{pushDec(1500, "g"), Cast("kg", true)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Units() != "kg" {
		t.Errorf("expected kg, got %q", result.Units())
	}
	if !mustDecimal(t, result).Equal(decimal.NewFromInt(1500)) {
		t.Errorf("force keeps magnitude, got %v", result)
	}
}

func TestSampleWithoutReplacement(t *testing.T) {
	src := func(n int) int { return 0 }
	m := newTestMachine(nil, nil)
	program := Program{
		PushConst(distValue("m", 10, 20, 30)),
		PushConst(primitives.NewInt(2, primitives.Count)),
		Sample(false, src),
	}
	result, err := m.Run(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dist, err := result.Distribution()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dist.Len() != 2 {
		t.Fatalf("expected 2 draws, got %d", dist.Len())
	}
	// src always picks index 0, and without replacement the pool shrinks
	// with the last member swapped in: draws are 10 then 30.
	first, _ := dist.Values()[0].Decimal()
	second, _ := dist.Values()[1].Decimal()
	if !first.Equal(decimal.NewFromInt(10)) || !second.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected [10 30], got [%v %v]", first, second)
	}
}

func TestSampleWithoutReplacementOverdraw(t *testing.T) {
	m := newTestMachine(nil, nil)
	program := Program{
		PushConst(distValue("m", 1)),
		PushConst(primitives.NewInt(2, primitives.Count)),
		Sample(false, nil),
	}
	_, err := m.Run(program)
	if !errors.Is(err, primitives.ErrMath) {
		t.Errorf("expected ErrMath, got %v", err)
	}
}

func TestSampleWithReplacementCanRepeat(t *testing.T) {
	src := func(n int) int { return 0 }
	m := newTestMachine(nil, nil)
	program := Program{
		PushConst(distValue("m", 10, 20)),
		PushConst(primitives.NewInt(3, primitives.Count)),
		Sample(true, src),
	}
	result, err := m.Run(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dist, _ := result.Distribution()
	if dist.Len() != 3 {
		t.Fatalf("expected 3 draws, got %d", dist.Len())
	}
	for i, v := range dist.Values() {
		d, _ := v.Decimal()
		if !d.Equal(decimal.NewFromInt(10)) {
			t.Errorf("draw %d: expected repeated 10, got %v", i, d)
		}
	}
}

func TestRandUniformStaysInRange(t *testing.T) {
	m := newTestMachine(nil, nil)
	for i := 0; i < 100; i++ {
		result, err := m.Run(Program{RandUniform(2, 5, "m")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		f, _ := mustDecimal(t, result).Float64()
		if f < 2 || f >= 5 {
			t.Fatalf("draw %v outside [2, 5)", f)
		}
	}
}

func TestRandNormRejectsNegativeStdev(t *testing.T) {
	m := newTestMachine(nil, nil)
	_, err := m.Run(Program{RandNorm(0, -1, "m")})
	if !errors.Is(err, primitives.ErrMath) {
		t.Errorf("expected ErrMath, got %v", err)
	}
}

func TestConcatSplicesNumbers(t *testing.T) {
	m := newTestMachine(nil, nil)
	program := Program{
		PushConst(primitives.NewString("cell-", "")),
		PushConst(primitives.NewInt(7, primitives.Count)),
		Concat(),
	}
	result, err := m.Run(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := result.String()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "cell-7" {
		t.Errorf("expected cell-7, got %q", s)
	}
}

func TestSpatialQueryWithDistance(t *testing.T) {
	targets := &fixedTargets{dist: primitives.NewDistributionOf(
		primitives.NewInt(1, primitives.Count),
		primitives.NewInt(2, primitives.Count),
	)}
	m := newTestMachine(nil, targets)
	program := Program{
		PushConst(primitives.NewInt(1, primitives.Count)),
		ExecuteSpatialQuery(nil),
		Count(),
	}
	result, err := m.Run(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, _ := result.Int()
	if n != 2 {
		t.Errorf("expected 2 neighbors, got %d", n)
	}
	if targets.lastDistance != 1 {
		t.Errorf("expected distance 1 passed through, got %v", targets.lastDistance)
	}
}

func TestSpatialQueryWithNoResolverIsProgramError(t *testing.T) {
	m := newTestMachine(nil, nil)
	program := Program{
		PushConst(primitives.NewInt(1, primitives.Count)),
		ExecuteSpatialQuery(nil),
	}
	_, err := m.Run(program)
	if !errors.Is(err, primitives.ErrProgram) {
		t.Errorf("expected ErrProgram, got %v", err)
	}
}

type fixedExternals struct {
	dist  *primitives.Distribution
	calls int
}

func (f *fixedExternals) ReadExternal(pathOrURL string) (*primitives.Distribution, error) {
	f.calls++
	return f.dist, nil
}

func TestReadResourcePushesDistribution(t *testing.T) {
	ext := &fixedExternals{dist: primitives.NewDistributionOf(
		primitives.NewInt(1, "m"),
		primitives.NewInt(3, "m"),
	)}
	m := NewMachine(nil, nil, nil, ext, nil, nil)
	result, err := m.Run(Program{ReadResource("elevation.tif"), Count()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, _ := result.Int()
	if n != 2 {
		t.Errorf("expected 2 members, got %d", n)
	}
	if ext.calls != 1 {
		t.Errorf("expected one read, got %d", ext.calls)
	}
}

func TestReadResourceWithoutReaderIsProgramError(t *testing.T) {
	m := newTestMachine(nil, nil)
	_, err := m.Run(Program{ReadResource("elevation.tif")})
	if !errors.Is(err, primitives.ErrProgram) {
		t.Errorf("expected ErrProgram, got %v", err)
	}
}
