package extensibility

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

type mapResolver map[string]primitives.Value

func (r mapResolver) ResolveAttribute(name string) (primitives.Value, error) {
	v, ok := r[name]
	if !ok {
		return primitives.Empty, fmt.Errorf("%w: no attribute %q", primitives.ErrResolution, name)
	}
	return v, nil
}

type fixedTargets struct {
	dist         *primitives.Distribution
	lastDistance float64
}

func (f *fixedTargets) Query(region primitives.Geometry) (*primitives.Distribution, error) {
	return f.dist, nil
}

func (f *fixedTargets) QueryDistance(distance float64) (*primitives.Distribution, error) {
	f.lastDistance = distance
	return f.dist, nil
}

func newTestMachine(r Resolver, t TargetResolver) *Machine {
	return NewMachine(r, t, nil, nil, nil, primitives.NewConversionEngine(nil))
}

func mustDecimal(t *testing.T, v primitives.Value) decimal.Decimal {
	t.Helper()
	d, err := v.Decimal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return d
}

func TestRunArithmeticProgram(t *testing.T) {
	m := newTestMachine(nil, nil)
	program := Program{
		PushConst(primitives.NewDecimal(decimal.NewFromInt(4), "m")),
		PushConst(primitives.NewDecimal(decimal.NewFromInt(3), "m")),
		Add(),
	}
	result, err := m.Run(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mustDecimal(t, result).Equal(decimal.NewFromInt(7)) {
		t.Errorf("expected 7, got %v", result)
	}
	if result.Units() != "m" {
		t.Errorf("expected units m, got %q", result.Units())
	}
}

func TestRunStopsAtEnd(t *testing.T) {
	m := newTestMachine(nil, nil)
	program := Program{
		PushConst(primitives.NewInt(1, primitives.Count)),
		End(),
		PushConst(primitives.NewInt(99, primitives.Count)),
	}
	result, err := m.Run(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, _ := result.Int()
	if n != 1 {
		t.Errorf("expected End to stop execution at 1, got %d", n)
	}
	if !m.Ended() {
		t.Error("expected machine to report ended")
	}
}

func TestPushAttributeUsesResolver(t *testing.T) {
	r := mapResolver{"prior.age": primitives.NewInt(7, primitives.Count)}
	m := newTestMachine(r, nil)
	result, err := m.Run(Program{PushAttribute("prior.age")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, _ := result.Int()
	if n != 7 {
		t.Errorf("expected 7, got %d", n)
	}
}

func TestPushAttributeUnknownIsResolutionError(t *testing.T) {
	m := newTestMachine(mapResolver{}, nil)
	_, err := m.Run(Program{PushAttribute("nope")})
	if !errors.Is(err, primitives.ErrResolution) {
		t.Errorf("expected ErrResolution, got %v", err)
	}
}

func TestLoadLocalRoundTrip(t *testing.T) {
	m := newTestMachine(nil, nil)
	program := Program{
		PushConst(primitives.NewInt(5, primitives.Count)),
		SaveLocal("n"),
		Pop(),
		LoadLocal("n"),
	}
	result, err := m.Run(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, _ := result.Int()
	if n != 5 {
		t.Errorf("expected 5, got %d", n)
	}
}

func TestLoadLocalMissingIsResolutionError(t *testing.T) {
	m := newTestMachine(nil, nil)
	_, err := m.Run(Program{LoadLocal("ghost")})
	if !errors.Is(err, primitives.ErrResolution) {
		t.Errorf("expected ErrResolution, got %v", err)
	}
}

func TestPopOnEmptyStackIsProgramError(t *testing.T) {
	m := newTestMachine(nil, nil)
	_, err := m.Run(Program{Add()})
	if !errors.Is(err, primitives.ErrProgram) {
		t.Errorf("expected ErrProgram, got %v", err)
	}
}
