package primitives

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestConversionEngineNoopForIdenticalUnits(t *testing.T) {
	engine := NewConversionEngine(nil)
	got, err := engine.Convert(decimal.NewFromInt(5), "kg", "kg", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(5)) {
		t.Errorf("got %s, want 5", got)
	}
}

func TestConversionEngineAliasCanonicalization(t *testing.T) {
	aliases := NewAliasTable()
	aliases.Register("kilograms", "kg")
	engine := NewConversionEngine(aliases)
	got, err := engine.Convert(decimal.NewFromInt(7), "kilograms", "kg", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(7)) {
		t.Errorf("got %s, want 7 (alias should canonicalize to noop)", got)
	}
}

func TestConversionEngineRegisteredConversion(t *testing.T) {
	engine := NewConversionEngine(nil)
	engine.Register("g", "kg", func(d decimal.Decimal) (decimal.Decimal, error) {
		return d.Div(decimal.NewFromInt(1000)), nil
	})
	got, err := engine.Convert(decimal.NewFromInt(1500), "g", "kg", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := decimal.NewFromFloat(1.5)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestConversionEngineUnregisteredFailsWithoutForce(t *testing.T) {
	engine := NewConversionEngine(nil)
	_, err := engine.Convert(decimal.NewFromInt(1), "g", "kg", false)
	if !errors.Is(err, ErrUnit) {
		t.Errorf("expected ErrUnit, got %v", err)
	}
}

func TestConversionEngineForcePassesThroughUnregistered(t *testing.T) {
	engine := NewConversionEngine(nil)
	got, err := engine.Convert(decimal.NewFromInt(42), "g", "kg", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(42)) {
		t.Errorf("forced unregistered conversion should pass magnitude through unchanged, got %s", got)
	}
}
