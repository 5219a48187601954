package core

import (
	"testing"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

func TestResolveHandlersStateAgnosticOnly(t *testing.T) {
	schema := buildTestSchema(t)
	entity := NewMutableEntity(schema, primitives.NewGridPoint(0, 0), true, 0)
	ageIdx, _ := schema.IndexOf("age")

	groups, err := ResolveHandlers(entity, ageIdx, primitives.Step)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 handler group, got %d", len(groups))
	}
}

func TestResolveHandlersLayersStateQualified(t *testing.T) {
	cfg := primitives.NewEntityConfig("Agent").
		WithInitial("state", primitives.NewString("alive", primitives.Unitless)).
		WithInitial("age", primitives.NewInt(0, primitives.Count)).
		WithHandler(primitives.EventKey{Attribute: "age", Event: primitives.Step},
			primitives.EventHandler{Action: "base"}).
		WithHandler(primitives.EventKey{Attribute: "age", Event: primitives.Step, State: "alive"},
			primitives.EventHandler{Action: "aliveOnly"})
	schema, err := BuildSchema(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entity := NewMutableEntity(schema, primitives.NewGridPoint(0, 0), true, 0)
	ageIdx, _ := schema.IndexOf("age")

	groups, err := ResolveHandlers(entity, ageIdx, primitives.Step)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected unqualified + state-qualified groups, got %d", len(groups))
	}
}

func TestSelectHandlerFallsBackToUnconditional(t *testing.T) {
	groups := []primitives.EventHandlerGroup{
		{Handlers: []primitives.EventHandler{
			{Selector: "never-matches", Action: "skip"},
			{Selector: nil, Action: "fallback"},
		}},
	}
	evaluate := func(s primitives.SelectorRef) (bool, error) { return false, nil }
	handler, ok, err := SelectHandler(groups, evaluate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a match via the unconditional fallback")
	}
	if handler.Action != "fallback" {
		t.Errorf("expected fallback handler selected, got %v", handler.Action)
	}
}

func TestSelectHandlerNoMatch(t *testing.T) {
	groups := []primitives.EventHandlerGroup{
		{Handlers: []primitives.EventHandler{{Selector: "never-matches", Action: "skip"}}},
	}
	evaluate := func(s primitives.SelectorRef) (bool, error) { return false, nil }
	_, ok, err := SelectHandler(groups, evaluate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no match")
	}
}
