package core

import (
	"testing"
	"time"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

func TestLockSetOrdersBySequenceID(t *testing.T) {
	schema := buildTestSchema(t)
	a := NewMutableEntity(schema, primitives.NewGridPoint(0, 0), true, 0)
	b := NewMutableEntity(schema, primitives.NewGridPoint(1, 0), true, 0)
	// Force b's sequence_id to be assigned first so construction order
	// and sequence order disagree, exercising the sort.
	b.SequenceID()
	a.SequenceID()

	ls := NewLockSet(LockToken(1), b, a)
	if ls.entities[0].SequenceID() >= ls.entities[1].SequenceID() {
		t.Error("expected entities ordered by ascending sequence_id")
	}
}

func TestLockSetAcquireAndRelease(t *testing.T) {
	schema := buildTestSchema(t)
	a := NewMutableEntity(schema, primitives.NewGridPoint(0, 0), true, 0)
	b := NewMutableEntity(schema, primitives.NewGridPoint(1, 0), true, 0)

	ls := NewLockSet(LockToken(7), a, b)
	if err := ls.Acquire(time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ls.Abort()

	// Both should now be lockable by a different token.
	if err := a.TryLock(LockToken(8), time.Second); err != nil {
		t.Errorf("expected a to be unlocked after Abort, got %v", err)
	}
	if err := b.TryLock(LockToken(8), time.Second); err != nil {
		t.Errorf("expected b to be unlocked after Abort, got %v", err)
	}
}

func TestLockSetDeduplicatesSameEntity(t *testing.T) {
	schema := buildTestSchema(t)
	a := NewMutableEntity(schema, primitives.NewGridPoint(0, 0), true, 0)
	ls := NewLockSet(LockToken(1), a, a, a)
	if len(ls.entities) != 1 {
		t.Errorf("expected duplicate references to the same entity to collapse to 1, got %d", len(ls.entities))
	}
}
