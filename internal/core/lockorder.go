package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

// LockSet acquires locks on a group of entities that must all be held at
// once (a handler touching more than one entity, e.g. a spatial query
// followed by a write). Entities are always locked in ascending
// (patch_index, sequence_id) order; when an acquisition can't complete
// within the per-entity timeout, every lock already held is released and
// ErrContention is returned, so a caller can retry the whole set rather
// than deadlock against another goroutine working the same entities in a
// different order.
type LockSet struct {
	entities []*MutableEntity
	held     []*MutableEntity
	token    LockToken
}

// NewLockSet orders entities and prepares them for acquisition under token.
// Duplicate entities in the input are deduplicated by sequence_id so a
// handler that references the same entity twice doesn't self-deadlock.
func NewLockSet(token LockToken, entities ...*MutableEntity) *LockSet {
	seen := make(map[uint64]bool, len(entities))
	ordered := make([]*MutableEntity, 0, len(entities))
	for _, e := range entities {
		id := e.SequenceID()
		if seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.PatchIndex() != b.PatchIndex() {
			return a.PatchIndex() < b.PatchIndex()
		}
		return a.SequenceID() < b.SequenceID()
	})
	return &LockSet{entities: ordered, token: token}
}

// Acquire locks every entity in the set in order, timing each acquisition
// out after perEntityTimeout. On contention it releases everything it had
// acquired and returns a wrapped ErrContention; the caller should treat
// this as a signal to retry the entire operation, not resume mid-set.
func (ls *LockSet) Acquire(perEntityTimeout time.Duration) error {
	for _, e := range ls.entities {
		if err := e.TryLock(ls.token, perEntityTimeout); err != nil {
			ls.Abort()
			return fmt.Errorf("%w: lock set aborted acquiring seq=%d", primitives.ErrContention, e.SequenceID())
		}
		ls.held = append(ls.held, e)
	}
	return nil
}

// Abort unlocks every entity acquired so far, in reverse order. Callers use
// this both on contention (see Acquire) and once an operation that
// succeeded is done with the set — there is no separate "commit" step since
// entity locks guard access, not a transaction.
func (ls *LockSet) Abort() {
	for i := len(ls.held) - 1; i >= 0; i-- {
		ls.held[i].Unlock(ls.token)
	}
	ls.held = nil
}
