package production

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/SchmidtDSE/josh/internal/core"
	"github.com/SchmidtDSE/josh/internal/primitives"
)

func frozenFixture(t *testing.T) *core.FrozenEntity {
	t.Helper()
	cfg := primitives.NewEntityConfig("Tree").
		WithInitial("height", primitives.NewInt(3, "m")).
		WithInitial("alive", primitives.NewBool(true))
	schema, err := core.BuildSchema(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entity := core.NewMutableEntity(schema, primitives.NewGridPoint(2, 5), true, 0)
	return entity.Freeze()
}

func TestSnapshotOfRendersAttributes(t *testing.T) {
	snap := SnapshotOf(frozenFixture(t), 4)
	if snap.Entity != "Tree" {
		t.Errorf("expected Tree, got %q", snap.Entity)
	}
	if snap.X != 2 || snap.Y != 5 {
		t.Errorf("expected location (2, 5), got (%v, %v)", snap.X, snap.Y)
	}
	if snap.Step != 4 {
		t.Errorf("expected step 4, got %d", snap.Step)
	}
	if snap.Attributes["height"] != "3 m" {
		t.Errorf("expected height rendered as \"3 m\", got %q", snap.Attributes["height"])
	}
	if snap.Attributes["alive"] != "true" {
		t.Errorf("expected alive rendered as \"true\", got %q", snap.Attributes["alive"])
	}
}

func TestJSONSnapshotWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewJSONSnapshotWriter(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := SnapshotOf(frozenFixture(t), 0)
	if err := w.Write(snap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "Tree-*.json"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one snapshot file, got %v (%v)", matches, err)
	}
	loaded, err := ReadSnapshot(matches[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Entity != snap.Entity || loaded.Attributes["height"] != snap.Attributes["height"] {
		t.Errorf("round trip mismatch: %+v vs %+v", loaded, snap)
	}
}

func TestYAMLSnapshotWriterWritesFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewYAMLSnapshotWriter(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Write(SnapshotOf(frozenFixture(t), 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "Tree-*.yaml"))
	if len(matches) != 1 {
		t.Fatalf("expected one yaml file, got %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil || len(data) == 0 {
		t.Fatalf("expected yaml content, got %d bytes (%v)", len(data), err)
	}
}

func TestIdentityKeyDistinguishesCoLocatedEntities(t *testing.T) {
	point := primitives.NewGridPoint(0, 0)
	a := primitives.GeoKey{Geometry: point, EntityName: "Agent", SequenceID: 1}
	b := primitives.GeoKey{Geometry: point, EntityName: "Agent", SequenceID: 2}
	if !a.Equal(b) {
		t.Error("GeoKey equality is location-based; co-located keys should be equal")
	}
	if IdentityOf(a) == IdentityOf(b) {
		t.Error("IdentityKey must distinguish entities GeoKey conflates")
	}
}
