// Package production provides production integrations around the substep
// engine: frozen-snapshot export to disk, live snapshot streaming, the
// external resource cache, and identity keys for replay tooling.
package production

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/SchmidtDSE/josh/internal/core"
	"github.com/SchmidtDSE/josh/internal/primitives"
)

// Snapshot is the serializable form of one FrozenEntity: type name,
// identity, location, and the attribute values at freeze time.
type Snapshot struct {
	Entity     string            `json:"entity" yaml:"entity"`
	SequenceID uint64            `json:"sequence_id" yaml:"sequence_id"`
	X          float64           `json:"x" yaml:"x"`
	Y          float64           `json:"y" yaml:"y"`
	Step       uint64            `json:"step" yaml:"step"`
	Attributes map[string]string `json:"attributes" yaml:"attributes"`
}

// SnapshotOf flattens a FrozenEntity into its serializable form, rendering
// each attribute value as text so numeric precision survives the trip
// through JSON.
func SnapshotOf(frozen *core.FrozenEntity, step uint64) Snapshot {
	names := frozen.AttributeNames()
	attrs := make(map[string]string, len(names))
	for i, name := range names {
		attrs[name] = renderValue(frozen.Values()[i])
	}
	return Snapshot{
		Entity:     frozen.Name(),
		SequenceID: frozen.SequenceID(),
		X:          frozen.Geometry().CenterX(),
		Y:          frozen.Geometry().CenterY(),
		Step:       step,
		Attributes: attrs,
	}
}

func renderValue(v primitives.Value) string {
	switch v.Kind() {
	case primitives.KindEmpty:
		return ""
	case primitives.KindDecimal, primitives.KindInt:
		d, err := v.Decimal()
		if err != nil {
			return ""
		}
		if v.Units() == "" {
			return d.String()
		}
		return fmt.Sprintf("%s %s", d, v.Units())
	case primitives.KindBool:
		b, _ := v.Bool()
		return fmt.Sprintf("%t", b)
	case primitives.KindString:
		s, _ := v.String()
		return s
	case primitives.KindDistribution:
		dist, _ := v.Distribution()
		return fmt.Sprintf("distribution[%d]", dist.Len())
	case primitives.KindEntityRef:
		if f, ok := mustEntityRef(v).(*core.FrozenEntity); ok {
			return fmt.Sprintf("%s#%d", f.Name(), f.SequenceID())
		}
		return "entity"
	default:
		return ""
	}
}

func mustEntityRef(v primitives.Value) primitives.Entity {
	ent, _ := v.EntityRef()
	return ent
}

// JSONSnapshotWriter is a file-based snapshot exporter using JSON
// serialization, one file per (entity, step).
type JSONSnapshotWriter struct {
	dir string
}

// NewJSONSnapshotWriter creates a JSONSnapshotWriter, ensuring the
// directory exists.
func NewJSONSnapshotWriter(dir string) (*JSONSnapshotWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &JSONSnapshotWriter{dir: dir}, nil
}

// Write serializes snapshot to <dir>/<entity>-<seq>-<step>.json.
func (w *JSONSnapshotWriter) Write(snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	fn := filepath.Join(w.dir, fmt.Sprintf("%s-%d-%d.json", snapshot.Entity, snapshot.SequenceID, snapshot.Step))
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}
	return nil
}

// YAMLSnapshotWriter is a file-based snapshot exporter using YAML
// serialization.
type YAMLSnapshotWriter struct {
	dir string
}

// NewYAMLSnapshotWriter creates a YAMLSnapshotWriter, ensuring the
// directory exists.
func NewYAMLSnapshotWriter(dir string) (*YAMLSnapshotWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &YAMLSnapshotWriter{dir: dir}, nil
}

// Write serializes snapshot to <dir>/<entity>-<seq>-<step>.yaml.
func (w *YAMLSnapshotWriter) Write(snapshot Snapshot) error {
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	fn := filepath.Join(w.dir, fmt.Sprintf("%s-%d-%d.yaml", snapshot.Entity, snapshot.SequenceID, snapshot.Step))
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}
	return nil
}

// ReadSnapshot loads a previously written JSON snapshot, primarily for
// replay and diff tooling.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", path, err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("json unmarshal: %w", err)
	}
	return s, nil
}
