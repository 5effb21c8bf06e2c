// Package legacy reads and writes the single-blob mood snapshot kept by earlier,
// offline-only versions of the tracker. Two entry shapes exist in the wild: a bare
// mood string (version 1) and a {mood, comment} object (version 2). A blob may mix
// them; every entry is upgraded to version 2 on decode.
package legacy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"moodtracker/internal/core"
)

// StorageKey is the well-known name of the blob.
const StorageKey = "mood-tracker-data"

// Path returns the location of the blob inside dir.
func Path(dir string) string {
	return filepath.Join(dir, StorageKey+".json")
}

// Version tags the shape an entry was stored in.
type Version int

const (
	VersionUnknown Version = iota
	V1
	V2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unknown"
	}
}

// Record is one stored day in its version-tagged form.
type Record struct {
	Version Version
	Mood    string
	Comment string
}

type recordV2 struct {
	Mood    string `json:"mood"`
	Comment string `json:"comment,omitempty"`
}

// UnmarshalJSON accepts both entry shapes. Anything else decodes to VersionUnknown
// rather than failing the whole blob.
func (r *Record) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*r = Record{}
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var mood string
		if err := json.Unmarshal(b, &mood); err != nil {
			return nil
		}
		*r = Record{Version: V1, Mood: mood}
	case '{':
		var v recordV2
		if err := json.Unmarshal(b, &v); err != nil {
			return nil
		}
		*r = Record{Version: V2, Mood: v.Mood, Comment: v.Comment}
	}
	return nil
}

// MarshalJSON always writes the version 2 shape.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordV2{Mood: r.Mood, Comment: r.Comment})
}

// Blob is the whole stored document.
type Blob struct {
	Entries map[string]Record `json:"entries"`
}

// Parse decodes data without validating moods or dates. Corrupt JSON yields
// core.ErrMalformedLocalData.
func Parse(data []byte) (Blob, error) {
	var b Blob
	if len(bytes.TrimSpace(data)) == 0 {
		return b, fmt.Errorf("empty document: %w", core.ErrMalformedLocalData)
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return Blob{}, fmt.Errorf("decode %s: %w: %w", StorageKey, core.ErrMalformedLocalData, err)
	}
	return b, nil
}

// Upgrade converts every entry to a DayEntry. Entries with an unknown shape, an
// unknown mood or a malformed date are dropped; their keys are returned sorted.
func (b Blob) Upgrade() (core.Snapshot, []string) {
	snap := make(core.Snapshot, len(b.Entries))
	var dropped []string
	for key, rec := range b.Entries {
		date, err := core.ParseDateKey(key)
		if err != nil || rec.Version == VersionUnknown {
			dropped = append(dropped, key)
			continue
		}
		mood, err := core.ParseMood(rec.Mood)
		if err != nil {
			dropped = append(dropped, key)
			continue
		}
		snap[date] = core.DayEntry{Date: date, Mood: mood, Comment: rec.Comment}
	}
	sort.Strings(dropped)
	return snap, dropped
}

// Decode parses and upgrades data in one step.
func Decode(data []byte) (core.Snapshot, error) {
	b, err := Parse(data)
	if err != nil {
		return nil, err
	}
	snap, _ := b.Upgrade()
	return snap, nil
}

// Encode renders snap as a version 2 blob.
func Encode(snap core.Snapshot) ([]byte, error) {
	b := Blob{Entries: make(map[string]Record, len(snap))}
	for date, e := range snap {
		b.Entries[date.String()] = Record{Version: V2, Mood: string(e.Mood), Comment: e.Comment}
	}
	return json.MarshalIndent(b, "", "  ")
}

// Load reads the blob at path. A missing or unreadable file, or one that does not
// decode, yields an empty snapshot; the problem is logged and never returned.
func Load(path string) core.Snapshot {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("No local mood snapshot", "component", "legacy", "path", path)
		} else {
			slog.Warn("Failed to read local mood snapshot", "component", "legacy", "path", path, "error", err)
		}
		return core.Snapshot{}
	}

	b, err := Parse(data)
	if err != nil {
		slog.Warn("Ignoring corrupt local mood snapshot", "component", "legacy", "path", path, "error", err)
		return core.Snapshot{}
	}
	snap, dropped := b.Upgrade()
	if len(dropped) > 0 {
		slog.Warn("Dropped unreadable local mood entries",
			"component", "legacy", "path", path, "dropped", len(dropped), "keys", dropped)
	}
	return snap
}

// Save writes snap to path atomically through a temporary file in the same directory.
func Save(path string, snap core.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+StorageKey+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
