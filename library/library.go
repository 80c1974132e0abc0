// Package library keeps timestamped JSON snapshots of presets on disk, next
// to the config. Flash holds a handful of user slots; the library holds
// everything else.
package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fmsynth/synth"
)

const stampLayout = "2006-01-02_15-04-05"

// Entry is a saved snapshot (for listing)
type Entry struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

// Snapshot is the file format
type Snapshot struct {
	Name  string      `json:"name"`
	Saved time.Time   `json:"saved"`
	Model synth.Model `json:"model"`
}

// Library is a directory of snapshots
type Library struct {
	Dir string
}

// DefaultDir returns ~/.config/fmsynth/library
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "fmsynth", "library"), nil
}

// Open returns the library in dir, or the default one when dir is empty
func Open(dir string) (*Library, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &Library{Dir: dir}, nil
}

// List returns snapshots, newest first
func (l *Library) List() ([]Entry, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}

	var out []Entry
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		// 2024-01-15_14-30-00.json or 2024-01-15_14-30-00_name.json
		base := strings.TrimSuffix(name, ".json")
		if len(base) < len(stampLayout) {
			continue
		}
		ts, err := time.Parse(stampLayout, base[:len(stampLayout)])
		if err != nil {
			continue
		}

		e := Entry{Filename: name, Timestamp: ts}
		if len(base) > len(stampLayout)+1 && base[len(stampLayout)] == '_' {
			e.Name = base[len(stampLayout)+1:]
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Filename > out[j].Filename
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Save writes a snapshot of m and returns its filename
func (l *Library) Save(name string, m synth.Model) (string, error) {
	return l.save(name, m, time.Now())
}

func (l *Library) save(name string, m synth.Model, now time.Time) (string, error) {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(Snapshot{Name: name, Saved: now, Model: m}, "", "  ")
	if err != nil {
		return "", err
	}

	filename := now.Format(stampLayout)
	if safe := sanitizeFilename(name); safe != "" {
		filename += "_" + safe
	}
	filename += ".json"

	if err := os.WriteFile(filepath.Join(l.Dir, filename), data, 0644); err != nil {
		return "", err
	}
	return filename, nil
}

// Load reads a snapshot. An empty filename loads the most recent one; a
// filename without ".json" is matched against snapshot names.
func (l *Library) Load(filename string) (Snapshot, error) {
	var snap Snapshot

	if filename == "" || !strings.HasSuffix(filename, ".json") {
		entries, err := l.List()
		if err != nil {
			return snap, err
		}
		found := ""
		for _, e := range entries {
			if filename == "" || e.Name == sanitizeFilename(filename) {
				found = e.Filename
				break
			}
		}
		if found == "" {
			if filename == "" {
				return snap, fmt.Errorf("library %s is empty", l.Dir)
			}
			return snap, fmt.Errorf("no snapshot named %q", filename)
		}
		filename = found
	}

	data, err := os.ReadFile(filepath.Join(l.Dir, filename))
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse %s: %w", filename, err)
	}
	snap.Model.Clamp()
	return snap, nil
}

// Record converts a snapshot for storage in a user slot
func (s Snapshot) Record() synth.PresetRecord {
	return synth.NewPresetRecord(s.Name, s.Model)
}

// Delete removes a snapshot file
func (l *Library) Delete(filename string) error {
	return os.Remove(filepath.Join(l.Dir, filename))
}

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	return strings.NewReplacer(
		" ", "-", "/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
	).Replace(name)
}
