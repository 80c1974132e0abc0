package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"fmsynth/config"
	"fmsynth/engine"
	"fmsynth/flash"
	"fmsynth/library"
	"fmsynth/synth"
	"fmsynth/theme"
)

func newModel(t *testing.T) Model {
	t.Helper()
	cfg := config.DefaultConfig()
	dev, err := flash.NewMemDevice(cfg.Flash.Geometry)
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(cfg, dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewModel(e, theme.New(nil))
}

func press(t *testing.T, m Model, key string) Model {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	if cmd != nil {
		if res, ok := cmd().(resultMsg); ok && res.err != nil {
			t.Fatalf("%s: %v", key, res.err)
		}
	}
	return next.(Model)
}

func TestModel_NudgeBroadcastsToAllVoices(t *testing.T) {
	m := newModel(t)

	// Select feedback, then all voices
	for m.param != synth.ParamFeedback {
		m = press(t, m, "k")
	}
	for i := 0; i < synth.NumVoices; i++ {
		m = press(t, m, "tab")
	}

	before, _ := m.Engine.Synth.Get(synth.ParamFeedback, 0, 0)
	m = press(t, m, "L")
	m.Engine.Dispatch.Drain()

	for v := 0; v < synth.NumVoices; v++ {
		if got, _ := m.Engine.Synth.Get(synth.ParamFeedback, v, 0); got != synth.ParamFeedback.Clamp(before+8) {
			t.Errorf("voice %d feedback = %d", v, got)
		}
	}
}

func TestModel_ViewShowsPreset(t *testing.T) {
	m := newModel(t)
	view := m.View()
	for _, want := range []string{"fmsynth", "Init", "total_level", "queue 0/5"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_Quit(t *testing.T) {
	m := newModel(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || next.(Model).View() != "" {
		t.Error("q did not quit")
	}
}

func TestModel_SnapshotToLibrary(t *testing.T) {
	m := newModel(t)
	m.Library = &library.Library{Dir: t.TempDir()}

	press(t, m, "s")
	entries, err := m.Library.List()
	if err != nil || len(entries) != 1 || entries[0].Name != "Init" {
		t.Errorf("library: %+v %v", entries, err)
	}
}
