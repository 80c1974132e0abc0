package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"fmsynth/midi"
	"fmsynth/theme"
	"fmsynth/voice"
)

// RenderBar draws v within [lo, hi] as a width-cell meter
func RenderBar(th *theme.Theme, v, lo, hi, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if hi > lo {
		filled = (v - lo) * width / (hi - lo)
	}
	filled = max(0, min(width, filled))

	on := lipgloss.NewStyle().Foreground(th.Level(v, lo, hi))
	off := lipgloss.NewStyle().Foreground(th.Surface())
	return on.Render(strings.Repeat(string(th.Symbols.BarFull), filled)) +
		off.Render(strings.Repeat(string(th.Symbols.BarEmpty), width-filled))
}

// RenderVoice renders one voice cell: symbol, note name and velocity
func RenderVoice(th *theme.Theme, held, pending voice.Slot) string {
	sym, color := th.Symbols.VoiceIdle, th.Muted()
	label := "---"
	vel := "   "
	switch {
	case held.Active:
		sym, color = th.Symbols.VoiceActive, th.Active()
		label = midi.NoteName(held.Note)
		vel = fmt.Sprintf("%3d", held.Velocity)
	case pending.Active:
		sym, color = th.Symbols.VoicePending, th.Warning()
		label = midi.NoteName(pending.Note)
	}
	return lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%c %-4s%s", sym, label, vel))
}

// RenderVoices renders the allocator state as one row of voice cells, plus
// the shared pending note in Poly mode
func RenderVoices(th *theme.Theme, snap voice.Snapshot) string {
	var out strings.Builder
	for v := range snap.Voices {
		if v > 0 {
			out.WriteString("  ")
		}
		out.WriteString(RenderVoice(th, snap.Voices[v], snap.Pending[v]))
	}
	if snap.Shared.Active {
		out.WriteString("  ")
		out.WriteString(lipgloss.NewStyle().Foreground(th.Warning()).
			Render(fmt.Sprintf("%c %s", th.Symbols.VoicePending, midi.NoteName(snap.Shared.Note))))
	}
	return out.String()
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
