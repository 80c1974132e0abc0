package theme

import (
	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	VoiceIdle    rune // · released
	VoiceActive  rune // ● sounding
	VoicePending rune // ○ waiting for a voice

	BarFull  rune // █ meter cell
	BarEmpty rune // ░

	Cursor rune // ▶ selected row
	All    rune // * broadcast selector
}

func New(palette *Palette) *Theme {
	if palette == nil || len(palette.Colors) == 0 {
		palette = DefaultPalette()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			VoiceIdle:    '·',
			VoiceActive:  '●',
			VoicePending: '○',

			BarFull:  '█',
			BarEmpty: '░',

			Cursor: '▶',
			All:    '*',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0
	RoleSurface = 0.1
	RoleMuted   = 0.25
	RoleFG      = 0.4
	RoleAccent  = 0.5
	RoleActive  = 0.65
	RoleError   = 0.75
	RoleWarning = 0.875
	RoleCursor  = 1.0
)

func (t *Theme) FG() lipgloss.Color      { return t.role(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.role(RoleAccent) }
func (t *Theme) Muted() lipgloss.Color   { return t.role(RoleMuted) }
func (t *Theme) Surface() lipgloss.Color { return t.role(RoleSurface) }
func (t *Theme) Active() lipgloss.Color  { return t.role(RoleActive) }
func (t *Theme) Error() lipgloss.Color   { return t.role(RoleError) }
func (t *Theme) Warning() lipgloss.Color { return t.role(RoleWarning) }
func (t *Theme) Cursor() lipgloss.Color  { return t.role(RoleCursor) }

// Level colours a value by where it sits in [lo, hi], from muted to accent
func (t *Theme) Level(v, lo, hi int) lipgloss.Color {
	if hi <= lo {
		return t.Muted()
	}
	norm := float64(v-lo) / float64(hi-lo)
	return t.Color(RoleMuted + norm*(RoleActive-RoleMuted))
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return lipgloss.Color(t.Palette.Lookup(norm).Hex())
}

func (t *Theme) role(norm float64) lipgloss.Color {
	return t.Color(norm)
}
