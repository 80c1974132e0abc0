package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fmsynth/dispatch"
	"fmsynth/engine"
	"fmsynth/library"
	"fmsynth/midi"
	"fmsynth/synth"
	"fmsynth/theme"
	"fmsynth/voice"
	"fmsynth/widgets"
)

// refresh is how often the voice row is redrawn; the allocator does not
// signal changes
const refresh = 50 * time.Millisecond

type Model struct {
	Engine  *engine.Engine
	Theme   *theme.Theme
	Input   *midi.Watcher    // may be nil
	Library *library.Library // may be nil

	param    synth.ParamID
	voice    int // NumVoices means all
	operator int // NumOperators means all
	status   string
	quitting bool
	showHelp bool
}

type UpdateMsg struct{}

type tickMsg time.Time

// resultMsg carries the outcome of a blocking engine call
type resultMsg struct {
	what string
	err  error
}

func NewModel(e *engine.Engine, th *theme.Theme) Model {
	return Model{
		Engine: e,
		Theme:  th,
		param:  synth.ParamTotalLevel,
	}
}

func ListenForUpdates(d *dispatch.Dispatcher) tea.Cmd {
	return func() tea.Msg {
		<-d.Updates()
		return UpdateMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(ListenForUpdates(m.Engine.Dispatch), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case UpdateMsg:
		return m, ListenForUpdates(m.Engine.Dispatch)

	case tickMsg:
		return m, tick()

	case resultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s: %v", msg.what, msg.err)
		} else {
			m.status = msg.what
		}
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp

	case "up", "k":
		m.param = (m.param + synth.NumParams - 1) % synth.NumParams
	case "down", "j":
		m.param = (m.param + 1) % synth.NumParams

	case "left", "h":
		return m, m.nudge(-1)
	case "right", "l":
		return m, m.nudge(1)
	case "H":
		return m, m.nudge(-8)
	case "L":
		return m, m.nudge(8)

	case "tab":
		m.voice = (m.voice + 1) % (synth.NumVoices + 1)
	case "o":
		m.operator = (m.operator + 1) % (synth.NumOperators + 1)

	case "m":
		next := voice.Poly
		if m.Engine.Voices.Config().Mode == voice.Poly {
			next = voice.Mono
		}
		return m, m.run("mode "+next.String(), func() error { return m.Engine.Voices.SetMode(next, true) })

	case "[", "]":
		cfg := m.Engine.Voices.Config()
		program := int(cfg.Program) + 1
		if key == "[" {
			program = int(cfg.Program) - 1
		}
		if program < 0 || program > 127 {
			return m, nil
		}
		what := fmt.Sprintf("program %d:%d", cfg.Bank, program)
		return m, m.run(what, func() error { return m.Engine.Voices.SetProgram(uint8(program), true) })

	case "b":
		cfg := m.Engine.Voices.Config()
		bank := uint8(synth.BankUser)
		if cfg.Bank == synth.BankUser {
			bank = synth.BankROM
		}
		return m, m.run(fmt.Sprintf("bank %d", bank), func() error { return m.Engine.Voices.SetBank(bank, true) })

	case " ":
		return m, m.run("all notes off", m.Engine.Voices.AllNotesOff)

	case "s":
		if m.Library == nil {
			return m, nil
		}
		_, _, name := m.Engine.Synth.Current()
		model := m.Engine.Synth.Model()
		return m, func() tea.Msg {
			file, err := m.Library.Save(name, model)
			return resultMsg{what: "saved " + file, err: err}
		}
	}
	return m, nil
}

// run calls fn off the UI goroutine
func (m Model) run(what string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{what: what, err: fn()}
	}
}

func (m Model) selectors() (v, op synth.Selector) {
	v, _ = synth.VoiceSelector(m.voice)
	op, _ = synth.OperatorSelector(m.operator)
	return v, op
}

// shown is the voice/operator whose values are displayed; with All the first
// one stands in for the rest
func (m Model) shown() (v, op int) {
	return m.voice % synth.NumVoices, m.operator % synth.NumOperators
}

func (m Model) nudge(delta int) tea.Cmd {
	v, op := m.shown()
	cur, ok := m.Engine.Synth.Get(m.param, v, op)
	if !ok {
		return nil
	}
	vs, os := m.selectors()
	cmd := dispatch.SetParam{Param: m.param, Voice: vs, Operator: os, Value: m.param.Clamp(cur + delta)}
	return func() tea.Msg {
		if err := m.Engine.Dispatch.Enqueue(cmd); err != nil {
			return resultMsg{what: cmd.String(), err: err}
		}
		return nil
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	th := m.Theme
	st := m.Engine.Status()

	headerStyle := lipgloss.NewStyle().Foreground(th.Accent()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(th.FG())
	cursorStyle := lipgloss.NewStyle().Foreground(th.Cursor())

	cfg := st.Voices.Config
	header := headerStyle.Render(fmt.Sprintf("fmsynth  %s ch%d  %d:%d %s",
		strings.ToUpper(cfg.Mode.String()), cfg.BaseChannel+1, st.Bank, st.Program, st.PresetName))
	if m.Input != nil {
		if in := m.Input.Current(); in != nil {
			header += dimStyle.Render("  <- " + in.ID())
		} else {
			header += lipgloss.NewStyle().Foreground(th.Warning()).Render("  no input")
		}
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(widgets.RenderVoices(th, st.Voices))
	out.WriteString("\n\n")

	vs, os := m.selectors()
	out.WriteString(dimStyle.Render(fmt.Sprintf("editing voice %s  operator %s", vs, os)))
	out.WriteString("\n")

	v, op := m.shown()
	for id := synth.ParamID(0); id < synth.NumParams; id++ {
		val, _ := m.Engine.Synth.Get(id, v, op)
		lo, hi := id.Range()

		marker := "  "
		name := fgStyle.Render(fmt.Sprintf("%-15s", id))
		if id == m.param {
			marker = cursorStyle.Render(string(th.Symbols.Cursor) + " ")
			name = cursorStyle.Render(fmt.Sprintf("%-15s", id))
		}
		scope := dimStyle.Render(fmt.Sprintf("%-8s", id.Scope()))
		fmt.Fprintf(&out, "%s%s %s %3d %s\n", marker, name, scope, val, widgets.RenderBar(th, val, lo, hi, 16))
	}

	out.WriteString("\n")
	q := st.Queue
	out.WriteString(dimStyle.Render(fmt.Sprintf("queue %d/%d  applied %d  dropped %d  events %d  sysex overflows %d",
		q.Depth, q.Capacity, q.Applied, q.Dropped, st.Events, st.Overflows)))

	if st.LastError != nil {
		out.WriteString("\n")
		out.WriteString(lipgloss.NewStyle().Foreground(th.Error()).Render("error: " + st.LastError.Error()))
	}
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(fgStyle.Render(m.status))
	}

	out.WriteString("\n\n")
	if m.showHelp {
		out.WriteString(dimStyle.Render(widgets.RenderKeyHelp(keyHelp)))
	} else {
		out.WriteString(dimStyle.Render("j/k:param  h/l:value  tab:voice  o:operator  m:mode  [/]:program  b:bank  s:snapshot  space:panic  ?:help  q:quit"))
	}
	return out.String()
}

var keyHelp = []widgets.KeySection{
	{Title: "Edit", Keys: []widgets.KeyBinding{
		{Key: "j/k", Desc: "select parameter"},
		{Key: "h/l H/L", Desc: "change value by 1 / 8"},
		{Key: "tab", Desc: "next voice (then all)"},
		{Key: "o", Desc: "next operator (then all)"},
	}},
	{Title: "Channel", Keys: []widgets.KeyBinding{
		{Key: "m", Desc: "toggle Mono/Poly (saved)"},
		{Key: "[ ]", Desc: "previous/next program (saved)"},
		{Key: "b", Desc: "switch ROM/user bank (saved)"},
		{Key: "space", Desc: "all notes off"},
		{Key: "s", Desc: "snapshot the current sound to the library"},
	}},
}
