// Package voice maps incoming MIDI notes and controllers onto the chip's
// voices.
package voice

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"fmsynth/debug"
	"fmsynth/dispatch"
	"fmsynth/midi"
	"fmsynth/synth"
)

// MIDI controllers handled by the allocator itself
const (
	ccBankSelect  = 0
	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

var ErrInvalidChannel = errors.New("voice: invalid MIDI channel")

// Sender queues commands for the dispatcher
type Sender interface {
	Send(cmd dispatch.Command, wait time.Duration) error
}

// PresetLoader loads a preset and reports whether it worked
type PresetLoader interface {
	LoadPreset(bank, program int) error
}

// ConfigSaver persists the channel configuration
type ConfigSaver interface {
	SaveChannelConfig(cfg ChannelConfig) error
}

// Slot is a note held by, or waiting for, a voice
type Slot struct {
	Note     uint8
	Velocity uint8
	Active   bool
}

// Snapshot is a copy of the allocator state for display
type Snapshot struct {
	Config  ChannelConfig
	Voices  [synth.NumVoices]Slot
	Pending [synth.NumVoices]Slot // Mono: per voice
	Shared  Slot                  // Poly: the single pending note
}

// Allocator applies the Mono/Poly policy. Every decision produces at most one
// command; delivery failures are returned, never retried.
type Allocator struct {
	mu  sync.Mutex
	cfg ChannelConfig

	voices  [synth.NumVoices]Slot
	pending [synth.NumVoices]Slot
	shared  Slot

	out     Sender
	presets PresetLoader
	saver   ConfigSaver
}

// New creates an allocator. saver may be nil if nothing is persisted.
func New(cfg ChannelConfig, out Sender, presets PresetLoader, saver ConfigSaver) *Allocator {
	return &Allocator{cfg: cfg, out: out, presets: presets, saver: saver}
}

// HandleEvent routes one decoded MIDI event
func (a *Allocator) HandleEvent(ev midi.Event) error {
	switch ev.Kind {
	case midi.KindNoteOn:
		return a.NoteOn(ev.Channel, ev.Note(), ev.Velocity())
	case midi.KindNoteOff:
		return a.NoteOff(ev.Channel, ev.Note())
	case midi.KindControlChange:
		return a.ControlChange(ev.Channel, ev.Data1, ev.Data2)
	case midi.KindProgramChange:
		a.mu.Lock()
		base := a.cfg.BaseChannel
		a.mu.Unlock()
		if ev.Channel != base {
			return nil
		}
		return a.SetProgram(ev.Data1, false)
	}
	return nil
}

// voiceFor maps a MIDI channel to a voice, or -1 when the channel is not
// ours. Must hold mu.
func (a *Allocator) voiceFor(ch uint8) int {
	base := a.cfg.BaseChannel
	if ch < base || int(ch) >= int(base)+synth.NumVoices {
		return -1
	}
	return int(ch - base)
}

// NoteOn handles a Note-On; velocity 0 is a Note-Off
func (a *Allocator) NoteOn(ch, note, velocity uint8) error {
	if velocity == 0 {
		return a.NoteOff(ch, note)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.Mode == Mono {
		return a.monoNoteOn(ch, note, velocity)
	}
	return a.polyNoteOn(ch, note, velocity)
}

// NoteOff handles a Note-Off
func (a *Allocator) NoteOff(ch, note uint8) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.Mode == Mono {
		return a.monoNoteOff(ch, note)
	}
	return a.polyNoteOff(ch, note)
}

func (a *Allocator) monoNoteOn(ch, note, velocity uint8) error {
	v := a.voiceFor(ch)
	if v < 0 {
		return nil
	}

	cur := &a.voices[v]
	if cur.Active {
		if cur.Note != note {
			a.pending[v] = Slot{Note: note, Velocity: velocity, Active: true}
			debug.Log("voice", "voice %d busy with %d, note %d pending", v, cur.Note, note)
		}
		return nil
	}

	*cur = Slot{Note: note, Velocity: velocity, Active: true}
	return a.noteOnCmd(v, note, velocity)
}

func (a *Allocator) monoNoteOff(ch, note uint8) error {
	v := a.voiceFor(ch)
	if v < 0 {
		return nil
	}

	cur, pend := &a.voices[v], &a.pending[v]
	switch {
	case cur.Active && cur.Note == note:
		*cur = Slot{}
		if pend.Active {
			// The retrigger releases the old note on the chip
			*cur, *pend = *pend, Slot{}
			return a.noteOnCmd(v, cur.Note, cur.Velocity)
		}
		return a.send(dispatch.NoteOff{Voice: synth.Specific(v)}, dispatch.NoteWait)

	case pend.Active && pend.Note == note:
		*pend = Slot{}
	}
	return nil
}

func (a *Allocator) polyNoteOn(ch, note, velocity uint8) error {
	if ch != a.cfg.BaseChannel {
		return nil
	}

	free := -1
	for v := range a.voices {
		if a.voices[v].Active && a.voices[v].Note == note {
			return nil
		}
		if free < 0 && !a.voices[v].Active {
			free = v
		}
	}

	if free < 0 {
		a.shared = Slot{Note: note, Velocity: velocity, Active: true}
		debug.Log("voice", "all voices busy, note %d pending", note)
		return nil
	}

	a.voices[free] = Slot{Note: note, Velocity: velocity, Active: true}
	return a.noteOnCmd(free, note, velocity)
}

func (a *Allocator) polyNoteOff(ch, note uint8) error {
	if ch != a.cfg.BaseChannel {
		return nil
	}

	var freed []int
	for v := range a.voices {
		if a.voices[v].Active && a.voices[v].Note == note {
			a.voices[v] = Slot{}
			freed = append(freed, v)
		}
	}

	if len(freed) == 0 {
		if a.shared.Active && a.shared.Note == note {
			a.shared = Slot{}
		}
		return nil
	}

	// Duplicates cannot be created here, but release all of them if present
	var errs []error
	for _, v := range freed[1:] {
		errs = append(errs, a.send(dispatch.NoteOff{Voice: synth.Specific(v)}, dispatch.NoteWait))
	}

	v := freed[0]
	if a.shared.Active {
		a.voices[v], a.shared = a.shared, Slot{}
		errs = append(errs, a.noteOnCmd(v, a.voices[v].Note, a.voices[v].Velocity))
	} else {
		errs = append(errs, a.send(dispatch.NoteOff{Voice: synth.Specific(v)}, dispatch.NoteWait))
	}
	return errors.Join(errs...)
}

func (a *Allocator) noteOnCmd(v int, note, velocity uint8) error {
	return a.send(dispatch.NoteOn{Voice: synth.Specific(v), Note: note, Velocity: velocity}, dispatch.NoteWait)
}

func (a *Allocator) send(cmd dispatch.Command, wait time.Duration) error {
	if err := a.out.Send(cmd, wait); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// ControlChange forwards a controller to the mapped voice, or to all voices
// in Poly mode. Bank select and the all-notes-off controllers are handled
// here.
func (a *Allocator) ControlChange(ch, cc, value uint8) error {
	a.mu.Lock()
	v := a.voiceFor(ch)
	mode := a.cfg.Mode
	a.mu.Unlock()

	if v < 0 {
		return nil
	}

	switch cc {
	case ccBankSelect:
		return a.SetBank(value, false)
	case ccAllSoundOff, ccAllNotesOff:
		return a.AllNotesOff()
	}

	sel := synth.Specific(v)
	if mode == Poly {
		sel = synth.All
	}
	return a.send(dispatch.ControlChange{Voice: sel, Controller: cc, Value: value}, 0)
}

// SetMode switches policy and drops every held note
func (a *Allocator) SetMode(m Mode, persist bool) error {
	if m > Poly {
		return fmt.Errorf("voice: invalid mode %d", m)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfg.Mode = m
	a.reset()
	return a.persist(persist)
}

// SetBaseChannel moves the base channel (0-15) and drops every held note
func (a *Allocator) SetBaseChannel(ch uint8, persist bool) error {
	if ch > 15 {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfg.BaseChannel = ch
	a.reset()
	return a.persist(persist)
}

// SetBank loads program 0 of bank and commits the change only if that
// worked
func (a *Allocator) SetBank(bank uint8, persist bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.presets.LoadPreset(int(bank), 0); err != nil {
		return fmt.Errorf("bank %d: %w", bank, err)
	}
	a.cfg.Bank, a.cfg.Program = bank, 0
	a.reset()
	return a.persist(persist)
}

// SetProgram loads program from the current bank and commits it only if
// that worked
func (a *Allocator) SetProgram(program uint8, persist bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.presets.LoadPreset(int(a.cfg.Bank), int(program)); err != nil {
		return fmt.Errorf("program %d:%d: %w", a.cfg.Bank, program, err)
	}
	a.cfg.Program = program
	a.reset()
	return a.persist(persist)
}

// AllNotesOff drops every held note and releases every voice
func (a *Allocator) AllNotesOff() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.clear()
	return a.send(dispatch.AllNotesOff{Voice: synth.All}, dispatch.NoteWait)
}

// reset clears voice state and releases the chip voices. Must hold mu.
func (a *Allocator) reset() {
	a.clear()
	if err := a.send(dispatch.AllNotesOff{Voice: synth.All}, 0); err != nil {
		debug.Log("voice", "reset: %v", err)
	}
}

func (a *Allocator) clear() {
	a.voices = [synth.NumVoices]Slot{}
	a.pending = [synth.NumVoices]Slot{}
	a.shared = Slot{}
}

func (a *Allocator) persist(persist bool) error {
	debug.Log("voice", "config %s", a.cfg)
	if !persist || a.saver == nil {
		return nil
	}
	if err := a.saver.SaveChannelConfig(a.cfg); err != nil {
		return fmt.Errorf("save channel config: %w", err)
	}
	return nil
}

// Config returns the current channel configuration
func (a *Allocator) Config() ChannelConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Snapshot copies the allocator state
func (a *Allocator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{Config: a.cfg, Voices: a.voices, Pending: a.pending, Shared: a.shared}
}
