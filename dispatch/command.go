package dispatch

import (
	"fmt"

	"fmsynth/synth"
)

// Command is anything the dispatcher applies. The set is closed.
type Command interface {
	command()
	String() string
}

// NoteOn tunes and retriggers the selected voices
type NoteOn struct {
	Voice    synth.Selector
	Note     uint8
	Velocity uint8
}

// NoteOff releases the selected voices
type NoteOff struct {
	Voice synth.Selector
}

// Mute releases the selected voices and silences their operators
type Mute struct {
	Voice synth.Selector
}

// AllNotesOff releases the selected voices; with All it is the panic command
type AllNotesOff struct {
	Voice synth.Selector
}

// SetParam writes one parameter
type SetParam struct {
	Param    synth.ParamID
	Voice    synth.Selector
	Operator synth.Selector
	Value    int
}

// ControlChange applies a mapped MIDI controller
type ControlChange struct {
	Voice      synth.Selector
	Controller uint8
	Value      uint8
}

// LoadPreset replaces the model from a bank. Reply, when set, receives the
// result.
type LoadPreset struct {
	Bank    int
	Program int
	Reply   chan<- error
}

// SavePreset stores the current model in a user slot
type SavePreset struct {
	Slot  int
	Name  string
	Reply chan<- error
}

// StorePreset writes a received record to a user slot
type StorePreset struct {
	Slot   int
	Record synth.PresetRecord
	Reply  chan<- error
}

func (NoteOn) command()        {}
func (NoteOff) command()       {}
func (Mute) command()          {}
func (AllNotesOff) command()   {}
func (SetParam) command()      {}
func (ControlChange) command() {}
func (LoadPreset) command()    {}
func (SavePreset) command()    {}
func (StorePreset) command()   {}

func (c NoteOn) String() string {
	return fmt.Sprintf("NoteOn voice=%s note=%d vel=%d", c.Voice, c.Note, c.Velocity)
}

func (c NoteOff) String() string     { return fmt.Sprintf("NoteOff voice=%s", c.Voice) }
func (c Mute) String() string        { return fmt.Sprintf("Mute voice=%s", c.Voice) }
func (c AllNotesOff) String() string { return fmt.Sprintf("AllNotesOff voice=%s", c.Voice) }

func (c SetParam) String() string {
	return fmt.Sprintf("SetParam %s voice=%s op=%s value=%d", c.Param, c.Voice, c.Operator, c.Value)
}

func (c ControlChange) String() string {
	return fmt.Sprintf("CC voice=%s cc=%d value=%d", c.Voice, c.Controller, c.Value)
}

func (c LoadPreset) String() string {
	return fmt.Sprintf("LoadPreset %d:%d", c.Bank, c.Program)
}

func (c SavePreset) String() string {
	return fmt.Sprintf("SavePreset slot=%d name=%q", c.Slot, c.Name)
}

func (c StorePreset) String() string {
	return fmt.Sprintf("StorePreset slot=%d name=%q", c.Slot, c.Record.NameString())
}
