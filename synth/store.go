package synth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"fmsynth/debug"
	"fmsynth/flash"
)

// Sink receives everything the store decides for the chip. Writes are fire
// and forget.
type Sink interface {
	PushFullPreset(m *Model)
	WriteRegister(addr, data byte, bank int)
	KeyOn(voice int)
	KeyOff(voice int)
}

// KindNotFound tags errors for presets, slots and banks that do not exist
const KindNotFound ftag.Kind = "NOT_FOUND"

// PresetInfo describes one user slot
type PresetInfo struct {
	Slot  int
	Name  string
	Empty bool
}

// Store owns the device model. The dispatcher is its only writer; readers
// such as the monitor may call Model, Get and Current from other goroutines.
type Store struct {
	mu    sync.RWMutex
	model Model
	sink  Sink
	cc    CCMap

	flash *flash.Store
	slots []*flash.Layout

	bank, program int
	name          string
}

// NewStore creates a store holding DefaultModel. slots are the user bank
// layouts, one per slot; fs may be nil for a ROM-only store.
func NewStore(sink Sink, fs *flash.Store, slots []*flash.Layout) *Store {
	return &Store{
		model: DefaultModel(),
		sink:  sink,
		cc:    DefaultCCMap(),
		flash: fs,
		slots: slots,
		name:  romBank[0].Name,
	}
}

// SetCCMap replaces the controller bindings
func (s *Store) SetCCMap(m CCMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cc = m
}

// InitUserBank scans every user slot and formats the ones never written with
// an empty record
func (s *Store) InitUserBank() error {
	if s.flash == nil {
		return nil
	}
	for i, l := range s.slots {
		st, err := s.flash.Init(l)
		switch st {
		case flash.StatusOK:
			continue
		case flash.StatusNotInit:
			debug.Log("synth", "formatting user slot %d", i)
			if err := s.flash.Format(l, ClearedRecord()); err != nil {
				return fmt.Errorf("format user slot %d: %w", i, err)
			}
		default:
			return fmt.Errorf("init user slot %d: %w", i, err)
		}
	}
	return nil
}

// Model returns a copy of the current model
func (s *Store) Model() Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// Current returns the last loaded preset
func (s *Store) Current() (bank, program int, name string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bank, s.program, s.name
}

// Get reads one parameter
func (s *Store) Get(id ParamID, voice, op int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.Get(id, voice, op)
}

// SetParam writes value into every voice and operator the selectors cover and
// pushes the affected registers. Unknown ids and out-of-range selectors change
// nothing and return false.
func (s *Store) SetParam(id ParamID, voice, op Selector, value int) bool {
	info, ok := id.Info()
	if !ok {
		debug.Log("synth", "ignoring unknown param %d", id)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value = id.Clamp(value)
	if info.Scope == ScopeDevice {
		s.model.Set(id, 0, 0, value)
		s.write(id, 0, 0)
		return true
	}

	voices := voice.Expand(NumVoices)
	ops := []int{0}
	if info.Scope == ScopeOperator {
		ops = op.Expand(NumOperators)
	}
	if len(voices) == 0 || len(ops) == 0 {
		debug.Log("synth", "ignoring %s for voice %s op %s", id, voice, op)
		return false
	}

	for _, v := range voices {
		for _, o := range ops {
			s.model.Set(id, v, o, value)
			s.write(id, v, o)
		}
	}
	return true
}

func (s *Store) write(id ParamID, voice, op int) {
	if s.sink == nil {
		return
	}
	if w, ok := s.model.ParamRegister(id, voice, op); ok {
		s.sink.WriteRegister(w.Addr, w.Data, w.Bank)
	}
}

// ControlChange applies a mapped controller to the selected voices, and to
// all operators for operator parameters. Unmapped controllers are ignored.
func (s *Store) ControlChange(voice Selector, cc, value uint8) bool {
	s.mu.RLock()
	id, ok := s.cc[cc]
	s.mu.RUnlock()
	if !ok {
		debug.Log("synth", "unmapped cc %d", cc)
		return false
	}
	return s.SetParam(id, voice, All, ScaleCC(id, value))
}

// Replace installs m as the current model and pushes it in full
func (s *Store) Replace(m Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(m)
}

func (s *Store) replace(m Model) {
	m.Clamp()
	s.model = m
	if s.sink != nil {
		s.sink.PushFullPreset(&s.model)
	}
}

// LoadPreset replaces the model from the ROM bank or a user slot
func (s *Store) LoadPreset(bank, program int) error {
	var p Preset
	switch bank {
	case BankROM:
		if program < 0 || program >= len(romBank) {
			return fault.Wrap(fmt.Errorf("%w: rom %d", ErrNoPreset, program), ftag.With(KindNotFound))
		}
		p = romBank[program]

	case BankUser:
		rec, err := s.readSlot(program)
		if err != nil {
			return err
		}
		p = Preset{Name: rec.NameString(), Model: rec.Model}

	default:
		return fault.Wrap(fmt.Errorf("%w: %d", ErrNoBank, bank), ftag.With(KindNotFound))
	}

	s.mu.Lock()
	s.replace(p.Model)
	s.bank, s.program, s.name = bank, program, p.Name
	s.mu.Unlock()
	debug.Log("synth", "loaded %d:%d %q", bank, program, p.Name)
	return nil
}

// SavePreset stores the current model under name in a user slot
func (s *Store) SavePreset(slot int, name string) error {
	return s.StorePreset(slot, NewPresetRecord(name, s.Model()))
}

// StorePreset writes rec to a user slot without touching the current model
func (s *Store) StorePreset(slot int, rec PresetRecord) error {
	l, err := s.slot(slot)
	if err != nil {
		return err
	}
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.flash.Save(l, data); err != nil {
		return fault.Wrap(err, fmsg.With(fmt.Sprintf("store preset slot %d", slot)))
	}
	debug.Log("synth", "stored %q in slot %d", rec.NameString(), slot)
	return nil
}

// ClearPreset marks a user slot empty
func (s *Store) ClearPreset(slot int) error {
	l, err := s.slot(slot)
	if err != nil {
		return err
	}
	if err := s.flash.Save(l, ClearedRecord()); err != nil {
		return fault.Wrap(err, fmsg.With(fmt.Sprintf("clear preset slot %d", slot)))
	}
	return nil
}

// ReadPreset returns the record held in a user slot
func (s *Store) ReadPreset(slot int) (PresetRecord, error) {
	return s.readSlot(slot)
}

// Presets lists the user bank
func (s *Store) Presets() []PresetInfo {
	out := make([]PresetInfo, len(s.slots))
	for i := range s.slots {
		out[i].Slot = i
		rec, err := s.readSlot(i)
		if err != nil {
			out[i].Empty = true
			continue
		}
		out[i].Name = rec.NameString()
	}
	return out
}

func (s *Store) slot(i int) (*flash.Layout, error) {
	if s.flash == nil {
		return nil, fault.Wrap(ErrNoUserBank, ftag.With(KindNotFound))
	}
	if i < 0 || i >= len(s.slots) {
		return nil, fault.Wrap(fmt.Errorf("%w: user slot %d", ErrNoPreset, i), ftag.With(KindNotFound))
	}
	return s.slots[i], nil
}

func (s *Store) readSlot(i int) (PresetRecord, error) {
	var rec PresetRecord
	l, err := s.slot(i)
	if err != nil {
		return rec, err
	}
	data, err := s.flash.Get(l)
	if err != nil {
		return rec, err
	}
	if err := rec.UnmarshalBinary(data); err != nil {
		if errors.Is(err, ErrEmptySlot) {
			return rec, fault.Wrap(err, ftag.With(KindNotFound), fmsg.With(fmt.Sprintf("user slot %d", i)))
		}
		return rec, fault.Wrap(err, fmsg.With(fmt.Sprintf("user slot %d", i)))
	}
	return rec, nil
}

// NoteOn tunes a voice, sets its carrier levels for velocity and retriggers
// it
func (s *Store) NoteOn(voice int, note, velocity uint8) {
	if s.sink == nil || voice < 0 || voice >= NumVoices {
		return
	}
	s.mu.RLock()
	levels := s.model.VelocityLevels(voice, velocity)
	s.mu.RUnlock()

	s.sink.KeyOff(voice)
	for _, w := range FrequencyRegisters(voice, note) {
		s.sink.WriteRegister(w.Addr, w.Data, w.Bank)
	}
	for _, w := range levels {
		s.sink.WriteRegister(w.Addr, w.Data, w.Bank)
	}
	s.sink.KeyOn(voice)
}

// NoteOff releases a voice
func (s *Store) NoteOff(voice int) {
	if s.sink == nil || voice < 0 || voice >= NumVoices {
		return
	}
	s.sink.KeyOff(voice)
}

// Mute releases a voice and silences every operator at once. The next NoteOn
// restores the programmed levels.
func (s *Store) Mute(voice int) {
	if s.sink == nil || voice < 0 || voice >= NumVoices {
		return
	}
	s.sink.KeyOff(voice)
	for _, w := range SilentLevels(voice) {
		s.sink.WriteRegister(w.Addr, w.Data, w.Bank)
	}
}
