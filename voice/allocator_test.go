package voice

import (
	"errors"
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"fmsynth/dispatch"
	"fmsynth/midi"
	"fmsynth/synth"
)

type fakeSender struct {
	cmds  []dispatch.Command
	waits []time.Duration
	full  bool
}

func (f *fakeSender) Send(cmd dispatch.Command, wait time.Duration) error {
	if f.full {
		return dispatch.ErrQueueFull
	}
	f.cmds = append(f.cmds, cmd)
	f.waits = append(f.waits, wait)
	return nil
}

func (f *fakeSender) take() []dispatch.Command {
	out := f.cmds
	f.cmds, f.waits = nil, nil
	return out
}

type fakeLoader struct {
	loads [][2]int
	fail  error
}

func (f *fakeLoader) LoadPreset(bank, program int) error {
	if f.fail != nil {
		return f.fail
	}
	f.loads = append(f.loads, [2]int{bank, program})
	return nil
}

type fakeSaver struct {
	saved []ChannelConfig
}

func (f *fakeSaver) SaveChannelConfig(cfg ChannelConfig) error {
	f.saved = append(f.saved, cfg)
	return nil
}

func newAllocator(cfg ChannelConfig) (*Allocator, *fakeSender, *fakeLoader, *fakeSaver) {
	out, loader, saver := &fakeSender{}, &fakeLoader{}, &fakeSaver{}
	return New(cfg, out, loader, saver), out, loader, saver
}

func noteOn(v int, note, vel uint8) dispatch.Command {
	return dispatch.NoteOn{Voice: synth.Specific(v), Note: note, Velocity: vel}
}

func noteOff(v int) dispatch.Command {
	return dispatch.NoteOff{Voice: synth.Specific(v)}
}

func expectCmds(t *testing.T, got []dispatch.Command, want ...dispatch.Command) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d commands %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMono_PendingNote(t *testing.T) {
	a, out, _, _ := newAllocator(ChannelConfig{Mode: Mono, BaseChannel: 2})

	// channel 4 is voice 2
	a.NoteOn(4, 60, 100)
	expectCmds(t, out.take(), noteOn(2, 60, 100))

	a.NoteOn(4, 64, 90)
	expectCmds(t, out.take())
	snap := a.Snapshot()
	if snap.Voices[2].Note != 60 || !snap.Pending[2].Active || snap.Pending[2].Note != 64 {
		t.Fatalf("snapshot %+v", snap)
	}

	// Releasing the sounding note plays the pending one
	a.NoteOff(4, 60)
	expectCmds(t, out.take(), noteOn(2, 64, 90))
	snap = a.Snapshot()
	if snap.Voices[2].Note != 64 || snap.Pending[2].Active {
		t.Fatalf("snapshot %+v", snap)
	}

	a.NoteOff(4, 64)
	expectCmds(t, out.take(), noteOff(2))
}

func TestMono_PendingNoteOffClearsSlot(t *testing.T) {
	a, out, _, _ := newAllocator(ChannelConfig{Mode: Mono})

	a.NoteOn(0, 60, 100)
	a.NoteOn(0, 62, 100)
	out.take()

	a.NoteOff(0, 62)
	expectCmds(t, out.take())
	if a.Snapshot().Pending[0].Active {
		t.Fatalf("pending slot not cleared")
	}

	a.NoteOff(0, 60)
	expectCmds(t, out.take(), noteOff(0))
}

func TestMono_SameNoteAndVelocityZero(t *testing.T) {
	a, out, _, _ := newAllocator(ChannelConfig{Mode: Mono})

	a.NoteOn(1, 60, 100)
	a.NoteOn(1, 60, 80)
	expectCmds(t, out.take(), noteOn(1, 60, 100))
	if a.Snapshot().Pending[1].Active {
		t.Errorf("repeat of the sounding note became pending")
	}

	a.NoteOn(1, 60, 0)
	expectCmds(t, out.take(), noteOff(1))
}

func TestMono_ChannelRange(t *testing.T) {
	a, out, _, _ := newAllocator(ChannelConfig{Mode: Mono, BaseChannel: 3})

	a.NoteOn(2, 60, 100)
	a.NoteOn(9, 60, 100)
	expectCmds(t, out.take())

	a.NoteOn(8, 60, 100)
	expectCmds(t, out.take(), noteOn(5, 60, 100))
}

func TestPoly_Overflow(t *testing.T) {
	a, out, _, _ := newAllocator(ChannelConfig{Mode: Poly})

	for i := 0; i < synth.NumVoices; i++ {
		a.NoteOn(0, uint8(60+i), 100)
	}
	cmds := out.take()
	for i, c := range cmds {
		if c != noteOn(i, uint8(60+i), 100) {
			t.Fatalf("command %d: %v", i, c)
		}
	}

	// Seventh note waits, an eighth replaces it
	a.NoteOn(0, 70, 90)
	a.NoteOn(0, 71, 80)
	expectCmds(t, out.take())
	if s := a.Snapshot().Shared; !s.Active || s.Note != 71 {
		t.Fatalf("shared pending %+v", s)
	}

	a.NoteOff(0, 63)
	expectCmds(t, out.take(), noteOn(3, 71, 80))

	a.NoteOff(0, 64)
	expectCmds(t, out.take(), noteOff(4))

	// Lowest free voice is reused
	a.NoteOn(0, 50, 100)
	expectCmds(t, out.take(), noteOn(4, 50, 100))
}

func TestPoly_Dedup(t *testing.T) {
	a, out, _, _ := newAllocator(ChannelConfig{Mode: Poly, BaseChannel: 5})

	a.NoteOn(5, 60, 100)
	a.NoteOn(5, 60, 100)
	a.NoteOn(6, 61, 100)
	expectCmds(t, out.take(), noteOn(0, 60, 100))

	a.NoteOff(5, 61)
	expectCmds(t, out.take())
}

func TestPoly_NoteOffClearsMatchingPending(t *testing.T) {
	a, out, _, _ := newAllocator(ChannelConfig{Mode: Poly})
	for i := 0; i < synth.NumVoices+1; i++ {
		a.NoteOn(0, uint8(40+i), 100)
	}
	out.take()

	a.NoteOff(0, 46)
	expectCmds(t, out.take())
	if a.Snapshot().Shared.Active {
		t.Fatalf("pending note survived its note off")
	}
}

func TestControlChange(t *testing.T) {
	a, out, _, _ := newAllocator(ChannelConfig{Mode: Mono, BaseChannel: 0})

	a.ControlChange(3, 16, 64)
	expectCmds(t, out.take(), dispatch.ControlChange{Voice: synth.Specific(3), Controller: 16, Value: 64})

	a.ControlChange(7, 16, 64)
	expectCmds(t, out.take())

	a.SetMode(Poly, false)
	out.take()
	a.ControlChange(2, 16, 1)
	expectCmds(t, out.take(), dispatch.ControlChange{Voice: synth.All, Controller: 16, Value: 1})
}

func TestControlChange_NonBlocking(t *testing.T) {
	a, out, _, _ := newAllocator(ChannelConfig{Mode: Poly})
	a.ControlChange(0, 16, 1)
	a.NoteOn(0, 60, 1)
	if out.waits[0] != 0 || out.waits[1] != dispatch.NoteWait {
		t.Errorf("waits %v", out.waits)
	}
}

func TestAllNotesOffController(t *testing.T) {
	a, out, _, _ := newAllocator(ChannelConfig{Mode: Poly})
	a.NoteOn(0, 60, 100)
	out.take()

	a.ControlChange(0, 123, 0)
	expectCmds(t, out.take(), dispatch.AllNotesOff{Voice: synth.All})
	if a.Snapshot().Voices[0].Active {
		t.Errorf("voice still held")
	}
}

func TestSetModeResetsAndPersists(t *testing.T) {
	a, out, _, saver := newAllocator(ChannelConfig{Mode: Mono, BaseChannel: 4, Bank: 1, Program: 3})
	a.NoteOn(4, 60, 100)
	a.NoteOn(4, 61, 100)
	out.take()

	if err := a.SetMode(Poly, true); err != nil {
		t.Fatal(err)
	}
	expectCmds(t, out.take(), dispatch.AllNotesOff{Voice: synth.All})

	want := ChannelConfig{Mode: Poly, BaseChannel: 4, Bank: 1, Program: 3}
	if a.Config() != want || len(saver.saved) != 1 || saver.saved[0] != want {
		t.Errorf("config %v saved %v", a.Config(), saver.saved)
	}
	snap := a.Snapshot()
	if snap.Voices[0].Active || snap.Pending[0].Active {
		t.Errorf("voice state survived mode change")
	}

	if err := a.SetBaseChannel(16, true); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("channel 16: %v", err)
	}
	a.SetBaseChannel(9, false)
	if a.Config().BaseChannel != 9 || len(saver.saved) != 1 {
		t.Errorf("base channel change: %v saved=%d", a.Config(), len(saver.saved))
	}
}

func TestSetBank(t *testing.T) {
	a, out, loader, saver := newAllocator(ChannelConfig{Mode: Poly, Bank: 0, Program: 5})

	if err := a.SetBank(1, true); err != nil {
		t.Fatal(err)
	}
	if len(loader.loads) != 1 || loader.loads[0] != [2]int{1, 0} {
		t.Errorf("loads %v", loader.loads)
	}
	if c := a.Config(); c.Bank != 1 || c.Program != 0 || len(saver.saved) != 1 {
		t.Errorf("config %v", c)
	}
	out.take()

	// A failed load leaves everything as it was
	a.NoteOn(0, 60, 100)
	out.take()
	loader.fail = synth.ErrEmptySlot
	if err := a.SetBank(2, true); !errors.Is(err, synth.ErrEmptySlot) {
		t.Fatalf("expected load failure, got %v", err)
	}
	if c := a.Config(); c.Bank != 1 || len(saver.saved) != 1 {
		t.Errorf("config changed on failure: %v", c)
	}
	if !a.Snapshot().Voices[0].Active {
		t.Errorf("voices reset on failure")
	}
	expectCmds(t, out.take())
}

func TestProgramChangeEvent(t *testing.T) {
	a, _, loader, saver := newAllocator(ChannelConfig{Mode: Mono, BaseChannel: 2, Bank: 1})

	d := midi.NewDecoder()
	d.FeedAll(gomidi.ProgramChange(3, 7), func(ev midi.Event) { a.HandleEvent(ev) })
	if len(loader.loads) != 0 {
		t.Fatalf("program change off the base channel was applied")
	}

	d.FeedAll(gomidi.ProgramChange(2, 7), func(ev midi.Event) { a.HandleEvent(ev) })
	if len(loader.loads) != 1 || loader.loads[0] != [2]int{1, 7} {
		t.Fatalf("loads %v", loader.loads)
	}
	if a.Config().Program != 7 || len(saver.saved) != 0 {
		t.Errorf("config %v, saved %d", a.Config(), len(saver.saved))
	}
}

func TestBankSelectController(t *testing.T) {
	a, _, loader, _ := newAllocator(ChannelConfig{Mode: Poly})
	a.ControlChange(0, 0, 1)
	if len(loader.loads) != 1 || a.Config().Bank != 1 {
		t.Errorf("bank select ignored: %v", loader.loads)
	}
}

func TestQueueFullReported(t *testing.T) {
	a, out, _, _ := newAllocator(ChannelConfig{Mode: Poly})
	out.full = true

	err := a.NoteOn(0, 60, 100)
	if !errors.Is(err, dispatch.ErrQueueFull) {
		t.Fatalf("got %v", err)
	}
}

func TestConfigRecord(t *testing.T) {
	cfg := ChannelConfig{Mode: Poly, BaseChannel: 9, Bank: 1, Program: 4}
	data, _ := cfg.MarshalBinary()
	if len(data) != ConfigRecordSize {
		t.Fatalf("record is %d bytes", len(data))
	}

	var got ChannelConfig
	if err := got.UnmarshalBinary(data); err != nil || got != cfg {
		t.Fatalf("got %v, %v", got, err)
	}

	data[6] = 3
	if err := got.UnmarshalBinary(data); !errors.Is(err, ErrBadRecord) {
		t.Errorf("checksum not verified: %v", err)
	}
	if err := got.UnmarshalBinary(make([]byte, ConfigRecordSize)); !errors.Is(err, ErrBadRecord) {
		t.Errorf("blank record accepted: %v", err)
	}
}
