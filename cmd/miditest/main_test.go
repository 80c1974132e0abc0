package main

import (
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"fmsynth/config"
	"fmsynth/engine"
	"fmsynth/flash"
	"fmsynth/synth"
)

func TestReplayTracks_ProgramChangeStaysInSync(t *testing.T) {
	cfg := config.DefaultConfig()
	dev, err := flash.NewMemDevice(cfg.Flash.Geometry)
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(cfg, dev, nil)
	if err != nil {
		t.Fatal(err)
	}
	ch := e.Voices.Config().BaseChannel

	var track smf.Track
	track.Add(0, midi.ProgramChange(ch, 1))
	track.Add(0, midi.NoteOn(ch, 60, 100))
	track.Add(96, midi.NoteOff(ch, 60))
	track.Close(0)

	start := time.Now()
	if sent := replayTracks(e, []smf.Track{track}); sent != 3 {
		t.Errorf("sent %d events, want 3", sent)
	}
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Errorf("replay took %v", d)
	}

	bank, program, name := e.Synth.Current()
	if bank != synth.BankROM || program != 1 {
		t.Errorf("synth current = %d:%d", bank, program)
	}
	if got := e.Voices.Config(); got.Bank != synth.BankROM || got.Program != 1 {
		t.Errorf("allocator config = %s, synth has %q", got, name)
	}
	st := e.Status()
	if st.LastError != nil {
		t.Errorf("last error: %v", st.LastError)
	}
	if st.Queue.Applied == 0 {
		t.Error("no commands applied")
	}
}
