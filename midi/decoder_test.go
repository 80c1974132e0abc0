package midi

import (
	"bytes"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
)

func feed(d *Decoder, p []byte) []Event {
	var out []Event
	d.FeedAll(p, func(ev Event) { out = append(out, ev) })
	return out
}

func TestDecoder_ChannelMessages(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		kind    Kind
		channel uint8
		d1, d2  uint8
	}{
		{"note on", gomidi.NoteOn(2, 60, 100), KindNoteOn, 2, 60, 100},
		{"note off", []byte{0x83, 61, 40}, KindNoteOff, 3, 61, 40},
		{"poly pressure", []byte{0xA1, 62, 10}, KindPolyPressure, 1, 62, 10},
		{"control change", gomidi.ControlChange(0, 7, 99), KindControlChange, 0, 7, 99},
		{"program change", gomidi.ProgramChange(5, 12), KindProgramChange, 5, 12, 0},
		{"channel pressure", []byte{0xD4, 77}, KindChannelPressure, 4, 77, 0},
		{"pitch bend", []byte{0xEF, 0x00, 0x40}, KindPitchBend, 15, 0x00, 0x40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evs := feed(NewDecoder(), tt.in)
			if len(evs) != 1 {
				t.Fatalf("expected 1 event, got %d", len(evs))
			}
			ev := evs[0]
			if ev.Kind != tt.kind || ev.Channel != tt.channel || ev.Data1 != tt.d1 || ev.Data2 != tt.d2 {
				t.Errorf("got %v, want %v ch=%d d1=%d d2=%d", ev, tt.kind, tt.channel, tt.d1, tt.d2)
			}
			if !bytes.Equal(ev.Message, tt.in) {
				t.Errorf("raw message % X, want % X", []byte(ev.Message), tt.in)
			}
		})
	}
}

func TestDecoder_SystemCommon(t *testing.T) {
	d := NewDecoder()

	evs := feed(d, []byte{0xF1, 0x23, 0xF2, 0x10, 0x20, 0xF3, 0x05, 0xF6})
	if len(evs) != 4 {
		t.Fatalf("expected 4 events, got %d", len(evs))
	}
	want := []Kind{KindTimeCode, KindSongPosition, KindSongSelect, KindTuneRequest}
	for i, k := range want {
		if evs[i].Kind != k {
			t.Errorf("event %d: got %v, want %v", i, evs[i].Kind, k)
		}
	}
	if got := evs[1].PitchBendValue(); got != 0x10|0x20<<7 {
		t.Errorf("song position: got %d", got)
	}
}

func TestDecoder_RunningStatus(t *testing.T) {
	d := NewDecoder()

	// One status byte, three note-ons, then a program change pair
	evs := feed(d, []byte{0x90, 60, 100, 62, 90, 64, 0, 0xC1, 3, 4})
	if len(evs) != 5 {
		t.Fatalf("expected 5 events, got %d", len(evs))
	}
	for i, note := range []uint8{60, 62, 64} {
		if evs[i].Kind != KindNoteOn || evs[i].Note() != note {
			t.Errorf("event %d: got %v", i, evs[i])
		}
	}
	if evs[2].Velocity() != 0 {
		t.Errorf("velocity 0 must be passed through, got %d", evs[2].Velocity())
	}
	if evs[3].Kind != KindProgramChange || evs[3].Data1 != 3 || evs[4].Data1 != 4 {
		t.Errorf("program changes: %v %v", evs[3], evs[4])
	}
	if d.RunningStatus() != 0xC1 {
		t.Errorf("running status 0x%02X, want 0xC1", d.RunningStatus())
	}
}

func TestDecoder_DataWithoutStatusDropped(t *testing.T) {
	d := NewDecoder()
	if evs := feed(d, []byte{60, 100, 0x7F}); len(evs) != 0 {
		t.Fatalf("expected no events, got %v", evs)
	}
	// Decoder still works afterwards
	if evs := feed(d, []byte{0x90, 60, 100}); len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
}

func TestDecoder_RealtimeInterleaved(t *testing.T) {
	d := NewDecoder()

	evs := feed(d, []byte{0x90, 60, 0xF8, 100, 0xFA, 62, 0xFE, 80})
	if len(evs) != 5 {
		t.Fatalf("expected 5 events, got %d: %v", len(evs), evs)
	}
	wantKinds := []Kind{KindRealtime, KindNoteOn, KindRealtime, KindRealtime, KindNoteOn}
	for i, k := range wantKinds {
		if evs[i].Kind != k {
			t.Errorf("event %d: got %v, want %v", i, evs[i].Kind, k)
		}
	}
	if evs[0].Data1 != 0xF8 || evs[2].Data1 != 0xFA {
		t.Errorf("realtime bytes not preserved: %v %v", evs[0], evs[2])
	}
	if evs[1].Note() != 60 || evs[1].Velocity() != 100 {
		t.Errorf("note split by realtime decoded wrong: %v", evs[1])
	}
	if d.RunningStatus() != 0x90 {
		t.Errorf("realtime altered running status: 0x%02X", d.RunningStatus())
	}
}

func TestDecoder_SysExRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 17, DefaultSysExCapacity} {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i % 0x80)
		}

		d := NewDecoder()
		evs := feed(d, gomidi.SysEx(payload))
		if len(evs) != 1 {
			t.Fatalf("len=%d: expected 1 event, got %d", n, len(evs))
		}
		if evs[0].Kind != KindSysEx {
			t.Fatalf("len=%d: got %v", n, evs[0].Kind)
		}
		if !bytes.Equal(evs[0].Payload, payload) {
			t.Errorf("len=%d: payload mismatch", n)
		}
	}
}

func TestDecoder_SysExRealtimeInside(t *testing.T) {
	d := NewDecoder()
	evs := feed(d, []byte{0xF0, 1, 2, 0xF8, 3, 0xF7})
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Kind != KindRealtime || evs[1].Kind != KindSysEx {
		t.Fatalf("got %v %v", evs[0], evs[1])
	}
	if !bytes.Equal(evs[1].Payload, []byte{1, 2, 3}) {
		t.Errorf("payload % X", evs[1].Payload)
	}
}

func TestDecoder_SysExOverflow(t *testing.T) {
	d := NewDecoder(WithSysExCapacity(8))

	in := []byte{0xF0}
	for i := 0; i < 12; i++ {
		in = append(in, byte(i))
	}
	in = append(in, 0xF7)

	evs := feed(d, in)
	if len(evs) != 1 || evs[0].Kind != KindSysExOverflow {
		t.Fatalf("expected a single overflow signal, got %v", evs)
	}

	// Back to idle: a following message decodes normally
	evs = feed(d, []byte{0x90, 60, 100})
	if len(evs) != 1 || evs[0].Kind != KindNoteOn {
		t.Fatalf("decoder not recovered: %v", evs)
	}
}

func TestDecoder_SysExAbandonedByStatus(t *testing.T) {
	d := NewDecoder()
	evs := feed(d, []byte{0xF0, 1, 2, 3, 0x91, 64, 90})
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].Kind != KindNoteOn || evs[0].Channel != 1 || evs[0].Note() != 64 {
		t.Errorf("got %v", evs[0])
	}
}

func TestDecoder_NoRunningStatusAfterSysEx(t *testing.T) {
	d := NewDecoder()
	evs := feed(d, []byte{0x90, 60, 100, 0xF0, 1, 0xF7, 62, 100})
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[1].Kind != KindSysEx {
		t.Errorf("got %v", evs[1])
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	feed(d, []byte{0x90, 60})
	d.Reset()
	if d.RunningStatus() != 0 {
		t.Fatalf("running status survived reset")
	}
	if evs := feed(d, []byte{100, 62, 90}); len(evs) != 0 {
		t.Fatalf("expected data to be dropped after reset, got %v", evs)
	}
}

func TestDecoder_StrayEndAndUndefinedClearRunningStatus(t *testing.T) {
	for _, st := range []byte{0xF7, 0xF4, 0xF5} {
		d := NewDecoder()
		evs := feed(d, []byte{0x90, 60, 100, st, 62, 100})
		if len(evs) != 1 {
			t.Errorf("status 0x%02X: expected 1 event, got %d", st, len(evs))
		}
	}
}

func TestNoteName(t *testing.T) {
	for n, want := range map[uint8]string{0: "C-1", 60: "C4", 69: "A4", 127: "G9"} {
		if got := NoteName(n); got != want {
			t.Errorf("NoteName(%d) = %q, want %q", n, got, want)
		}
	}
}
