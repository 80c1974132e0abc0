package chip

import (
	"bytes"
	"errors"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"

	"fmsynth/synth"
)

func TestSink_WriteRegisterUsesBankPorts(t *testing.T) {
	rec := NewRecorder()
	s := NewSink(rec)

	s.WriteRegister(0xB1, 0x3A, 0)
	s.WriteRegister(0x42, 0x11, 1)

	want := []PortWrite{{0, 0xB1}, {1, 0x3A}, {2, 0x42}, {3, 0x11}}
	got := rec.Writes()
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if v, ok := rec.Register(1, 0x42); !ok || v != 0x11 {
		t.Errorf("Register(1, $42) = %v %v", v, ok)
	}
}

func TestSink_KeyOnOff(t *testing.T) {
	rec := NewRecorder()
	s := NewSink(rec)

	s.KeyOn(4)
	if v, _ := rec.Register(0, 0x28); v != 0xF5 {
		t.Errorf("key on voice 4 wrote $%02X", v)
	}
	if !rec.Keyed(4) || rec.Keyed(1) {
		t.Errorf("key state wrong")
	}

	s.KeyOff(4)
	if v, _ := rec.Register(0, 0x28); v != 0x05 {
		t.Errorf("key off voice 4 wrote $%02X", v)
	}
	if rec.Keyed(4) {
		t.Errorf("voice 4 still keyed")
	}
}

func TestSink_PushFullPreset(t *testing.T) {
	rec := NewRecorder()
	s := NewSink(rec)
	m := synth.ROMPresets()[1].Model

	s.PushFullPreset(&m)
	for _, w := range m.Registers() {
		v, ok := rec.Register(w.Bank, w.Addr)
		if !ok || v != w.Data {
			t.Fatalf("register %d:$%02X = $%02X, want $%02X", w.Bank, w.Addr, v, w.Data)
		}
	}
}

type failingBus struct{ n int }

func (b *failingBus) WritePort(port, val byte) error {
	b.n++
	return errors.New("bus down")
}

func TestSink_CountsErrors(t *testing.T) {
	bus := &failingBus{}
	s := NewSink(bus)
	s.WriteRegister(0x22, 0x08, 0)
	s.KeyOn(0)

	// A failed address latch skips the data write
	if bus.n != 2 || s.Errors() != 2 {
		t.Errorf("writes=%d errors=%d", bus.n, s.Errors())
	}
}

func TestMIDIBus(t *testing.T) {
	var sent []gomidi.Message
	bus := NewMIDIBus(func(msg gomidi.Message) error {
		sent = append(sent, msg)
		return nil
	})

	if err := bus.WritePort(2, 0xB4); err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 {
		t.Fatalf("sent %d messages", len(sent))
	}
	want := []byte{0xF0, 0x7D, 0x01, 0x02, 0x0B, 0x04, 0xF7}
	if !bytes.Equal(sent[0], want) {
		t.Errorf("frame % X, want % X", []byte(sent[0]), want)
	}

	port, val, ok := ParsePortFrame(want[1 : len(want)-1])
	if !ok || port != 2 || val != 0xB4 {
		t.Errorf("ParsePortFrame = %d $%02X %v", port, val, ok)
	}
}
