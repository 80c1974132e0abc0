package synth

import (
	"bytes"
	"testing"
)

func TestModelImage(t *testing.T) {
	m := romBank[1].Model
	m.LFOOn, m.LFOFreq = 1, 5
	m.Channels[4].Operators[2].SSGEnvelope = 9

	img, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(img) != ModelImageSize || ModelImageSize != 296 {
		t.Fatalf("image is %d bytes", len(img))
	}
	for i, b := range img {
		if b >= 0x80 {
			t.Fatalf("byte %d = 0x%02X is not 7-bit", i, b)
		}
	}

	var got Model
	if err := got.UnmarshalBinary(img); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got != m {
		t.Errorf("model changed across image round trip")
	}

	if err := got.UnmarshalBinary(img[:10]); err == nil {
		t.Errorf("short image accepted")
	}
}

func TestModelClamp(t *testing.T) {
	var m Model
	m.LFOFreq = 99
	m.Channels[0].Algorithm = 12
	m.Channels[5].Operators[3].TotalLevel = 200
	m.Clamp()

	if m.LFOFreq != 7 || m.Channels[0].Algorithm != 7 || m.Channels[5].Operators[3].TotalLevel != 127 {
		t.Errorf("not clamped: lfo=%d alg=%d tl=%d", m.LFOFreq, m.Channels[0].Algorithm, m.Channels[5].Operators[3].TotalLevel)
	}
}

func TestParamRegister(t *testing.T) {
	var m Model
	m.Channels[4].Operators[1].TotalLevel = 42
	m.Channels[4].Operators[1].Detune = 3
	m.Channels[4].Operators[1].Multiple = 5
	m.Channels[1].Feedback = 6
	m.Channels[1].Algorithm = 2
	m.Channels[2].AudioOut = 2
	m.Channels[2].AmpModSens = 1
	m.Channels[2].PhaseModSens = 7
	m.LFOOn, m.LFOFreq = 1, 3

	tests := []struct {
		name  string
		id    ParamID
		voice int
		op    int
		want  RegisterWrite
	}{
		// operator 1 sits in register slot 2, voice 4 is bank 1 channel 1
		{"total level", ParamTotalLevel, 4, 1, RegisterWrite{1, 0x49, 42}},
		{"detune/multiple", ParamMultiple, 4, 1, RegisterWrite{1, 0x39, 3<<4 | 5}},
		{"feedback/algorithm", ParamAlgorithm, 1, 0, RegisterWrite{0, 0xB1, 6<<3 | 2}},
		{"output", ParamAudioOut, 2, 0, RegisterWrite{0, 0xB6, 0x80 | 1<<4 | 7}},
		{"lfo", ParamLFOFreq, 0, 0, RegisterWrite{0, 0x22, 0x08 | 3}},
		{"operator 2 slot", ParamTotalLevel, 0, 2, RegisterWrite{0, 0x44, 0}},
	}
	for _, tt := range tests {
		got, ok := m.ParamRegister(tt.id, tt.voice, tt.op)
		if !ok || got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.name, got, tt.want)
		}
	}

	if _, ok := m.ParamRegister(ParamTotalLevel, 6, 0); ok {
		t.Errorf("voice 6 has no register")
	}
}

func TestRegistersCoverEveryVoice(t *testing.T) {
	m := DefaultModel()
	regs := m.Registers()
	if len(regs) != 1+NumVoices*(7*NumOperators+2) {
		t.Fatalf("got %d registers", len(regs))
	}

	seen := make(map[[2]int]bool)
	for _, w := range regs {
		key := [2]int{w.Bank, int(w.Addr)}
		if seen[key] {
			t.Fatalf("register %d:$%02X written twice", w.Bank, w.Addr)
		}
		seen[key] = true
		if w.Addr&0x03 == 3 {
			t.Errorf("write to unused channel slot $%02X", w.Addr)
		}
	}
}

func TestFNumber(t *testing.T) {
	tests := []struct {
		note  uint8
		fnum  uint16
		block uint8
	}{
		{69, 1083, 4},
		{60, 1288, 3},
		{0, 322, 0},
		{127, 2047, 7},
	}
	for _, tt := range tests {
		fnum, block := FNumber(tt.note)
		if fnum != tt.fnum || block != tt.block {
			t.Errorf("note %d: got %d/%d, want %d/%d", tt.note, fnum, block, tt.fnum, tt.block)
		}
	}

	regs := FrequencyRegisters(3, 69)
	want := []RegisterWrite{{1, 0xA4, 4<<3 | 1083>>8}, {1, 0xA0, 1083 & 0xFF}}
	if len(regs) != 2 || regs[0] != want[0] || regs[1] != want[1] {
		t.Errorf("FrequencyRegisters = %+v", regs)
	}
}

func TestVelocityLevels(t *testing.T) {
	m := romBank[0].Model // algorithm 7, every operator is a carrier
	m.Channels[0].Algorithm = 4
	m.Channels[0].Operators[0].TotalLevel = 20
	m.Channels[0].Operators[1].TotalLevel = 10

	full := m.VelocityLevels(0, 127)
	soft := m.VelocityLevels(0, 1)

	if full[0].Data != 20 || soft[0].Data != 20 {
		t.Errorf("modulator level changed with velocity: %d %d", full[0].Data, soft[0].Data)
	}
	if full[1].Data != 10 || soft[1].Data != 10+31 {
		t.Errorf("carrier levels: full=%d soft=%d", full[1].Data, soft[1].Data)
	}
	if soft[3].Data != 31 {
		t.Errorf("carrier 3 soft level = %d", soft[3].Data)
	}

	silent := SilentLevels(5)
	for _, w := range silent {
		if w.Bank != 1 || w.Data != 0x7F {
			t.Errorf("silent write %+v", w)
		}
	}
}

func TestPresetRecordBinary(t *testing.T) {
	rec := NewPresetRecord("Warm Pad", romBank[6].Model)
	data, err := rec.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(data) != RecordSize || RecordSize%8 != 0 {
		t.Fatalf("record is %d bytes", len(data))
	}

	var got PresetRecord
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got != rec || got.NameString() != "Warm Pad" {
		t.Errorf("record changed: %q", got.NameString())
	}

	data[100] ^= 0x01
	if err := got.UnmarshalBinary(data); err != ErrCorrupt {
		t.Errorf("corrupt record: %v", err)
	}
	if err := got.UnmarshalBinary(ClearedRecord()); err != ErrEmptySlot {
		t.Errorf("cleared record: %v", err)
	}
	if err := got.UnmarshalBinary(bytes.Repeat([]byte{0xFF}, RecordSize)); err != ErrEmptySlot {
		t.Errorf("erased record: %v", err)
	}
}

func TestPresetName(t *testing.T) {
	r := NewPresetRecord("A name that is far too long", Model{})
	if r.NameString() != "A name that is f" {
		t.Errorf("got %q", r.NameString())
	}
	r.SetName("tab\there")
	if r.NameString() != "tab?here" {
		t.Errorf("got %q", r.NameString())
	}
}
