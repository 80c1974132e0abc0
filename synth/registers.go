package synth

import "math"

// RegisterWrite is one OPN2 register write. Bank 0 addresses voices 0-2 and
// the global registers, bank 1 voices 3-5.
type RegisterWrite struct {
	Bank int
	Addr byte
	Data byte
}

// OPN2 register addresses
const (
	RegLFO       = 0x22
	RegKeyOnOff  = 0x28
	RegDetuneMul = 0x30
	RegTotalLvl  = 0x40
	RegKSAttack  = 0x50
	RegAMDecay   = 0x60
	RegSustain   = 0x70
	RegSLRelease = 0x80
	RegSSGEG     = 0x90
	RegFNumLow   = 0xA0
	RegFNumHigh  = 0xA4
	RegFBAlgo    = 0xB0
	RegOutput    = 0xB4
)

// ChipClock is the OPN2 master clock (NTSC)
const ChipClock = 7670454

// operator register slots are ordered S1, S3, S2, S4
var operatorSlot = [NumOperators]byte{0, 2, 1, 3}

// VoiceAddress returns the bank and in-bank channel number of a voice
func VoiceAddress(voice int) (bank int, ch byte) {
	return voice / 3, byte(voice % 3)
}

// KeyCode returns the $28 channel field for a voice
func KeyCode(voice int) byte {
	bank, ch := VoiceAddress(voice)
	return byte(bank<<2) | ch
}

func operatorAddr(base byte, voice, op int) (int, byte) {
	bank, ch := VoiceAddress(voice)
	return bank, base + operatorSlot[op]<<2 + ch
}

func channelAddr(base byte, voice int) (int, byte) {
	bank, ch := VoiceAddress(voice)
	return bank, base + ch
}

func (m *Model) lfoWrite() RegisterWrite {
	return RegisterWrite{Bank: 0, Addr: RegLFO, Data: m.LFOOn<<3 | m.LFOFreq&0x07}
}

func (m *Model) channelWrite(base byte, voice int) RegisterWrite {
	ch := &m.Channels[voice]
	var data byte
	switch base {
	case RegFBAlgo:
		data = ch.Feedback<<3 | ch.Algorithm
	case RegOutput:
		data = ch.AudioOut<<6 | ch.AmpModSens<<4 | ch.PhaseModSens
	}
	bank, addr := channelAddr(base, voice)
	return RegisterWrite{Bank: bank, Addr: addr, Data: data}
}

func (m *Model) operatorWrite(base byte, voice, op int) RegisterWrite {
	o := &m.Channels[voice].Operators[op]
	var data byte
	switch base {
	case RegDetuneMul:
		data = o.Detune<<4 | o.Multiple
	case RegTotalLvl:
		data = o.TotalLevel
	case RegKSAttack:
		data = o.KeyScale<<6 | o.AttackRate
	case RegAMDecay:
		data = o.AmpMod<<7 | o.DecayRate
	case RegSustain:
		data = o.SustainRate
	case RegSLRelease:
		data = o.SustainLevel<<4 | o.ReleaseRate
	case RegSSGEG:
		data = o.SSGEnvelope
	}
	bank, addr := operatorAddr(base, voice, op)
	return RegisterWrite{Bank: bank, Addr: addr, Data: data}
}

var operatorBases = []byte{RegDetuneMul, RegTotalLvl, RegKSAttack, RegAMDecay, RegSustain, RegSLRelease, RegSSGEG}

// VoiceRegisters returns every register of one voice
func (m *Model) VoiceRegisters(voice int) []RegisterWrite {
	out := make([]RegisterWrite, 0, 2+len(operatorBases)*NumOperators)
	for _, base := range operatorBases {
		for op := 0; op < NumOperators; op++ {
			out = append(out, m.operatorWrite(base, voice, op))
		}
	}
	out = append(out, m.channelWrite(RegFBAlgo, voice), m.channelWrite(RegOutput, voice))
	return out
}

// Registers returns the complete register image of the model
func (m *Model) Registers() []RegisterWrite {
	out := []RegisterWrite{m.lfoWrite()}
	for v := 0; v < NumVoices; v++ {
		out = append(out, m.VoiceRegisters(v)...)
	}
	return out
}

// ParamRegister returns the register holding a parameter after it changed
func (m *Model) ParamRegister(id ParamID, voice, op int) (RegisterWrite, bool) {
	if m.field(id, voice, op) == nil {
		return RegisterWrite{}, false
	}
	switch id {
	case ParamLFOOn, ParamLFOFreq:
		return m.lfoWrite(), true
	case ParamFeedback, ParamAlgorithm:
		return m.channelWrite(RegFBAlgo, voice), true
	case ParamAudioOut, ParamAmpModSens, ParamPhaseModSens:
		return m.channelWrite(RegOutput, voice), true
	case ParamDetune, ParamMultiple:
		return m.operatorWrite(RegDetuneMul, voice, op), true
	case ParamTotalLevel:
		return m.operatorWrite(RegTotalLvl, voice, op), true
	case ParamKeyScale, ParamAttackRate:
		return m.operatorWrite(RegKSAttack, voice, op), true
	case ParamAmpMod, ParamDecayRate:
		return m.operatorWrite(RegAMDecay, voice, op), true
	case ParamSustainRate:
		return m.operatorWrite(RegSustain, voice, op), true
	case ParamSustainLevel, ParamReleaseRate:
		return m.operatorWrite(RegSLRelease, voice, op), true
	case ParamSSGEnvelope:
		return m.operatorWrite(RegSSGEG, voice, op), true
	}
	return RegisterWrite{}, false
}

// FNumber converts a MIDI note to an 11-bit F-number and 3-bit block, keeping
// the F-number as large as possible for resolution
func FNumber(note uint8) (fnum uint16, block uint8) {
	freq := 440 * math.Pow(2, (float64(note)-69)/12)
	f := freq * 144 * (1 << 21) / ChipClock
	for f > 2047 && block < 7 {
		f /= 2
		block++
	}
	if f > 2047 {
		f = 2047
	}
	return uint16(math.Round(f)) & 0x7FF, block
}

// FrequencyRegisters returns the writes that tune a voice to note. The high
// byte goes first; the chip latches it until the low byte arrives.
func FrequencyRegisters(voice int, note uint8) []RegisterWrite {
	fnum, block := FNumber(note)
	bank, hi := channelAddr(RegFNumHigh, voice)
	_, lo := channelAddr(RegFNumLow, voice)
	return []RegisterWrite{
		{Bank: bank, Addr: hi, Data: block<<3 | byte(fnum>>8)},
		{Bank: bank, Addr: lo, Data: byte(fnum)},
	}
}

// VelocityLevels returns total level writes for a voice at the given
// velocity. Carriers are attenuated by up to 31 steps as velocity falls;
// modulators keep their programmed level.
func (m *Model) VelocityLevels(voice int, velocity uint8) []RegisterWrite {
	ch := &m.Channels[voice]
	carriers := Carriers(ch.Algorithm)
	out := make([]RegisterWrite, 0, NumOperators)
	for op := 0; op < NumOperators; op++ {
		w := m.operatorWrite(RegTotalLvl, voice, op)
		if carriers[op] {
			w.Data = byte(ParamTotalLevel.Clamp(int(w.Data) + int(127-min(velocity, 127))>>2))
		}
		out = append(out, w)
	}
	return out
}

// SilentLevels returns writes that set every operator of a voice to maximum
// attenuation
func SilentLevels(voice int) []RegisterWrite {
	out := make([]RegisterWrite, 0, NumOperators)
	for op := 0; op < NumOperators; op++ {
		bank, addr := operatorAddr(RegTotalLvl, voice, op)
		out = append(out, RegisterWrite{Bank: bank, Addr: addr, Data: 0x7F})
	}
	return out
}
