package synth

import (
	"errors"
	"fmt"
)

// Operator is one FM operator
type Operator struct {
	Detune       uint8 `json:"detune"`
	Multiple     uint8 `json:"multiple"`
	TotalLevel   uint8 `json:"total_level"`
	KeyScale     uint8 `json:"key_scale"`
	AttackRate   uint8 `json:"attack_rate"`
	AmpMod       uint8 `json:"amp_mod"`
	DecayRate    uint8 `json:"decay_rate"`
	SustainRate  uint8 `json:"sustain_rate"`
	SustainLevel uint8 `json:"sustain_level"`
	ReleaseRate  uint8 `json:"release_rate"`
	SSGEnvelope  uint8 `json:"ssg_envelope"`
}

// Channel is one voice of the chip
type Channel struct {
	Feedback     uint8                  `json:"feedback"`
	Algorithm    uint8                  `json:"algorithm"`
	AudioOut     uint8                  `json:"audio_out"` // bit 1 left, bit 0 right
	AmpModSens   uint8                  `json:"amp_mod_sens"`
	PhaseModSens uint8                  `json:"phase_mod_sens"`
	Operators    [NumOperators]Operator `json:"operators"`
}

// Model is the complete sound of the chip
type Model struct {
	LFOOn    uint8               `json:"lfo_on"`
	LFOFreq  uint8               `json:"lfo_freq"`
	Channels [NumVoices]Channel `json:"channels"`
}

const (
	operatorImageSize = 11
	channelImageSize  = 5 + NumOperators*operatorImageSize

	// ModelImageSize is the length of a marshalled Model
	ModelImageSize = 2 + NumVoices*channelImageSize
)

var ErrImageSize = errors.New("synth: bad model image size")

// field returns the storage for a parameter, or nil if voice/op is out of
// range for the parameter's scope
func (m *Model) field(id ParamID, voice, op int) *uint8 {
	switch id.Scope() {
	case ScopeDevice:
		switch id {
		case ParamLFOOn:
			return &m.LFOOn
		case ParamLFOFreq:
			return &m.LFOFreq
		}
		return nil
	}

	if voice < 0 || voice >= NumVoices {
		return nil
	}
	ch := &m.Channels[voice]

	switch id {
	case ParamFeedback:
		return &ch.Feedback
	case ParamAlgorithm:
		return &ch.Algorithm
	case ParamAudioOut:
		return &ch.AudioOut
	case ParamAmpModSens:
		return &ch.AmpModSens
	case ParamPhaseModSens:
		return &ch.PhaseModSens
	}

	if op < 0 || op >= NumOperators {
		return nil
	}
	o := &ch.Operators[op]

	switch id {
	case ParamDetune:
		return &o.Detune
	case ParamMultiple:
		return &o.Multiple
	case ParamTotalLevel:
		return &o.TotalLevel
	case ParamKeyScale:
		return &o.KeyScale
	case ParamAttackRate:
		return &o.AttackRate
	case ParamAmpMod:
		return &o.AmpMod
	case ParamDecayRate:
		return &o.DecayRate
	case ParamSustainRate:
		return &o.SustainRate
	case ParamSustainLevel:
		return &o.SustainLevel
	case ParamReleaseRate:
		return &o.ReleaseRate
	case ParamSSGEnvelope:
		return &o.SSGEnvelope
	}
	return nil
}

// Get reads one parameter. voice and op are ignored where the scope does not
// need them.
func (m *Model) Get(id ParamID, voice, op int) (int, bool) {
	f := m.field(id, voice, op)
	if f == nil {
		return 0, false
	}
	return int(*f), true
}

// Set writes one parameter, clamped to its range
func (m *Model) Set(id ParamID, voice, op int, v int) bool {
	f := m.field(id, voice, op)
	if f == nil {
		return false
	}
	*f = uint8(id.Clamp(v))
	return true
}

// Clamp forces every value into its chip range
func (m *Model) Clamp() {
	m.Set(ParamLFOOn, 0, 0, int(m.LFOOn))
	m.Set(ParamLFOFreq, 0, 0, int(m.LFOFreq))
	for v := 0; v < NumVoices; v++ {
		for id := ParamFeedback; id < NumParams; id++ {
			if id.Scope() == ScopeChannel {
				x, _ := m.Get(id, v, 0)
				m.Set(id, v, 0, x)
				continue
			}
			for op := 0; op < NumOperators; op++ {
				x, _ := m.Get(id, v, op)
				m.Set(id, v, op, x)
			}
		}
	}
}

// MarshalBinary packs the model into ModelImageSize bytes, all below 0x80 so
// the image can travel inside SysEx unchanged
func (m Model) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, ModelImageSize)
	buf = append(buf, m.LFOOn, m.LFOFreq)
	for _, ch := range m.Channels {
		buf = append(buf, ch.Feedback, ch.Algorithm, ch.AudioOut, ch.AmpModSens, ch.PhaseModSens)
		for _, o := range ch.Operators {
			buf = append(buf,
				o.Detune, o.Multiple, o.TotalLevel, o.KeyScale, o.AttackRate, o.AmpMod,
				o.DecayRate, o.SustainRate, o.SustainLevel, o.ReleaseRate, o.SSGEnvelope,
			)
		}
	}
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary. Values are clamped.
func (m *Model) UnmarshalBinary(data []byte) error {
	if len(data) != ModelImageSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrImageSize, len(data), ModelImageSize)
	}

	m.LFOOn, m.LFOFreq = data[0], data[1]
	p := data[2:]
	for v := range m.Channels {
		ch := &m.Channels[v]
		ch.Feedback, ch.Algorithm, ch.AudioOut, ch.AmpModSens, ch.PhaseModSens = p[0], p[1], p[2], p[3], p[4]
		p = p[5:]
		for i := range ch.Operators {
			o := &ch.Operators[i]
			o.Detune, o.Multiple, o.TotalLevel, o.KeyScale = p[0], p[1], p[2], p[3]
			o.AttackRate, o.AmpMod, o.DecayRate, o.SustainRate = p[4], p[5], p[6], p[7]
			o.SustainLevel, o.ReleaseRate, o.SSGEnvelope = p[8], p[9], p[10]
			p = p[operatorImageSize:]
		}
	}
	m.Clamp()
	return nil
}

// Carriers returns which operators of an algorithm reach the output
func Carriers(algorithm uint8) [NumOperators]bool {
	switch algorithm & 0x07 {
	case 4:
		return [NumOperators]bool{false, true, false, true}
	case 5, 6:
		return [NumOperators]bool{false, true, true, true}
	case 7:
		return [NumOperators]bool{true, true, true, true}
	}
	return [NumOperators]bool{false, false, false, true}
}
