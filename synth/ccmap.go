package synth

import (
	"fmt"
	"sort"
)

// CCMap binds MIDI controller numbers to parameters
type CCMap map[uint8]ParamID

// DefaultCCMap is the controller layout used when the config has none
func DefaultCCMap() CCMap {
	return CCMap{
		1:  ParamLFOFreq,
		14: ParamAlgorithm,
		15: ParamFeedback,
		16: ParamTotalLevel,
		17: ParamMultiple,
		18: ParamDetune,
		19: ParamAttackRate,
		20: ParamDecayRate,
		21: ParamSustainRate,
		22: ParamSustainLevel,
		23: ParamReleaseRate,
		24: ParamKeyScale,
		25: ParamAudioOut,
		26: ParamAmpModSens,
		27: ParamPhaseModSens,
		28: ParamLFOOn,
	}
}

// ParseCCMap builds a map from controller number to parameter name, as
// stored in the config file
func ParseCCMap(names map[string]string) (CCMap, error) {
	m := make(CCMap, len(names))
	for k, name := range names {
		var cc int
		if _, err := fmt.Sscanf(k, "%d", &cc); err != nil || cc < 0 || cc > 127 {
			return nil, fmt.Errorf("cc map: bad controller %q", k)
		}
		id, ok := ParamByName(name)
		if !ok {
			return nil, fmt.Errorf("cc map: unknown parameter %q", name)
		}
		m[uint8(cc)] = id
	}
	return m, nil
}

// Controllers returns the mapped controller numbers in ascending order
func (m CCMap) Controllers() []uint8 {
	out := make([]uint8, 0, len(m))
	for cc := range m {
		out = append(out, cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ScaleCC maps a 0-127 controller value onto the parameter's range
func ScaleCC(id ParamID, value uint8) int {
	lo, hi := id.Range()
	v := int(min(value, 127))
	return lo + (v*(hi-lo)+63)/127
}
