// Package synth holds the FM device model: parameters, presets and the
// register image pushed to the sound chip.
package synth

import (
	"fmt"
	"strings"
)

const (
	NumVoices    = 6
	NumOperators = 4
)

// Scope says which part of the model a parameter lives in
type Scope uint8

const (
	ScopeDevice Scope = iota
	ScopeChannel
	ScopeOperator
)

func (s Scope) String() string {
	switch s {
	case ScopeDevice:
		return "device"
	case ScopeChannel:
		return "channel"
	case ScopeOperator:
		return "operator"
	}
	return "unknown"
}

// ParamID is a logical parameter id
type ParamID uint8

const (
	ParamLFOOn ParamID = iota
	ParamLFOFreq

	ParamFeedback
	ParamAlgorithm
	ParamAudioOut
	ParamAmpModSens
	ParamPhaseModSens

	ParamDetune
	ParamMultiple
	ParamTotalLevel
	ParamKeyScale
	ParamAttackRate
	ParamAmpMod
	ParamDecayRate
	ParamSustainRate
	ParamSustainLevel
	ParamReleaseRate
	ParamSSGEnvelope

	NumParams
)

// ParamInfo describes one parameter
type ParamInfo struct {
	Name     string
	Scope    Scope
	Min, Max int
}

var params = [NumParams]ParamInfo{
	ParamLFOOn:   {"lfo_on", ScopeDevice, 0, 1},
	ParamLFOFreq: {"lfo_freq", ScopeDevice, 0, 7},

	ParamFeedback:     {"feedback", ScopeChannel, 0, 7},
	ParamAlgorithm:    {"algorithm", ScopeChannel, 0, 7},
	ParamAudioOut:     {"audio_out", ScopeChannel, 0, 3},
	ParamAmpModSens:   {"amp_mod_sens", ScopeChannel, 0, 3},
	ParamPhaseModSens: {"phase_mod_sens", ScopeChannel, 0, 7},

	ParamDetune:       {"detune", ScopeOperator, 0, 7},
	ParamMultiple:     {"multiple", ScopeOperator, 0, 15},
	ParamTotalLevel:   {"total_level", ScopeOperator, 0, 127},
	ParamKeyScale:     {"key_scale", ScopeOperator, 0, 3},
	ParamAttackRate:   {"attack_rate", ScopeOperator, 0, 31},
	ParamAmpMod:       {"amp_mod", ScopeOperator, 0, 1},
	ParamDecayRate:    {"decay_rate", ScopeOperator, 0, 31},
	ParamSustainRate:  {"sustain_rate", ScopeOperator, 0, 31},
	ParamSustainLevel: {"sustain_level", ScopeOperator, 0, 15},
	ParamReleaseRate:  {"release_rate", ScopeOperator, 0, 15},
	ParamSSGEnvelope:  {"ssg_envelope", ScopeOperator, 0, 15},
}

// Valid reports whether id names a known parameter
func (id ParamID) Valid() bool {
	return id < NumParams
}

// Info returns the parameter's description
func (id ParamID) Info() (ParamInfo, bool) {
	if !id.Valid() {
		return ParamInfo{}, false
	}
	return params[id], true
}

func (id ParamID) Scope() Scope {
	if !id.Valid() {
		return ScopeDevice
	}
	return params[id].Scope
}

// Range returns the inclusive chip range of the parameter
func (id ParamID) Range() (min, max int) {
	if !id.Valid() {
		return 0, 0
	}
	return params[id].Min, params[id].Max
}

// Clamp limits v to the parameter's range
func (id ParamID) Clamp(v int) int {
	lo, hi := id.Range()
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (id ParamID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("param(%d)", uint8(id))
	}
	return params[id].Name
}

// ParamByName looks a parameter up by its name (case-insensitive, '-' and
// '_' are interchangeable)
func ParamByName(name string) (ParamID, bool) {
	name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for id := ParamID(0); id < NumParams; id++ {
		if params[id].Name == name {
			return id, true
		}
	}
	return 0, false
}

// Selector addresses either one voice/operator or all of them
type Selector struct {
	index int
	all   bool
}

// All selects every voice or operator
var All = Selector{all: true}

// Specific selects a single index
func Specific(i int) Selector {
	return Selector{index: i}
}

// VoiceSelector converts a protocol voice index, where NumVoices means all
// voices. Anything above that is invalid.
func VoiceSelector(i int) (Selector, bool) {
	return fromIndex(i, NumVoices)
}

// OperatorSelector converts a protocol operator index, where NumOperators
// means all operators
func OperatorSelector(i int) (Selector, bool) {
	return fromIndex(i, NumOperators)
}

func fromIndex(i, n int) (Selector, bool) {
	switch {
	case i < 0 || i > n:
		return Selector{}, false
	case i == n:
		return All, true
	}
	return Specific(i), true
}

// IsAll reports whether s is the broadcast selector
func (s Selector) IsAll() bool {
	return s.all
}

// Index returns the selected index, or -1 for All
func (s Selector) Index() int {
	if s.all {
		return -1
	}
	return s.index
}

// Sentinel returns the protocol form of s for a set of n entities: n for All
func (s Selector) Sentinel(n int) int {
	if s.all {
		return n
	}
	return s.index
}

// Expand lists the indices s covers among n entities. A specific index out of
// range yields nothing.
func (s Selector) Expand(n int) []int {
	if s.all {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if s.index < 0 || s.index >= n {
		return nil
	}
	return []int{s.index}
}

func (s Selector) String() string {
	if s.all {
		return "all"
	}
	return fmt.Sprintf("%d", s.index)
}
