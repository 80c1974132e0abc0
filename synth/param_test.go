package synth

import "testing"

func TestVoiceSelector(t *testing.T) {
	tests := []struct {
		in    int
		ok    bool
		all   bool
		index int
	}{
		{0, true, false, 0},
		{5, true, false, 5},
		{6, true, true, -1},
		{7, false, false, 0},
		{-1, false, false, 0},
	}
	for _, tt := range tests {
		sel, ok := VoiceSelector(tt.in)
		if ok != tt.ok {
			t.Errorf("VoiceSelector(%d) ok = %v", tt.in, ok)
			continue
		}
		if !ok {
			continue
		}
		if sel.IsAll() != tt.all || sel.Index() != tt.index {
			t.Errorf("VoiceSelector(%d) = %v", tt.in, sel)
		}
		if sel.Sentinel(NumVoices) != tt.in {
			t.Errorf("VoiceSelector(%d).Sentinel = %d", tt.in, sel.Sentinel(NumVoices))
		}
	}
}

func TestOperatorSelector(t *testing.T) {
	sel, ok := OperatorSelector(4)
	if !ok || !sel.IsAll() {
		t.Fatalf("operator 4 should select all, got %v %v", sel, ok)
	}
	if _, ok := OperatorSelector(5); ok {
		t.Errorf("operator 5 should be invalid")
	}
	if got := sel.Expand(NumOperators); len(got) != 4 || got[3] != 3 {
		t.Errorf("Expand = %v", got)
	}
	if got := Specific(9).Expand(NumOperators); got != nil {
		t.Errorf("out of range Expand = %v", got)
	}
}

func TestParamByName(t *testing.T) {
	for id := ParamID(0); id < NumParams; id++ {
		got, ok := ParamByName(id.String())
		if !ok || got != id {
			t.Errorf("ParamByName(%q) = %v, %v", id.String(), got, ok)
		}
	}
	if id, ok := ParamByName("Total-Level"); !ok || id != ParamTotalLevel {
		t.Errorf("ParamByName is not lenient: %v %v", id, ok)
	}
	if _, ok := ParamByName("cutoff"); ok {
		t.Errorf("unknown name resolved")
	}
}

func TestScaleCC(t *testing.T) {
	tests := []struct {
		id    ParamID
		value uint8
		want  int
	}{
		{ParamTotalLevel, 0, 0},
		{ParamTotalLevel, 127, 127},
		{ParamTotalLevel, 64, 64},
		{ParamAlgorithm, 0, 0},
		{ParamAlgorithm, 127, 7},
		{ParamAlgorithm, 64, 4},
		{ParamLFOOn, 63, 0},
		{ParamLFOOn, 64, 1},
	}
	for _, tt := range tests {
		if got := ScaleCC(tt.id, tt.value); got != tt.want {
			t.Errorf("ScaleCC(%s, %d) = %d, want %d", tt.id, tt.value, got, tt.want)
		}
	}
}

func TestParseCCMap(t *testing.T) {
	m, err := ParseCCMap(map[string]string{"74": "total_level", "71": "feedback"})
	if err != nil {
		t.Fatalf("ParseCCMap: %v", err)
	}
	if m[74] != ParamTotalLevel || m[71] != ParamFeedback {
		t.Errorf("got %v", m)
	}
	if got := m.Controllers(); len(got) != 2 || got[0] != 71 {
		t.Errorf("Controllers = %v", got)
	}

	if _, err := ParseCCMap(map[string]string{"200": "feedback"}); err == nil {
		t.Errorf("expected error for controller 200")
	}
	if _, err := ParseCCMap(map[string]string{"10": "resonance"}); err == nil {
		t.Errorf("expected error for unknown parameter")
	}
}
