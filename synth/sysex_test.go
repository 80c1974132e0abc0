package synth

import (
	"errors"
	"testing"
)

func TestSysExSavePreset(t *testing.T) {
	rec := NewPresetRecord("Glass~Bells", romBank[5].Model)
	payload := EncodeSavePreset(3, rec)

	if len(payload) != 2+32+ModelImageSize {
		t.Fatalf("payload is %d bytes", len(payload))
	}
	// 'G' is 0x47: low nibble first
	if payload[2] != 0x07 || payload[3] != 0x04 {
		t.Errorf("name nibbles % X", payload[2:4])
	}

	req, err := ParseSysEx(payload)
	if err != nil {
		t.Fatalf("ParseSysEx: %v", err)
	}
	if req.Command != SysExSavePreset || req.Slot != 3 {
		t.Errorf("got command %d slot %d", req.Command, req.Slot)
	}
	if req.Record != rec {
		t.Errorf("record changed: %q", req.Record.NameString())
	}
}

func TestSysExLoadPreset(t *testing.T) {
	req, err := ParseSysEx(EncodeLoadPreset(7))
	if err != nil {
		t.Fatalf("ParseSysEx: %v", err)
	}
	if req.Command != SysExLoadPreset || req.Slot != 7 {
		t.Errorf("got %+v", req)
	}
}

func TestSysExErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{"empty", nil, ErrSysExLength},
		{"unknown command", []byte{0x05, 1}, ErrSysExCommand},
		{"short load", []byte{SysExLoadPreset}, ErrSysExLength},
		{"long load", []byte{SysExLoadPreset, 1, 2}, ErrSysExLength},
		{"short save", []byte{SysExSavePreset, 0, 1, 2}, ErrSysExLength},
		{"high bit", []byte{SysExLoadPreset, 0x81}, ErrSysExData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSysEx(tt.payload); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}
