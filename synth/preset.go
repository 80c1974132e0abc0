package synth

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

const (
	// NameLen is the fixed width of a preset name
	NameLen = 16

	// RecordSize is the flash element size of a PresetRecord
	RecordSize = len(recordMagic) + NameLen + ModelImageSize + 4
)

var recordMagic = [4]byte{'F', 'M', 'P', '1'}

// Preset errors
var (
	ErrEmptySlot  = errors.New("synth: preset slot is empty")
	ErrCorrupt    = errors.New("synth: preset record is corrupt")
	ErrNoPreset   = errors.New("synth: no such preset")
	ErrNoBank     = errors.New("synth: no such bank")
	ErrNoUserBank = errors.New("synth: user bank unavailable")
)

// PresetRecord is a named model snapshot as stored in a user slot
type PresetRecord struct {
	Name  [NameLen]byte
	Model Model
}

// NewPresetRecord builds a record, truncating or space-padding name
func NewPresetRecord(name string, m Model) PresetRecord {
	var r PresetRecord
	r.SetName(name)
	r.Model = m
	return r
}

// SetName stores name as fixed-width printable ASCII
func (r *PresetRecord) SetName(name string) {
	for i := range r.Name {
		r.Name[i] = ' '
	}
	for i := 0; i < len(name) && i < NameLen; i++ {
		c := name[i]
		if c < 0x20 || c > 0x7E {
			c = '?'
		}
		r.Name[i] = c
	}
}

// NameString returns the name without trailing padding
func (r PresetRecord) NameString() string {
	return strings.TrimRight(string(r.Name[:]), " \x00")
}

// MarshalBinary lays out magic, name, model image and a CRC32 of everything
// before it
func (r PresetRecord) MarshalBinary() ([]byte, error) {
	img, err := r.Model.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, RecordSize)
	buf = append(buf, recordMagic[:]...)
	buf = append(buf, r.Name[:]...)
	buf = append(buf, img...)
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return buf, nil
}

// UnmarshalBinary decodes a stored record. A slot without the magic (never
// written or cleared) reports ErrEmptySlot.
func (r *PresetRecord) UnmarshalBinary(data []byte) error {
	if len(data) < RecordSize {
		return fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	data = data[:RecordSize]
	if !bytes.Equal(data[:4], recordMagic[:]) {
		return ErrEmptySlot
	}
	body, sum := data[:RecordSize-4], binary.LittleEndian.Uint32(data[RecordSize-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return ErrCorrupt
	}

	copy(r.Name[:], body[4:4+NameLen])
	return r.Model.UnmarshalBinary(body[4+NameLen:])
}

// ClearedRecord is written to a user slot to mark it empty
func ClearedRecord() []byte {
	return make([]byte, RecordSize)
}

// Banks
const (
	BankROM  = 0
	BankUser = 1
)

// Preset is a named factory sound
type Preset struct {
	Name  string
	Model Model
}

// patch builds a model with every voice set to the same channel settings
func patch(feedback, algorithm uint8, ops [NumOperators]Operator) Model {
	var m Model
	for v := range m.Channels {
		m.Channels[v] = Channel{
			Feedback:  feedback,
			Algorithm: algorithm,
			AudioOut:  3,
			Operators: ops,
		}
	}
	return m
}

func op(mul, tl, ar, dr, sr, sl, rr uint8) Operator {
	return Operator{Multiple: mul, TotalLevel: tl, AttackRate: ar, DecayRate: dr, SustainRate: sr, SustainLevel: sl, ReleaseRate: rr}
}

// DefaultModel is the sound loaded when nothing else is available
func DefaultModel() Model {
	return romBank[0].Model
}

var romBank = []Preset{
	{"Init", patch(0, 7, [4]Operator{
		op(1, 127, 31, 0, 0, 0, 15),
		op(1, 127, 31, 0, 0, 0, 15),
		op(1, 127, 31, 0, 0, 0, 15),
		op(1, 0, 31, 0, 0, 0, 8),
	})},
	{"E.Piano", patch(4, 4, [4]Operator{
		op(14, 40, 31, 12, 2, 5, 6),
		op(1, 0, 31, 8, 3, 4, 6),
		op(1, 30, 31, 10, 2, 5, 6),
		op(1, 4, 31, 6, 2, 3, 6),
	})},
	{"Bass", patch(6, 0, [4]Operator{
		op(0, 28, 31, 14, 0, 6, 8),
		op(1, 36, 31, 12, 0, 5, 8),
		op(0, 24, 31, 10, 0, 4, 8),
		op(1, 0, 31, 8, 4, 2, 9),
	})},
	{"Brass", patch(5, 2, [4]Operator{
		op(1, 30, 18, 6, 0, 2, 7),
		op(1, 34, 20, 6, 0, 2, 7),
		op(1, 28, 16, 5, 0, 2, 7),
		op(1, 2, 17, 4, 1, 1, 8),
	})},
	{"Organ", patch(0, 7, [4]Operator{
		op(1, 10, 31, 0, 0, 0, 10),
		op(2, 14, 31, 0, 0, 0, 10),
		op(4, 20, 31, 0, 0, 0, 10),
		op(8, 26, 31, 0, 0, 0, 10),
	})},
	{"Bell", patch(3, 4, [4]Operator{
		op(7, 34, 31, 8, 4, 6, 5),
		op(1, 2, 31, 6, 3, 8, 5),
		op(3, 38, 31, 9, 4, 6, 5),
		op(1, 6, 31, 5, 3, 8, 5),
	})},
	{"Strings", patch(2, 5, [4]Operator{
		op(1, 26, 12, 2, 0, 1, 6),
		op(1, 10, 13, 2, 0, 1, 6),
		op(2, 14, 12, 2, 0, 1, 6),
		op(1, 12, 14, 2, 0, 1, 6),
	})},
	{"Pluck", patch(7, 3, [4]Operator{
		op(3, 30, 31, 18, 8, 9, 9),
		op(1, 38, 31, 16, 8, 9, 9),
		op(5, 42, 31, 20, 10, 10, 9),
		op(1, 0, 31, 12, 6, 7, 10),
	})},
}

// ROMPresets lists the factory bank
func ROMPresets() []Preset {
	return append([]Preset(nil), romBank...)
}
