package synth

import (
	"errors"
	"fmt"
)

// SysEx sub-commands, byte 0 of the payload
const (
	SysExSavePreset = 0x00
	SysExLoadPreset = 0x01
)

const (
	sysExNameLen = NameLen * 2
	sysExSaveLen = 2 + sysExNameLen + ModelImageSize
	sysExLoadLen = 2
)

var (
	ErrSysExCommand = errors.New("synth: unknown sysex command")
	ErrSysExLength  = errors.New("synth: bad sysex length")
	ErrSysExData    = errors.New("synth: sysex data byte out of range")
)

// SysExRequest is a decoded application SysEx payload
type SysExRequest struct {
	Command byte
	Slot    int
	Record  PresetRecord // SavePreset only
}

// ParseSysEx decodes the payload between 0xF0 and 0xF7.
//
// SavePreset: 0x00 slot name(16 chars as low/high nibble pairs) model image.
// LoadPreset: 0x01 slot.
func ParseSysEx(payload []byte) (SysExRequest, error) {
	if len(payload) == 0 {
		return SysExRequest{}, fmt.Errorf("%w: empty", ErrSysExLength)
	}
	for i, b := range payload {
		if b >= 0x80 {
			return SysExRequest{}, fmt.Errorf("%w: offset %d", ErrSysExData, i)
		}
	}

	req := SysExRequest{Command: payload[0]}
	switch req.Command {
	case SysExLoadPreset:
		if len(payload) != sysExLoadLen {
			return SysExRequest{}, fmt.Errorf("%w: load %d bytes", ErrSysExLength, len(payload))
		}
		req.Slot = int(payload[1])

	case SysExSavePreset:
		if len(payload) != sysExSaveLen {
			return SysExRequest{}, fmt.Errorf("%w: save %d bytes", ErrSysExLength, len(payload))
		}
		req.Slot = int(payload[1])
		name := payload[2 : 2+sysExNameLen]
		for i := 0; i < NameLen; i++ {
			req.Record.Name[i] = name[2*i]&0x0F | name[2*i+1]<<4
		}
		if err := req.Record.Model.UnmarshalBinary(payload[2+sysExNameLen:]); err != nil {
			return SysExRequest{}, err
		}

	default:
		return SysExRequest{}, fmt.Errorf("%w: 0x%02X", ErrSysExCommand, req.Command)
	}
	return req, nil
}

// EncodeSavePreset builds a SavePreset payload
func EncodeSavePreset(slot int, rec PresetRecord) []byte {
	img, _ := rec.Model.MarshalBinary()
	buf := make([]byte, 0, sysExSaveLen)
	buf = append(buf, SysExSavePreset, byte(slot)&0x7F)
	for _, c := range rec.Name {
		buf = append(buf, c&0x0F, c>>4)
	}
	return append(buf, img...)
}

// EncodeLoadPreset builds a LoadPreset payload
func EncodeLoadPreset(slot int) []byte {
	return []byte{SysExLoadPreset, byte(slot) & 0x7F}
}
