package voice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Mode is the allocation policy
type Mode uint8

const (
	Mono Mode = iota
	Poly
)

func (m Mode) String() string {
	switch m {
	case Mono:
		return "mono"
	case Poly:
		return "poly"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode accepts "mono" or "poly"
func ParseMode(s string) (Mode, error) {
	switch s {
	case "mono", "Mono", "MONO":
		return Mono, nil
	case "poly", "Poly", "POLY":
		return Poly, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// ChannelConfig is the persisted MIDI setup
type ChannelConfig struct {
	Mode        Mode  `json:"mode"`
	BaseChannel uint8 `json:"base_channel"`
	Bank        uint8 `json:"bank"`
	Program     uint8 `json:"program"`
}

// DefaultConfig is used when flash holds nothing usable
func DefaultConfig() ChannelConfig {
	return ChannelConfig{Mode: Poly}
}

func (c ChannelConfig) String() string {
	return fmt.Sprintf("%s ch=%d bank=%d prog=%d", c.Mode, c.BaseChannel+1, c.Bank, c.Program)
}

// ConfigRecordSize is the flash element size of a ChannelConfig
const ConfigRecordSize = 16

var configMagic = [4]byte{'M', 'C', 'F', '1'}

var ErrBadRecord = errors.New("voice: bad config record")

// MarshalBinary encodes magic, the four fields, a CRC32 and zero padding
func (c ChannelConfig) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, ConfigRecordSize)
	buf = append(buf, configMagic[:]...)
	buf = append(buf, byte(c.Mode), c.BaseChannel, c.Bank, c.Program)
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return append(buf, make([]byte, ConfigRecordSize-len(buf))...), nil
}

func (c *ChannelConfig) UnmarshalBinary(data []byte) error {
	if len(data) < 12 || !bytes.Equal(data[:4], configMagic[:]) {
		return ErrBadRecord
	}
	if crc32.ChecksumIEEE(data[:8]) != binary.LittleEndian.Uint32(data[8:12]) {
		return fmt.Errorf("%w: checksum", ErrBadRecord)
	}
	cfg := ChannelConfig{Mode: Mode(data[4]), BaseChannel: data[5], Bank: data[6], Program: data[7]}
	if cfg.Mode > Poly || cfg.BaseChannel > 15 {
		return fmt.Errorf("%w: %v", ErrBadRecord, cfg)
	}
	*c = cfg
	return nil
}
