package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Status bytes (channel messages carry the channel in the low nibble)
const (
	NoteOff         uint8 = 0x80
	NoteOn          uint8 = 0x90
	PolyPressure    uint8 = 0xA0
	CC              uint8 = 0xB0
	ProgramChange   uint8 = 0xC0
	ChannelPressure uint8 = 0xD0
	PitchBend       uint8 = 0xE0

	SysExStart   uint8 = 0xF0
	TimeCode     uint8 = 0xF1
	SongPosition uint8 = 0xF2
	SongSelect   uint8 = 0xF3
	TuneRequest  uint8 = 0xF6
	SysExEnd     uint8 = 0xF7

	// 0xF8-0xFF are realtime and never touch running status
	realtimeFirst uint8 = 0xF8
)

// Kind tags a decoded Event
type Kind uint8

const (
	KindNone Kind = iota
	KindNoteOff
	KindNoteOn
	KindPolyPressure
	KindControlChange
	KindProgramChange
	KindChannelPressure
	KindPitchBend
	KindTimeCode
	KindSongPosition
	KindSongSelect
	KindTuneRequest
	KindRealtime
	KindSysEx
	KindSysExOverflow
)

var kindNames = [...]string{
	KindNone:            "none",
	KindNoteOff:         "note-off",
	KindNoteOn:          "note-on",
	KindPolyPressure:    "poly-pressure",
	KindControlChange:   "cc",
	KindProgramChange:   "program-change",
	KindChannelPressure: "channel-pressure",
	KindPitchBend:       "pitch-bend",
	KindTimeCode:        "time-code",
	KindSongPosition:    "song-position",
	KindSongSelect:      "song-select",
	KindTuneRequest:     "tune-request",
	KindRealtime:        "realtime",
	KindSysEx:           "sysex",
	KindSysExOverflow:   "sysex-overflow",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Event is one complete message produced by the Decoder.
//
// Channel, Data1 and Data2 are filled for channel messages; Data1/Data2 also
// carry the data bytes of system common messages. Payload holds the SysEx
// bytes between 0xF0 and 0xF7. Message is the complete raw message.
type Event struct {
	Kind    Kind
	Channel uint8
	Data1   uint8
	Data2   uint8
	Payload []byte
	Message gomidi.Message
}

// Note returns the key number of note and poly pressure messages
func (e Event) Note() uint8 { return e.Data1 }

// Velocity returns the velocity of note messages
func (e Event) Velocity() uint8 { return e.Data2 }

// PitchBendValue returns the 14-bit pitch bend (or song position) value
func (e Event) PitchBendValue() uint16 {
	return uint16(e.Data1) | uint16(e.Data2)<<7
}

func (e Event) String() string {
	switch e.Kind {
	case KindSysEx:
		return fmt.Sprintf("sysex len=%d", len(e.Payload))
	case KindSysExOverflow:
		return "sysex overflow"
	case KindRealtime:
		return fmt.Sprintf("realtime 0x%02X", e.Data1)
	}
	return fmt.Sprintf("%s ch=%d d1=%d d2=%d", e.Kind, e.Channel, e.Data1, e.Data2)
}

// IsRealtime reports whether b is a single-byte realtime status (0xF8-0xFF)
func IsRealtime(b byte) bool {
	return b >= realtimeFirst
}

// IsStatus reports whether b has the high bit set
func IsStatus(b byte) bool {
	return b&0x80 != 0
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the scientific pitch name of a note number (60 is C4)
func NoteName(n uint8) string {
	return fmt.Sprintf("%s%d", noteNames[n%12], int(n)/12-1)
}
