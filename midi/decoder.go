package midi

import (
	"fmsynth/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// DefaultSysExCapacity bounds a single SysEx capture
const DefaultSysExCapacity = 400

type decoderState uint8

const (
	stateIdle  decoderState = iota // waiting for a status byte (or running status data)
	stateData                      // collecting data bytes for the running status
	stateSysEx                     // capturing SysEx payload
)

// Decoder turns a MIDI byte stream into Events. It keeps running status
// between calls but no other history. Not safe for concurrent use: there is
// one decoder per transport, fed by a single goroutine.
type Decoder struct {
	state   decoderState
	running uint8 // 0 = no running status
	need    int   // data bytes expected for running
	data    [2]uint8
	n       int

	sysex    []byte
	capacity int
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithSysExCapacity sets the SysEx capture buffer size
func WithSysExCapacity(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.capacity = n
		}
	}
}

// NewDecoder creates a decoder in the idle state
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{capacity: DefaultSysExCapacity}
	for _, opt := range opts {
		opt(d)
	}
	d.sysex = make([]byte, 0, d.capacity)
	return d
}

// Reset clears running status and returns the decoder to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.running = 0
	d.need = 0
	d.n = 0
	d.sysex = d.sysex[:0]
}

// RunningStatus returns the current running status byte (0 if none)
func (d *Decoder) RunningStatus() uint8 {
	return d.running
}

// FeedAll feeds every byte of p and calls emit for each completed event
func (d *Decoder) FeedAll(p []byte, emit func(Event)) {
	for _, b := range p {
		if ev, ok := d.Feed(b); ok {
			emit(ev)
		}
	}
}

// Feed consumes one byte and returns the event it completes, if any.
func (d *Decoder) Feed(b byte) (Event, bool) {
	if IsRealtime(b) {
		// Delivered singly; FSM position and running status are untouched
		return Event{Kind: KindRealtime, Data1: b, Message: gomidi.Message{b}}, true
	}

	if IsStatus(b) {
		if d.state == stateSysEx {
			if b == SysExEnd {
				return d.finishSysEx(), true
			}
			debug.Log("decoder", "sysex abandoned after %d bytes by status 0x%02X", len(d.sysex), b)
			d.sysex = d.sysex[:0]
			d.state = stateIdle
		}
		return d.status(b)
	}

	switch d.state {
	case stateSysEx:
		if len(d.sysex) >= d.capacity {
			debug.Log("decoder", "sysex overflow at %d bytes", len(d.sysex))
			d.Reset()
			return Event{Kind: KindSysExOverflow}, true
		}
		d.sysex = append(d.sysex, b)
		return Event{}, false
	}

	if d.running == 0 {
		// No running status established: drop silently
		return Event{}, false
	}

	d.data[d.n] = b
	d.n++
	if d.n < d.need {
		d.state = stateData
		return Event{}, false
	}

	ev := d.emit()
	d.n = 0
	d.state = stateIdle
	return ev, true
}

// status handles a non-realtime status byte outside a SysEx capture
func (d *Decoder) status(b byte) (Event, bool) {
	d.n = 0
	d.state = stateIdle

	switch b {
	case SysExStart:
		d.running = 0
		d.sysex = d.sysex[:0]
		d.state = stateSysEx
		return Event{}, false
	case TuneRequest:
		d.running = 0
		return Event{Kind: KindTuneRequest, Message: gomidi.Message{b}}, true
	}

	need := dataLen(b)
	if need == 0 {
		// Stray 0xF7 or undefined 0xF4/0xF5
		d.running = 0
		return Event{}, false
	}

	d.running = b
	d.need = need
	return Event{}, false
}

func (d *Decoder) finishSysEx() Event {
	payload := append([]byte(nil), d.sysex...)
	raw := make([]byte, 0, len(payload)+2)
	raw = append(raw, SysExStart)
	raw = append(raw, payload...)
	raw = append(raw, SysExEnd)

	d.sysex = d.sysex[:0]
	d.state = stateIdle
	d.running = 0

	return Event{Kind: KindSysEx, Payload: payload, Message: gomidi.Message(raw)}
}

func (d *Decoder) emit() Event {
	st := d.running
	ev := Event{Data1: d.data[0]}
	if d.need == 2 {
		ev.Data2 = d.data[1]
		ev.Message = gomidi.Message{st, d.data[0], d.data[1]}
	} else {
		ev.Message = gomidi.Message{st, d.data[0]}
	}

	if st < 0xF0 {
		ev.Channel = st & 0x0F
		switch st & 0xF0 {
		case NoteOff:
			ev.Kind = KindNoteOff
		case NoteOn:
			ev.Kind = KindNoteOn
		case PolyPressure:
			ev.Kind = KindPolyPressure
		case CC:
			ev.Kind = KindControlChange
		case ProgramChange:
			ev.Kind = KindProgramChange
		case ChannelPressure:
			ev.Kind = KindChannelPressure
		case PitchBend:
			ev.Kind = KindPitchBend
		}
		return ev
	}

	switch st {
	case TimeCode:
		ev.Kind = KindTimeCode
	case SongPosition:
		ev.Kind = KindSongPosition
	case SongSelect:
		ev.Kind = KindSongSelect
	}
	return ev
}

// dataLen returns the number of data bytes that follow status b
func dataLen(b byte) int {
	if b < 0xF0 {
		switch b & 0xF0 {
		case ProgramChange, ChannelPressure:
			return 1
		default:
			return 2
		}
	}
	switch b {
	case TimeCode, SongSelect:
		return 1
	case SongPosition:
		return 2
	}
	return 0
}
