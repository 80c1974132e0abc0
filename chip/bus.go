package chip

import (
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"fmsynth/debug"
	"fmsynth/synth"
)

// SysEx framing for a chip board attached over MIDI: non-commercial
// manufacturer id, then port and the value split into nibbles.
const (
	manufacturerID = 0x7D
	cmdWritePort   = 0x01
)

// PortFrame returns the SysEx payload carrying one port write
func PortFrame(port, val byte) []byte {
	return []byte{manufacturerID, cmdWritePort, port & 0x03, val >> 4, val & 0x0F}
}

// ParsePortFrame is the inverse of PortFrame
func ParsePortFrame(payload []byte) (port, val byte, ok bool) {
	if len(payload) != 5 || payload[0] != manufacturerID || payload[1] != cmdWritePort {
		return 0, 0, false
	}
	return payload[2], payload[3]<<4 | payload[4]&0x0F, true
}

// MIDIBus forwards port writes to an external chip board as SysEx
type MIDIBus struct {
	send func(gomidi.Message) error
	port string
}

// OpenMIDIBus opens outPort and returns a bus writing to it
func OpenMIDIBus(outPort drivers.Out) (*MIDIBus, error) {
	send, err := gomidi.SendTo(outPort)
	if err != nil {
		return nil, fmt.Errorf("open chip port %s: %w", outPort.String(), err)
	}
	return &MIDIBus{send: send, port: outPort.String()}, nil
}

// NewMIDIBus wraps an existing send function
func NewMIDIBus(send func(gomidi.Message) error) *MIDIBus {
	return &MIDIBus{send: send}
}

func (b *MIDIBus) WritePort(port, val byte) error {
	return b.send(gomidi.SysEx(PortFrame(port, val)))
}

// LogBus writes every port access to the debug log
type LogBus struct{}

func (LogBus) WritePort(port, val byte) error {
	debug.Log("chip", "port %d <- $%02X", port, val)
	return nil
}

// PortWrite is one recorded bus access
type PortWrite struct {
	Port, Val byte
}

// Recorder keeps every write and tracks the resulting register contents
type Recorder struct {
	mu     sync.Mutex
	writes []PortWrite
	latch  [2]byte
	regs   [2][256]byte
	set    [2][256]bool
	keys   [synth.NumVoices]bool
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) WritePort(port, val byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writes = append(r.writes, PortWrite{port, val})
	bank := int(port>>1) & 1
	if port&1 == 0 {
		r.latch[bank] = val
		return nil
	}
	addr := r.latch[bank]
	r.regs[bank][addr] = val
	r.set[bank][addr] = true

	if bank == 0 && addr == synth.RegKeyOnOff {
		if ch := int(val & 0x03); ch < 3 {
			r.keys[ch+3*int(val>>2&1)] = val&0xF0 != 0
		}
	}
	return nil
}

// Writes returns a copy of the write log
func (r *Recorder) Writes() []PortWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PortWrite(nil), r.writes...)
}

// Register returns the last value written to addr in bank
func (r *Recorder) Register(bank int, addr byte) (byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regs[bank&1][addr], r.set[bank&1][addr]
}

// Keyed reports whether the last $28 write for voice keyed it on
func (r *Recorder) Keyed(voice int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if voice < 0 || voice >= len(r.keys) {
		return false
	}
	return r.keys[voice]
}

// Reset forgets the write log, keeping register contents
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
}
