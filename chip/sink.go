// Package chip turns register decisions into OPN2 bus traffic.
package chip

import (
	"sync/atomic"

	"fmsynth/debug"
	"fmsynth/synth"
)

// Bus is the write side of the chip's four ports. Port 0/1 are the address
// latch and data of part I (bank 0), ports 2/3 the same for part II.
type Bus interface {
	WritePort(port, val byte) error
}

// Sink drives a Bus. It implements synth.Sink.
type Sink struct {
	bus    Bus
	errors atomic.Uint64
}

// NewSink creates a sink writing to bus
func NewSink(bus Bus) *Sink {
	return &Sink{bus: bus}
}

// WriteRegister latches addr then writes data on the bank's port pair
func (s *Sink) WriteRegister(addr, data byte, bank int) {
	port := byte(bank&1) * 2
	if err := s.bus.WritePort(port, addr); err != nil {
		s.fail(err)
		return
	}
	if err := s.bus.WritePort(port+1, data); err != nil {
		s.fail(err)
	}
}

// KeyOn starts all four operators of a voice
func (s *Sink) KeyOn(voice int) {
	s.WriteRegister(synth.RegKeyOnOff, 0xF0|synth.KeyCode(voice), 0)
}

// KeyOff releases all four operators of a voice
func (s *Sink) KeyOff(voice int) {
	s.WriteRegister(synth.RegKeyOnOff, synth.KeyCode(voice), 0)
}

// PushFullPreset writes the whole register image of m
func (s *Sink) PushFullPreset(m *synth.Model) {
	for _, w := range m.Registers() {
		s.WriteRegister(w.Addr, w.Data, w.Bank)
	}
}

// Errors returns how many bus writes failed
func (s *Sink) Errors() uint64 {
	return s.errors.Load()
}

func (s *Sink) fail(err error) {
	// Bus failures repeat on every write; log one in 64
	n := s.errors.Add(1)
	debug.LogEvery(64, "chip", "bus write failed (%d): %v", n, err)
}
