// Package flash implements a wear-leveling append log over raw flash pages.
package flash

import (
	"errors"
	"fmt"
	"sync"
)

// Erased is the value of every byte of an erased page
const Erased = 0xFF

// Geometry describes a block device: BlockCount erase blocks of BlockSize
// bytes, programmed in atomic units of UnitSize bytes.
type Geometry struct {
	BlockSize  int `json:"blockSize"`
	BlockCount int `json:"blockCount"`
	UnitSize   int `json:"unitSize"`
}

// Size returns the total device size in bytes
func (g Geometry) Size() int {
	return g.BlockSize * g.BlockCount
}

// Validate checks the geometry is usable
func (g Geometry) Validate() error {
	switch {
	case g.BlockSize <= 0 || g.BlockCount <= 0 || g.UnitSize <= 0:
		return fmt.Errorf("geometry %+v: sizes must be positive", g)
	case g.BlockSize%g.UnitSize != 0:
		return fmt.Errorf("geometry %+v: block size is not a multiple of the unit size", g)
	}
	return nil
}

// BlockDevice is the flash HAL the store runs on.
type BlockDevice interface {
	Geometry() Geometry
	// Read copies len(buf) bytes starting at offset within block
	Read(block, offset int, buf []byte) error
	// Program writes one atomic unit at an absolute, unit-aligned address.
	// The target must be erased.
	Program(addr int, unit []byte) error
	// Erase sets every byte of block to Erased
	Erase(block int) error
}

// Device errors
var (
	ErrOutOfRange = errors.New("flash: access out of range")
	ErrUnaligned  = errors.New("flash: unaligned program")
	ErrNotErased  = errors.New("flash: program target not erased")
	ErrInjected   = errors.New("flash: injected failure")
)

// MemDevice is a RAM-backed NOR flash emulation with erase counters and
// fault injection.
type MemDevice struct {
	mu  sync.Mutex
	geo Geometry
	mem []byte

	erases   []int
	programs int

	failProgramIn int // fail the Nth next program (1 = next one), 0 = off
	failErase     map[int]bool
}

// NewMemDevice creates an erased device
func NewMemDevice(geo Geometry) (*MemDevice, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	d := &MemDevice{
		geo:       geo,
		mem:       make([]byte, geo.Size()),
		erases:    make([]int, geo.BlockCount),
		failErase: make(map[int]bool),
	}
	for i := range d.mem {
		d.mem[i] = Erased
	}
	return d, nil
}

func (d *MemDevice) Geometry() Geometry {
	return d.geo
}

func (d *MemDevice) Read(block, offset int, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if block < 0 || block >= d.geo.BlockCount || offset < 0 || offset+len(buf) > d.geo.BlockSize {
		return ErrOutOfRange
	}
	start := block*d.geo.BlockSize + offset
	copy(buf, d.mem[start:start+len(buf)])
	return nil
}

func (d *MemDevice) Program(addr int, unit []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(unit) != d.geo.UnitSize || addr%d.geo.UnitSize != 0 {
		return ErrUnaligned
	}
	if addr < 0 || addr+len(unit) > len(d.mem) {
		return ErrOutOfRange
	}
	if d.failProgramIn > 0 {
		d.failProgramIn--
		if d.failProgramIn == 0 {
			return ErrInjected
		}
	}
	for _, b := range d.mem[addr : addr+len(unit)] {
		if b != Erased {
			return ErrNotErased
		}
	}
	copy(d.mem[addr:], unit)
	d.programs++
	return nil
}

func (d *MemDevice) Erase(block int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if block < 0 || block >= d.geo.BlockCount {
		return ErrOutOfRange
	}
	if d.failErase[block] {
		return ErrInjected
	}
	start := block * d.geo.BlockSize
	for i := start; i < start+d.geo.BlockSize; i++ {
		d.mem[i] = Erased
	}
	d.erases[block]++
	return nil
}

// EraseCount returns how many times block has been erased
func (d *MemDevice) EraseCount(block int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.erases[block]
}

// Programs returns the number of successful unit programs
func (d *MemDevice) Programs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.programs
}

// FailProgramIn makes the nth next Program call fail (1 = the next call).
func (d *MemDevice) FailProgramIn(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failProgramIn = n
}

// FailErase makes every Erase of block fail while set
func (d *MemDevice) FailErase(block int, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failErase[block] = fail
}
