package flash

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileDevice keeps a flash image in a file so the store survives restarts of
// the host process. It enforces the same program/erase rules as MemDevice.
type FileDevice struct {
	mu  sync.Mutex
	geo Geometry
	f   *os.File
}

// OpenFileDevice opens (or creates, erased) the image at path
func OpenFileDevice(path string, geo Geometry) (*FileDevice, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open flash image: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	// Grow a short (or new) image with erased bytes
	if size := int64(geo.Size()); st.Size() < size {
		pad := bytes.Repeat([]byte{Erased}, int(size-st.Size()))
		if _, err := f.WriteAt(pad, st.Size()); err != nil {
			f.Close()
			return nil, fmt.Errorf("extend flash image: %w", err)
		}
	}

	return &FileDevice{geo: geo, f: f}, nil
}

func (d *FileDevice) Geometry() Geometry {
	return d.geo
}

func (d *FileDevice) Read(block, offset int, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if block < 0 || block >= d.geo.BlockCount || offset < 0 || offset+len(buf) > d.geo.BlockSize {
		return ErrOutOfRange
	}
	_, err := d.f.ReadAt(buf, int64(block*d.geo.BlockSize+offset))
	return err
}

func (d *FileDevice) Program(addr int, unit []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(unit) != d.geo.UnitSize || addr%d.geo.UnitSize != 0 {
		return ErrUnaligned
	}
	if addr < 0 || addr+len(unit) > d.geo.Size() {
		return ErrOutOfRange
	}

	cur := make([]byte, len(unit))
	if _, err := d.f.ReadAt(cur, int64(addr)); err != nil {
		return err
	}
	for _, b := range cur {
		if b != Erased {
			return ErrNotErased
		}
	}
	if _, err := d.f.WriteAt(unit, int64(addr)); err != nil {
		return err
	}
	return d.f.Sync()
}

func (d *FileDevice) Erase(block int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if block < 0 || block >= d.geo.BlockCount {
		return ErrOutOfRange
	}
	blank := bytes.Repeat([]byte{Erased}, d.geo.BlockSize)
	if _, err := d.f.WriteAt(blank, int64(block*d.geo.BlockSize)); err != nil {
		return err
	}
	return d.f.Sync()
}

// Close closes the image file
func (d *FileDevice) Close() error {
	return d.f.Close()
}
