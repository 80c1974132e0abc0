package flash

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"fmsynth/debug"
)

// Status is the outcome of Init
type Status int

const (
	StatusOK Status = iota
	StatusNotInit
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotInit:
		return "NOT_INIT"
	default:
		return "ERROR"
	}
}

// Error kinds attached with ftag
const (
	KindNotInit ftag.Kind = "NOT_INIT"
	KindStorage ftag.Kind = "STORAGE"
	KindLayout  ftag.Kind = "LAYOUT"
	KindInvalid ftag.Kind = "INVALID_ARGUMENT"
)

// Store errors
var (
	ErrNotInit   = errors.New("flash: layout not initialised")
	ErrBadLayout = errors.New("flash: invalid layout")
	ErrTooLarge  = errors.New("flash: element larger than layout element size")
	ErrAllErased = errors.New("flash: element ends in a unit indistinguishable from erased flash")
)

// Layout is one logical record type: NumPages pages starting at StartPage,
// each holding fixed-size elements packed from offset 0.
//
// The current append position is recovered by Init and advanced by Save.
type Layout struct {
	Name        string
	StartPage   int
	NumPages    int
	ElementSize int

	page  int // relative to StartPage
	elem  int
	ready bool
}

// NewLayout describes a region; call Store.Init before use
func NewLayout(name string, startPage, numPages, elementSize int) *Layout {
	return &Layout{Name: name, StartPage: startPage, NumPages: numPages, ElementSize: elementSize}
}

// Store is the persistent config store shared by every subsystem. A single
// mutex serialises all operations on all layouts, including erase/program
// latency.
type Store struct {
	mu  sync.Mutex
	dev BlockDevice
	geo Geometry
}

// NewStore wraps a block device
func NewStore(dev BlockDevice) *Store {
	return &Store{dev: dev, geo: dev.Geometry()}
}

// Geometry returns the underlying device geometry
func (s *Store) Geometry() Geometry {
	return s.geo
}

// PerPage returns how many elements of l fit in one page
func (s *Store) PerPage(l *Layout) int {
	if l.ElementSize <= 0 {
		return 0
	}
	return s.geo.BlockSize / l.ElementSize
}

// Capacity returns how many saves l absorbs before wrapping to page 0
func (s *Store) Capacity(l *Layout) int {
	return s.PerPage(l) * l.NumPages
}

// Position returns the page (relative to StartPage) and element index of the
// most recently committed record. ok is false while the layout is NOT_INIT.
func (s *Store) Position(l *Layout) (page, elem int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return l.page, l.elem, l.ready
}

func (s *Store) validate(l *Layout) error {
	switch {
	case l.NumPages <= 0 || l.StartPage < 0 || l.StartPage+l.NumPages > s.geo.BlockCount:
		return fmt.Errorf("%w: %s pages %d+%d outside %d blocks", ErrBadLayout, l.Name, l.StartPage, l.NumPages, s.geo.BlockCount)
	case l.ElementSize <= 0 || l.ElementSize > s.geo.BlockSize:
		return fmt.Errorf("%w: %s element size %d", ErrBadLayout, l.Name, l.ElementSize)
	case l.ElementSize%s.geo.UnitSize != 0:
		return fmt.Errorf("%w: %s element size %d is not a multiple of %d", ErrBadLayout, l.Name, l.ElementSize, s.geo.UnitSize)
	}
	return nil
}

// Init scans l in program order. The first all-erased slot ends the scan.
// A slot whose last unit is still erased was cut short and is skipped. With
// no committed slot the layout is NOT_INIT and must be formatted.
func (s *Store) Init(l *Layout) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ready = false
	if err := s.validate(l); err != nil {
		return StatusError, fault.Wrap(err, ftag.With(KindLayout))
	}

	perPage := s.PerPage(l)
	buf := make([]byte, l.ElementSize)
	found := false

scan:
	for p := 0; p < l.NumPages; p++ {
		for e := 0; e < perPage; e++ {
			if err := s.readElement(l, p, e, buf); err != nil {
				return StatusError, fault.Wrap(err, ftag.With(KindStorage), fmsg.With("scan "+l.Name))
			}
			if isErased(buf) {
				break scan
			}
			if !s.committed(buf) {
				debug.Log("flash", "%s: uncommitted slot page=%d elem=%d", l.Name, p, e)
				continue
			}
			l.page, l.elem = p, e
			found = true
		}
	}

	if !found {
		debug.Log("flash", "%s: not initialised", l.Name)
		return StatusNotInit, nil
	}

	l.ready = true
	debug.Log("flash", "%s: position page=%d elem=%d", l.Name, l.page, l.elem)
	return StatusOK, nil
}

// Format erases the layout's first page and writes initial at slot 0
func (s *Store) Format(l *Layout, initial []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(l); err != nil {
		return fault.Wrap(err, ftag.With(KindLayout))
	}
	elem, err := s.element(l, initial)
	if err != nil {
		return err
	}

	l.ready = false
	if err := s.dev.Erase(l.StartPage); err != nil {
		return fault.Wrap(err, ftag.With(KindStorage), fmsg.With("format "+l.Name))
	}
	if err := s.program(l, 0, 0, elem); err != nil {
		return fault.Wrap(err, ftag.With(KindStorage), fmsg.With("format "+l.Name))
	}

	l.page, l.elem, l.ready = 0, 0, true
	debug.Log("flash", "%s: formatted", l.Name)
	return nil
}

// Save appends data to l. A page is only erased when the append position
// moves onto it; once the last page is full the log wraps to page 0. On any
// failure the previous append position is kept.
func (s *Store) Save(l *Layout, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !l.ready {
		return fault.Wrap(ErrNotInit, ftag.With(KindNotInit), fmsg.With("save "+l.Name))
	}
	elem, err := s.element(l, data)
	if err != nil {
		return err
	}

	page, idx, err := s.nextSlot(l)
	if err != nil {
		return fault.Wrap(err, ftag.With(KindStorage), fmsg.With("save "+l.Name))
	}

	// This save fills the page: the next page must hold no previous cycle's
	// records before it commits, or a scan after reset would run into them.
	if idx == s.PerPage(l)-1 && page+1 < l.NumPages {
		if err := s.clearPage(l, page+1); err != nil {
			return fault.Wrap(err, ftag.With(KindStorage), fmsg.With(fmt.Sprintf("save %s: erase page %d", l.Name, page+1)))
		}
	}

	if err := s.program(l, page, idx, elem); err != nil {
		return fault.Wrap(err, ftag.With(KindStorage), fmsg.With("save "+l.Name))
	}

	l.page, l.elem = page, idx
	return nil
}

// Get returns the most recently written element of l. Whether its content is
// meaningful is up to the caller.
func (s *Store) Get(l *Layout) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !l.ready {
		return nil, fault.Wrap(ErrNotInit, ftag.With(KindNotInit), fmsg.With("get "+l.Name))
	}
	buf := make([]byte, l.ElementSize)
	if err := s.readElement(l, l.page, l.elem, buf); err != nil {
		return nil, fault.Wrap(err, ftag.With(KindStorage), fmsg.With("get "+l.Name))
	}
	return buf, nil
}

// nextSlot picks where the next element goes, erasing a page when the
// position moves onto it. Slots left dirty by an earlier failed save are
// skipped.
func (s *Store) nextSlot(l *Layout) (page, idx int, err error) {
	perPage := s.PerPage(l)
	page, idx = l.page, l.elem
	buf := make([]byte, l.ElementSize)

	for {
		idx++
		if idx < perPage {
			if err := s.readElement(l, page, idx, buf); err != nil {
				return 0, 0, err
			}
			if isErased(buf) {
				return page, idx, nil
			}
			debug.Log("flash", "%s: skipping dirty slot page=%d elem=%d", l.Name, page, idx)
			continue
		}

		// Next page, or wrap to page 0 once the log is full
		page, idx = page+1, 0
		if page >= l.NumPages {
			page = 0
		}
		blank, err := s.pageBlank(l, page)
		if err != nil {
			return 0, 0, err
		}
		// Page 0 is always erased on wrap; it holds the oldest records
		if !blank || page == 0 {
			if err := s.dev.Erase(l.StartPage + page); err != nil {
				return 0, 0, err
			}
		}
		return page, 0, nil
	}
}

// element pads data to the layout's element size
func (s *Store) element(l *Layout, data []byte) ([]byte, error) {
	if len(data) > l.ElementSize {
		return nil, fault.Wrap(ErrTooLarge, ftag.With(KindInvalid))
	}
	elem := make([]byte, l.ElementSize)
	copy(elem, data)
	if !s.committed(elem) {
		return nil, fault.Wrap(ErrAllErased, ftag.With(KindInvalid))
	}
	return elem, nil
}

// committed reports whether the last unit of elem has been programmed.
// program writes that unit last, so it marks a complete element.
func (s *Store) committed(elem []byte) bool {
	return !isErased(elem[len(elem)-s.geo.UnitSize:])
}

// clearPage erases page unless it is already blank
func (s *Store) clearPage(l *Layout, page int) error {
	blank, err := s.pageBlank(l, page)
	if err != nil || blank {
		return err
	}
	return s.dev.Erase(l.StartPage + page)
}

// program writes elem unit by unit, in address order
func (s *Store) program(l *Layout, page, idx int, elem []byte) error {
	unit := s.geo.UnitSize
	addr := (l.StartPage+page)*s.geo.BlockSize + idx*l.ElementSize
	for off := 0; off < len(elem); off += unit {
		if err := s.dev.Program(addr+off, elem[off:off+unit]); err != nil {
			return fmt.Errorf("program 0x%06X: %w", addr+off, err)
		}
	}
	return nil
}

func (s *Store) readElement(l *Layout, page, idx int, buf []byte) error {
	return s.dev.Read(l.StartPage+page, idx*l.ElementSize, buf)
}

func (s *Store) pageBlank(l *Layout, page int) (bool, error) {
	buf := make([]byte, s.geo.BlockSize)
	if err := s.dev.Read(l.StartPage+page, 0, buf); err != nil {
		return false, err
	}
	return isErased(buf), nil
}

func isErased(p []byte) bool {
	for _, b := range p {
		if b != Erased {
			return false
		}
	}
	return true
}
