package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"

	"fmsynth/debug"
)

// PortEvent is emitted when the watched input appears or goes away
type PortEvent struct {
	Type  PortEventType
	Input *Input // set on PortConnected
	ID    string
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

// Watcher handles hot-plug of the MIDI input: it polls the port list and
// keeps the first port matching name open.
type Watcher struct {
	name     string
	depth    int
	pollRate time.Duration

	mu      sync.RWMutex
	current *Input
	events  chan PortEvent

	// replaced in tests
	scanIns func() ([]drivers.In, error)
	open    func(drivers.In, int) (*Input, error)
}

// NewWatcher watches for an input whose name contains name (any port when
// empty). depth is passed to OpenInput.
func NewWatcher(name string, depth int) *Watcher {
	return &Watcher{
		name:     strings.ToLower(name),
		depth:    depth,
		pollRate: time.Second,
		events:   make(chan PortEvent, 16),
		scanIns: func() ([]drivers.In, error) {
			ins, _, err := scanPorts()
			return ins, err
		},
		open: OpenInput,
	}
}

// Events returns a channel of connect/disconnect events
func (w *Watcher) Events() <-chan PortEvent {
	return w.events
}

// Current returns the open input, or nil
func (w *Watcher) Current() *Input {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run starts the polling loop (blocking - run in goroutine)
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()

	w.scan()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.current != nil {
				w.current.Close()
				w.current = nil
			}
			w.mu.Unlock()
			close(w.events)
			return
		case <-ticker.C:
			w.scan()
		}
	}
}

func (w *Watcher) matches(p drivers.In) bool {
	return w.name == "" || strings.Contains(strings.ToLower(p.String()), w.name)
}

func (w *Watcher) scan() {
	ins, err := w.scanIns()
	if err != nil {
		// CoreMIDI is hung - skip this scan
		debug.LogEvery(10, "watcher", "%v", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current != nil {
		for _, p := range ins {
			if p.String() == w.current.ID() {
				return
			}
		}
		id := w.current.ID()
		w.current.Close()
		w.current = nil
		debug.Log("watcher", "input %q gone", id)
		w.events <- PortEvent{Type: PortDisconnected, ID: id}
	}

	for _, p := range ins {
		if !w.matches(p) {
			continue
		}
		in, err := w.open(p, w.depth)
		if err != nil {
			debug.Log("watcher", "open %q: %v", p.String(), err)
			continue
		}
		w.current = in
		debug.Log("watcher", "input %q connected", in.ID())
		w.events <- PortEvent{Type: PortConnected, Input: in, ID: in.ID()}
		return
	}
}
