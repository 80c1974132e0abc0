package midi

import (
	"testing"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// fakePort only answers String; nothing else is called by the watcher
type fakePort struct {
	drivers.In
	name string
}

func (p fakePort) String() string { return p.name }

func newTestWatcher(name string, ports *[]drivers.In) *Watcher {
	w := NewWatcher(name, 4)
	w.scanIns = func() ([]drivers.In, error) { return *ports, nil }
	w.open = func(p drivers.In, depth int) (*Input, error) {
		return &Input{id: p.String(), inPort: p, bytes: make(chan []byte, depth)}, nil
	}
	return w
}

func TestWatcher_ConnectAndDisconnect(t *testing.T) {
	var ports []drivers.In
	w := newTestWatcher("keystep", &ports)

	w.scan()
	if w.Current() != nil || len(w.events) != 0 {
		t.Fatal("connected with no ports")
	}

	ports = []drivers.In{fakePort{name: "Midi Through"}, fakePort{name: "KeyStep 37"}}
	w.scan()
	ev := <-w.Events()
	if ev.Type != PortConnected || ev.ID != "KeyStep 37" || w.Current() != ev.Input {
		t.Fatalf("got %+v", ev)
	}

	// Still present: nothing happens
	w.scan()
	if len(w.events) != 0 {
		t.Fatal("duplicate event")
	}

	in := w.Current()
	ports = ports[:1]
	w.scan()
	ev = <-w.Events()
	if ev.Type != PortDisconnected || ev.ID != "KeyStep 37" || w.Current() != nil {
		t.Fatalf("got %+v", ev)
	}
	if _, ok := <-in.Bytes(); ok {
		t.Error("input not closed")
	}
}

func TestWatcher_EmptyNameTakesFirstPort(t *testing.T) {
	ports := []drivers.In{fakePort{name: "A"}, fakePort{name: "B"}}
	w := newTestWatcher("", &ports)
	w.scan()
	if ev := <-w.Events(); ev.ID != "A" {
		t.Errorf("connected to %q", ev.ID)
	}
}
