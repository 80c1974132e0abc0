// Package dispatch runs the single consumer loop that applies synth commands
// in arrival order.
package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/ftag"

	"fmsynth/debug"
	"fmsynth/synth"
)

// DefaultDepth is the queue depth used when none is configured
const DefaultDepth = 5

// NoteWait is how long note commands wait for queue space
const NoteWait = 100 * time.Millisecond

// KindQueueFull tags delivery failures
const KindQueueFull ftag.Kind = "QUEUE_FULL"

var ErrQueueFull = errors.New("dispatch: command queue full")

// Target is what commands are applied to. *synth.Store satisfies it.
type Target interface {
	SetParam(id synth.ParamID, voice, op synth.Selector, value int) bool
	ControlChange(voice synth.Selector, cc, value uint8) bool
	LoadPreset(bank, program int) error
	SavePreset(slot int, name string) error
	StorePreset(slot int, rec synth.PresetRecord) error
	NoteOn(voice int, note, velocity uint8)
	NoteOff(voice int)
	Mute(voice int)
}

// Stats counts queue traffic
type Stats struct {
	Enqueued uint64
	Dropped  uint64
	Applied  uint64
	Depth    int
	Capacity int
}

// Dispatcher owns a bounded FIFO of commands and applies them one at a time
type Dispatcher struct {
	queue  chan Command
	target Target

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	applied  atomic.Uint64

	// Notify the monitor after a command was applied
	updates chan struct{}
}

// New creates a dispatcher; depth <= 0 selects DefaultDepth
func New(depth int, target Target) *Dispatcher {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Dispatcher{
		queue:   make(chan Command, depth),
		target:  target,
		updates: make(chan struct{}, 1),
	}
}

// Enqueue adds cmd without blocking
func (d *Dispatcher) Enqueue(cmd Command) error {
	select {
	case d.queue <- cmd:
		d.enqueued.Add(1)
		return nil
	default:
		return d.full(cmd)
	}
}

// EnqueueWait adds cmd, waiting at most wait for space
func (d *Dispatcher) EnqueueWait(cmd Command, wait time.Duration) error {
	select {
	case d.queue <- cmd:
		d.enqueued.Add(1)
		return nil
	default:
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case d.queue <- cmd:
		d.enqueued.Add(1)
		return nil
	case <-t.C:
		return d.full(cmd)
	}
}

// Send enqueues with a bounded wait when wait > 0, otherwise without blocking
func (d *Dispatcher) Send(cmd Command, wait time.Duration) error {
	if wait > 0 {
		return d.EnqueueWait(cmd, wait)
	}
	return d.Enqueue(cmd)
}

func (d *Dispatcher) full(cmd Command) error {
	d.dropped.Add(1)
	debug.Log("dispatch", "queue full, dropped %s", cmd)
	return fault.Wrap(ErrQueueFull, ftag.With(KindQueueFull))
}

// Call enqueues the command built around a reply channel and waits for the
// result
func (d *Dispatcher) Call(ctx context.Context, build func(reply chan<- error) Command) error {
	reply := make(chan error, 1)
	if err := d.EnqueueWait(build(reply), NoteWait); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run applies commands in FIFO order until ctx is cancelled. Only one Run may
// be active per dispatcher.
func (d *Dispatcher) Run(ctx context.Context) error {
	debug.Log("dispatch", "running, depth=%d", cap(d.queue))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-d.queue:
			d.apply(cmd)
		}
	}
}

// Drain applies every queued command without waiting for more
func (d *Dispatcher) Drain() int {
	n := 0
	for {
		select {
		case cmd := <-d.queue:
			d.apply(cmd)
			n++
		default:
			return n
		}
	}
}

func (d *Dispatcher) apply(cmd Command) {
	debug.Log("dispatch", "%s", cmd)

	switch c := cmd.(type) {
	case NoteOn:
		for _, v := range c.Voice.Expand(synth.NumVoices) {
			d.target.NoteOn(v, c.Note, c.Velocity)
		}
	case NoteOff:
		for _, v := range c.Voice.Expand(synth.NumVoices) {
			d.target.NoteOff(v)
		}
	case AllNotesOff:
		for _, v := range c.Voice.Expand(synth.NumVoices) {
			d.target.NoteOff(v)
		}
	case Mute:
		for _, v := range c.Voice.Expand(synth.NumVoices) {
			d.target.Mute(v)
		}
	case SetParam:
		d.target.SetParam(c.Param, c.Voice, c.Operator, c.Value)
	case ControlChange:
		d.target.ControlChange(c.Voice, c.Controller, c.Value)
	case LoadPreset:
		reply(c.Reply, d.target.LoadPreset(c.Bank, c.Program))
	case SavePreset:
		reply(c.Reply, d.target.SavePreset(c.Slot, c.Name))
	case StorePreset:
		reply(c.Reply, d.target.StorePreset(c.Slot, c.Record))
	}

	d.applied.Add(1)
	select {
	case d.updates <- struct{}{}:
	default:
	}
}

func reply(ch chan<- error, err error) {
	if err != nil {
		debug.Log("dispatch", "command failed: %v", err)
	}
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

// Updates signals after commands were applied
func (d *Dispatcher) Updates() <-chan struct{} {
	return d.updates
}

// Stats returns the queue counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued: d.enqueued.Load(),
		Dropped:  d.dropped.Load(),
		Applied:  d.applied.Load(),
		Depth:    len(d.queue),
		Capacity: cap(d.queue),
	}
}
