// Package engine wires the control plane together: MIDI bytes in, chip
// register writes out, state in flash.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fmsynth/config"
	"fmsynth/debug"
	"fmsynth/dispatch"
	"fmsynth/flash"
	"fmsynth/midi"
	"fmsynth/synth"
	"fmsynth/voice"
)

// loadTimeout bounds how long a bank/program change waits for the dispatcher
const loadTimeout = time.Second

// Engine owns one instance of every component. Nothing here is global.
type Engine struct {
	Flash    *flash.Store
	Synth    *synth.Store
	Dispatch *dispatch.Dispatcher
	Voices   *voice.Allocator

	channel *channelStore
	boot    flash.Status

	// decoder is only touched by the ingestion goroutine
	decoder *midi.Decoder

	mu        sync.Mutex
	lastErr   error
	overflows int
	events    uint64
}

// New boots the engine on dev: recovers or formats the channel config and
// the user bank, then loads the configured preset
func New(cfg *config.Config, dev flash.BlockDevice, sink synth.Sink) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fs := flash.NewStore(dev)
	e := &Engine{
		Flash:   fs,
		channel: &channelStore{fs: fs, layout: ConfigLayout()},
		decoder: midi.NewDecoder(midi.WithSysExCapacity(cfg.Engine.SysExCapacity)),
	}

	chCfg, st, err := e.channel.Boot(cfg.Channel)
	if err != nil {
		return nil, err
	}
	e.boot = st

	e.Synth = synth.NewStore(sink, fs, PresetLayouts(cfg.Flash.PresetSlots))
	e.Synth.SetCCMap(cfg.ControllerMap())
	if err := e.Synth.InitUserBank(); err != nil {
		return nil, err
	}

	// The dispatcher is not running yet, so load directly
	if err := e.Synth.LoadPreset(int(chCfg.Bank), int(chCfg.Program)); err != nil {
		debug.Log("engine", "boot preset %d:%d: %v, using ROM 0", chCfg.Bank, chCfg.Program, err)
		chCfg.Bank, chCfg.Program = synth.BankROM, 0
		if err := e.Synth.LoadPreset(synth.BankROM, 0); err != nil {
			return nil, err
		}
	}

	e.Dispatch = dispatch.New(cfg.Engine.QueueDepth, e.Synth)
	e.Voices = voice.New(chCfg, e.Dispatch, presetLoader{d: e.Dispatch, timeout: loadTimeout}, e.channel)

	debug.Log("engine", "booted: flash=%s channel=%s", st, chCfg)
	return e, nil
}

// BootStatus reports what the channel config scan found at boot
func (e *Engine) BootStatus() flash.Status {
	return e.boot
}

// Run applies queued commands until ctx is cancelled
func (e *Engine) Run(ctx context.Context) error {
	return e.Dispatch.Run(ctx)
}

// Ingest decodes p and acts on every completed event. Bytes must arrive in
// order from a single goroutine.
func (e *Engine) Ingest(p []byte) {
	e.decoder.FeedAll(p, e.handle)
}

// Follow ingests from whichever input w has open, across reconnects. Notes
// held when an input disappears are released.
func (e *Engine) Follow(ctx context.Context, w *midi.Watcher) error {
	var bytes <-chan []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			switch ev.Type {
			case midi.PortConnected:
				debug.Log("engine", "listening on %s", ev.ID)
				bytes = ev.Input.Bytes()
			case midi.PortDisconnected:
				bytes = nil
				e.decoder.Reset()
				e.report(e.Voices.AllNotesOff())
			}

		case p, ok := <-bytes:
			if !ok {
				bytes = nil
				continue
			}
			e.Ingest(p)
		}
	}
}

func (e *Engine) handle(ev midi.Event) {
	e.mu.Lock()
	e.events++
	e.mu.Unlock()

	switch ev.Kind {
	case midi.KindRealtime:
		debug.LogEvery(96, "midi", "%s", ev)
		return
	case midi.KindSysExOverflow:
		e.mu.Lock()
		e.overflows++
		e.mu.Unlock()
		debug.Log("midi", "sysex overflow, decoder reset")
		return
	case midi.KindSysEx:
		e.report(e.handleSysEx(ev.Payload))
		return
	}

	debug.Log("midi", "%s", ev)
	e.report(e.Voices.HandleEvent(ev))
}

func (e *Engine) handleSysEx(payload []byte) error {
	req, err := synth.ParseSysEx(payload)
	if err != nil {
		return err
	}

	switch req.Command {
	case synth.SysExSavePreset:
		return e.Dispatch.Enqueue(dispatch.StorePreset{Slot: req.Slot, Record: req.Record})
	case synth.SysExLoadPreset:
		return e.Dispatch.Enqueue(dispatch.LoadPreset{Bank: synth.BankUser, Program: req.Slot})
	}
	return fmt.Errorf("unhandled sysex command %d", req.Command)
}

func (e *Engine) report(err error) {
	if err == nil {
		return
	}
	debug.Log("engine", "%v", err)
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

// Status is a point-in-time summary for the monitor and tools
type Status struct {
	Voices     voice.Snapshot
	Queue      dispatch.Stats
	Bank       int
	Program    int
	PresetName string
	Events     uint64
	Overflows  int
	LastError  error
}

// Status collects the current state of every component
func (e *Engine) Status() Status {
	bank, program, name := e.Synth.Current()
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Voices:     e.Voices.Snapshot(),
		Queue:      e.Dispatch.Stats(),
		Bank:       bank,
		Program:    program,
		PresetName: name,
		Events:     e.events,
		Overflows:  e.overflows,
		LastError:  e.lastErr,
	}
}

// ChannelConfig returns the channel config currently stored in flash
func (e *Engine) ChannelConfig() (voice.ChannelConfig, error) {
	return e.channel.Load()
}
