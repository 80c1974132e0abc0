package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fmsynth/debug"
	"fmsynth/dispatch"
	"fmsynth/flash"
	"fmsynth/synth"
	"fmsynth/voice"
)

// Flash partitioning: page 0 holds the channel config, each user preset slot
// owns one page after it.
const configPage = 0

// ConfigLayout describes the channel config region
func ConfigLayout() *flash.Layout {
	return flash.NewLayout("midi-config", configPage, 1, voice.ConfigRecordSize)
}

// PresetLayouts describes the user preset slots
func PresetLayouts(slots int) []*flash.Layout {
	out := make([]*flash.Layout, slots)
	for i := range out {
		out[i] = flash.NewLayout(fmt.Sprintf("preset-%d", i), configPage+1+i, 1, synth.RecordSize)
	}
	return out
}

// channelStore persists the channel config in its layout
type channelStore struct {
	fs     *flash.Store
	layout *flash.Layout
}

// Boot recovers the channel config, formatting the region with def the first
// time. A record that does not decode falls back to def.
func (c *channelStore) Boot(def voice.ChannelConfig) (voice.ChannelConfig, flash.Status, error) {
	st, err := c.fs.Init(c.layout)
	switch st {
	case flash.StatusNotInit:
		data, _ := def.MarshalBinary()
		if err := c.fs.Format(c.layout, data); err != nil {
			return def, st, fmt.Errorf("format channel config: %w", err)
		}
		debug.Log("engine", "channel config formatted: %s", def)
		return def, st, nil
	case flash.StatusError:
		return def, st, fmt.Errorf("init channel config: %w", err)
	}

	cfg, err := c.Load()
	if err != nil {
		debug.Log("engine", "channel config unreadable (%v), using %s", err, def)
		return def, st, nil
	}
	return cfg, st, nil
}

// Load returns the most recently saved config
func (c *channelStore) Load() (voice.ChannelConfig, error) {
	var cfg voice.ChannelConfig
	data, err := c.fs.Get(c.layout)
	if err != nil {
		return cfg, err
	}
	err = cfg.UnmarshalBinary(data)
	return cfg, err
}

func (c *channelStore) SaveChannelConfig(cfg voice.ChannelConfig) error {
	data, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}
	return c.fs.Save(c.layout, data)
}

// presetLoader sends preset loads through the dispatcher so the model is only
// ever changed from the dispatch loop
type presetLoader struct {
	d       *dispatch.Dispatcher
	timeout time.Duration
}

var errLoadTimeout = errors.New("engine: preset load timed out")

func (p presetLoader) LoadPreset(bank, program int) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := p.d.Call(ctx, func(reply chan<- error) dispatch.Command {
		return dispatch.LoadPreset{Bank: bank, Program: program, Reply: reply}
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return errLoadTimeout
	}
	return err
}
