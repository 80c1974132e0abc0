// Command fmsynth runs the FM synth control plane: MIDI in, OPN2 register
// writes out, presets and channel config in a flash image.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"fmsynth/chip"
	"fmsynth/config"
	"fmsynth/debug"
	"fmsynth/engine"
	"fmsynth/flash"
	"fmsynth/midi"
)

var (
	configPath = flag.String("config", "", "Path to config.json (default ~/.config/fmsynth/config.json)")
	imagePath  = flag.String("image", "", "Flash image path, overrides the config")
	debugLog   = flag.Bool("debug", false, "Write the debug log")
)

// loadConfig reads the config named by the global flags and starts debug
// logging if asked to
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if *imagePath != "" {
		cfg.Flash.ImagePath = *imagePath
	}
	if *debugLog || cfg.Debug {
		if err := debug.Enable(cfg.DebugLog); err != nil {
			return nil, fmt.Errorf("debug log: %w", err)
		}
	}
	return cfg, nil
}

func openImage(cfg *config.Config) (*flash.FileDevice, error) {
	path, err := cfg.ImagePath()
	if err != nil {
		return nil, err
	}
	return flash.OpenFileDevice(path, cfg.Flash.Geometry)
}

// openBus picks the chip board output port, or a logging bus when none is
// configured
func openBus(cfg *config.Config) (chip.Bus, error) {
	if cfg.MIDI.ChipPort == "" {
		return chip.LogBus{}, nil
	}
	out, err := midi.FindOutPort(cfg.MIDI.ChipPort)
	if err != nil {
		return nil, err
	}
	return chip.OpenMIDIBus(out)
}

// session is what every engine-backed subcommand needs
type session struct {
	cfg    *config.Config
	dev    *flash.FileDevice
	sink   *chip.Sink
	engine *engine.Engine
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	bus, err := openBus(cfg)
	if err != nil {
		return nil, fmt.Errorf("chip output: %w", err)
	}
	dev, err := openImage(cfg)
	if err != nil {
		return nil, err
	}
	sink := chip.NewSink(bus)
	e, err := engine.New(cfg, dev, sink)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return &session{cfg: cfg, dev: dev, sink: sink, engine: e}, nil
}

func (s *session) Close() error {
	return s.dev.Close()
}

func fail(format string, args ...any) subcommands.ExitStatus {
	log.Printf(format, args...)
	return subcommands.ExitFailure
}

func main() {
	log.SetFlags(0)
	flag.Parse()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&mcpCmd{}, "")
	subcommands.Register(&formatCmd{}, "flash")
	subcommands.Register(&dumpCmd{}, "flash")
	subcommands.Register(&presetCmd{}, "flash")

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
