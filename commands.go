package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/subcommands"

	"fmsynth/engine"
	"fmsynth/flash"
	"fmsynth/library"
	"fmsynth/midi"
	"fmsynth/synth"
	"fmsynth/theme"
	"fmsynth/tui"
	"fmsynth/voice"
)

type runCmd struct {
	input   string
	monitor bool
	palette string
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "Listen on a MIDI input and drive the chip" }
func (*runCmd) Usage() string {
	return "run [-input name] [-tui] [-palette file.gpl]:\n  Boot from the flash image and play.\n"
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.input, "input", "", "MIDI input port (substring), overrides the config")
	f.BoolVar(&c.monitor, "tui", false, "Show the front-panel monitor")
	f.StringVar(&c.palette, "palette", "", "GIMP palette for the monitor")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession()
	if err != nil {
		return fail("boot: %v", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := c.input
	if name == "" {
		name = s.cfg.MIDI.InputPort
	}
	watcher := midi.NewWatcher(name, s.cfg.MIDI.InputBuffer)

	go s.engine.Run(ctx)
	go watcher.Run(ctx)
	go s.engine.Follow(ctx, watcher)

	if !c.monitor {
		log.Printf("fmsynth: %s, waiting for input %q, ctrl-c to stop", s.engine.Voices.Config(), name)
		<-ctx.Done()
		return subcommands.ExitSuccess
	}

	pal := theme.DefaultPalette()
	if c.palette != "" {
		if pal, err = theme.LoadGPL(c.palette); err != nil {
			return fail("%v", err)
		}
	}
	m := tui.NewModel(s.engine, theme.New(pal))
	m.Input = watcher
	if m.Library, err = library.Open(s.cfg.LibraryDir); err != nil {
		return fail("%v", err)
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fail("monitor: %v", err)
	}
	return subcommands.ExitSuccess
}

type formatCmd struct{}

func (*formatCmd) Name() string     { return "format" }
func (*formatCmd) Synopsis() string { return "Erase the flash image and write default records" }
func (*formatCmd) Usage() string {
	return "format:\n  Erase every block, then format the channel config and the user bank.\n"
}
func (*formatCmd) SetFlags(*flag.FlagSet) {}

func (*formatCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		return fail("%v", err)
	}
	dev, err := openImage(cfg)
	if err != nil {
		return fail("%v", err)
	}
	defer dev.Close()

	for b := 0; b < cfg.Flash.Geometry.BlockCount; b++ {
		if err := dev.Erase(b); err != nil {
			return fail("erase block %d: %v", b, err)
		}
	}
	e, err := engine.New(cfg, dev, nil)
	if err != nil {
		return fail("format: %v", err)
	}
	fmt.Printf("formatted: %s, %d user slots\n", e.Voices.Config(), len(e.Synth.Presets()))
	return subcommands.ExitSuccess
}

type dumpCmd struct {
	asJSON bool
}

func (*dumpCmd) Name() string     { return "dump" }
func (*dumpCmd) Synopsis() string { return "Print the channel config and user bank from the flash image" }
func (*dumpCmd) Usage() string    { return "dump [-json]:\n  Read-only view of the flash image.\n" }

func (c *dumpCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "Print JSON")
}

type flashDump struct {
	Status   string               `json:"status"`
	Channel  *voice.ChannelConfig `json:"channel,omitempty"`
	Presets  []synth.PresetInfo   `json:"presets"`
	Geometry flash.Geometry       `json:"geometry"`
}

func (c *dumpCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		return fail("%v", err)
	}
	dev, err := openImage(cfg)
	if err != nil {
		return fail("%v", err)
	}
	defer dev.Close()

	// Scan without formatting anything
	fs := flash.NewStore(dev)
	out := flashDump{Geometry: cfg.Flash.Geometry}
	layout := engine.ConfigLayout()
	st, err := fs.Init(layout)
	out.Status = st.String()
	if st == flash.StatusOK {
		if data, err := fs.Get(layout); err == nil {
			var ch voice.ChannelConfig
			if ch.UnmarshalBinary(data) == nil {
				out.Channel = &ch
			}
		}
	} else if err != nil {
		out.Status += ": " + err.Error()
	}

	slots := engine.PresetLayouts(cfg.Flash.PresetSlots)
	for _, l := range slots {
		fs.Init(l)
	}
	out.Presets = synth.NewStore(nil, fs, slots).Presets()

	if c.asJSON {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return subcommands.ExitSuccess
	}

	fmt.Printf("flash    %d x %d bytes, unit %d\n", out.Geometry.BlockCount, out.Geometry.BlockSize, out.Geometry.UnitSize)
	fmt.Printf("config   %s\n", out.Status)
	if out.Channel != nil {
		fmt.Printf("channel  %s\n", out.Channel)
	}
	for _, p := range out.Presets {
		name := p.Name
		if p.Empty {
			name = "-"
		}
		fmt.Printf("user %-3d %s\n", p.Slot, name)
	}
	return subcommands.ExitSuccess
}

type presetCmd struct {
	rom      int
	jsonPath string
}

func (*presetCmd) Name() string     { return "preset" }
func (*presetCmd) Synopsis() string { return "Save, show or clear user presets in the flash image" }
func (*presetCmd) Usage() string {
	return `preset save [-rom n | -json file] <slot> [name]
preset show <slot>
preset clear <slot>
preset export <slot> [name]
preset import <slot> [snapshot]
preset rom
preset library:
  Offline preset management. save copies a ROM preset (default 0) or a
  JSON model into the slot. export and import move presets between user
  slots and the snapshot library.
`
}

func (c *presetCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.rom, "rom", 0, "ROM preset to copy")
	f.StringVar(&c.jsonPath, "json", "", "Model JSON file to store")
}

func (c *presetCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		return fail("preset: missing action")
	}

	switch args[0] {
	case "rom":
		for i, p := range synth.ROMPresets() {
			fmt.Printf("rom %-3d %s\n", i, p.Name)
		}
		return subcommands.ExitSuccess
	case "library":
		return listLibrary()
	}
	if len(args) < 2 {
		return fail("preset %s: missing slot", args[0])
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return fail("bad slot %q", args[1])
	}

	cfg, err := loadConfig()
	if err != nil {
		return fail("%v", err)
	}
	dev, err := openImage(cfg)
	if err != nil {
		return fail("%v", err)
	}
	defer dev.Close()
	e, err := engine.New(cfg, dev, nil)
	if err != nil {
		return fail("boot: %v", err)
	}

	switch args[0] {
	case "save":
		rec, err := c.record(args[2:])
		if err != nil {
			return fail("%v", err)
		}
		if err := e.Synth.StorePreset(slot, rec); err != nil {
			return fail("save: %v", err)
		}
		fmt.Printf("user %d <- %q\n", slot, rec.NameString())

	case "show":
		rec, err := e.Synth.ReadPreset(slot)
		if err != nil {
			return fail("show: %v", err)
		}
		data, _ := json.MarshalIndent(struct {
			Name  string      `json:"name"`
			Model synth.Model `json:"model"`
		}{rec.NameString(), rec.Model}, "", "  ")
		fmt.Println(string(data))

	case "clear":
		if err := e.Synth.ClearPreset(slot); err != nil {
			return fail("clear: %v", err)
		}

	case "export":
		rec, err := e.Synth.ReadPreset(slot)
		if err != nil {
			return fail("export: %v", err)
		}
		name := rec.NameString()
		if len(args) > 2 {
			name = args[2]
		}
		lib, err := library.Open(cfg.LibraryDir)
		if err != nil {
			return fail("%v", err)
		}
		file, err := lib.Save(name, rec.Model)
		if err != nil {
			return fail("export: %v", err)
		}
		fmt.Printf("user %d -> %s\n", slot, filepath.Join(lib.Dir, file))

	case "import":
		var snapshot string
		if len(args) > 2 {
			snapshot = args[2]
		}
		lib, err := library.Open(cfg.LibraryDir)
		if err != nil {
			return fail("%v", err)
		}
		snap, err := lib.Load(snapshot)
		if err != nil {
			return fail("import: %v", err)
		}
		rec := snap.Record()
		if err := e.Synth.StorePreset(slot, rec); err != nil {
			return fail("import: %v", err)
		}
		fmt.Printf("user %d <- %q\n", slot, rec.NameString())

	default:
		return fail("unknown preset action %q", args[0])
	}
	return subcommands.ExitSuccess
}

func listLibrary() subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		return fail("%v", err)
	}
	lib, err := library.Open(cfg.LibraryDir)
	if err != nil {
		return fail("%v", err)
	}
	entries, err := lib.List()
	if err != nil {
		return fail("%v", err)
	}
	for _, e := range entries {
		fmt.Printf("%s  %-20s %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.Name, e.Filename)
	}
	return subcommands.ExitSuccess
}

func (c *presetCmd) record(args []string) (synth.PresetRecord, error) {
	var (
		name  string
		model synth.Model
	)
	if c.jsonPath != "" {
		data, err := os.ReadFile(c.jsonPath)
		if err != nil {
			return synth.PresetRecord{}, err
		}
		if err := json.Unmarshal(data, &model); err != nil {
			return synth.PresetRecord{}, fmt.Errorf("parse %s: %w", c.jsonPath, err)
		}
		model.Clamp()
		name = "User"
	} else {
		rom := synth.ROMPresets()
		if c.rom < 0 || c.rom >= len(rom) {
			return synth.PresetRecord{}, fmt.Errorf("no ROM preset %d", c.rom)
		}
		name, model = rom[c.rom].Name, rom[c.rom].Model
	}
	if len(args) > 0 {
		name = args[0]
	}
	return synth.NewPresetRecord(name, model), nil
}
