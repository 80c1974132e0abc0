package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"gitlab.com/gomidi/midi/v2/smf"

	"fmsynth/chip"
	"fmsynth/config"
	"fmsynth/engine"
	"fmsynth/flash"
	fmmidi "fmsynth/midi"
	"fmsynth/synth"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "list":
		err = listPorts()
	case "poll":
		pollDevices()
	case "notes":
		err = playNotes(args)
	case "sysex-save":
		err = sysexSave(args)
	case "sysex-load":
		err = sysexLoad(args)
	case "replay":
		err = replay(args)
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("fmsynth MIDI test tool")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                              - List all MIDI ports")
	fmt.Println("  poll                              - Poll for port changes")
	fmt.Println("  notes <port> [channel]            - Play a chord, then an arpeggio")
	fmt.Println("  sysex-save <port> <slot> <name> [rom]  - Send a ROM preset as a SavePreset SysEx")
	fmt.Println("  sysex-load <port> <slot>          - Send a LoadPreset SysEx")
	fmt.Println("  replay <file.mid> [port]          - Feed a MIDI file through the engine, or play it to a port")
}

func listPorts() error {
	fmt.Println("=== MIDI Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ins, outs, err := fmmidi.PortNames()
	if err != nil {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return err
	}
	fmt.Println("Inputs:")
	for i, name := range ins {
		fmt.Printf("  %d: %s\n", i, name)
	}
	fmt.Println("\nOutputs:")
	for i, name := range outs {
		fmt.Printf("  %d: %s\n", i, name)
	}
	return nil
}

func pollDevices() {
	fmt.Println("Polling for port changes every 2 seconds. Ctrl+C to exit.")

	last := ""
	for {
		ins, outs, err := fmmidi.PortNames()
		if err != nil {
			fmt.Printf("[%s] %v\n", time.Now().Format("15:04:05"), err)
		} else if cur := strings.Join(ins, ",") + "|" + strings.Join(outs, ","); cur != last {
			fmt.Printf("\n[%s] Port change detected!\n", time.Now().Format("15:04:05"))
			fmt.Printf("  Inputs: %v\n", ins)
			fmt.Printf("  Outputs: %v\n", outs)
			last = cur
		}
		time.Sleep(2 * time.Second)
	}
}

func openSend(name string) (func(midi.Message) error, error) {
	out, err := fmmidi.FindOutPort(name)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Using output: %s\n", out.String())
	return midi.SendTo(out)
}

func playNotes(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("notes: missing port")
	}
	var ch uint8
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 || n > 16 {
			return fmt.Errorf("bad channel %q", args[1])
		}
		ch = uint8(n - 1)
	}
	send, err := openSend(args[0])
	if err != nil {
		return err
	}

	// Seven notes on six voices: in Poly the last one waits
	chord := []uint8{48, 55, 60, 64, 67, 72, 76}
	fmt.Println("Chord (7 notes)...")
	for _, n := range chord {
		send(midi.NoteOn(ch, n, 100))
	}
	time.Sleep(time.Second)
	send(midi.NoteOff(ch, chord[0]))
	fmt.Println("Released lowest note, the pending one should sound")
	time.Sleep(time.Second)
	for _, n := range chord[1:] {
		send(midi.NoteOff(ch, n))
	}

	fmt.Println("Arpeggio...")
	for _, n := range []uint8{60, 64, 67, 72, 67, 64, 60} {
		send(midi.NoteOn(ch, n, 90))
		time.Sleep(150 * time.Millisecond)
		send(midi.NoteOff(ch, n))
	}

	// Brightness sweep on the feedback controller
	fmt.Println("Feedback sweep (CC 15)...")
	send(midi.NoteOn(ch, 57, 100))
	for v := 0; v <= 127; v += 8 {
		send(midi.ControlChange(ch, 15, uint8(v)))
		time.Sleep(60 * time.Millisecond)
	}
	send(midi.NoteOff(ch, 57))

	fmt.Println("Done!")
	return nil
}

func sysexSave(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("sysex-save: need <port> <slot> <name> [rom]")
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad slot %q", args[1])
	}
	rom := 0
	if len(args) > 3 {
		if rom, err = strconv.Atoi(args[3]); err != nil {
			return fmt.Errorf("bad rom preset %q", args[3])
		}
	}
	presets := synth.ROMPresets()
	if rom < 0 || rom >= len(presets) {
		return fmt.Errorf("no ROM preset %d", rom)
	}

	send, err := openSend(args[0])
	if err != nil {
		return err
	}
	rec := synth.NewPresetRecord(args[2], presets[rom].Model)
	payload := synth.EncodeSavePreset(slot, rec)
	fmt.Printf("Sending: SavePreset slot %d %q (%d bytes)\n", slot, rec.NameString(), len(payload)+2)
	return send(midi.SysEx(payload))
}

func sysexLoad(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("sysex-load: need <port> <slot>")
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad slot %q", args[1])
	}
	send, err := openSend(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Sending: LoadPreset slot %d\n", slot)
	return send(midi.SysEx(synth.EncodeLoadPreset(slot)))
}

func replay(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("replay: missing file")
	}
	rd, err := smf.ReadFile(args[0])
	if err != nil {
		return err
	}
	if len(args) > 1 {
		return playFile(rd, args[1])
	}
	return replayOffline(rd)
}

// replayOffline runs every track through an engine on an in-memory flash and
// reports what reached the chip
func replayOffline(rd *smf.SMF) error {
	cfg := config.DefaultConfig()
	dev, err := flash.NewMemDevice(cfg.Flash.Geometry)
	if err != nil {
		return err
	}
	rec := chip.NewRecorder()
	e, err := engine.New(cfg, dev, chip.NewSink(rec))
	if err != nil {
		return err
	}
	rec.Reset()

	sent := replayTracks(e, rd.Tracks)

	st := e.Status()
	fmt.Printf("messages %d  commands %d  dropped %d  port writes %d\n",
		sent, st.Queue.Applied, st.Queue.Dropped, len(rec.Writes()))
	if st.LastError != nil {
		fmt.Printf("last error: %v\n", st.LastError)
	}
	return nil
}

// replayTracks ingests every non-meta event with the dispatcher running, so
// program changes get their reply, then applies whatever is still queued
func replayTracks(e *engine.Engine, tracks []smf.Track) int {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	var sent int
	for i, track := range tracks {
		for _, ev := range track {
			if ev.Message.IsMeta() {
				continue
			}
			e.Ingest([]byte(ev.Message))
			sent++
		}
		fmt.Printf("track %d: %d events\n", i, len(track))
	}

	cancel()
	<-done
	e.Dispatch.Drain()
	return sent
}

// playFile sends each track in turn to a port, timed at the file's first
// tempo
func playFile(rd *smf.SMF, port string) error {
	ticks, ok := rd.TimeFormat.(smf.MetricTicks)
	if !ok {
		return fmt.Errorf("only metric time formats are supported")
	}
	bpm := 120.0
	if tc := rd.TempoChanges(); len(tc) > 0 {
		bpm = tc[0].BPM
	}
	send, err := openSend(port)
	if err != nil {
		return err
	}

	for i, track := range rd.Tracks {
		fmt.Printf("Playing track %d at %.0f bpm...\n", i, bpm)
		for _, ev := range track {
			time.Sleep(ticks.Duration(bpm, ev.Delta))
			if ev.Message.IsMeta() {
				continue
			}
			if err := send(midi.Message(ev.Message)); err != nil {
				return err
			}
		}
	}
	fmt.Println("Done!")
	return nil
}
