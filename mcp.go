package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"fmsynth/dispatch"
	"fmsynth/engine"
	"fmsynth/synth"
)

// toolTimeout bounds how long a tool waits for the dispatcher
const toolTimeout = 2 * time.Second

type mcpCmd struct{}

func (*mcpCmd) Name() string     { return "mcp" }
func (*mcpCmd) Synopsis() string { return "Serve parameter and preset editing tools over MCP stdio" }
func (*mcpCmd) Usage() string {
	return "mcp:\n  Boot the engine without MIDI input and serve MCP tools on stdin/stdout.\n"
}
func (*mcpCmd) SetFlags(*flag.FlagSet) {}

func (*mcpCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession()
	if err != nil {
		return fail("boot: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.engine.Run(ctx)

	log.Println("Starting fmsynth MCP server...")
	if err := server.ServeStdio(newMCPServer(s.engine)); err != nil {
		return fail("Server error: %v", err)
	}
	return subcommands.ExitSuccess
}

func newMCPServer(e *engine.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"fmsynth",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	listTool := mcp.NewTool("fmsynth_list-parameters",
		mcp.WithDescription("Lists every parameter with its scope and value range."),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(parameterTable()), nil
	})

	setTool := mcp.NewTool("fmsynth_set-parameter",
		mcp.WithDescription("Sets a synth parameter. Values are clamped to the parameter range."),
		mcp.WithString("param", mcp.Required(), mcp.Description("Parameter name, e.g. total_level or algorithm.")),
		mcp.WithNumber("voice", mcp.Required(), mcp.Description("Voice 0-5, or 6 for all voices. Ignored for device parameters.")),
		mcp.WithNumber("operator", mcp.Required(), mcp.Description("Operator 0-3, or 4 for all operators. Ignored unless the parameter is per operator.")),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("New value.")),
	)
	s.AddTool(setTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Println("[mcp] Handling set parameter request.")

		cmd, err := setParamCommand(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := e.Dispatch.EnqueueWait(cmd, dispatch.NoteWait); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Queued %s.", cmd)), nil
	})

	getTool := mcp.NewTool("fmsynth_get-parameter",
		mcp.WithDescription("Reads a synth parameter."),
		mcp.WithString("param", mcp.Required(), mcp.Description("Parameter name.")),
		mcp.WithNumber("voice", mcp.Required(), mcp.Description("Voice 0-5.")),
		mcp.WithNumber("operator", mcp.Required(), mcp.Description("Operator 0-3.")),
	)
	s.AddTool(getTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("param")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		v, err := request.RequireInt("voice")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		op, err := request.RequireInt("operator")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		id, ok := synth.ParamByName(name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown parameter %q", name)), nil
		}
		val, ok := e.Synth.Get(id, v, op)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("no %s at voice %d operator %d", id, v, op)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%d", val)), nil
	})

	modelTool := mcp.NewTool("fmsynth_get-model",
		mcp.WithDescription("Returns the whole parameter model as JSON."),
	)
	s.AddTool(modelTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		m := e.Synth.Model()
		asJson, err := json.MarshalIndent(&m, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal model to JSON: %v", err)
		}
		return mcp.NewToolResultText(string(asJson)), nil
	})

	loadTool := mcp.NewTool("fmsynth_load-preset",
		mcp.WithDescription("Loads a preset. Bank 0 is ROM, bank 1 is the user bank in flash."),
		mcp.WithNumber("bank", mcp.Required(), mcp.Description("Bank number (0 or 1).")),
		mcp.WithNumber("program", mcp.Required(), mcp.Description("Program number within the bank.")),
	)
	s.AddTool(loadTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bank, err := request.RequireInt("bank")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		program, err := request.RequireInt("program")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		log.Println("[mcp] Loading preset", bank, program)
		if err := call(ctx, e, func(reply chan<- error) dispatch.Command {
			return dispatch.LoadPreset{Bank: bank, Program: program, Reply: reply}
		}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		_, _, name := e.Synth.Current()
		return mcp.NewToolResultText(fmt.Sprintf("Loaded %q.", name)), nil
	})

	saveTool := mcp.NewTool("fmsynth_save-preset",
		mcp.WithDescription("Saves the current model to a user preset slot in flash."),
		mcp.WithNumber("slot", mcp.Required(), mcp.Description("User slot number.")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Preset name, up to 16 characters.")),
	)
	s.AddTool(saveTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slot, err := request.RequireInt("slot")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		log.Println("[mcp] Saving preset", slot, name)
		if err := call(ctx, e, func(reply chan<- error) dispatch.Command {
			return dispatch.SavePreset{Slot: slot, Name: name, Reply: reply}
		}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Preset saved successfully."), nil
	})

	presetsTool := mcp.NewTool("fmsynth_list-presets",
		mcp.WithDescription("Lists the ROM bank and the user bank."),
	)
	s.AddTool(presetsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var b strings.Builder
		for i, p := range synth.ROMPresets() {
			fmt.Fprintf(&b, "0:%d %s\n", i, p.Name)
		}
		for _, p := range e.Synth.Presets() {
			name := p.Name
			if p.Empty {
				name = "(empty)"
			}
			fmt.Fprintf(&b, "1:%d %s\n", p.Slot, name)
		}
		return mcp.NewToolResultText(b.String()), nil
	})

	voicesTool := mcp.NewTool("fmsynth_voices",
		mcp.WithDescription("Returns channel mode, voice assignments and queue counters as JSON."),
	)
	s.AddTool(voicesTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st := e.Status()
		out := struct {
			Voices  any            `json:"voices"`
			Queue   dispatch.Stats `json:"queue"`
			Preset  string         `json:"preset"`
			Bank    int            `json:"bank"`
			Program int            `json:"program"`
		}{st.Voices, st.Queue, st.PresetName, st.Bank, st.Program}
		asJson, err := json.MarshalIndent(&out, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %v", err)
		}
		return mcp.NewToolResultText(string(asJson)), nil
	})

	noteTool := mcp.NewTool("fmsynth_play-note",
		mcp.WithDescription("Plays a note on one voice for a short time."),
		mcp.WithNumber("voice", mcp.Required(), mcp.Description("Voice 0-5.")),
		mcp.WithNumber("note", mcp.Required(), mcp.Description("MIDI note number 0-127.")),
		mcp.WithNumber("duration_ms", mcp.Description("How long to hold the note, default 500.")),
	)
	s.AddTool(noteTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		v, err := request.RequireInt("voice")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		note, err := request.RequireInt("note")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if v < 0 || v >= synth.NumVoices || note < 0 || note > 127 {
			return mcp.NewToolResultError("voice or note out of range"), nil
		}
		hold := time.Duration(request.GetInt("duration_ms", 500)) * time.Millisecond

		sel := synth.Specific(v)
		if err := e.Dispatch.EnqueueWait(dispatch.NoteOn{Voice: sel, Note: uint8(note), Velocity: 100}, dispatch.NoteWait); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		select {
		case <-time.After(hold):
		case <-ctx.Done():
		}
		if err := e.Dispatch.EnqueueWait(dispatch.NoteOff{Voice: sel}, dispatch.NoteWait); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Note played."), nil
	})

	return s
}

func setParamCommand(request mcp.CallToolRequest) (dispatch.SetParam, error) {
	var cmd dispatch.SetParam

	name, err := request.RequireString("param")
	if err != nil {
		return cmd, err
	}
	v, err := request.RequireInt("voice")
	if err != nil {
		return cmd, err
	}
	op, err := request.RequireInt("operator")
	if err != nil {
		return cmd, err
	}
	value, err := request.RequireInt("value")
	if err != nil {
		return cmd, err
	}

	id, ok := synth.ParamByName(name)
	if !ok {
		return cmd, fmt.Errorf("unknown parameter %q", name)
	}
	voiceSel, ok := synth.VoiceSelector(v)
	if !ok {
		return cmd, fmt.Errorf("voice %d out of range", v)
	}
	opSel, ok := synth.OperatorSelector(op)
	if !ok {
		return cmd, fmt.Errorf("operator %d out of range", op)
	}
	return dispatch.SetParam{Param: id, Voice: voiceSel, Operator: opSel, Value: value}, nil
}

func call(ctx context.Context, e *engine.Engine, build func(reply chan<- error) dispatch.Command) error {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	return e.Dispatch.Call(ctx, build)
}

func parameterTable() string {
	var b strings.Builder
	for id := synth.ParamID(0); id < synth.NumParams; id++ {
		lo, hi := id.Range()
		fmt.Fprintf(&b, "%-16s %-8s %d-%d\n", id, id.Scope(), lo, hi)
	}
	return b.String()
}
