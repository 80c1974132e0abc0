package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"fmsynth/flash"
	"fmsynth/synth"
	"fmsynth/voice"
)

// MIDIConfig names the ports used by the run command
type MIDIConfig struct {
	InputPort   string `json:"inputPort,omitempty"`   // substring match, empty = first port
	ChipPort    string `json:"chipPort,omitempty"`    // chip board output, empty = log only
	InputBuffer int    `json:"inputBuffer,omitempty"` // messages buffered from the driver
}

// FlashConfig describes the flash image and its partitioning
type FlashConfig struct {
	ImagePath   string         `json:"imagePath,omitempty"`
	Geometry    flash.Geometry `json:"geometry"`
	PresetSlots int            `json:"presetSlots"`
}

// EngineConfig tunes the control plane
type EngineConfig struct {
	QueueDepth    int `json:"queueDepth"`
	SysExCapacity int `json:"sysexCapacity"`
}

// Config is the main configuration structure
type Config struct {
	MIDI   MIDIConfig   `json:"midi"`
	Flash  FlashConfig  `json:"flash"`
	Engine EngineConfig `json:"engine"`

	// Used when flash holds no channel config yet
	Channel voice.ChannelConfig `json:"channel"`

	// Preset snapshots, default ~/.config/fmsynth/library
	LibraryDir string `json:"libraryDir,omitempty"`

	// Controller number -> parameter name, replaces the built-in map
	CCMap map[string]string `json:"ccMap,omitempty"`

	Debug    bool   `json:"debug,omitempty"`
	DebugLog string `json:"debugLog,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MIDI: MIDIConfig{InputBuffer: 64},
		Flash: FlashConfig{
			Geometry:    flash.Geometry{BlockSize: 2048, BlockCount: 16, UnitSize: 8},
			PresetSlots: 8,
		},
		Engine: EngineConfig{
			QueueDepth:    5,
			SysExCapacity: 400,
		},
		Channel: voice.DefaultConfig(),
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "fmsynth"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ImagePath returns the flash image path, defaulting to flash.img in the
// config dir
func (c *Config) ImagePath() (string, error) {
	if c.Flash.ImagePath != "" {
		return c.Flash.ImagePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "flash.img"), nil
}

// Load reads the config from the default path, or returns defaults if not
// found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Missing fields keep their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path
func (c *Config) SaveTo(path string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the flash partitioning and engine limits
func (c *Config) Validate() error {
	geo := c.Flash.Geometry
	if err := geo.Validate(); err != nil {
		return err
	}
	if c.Flash.PresetSlots < 0 {
		return fmt.Errorf("presetSlots must not be negative")
	}
	// page 0 holds the channel config, one page per preset slot after it
	if need := 1 + c.Flash.PresetSlots; need > geo.BlockCount {
		return fmt.Errorf("%d preset slots need %d blocks, flash has %d", c.Flash.PresetSlots, need, geo.BlockCount)
	}
	if synth.RecordSize > geo.BlockSize || synth.RecordSize%geo.UnitSize != 0 {
		return fmt.Errorf("preset records (%d bytes) do not fit %d-byte blocks of %d-byte units", synth.RecordSize, geo.BlockSize, geo.UnitSize)
	}
	if voice.ConfigRecordSize%geo.UnitSize != 0 {
		return fmt.Errorf("unit size %d does not divide the %d-byte config record", geo.UnitSize, voice.ConfigRecordSize)
	}
	if c.Engine.QueueDepth < 0 || c.Engine.SysExCapacity < 0 {
		return fmt.Errorf("engine limits must not be negative")
	}
	if c.Channel.BaseChannel > 15 || c.Channel.Mode > voice.Poly {
		return fmt.Errorf("invalid default channel config %v", c.Channel)
	}
	if _, err := synth.ParseCCMap(c.CCMap); err != nil {
		return err
	}
	return nil
}

// ControllerMap returns the CC bindings to use
func (c *Config) ControllerMap() synth.CCMap {
	if len(c.CCMap) == 0 {
		return synth.DefaultCCMap()
	}
	m, err := synth.ParseCCMap(c.CCMap)
	if err != nil {
		return synth.DefaultCCMap()
	}
	return m
}
