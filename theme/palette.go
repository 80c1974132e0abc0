package theme

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// RGB is one palette entry
type RGB [3]uint8

// Hex formats c as #rrggbb
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// mix blends c towards d by t in [0, 1]
func (c RGB) mix(d RGB, t float64) RGB {
	var out RGB
	for i := range out {
		out[i] = uint8(math.Round(float64(c[i]) + (float64(d[i])-float64(c[i]))*t))
	}
	return out
}

// Palette is an ordered colour ramp. Roles and meter levels pick from it by
// position, so any GIMP palette ordered dark to bright works.
type Palette struct {
	Name   string
	Colors []RGB
}

// LoadGPL reads a GIMP .gpl palette file
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := parseGPL(f)
	if err != nil {
		return nil, fmt.Errorf("palette %s: %w", path, err)
	}
	return p, nil
}

// parseGPL accepts the header keys GIMP writes (Name, Columns), comments and
// "R G B [label]" rows
func parseGPL(r io.Reader) (*Palette, error) {
	p := &Palette{}
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "", line[0] == '#', line == "GIMP Palette":
			continue
		case strings.HasPrefix(line, "Name:"):
			p.Name = strings.TrimSpace(line[len("Name:"):])
			continue
		case strings.HasPrefix(line, "Columns:"):
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: want R G B, got %q", n, line)
		}
		var c RGB
		for i := range c {
			v, err := strconv.ParseUint(fields[i], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			c[i] = uint8(v)
		}
		p.Colors = append(p.Colors, c)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(p.Colors) == 0 {
		return nil, fmt.Errorf("no colours")
	}
	return p, nil
}

// DefaultPalette is used when no palette file is given: dark slate through
// teal to amber
func DefaultPalette() *Palette {
	return &Palette{
		Name: "fmsynth",
		Colors: []RGB{
			{0x1b, 0x1d, 0x2b},
			{0x2e, 0x34, 0x4a},
			{0x4c, 0x56, 0x73},
			{0x8f, 0xa3, 0xbf},
			{0x3f, 0xc1, 0xc9},
			{0x7e, 0xe0, 0x81},
			{0xe0, 0x6c, 0x75},
			{0xf2, 0xa6, 0x5a},
			{0xf5, 0xe0, 0x6e},
		},
	}
}

// Lookup interpolates the ramp at norm, clamped to [0, 1]
func (p *Palette) Lookup(norm float64) RGB {
	last := len(p.Colors) - 1
	pos := math.Max(0, math.Min(1, norm)) * float64(last)
	i := int(pos)
	if i >= last {
		return p.Colors[last]
	}
	return p.Colors[i].mix(p.Colors[i+1], pos-float64(i))
}
