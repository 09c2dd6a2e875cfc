// Package config loads channel definitions from an ini file, grounded on
// the teacher's use of gopkg.in/ini.v1 for structured configuration and
// repurposed here from EDS parsing to process/channel startup
// configuration, per the original EPOSControl deployment's own ini-based
// channel setup.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"

	"github.com/abroun/EPOSControl/canopen"
)

// ChannelConfig is one named section of the file: which driver to load, which
// device to open it against, at what baud rate, and which fixed slot (if
// any) it should occupy.
type ChannelConfig struct {
	Name   string
	Driver string
	Device string
	Baud   canopen.BaudRate
	Slot   int
}

var baudNames = map[string]canopen.BaudRate{
	"1M": canopen.Baud1M, "500K": canopen.Baud500K, "250K": canopen.Baud250K,
	"125K": canopen.Baud125K, "100K": canopen.Baud100K, "50K": canopen.Baud50K,
	"20K": canopen.Baud20K, "10K": canopen.Baud10K, "5K": canopen.Baud5K,
}

// Load parses path into one ChannelConfig per non-default section. A
// section's name becomes the ChannelConfig's Name. Expected keys: driver,
// device, baud (one of the names in baudNames, default 1M), slot (default
// -1, meaning "first free").
func Load(path string) ([]ChannelConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var out []ChannelConfig
	for _, section := range f.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		cfg := ChannelConfig{
			Name:   section.Name(),
			Driver: section.Key("driver").String(),
			Device: section.Key("device").String(),
			Baud:   canopen.Baud1M,
			Slot:   section.Key("slot").MustInt(-1),
		}
		if cfg.Driver == "" {
			return nil, fmt.Errorf("config: section %q missing driver", section.Name())
		}
		if baudStr := section.Key("baud").String(); baudStr != "" {
			baud, ok := baudNames[baudStr]
			if !ok {
				return nil, fmt.Errorf("config: section %q has unrecognised baud %q", section.Name(), baudStr)
			}
			cfg.Baud = baud
		}
		out = append(out, cfg)
	}
	return out, nil
}
