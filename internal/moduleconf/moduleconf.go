// Package moduleconf loads and saves the process-wide module
// configuration: which output devices exist, what they are, and which
// source types each can play.
package moduleconf

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/schollz/midicanvas/internal/module"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ModuleEntry is one configured output device.
type ModuleEntry struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Ports     []int    `json:"ports"`
	DelayTime []uint32 `json:"delayMs,omitempty"`
	PlayTypes []string `json:"playTypes"`
}

// Config is the on-disk configuration.
type Config struct {
	// InsFiles maps a module type name to its .ins catalog path.
	InsFiles map[string]string `json:"insFiles,omitempty"`
	Modules  []ModuleEntry     `json:"modules"`
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes a configuration file.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Collection converts the configured modules into a registry.
func (c *Config) Collection() (*module.Collection, error) {
	var coll module.Collection
	for _, entry := range c.Modules {
		modType, ok := module.ParseType(entry.Type)
		if !ok {
			return nil, fmt.Errorf("unknown module type %q for module %q", entry.Type, entry.Name)
		}
		coll.Add(module.Module{
			Name:      entry.Name,
			Type:      modType,
			Ports:     entry.Ports,
			DelayTime: entry.DelayTime,
			PlayTypes: module.ParsePlayTypes(entry.PlayTypes),
		})
	}
	return &coll, nil
}

// Default returns a configuration with a single GM-capable module on the
// first output port.
func Default() *Config {
	return &Config{
		Modules: []ModuleEntry{{
			Name:      "default",
			Type:      "GM",
			Ports:     []int{0},
			PlayTypes: []string{"GM", "SC-xx", "MUxx", "MT-32"},
		}},
	}
}
