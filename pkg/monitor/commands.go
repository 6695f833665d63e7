// Package monitor polls every registered device for CPU load and neighbor
// relationships, raises and clears alerts with hysteresis, and detects
// topology loops from the per-cycle neighbor graph.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommandSet holds the per-vendor commands the poller runs.
type CommandSet struct {
	CPU       string `json:"cpu" yaml:"cpu"`
	Neighbors string `json:"neighbors" yaml:"neighbors"`
}

// Commands maps a vendor key to its command set.
type Commands map[string]CommandSet

// DefaultCommands covers the vendor families the poller knows natively.
func DefaultCommands() Commands {
	return Commands{
		"cisco": {
			CPU:       "show processes cpu | include one minute",
			Neighbors: "show cdp neighbors detail",
		},
		"aruba": {
			CPU:       "show system resource-utilization",
			Neighbors: "show lldp neighbors detail",
		},
	}
}

// LoadCommands reads a YAML or JSON override file and shallow-merges it
// over the defaults. A missing or unreadable file yields the defaults.
func LoadCommands(path string) (Commands, error) {
	cmds := DefaultCommands()
	if path == "" {
		return cmds, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cmds, nil
		}
		return cmds, fmt.Errorf("reading command registry %s: %w", path, err)
	}

	overrides := map[string]CommandSet{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &overrides)
	} else {
		err = yaml.Unmarshal(data, &overrides)
	}
	if err != nil {
		return cmds, fmt.Errorf("parsing command registry %s: %w", path, err)
	}

	for vendor, set := range overrides {
		key := strings.ToLower(vendor)
		merged := cmds[key]
		if set.CPU != "" {
			merged.CPU = set.CPU
		}
		if set.Neighbors != "" {
			merged.Neighbors = set.Neighbors
		}
		cmds[key] = merged
	}
	return cmds, nil
}

// ForVendor returns the command set for a vendor key, falling back to the
// cisco set for unknown vendors.
func (c Commands) ForVendor(vendorKey string) CommandSet {
	set, ok := c[strings.ToLower(vendorKey)]
	fallback := c["cisco"]
	if !ok {
		return fallback
	}
	if set.CPU == "" {
		set.CPU = fallback.CPU
	}
	if set.Neighbors == "" {
		set.Neighbors = fallback.Neighbors
	}
	return set
}
