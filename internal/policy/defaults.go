// ABOUTME: Compiled-in default rule table loaded from an embedded TOML file
// ABOUTME: An operator may replace it at startup with policy.defaults_file

package policy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed defaults.toml
var defaultsTOML []byte

// Defaults maps command name to its factory rule.
type Defaults map[string]Rule

type defaultsFile struct {
	Commands map[string]defaultEntry `toml:"commands"`
}

type defaultEntry struct {
	Enabled       *bool    `toml:"enabled"`
	MinPerm       string   `toml:"min_perm"`
	AllowChannels []string `toml:"allow_channels"`
	BlockChannels []string `toml:"block_channels"`
}

var builtin = sync.OnceValues(func() (Defaults, error) {
	return ParseDefaults(defaultsTOML)
})

// BuiltinDefaults returns the embedded default table.
func BuiltinDefaults() Defaults {
	d, err := builtin()
	if err != nil {
		// The embedded file is covered by tests; reaching this is a build defect.
		panic(fmt.Sprintf("embedded defaults.toml: %v", err))
	}
	return d
}

// LoadDefaults reads a default table from disk.
func LoadDefaults(path string) (Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading defaults file: %w", err)
	}
	return ParseDefaults(data)
}

// ParseDefaults decodes a TOML default table. Every min_perm must be a known
// capability token.
func ParseDefaults(data []byte) (Defaults, error) {
	var f defaultsFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("parsing defaults: %w", err)
	}

	d := make(Defaults, len(f.Commands))
	for name, e := range f.Commands {
		rule := Rule{
			Enabled:       true,
			AllowChannels: e.AllowChannels,
			BlockChannels: e.BlockChannels,
		}
		if e.Enabled != nil {
			rule.Enabled = *e.Enabled
		}
		if e.MinPerm != "" {
			p, ok := ParsePermission(e.MinPerm)
			if !ok {
				return nil, fmt.Errorf("command %q: unknown permission %q", name, e.MinPerm)
			}
			rule.MinPermission = p
		}
		d[name] = rule
	}
	return d, nil
}

// Rule returns the default for a command, or Unrestricted when none exists.
func (d Defaults) Rule(command string) Rule {
	if r, ok := d[command]; ok {
		return r.clone()
	}
	return Unrestricted()
}

// Names lists commands that have a default, sorted.
func (d Defaults) Names() []string {
	names := make([]string, 0, len(d))
	for n := range d {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
