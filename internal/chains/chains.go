// Package chains holds the named model sequences a run can select by mode.
//
// Presets are loaded once (from the embedded presets.yaml or a user file) into
// an immutable Registry. Lookups hand out copies, so a run can never alter the
// table shared by concurrent requests.
package chains

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var defaultPresets []byte

// Chain is a named, ordered model sequence.
type Chain struct {
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Models      []string `yaml:"models" json:"models"`
}

// Len returns the number of steps the chain runs.
func (c Chain) Len() int {
	return len(c.Models)
}

func (c Chain) clone() Chain {
	out := c
	out.Aliases = append([]string(nil), c.Aliases...)
	out.Models = append([]string(nil), c.Models...)
	return out
}

type presetFile struct {
	Default string  `yaml:"default"`
	Chains  []Chain `yaml:"chains"`
}

// Registry maps mode names and aliases to chains.
type Registry struct {
	defaultName string
	chains      []Chain
	byKey       map[string]int
}

// Default returns the registry built from the embedded presets.
func Default() (*Registry, error) {
	return Parse(defaultPresets)
}

// Load reads presets from path, or the embedded presets when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML preset data.
func Parse(data []byte) (*Registry, error) {
	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	return newRegistry(pf.Default, pf.Chains)
}

func newRegistry(defaultName string, chains []Chain) (*Registry, error) {
	if len(chains) == 0 {
		return nil, fmt.Errorf("no chains defined")
	}

	r := &Registry{
		chains: make([]Chain, 0, len(chains)),
		byKey:  make(map[string]int),
	}

	for _, c := range chains {
		name := normalizeMode(c.Name)
		if name == "" {
			return nil, fmt.Errorf("chain without a name")
		}
		if len(c.Models) == 0 {
			return nil, fmt.Errorf("chain %q has no models", c.Name)
		}
		for i, m := range c.Models {
			if strings.TrimSpace(m) == "" {
				return nil, fmt.Errorf("chain %q has an empty model at position %d", c.Name, i+1)
			}
		}

		idx := len(r.chains)
		c = c.clone()
		c.Name = name
		r.chains = append(r.chains, c)

		for _, key := range append([]string{c.Name}, c.Aliases...) {
			key = normalizeMode(key)
			if key == "" {
				continue
			}
			if _, dup := r.byKey[key]; dup {
				return nil, fmt.Errorf("duplicate mode name %q", key)
			}
			r.byKey[key] = idx
		}
	}

	defaultName = normalizeMode(defaultName)
	if defaultName == "" {
		defaultName = r.shortest().Name
	}
	if _, ok := r.byKey[defaultName]; !ok {
		return nil, fmt.Errorf("default mode %q is not defined", defaultName)
	}
	r.defaultName = defaultName

	return r, nil
}

func (r *Registry) shortest() Chain {
	best := r.chains[0]
	for _, c := range r.chains[1:] {
		if c.Len() < best.Len() {
			best = c
		}
	}
	return best
}

// DefaultMode returns the mode used for unknown names.
func (r *Registry) DefaultMode() string {
	return r.defaultName
}

// Lookup resolves mode to a chain. The boolean reports whether mode matched a
// known name or alias; when it did not, the default chain is returned.
func (r *Registry) Lookup(mode string) (Chain, bool) {
	if idx, ok := r.byKey[normalizeMode(mode)]; ok {
		return r.chains[idx].clone(), true
	}
	return r.chains[r.byKey[r.defaultName]].clone(), false
}

// Models returns the model sequence for mode, falling back to the default.
func (r *Registry) Models(mode string) []string {
	c, _ := r.Lookup(mode)
	return c.Models
}

// All returns every chain ordered by length, then name.
func (r *Registry) All() []Chain {
	out := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c.clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Len() != out[j].Len() {
			return out[i].Len() < out[j].Len()
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func normalizeMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}
