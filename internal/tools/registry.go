// Package tools resolves which external simulation command a run may
// invoke. With a manifest configured, caller overrides are restricted to
// the allow-list; without one, any command is accepted as-is.
package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrToolNotAllowed = errors.New("tool command is not allow-listed")

// DefaultCommand is the fallback simulation tool when neither a manifest
// nor a caller override names one.
const DefaultCommand = "octave-cli"

type Tool struct {
	Label   string `yaml:"label"`
	Command string `yaml:"command"`
}

type Manifest struct {
	Default string `yaml:"default"`
	Tools   []Tool `yaml:"tools"`
}

type Registry struct {
	byLabel   map[string]Tool
	byCommand map[string]Tool
	def       Tool
	open      bool
}

// Open builds a registry with no allow-list: every override is accepted.
func Open(defaultCommand string) *Registry {
	cmd := strings.TrimSpace(defaultCommand)
	if cmd == "" {
		cmd = DefaultCommand
	}
	return &Registry{
		def:  Tool{Label: labelFor(cmd), Command: cmd},
		open: true,
	}
}

// Load reads a YAML manifest. A missing file degrades to an open
// registry; a present but malformed file is an error.
func Load(path, defaultCommand string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Open(defaultCommand), nil
		}
		return nil, fmt.Errorf("read tools manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse tools manifest: %w", err)
	}
	r := &Registry{
		byLabel:   make(map[string]Tool),
		byCommand: make(map[string]Tool),
	}
	var usable []Tool
	for _, tool := range m.Tools {
		tool.Label = strings.TrimSpace(tool.Label)
		tool.Command = strings.TrimSpace(tool.Command)
		if tool.Command == "" {
			continue
		}
		if tool.Label == "" {
			tool.Label = labelFor(tool.Command)
		}
		r.byLabel[strings.ToLower(tool.Label)] = tool
		r.byCommand[tool.Command] = tool
		usable = append(usable, tool)
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("tools manifest %s declares no usable tools", path)
	}
	def := strings.TrimSpace(m.Default)
	if def == "" && defaultCommand != "" {
		def = defaultCommand
	}
	if tool, ok := r.lookup(def); ok {
		r.def = tool
	} else {
		r.def = usable[0]
	}
	return r, nil
}

// Resolve maps an optional caller override to a (label, command) pair.
// Empty override means the registry default.
func (r *Registry) Resolve(override string) (label, command string, err error) {
	override = strings.TrimSpace(override)
	if override == "" {
		return r.def.Label, r.def.Command, nil
	}
	if r.open {
		return labelFor(override), override, nil
	}
	if tool, ok := r.lookup(override); ok {
		return tool.Label, tool.Command, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrToolNotAllowed, override)
}

func (r *Registry) lookup(key string) (Tool, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Tool{}, false
	}
	if tool, ok := r.byLabel[strings.ToLower(key)]; ok {
		return tool, true
	}
	if tool, ok := r.byCommand[key]; ok {
		return tool, true
	}
	return Tool{}, false
}

func labelFor(command string) string {
	base := filepath.Base(command)
	if i := strings.IndexByte(base, ' '); i > 0 {
		base = base[:i]
	}
	return base
}
