package workflow

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// configFile mirrors the top level layout of a gantry.yml: workflow
// documents keyed by name.
type configFile struct {
	Workflows map[string]Definition `yaml:"workflows"`
}

// Registry holds named workflow definitions loaded from config files.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{workflows: make(map[string]*Definition)}
}

// LoadFile reads a config file and registers every workflow in it.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := r.Load(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Load registers every workflow of a config document. The map key wins
// as the workflow name. Nothing is registered when any document fails
// validation.
func (r *Registry) Load(data []byte) error {
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	defs := make([]*Definition, 0, len(cfg.Workflows))
	for name, def := range cfg.Workflows {
		def.Name = name
		if err := def.Validate(); err != nil {
			return err
		}
		defs = append(defs, &def)
	}

	r.mu.Lock()
	for _, def := range defs {
		r.workflows[def.Name] = def
	}
	r.mu.Unlock()
	return nil
}

// Add registers a single definition, replacing one with the same name.
func (r *Registry) Add(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.workflows[def.Name] = def
	r.mu.Unlock()
	return nil
}

// Get returns a registered workflow by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.workflows[name]
	return def, ok
}

// List returns the names of registered workflows, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
