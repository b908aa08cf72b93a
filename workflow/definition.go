// Package workflow defines declarative workflow documents and turns
// them into executable dependency graphs.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRetryDelay separates retry attempts of tasks that do not set
// retry_delay.
const DefaultRetryDelay = 300 * time.Second

// Definition is a declarative workflow document.
type Definition struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Schedule    string    `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	Enabled     bool      `yaml:"enabled" json:"enabled"`
	Tasks       []TaskDef `yaml:"tasks" json:"tasks"`
}

// TaskDef is one task of a workflow document. Timeout, RetryDelay and SLA
// are given in seconds. OnFailure names an alerting hook for operators,
// the engine carries it through without interpreting it.
type TaskDef struct {
	Name       string   `yaml:"name" json:"name"`
	Image      string   `yaml:"image,omitempty" json:"image,omitempty"`
	Command    Command  `yaml:"command" json:"command"`
	DependsOn  []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Timeout    int      `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries    int      `yaml:"retries,omitempty" json:"retries,omitempty"`
	RetryDelay int      `yaml:"retry_delay" json:"retry_delay"`
	OnFailure  string   `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
	SLA        int      `yaml:"sla,omitempty" json:"sla,omitempty"`
}

// UnmarshalYAML applies document defaults: workflows are enabled unless
// the document disables them.
func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	type plain Definition
	tmp := plain{Enabled: true}
	if err := value.Decode(&tmp); err != nil {
		return err
	}
	*d = Definition(tmp)
	return nil
}

// UnmarshalYAML applies task defaults, currently only the retry delay.
func (t *TaskDef) UnmarshalYAML(value *yaml.Node) error {
	type plain TaskDef
	tmp := plain{RetryDelay: int(DefaultRetryDelay / time.Second)}
	if err := value.Decode(&tmp); err != nil {
		return err
	}
	*t = TaskDef(tmp)
	return nil
}

// Command is a task command line. The document form is either a single
// string split on whitespace or an explicit argument list.
type Command []string

func (c *Command) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*c = strings.Fields(s)
		return nil
	case yaml.SequenceNode:
		var parts []string
		if err := value.Decode(&parts); err != nil {
			return err
		}
		*c = parts
		return nil
	default:
		return fmt.Errorf("command must be a string or a list of strings")
	}
}

// UnmarshalJSON accepts the same two forms as the YAML codec, so
// persisted definitions stay readable either way.
func (c *Command) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = strings.Fields(s)
		return nil
	}
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	*c = parts
	return nil
}

// Validate checks the document is well formed: a non-empty name, unique
// task names and dependencies pointing at tasks of the same workflow.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("workflow name is required")
	}
	seen := make(map[string]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		if t.Name == "" {
			return fmt.Errorf("workflow %q: task without a name", d.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("workflow %q: duplicate task %q", d.Name, t.Name)
		}
		seen[t.Name] = true
		if t.Retries < 0 {
			return fmt.Errorf("workflow %q: task %q: negative retries", d.Name, t.Name)
		}
	}
	for _, t := range d.Tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("workflow %q: task %q depends on unknown task %q",
					d.Name, t.Name, dep)
			}
		}
	}
	return nil
}

// Parse decodes and validates a single workflow document.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ParseFile decodes and validates a workflow document from a YAML file.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}
