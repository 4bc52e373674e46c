package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Stage selects which steps run in a given pass over a composite.
type Stage string

const (
	StagePre  Stage = "pre"
	StageMain Stage = "main"
	StagePost Stage = "post"
)

// Manifest is a composite action definition, usually read from action.yml.
type Manifest struct {
	Name        string      `yaml:"name" validate:"required,max=200"`
	Author      string      `yaml:"author,omitempty"`
	Description string      `yaml:"description,omitempty"`
	Inputs      InputSpecs  `yaml:"inputs,omitempty" validate:"dive"`
	Outputs     OutputSpecs `yaml:"outputs,omitempty" validate:"dive"`
	Runs        Runs        `yaml:"runs" validate:"required"`

	// Path is the file the manifest was loaded from.
	Path string `yaml:"-"`
}

// Dir returns the directory holding the manifest, used as the action path.
func (m *Manifest) Dir() string {
	if m.Path == "" {
		return ""
	}
	return filepath.Dir(m.Path)
}

// Runs declares how the action executes.
type Runs struct {
	Using string     `yaml:"using" validate:"required,oneof=composite"`
	Steps []StepSpec `yaml:"steps" validate:"required,min=1,dive"`
}

// InputSpec declares one action input.
type InputSpec struct {
	Name               string `yaml:"-" validate:"required"`
	Description        string `yaml:"description,omitempty"`
	Required           bool   `yaml:"required,omitempty"`
	Default            string `yaml:"default,omitempty"`
	DeprecationMessage string `yaml:"deprecationMessage,omitempty"`
}

// OutputSpec declares one action output and the expression producing it.
type OutputSpec struct {
	Name        string `yaml:"-" validate:"required"`
	Description string `yaml:"description,omitempty"`
	Value       string `yaml:"value" validate:"required"`
}

// InputSpecs keeps inputs in declaration order.
type InputSpecs []InputSpec

// OutputSpecs keeps outputs in declaration order.
type OutputSpecs []OutputSpec

// UnmarshalYAML decodes the inputs mapping, preserving order.
func (in *InputSpecs) UnmarshalYAML(value *yaml.Node) error {
	return decodeNamed(value, "inputs", func(name string, node *yaml.Node) error {
		var spec InputSpec
		if err := node.Decode(&spec); err != nil {
			return err
		}
		spec.Name = name
		*in = append(*in, spec)
		return nil
	})
}

// UnmarshalYAML decodes the outputs mapping, preserving order.
func (out *OutputSpecs) UnmarshalYAML(value *yaml.Node) error {
	return decodeNamed(value, "outputs", func(name string, node *yaml.Node) error {
		var spec OutputSpec
		if err := node.Decode(&spec); err != nil {
			return err
		}
		spec.Name = name
		*out = append(*out, spec)
		return nil
	})
}

// Lookup finds an input by name. An exact match wins over a case-insensitive one.
func (in InputSpecs) Lookup(name string) (InputSpec, bool) {
	for _, spec := range in {
		if spec.Name == name {
			return spec, true
		}
	}
	for _, spec := range in {
		if strings.EqualFold(spec.Name, name) {
			return spec, true
		}
	}
	return InputSpec{}, false
}

// StepSpec is one entry of runs.steps.
type StepSpec struct {
	ID               string   `yaml:"id,omitempty" validate:"omitempty,step_id"`
	Name             string   `yaml:"name,omitempty"`
	If               string   `yaml:"if,omitempty"`
	Stage            Stage    `yaml:"stage,omitempty" validate:"omitempty,stage"`
	ContinueOnError  BoolExpr `yaml:"continue-on-error,omitempty"`
	Env              EnvSpec  `yaml:"env,omitempty"`
	Run              string   `yaml:"run,omitempty" validate:"required_without=Uses,excluded_with=Uses"`
	Shell            string   `yaml:"shell,omitempty"`
	WorkingDirectory string   `yaml:"working-directory,omitempty"`
	Uses             string   `yaml:"uses,omitempty" validate:"required_without=Run"`
	With             Mapping  `yaml:"with,omitempty"`
}

// StageOrDefault returns the step stage, main when unset.
func (s StepSpec) StageOrDefault() Stage {
	if s.Stage == "" {
		return StageMain
	}
	return s.Stage
}

// DefaultLabel is the display name used when no name is declared or it cannot be evaluated.
func (s StepSpec) DefaultLabel() string {
	switch {
	case s.Run != "":
		line := strings.TrimSpace(s.Run)
		if idx := strings.IndexByte(line, '\n'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		return "Run " + line
	case s.Uses != "":
		return "Run " + s.Uses
	default:
		return s.ID
	}
}

// BoolExpr is a boolean field that may also be written as an expression.
type BoolExpr struct {
	Expression string
}

// IsSet reports whether a value was declared.
func (b BoolExpr) IsSet() bool {
	return strings.TrimSpace(b.Expression) != ""
}

// UnmarshalYAML accepts booleans and strings.
func (b *BoolExpr) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a boolean or expression", value.Line)
	}
	b.Expression = value.Value
	return nil
}

// MarshalYAML renders the declared text.
func (b BoolExpr) MarshalYAML() (any, error) {
	return b.Expression, nil
}

// EnvSpec is a step env block: either a mapping whose values may contain
// expressions, or a single expression producing a mapping.
type EnvSpec struct {
	Vars       Mapping
	Expression string
}

// IsSet reports whether an env block was declared.
func (e EnvSpec) IsSet() bool {
	return len(e.Vars) > 0 || strings.TrimSpace(e.Expression) != ""
}

// UnmarshalYAML accepts a mapping or a scalar expression.
func (e *EnvSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		e.Expression = value.Value
		return nil
	case yaml.MappingNode:
		return value.Decode(&e.Vars)
	default:
		return fmt.Errorf("line %d: env must be a mapping or an expression", value.Line)
	}
}

// KeyValue is one entry of an ordered mapping.
type KeyValue struct {
	Key   string
	Value string
}

// Mapping is a string mapping that keeps declaration order.
type Mapping []KeyValue

// UnmarshalYAML decodes a mapping of scalars.
func (m *Mapping) UnmarshalYAML(value *yaml.Node) error {
	return decodeNamed(value, "mapping", func(key string, node *yaml.Node) error {
		if node.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %q must be a scalar", node.Line, key)
		}
		*m = append(*m, KeyValue{Key: key, Value: node.Value})
		return nil
	})
}

// Get returns the value stored under key.
func (m Mapping) Get(key string) (string, bool) {
	for _, kv := range m {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Map converts to a plain map.
func (m Mapping) Map() map[string]string {
	out := make(map[string]string, len(m))
	for _, kv := range m {
		out[kv.Key] = kv.Value
	}
	return out
}

func decodeNamed(value *yaml.Node, what string, fn func(name string, node *yaml.Node) error) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %s must be a mapping", value.Line, what)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if err := fn(value.Content[i].Value, value.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}
