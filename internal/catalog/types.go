// Package catalog describes the tools and operations that control lines may
// invoke and renders their command templates.
package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// Catalog resolves tool descriptions by name.
type Catalog interface {
	Tool(name string) (*Tool, error)
}

// Param declares a named operation parameter with an optional default value.
type Param struct {
	Name        string `yaml:"name" validate:"required,param_name"`
	Default     string `yaml:"default,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Operation is a single invocable action of a tool.
type Operation struct {
	Name        string  `yaml:"name" validate:"required"`
	Description string  `yaml:"description,omitempty"`
	Command     string  `yaml:"command" validate:"required"`
	Inputs      []Param `yaml:"inputs,omitempty" validate:"omitempty,dive"`
	Outputs     []Param `yaml:"outputs,omitempty" validate:"omitempty,dive"`
	Parameters  []Param `yaml:"parameters,omitempty" validate:"omitempty,dive"`
}

// Tool is a toolspec: a named set of operations.
type Tool struct {
	Name        string      `yaml:"name" validate:"required"`
	Version     string      `yaml:"version,omitempty"`
	Description string      `yaml:"description,omitempty"`
	Operations  []Operation `yaml:"operations" validate:"required,min=1,dive"`
}

// FindOperation returns the operation with the given name.
func (t *Tool) FindOperation(name string) (*Operation, bool) {
	if t == nil {
		return nil, false
	}
	for i := range t.Operations {
		if t.Operations[i].Name == name {
			return &t.Operations[i], true
		}
	}
	return nil, false
}

// IsJava reports whether the operation launches a JVM-hosted tool.
func (o *Operation) IsJava() bool {
	return o != nil && strings.Contains(o.Command, "java ")
}

// Binding holds an operation's parameter values split by declaration kind.
// The three maps never share a key.
type Binding struct {
	Inputs  map[string]string
	Outputs map[string]string
	Others  map[string]string
	// Unknown lists supplied parameters the operation does not declare.
	Unknown []string
}

// Bind fills the operation's declared parameters from defaults overridden by
// values. Undeclared keys in values are reported in Binding.Unknown.
func (o *Operation) Bind(values map[string]string) Binding {
	b := Binding{
		Inputs:  declared(o.Inputs),
		Outputs: declared(o.Outputs),
		Others:  declared(o.Parameters),
	}

	for key, value := range values {
		switch {
		case hasKey(b.Inputs, key):
			b.Inputs[key] = value
		case hasKey(b.Outputs, key):
			b.Outputs[key] = value
		case hasKey(b.Others, key):
			b.Others[key] = value
		default:
			b.Unknown = append(b.Unknown, key)
		}
	}
	sort.Strings(b.Unknown)

	return b
}

// All merges the three maps into one substitution table.
func (b Binding) All() map[string]string {
	all := make(map[string]string, len(b.Inputs)+len(b.Outputs)+len(b.Others))
	for _, m := range []map[string]string{b.Inputs, b.Outputs, b.Others} {
		for k, v := range m {
			all[k] = v
		}
	}
	return all
}

var placeholderPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// Render substitutes every ${name} placeholder in the operation's command with
// its bound value. A placeholder without a declared parameter is an error.
func (o *Operation) Render(tool string, b Binding) (string, error) {
	values := b.All()
	var missing []string

	rendered := placeholderPattern.ReplaceAllStringFunc(o.Command, func(match string) string {
		name := match[2 : len(match)-1]
		value, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})

	if len(missing) > 0 {
		return "", apperrors.NewCatalogError(tool, o.Name,
			fmt.Sprintf("unresolved placeholders: %s", strings.Join(missing, ", ")), nil)
	}
	return rendered, nil
}

func declared(params []Param) map[string]string {
	m := make(map[string]string, len(params))
	for _, p := range params {
		m[p.Name] = p.Default
	}
	return m
}

func hasKey(m map[string]string, key string) bool {
	_, ok := m[key]
	return ok
}
