// Package intent classifies a query into one of a fixed set of financial
// intents with a single chat submission and renders the intent's templates.
package intent

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed intents.yaml
var builtin []byte

// Intent describes one kind of question and how to answer it.
type Intent struct {
	Name               string   `yaml:"name" json:"name"`
	Description        string   `yaml:"description" json:"description"`
	ExampleQueries     []string `yaml:"example_queries" json:"example_queries,omitempty"`
	RequiredParameters []string `yaml:"required_parameters" json:"required_parameters,omitempty"`
	OptionalParameters []string `yaml:"optional_parameters" json:"optional_parameters,omitempty"`
	SparqlTemplate     string   `yaml:"sparql_template" json:"sparql_template,omitempty"`
	ResponseTemplate   string   `yaml:"response_template" json:"response_template,omitempty"`
}

// Catalog is an ordered set of intents.
type Catalog struct {
	Intents []Intent `yaml:"intents"`
}

// Builtin returns the catalog shipped with the binary.
func Builtin() (*Catalog, error) {
	return Parse(builtin)
}

// Load reads a YAML catalog from path. An empty path yields the builtin catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intents: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse intents: %w", err)
	}
	if len(c.Intents) == 0 {
		return nil, fmt.Errorf("intent catalog is empty")
	}
	seen := make(map[string]bool, len(c.Intents))
	for i, in := range c.Intents {
		if in.Name == "" {
			return nil, fmt.Errorf("intent #%d has no name", i)
		}
		if seen[in.Name] {
			return nil, fmt.Errorf("duplicate intent %q", in.Name)
		}
		seen[in.Name] = true
		for _, src := range []string{in.SparqlTemplate, in.ResponseTemplate} {
			if _, err := parseTemplate(in.Name, src); err != nil {
				return nil, err
			}
		}
	}
	return &c, nil
}

// Lookup finds an intent by name.
func (c *Catalog) Lookup(name string) (*Intent, bool) {
	for i := range c.Intents {
		if c.Intents[i].Name == name {
			return &c.Intents[i], true
		}
	}
	return nil, false
}

// Names lists the intent names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Intents))
	for i, in := range c.Intents {
		names[i] = in.Name
	}
	return names
}

// RenderSparql fills the SPARQL template with params.
func (in *Intent) RenderSparql(params map[string]string) (string, error) {
	return render(in.Name, in.SparqlTemplate, params)
}

// RenderResponse fills the response template with params.
func (in *Intent) RenderResponse(params map[string]string) (string, error) {
	return render(in.Name, in.ResponseTemplate, params)
}

var funcs = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

func parseTemplate(name, src string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("intent %q: invalid template: %w", name, err)
	}
	return tmpl, nil
}

func render(name, src string, params map[string]string) (string, error) {
	if src == "" {
		return "", nil
	}
	tmpl, err := parseTemplate(name, src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("intent %q: render: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
