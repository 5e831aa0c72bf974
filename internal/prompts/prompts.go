// Package prompts holds the system and user prompt templates sent to the
// language model. Templates live in templates/<persona>/<name>.yaml and are
// embedded into the binary.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates
var templatesFS embed.FS

// Catalog entries used by the generator and the fix loop.
const (
	PersonaArchitect = "architect"
	PersonaDeveloper = "developer"
	PersonaDebugger  = "debugger"

	Plan     = "plan"
	Engineer = "engineer"
	FixFile  = "fix_file"
	FixAll   = "fix_all"
	Analyze  = "analyze"
)

// ErrNotFound is returned when no template exists for a persona and name.
var ErrNotFound = errors.New("prompt not found")

// Template is one parsed prompt definition.
type Template struct {
	Persona     string
	Name        string
	Description string

	system *template.Template
	user   *template.Template
}

type document struct {
	Description    string `yaml:"description"`
	SystemPrompt   string `yaml:"system_prompt"`
	PromptTemplate string `yaml:"prompt_template"`
}

// Catalog loads templates from a filesystem laid out as <persona>/<name>.yaml.
type Catalog struct {
	fsys fs.FS
}

// Default returns the catalog of embedded templates.
func Default() *Catalog {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return &Catalog{fsys: sub}
}

// NewCatalog returns a catalog reading from fsys. Used to override the
// embedded templates with a directory on disk.
func NewCatalog(fsys fs.FS) *Catalog {
	return &Catalog{fsys: fsys}
}

// Load parses the template for persona and name.
func (c *Catalog) Load(persona, name string) (*Template, error) {
	file := path.Join(persona, name+".yaml")
	data, err := fs.ReadFile(c.fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, persona, name)
		}
		return nil, fmt.Errorf("failed to read prompt %s: %w", file, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse prompt %s: %w", file, err)
	}
	if strings.TrimSpace(doc.PromptTemplate) == "" {
		return nil, fmt.Errorf("prompt %s has no prompt_template", file)
	}

	t := &Template{Persona: persona, Name: name, Description: doc.Description}
	if t.system, err = parse(file+":system", doc.SystemPrompt); err != nil {
		return nil, err
	}
	if t.user, err = parse(file+":prompt", doc.PromptTemplate); err != nil {
		return nil, err
	}
	return t, nil
}

// Render fills both templates with data. A key referenced by the template
// but absent from data is an error.
func (c *Catalog) Render(persona, name string, data any) (system, user string, err error) {
	t, err := c.Load(persona, name)
	if err != nil {
		return "", "", err
	}
	return t.Render(data)
}

// List returns "<persona>/<name>" for every template in the catalog.
func (c *Catalog) List() ([]string, error) {
	var out []string
	err := fs.WalkDir(c.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".yaml" {
			return nil
		}
		out = append(out, strings.TrimSuffix(p, ".yaml"))
		return nil
	})
	sort.Strings(out)
	return out, err
}

// Render executes the system and user templates against data.
func (t *Template) Render(data any) (system, user string, err error) {
	if system, err = execute(t.system, data); err != nil {
		return "", "", err
	}
	if user, err = execute(t.user, data); err != nil {
		return "", "", err
	}
	return system, user, nil
}

func parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return t, nil
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
