package provider

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template describes a sandbox template: the image it boots and the resource
// limits applied at creation.
type Template struct {
	Image    string `yaml:"image"`
	CPUCount int    `yaml:"cpu_count"`
	MemoryMB int    `yaml:"memory_mb"`
}

// Templates is the manifest of known sandbox templates keyed by name.
type Templates struct {
	byName map[string]Template
}

// LoadTemplates reads a YAML template manifest. An empty path yields an empty
// manifest; the provider then relies on its server-side template defaults.
func LoadTemplates(path string) (*Templates, error) {
	t := &Templates{byName: make(map[string]Template)}
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading templates file: %w", err)
	}

	var manifest struct {
		Templates map[string]Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing templates file: %w", err)
	}

	for name, tpl := range manifest.Templates {
		if tpl.Image == "" {
			return nil, fmt.Errorf("template %q has no image", name)
		}
		t.byName[name] = tpl
	}

	return t, nil
}

// Lookup returns the template for name, if the manifest declares one.
func (t *Templates) Lookup(name string) (Template, bool) {
	tpl, ok := t.byName[name]
	return tpl, ok
}

// Names returns the declared template names.
func (t *Templates) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	return names
}
