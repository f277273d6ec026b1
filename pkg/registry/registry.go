// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

func LoadRegistry(path string) (*TemplateRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg TemplateRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse template registry %s: %w", path, err)
	}
	return &reg, nil
}

// LoadOrDefault loads path, falling back to the built-in set when path is empty.
func LoadOrDefault(path string) (*TemplateRegistry, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadRegistry(path)
}

// Save writes the registry as indented JSON, creating parent directories.
func Save(reg *TemplateRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// Lookup finds the template for typ in lang, then in fallback.
func (r *TemplateRegistry) Lookup(typ, lang, fallback string) (*Template, bool) {
	for _, l := range []string{lang, fallback} {
		if l == "" {
			continue
		}
		for i := range r.Templates {
			if r.Templates[i].Type == typ && r.Templates[i].Language == l {
				return &r.Templates[i], true
			}
		}
	}
	return nil, false
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Placeholders lists the variable names referenced by s, in order of first use.
func Placeholders(s string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Validate checks ids are unique, (type, language) pairs are unique, and
// every declared variable list covers the placeholders in use.
func (r *TemplateRegistry) Validate() error {
	if len(r.Templates) == 0 {
		return fmt.Errorf("registry contains no templates")
	}

	ids := make(map[string]bool)
	keys := make(map[string]bool)
	for _, t := range r.Templates {
		if t.ID == "" {
			return fmt.Errorf("template missing required field: id")
		}
		if ids[t.ID] {
			return fmt.Errorf("duplicate template ID: %s", t.ID)
		}
		ids[t.ID] = true

		if t.Type == "" || t.Language == "" || t.Body == "" {
			return fmt.Errorf("template %s requires type, language and body", t.ID)
		}
		key := t.Type + "/" + t.Language
		if keys[key] {
			return fmt.Errorf("duplicate template for %s", key)
		}
		keys[key] = true

		if len(t.Variables) == 0 {
			continue
		}
		declared := make(map[string]bool, len(t.Variables))
		for _, v := range t.Variables {
			declared[v] = true
		}
		for _, used := range Placeholders(t.Subject + " " + t.Body) {
			if !declared[used] {
				return fmt.Errorf("template %s uses undeclared variable %q", t.ID, used)
			}
		}
	}
	return nil
}
