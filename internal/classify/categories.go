package classify

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/shpitdev/site-classifier/internal/jsonx"
)

// Category is a suggested site_type with an optional description.
type Category struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// LoadCategories reads a categories file (YAML or JSON). The document is a
// list, or an object with a "categories" list; entries are plain names or
// {name, description} objects. Entries without a name are skipped.
func LoadCategories(path string) ([]Category, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read categories file %s", path)
	}
	cats, err := ParseCategories(b)
	if err != nil {
		return nil, eris.Wrapf(err, "categories file %s", path)
	}
	return cats, nil
}

// ParseCategories decodes a categories document.
func ParseCategories(b []byte) ([]Category, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, eris.Wrap(err, "parse categories")
	}
	if m, ok := doc.(map[string]any); ok {
		inner, found := m["categories"]
		if !found {
			return nil, eris.New("must contain a list or an object with a 'categories' list")
		}
		doc = inner
	}
	items, ok := doc.([]any)
	if !ok {
		return nil, eris.New("must contain a list or an object with a 'categories' list")
	}

	out := make([]Category, 0, len(items))
	for _, item := range items {
		var c Category
		switch t := item.(type) {
		case string:
			c.Name = strings.TrimSpace(t)
		case map[string]any:
			c.Name = jsonx.String(t["name"])
			c.Description = jsonx.String(t["description"])
		default:
			continue
		}
		if c.Name == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Signature encodes categories as "name: description" entries joined by "; ".
// It is stored with each output row and compared verbatim on cache reads.
func Signature(cats []Category) string {
	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		if c.Description == "" {
			parts = append(parts, c.Name)
			continue
		}
		parts = append(parts, c.Name+": "+c.Description)
	}
	return strings.Join(parts, "; ")
}

// Guidance renders the category instructions embedded in prompts.
func Guidance(cats []Category) string {
	if len(cats) == 0 {
		return "No fixed category list is provided; choose a concise, descriptive site_type " +
			"(for example warehouse, manufacturing plant, corporate office, retail store, data center)."
	}
	var b strings.Builder
	b.WriteString("Suggested site_type categories (prefer one of these; use \"unknown\" if none fit):\n")
	for _, c := range cats {
		b.WriteString("- " + c.Name)
		if c.Description != "" {
			b.WriteString(": " + c.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
