// Package recycling holds the static care and recycling notes shown for each
// plastic type.
package recycling

import (
	_ "embed"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/plastic-classifier/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// FallbackDescription is shown for labels the catalog does not cover.
const FallbackDescription = "Description unavailable."

type Entry struct {
	Label       model.Label `json:"label"       yaml:"label"`
	Code        int         `json:"code"        yaml:"code"`
	Name        string      `json:"name"        yaml:"name"`
	Recyclable  string      `json:"recyclable"  yaml:"recyclable"`
	Description string      `json:"description" yaml:"description"`
}

// Catalog maps every label to its entry.
type Catalog struct {
	entries map[model.Label]Entry
}

// Default parses the embedded catalog. It panics on a malformed embed, which
// can only happen at build time.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(errors.Wrap(err, "embedded recycling catalog"))
	}
	return c
}

// LoadCatalog reads a YAML override. An empty path returns the default.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %s", path)
	}
	return c, nil
}

// Parse decodes a YAML list of entries. Every known label must be covered
// exactly once.
func Parse(raw []byte) (*Catalog, error) {
	var list []Entry
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}

	c := &Catalog{entries: make(map[model.Label]Entry, len(list))}
	for _, e := range list {
		if !e.Label.Known() {
			return nil, errors.Errorf("unknown label %q", e.Label)
		}
		if _, dup := c.entries[e.Label]; dup {
			return nil, errors.Errorf("duplicate entry for %q", e.Label)
		}
		if e.Description == "" {
			return nil, errors.Errorf("empty description for %q", e.Label)
		}
		c.entries[e.Label] = e
	}
	for _, l := range model.DefaultLabels {
		if _, ok := c.entries[l]; !ok {
			return nil, errors.Errorf("missing entry for %q", l)
		}
	}
	return c, nil
}

// Describe returns the entry for label, or a placeholder entry.
func (c *Catalog) Describe(label model.Label) Entry {
	if e, ok := c.entries[label]; ok {
		return e
	}
	return Entry{Label: label, Description: FallbackDescription}
}

// Entries lists the catalog in the canonical label order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(model.DefaultLabels))
	for _, l := range model.DefaultLabels {
		out = append(out, c.entries[l])
	}
	return out
}
