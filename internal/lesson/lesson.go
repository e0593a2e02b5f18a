// Package lesson serves the built-in starter snippets learners can load
// into the editor or run directly.
package lesson

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed lessons.yaml
var builtin []byte

// Lesson is one starter snippet.
type Lesson struct {
	Name     string `yaml:"name" json:"name"`
	Track    string `yaml:"track" json:"track"`
	Language string `yaml:"language" json:"language"`
	Source   string `yaml:"source" json:"source"`
}

// Catalog is a read-only name → lesson lookup.
type Catalog struct {
	lessons []Lesson
	byName  map[string]int
}

// Builtin parses the embedded catalog.
func Builtin() (*Catalog, error) {
	return Parse(builtin)
}

// Parse builds a catalog from YAML. Names must be unique.
func Parse(data []byte) (*Catalog, error) {
	var lessons []Lesson
	if err := yaml.Unmarshal(data, &lessons); err != nil {
		return nil, fmt.Errorf("parsing lessons: %w", err)
	}

	c := &Catalog{lessons: lessons, byName: make(map[string]int, len(lessons))}
	for i, l := range lessons {
		if l.Name == "" {
			return nil, fmt.Errorf("lesson %d has no name", i)
		}
		if _, dup := c.byName[l.Name]; dup {
			return nil, fmt.Errorf("duplicate lesson %q", l.Name)
		}
		if l.Language == "" {
			c.lessons[i].Language = "python"
		}
		c.byName[l.Name] = i
	}
	return c, nil
}

// Get returns the source of the named lesson.
func (c *Catalog) Get(name string) (string, bool) {
	l, ok := c.Lookup(name)
	return l.Source, ok
}

// Lookup returns the named lesson.
func (c *Catalog) Lookup(name string) (Lesson, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Lesson{}, false
	}
	return c.lessons[i], true
}

// Names returns the lesson names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.lessons))
	for _, l := range c.lessons {
		names = append(names, l.Name)
	}
	sort.Strings(names)
	return names
}

// All returns the lessons in catalog order.
func (c *Catalog) All() []Lesson {
	out := make([]Lesson, len(c.lessons))
	copy(out, c.lessons)
	return out
}
