package agent

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultMaxRounds = 6

// Definition describes a configured agent.
type Definition struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model"`
	SystemPrompt string   `yaml:"system_prompt"`
	Tools        []string `yaml:"tools"`
	MaxRounds    int      `yaml:"max_rounds"`
}

type catalogFile struct {
	Agents []Definition `yaml:"agents"`
}

// Catalog is the immutable set of agents known to the server.
type Catalog struct {
	agents map[string]Definition
}

// LoadCatalog reads agent definitions from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	return NewCatalog(f.Agents...)
}

func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{agents: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return nil, fmt.Errorf("agent without name")
		}
		if _, ok := c.agents[d.Name]; ok {
			return nil, fmt.Errorf("duplicate agent %q", d.Name)
		}
		if d.MaxRounds <= 0 {
			d.MaxRounds = defaultMaxRounds
		}
		c.agents[d.Name] = d
	}
	return c, nil
}

func (c *Catalog) Get(name string) (Definition, bool) {
	d, ok := c.agents[name]
	return d, ok
}

// List returns all definitions sorted by name.
func (c *Catalog) List() []Definition {
	out := make([]Definition, 0, len(c.agents))
	for _, d := range c.agents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
