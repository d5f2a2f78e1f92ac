package connectorx

import (
	"slices"
	"sort"
)

// FieldType is the declared type of a configuration field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldSecret  FieldType = "secret"
	FieldURL     FieldType = "url"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// ConfigField declares one key of a connector's configuration.
type ConfigField struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Default  any       `json:"default,omitempty"`
}

// Capability is an action a connected instance can execute. Parameters is a
// JSON schema object describing the expected arguments.
type Capability struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Definition is the static description of a connector.
type Definition struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Category         string        `json:"category"`
	ConfigFields     []ConfigField `json:"configFields"`
	Capabilities     []Capability  `json:"capabilities"`
	SupportsInbound  bool          `json:"supportsInbound"`
	SupportsOutbound bool          `json:"supportsOutbound"`
}

// Capability looks up a declared capability by id.
func (d Definition) Capability(id string) (Capability, bool) {
	for _, c := range d.Capabilities {
		if c.ID == id {
			return c, true
		}
	}
	return Capability{}, false
}

func (d Definition) clone() Definition {
	c := d
	c.ConfigFields = slices.Clone(d.ConfigFields)
	c.Capabilities = slices.Clone(d.Capabilities)
	return c
}

// Catalog is the immutable set of known connector definitions. Reads hand out copies.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// NewCatalog builds a catalog sorted by id. Ids must be non-empty and unique.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(defs))}

	sorted := make([]Definition, 0, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return nil, connectorErrors.NewWithMessage(ErrInvalidDefinition, "connector definition without id").
				WithDetail("name", d.Name)
		}
		sorted = append(sorted, d.clone())
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for i, d := range sorted {
		if _, dup := c.byID[d.ID]; dup {
			return nil, connectorErrors.New(ErrDuplicateDefinition).WithDetail("id", d.ID)
		}
		c.byID[d.ID] = i
	}
	c.defs = sorted
	return c, nil
}

// MustCatalog is NewCatalog for static definition lists; it panics on error.
func MustCatalog(defs ...Definition) *Catalog {
	c, err := NewCatalog(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	for i, d := range c.defs {
		out[i] = d.clone()
	}
	return out
}

func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i].clone(), true
}

func (c *Catalog) ByCategory(category string) []Definition {
	out := make([]Definition, 0)
	for _, d := range c.defs {
		if d.Category == category {
			out = append(out, d.clone())
		}
	}
	return out
}
