// Package catalog holds the immutable registry of tool contracts consulted by
// the planner.
package catalog

import (
	"fmt"
	"sort"

	"github.com/ZanzyTHEbar/toolplan"
)

// Catalog maps tool names to their specs. A Catalog never changes after
// construction; With returns a modified copy.
type Catalog struct {
	specs map[string]toolplan.ToolSpec
	names []string
}

// New builds a catalog from specs. Names must be non-empty and unique.
func New(specs ...toolplan.ToolSpec) (*Catalog, error) {
	c := &Catalog{specs: make(map[string]toolplan.ToolSpec, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, toolplan.NewValidationError("catalog", "tool spec without a name", nil)
		}
		if _, exists := c.specs[spec.Name]; exists {
			return nil, toolplan.NewValidationError("catalog", fmt.Sprintf("duplicate tool spec '%s'", spec.Name), nil)
		}
		c.specs[spec.Name] = normalize(spec)
	}
	c.index()
	return c, nil
}

// MustNew is like New but panics on error. Intended for static tables.
func MustNew(specs ...toolplan.ToolSpec) *Catalog {
	c, err := New(specs...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) index() {
	c.names = make([]string, 0, len(c.specs))
	for name := range c.specs {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
}

// normalize fills nil tag sets and the resource group so every spec handed out
// is safe to read.
func normalize(spec toolplan.ToolSpec) toolplan.ToolSpec {
	spec = spec.Clone()
	if spec.ResourceGroup == "" {
		spec.ResourceGroup = toolplan.DefaultResourceGroup
	}
	return spec
}

// GetSpec returns the registered spec for name, or the permissive default for
// unrecognized names. It never fails.
func (c *Catalog) GetSpec(name string) toolplan.ToolSpec {
	if c != nil {
		if spec, ok := c.specs[name]; ok {
			return spec.Clone()
		}
	}
	return toolplan.DefaultSpec(name)
}

// Lookup returns the registered spec for name and whether it exists.
func (c *Catalog) Lookup(name string) (toolplan.ToolSpec, bool) {
	if c == nil {
		return toolplan.ToolSpec{}, false
	}
	spec, ok := c.specs[name]
	if !ok {
		return toolplan.ToolSpec{}, false
	}
	return spec.Clone(), true
}

// Names returns the registered tool names in lexical order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.names...)
}

// Specs returns copies of all registered specs in name order.
func (c *Catalog) Specs() []toolplan.ToolSpec {
	if c == nil {
		return nil
	}
	out := make([]toolplan.ToolSpec, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.specs[name].Clone())
	}
	return out
}

// Len returns the number of registered specs.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.specs)
}

// With returns a new catalog where each override replaces (or adds) the spec
// of the same name. The receiver is left untouched.
func (c *Catalog) With(overrides ...toolplan.ToolSpec) (*Catalog, error) {
	next := &Catalog{specs: make(map[string]toolplan.ToolSpec, c.Len()+len(overrides))}
	if c != nil {
		for name, spec := range c.specs {
			next.specs[name] = spec
		}
	}
	seen := make(map[string]struct{}, len(overrides))
	for _, spec := range overrides {
		if spec.Name == "" {
			return nil, toolplan.NewValidationError("catalog", "override without a name", nil)
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, toolplan.NewValidationError("catalog", fmt.Sprintf("duplicate override '%s'", spec.Name), nil)
		}
		seen[spec.Name] = struct{}{}
		next.specs[spec.Name] = normalize(spec)
	}
	next.index()
	return next, nil
}
