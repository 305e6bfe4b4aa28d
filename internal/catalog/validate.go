package catalog

import (
	"github.com/ZanzyTHEbar/toolplan"
)

// Validate checks the catalog-wide produces/consumes graph for cycles,
// independent of any particular turn. Tool A precedes tool B when A produces a
// tag B consumes (either all-of or OR group). A cycle here means some turn can
// trigger the sequential fallback, so it is reported at boot instead.
func (c *Catalog) Validate() error {
	if c == nil {
		return nil
	}
	successors := c.successors()

	permanent := make(map[string]bool, len(c.names))
	temporary := make(map[string]bool, len(c.names))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		if permanent[name] {
			return nil
		}
		if temporary[name] {
			// Slice the stack from the first occurrence to report the loop.
			for i, n := range stack {
				if n == name {
					path := append([]string(nil), stack[i:]...)
					return append(path, name)
				}
			}
			return []string{name, name}
		}
		temporary[name] = true
		stack = append(stack, name)
		for _, next := range successors[name] {
			if path := visit(next); path != nil {
				return path
			}
		}
		stack = stack[:len(stack)-1]
		delete(temporary, name)
		permanent[name] = true
		return nil
	}

	for _, name := range c.names {
		if path := visit(name); path != nil {
			return toolplan.NewCatalogCycleError(path)
		}
	}
	return nil
}

// successors returns, per tool, the tools consuming something it produces, in
// name order.
func (c *Catalog) successors() map[string][]string {
	out := make(map[string][]string, len(c.names))
	for _, producer := range c.names {
		produced := c.specs[producer].Produces
		if produced.Empty() {
			continue
		}
		for _, consumer := range c.names {
			if consumer == producer {
				continue
			}
			if produced.Intersects(c.specs[consumer].AllConsumed()) {
				out[producer] = append(out[producer], consumer)
			}
		}
	}
	return out
}
