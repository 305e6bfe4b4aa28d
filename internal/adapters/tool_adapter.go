// Package adapters wraps plain Go functions as toolplan tools.
package adapters

import (
	"context"
	"fmt"
	"sort"

	"github.com/ZanzyTHEbar/toolplan"
)

// ToolFunc is the function shape wrapped by GoToolAdapter.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// GoToolAdapter adapts a standard Go function to the toolplan.Tool interface.
// Results are tagged with the tool's produced tags so the next turn's plan
// can see what this call satisfied without sniffing payload keys.
type GoToolAdapter struct {
	toolFunc    ToolFunc
	name        string
	validator   func(map[string]any) error
	description string
	produces    []toolplan.DataTag
}

// ToolOption represents an option for configuring a GoToolAdapter.
type ToolOption func(*GoToolAdapter)

// WithValidator sets a custom validator function for the tool.
func WithValidator(validator func(map[string]any) error) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.validator = validator
	}
}

// WithDescription sets a detailed description for the tool.
func WithDescription(description string) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.description = description
	}
}

// WithProduces sets the tags attached to every successful result.
func WithProduces(tags ...toolplan.DataTag) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.produces = toolplan.NewTagSet(tags...).Slice()
	}
}

// WithSpec takes the produced tags and description from spec.
func WithSpec(spec toolplan.ToolSpec) ToolOption {
	return func(adapter *GoToolAdapter) {
		adapter.produces = spec.Produces.Slice()
		if adapter.description == "" {
			adapter.description = spec.Description
		}
	}
}

// NewGoToolAdapter creates a new adapter for a Go function.
func NewGoToolAdapter(name string, toolFunc ToolFunc, options ...ToolOption) *GoToolAdapter {
	adapter := &GoToolAdapter{
		toolFunc: toolFunc,
		name:     name,
		validator: func(input map[string]any) error {
			// Default validator just ensures input is not nil
			if input == nil {
				return fmt.Errorf("input cannot be nil")
			}
			return nil
		},
	}

	// Apply all options
	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// Execute implements the toolplan.Tool interface. A result that already
// declares its tags is returned as is.
func (a *GoToolAdapter) Execute(ctx context.Context, input map[string]any) (any, error) {
	if a.toolFunc == nil {
		return nil, fmt.Errorf("tool function is nil")
	}

	// Validate input before execution
	if err := a.Validate(input); err != nil {
		return nil, fmt.Errorf("input validation failed for %s: %w", a.name, err)
	}

	result, err := a.toolFunc(ctx, input)
	if err != nil {
		return nil, err
	}
	if _, declared := result.(toolplan.TagDeclarer); declared {
		return result, nil
	}
	return toolplan.TaggedPayload{Value: result, Tags: a.Produces()}, nil
}

// Validate runs the configured validator.
func (a *GoToolAdapter) Validate(input map[string]any) error {
	if a.validator != nil {
		return a.validator(input)
	}
	return nil
}

// Name implements the toolplan.Tool interface.
func (a *GoToolAdapter) Name() string {
	return a.name
}

// Description returns the tool description.
func (a *GoToolAdapter) Description() string {
	return a.description
}

// Produces returns a copy of the tags attached to results.
func (a *GoToolAdapter) Produces() []toolplan.DataTag {
	return append([]toolplan.DataTag(nil), a.produces...)
}

// Registry wraps funcs as tools, taking each tool's produced tags from
// resolver. The returned map is keyed by tool name.
func Registry(resolver toolplan.SpecResolver, funcs map[string]ToolFunc) map[string]toolplan.Tool {
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make(map[string]toolplan.Tool, len(funcs))
	for _, name := range names {
		spec := toolplan.DefaultSpec(name)
		if resolver != nil {
			spec = resolver.GetSpec(name)
		}
		tools[name] = NewGoToolAdapter(name, funcs[name], WithSpec(spec))
	}
	return tools
}
