package toolplan

import "context"

// SpecResolver resolves a tool name to its contract. Implementations must
// never fail: unknown names resolve to DefaultSpec.
type SpecResolver interface {
	GetSpec(name string) ToolSpec
}

// State exposes the prior-round result records of a conversation.
type State interface {
	Results() []ToolResult
}

// TagDeclarer is implemented by result payloads that declare, at production
// time, which DataTags they satisfy.
type TagDeclarer interface {
	SatisfiedTags() []DataTag
}

// Tool represents an executable action referenced by a FunctionCall.
type Tool interface {
	// Execute performs the tool's action with the call's argument mapping.
	Execute(ctx context.Context, args map[string]any) (any, error)

	// Name returns the tool's name.
	Name() string
}

// Results is a State backed by a plain slice.
type Results []ToolResult

// Results implements State.
func (r Results) Results() []ToolResult { return r }

// TaggedPayload wraps a payload together with the tags it satisfies.
type TaggedPayload struct {
	Value any       `json:"value"`
	Tags  []DataTag `json:"tags"`
}

// SatisfiedTags implements TagDeclarer.
func (p TaggedPayload) SatisfiedTags() []DataTag { return p.Tags }
