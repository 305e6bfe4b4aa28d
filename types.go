package toolplan

import (
	"encoding/json"
	"sort"
	"time"
)

// DataTag names a category of data a tool may produce or consume.
// Tags are only used for dependency inference, never for payload typing.
type DataTag string

// Well-known tags used by the built-in catalog and signature table.
const (
	TagGenericContext  DataTag = "generic_context"
	TagTabularData     DataTag = "tabular_data"
	TagAdvancedMetrics DataTag = "advanced_metrics"
	TagPlayerProfile   DataTag = "player_profile"
	TagEventTimeline   DataTag = "event_timeline"
	TagVideoClips      DataTag = "video_clips"
	TagVisualization   DataTag = "visualization"
	TagKnowledge       DataTag = "knowledge"
)

// TagSet is an unordered set of DataTags. The zero value is an empty set
// ready for reads; use NewTagSet or Add on a non-nil set for writes.
type TagSet map[DataTag]struct{}

// NewTagSet builds a set from the given tags.
func NewTagSet(tags ...DataTag) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Add inserts tags into the set.
func (s TagSet) Add(tags ...DataTag) {
	for _, t := range tags {
		s[t] = struct{}{}
	}
}

// Has reports whether tag is in the set.
func (s TagSet) Has(tag DataTag) bool {
	_, ok := s[tag]
	return ok
}

// Len returns the number of tags.
func (s TagSet) Len() int { return len(s) }

// Empty reports whether the set has no tags.
func (s TagSet) Empty() bool { return len(s) == 0 }

// Intersects reports whether s and other share at least one tag.
func (s TagSet) Intersects(other TagSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for t := range small {
		if _, ok := large[t]; ok {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any tag of other is in s.
func (s TagSet) ContainsAny(other TagSet) bool { return s.Intersects(other) }

// ContainsAll reports whether every tag of other is in s.
func (s TagSet) ContainsAll(other TagSet) bool {
	for t := range other {
		if _, ok := s[t]; !ok {
			return false
		}
	}
	return true
}

// Minus returns the tags of s that are not in other.
func (s TagSet) Minus(other TagSet) TagSet {
	out := make(TagSet, len(s))
	for t := range s {
		if _, ok := other[t]; !ok {
			out[t] = struct{}{}
		}
	}
	return out
}

// Union returns a new set holding the tags of s and other.
func (s TagSet) Union(other TagSet) TagSet {
	out := make(TagSet, len(s)+len(other))
	for t := range s {
		out[t] = struct{}{}
	}
	for t := range other {
		out[t] = struct{}{}
	}
	return out
}

// Clone returns an independent copy of the set.
func (s TagSet) Clone() TagSet {
	return s.Union(nil)
}

// Slice returns the tags sorted lexically.
func (s TagSet) Slice() []DataTag {
	out := make([]DataTag, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted list.
func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes a list of tags.
func (s *TagSet) UnmarshalJSON(data []byte) error {
	var tags []DataTag
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	*s = NewTagSet(tags...)
	return nil
}

// DefaultResourceGroup is the contention domain assigned to unknown tools.
const DefaultResourceGroup = "generic"

// ToolSpec is the declarative contract for a tool. Specs are built once at
// startup and treated as immutable; catalogs hand out copies.
type ToolSpec struct {
	Name string `json:"name" yaml:"name"`

	// Consumes must all be available (in prior state or from an in-turn producer).
	Consumes TagSet `json:"consumes,omitempty" yaml:"-"`
	// ConsumesAny is an OR group: one satisfied member in prior state satisfies it.
	ConsumesAny TagSet `json:"consumes_any,omitempty" yaml:"-"`
	Produces    TagSet `json:"produces,omitempty" yaml:"-"`

	ParallelOK    bool          `json:"parallel_ok" yaml:"parallel_ok"`
	ResourceGroup string        `json:"resource_group" yaml:"resource_group"`
	Timeout       time.Duration `json:"timeout,omitempty" yaml:"-"` // advisory, 0 means none
	SideEffects   bool          `json:"side_effects" yaml:"side_effects"`
	Description   string        `json:"description,omitempty" yaml:"description"`
}

// DefaultSpec returns the permissive spec used for unregistered tool names:
// no dependencies, parallel safe, generic resource group.
func DefaultSpec(name string) ToolSpec {
	return ToolSpec{
		Name:          name,
		Consumes:      TagSet{},
		ConsumesAny:   TagSet{},
		Produces:      TagSet{},
		ParallelOK:    true,
		ResourceGroup: DefaultResourceGroup,
	}
}

// Clone returns a deep copy of the spec.
func (s ToolSpec) Clone() ToolSpec {
	s.Consumes = s.Consumes.Clone()
	s.ConsumesAny = s.ConsumesAny.Clone()
	s.Produces = s.Produces.Clone()
	return s
}

// Needed returns the consumed tags that are not already covered by satisfied.
// An OR group drops out entirely once any member is satisfied; otherwise all
// of its members remain needed.
func (s ToolSpec) Needed(satisfied TagSet) TagSet {
	needed := s.Consumes.Minus(satisfied)
	if len(s.ConsumesAny) > 0 && !satisfied.ContainsAny(s.ConsumesAny) {
		needed = needed.Union(s.ConsumesAny)
	}
	return needed
}

// AllConsumed returns the union of Consumes and ConsumesAny.
func (s ToolSpec) AllConsumed() TagSet {
	return s.Consumes.Union(s.ConsumesAny)
}

// FunctionCall is one tool call requested in the current turn.
type FunctionCall struct {
	Index int            `json:"index"`
	Name  string         `json:"name"`
	Args  map[string]any `json:"args,omitempty"`
}

// ToolResult is a prior-round result record. The payload is opaque and only
// inspected as evidence of which tags are already available.
type ToolResult struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// PlannedCall is a call placed into a batch together with its resolved spec.
type PlannedCall struct {
	Index int            `json:"index"`
	Name  string         `json:"name"`
	Args  map[string]any `json:"args"`
	Spec  ToolSpec       `json:"spec"`
}

// Batch is a set of calls with no dependency among them.
type Batch []PlannedCall

// Indices returns the call indices in the batch, in batch order.
func (b Batch) Indices() []int {
	out := make([]int, len(b))
	for i, c := range b {
		out[i] = c.Index
	}
	return out
}

// ExecutionPlan is an ordered list of batches covering every requested call
// exactly once. Batches must run sequentially; calls within one batch may run
// concurrently.
type ExecutionPlan struct {
	ID         string  `json:"id"`
	Batches    []Batch `json:"batches"`
	Sequential bool    `json:"sequential"` // set when the cycle fallback was used
	Satisfied  TagSet  `json:"satisfied,omitempty"`
}

// Clone returns a copy of the plan whose batches and satisfied set can be
// read independently of the original. Call arguments are shared.
func (p *ExecutionPlan) Clone() *ExecutionPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.Batches = make([]Batch, len(p.Batches))
	for i, b := range p.Batches {
		out.Batches[i] = append(Batch{}, b...)
		for k := range out.Batches[i] {
			out.Batches[i][k].Spec = b[k].Spec.Clone()
		}
	}
	out.Satisfied = p.Satisfied.Clone()
	return &out
}

// Len returns the number of calls across all batches.
func (p *ExecutionPlan) Len() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, b := range p.Batches {
		n += len(b)
	}
	return n
}

// Indices returns the call indices grouped by batch.
func (p *ExecutionPlan) Indices() [][]int {
	if p == nil {
		return nil
	}
	out := make([][]int, len(p.Batches))
	for i, b := range p.Batches {
		out[i] = b.Indices()
	}
	return out
}

// BatchOf returns the batch position of the call with the given index.
func (p *ExecutionPlan) BatchOf(index int) (int, bool) {
	if p == nil {
		return 0, false
	}
	for bi, b := range p.Batches {
		for _, c := range b {
			if c.Index == index {
				return bi, true
			}
		}
	}
	return 0, false
}
