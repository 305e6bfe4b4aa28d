// Package extractor infers which DataTags are already available from the
// result records of earlier turns.
package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ZanzyTHEbar/toolplan"
	"github.com/ZanzyTHEbar/toolplan/internal/logging"
)

// Signature maps a payload key group to the tag it implies: a map payload
// containing any of Keys satisfies Tag.
type Signature struct {
	Tag  toolplan.DataTag
	Keys []string
}

// DefaultSignatures returns the built-in key-signature table. It only applies
// to payloads that do not declare their tags explicitly.
func DefaultSignatures() []Signature {
	return []Signature{
		{Tag: toolplan.TagTabularData, Keys: []string{"rows", "columns", "table", "dataframe", "records"}},
		{Tag: toolplan.TagAdvancedMetrics, Keys: []string{"metrics", "xg", "corsi", "fenwick", "expected_goals"}},
		{Tag: toolplan.TagPlayerProfile, Keys: []string{"player", "player_id", "profile", "roster"}},
		{Tag: toolplan.TagEventTimeline, Keys: []string{"events", "timeline", "play_by_play"}},
		{Tag: toolplan.TagVideoClips, Keys: []string{"clips", "clip_paths", "video_url"}},
		{Tag: toolplan.TagGenericContext, Keys: []string{"context", "snippets", "documents"}},
		{Tag: toolplan.TagVisualization, Keys: []string{"chart", "figure", "image_path"}},
	}
}

// Extractor scans prior results for satisfied tags.
type Extractor struct {
	signatures []Signature
	logger     logging.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSignatures replaces the key-signature table.
func WithSignatures(signatures ...Signature) Option {
	return func(e *Extractor) {
		e.signatures = append([]Signature(nil), signatures...)
	}
}

// WithLogger sets the logger used to report swallowed scan errors.
func WithLogger(logger logging.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor using DefaultSignatures unless overridden.
func New(options ...Option) *Extractor {
	e := &Extractor{
		signatures: DefaultSignatures(),
		logger:     logging.Nop(),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Extract returns the tags satisfied by state. Any failure while scanning,
// including a panic from a misbehaving State or payload, yields an empty set
// rather than a partial one.
func (e *Extractor) Extract(state toolplan.State) (satisfied toolplan.TagSet) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Satisfied-tag scan failed, assuming nothing is satisfied", map[string]any{
				"error": fmt.Sprint(r),
			})
			satisfied = toolplan.TagSet{}
		}
	}()

	satisfied = toolplan.TagSet{}
	if state == nil {
		return satisfied
	}
	for _, record := range state.Results() {
		if err := e.scan(record, satisfied); err != nil {
			e.logger.Warn("Satisfied-tag scan failed, assuming nothing is satisfied", map[string]any{
				"tool":  record.Name,
				"error": err,
			})
			return toolplan.TagSet{}
		}
	}
	return satisfied
}

func (e *Extractor) scan(record toolplan.ToolResult, into toolplan.TagSet) error {
	// Explicit tagging wins over key sniffing.
	if declarer, ok := record.Payload.(toolplan.TagDeclarer); ok {
		into.Add(declarer.SatisfiedTags()...)
		return nil
	}
	if tags, ok := declaredTags(record.Payload); ok {
		into.Add(tags...)
		return nil
	}

	keys, err := payloadKeys(record.Payload)
	if err != nil {
		return err
	}
	for _, sig := range e.signatures {
		for _, k := range sig.Keys {
			if _, ok := keys[k]; ok {
				into.Add(sig.Tag)
				break
			}
		}
	}
	return nil
}

// payloadKeys returns the key set of dict-like payloads. Non dict-like
// payloads have no keys and are not an error.
func payloadKeys(payload any) (map[string]struct{}, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return keySet(p), nil
	case map[string]string:
		return keySet(p), nil
	case json.RawMessage:
		return jsonKeys(p)
	case []byte:
		return jsonKeys(p)
	default:
		return nil, nil
	}
}

func jsonKeys(data []byte) (map[string]struct{}, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("malformed JSON payload: %w", err)
	}
	return keySet(obj), nil
}

// declaredTags recognizes a TaggedPayload that lost its Go type on a JSON
// round trip: an object holding a "tags" string list and at most a "value"
// key besides it.
func declaredTags(payload any) ([]toolplan.DataTag, bool) {
	switch p := payload.(type) {
	case map[string]any:
		if !taggedShape(p) {
			return nil, false
		}
		return tagList(p["tags"])
	case json.RawMessage:
		return declaredJSONTags(p)
	case []byte:
		return declaredJSONTags(p)
	default:
		return nil, false
	}
}

func taggedShape[V any](m map[string]V) bool {
	if _, ok := m["tags"]; !ok {
		return false
	}
	for k := range m {
		if k != "tags" && k != "value" {
			return false
		}
	}
	return true
}

func tagList(v any) ([]toolplan.DataTag, bool) {
	switch list := v.(type) {
	case nil:
		return nil, true
	case []toolplan.DataTag:
		return list, true
	case []string:
		tags := make([]toolplan.DataTag, len(list))
		for i, s := range list {
			tags[i] = toolplan.DataTag(s)
		}
		return tags, true
	case []any:
		tags := make([]toolplan.DataTag, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			tags = append(tags, toolplan.DataTag(s))
		}
		return tags, true
	default:
		return nil, false
	}
}

func declaredJSONTags(data []byte) ([]toolplan.DataTag, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal(data, &obj) != nil || !taggedShape(obj) {
		return nil, false
	}
	var tags []toolplan.DataTag
	if json.Unmarshal(obj["tags"], &tags) != nil {
		return nil, false
	}
	return tags, true
}

func keySet[V any](m map[string]V) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
