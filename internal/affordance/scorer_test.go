package affordance

import (
	"math"
	"reflect"
	"testing"

	"github.com/ZanzyTHEbar/toolplan"
	"github.com/ZanzyTHEbar/toolplan/internal/catalog"
)

type expected struct {
	name  string
	score float64
	args  map[string]any
}

func assertRanked(t *testing.T, got []Affordance, want []expected) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d affordances, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Name != w.name {
			t.Errorf("rank %d: expected %s, got %s", i, w.name, got[i].Name)
		}
		if math.Abs(got[i].Score-w.score) > 1e-9 {
			t.Errorf("rank %d (%s): expected score %v, got %v", i, w.name, w.score, got[i].Score)
		}
		wantArgs := w.args
		if wantArgs == nil {
			wantArgs = map[string]any{}
		}
		if !reflect.DeepEqual(got[i].SuggestedArgs, wantArgs) {
			t.Errorf("rank %d (%s): expected args %v, got %v", i, w.name, wantArgs, got[i].SuggestedArgs)
		}
	}
}

func TestScorer_DefaultRules(t *testing.T) {
	s := Default()
	fallback := []expected{{catalog.ToolKnowledgeSearch, DefaultFallbackWeight, nil}}

	tests := []struct {
		name  string
		query string
		want  []expected
	}{
		{"no rule fires", "What is the capital of France?", fallback},
		{"empty query", "", fallback},
		{"whitespace query", "   ", fallback},
		{
			"zone entry suggests event type",
			"Show me zone entries by the top line",
			[]expected{
				{catalog.ToolClipRetrieval, 0.5, map[string]any{"event_type": "zone_entry"}},
				{catalog.ToolClipAnalysis, 0.3, nil},
			},
		},
		{
			"bumps are capped",
			"video clip replay highlight of the zone entry",
			[]expected{
				{catalog.ToolClipRetrieval, 1.0, map[string]any{"event_type": "zone_entry"}},
				{catalog.ToolClipAnalysis, 0.5, nil},
			},
		},
		{
			"condition passes",
			"shot map for last game",
			[]expected{
				{catalog.ToolGameDataQuery, 0.8, nil},
				{catalog.ToolVisualization, 0.5, map[string]any{"chart_type": "shot_map"}},
			},
		},
		{"condition blocks rule", "shots on goal", fallback},
		{
			"word count condition",
			"compare crosby versus ovechkin",
			[]expected{
				{catalog.ToolMetricsCalculation, 0.3, nil},
				{catalog.ToolVisualization, 0.3, nil},
			},
		},
		{"word count condition blocks", "compare", fallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertRanked(t, s.Score(tt.query, nil), tt.want)
		})
	}
}

func TestScorer_TiesKeepInsertionOrderAndTruncate(t *testing.T) {
	s := MustNew([]Rule{
		{
			Name:     "many",
			Keywords: []string{"everything"},
			Bumps: []Bump{
				{Tool: "g", Weight: 0.2},
				{Tool: "f", Weight: 0.2},
				{Tool: "e", Weight: 0.2},
				{Tool: "d", Weight: 0.2},
				{Tool: "c", Weight: 0.2},
				{Tool: "b", Weight: 0.2},
				{Tool: "a", Weight: 0.9},
			},
		},
	})
	got := s.Score("EVERYTHING please", toolplan.Results{})
	names := make([]string, len(got))
	for i, a := range got {
		names[i] = a.Name
	}
	want := []string{"a", "g", "f", "e", "d"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("expected %v, got %v", want, names)
	}
}

func TestScorer_WithOptions(t *testing.T) {
	s, err := New(nil, WithFallback("web_search", 0.25), WithMaxResults(1))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	assertRanked(t, s.Score("anything", nil), []expected{{"web_search", 0.25, nil}})
}

func TestScorer_ResultsAreIndependent(t *testing.T) {
	s := Default()
	first := s.Score("zone entry", nil)
	first[0].SuggestedArgs["event_type"] = "mutated"
	second := s.Score("zone entry", nil)
	if second[0].SuggestedArgs["event_type"] != "zone_entry" {
		t.Errorf("suggested args leaked between calls: %v", second[0].SuggestedArgs)
	}
}

func TestScorer_ConditionRuntimeErrorDoesNotFire(t *testing.T) {
	s := MustNew([]Rule{
		{
			Name:      "broken",
			Keywords:  []string{"clip"},
			Condition: `contains(query)`,
			Bumps:     []Bump{{Tool: catalog.ToolClipRetrieval, Weight: 0.5}},
		},
	})
	got := s.Score("clip please", nil)
	if len(got) != 1 || got[0].Name != catalog.ToolKnowledgeSearch {
		t.Errorf("expected fallback only, got %+v", got)
	}
}

func TestNew_RejectsInvalidRules(t *testing.T) {
	valid := func() Rule {
		return Rule{Name: "r", Keywords: []string{"x"}, Bumps: []Bump{{Tool: "t", Weight: 0.5}}}
	}
	tests := []struct {
		name   string
		mutate func(*Rule)
	}{
		{"no keywords", func(r *Rule) { r.Keywords = nil }},
		{"blank keyword", func(r *Rule) { r.Keywords = []string{" "} }},
		{"no bumps", func(r *Rule) { r.Bumps = nil }},
		{"bump without tool", func(r *Rule) { r.Bumps = []Bump{{Weight: 0.5}} }},
		{"zero weight", func(r *Rule) { r.Bumps[0].Weight = 0 }},
		{"weight above cap", func(r *Rule) { r.Bumps[0].Weight = 1.5 }},
		{"args for unbumped tool", func(r *Rule) { r.SuggestedArgs = map[string]map[string]any{"other": {"k": 1}} }},
		{"unparseable condition", func(r *Rule) { r.Condition = "1 + " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			_, err := New([]Rule{r})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !toolplan.HasCode(err, toolplan.ErrCodeValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := New([]Rule{valid()}, WithFallback("", 0.5)); err == nil {
		t.Error("expected error for empty fallback tool")
	}
	if _, err := New([]Rule{valid()}, WithFallback("k", 2)); err == nil {
		t.Error("expected error for fallback weight above cap")
	}
}

func TestValidateCondition(t *testing.T) {
	if err := ValidateCondition(`hasPrefix(query, "show") && length > 1`); err != nil {
		t.Errorf("expected valid condition, got %v", err)
	}
	if err := ValidateCondition("length >"); err == nil {
		t.Error("expected error for invalid condition")
	}
}
