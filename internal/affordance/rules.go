package affordance

import (
	"github.com/ZanzyTHEbar/toolplan/internal/catalog"
)

// Bump adds Weight to a tool's score when its rule fires.
type Bump struct {
	Tool   string  `yaml:"tool" json:"tool"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Rule is one entry of the affordance table. It fires when any keyword is a
// case-insensitive substring of the query and Condition, if set, is true.
type Rule struct {
	Name      string   `yaml:"name" json:"name"`
	Keywords  []string `yaml:"keywords" json:"keywords"`
	Condition string   `yaml:"condition,omitempty" json:"condition,omitempty"`
	Bumps     []Bump   `yaml:"bumps" json:"bumps"`
	// SuggestedArgs maps a bumped tool to argument overrides.
	SuggestedArgs map[string]map[string]any `yaml:"suggested_args,omitempty" json:"suggested_args,omitempty"`
}

// DefaultRules returns the built-in rule table, in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "box_score",
			Keywords: []string{"stats", "statistics", "box score", "how many", "points", "goals", "assists"},
			Bumps: []Bump{
				{Tool: catalog.ToolPlayerStatsQuery, Weight: 0.6},
				{Tool: catalog.ToolGameDataQuery, Weight: 0.3},
			},
		},
		{
			Name:     "advanced_metrics",
			Keywords: []string{"xg", "expected goals", "corsi", "fenwick", "metric", "efficiency", "per 60"},
			Bumps: []Bump{
				{Tool: catalog.ToolMetricsCalculation, Weight: 0.7},
				{Tool: catalog.ToolGameDataQuery, Weight: 0.3},
			},
		},
		{
			Name:     "zone_entry",
			Keywords: []string{"zone entry", "zone entries", "entered the zone", "carried in"},
			Bumps: []Bump{
				{Tool: catalog.ToolClipRetrieval, Weight: 0.5},
				{Tool: catalog.ToolClipAnalysis, Weight: 0.3},
			},
			SuggestedArgs: map[string]map[string]any{
				catalog.ToolClipRetrieval: {"event_type": "zone_entry"},
			},
		},
		{
			Name:     "video",
			Keywords: []string{"clip", "video", "highlight", "replay", "footage"},
			Bumps: []Bump{
				{Tool: catalog.ToolClipRetrieval, Weight: 0.8},
				{Tool: catalog.ToolClipAnalysis, Weight: 0.2},
			},
		},
		{
			Name:      "shot_map",
			Keywords:  []string{"shot", "shots"},
			Condition: `contains(query, "map") || contains(query, "location")`,
			Bumps: []Bump{
				{Tool: catalog.ToolVisualization, Weight: 0.5},
				{Tool: catalog.ToolGameDataQuery, Weight: 0.3},
			},
			SuggestedArgs: map[string]map[string]any{
				catalog.ToolVisualization: {"chart_type": "shot_map"},
			},
		},
		{
			Name:     "chart",
			Keywords: []string{"chart", "plot", "graph", "visualize", "heatmap"},
			Bumps: []Bump{
				{Tool: catalog.ToolVisualization, Weight: 0.7},
			},
		},
		{
			Name:     "player",
			Keywords: []string{"player", "roster", "profile", "career"},
			Bumps: []Bump{
				{Tool: catalog.ToolPlayerStatsQuery, Weight: 0.4},
			},
		},
		{
			Name:     "game",
			Keywords: []string{"game", "match", "play by play", "play-by-play", "timeline", "period"},
			Bumps: []Bump{
				{Tool: catalog.ToolGameDataQuery, Weight: 0.5},
			},
		},
		{
			Name:      "comparison",
			Keywords:  []string{"compare", "versus", " vs "},
			Condition: `length > 2`,
			Bumps: []Bump{
				{Tool: catalog.ToolMetricsCalculation, Weight: 0.3},
				{Tool: catalog.ToolVisualization, Weight: 0.3},
			},
		},
		{
			Name:     "conversation_context",
			Keywords: []string{"earlier", "previous", "you said", "last time", "above"},
			Bumps: []Bump{
				{Tool: catalog.ToolContextSearch, Weight: 0.6},
			},
		},
	}
}
