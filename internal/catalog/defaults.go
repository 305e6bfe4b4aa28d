package catalog

import (
	"time"

	"github.com/ZanzyTHEbar/toolplan"
)

// Built-in tool names.
const (
	ToolContextSearch      = "context_search"
	ToolKnowledgeSearch    = "knowledge_search"
	ToolGameDataQuery      = "game_data_query"
	ToolPlayerStatsQuery   = "player_stats_query"
	ToolMetricsCalculation = "metrics_calculation"
	ToolClipRetrieval      = "clip_retrieval"
	ToolClipAnalysis       = "clip_analysis"
	ToolVisualization      = "visualization"
)

// Resource groups used by the built-in table.
const (
	GroupExternalAPI = "external_api"
	GroupDatabase    = "database"
	GroupCPU         = "cpu"
	GroupMedia       = "media"
)

// DefaultSpecs returns the built-in tool contracts.
func DefaultSpecs() []toolplan.ToolSpec {
	return []toolplan.ToolSpec{
		{
			Name:          ToolContextSearch,
			Description:   "Searches conversation and document context.",
			Produces:      toolplan.NewTagSet(toolplan.TagGenericContext),
			ParallelOK:    true,
			ResourceGroup: GroupExternalAPI,
			Timeout:       15 * time.Second,
		},
		{
			Name:          ToolKnowledgeSearch,
			Description:   "General knowledge search used when nothing more specific applies.",
			Produces:      toolplan.NewTagSet(toolplan.TagKnowledge),
			ParallelOK:    true,
			ResourceGroup: GroupExternalAPI,
			Timeout:       15 * time.Second,
		},
		{
			Name:          ToolGameDataQuery,
			Description:   "Queries game level tables and the event timeline.",
			Produces:      toolplan.NewTagSet(toolplan.TagTabularData, toolplan.TagEventTimeline),
			ParallelOK:    true,
			ResourceGroup: GroupDatabase,
			Timeout:       30 * time.Second,
		},
		{
			Name:          ToolPlayerStatsQuery,
			Description:   "Queries player statistics and profiles.",
			Produces:      toolplan.NewTagSet(toolplan.TagTabularData, toolplan.TagPlayerProfile),
			ParallelOK:    true,
			ResourceGroup: GroupDatabase,
			Timeout:       30 * time.Second,
		},
		{
			Name:          ToolMetricsCalculation,
			Description:   "Derives advanced metrics from tabular data.",
			Consumes:      toolplan.NewTagSet(toolplan.TagTabularData),
			Produces:      toolplan.NewTagSet(toolplan.TagAdvancedMetrics),
			ParallelOK:    true,
			ResourceGroup: GroupCPU,
			Timeout:       30 * time.Second,
		},
		{
			// Writes into the shared clip cache.
			Name:          ToolClipRetrieval,
			Description:   "Retrieves and cuts video clips for matching events.",
			Produces:      toolplan.NewTagSet(toolplan.TagVideoClips),
			ParallelOK:    false,
			SideEffects:   true,
			ResourceGroup: GroupMedia,
			Timeout:       2 * time.Minute,
		},
		{
			Name:          ToolClipAnalysis,
			Description:   "Analyzes retrieved clips and derives metrics.",
			Consumes:      toolplan.NewTagSet(toolplan.TagVideoClips),
			Produces:      toolplan.NewTagSet(toolplan.TagAdvancedMetrics),
			ParallelOK:    true,
			ResourceGroup: GroupMedia,
			Timeout:       time.Minute,
		},
		{
			Name:          ToolVisualization,
			Description:   "Renders a chart from advanced metrics or raw tables.",
			ConsumesAny:   toolplan.NewTagSet(toolplan.TagAdvancedMetrics, toolplan.TagTabularData),
			Produces:      toolplan.NewTagSet(toolplan.TagVisualization),
			ParallelOK:    true,
			ResourceGroup: GroupCPU,
			Timeout:       30 * time.Second,
		},
	}
}

// Default returns a catalog holding the built-in table.
func Default() *Catalog {
	return MustNew(DefaultSpecs()...)
}
