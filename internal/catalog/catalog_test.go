package catalog

import (
	"testing"

	"github.com/ZanzyTHEbar/toolplan"
)

func TestCatalog_GetSpec_DefaultForUnknown(t *testing.T) {
	c := Default()
	spec := c.GetSpec("does_not_exist")
	if spec.Name != "does_not_exist" {
		t.Errorf("expected default spec to carry the requested name, got %q", spec.Name)
	}
	if !spec.ParallelOK || spec.SideEffects {
		t.Errorf("default spec should be parallel safe without side effects: %+v", spec)
	}
	if spec.ResourceGroup != toolplan.DefaultResourceGroup {
		t.Errorf("expected generic group, got %q", spec.ResourceGroup)
	}
	if !spec.Consumes.Empty() || !spec.ConsumesAny.Empty() || !spec.Produces.Empty() {
		t.Errorf("default spec should have no tags: %+v", spec)
	}

	var nilCatalog *Catalog
	if nilCatalog.GetSpec("x").Name != "x" {
		t.Error("nil catalog should still resolve a default spec")
	}
}

func TestCatalog_DefaultSemantics(t *testing.T) {
	c := Default()

	clip := c.GetSpec(ToolClipRetrieval)
	if clip.ParallelOK || !clip.SideEffects || clip.ResourceGroup != GroupMedia {
		t.Errorf("clip retrieval must be serialized with side effects: %+v", clip)
	}

	metrics := c.GetSpec(ToolMetricsCalculation)
	if !metrics.Consumes.Has(toolplan.TagTabularData) || !metrics.Produces.Has(toolplan.TagAdvancedMetrics) {
		t.Errorf("metrics calculation tags wrong: %+v", metrics)
	}

	viz := c.GetSpec(ToolVisualization)
	if !viz.ConsumesAny.Has(toolplan.TagAdvancedMetrics) || !viz.ConsumesAny.Has(toolplan.TagTabularData) {
		t.Errorf("visualization should accept either metrics or tables: %+v", viz)
	}

	ctxSearch := c.GetSpec(ToolContextSearch)
	if !ctxSearch.ParallelOK || ctxSearch.Produces.Len() != 1 || !ctxSearch.Produces.Has(toolplan.TagGenericContext) {
		t.Errorf("context search should only produce generic context: %+v", ctxSearch)
	}
}

func TestCatalog_New_Errors(t *testing.T) {
	tests := []struct {
		name  string
		specs []toolplan.ToolSpec
	}{
		{"empty name", []toolplan.ToolSpec{{Name: ""}}},
		{"duplicate", []toolplan.ToolSpec{{Name: "a"}, {Name: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.specs...)
			if !toolplan.HasCode(err, toolplan.ErrCodeValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCatalog_GetSpecReturnsCopies(t *testing.T) {
	c := MustNew(toolplan.ToolSpec{Name: "a", Produces: toolplan.NewTagSet("x")})
	spec := c.GetSpec("a")
	spec.Produces.Add("y")
	if c.GetSpec("a").Produces.Has("y") {
		t.Error("catalog spec was mutated through a returned copy")
	}
}

func TestCatalog_With(t *testing.T) {
	base := Default()
	fake := toolplan.ToolSpec{Name: ToolMetricsCalculation, ParallelOK: false, ResourceGroup: "test"}
	next, err := base.With(fake, toolplan.ToolSpec{Name: "extra"})
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}
	if next.GetSpec(ToolMetricsCalculation).ResourceGroup != "test" {
		t.Error("override not applied")
	}
	if base.GetSpec(ToolMetricsCalculation).ResourceGroup != GroupCPU {
		t.Error("base catalog must not change")
	}
	if next.Len() != base.Len()+1 {
		t.Errorf("expected %d specs, got %d", base.Len()+1, next.Len())
	}
	if next.GetSpec("extra").ResourceGroup != toolplan.DefaultResourceGroup {
		t.Error("override without group should get the generic group")
	}
	if _, err := base.With(toolplan.ToolSpec{Name: "d"}, toolplan.ToolSpec{Name: "d"}); err == nil {
		t.Error("expected error for duplicate overrides")
	}
}

func TestCatalog_Validate(t *testing.T) {
	tests := []struct {
		name    string
		specs   []toolplan.ToolSpec
		wantErr bool
	}{
		{"empty", nil, false},
		{
			"chain",
			[]toolplan.ToolSpec{
				{Name: "a", Produces: toolplan.NewTagSet("x")},
				{Name: "b", Consumes: toolplan.NewTagSet("x"), Produces: toolplan.NewTagSet("y")},
				{Name: "c", ConsumesAny: toolplan.NewTagSet("x", "y")},
			},
			false,
		},
		{
			"self loop ignored",
			[]toolplan.ToolSpec{
				{Name: "a", Consumes: toolplan.NewTagSet("x"), Produces: toolplan.NewTagSet("x")},
			},
			false,
		},
		{
			"mutual dependency",
			[]toolplan.ToolSpec{
				{Name: "a", Consumes: toolplan.NewTagSet("y"), Produces: toolplan.NewTagSet("x")},
				{Name: "b", Consumes: toolplan.NewTagSet("x"), Produces: toolplan.NewTagSet("y")},
			},
			true,
		},
		{
			"cycle through or group",
			[]toolplan.ToolSpec{
				{Name: "a", ConsumesAny: toolplan.NewTagSet("z", "q"), Produces: toolplan.NewTagSet("x")},
				{Name: "b", Consumes: toolplan.NewTagSet("x"), Produces: toolplan.NewTagSet("y")},
				{Name: "c", Consumes: toolplan.NewTagSet("y"), Produces: toolplan.NewTagSet("z")},
			},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MustNew(tt.specs...).Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !toolplan.HasCode(err, toolplan.ErrCodeCatalogCycle) {
				t.Errorf("expected catalog cycle code, got %v", err)
			}
		})
	}
}

func TestDefault_IsAcyclic(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("built-in catalog has a cycle: %v", err)
	}
}
