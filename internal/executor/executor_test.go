package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/toolplan"
	"github.com/ZanzyTHEbar/toolplan/internal/cache"
	"github.com/ZanzyTHEbar/toolplan/internal/catalog"
	"github.com/ZanzyTHEbar/toolplan/internal/planner"
)

type mockTool struct {
	name     string
	execFunc func(ctx context.Context, input map[string]any) (any, error)
}

func (m *mockTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	return m.execFunc(ctx, input)
}
func (m *mockTool) Name() string { return m.name }

func okTool(name string, out any) *mockTool {
	return &mockTool{name: name, execFunc: func(context.Context, map[string]any) (any, error) {
		return out, nil
	}}
}

func registry(tools ...*mockTool) map[string]toolplan.Tool {
	out := make(map[string]toolplan.Tool, len(tools))
	for _, t := range tools {
		out[t.name] = t
	}
	return out
}

func spec(name string, mutate ...func(*toolplan.ToolSpec)) toolplan.ToolSpec {
	s := toolplan.DefaultSpec(name)
	for _, m := range mutate {
		m(&s)
	}
	return s
}

func planOf(batches ...toolplan.Batch) *toolplan.ExecutionPlan {
	return &toolplan.ExecutionPlan{ID: "test-plan", Batches: batches}
}

func planned(index int, s toolplan.ToolSpec) toolplan.PlannedCall {
	return toolplan.PlannedCall{Index: index, Name: s.Name, Args: map[string]any{}, Spec: s}
}

// inFlight tracks the peak number of concurrent executions.
type inFlight struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (f *inFlight) tool(name string, hold time.Duration) *mockTool {
	return &mockTool{name: name, execFunc: func(ctx context.Context, _ map[string]any) (any, error) {
		n := f.current.Add(1)
		defer f.current.Add(-1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(hold)
		return "ok", nil
	}}
}

func TestBatchExecutor_FailureStopsLaterBatches(t *testing.T) {
	var laterRan atomic.Bool
	exec := NewExecutor(registry(
		okTool("success", map[string]any{"out": 1}),
		&mockTool{name: "fail", execFunc: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("fail")
		}},
		&mockTool{name: "later", execFunc: func(context.Context, map[string]any) (any, error) {
			laterRan.Store(true)
			return nil, nil
		}},
	), WithMaxRetries(0))

	plan := planOf(
		toolplan.Batch{planned(0, spec("success")), planned(1, spec("fail"))},
		toolplan.Batch{planned(2, spec("later"))},
	)
	report, err := exec.ExecutePlan(context.Background(), plan)
	if err == nil {
		t.Fatal("expected error for failed call, got nil")
	}
	if !toolplan.HasCode(err, toolplan.ErrCodeToolExecution) {
		t.Errorf("expected tool execution error, got %v", err)
	}
	if laterRan.Load() {
		t.Error("batch after a failure must not run")
	}
	if _, ok := report.Get(2); ok {
		t.Error("unstarted call should be absent from the report")
	}
	if len(report.Failed()) == 0 {
		t.Error("report should list the failed call")
	}
}

func TestBatchExecutor_Retry(t *testing.T) {
	var callCount atomic.Int32
	flaky := &mockTool{name: "flaky", execFunc: func(context.Context, map[string]any) (any, error) {
		if callCount.Add(1) < 2 {
			return nil, errors.New("fail once")
		}
		return map[string]any{"out": 42}, nil
	}}
	exec := NewExecutor(registry(flaky), WithMaxRetries(1), WithRetryDelay(10*time.Millisecond))

	report, err := exec.ExecutePlan(context.Background(), planOf(toolplan.Batch{planned(0, spec("flaky"))}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, ok := report.Get(0)
	if !ok || res.Payload == nil || res.Attempts != 2 {
		t.Errorf("expected a result after 2 attempts, got %+v", res)
	}
	if callCount.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", callCount.Load())
	}
	if m := exec.GetMetrics(); m.TotalRetries != 1 || m.CallsSuccessful != 1 {
		t.Errorf("unexpected metrics: %+v", &m)
	}
}

func TestBatchExecutor_SideEffectsAreNotRetried(t *testing.T) {
	var callCount atomic.Int32
	clip := &mockTool{name: "clip", execFunc: func(context.Context, map[string]any) (any, error) {
		callCount.Add(1)
		return nil, errors.New("disk full")
	}}
	exec := NewExecutor(registry(clip), WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	s := spec("clip", func(s *toolplan.ToolSpec) { s.SideEffects = true })

	if _, err := exec.ExecutePlan(context.Background(), planOf(toolplan.Batch{planned(0, s)})); err == nil {
		t.Fatal("expected error")
	}
	if callCount.Load() != 1 {
		t.Errorf("side-effecting tool ran %d times", callCount.Load())
	}
}

func TestBatchExecutor_Concurrency_Metrics(t *testing.T) {
	sleep := &mockTool{name: "sleep", execFunc: func(context.Context, map[string]any) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return map[string]any{"ok": true}, nil
	}}
	exec := NewExecutor(registry(sleep), WithMaxWorkers(3))
	plan := planOf(toolplan.Batch{planned(0, spec("sleep")), planned(1, spec("sleep")), planned(2, spec("sleep"))})

	start := time.Now()
	report, err := exec.ExecutePlan(context.Background(), plan)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Calls) != 3 {
		t.Errorf("expected 3 results, got %d", len(report.Calls))
	}
	metrics := exec.GetMetrics()
	if metrics.CallsExecuted != 3 || metrics.CallsSuccessful != 3 || metrics.BatchesExecuted != 1 {
		t.Errorf("unexpected metrics: %+v", &metrics)
	}
	if elapsed > 140*time.Millisecond {
		t.Errorf("expected concurrent execution, took too long: %v", elapsed)
	}
}

func TestBatchExecutor_ExclusiveToolsSerializePerGroup(t *testing.T) {
	var tracker inFlight
	exec := NewExecutor(registry(tracker.tool("clip", 20*time.Millisecond)))
	exclusive := spec("clip", func(s *toolplan.ToolSpec) {
		s.ParallelOK = false
		s.ResourceGroup = "media"
	})

	// Two plans share the executor, so the lock must hold across plans too.
	plan := planOf(toolplan.Batch{planned(0, exclusive), planned(1, exclusive)})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := exec.ExecutePlan(context.Background(), plan); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if peak := tracker.peak.Load(); peak != 1 {
		t.Errorf("expected at most one exclusive call in flight, saw %d", peak)
	}
}

func TestBatchExecutor_GroupLimit(t *testing.T) {
	var tracker inFlight
	exec := NewExecutor(registry(tracker.tool("query", 20*time.Millisecond)),
		WithMaxWorkers(8), WithGroupLimit("database", 2))
	s := spec("query", func(s *toolplan.ToolSpec) { s.ResourceGroup = "database" })

	batch := toolplan.Batch{}
	for i := 0; i < 6; i++ {
		batch = append(batch, planned(i, s))
	}
	if _, err := exec.ExecutePlan(context.Background(), planOf(batch)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak := tracker.peak.Load(); peak > 2 {
		t.Errorf("group limit 2 exceeded: peak %d", peak)
	}
}

func TestBatchExecutor_ExecutePlan_Cancellation(t *testing.T) {
	block := &mockTool{name: "block", execFunc: func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return map[string]any{"ok": true}, nil
		}
	}}
	exec := NewExecutor(registry(block), WithMaxWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := exec.ExecutePlan(ctx, planOf(toolplan.Batch{planned(0, spec("block"))}))
	if err == nil {
		t.Fatal("expected error due to cancellation, got nil")
	}
	if !toolplan.HasCode(err, toolplan.ErrCodeCancelled) {
		t.Errorf("expected cancellation error, got %v", err)
	}
}

func TestBatchExecutor_FailureCancelsBatchSiblings(t *testing.T) {
	slow := &mockTool{name: "slow", execFunc: func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "late", nil
		}
	}}
	fast := &mockTool{name: "fast", execFunc: func(context.Context, map[string]any) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return nil, errors.New("boom")
	}}
	exec := NewExecutor(registry(slow, fast), WithMaxRetries(0))

	start := time.Now()
	_, err := exec.ExecutePlan(context.Background(), planOf(toolplan.Batch{planned(0, spec("slow")), planned(1, spec("fast"))}))
	if !toolplan.HasCode(err, toolplan.ErrCodeToolExecution) {
		t.Errorf("expected the sibling's failure to be reported, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("slow sibling was not cancelled, took %v", elapsed)
	}
}

func TestBatchExecutor_SpecTimeout(t *testing.T) {
	hang := &mockTool{name: "hang", execFunc: func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	exec := NewExecutor(registry(hang), WithMaxRetries(0))
	s := spec("hang", func(s *toolplan.ToolSpec) { s.Timeout = 20 * time.Millisecond })

	_, err := exec.ExecutePlan(context.Background(), planOf(toolplan.Batch{planned(0, s)}))
	if !toolplan.HasCode(err, toolplan.ErrCodeTimeout) {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestBatchExecutor_ToolNotFound(t *testing.T) {
	exec := NewExecutor(nil)
	_, err := exec.ExecutePlan(context.Background(), planOf(toolplan.Batch{planned(0, spec("ghost"))}))
	if !toolplan.HasCode(err, toolplan.ErrCodeToolNotFound) {
		t.Errorf("expected tool not found error, got %v", err)
	}
	if _, err := exec.ExecutePlan(context.Background(), nil); !toolplan.HasCode(err, toolplan.ErrCodeValidation) {
		t.Errorf("expected validation error for nil plan, got %v", err)
	}
}

func TestBatchExecutor_ResultCache(t *testing.T) {
	var queries, clips atomic.Int32
	query := &mockTool{name: "query", execFunc: func(context.Context, map[string]any) (any, error) {
		queries.Add(1)
		return map[string]any{"rows": []any{1}}, nil
	}}
	clip := &mockTool{name: "clip", execFunc: func(context.Context, map[string]any) (any, error) {
		clips.Add(1)
		return "clip.mp4", nil
	}}
	memory := cache.NewInMemoryCache(time.Minute)
	defer memory.Close()
	exec := NewExecutor(registry(query, clip), WithResultCache(memory))

	sideEffect := spec("clip", func(s *toolplan.ToolSpec) { s.SideEffects = true })
	plan := planOf(toolplan.Batch{planned(0, spec("query")), planned(1, sideEffect)})
	for i := 0; i < 2; i++ {
		if _, err := exec.ExecutePlan(context.Background(), plan); err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
	}
	if queries.Load() != 1 {
		t.Errorf("idempotent call should be served from cache, ran %d times", queries.Load())
	}
	if clips.Load() != 2 {
		t.Errorf("side-effecting call must not be cached, ran %d times", clips.Load())
	}
	if m := exec.GetMetrics(); m.CallsCached != 1 || m.PlansExecuted != 2 {
		t.Errorf("unexpected metrics: %+v", &m)
	}
}

func TestBatchExecutor_ReportFeedsNextTurn(t *testing.T) {
	c := catalog.Default()
	p := planner.New(c)
	exec := NewExecutor(registry(
		okTool(catalog.ToolGameDataQuery, "opaque"),
		okTool(catalog.ToolMetricsCalculation, "opaque"),
	))

	first := p.BuildExecutionPlan([]toolplan.FunctionCall{{Name: catalog.ToolGameDataQuery}}, nil)
	report, err := exec.ExecutePlan(context.Background(), first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results := report.Results()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if _, ok := results[0].Payload.(toolplan.TagDeclarer); !ok {
		t.Fatalf("result payload should declare its tags, got %T", results[0].Payload)
	}

	// The prior game query satisfies tabular_data, so no edge orders this turn.
	second := p.BuildExecutionPlan([]toolplan.FunctionCall{
		{Name: catalog.ToolMetricsCalculation},
		{Name: catalog.ToolGameDataQuery},
	}, report)
	if len(second.Batches) != 1 {
		t.Errorf("expected a single batch, got %v", second.Indices())
	}
}
