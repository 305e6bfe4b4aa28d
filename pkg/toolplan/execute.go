package toolplan

import (
	"context"
	"sort"

	core "github.com/ZanzyTHEbar/toolplan"
	"github.com/ZanzyTHEbar/toolplan/internal/adapters"
	"github.com/ZanzyTHEbar/toolplan/internal/cache"
	"github.com/ZanzyTHEbar/toolplan/internal/executor"
)

type (
	Tool            = core.Tool
	ToolFunc        = adapters.ToolFunc
	ResultCache     = executor.ResultCache
	Report          = executor.Report
	CallResult      = executor.CallResult
	ExecutorMetrics = executor.ExecutorMetrics
)

// WithTools registers Go functions as tools. Each result is tagged with the
// Produces set of the tool's catalog spec, so reports feed the next turn.
func WithTools(funcs map[string]ToolFunc) Option {
	return func(p *Planner) {
		if p.toolFuncs == nil {
			p.toolFuncs = make(map[string]ToolFunc, len(funcs))
		}
		for name, fn := range funcs {
			p.toolFuncs[name] = fn
		}
	}
}

// WithTool registers a tool implementation under its own name. It takes
// precedence over a ToolFunc of the same name.
func WithTool(tool Tool) Option {
	return func(p *Planner) {
		p.tools = append(p.tools, tool)
	}
}

// WithResultCache replaces the cache built from Config.CacheTTL.
func WithResultCache(c ResultCache) Option {
	return func(p *Planner) {
		p.resultCache = c
	}
}

func (p *Planner) assembleExecutor() error {
	if len(p.toolFuncs) == 0 && len(p.tools) == 0 {
		return nil
	}
	registry := adapters.Registry(p.catalog, p.toolFuncs)
	for _, tool := range p.tools {
		registry[tool.Name()] = tool
	}

	if p.resultCache == nil && p.config.CacheTTL > 0 {
		if p.config.CacheFile != "" {
			fc, err := cache.NewFileCache(p.config.CacheTTL, p.config.CacheFile, p.logger)
			if err != nil {
				return core.NewConfigurationError("failed to open result cache "+p.config.CacheFile, err)
			}
			p.resultCache = fc
		} else {
			mc := cache.NewInMemoryCache(p.config.CacheTTL, cache.WithMemoryLogger(p.logger))
			p.resultCache = mc
			p.closers = append(p.closers, mc)
		}
	}

	options := []executor.ExecutorOption{
		executor.WithMaxWorkers(p.config.MaxWorkers),
		executor.WithMaxRetries(p.config.MaxRetries),
		executor.WithRetryDelay(p.config.RetryDelay),
		executor.WithDefaultTimeout(p.config.CallTimeout),
		executor.WithLogger(p.logger),
		executor.WithEventBus(p.eventBus),
	}
	groups := make([]string, 0, len(p.config.GroupLimits))
	for group := range p.config.GroupLimits {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		options = append(options, executor.WithGroupLimit(group, p.config.GroupLimits[group]))
	}
	if p.resultCache != nil {
		options = append(options, executor.WithResultCache(p.resultCache))
	}
	p.executor = executor.NewExecutor(registry, options...)
	return nil
}

// Execute runs plan with the registered tools. Batches run in order; the
// first failing call stops the plan and the partial report is returned
// with the error.
func (p *Planner) Execute(ctx context.Context, plan *ExecutionPlan) (*Report, error) {
	if p.executor == nil {
		return nil, core.NewConfigurationError("no tools registered, use WithTools", nil)
	}
	return p.executor.ExecutePlan(ctx, plan)
}

// Run plans calls against state and executes the plan.
func (p *Planner) Run(ctx context.Context, calls []FunctionCall, state State) (*ExecutionPlan, *Report, error) {
	plan := p.BuildExecutionPlan(calls, state)
	report, err := p.Execute(ctx, plan)
	return plan, report, err
}

// Metrics returns a snapshot of the executor statistics. It is zero when no
// tools are registered.
func (p *Planner) Metrics() ExecutorMetrics {
	if p.executor == nil {
		return ExecutorMetrics{}
	}
	return p.executor.GetMetrics()
}

// Close releases background resources such as the in-memory result cache.
func (p *Planner) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}
