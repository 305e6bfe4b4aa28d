// Package executor runs execution plans: batches strictly in order, calls
// within a batch concurrently, subject to per-resource-group limits.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/toolplan"
	"github.com/ZanzyTHEbar/toolplan/internal/cache"
	"github.com/ZanzyTHEbar/toolplan/internal/eventbus"
	"github.com/ZanzyTHEbar/toolplan/internal/logging"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/semaphore"
)

const eventSource = "executor"

// ResultCache stores idempotent call results keyed by tool name and arguments.
type ResultCache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// BatchExecutor runs ExecutionPlans. It is safe for concurrent use; resource
// group limits and exclusive locks are shared by all plans it runs.
type BatchExecutor struct {
	toolRegistry      map[string]toolplan.Tool
	maxWorkers        int           // Max concurrent calls per batch
	maxRetries        int           // Max retries per idempotent call
	retryDelay        time.Duration // Delay between retries
	defaultTimeout    time.Duration // Per-call timeout when the spec sets none
	groupLimits       map[string]int64
	defaultGroupLimit int64
	cache             ResultCache
	logger            logging.Logger
	eventBus          eventbus.EventBus

	mu        sync.Mutex
	groups    map[string]*semaphore.Weighted
	exclusive map[string]*semaphore.Weighted

	metrics ExecutorMetrics
}

// ExecutorOption represents an option for configuring the BatchExecutor.
type ExecutorOption func(*BatchExecutor)

// WithMaxWorkers caps concurrent calls within one batch.
func WithMaxWorkers(n int) ExecutorOption {
	return func(e *BatchExecutor) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// WithMaxRetries sets the maximum number of retries for failed idempotent
// calls. Calls with side effects are never retried.
func WithMaxRetries(retries int) ExecutorOption {
	return func(e *BatchExecutor) {
		if retries >= 0 {
			e.maxRetries = retries
		}
	}
}

// WithRetryDelay sets the delay between retries.
func WithRetryDelay(delay time.Duration) ExecutorOption {
	return func(e *BatchExecutor) {
		e.retryDelay = delay
	}
}

// WithDefaultTimeout sets the per-call timeout used when a spec has none.
// Zero disables it.
func WithDefaultTimeout(timeout time.Duration) ExecutorOption {
	return func(e *BatchExecutor) {
		e.defaultTimeout = timeout
	}
}

// WithGroupLimit caps in-flight calls of a resource group.
func WithGroupLimit(group string, n int) ExecutorOption {
	return func(e *BatchExecutor) {
		e.groupLimits[group] = int64(n)
	}
}

// WithDefaultGroupLimit caps in-flight calls of groups without an explicit
// limit. Zero means unlimited.
func WithDefaultGroupLimit(n int) ExecutorOption {
	return func(e *BatchExecutor) {
		e.defaultGroupLimit = int64(n)
	}
}

// WithResultCache serves idempotent calls from c.
func WithResultCache(c ResultCache) ExecutorOption {
	return func(e *BatchExecutor) {
		e.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) ExecutorOption {
	return func(e *BatchExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEventBus publishes execution events to bus.
func WithEventBus(bus eventbus.EventBus) ExecutorOption {
	return func(e *BatchExecutor) {
		e.eventBus = bus
	}
}

// NewExecutor creates a new executor over the given tool registry.
func NewExecutor(toolRegistry map[string]toolplan.Tool, options ...ExecutorOption) *BatchExecutor {
	e := &BatchExecutor{
		toolRegistry:   make(map[string]toolplan.Tool, len(toolRegistry)),
		maxWorkers:     5,
		maxRetries:     2,
		retryDelay:     500 * time.Millisecond,
		defaultTimeout: 5 * time.Minute,
		groupLimits:    make(map[string]int64),
		logger:         logging.Nop(),
		groups:         make(map[string]*semaphore.Weighted),
		exclusive:      make(map[string]*semaphore.Weighted),
	}
	for name, tool := range toolRegistry {
		e.toolRegistry[name] = tool
	}

	// Apply options
	for _, option := range options {
		option(e)
	}

	if len(e.toolRegistry) == 0 {
		e.logger.Warn("Executor initialized with an empty tool registry", nil)
	}
	return e
}

// ExecutePlan runs plan. Batch k+1 starts only after every call of batch k
// has finished. The first failing call cancels its batch and no later batch
// runs; the returned report then holds every call that did finish.
func (e *BatchExecutor) ExecutePlan(ctx context.Context, plan *toolplan.ExecutionPlan) (*Report, error) {
	if plan == nil {
		return nil, toolplan.NewValidationError("execution", "execution plan is nil", nil)
	}

	start := time.Now()
	report := &Report{PlanID: plan.ID}
	defer e.metrics.recordPlan()

	e.logger.Info("Starting plan execution", map[string]any{
		"plan_id": plan.ID,
		"batches": len(plan.Batches),
		"calls":   plan.Len(),
	})
	e.publish(ctx, eventbus.EventExecutionStarted, plan.ID, nil, nil)

	for bi, batch := range plan.Batches {
		if err := ctx.Err(); err != nil {
			return e.fail(ctx, report, start, toolplan.NewCancelledError("execution", err))
		}

		e.publish(ctx, eventbus.EventBatchStarted, plan.ID, batch.Indices(), map[string]interface{}{"batch": bi})
		results, err := e.runBatch(ctx, bi, batch)
		report.add(results...)
		e.metrics.recordBatch()
		if err != nil {
			return e.fail(ctx, report, start, err)
		}
		e.publish(ctx, eventbus.EventBatchCompleted, plan.ID, batch.Indices(), map[string]interface{}{"batch": bi})
	}

	report.finalize(start)
	e.logger.Info("Plan execution finished", map[string]any{
		"plan_id":  plan.ID,
		"calls":    len(report.Calls),
		"duration": report.Duration.String(),
	})
	e.publish(ctx, eventbus.EventExecutionSucceeded, plan.ID, report, nil)
	return report, nil
}

func (e *BatchExecutor) fail(ctx context.Context, report *Report, start time.Time, err error) (*Report, error) {
	report.finalize(start)
	e.logger.Error("Plan execution failed", map[string]any{
		"plan_id":  report.PlanID,
		"finished": len(report.Calls),
		"error":    err,
	})
	e.publish(ctx, eventbus.EventExecutionFailed, report.PlanID, report, map[string]interface{}{"error": err.Error()})
	return report, err
}

// runBatch runs every call of one batch concurrently and returns their
// results in batch order. The first error cancels the remaining calls.
func (e *BatchExecutor) runBatch(ctx context.Context, bi int, batch toolplan.Batch) ([]CallResult, error) {
	results := make([]CallResult, len(batch))
	p := pool.New().
		WithMaxGoroutines(e.maxWorkers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for k, call := range batch {
		p.Go(func(ctx context.Context) error {
			results[k] = e.runCall(ctx, bi, call)
			return results[k].Err
		})
	}
	return results, p.Wait()
}

func (e *BatchExecutor) runCall(ctx context.Context, bi int, call toolplan.PlannedCall) (res CallResult) {
	start := time.Now()
	spec := call.Spec
	if spec.Name == "" {
		spec = toolplan.DefaultSpec(call.Name)
	}
	res = CallResult{
		Index:    call.Index,
		Name:     call.Name,
		Batch:    bi,
		produces: spec.Produces.Slice(),
	}
	defer func() {
		res.Duration = time.Since(start)
		retries := 0
		if res.Attempts > 1 {
			retries = res.Attempts - 1
		}
		e.metrics.recordCall(res.outcome(), res.Duration, retries)
	}()

	if err := ctx.Err(); err != nil {
		res.Err = toolplan.NewCancelledError("execution", err)
		return res
	}

	tool, exists := e.toolRegistry[call.Name]
	if !exists {
		res.Err = toolplan.NewToolNotFoundError("execution", call.Name)
		e.publishCall(ctx, eventbus.EventCallFailed, call, res.Err)
		return res
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}

	cacheKey := e.cacheKey(call.Name, args, spec)
	if cacheKey != "" {
		if cached, err := e.cache.Get(ctx, cacheKey); err == nil {
			res.Payload = cached
			res.Cached = true
			e.logger.Debug("Serving call from cache", map[string]any{"tool": call.Name, "index": call.Index})
			e.publishCall(ctx, eventbus.EventCallCached, call, nil)
			return res
		}
	}

	release, err := e.acquire(ctx, spec)
	if err != nil {
		res.Err = toolplan.NewCancelledError("execution", err)
		return res
	}
	defer release()

	e.publishCall(ctx, eventbus.EventCallStarted, call, nil)
	payload, attempts, err := e.invoke(ctx, tool, call.Name, args, spec)
	res.Attempts = attempts
	if err != nil {
		res.Err = err
		e.logger.Warn("Call failed", map[string]any{
			"tool":     call.Name,
			"index":    call.Index,
			"attempts": attempts,
			"error":    err,
		})
		e.publishCall(ctx, eventbus.EventCallFailed, call, err)
		return res
	}

	res.Payload = payload
	if cacheKey != "" {
		if err := e.cache.Set(ctx, cacheKey, payload); err != nil {
			e.logger.Warn("Failed to cache call result", map[string]any{"tool": call.Name, "error": err})
		}
	}
	e.publishCall(ctx, eventbus.EventCallSucceeded, call, nil)
	return res
}

// cacheKey returns "" when the call must not be served from the cache.
func (e *BatchExecutor) cacheKey(name string, args map[string]any, spec toolplan.ToolSpec) string {
	if e.cache == nil || spec.SideEffects {
		return ""
	}
	key, err := cache.ResultKey(name, args)
	if err != nil {
		e.logger.Debug("Call arguments are not cacheable", map[string]any{"tool": name, "error": err})
		return ""
	}
	return key
}

// invoke runs tool with the call timeout, retrying idempotent calls.
func (e *BatchExecutor) invoke(ctx context.Context, tool toolplan.Tool, name string, args map[string]any, spec toolplan.ToolSpec) (any, int, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	for attempt := 1; ; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		payload, err := tool.Execute(callCtx, args)
		timedOut := callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()

		if err == nil {
			return payload, attempt, nil
		}
		switch {
		case ctx.Err() != nil:
			return nil, attempt, toolplan.NewCancelledError("execution", ctx.Err())
		case timedOut:
			err = toolplan.NewTimeoutError("execution", name, fmt.Errorf("no result within %v: %w", timeout, err))
		case !toolplan.IsPlannerError(err):
			err = toolplan.NewToolExecutionError("execution", name, err)
		}

		if spec.SideEffects || attempt > e.maxRetries {
			return nil, attempt, err
		}
		e.logger.Info("Retrying call", map[string]any{
			"tool":        name,
			"retry":       attempt,
			"max_retries": e.maxRetries,
			"error":       err,
		})
		select {
		case <-ctx.Done():
			return nil, attempt, toolplan.NewCancelledError("execution", ctx.Err())
		case <-time.After(e.retryDelay):
		}
	}
}

// acquire takes the resource slots for one call of spec. A tool that is not
// parallel safe first takes its group's exclusive lock, so at most one such
// call per group is in flight across all batches and plans.
func (e *BatchExecutor) acquire(ctx context.Context, spec toolplan.ToolSpec) (func(), error) {
	group := spec.ResourceGroup
	if group == "" {
		group = toolplan.DefaultResourceGroup
	}

	var held []*semaphore.Weighted
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(1)
		}
	}

	if !spec.ParallelOK {
		lock := e.exclusiveLock(group)
		if err := lock.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		held = append(held, lock)
	}
	if sem := e.groupSemaphore(group); sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			release()
			return nil, err
		}
		held = append(held, sem)
	}
	return release, nil
}

func (e *BatchExecutor) exclusiveLock(group string) *semaphore.Weighted {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.exclusive[group]
	if !ok {
		lock = semaphore.NewWeighted(1)
		e.exclusive[group] = lock
	}
	return lock
}

// groupSemaphore returns nil for groups without a limit.
func (e *BatchExecutor) groupSemaphore(group string) *semaphore.Weighted {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sem, ok := e.groups[group]; ok {
		return sem
	}
	limit, ok := e.groupLimits[group]
	if !ok {
		limit = e.defaultGroupLimit
	}
	if limit <= 0 {
		return nil
	}
	sem := semaphore.NewWeighted(limit)
	e.groups[group] = sem
	return sem
}

// GetMetrics returns a copy of the accumulated execution metrics.
func (e *BatchExecutor) GetMetrics() ExecutorMetrics {
	return e.metrics.Copy()
}

func (e *BatchExecutor) publishCall(ctx context.Context, eventType eventbus.EventType, call toolplan.PlannedCall, err error) {
	metadata := map[string]interface{}{"tool": call.Name, "index": call.Index}
	if err != nil {
		metadata["error"] = err.Error()
	}
	e.publish(ctx, eventType, "", call, metadata)
}

// publish never blocks; events are dropped when the bus is saturated.
func (e *BatchExecutor) publish(ctx context.Context, eventType eventbus.EventType, planID string, payload interface{}, metadata map[string]interface{}) {
	if e.eventBus == nil {
		return
	}
	event := eventbus.NewEvent(eventType, payload, eventSource, metadata)
	if planID != "" {
		event.WithMetadata("plan_id", planID)
	}
	e.eventBus.TryPublish(context.WithoutCancel(ctx), event)
}
