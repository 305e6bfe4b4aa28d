// Package planner turns the tool calls requested in one turn into an
// ExecutionPlan of dependency-ordered batches.
package planner

import (
	"context"

	"github.com/ZanzyTHEbar/toolplan"
	"github.com/ZanzyTHEbar/toolplan/internal/eventbus"
	"github.com/ZanzyTHEbar/toolplan/internal/extractor"
	"github.com/ZanzyTHEbar/toolplan/internal/graph"
	"github.com/ZanzyTHEbar/toolplan/internal/logging"
	"github.com/ZanzyTHEbar/toolplan/internal/scheduler"
	"github.com/google/uuid"
)

const eventSource = "planner"

// Planner builds execution plans against a spec resolver. It holds no
// per-turn state and is safe for concurrent use.
type Planner struct {
	resolver  toolplan.SpecResolver
	extractor *extractor.Extractor
	logger    logging.Logger
	eventBus  eventbus.EventBus
	newID     func() string
}

// Option configures a Planner.
type Option func(*Planner)

// WithExtractor sets the satisfied-tag extractor.
func WithExtractor(e *extractor.Extractor) Option {
	return func(p *Planner) {
		if e != nil {
			p.extractor = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithEventBus publishes planning events to bus. Events are dropped rather
// than waited on when the bus is saturated.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(p *Planner) {
		p.eventBus = bus
	}
}

// WithIDGenerator overrides how plan IDs are generated.
func WithIDGenerator(gen func() string) Option {
	return func(p *Planner) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// New creates a Planner. A nil resolver resolves every name to the default spec.
func New(resolver toolplan.SpecResolver, opts ...Option) *Planner {
	p := &Planner{
		resolver: resolver,
		logger:   logging.Nop(),
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.extractor == nil {
		p.extractor = extractor.New(extractor.WithLogger(p.logger))
	}
	return p
}

// GetSpec resolves name to its contract, never failing.
func (p *Planner) GetSpec(name string) toolplan.ToolSpec {
	if p.resolver == nil {
		return toolplan.DefaultSpec(name)
	}
	return p.resolver.GetSpec(name)
}

// BuildExecutionPlan orders calls into batches. A call's position in calls
// is its index in the plan. The result always covers every call exactly
// once; a dependency cycle degrades to one call per batch in submission
// order instead of failing.
func (p *Planner) BuildExecutionPlan(calls []toolplan.FunctionCall, state toolplan.State) *toolplan.ExecutionPlan {
	plan := &toolplan.ExecutionPlan{
		ID:      p.newID(),
		Batches: []toolplan.Batch{},
	}
	if len(calls) == 0 {
		plan.Satisfied = toolplan.TagSet{}
		return plan
	}

	normalized := make([]toolplan.FunctionCall, len(calls))
	for i, call := range calls {
		args := call.Args
		if args == nil {
			args = map[string]any{}
		}
		normalized[i] = toolplan.FunctionCall{Index: i, Name: call.Name, Args: args}
	}

	plan.Satisfied = p.extractor.Extract(state)
	g := graph.Build(normalized, p, plan.Satisfied)

	levels, cause := scheduler.Schedule(g)
	plan.Sequential = cause != nil

	plan.Batches = make([]toolplan.Batch, len(levels))
	for bi, level := range levels {
		batch := make(toolplan.Batch, len(level))
		for k, idx := range level {
			call := normalized[idx]
			batch[k] = toolplan.PlannedCall{
				Index: idx,
				Name:  call.Name,
				Args:  call.Args,
				Spec:  g.Spec(idx),
			}
		}
		plan.Batches[bi] = batch
	}

	if cause != nil {
		p.logger.Warn("Dependency cycle in requested calls, falling back to sequential plan", map[string]any{
			"plan_id": plan.ID,
			"calls":   len(calls),
			"error":   cause,
		})
		p.publish(eventbus.EventPlanFallbackSequential, plan, map[string]interface{}{"reason": cause.Error()})
	}

	p.logger.Debug("Execution plan built", map[string]any{
		"plan_id":    plan.ID,
		"calls":      len(calls),
		"batches":    len(plan.Batches),
		"edges":      len(g.Edges()),
		"satisfied":  plan.Satisfied.Slice(),
		"sequential": plan.Sequential,
	})
	p.publish(eventbus.EventPlanBuilt, plan, nil)
	return plan
}

func (p *Planner) publish(eventType eventbus.EventType, plan *toolplan.ExecutionPlan, metadata map[string]interface{}) {
	if p.eventBus == nil {
		return
	}
	// Handlers run on bus workers and get their own copy of the plan.
	event := eventbus.NewEvent(eventType, plan.Clone(), eventSource, metadata).
		WithMetadata("plan_id", plan.ID)
	if !p.eventBus.TryPublish(context.Background(), event) {
		p.logger.Debug("Planning event dropped", map[string]any{
			"event_type": string(eventType),
			"plan_id":    plan.ID,
		})
	}
}
