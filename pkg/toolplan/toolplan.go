// Package toolplan is the public entry point of the tool-call planner: spec
// lookup, dependency-ordered execution plans and affordance scoring.
package toolplan

import (
	"context"
	"io"

	core "github.com/ZanzyTHEbar/toolplan"
	"github.com/ZanzyTHEbar/toolplan/internal/affordance"
	"github.com/ZanzyTHEbar/toolplan/internal/catalog"
	"github.com/ZanzyTHEbar/toolplan/internal/eventbus"
	"github.com/ZanzyTHEbar/toolplan/internal/executor"
	"github.com/ZanzyTHEbar/toolplan/internal/logging"
	"github.com/ZanzyTHEbar/toolplan/internal/planner"
)

// Re-exported types so callers need a single import.
type (
	DataTag       = core.DataTag
	TagSet        = core.TagSet
	ToolSpec      = core.ToolSpec
	FunctionCall  = core.FunctionCall
	ToolResult    = core.ToolResult
	State         = core.State
	Results       = core.Results
	TaggedPayload = core.TaggedPayload
	PlannedCall   = core.PlannedCall
	Batch         = core.Batch
	ExecutionPlan = core.ExecutionPlan
	Catalog       = catalog.Catalog
	Rule          = affordance.Rule
	Bump          = affordance.Bump
	Affordance    = affordance.Affordance
	Logger        = logging.Logger
)

// Planner bundles the catalog, plan builder and affordance scorer, plus an
// executor when tools are registered.
type Planner struct {
	catalog  *catalog.Catalog
	planner  *planner.Planner
	scorer   *affordance.Scorer
	executor *executor.BatchExecutor
	closers  []io.Closer

	// unresolved inputs, consumed by New
	overrides []core.ToolSpec
	rules     []affordance.Rule
	logger      logging.Logger
	eventBus    eventbus.EventBus
	toolFuncs   map[string]ToolFunc
	tools       []Tool
	resultCache ResultCache

	config Config
}

// Option is a function that configures a Planner.
type Option func(*Planner)

// WithConfig sets the configuration for the Planner.
func WithConfig(config Config) Option {
	return func(p *Planner) {
		p.config = config
	}
}

// WithCatalog replaces the built-in catalog.
func WithCatalog(c *Catalog) Option {
	return func(p *Planner) {
		p.catalog = c
	}
}

// WithOverrides replaces or adds specs on top of the catalog.
func WithOverrides(specs ...ToolSpec) Option {
	return func(p *Planner) {
		p.overrides = append(p.overrides, specs...)
	}
}

// WithRules replaces the built-in affordance rule table.
func WithRules(rules []Rule) Option {
	return func(p *Planner) {
		p.rules = rules
	}
}

// WithLogger sets the logger shared by all components.
func WithLogger(logger Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// WithEventBus publishes catalog, planning and execution events to bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(p *Planner) {
		p.eventBus = bus
	}
}

// New builds a Planner. The catalog is assembled from, in order, the
// built-in table (or WithCatalog), Config.CatalogFile and WithOverrides, and
// is checked for dependency cycles when Config.ValidateCatalog is set.
func New(options ...Option) (*Planner, error) {
	p := &Planner{config: DefaultConfig()}
	for _, option := range options {
		option(p)
	}
	if p.logger == nil {
		p.logger = logging.Default()
	}

	c, err := p.assembleCatalog()
	if err != nil {
		return nil, err
	}
	p.catalog = c

	rules, err := p.assembleRules()
	if err != nil {
		return nil, err
	}
	scorer, err := affordance.New(rules, affordance.WithLogger(p.logger))
	if err != nil {
		return nil, core.NewConfigurationError("invalid affordance rules", err)
	}
	p.scorer = scorer

	p.planner = planner.New(p.catalog,
		planner.WithLogger(p.logger),
		planner.WithEventBus(p.eventBus),
	)
	if err := p.assembleExecutor(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Planner) assembleCatalog() (*catalog.Catalog, error) {
	c := p.catalog
	if c == nil {
		c = catalog.Default()
	}
	if p.config.CatalogFile != "" {
		specs, err := catalog.LoadFile(p.config.CatalogFile)
		if err != nil {
			return nil, err
		}
		if c, err = c.With(specs...); err != nil {
			return nil, core.NewConfigurationError("invalid catalog file "+p.config.CatalogFile, err)
		}
	}
	if len(p.overrides) > 0 {
		var err error
		if c, err = c.With(p.overrides...); err != nil {
			return nil, core.NewConfigurationError("invalid catalog overrides", err)
		}
	}

	if !p.config.ValidateCatalog {
		return c, nil
	}
	if err := c.Validate(); err != nil {
		p.logger.Error("Catalog failed validation", map[string]any{"error": err})
		p.publish(eventbus.EventCatalogInvalid, err.Error())
		return nil, core.NewConfigurationError("catalog failed validation", err)
	}
	p.logger.Info("Catalog validated", map[string]any{"tools": c.Len()})
	p.publish(eventbus.EventCatalogValidated, c.Names())
	return c, nil
}

func (p *Planner) assembleRules() ([]affordance.Rule, error) {
	if p.config.RulesFile != "" {
		return affordance.LoadRules(p.config.RulesFile)
	}
	if p.rules != nil {
		return p.rules, nil
	}
	return affordance.DefaultRules(), nil
}

// publish delivers boot-time catalog events, blocking until the bus takes them.
func (p *Planner) publish(eventType eventbus.EventType, payload interface{}) {
	if p.eventBus == nil {
		return
	}
	if err := p.eventBus.Publish(context.Background(), eventbus.NewEvent(eventType, payload, "toolplan", nil)); err != nil {
		p.logger.Warn("Catalog event not delivered", map[string]any{
			"event_type": string(eventType),
			"error":      err,
		})
	}
}

// GetSpec returns the contract for name; unknown names get the permissive default.
func (p *Planner) GetSpec(name string) ToolSpec {
	return p.catalog.GetSpec(name)
}

// BuildExecutionPlan orders calls into dependency-respecting batches given
// the prior-round state. It never fails.
func (p *Planner) BuildExecutionPlan(calls []FunctionCall, state State) *ExecutionPlan {
	return p.planner.BuildExecutionPlan(calls, state)
}

// ScoreAffordances ranks candidate tools for a free-text query.
func (p *Planner) ScoreAffordances(query string, state State) []Affordance {
	return p.scorer.Score(query, state)
}

// Catalog returns the validated catalog in use.
func (p *Planner) Catalog() *Catalog {
	return p.catalog
}
