// Package affordance ranks candidate tools for a free-text query using a
// declarative keyword rule table. It is advisory only and has no bearing on
// dependency planning.
package affordance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/ZanzyTHEbar/toolplan"
	"github.com/ZanzyTHEbar/toolplan/internal/catalog"
	"github.com/ZanzyTHEbar/toolplan/internal/logging"
)

const (
	// MaxScore caps the accumulated score of a single tool.
	MaxScore = 1.0
	// DefaultMaxResults is the number of affordances returned by Score.
	DefaultMaxResults = 5
	// DefaultFallbackWeight is the score given to the fallback tool.
	DefaultFallbackWeight = 0.5
)

// Affordance is one ranked candidate tool.
type Affordance struct {
	Name          string         `json:"name"`
	Score         float64        `json:"score"`
	SuggestedArgs map[string]any `json:"suggested_args"`
}

type compiledRule struct {
	Rule
	keywords  []string
	condition *govaluate.EvaluableExpression
}

// Scorer evaluates a rule table against queries. It is safe for concurrent use.
type Scorer struct {
	rules          []compiledRule
	fallbackTool   string
	fallbackWeight float64
	maxResults     int
	logger         logging.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithFallback sets the tool bumped when no rule fires.
func WithFallback(tool string, weight float64) Option {
	return func(s *Scorer) {
		s.fallbackTool = tool
		s.fallbackWeight = weight
	}
}

// WithMaxResults sets how many affordances Score returns.
func WithMaxResults(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// WithLogger sets the logger used for condition evaluation failures.
func WithLogger(logger logging.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New compiles and validates a rule table.
func New(rules []Rule, opts ...Option) (*Scorer, error) {
	s := &Scorer{
		fallbackTool:   catalog.ToolKnowledgeSearch,
		fallbackWeight: DefaultFallbackWeight,
		maxResults:     DefaultMaxResults,
		logger:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.fallbackTool == "" {
		return nil, toolplan.NewValidationError("affordance", "fallback tool must be set", nil)
	}
	if s.fallbackWeight <= 0 || s.fallbackWeight > MaxScore {
		return nil, toolplan.NewValidationError("affordance", fmt.Sprintf("fallback weight %v out of range (0, 1]", s.fallbackWeight), nil)
	}

	s.rules = make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		cr, err := compileRule(r)
		if err != nil {
			return nil, toolplan.NewValidationError("affordance", fmt.Sprintf("rule %d (%q) is invalid", i, r.Name), err)
		}
		s.rules = append(s.rules, cr)
	}
	return s, nil
}

// MustNew is like New but panics on an invalid table.
func MustNew(rules []Rule, opts ...Option) *Scorer {
	s, err := New(rules, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Default returns a Scorer over DefaultRules.
func Default() *Scorer {
	return MustNew(DefaultRules())
}

func compileRule(r Rule) (compiledRule, error) {
	cr := compiledRule{Rule: r}
	for _, kw := range r.Keywords {
		if strings.TrimSpace(kw) == "" {
			return cr, fmt.Errorf("empty keyword")
		}
		cr.keywords = append(cr.keywords, strings.ToLower(kw))
	}
	if len(cr.keywords) == 0 {
		return cr, fmt.Errorf("at least one keyword is required")
	}
	if len(r.Bumps) == 0 {
		return cr, fmt.Errorf("at least one bump is required")
	}

	bumped := make(map[string]bool, len(r.Bumps))
	for _, b := range r.Bumps {
		if b.Tool == "" {
			return cr, fmt.Errorf("bump without tool name")
		}
		if b.Weight <= 0 || b.Weight > MaxScore {
			return cr, fmt.Errorf("bump weight %v for %q out of range (0, 1]", b.Weight, b.Tool)
		}
		bumped[b.Tool] = true
	}
	for tool := range r.SuggestedArgs {
		if !bumped[tool] {
			return cr, fmt.Errorf("suggested args for %q which the rule does not bump", tool)
		}
	}

	cond, err := compileCondition(r.Condition)
	if err != nil {
		return cr, fmt.Errorf("condition %q: %w", r.Condition, err)
	}
	cr.condition = cond
	return cr, nil
}

// accumulator keeps scores in first-insertion order.
type accumulator struct {
	order  []*Affordance
	byName map[string]*Affordance
}

func (a *accumulator) entry(name string) *Affordance {
	if e, ok := a.byName[name]; ok {
		return e
	}
	e := &Affordance{Name: name, SuggestedArgs: map[string]any{}}
	a.byName[name] = e
	a.order = append(a.order, e)
	return e
}

func (a *accumulator) bump(name string, weight float64) {
	e := a.entry(name)
	e.Score += weight
	if e.Score > MaxScore {
		e.Score = MaxScore
	}
}

// Score ranks candidate tools for query. The result is never empty: when no
// rule fires the fallback tool is returned. State is accepted for future
// state-aware rules and is currently unused.
func (s *Scorer) Score(query string, _ toolplan.State) []Affordance {
	lowered := strings.ToLower(strings.TrimSpace(query))
	acc := &accumulator{byName: make(map[string]*Affordance)}

	var params map[string]interface{}
	fired := 0
	for i := range s.rules {
		r := &s.rules[i]
		if !r.matches(lowered) {
			continue
		}
		if r.condition != nil {
			if params == nil {
				params = queryParameters(lowered)
			}
			if !s.evaluate(r, params) {
				continue
			}
		}
		fired++
		for _, b := range r.Bumps {
			acc.bump(b.Tool, b.Weight)
		}
		for _, b := range r.Bumps {
			for k, v := range r.SuggestedArgs[b.Tool] {
				acc.entry(b.Tool).SuggestedArgs[k] = v
			}
		}
	}
	if fired == 0 {
		acc.bump(s.fallbackTool, s.fallbackWeight)
	}

	sort.SliceStable(acc.order, func(i, j int) bool {
		return acc.order[i].Score > acc.order[j].Score
	})

	n := len(acc.order)
	if n > s.maxResults {
		n = s.maxResults
	}
	out := make([]Affordance, n)
	for i := 0; i < n; i++ {
		out[i] = *acc.order[i]
	}
	return out
}

func (r *compiledRule) matches(lowered string) bool {
	if lowered == "" {
		return false
	}
	for _, kw := range r.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func (s *Scorer) evaluate(r *compiledRule, params map[string]interface{}) bool {
	result, err := r.condition.Evaluate(params)
	if err != nil {
		s.logger.Debug("Affordance condition failed", map[string]any{
			"rule":  r.Name,
			"error": err,
		})
		return false
	}
	ok, isBool := result.(bool)
	return isBool && ok
}

// Rules returns a copy of the rule table in evaluation order.
func (s *Scorer) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Rule
	}
	return out
}
