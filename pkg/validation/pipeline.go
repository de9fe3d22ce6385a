package validation

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/fable/pkg/domain"
)

// Context is everything a rule may inspect.
type Context struct {
	Node  *domain.Node
	State *domain.State
	// VisibleChoices are the node's choices that passed condition
	// evaluation. When nil, Node.Choices is used.
	VisibleChoices []domain.Choice
	// Timestamp is the evaluation instant. The zero value means "now".
	Timestamp time.Time
}

func (c Context) candidates() []domain.Choice {
	if c.VisibleChoices != nil {
		return c.VisibleChoices
	}
	if c.Node == nil {
		return nil
	}
	return c.Node.Choices
}

// CheckFunc inspects one choice.
type CheckFunc func(choice domain.Choice, ctx Context) domain.ValidationResult

// Rule is a named, prioritized check. Lower priorities run first.
type Rule struct {
	Name     string
	Priority int
	Check    CheckFunc
}

// Pipeline is an ordered chain of rules. It is safe for concurrent use.
type Pipeline struct {
	mu    sync.RWMutex
	rules []Rule
	clock func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the wall clock used when a context has no timestamp.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// WithoutStandardRules starts the pipeline empty.
func WithoutStandardRules() Option {
	return func(p *Pipeline) {
		p.rules = nil
	}
}

// WithRules registers additional rules at construction.
func WithRules(rules ...Rule) Option {
	return func(p *Pipeline) {
		for _, r := range rules {
			_ = p.register(r)
		}
	}
}

// New creates a pipeline with the standard rules registered.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		rules: StandardRules(),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds a rule. A rule with the same name replaces the previous one.
func (p *Pipeline) Register(rule Rule) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.register(rule)
}

func (p *Pipeline) register(rule Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if rule.Check == nil {
		return fmt.Errorf("rule %q has no check function", rule.Name)
	}
	for i, r := range p.rules {
		if r.Name == rule.Name {
			p.rules = append(p.rules[:i], p.rules[i+1:]...)
			break
		}
	}
	p.rules = append(p.rules, rule)
	sort.SliceStable(p.rules, func(i, j int) bool {
		return p.rules[i].Priority < p.rules[j].Priority
	})
	return nil
}

// Remove deletes a rule by name and reports whether it existed.
func (p *Pipeline) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.rules {
		if r.Name == name {
			p.rules = append(p.rules[:i], p.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Rules lists rule names in execution order.
func (p *Pipeline) Rules() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name
	}
	return names
}

// Validate runs the chain for a single choice. A failing result names the
// rule and suggests the currently valid choices.
func (p *Pipeline) Validate(choice domain.Choice, ctx Context) domain.ValidationResult {
	rules, ctx := p.prepare(ctx)
	res := run(rules, choice, ctx)
	if !res.Valid {
		res.SuggestedChoices = filter(rules, ctx)
	}
	return res
}

// Check runs the chain for a single choice without computing suggestions.
func (p *Pipeline) Check(choice domain.Choice, ctx Context) domain.ValidationResult {
	rules, ctx := p.prepare(ctx)
	return run(rules, choice, ctx)
}

// AvailableChoices returns the candidates that pass every rule. It is
// computed fresh on every call because rules read mutable state.
func (p *Pipeline) AvailableChoices(ctx Context) []domain.Choice {
	rules, ctx := p.prepare(ctx)
	return filter(rules, ctx)
}

func (p *Pipeline) prepare(ctx Context) ([]Rule, Context) {
	p.mu.RLock()
	rules := append([]Rule(nil), p.rules...)
	clock := p.clock
	p.mu.RUnlock()
	if ctx.Timestamp.IsZero() {
		ctx.Timestamp = clock()
	}
	return rules, ctx
}

func filter(rules []Rule, ctx Context) []domain.Choice {
	out := []domain.Choice{}
	for _, c := range ctx.candidates() {
		if run(rules, c, ctx).Valid {
			out = append(out, c)
		}
	}
	return out
}

func run(rules []Rule, choice domain.Choice, ctx Context) domain.ValidationResult {
	for _, r := range rules {
		res := r.Check(choice, ctx)
		if !res.Valid {
			res.Rule = r.Name
			if res.Reason == "" {
				res.Reason = fmt.Sprintf("rule %s failed", r.Name)
			}
			return res
		}
	}
	return domain.Valid()
}

func sameChoice(a, b domain.Choice) bool {
	return reflect.DeepEqual(a, b)
}
