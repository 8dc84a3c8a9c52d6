package rules

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

// Registry holds the matching rules available to reconciliation sessions.
type Registry interface {
	// Register adds a rule; codes are unique.
	Register(rule domain.MatchingRule) error
	// Get returns a rule by code.
	Get(code string) (domain.MatchingRule, bool)
	// List returns every rule ordered by code.
	List() []domain.MatchingRule
	// Enabled returns the enabled rules ordered by code.
	Enabled() []domain.MatchingRule
	// Explain renders the rule's explanation for a finished comparison.
	Explain(code string, data ExplanationData) string
}

// ExplanationData is the input of a rule's explanation template.
type ExplanationData struct {
	Rule        domain.MatchingRule
	SourceValue string
	TargetValue string
	Difference  string
	MatchType   domain.MatchType
	Confidence  float64
}

type entry struct {
	rule domain.MatchingRule
	tmpl *template.Template
}

type registry struct {
	mu    sync.RWMutex
	rules map[string]entry
}

func NewRegistry() Registry {
	return &registry{
		rules: make(map[string]entry),
	}
}

// NewDefaultRegistry returns a registry preloaded with the built-in rule table.
func NewDefaultRegistry() (Registry, error) {
	return NewRegistryFromRules(DefaultRules())
}

func NewRegistryFromRules(rules []domain.MatchingRule) (Registry, error) {
	r := NewRegistry()
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *registry) Register(rule domain.MatchingRule) error {
	if err := Validate(rule); err != nil {
		return err
	}

	tmpl, err := template.New(rule.Code).Option("missingkey=zero").Parse(rule.ExplanationTemplate)
	if err != nil {
		return fmt.Errorf("rule %s: invalid explanation template: %w", rule.Code, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.Code]; exists {
		return fmt.Errorf("rule %q is already registered", rule.Code)
	}
	r.rules[rule.Code] = entry{rule: rule, tmpl: tmpl}
	return nil
}

func (r *registry) Get(code string) (domain.MatchingRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rules[code]
	return e.rule, ok
}

func (r *registry) List() []domain.MatchingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.MatchingRule, 0, len(r.rules))
	for _, e := range r.rules {
		out = append(out, e.rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (r *registry) Enabled() []domain.MatchingRule {
	all := r.List()
	out := all[:0]
	for _, rule := range all {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	return out
}

func (r *registry) Explain(code string, data ExplanationData) string {
	r.mu.RLock()
	e, ok := r.rules[code]
	r.mu.RUnlock()
	if !ok {
		return ""
	}

	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("%s: source %s vs target %s (difference %s)",
			e.rule.Name, data.SourceValue, data.TargetValue, data.Difference)
	}
	return strings.TrimSpace(buf.String())
}

// Validate checks that a rule is complete enough to be evaluated.
func Validate(rule domain.MatchingRule) error {
	if strings.TrimSpace(rule.Code) == "" {
		return fmt.Errorf("%w: rule code is required", domain.ErrInvalidInput)
	}
	switch rule.Relationship {
	case domain.RelationshipEquality, domain.RelationshipSum:
	case domain.RelationshipRatio:
		if !rule.Source.IsRatio() && !rule.Target.IsRatio() {
			return fmt.Errorf("%w: rule %s: ratio rule needs denominator codes on one side", domain.ErrInvalidInput, rule.Code)
		}
		if rule.Tolerance <= 0 {
			return fmt.Errorf("%w: rule %s: ratio rule needs a positive tolerance", domain.ErrInvalidInput, rule.Code)
		}
	default:
		return fmt.Errorf("%w: rule %s: unknown relationship %q", domain.ErrInvalidInput, rule.Code, rule.Relationship)
	}
	if rule.MaterialityThreshold.IsNegative() {
		return fmt.Errorf("%w: rule %s: materiality threshold must not be negative", domain.ErrInvalidInput, rule.Code)
	}
	for side, spec := range map[domain.Side]domain.FieldSpec{
		domain.SideSource: rule.Source,
		domain.SideTarget: rule.Target,
	} {
		if !spec.DocumentType.Valid() {
			return fmt.Errorf("%w: rule %s: %s has unknown document type %q", domain.ErrInvalidInput, rule.Code, side, spec.DocumentType)
		}
		if len(spec.AccountCodes) == 0 {
			return fmt.Errorf("%w: rule %s: %s needs at least one account code", domain.ErrInvalidInput, rule.Code, side)
		}
	}
	return nil
}
