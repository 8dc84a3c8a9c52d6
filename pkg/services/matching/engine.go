package matching

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/rules"
)

// Engine is one matching strategy. A nil result means the strategy found no match
// and escalation should continue; an error means the rule's data is malformed.
type Engine interface {
	Type() domain.MatchType
	Attempt(in Input) (*Result, error)
}

// Input carries everything an engine may look at. Engines do no I/O.
type Input struct {
	Rule    domain.MatchingRule
	Source  []domain.Candidate
	Target  []domain.Candidate
	History *domain.HistoricalStat
}

// PeriodGap is the distance in months between the periods the two sides read from.
func (in Input) PeriodGap() int {
	gap := in.Rule.Source.PeriodOffset - in.Rule.Target.PeriodOffset
	if gap < 0 {
		return -gap
	}
	return gap
}

type Result struct {
	Type domain.MatchType
	// Raw is the engine's own score in [0,1].
	Raw float64
	// AccountScore is 1 for aligned identifiers, otherwise name similarity.
	AccountScore float64
	// AmountScore is the amount proximity in [0,1].
	AmountScore    float64
	Comparison     domain.RawComparison
	RequiresReview bool
	// Note is appended to the rendered explanation.
	Note string
}

type Config struct {
	ExactTolerance decimal.Decimal
	FuzzyFloor     float64
	NameWeight     float64
	AmountWeight   float64
	// CalculatedBand is the relative deviation beyond which a calculated match is rejected.
	CalculatedBand float64
	MinReliability float64
}

func DefaultConfig() Config {
	return Config{
		ExactTolerance: decimal.RequireFromString("0.01"),
		FuzzyFloor:     0.70,
		NameWeight:     0.6,
		AmountWeight:   0.4,
		CalculatedBand: 0.10,
		MinReliability: 0.5,
	}
}

// Proximity returns max(0, 1 - |difference| / max(|source|, |target|)).
func Proximity(cmp domain.RawComparison) float64 {
	scale := decimal.Max(cmp.SourceValue.Abs(), cmp.TargetValue.Abs())
	if scale.IsZero() {
		if cmp.Difference.IsZero() {
			return 1
		}
		return 0
	}
	dev, _ := cmp.Difference.Abs().Div(scale).Float64()
	return math.Max(0, 1-dev)
}

// absorb turns "this strategy cannot see the values" into a nil result and
// keeps malformed data as an error.
func absorb(err error) error {
	var missing *domain.MissingDocumentError
	if errors.As(err, &missing) || errors.Is(err, rules.ErrUnaligned) {
		return nil
	}
	return err
}

type Exact struct {
	cfg Config
}

func NewExact(cfg Config) *Exact {
	return &Exact{cfg: cfg}
}

func (e *Exact) Type() domain.MatchType { return domain.MatchTypeExact }

func (e *Exact) Attempt(in Input) (*Result, error) {
	if in.PeriodGap() != 0 {
		return nil, nil
	}
	cmp, err := rules.Evaluate(in.Rule, in.Source, in.Target)
	if err != nil {
		return nil, absorb(err)
	}
	if cmp.Difference.Abs().GreaterThan(e.cfg.ExactTolerance) {
		return nil, nil
	}
	return &Result{
		Type:         domain.MatchTypeExact,
		Raw:          1,
		AccountScore: 1,
		AmountScore:  Proximity(cmp),
		Comparison:   cmp,
	}, nil
}

type Fuzzy struct {
	cfg Config
}

func NewFuzzy(cfg Config) *Fuzzy {
	return &Fuzzy{cfg: cfg}
}

func (f *Fuzzy) Type() domain.MatchType { return domain.MatchTypeFuzzy }

type located struct {
	value   decimal.Decimal
	name    string
	aligned bool
}

func (f *Fuzzy) Attempt(in Input) (*Result, error) {
	src, err := f.locate(in.Rule, domain.SideSource, in.Source)
	if err != nil || src == nil {
		return nil, err
	}
	tgt, err := f.locate(in.Rule, domain.SideTarget, in.Target)
	if err != nil || tgt == nil {
		return nil, err
	}

	s := 1.0
	if !src.aligned || !tgt.aligned {
		s = Similarity(src.name, tgt.name)
	}
	cmp := rules.Compare(in.Rule, src.value, tgt.value)
	a := Proximity(cmp)

	blended := f.cfg.NameWeight*s + f.cfg.AmountWeight*a
	if blended < f.cfg.FuzzyFloor {
		return nil, nil
	}
	return &Result{
		Type:         domain.MatchTypeFuzzy,
		Raw:          blended,
		AccountScore: s,
		AmountScore:  a,
		Comparison:   cmp,
	}, nil
}

// locate takes the aligned lines of a side when there are any, otherwise the
// line whose name is closest to the rule's canonical account name.
func (f *Fuzzy) locate(rule domain.MatchingRule, side domain.Side, cands []domain.Candidate) (*located, error) {
	if len(cands) == 0 {
		return nil, nil
	}
	spec := rules.Spec(rule, side)

	v, err := rules.ResolveSide(rule, side, cands)
	if err == nil {
		name := spec.AccountName
		if aligned := rules.Aligned(spec, cands); len(aligned) > 0 && aligned[0].AccountName != "" {
			name = aligned[0].AccountName
		}
		return &located{value: v, name: name, aligned: true}, nil
	}
	if !errors.Is(err, rules.ErrUnaligned) {
		return nil, err
	}
	if spec.IsRatio() || spec.AccountName == "" {
		return nil, nil
	}

	var best *domain.Candidate
	bestScore := 0.0
	for i := range cands {
		if score := Similarity(cands[i].AccountName, spec.AccountName); score > bestScore {
			best, bestScore = &cands[i], score
		}
	}
	if best == nil || bestScore < f.cfg.FuzzyFloor {
		return nil, nil
	}
	if !best.Value.Valid {
		return nil, &domain.RuleEvaluationError{
			RuleCode: rule.Code,
			Side:     side,
			Err:      errors.New("non-numeric amount for " + best.AccountName),
		}
	}
	return &located{value: best.Value.Decimal, name: best.AccountName}, nil
}

type Calculated struct {
	cfg Config
}

func NewCalculated(cfg Config) *Calculated {
	return &Calculated{cfg: cfg}
}

func (c *Calculated) Type() domain.MatchType { return domain.MatchTypeCalculated }

func (c *Calculated) Attempt(in Input) (*Result, error) {
	cmp, err := rules.Evaluate(in.Rule, in.Source, in.Target)
	if err != nil {
		return nil, absorb(err)
	}
	a := Proximity(cmp)
	dev := 1 - a
	if dev > c.cfg.CalculatedBand {
		return nil, nil
	}
	raw := 0.95 - 0.45*math.Min(dev/c.cfg.CalculatedBand, 1)
	return &Result{
		Type:         domain.MatchTypeCalculated,
		Raw:          raw,
		AccountScore: raw,
		AmountScore:  a,
		Comparison:   cmp,
	}, nil
}

type Inferred struct {
	cfg Config
}

func NewInferred(cfg Config) *Inferred {
	return &Inferred{cfg: cfg}
}

func (i *Inferred) Type() domain.MatchType { return domain.MatchTypeInferred }

func (i *Inferred) Attempt(in Input) (*Result, error) {
	if in.History == nil || in.History.Reliability < i.cfg.MinReliability {
		return nil, nil
	}
	cmp, err := rules.Evaluate(in.Rule, in.Source, in.Target)
	if err != nil {
		return nil, absorb(err)
	}
	a := Proximity(cmp)
	raw := 0.50
	if 1-a <= in.History.Tolerance {
		raw += 0.19 * math.Min(in.History.Reliability, 1)
	}
	return &Result{
		Type:           domain.MatchTypeInferred,
		Raw:            raw,
		AccountScore:   1,
		AmountScore:    a,
		Comparison:     cmp,
		RequiresReview: true,
	}, nil
}
