package matching

import (
	"github.com/shopspring/decimal"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/rules"
)

// Chain is an ordered list of engines; the first non-nil result wins.
type Chain []Engine

// NewChain builds the escalation order for a relationship type.
func NewChain(rel domain.RelationshipType, flags domain.FeatureFlags, cfg Config) Chain {
	var chain Chain
	switch rel {
	case domain.RelationshipEquality:
		chain = append(chain, NewExact(cfg))
		if flags.FuzzyMatching {
			chain = append(chain, NewFuzzy(cfg))
		}
	default:
		chain = append(chain, NewCalculated(cfg))
	}
	if flags.InferredMatching {
		chain = append(chain, NewInferred(cfg))
	}
	return chain
}

func (c Chain) Attempt(in Input) (*Result, error) {
	for _, engine := range c {
		res, err := engine.Attempt(in)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}

// Match runs the chain and falls back to a missing_* result when no engine matches.
func (c Chain) Match(in Input) (*Result, error) {
	res, err := c.Attempt(in)
	if err != nil || res != nil {
		return res, err
	}
	return Missing(in), nil
}

// UnmatchedNote marks a missing_target result whose sides were both located.
const UnmatchedNote = "values located on both sides but no engine matched them"

// Missing builds the zero-score result for a rule no engine could match.
// The side that cannot be located decides the type; a side that was located
// keeps its value so reviewers see what was found. When both sides resolve
// the source value has no counterpart on the target, so the result is
// missing_target carrying UnmatchedNote.
func Missing(in Input) *Result {
	sv, srcErr := rules.ResolveSide(in.Rule, domain.SideSource, in.Source)
	tv, tgtErr := rules.ResolveSide(in.Rule, domain.SideTarget, in.Target)

	typ := domain.MatchTypeMissingTarget
	if srcErr != nil {
		typ = domain.MatchTypeMissingSource
		sv = decimal.Zero
	}
	if tgtErr != nil {
		tv = decimal.Zero
	}

	cmp := rules.Compare(in.Rule, sv, tv)
	cmp.IsMaterial = in.Rule.Critical || (srcErr == nil && tgtErr == nil && cmp.IsMaterial)
	res := &Result{
		Type:       typ,
		Comparison: cmp,
	}
	if srcErr == nil && tgtErr == nil {
		res.Note = UnmatchedNote
	}
	return res
}
