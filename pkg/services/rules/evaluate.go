package rules

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

// ErrUnaligned means the document is present but no line carries the rule's account codes.
var ErrUnaligned = errors.New("no line item carries the rule's account codes")

// Evaluate applies a rule to the candidates of both sides.
//
// Equality and sum rules compare the summed aligned lines of each side; ratio
// rules compare numerator/denominator where a side declares denominator codes.
func Evaluate(rule domain.MatchingRule, source, target []domain.Candidate) (domain.RawComparison, error) {
	sv, err := ResolveSide(rule, domain.SideSource, source)
	if err != nil {
		return domain.RawComparison{}, err
	}
	tv, err := ResolveSide(rule, domain.SideTarget, target)
	if err != nil {
		return domain.RawComparison{}, err
	}
	return Compare(rule, sv, tv), nil
}

// Compare builds the raw comparison for two already resolved values.
func Compare(rule domain.MatchingRule, source, target decimal.Decimal) domain.RawComparison {
	diff := source.Sub(target)
	return domain.RawComparison{
		SourceValue: source,
		TargetValue: target,
		Difference:  diff,
		IsMaterial:  IsMaterial(rule, diff),
	}
}

func IsMaterial(rule domain.MatchingRule, diff decimal.Decimal) bool {
	if rule.Relationship == domain.RelationshipRatio {
		return diff.Abs().GreaterThan(decimal.NewFromFloat(rule.Tolerance))
	}
	return diff.Abs().GreaterThan(rule.MaterialityThreshold)
}

// Spec returns the field spec of one side of the rule.
func Spec(rule domain.MatchingRule, side domain.Side) domain.FieldSpec {
	if side == domain.SideSource {
		return rule.Source
	}
	return rule.Target
}

// ResolveSide reduces one side's candidates to a single value.
func ResolveSide(rule domain.MatchingRule, side domain.Side, cands []domain.Candidate) (decimal.Decimal, error) {
	spec := Spec(rule, side)
	if len(cands) == 0 {
		return decimal.Zero, &domain.MissingDocumentError{
			RuleCode:     rule.Code,
			Side:         side,
			DocumentType: spec.DocumentType,
		}
	}

	numerator, found, err := sumWhere(rule, side, cands, spec.HasCode)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return decimal.Zero, fmt.Errorf("rule %s %s: %w", rule.Code, side, ErrUnaligned)
	}
	if !spec.IsRatio() {
		return numerator, nil
	}

	denominator, found, err := sumWhere(rule, side, cands, spec.HasDenominatorCode)
	if err != nil {
		return decimal.Zero, err
	}
	if !found || denominator.IsZero() {
		return decimal.Zero, &domain.RuleEvaluationError{
			RuleCode: rule.Code,
			Side:     side,
			Err:      errors.New("ratio denominator is zero or absent"),
		}
	}
	return numerator.DivRound(denominator, 6), nil
}

// Aligned returns the candidates whose account code belongs to the side's spec.
func Aligned(spec domain.FieldSpec, cands []domain.Candidate) []domain.Candidate {
	var out []domain.Candidate
	for _, c := range cands {
		if spec.HasCode(c.AccountCode) {
			out = append(out, c)
		}
	}
	return out
}

func sumWhere(rule domain.MatchingRule, side domain.Side, cands []domain.Candidate, keep func(string) bool) (decimal.Decimal, bool, error) {
	total := decimal.Zero
	found := false
	for _, c := range cands {
		if !keep(c.AccountCode) {
			continue
		}
		if !c.Value.Valid {
			return decimal.Zero, false, &domain.RuleEvaluationError{
				RuleCode: rule.Code,
				Side:     side,
				Err:      fmt.Errorf("non-numeric amount for account %s (%s)", c.AccountCode, c.SourceReference),
			}
		}
		total = total.Add(c.Value.Decimal)
		found = true
	}
	return total, found, nil
}
