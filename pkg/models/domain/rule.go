package domain

import (
	"github.com/shopspring/decimal"
)

type RelationshipType string

const (
	RelationshipEquality RelationshipType = "equality"
	RelationshipSum      RelationshipType = "sum"
	RelationshipRatio    RelationshipType = "ratio"
)

type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// FieldSpec describes how one side of a rule pulls its value out of a document.
type FieldSpec struct {
	DocumentType DocumentType `yaml:"document" json:"document"`
	AccountCodes []string     `yaml:"account_codes" json:"account_codes"`
	AccountName  string       `yaml:"account_name" json:"account_name"`
	// DenominatorCodes turns the side into numerator/denominator when set.
	DenominatorCodes []string `yaml:"denominator_codes,omitempty" json:"denominator_codes,omitempty"`
	// PeriodOffset selects a period relative to the session period, e.g. -1 for prior month.
	PeriodOffset int `yaml:"period_offset,omitempty" json:"period_offset,omitempty"`
}

func (f FieldSpec) HasCode(code string) bool {
	for _, c := range f.AccountCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (f FieldSpec) HasDenominatorCode(code string) bool {
	for _, c := range f.DenominatorCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (f FieldSpec) IsRatio() bool {
	return len(f.DenominatorCodes) > 0
}

type MatchingRule struct {
	Code                 string           `yaml:"code" json:"code"`
	Name                 string           `yaml:"name" json:"name"`
	Source               FieldSpec        `yaml:"source" json:"source"`
	Target               FieldSpec        `yaml:"target" json:"target"`
	Relationship         RelationshipType `yaml:"relationship" json:"relationship"`
	MaterialityThreshold decimal.Decimal  `yaml:"materiality_threshold" json:"materiality_threshold"`
	// Tolerance is the allowed absolute deviation for ratio rules (0.02 = two points).
	Tolerance           float64 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	Critical            bool    `yaml:"critical,omitempty" json:"critical,omitempty"`
	Blocking            bool    `yaml:"blocking,omitempty" json:"blocking,omitempty"`
	Enabled             bool    `yaml:"enabled" json:"enabled"`
	ExplanationTemplate string  `yaml:"explanation" json:"explanation"`
}

// RawComparison is the pure outcome of applying a rule to two resolved values.
type RawComparison struct {
	SourceValue decimal.Decimal
	TargetValue decimal.Decimal
	Difference  decimal.Decimal
	IsMaterial  bool
}

// HistoricalStat is the precomputed reliability of one rule for one property.
type HistoricalStat struct {
	RuleCode    string
	PropertyID  string
	Reliability float64
	Tolerance   float64
	Periods     int
}
