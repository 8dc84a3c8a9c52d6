package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MatchType string

const (
	MatchTypeExact         MatchType = "exact"
	MatchTypeFuzzy         MatchType = "fuzzy"
	MatchTypeCalculated    MatchType = "calculated"
	MatchTypeInferred      MatchType = "inferred"
	MatchTypeMissingSource MatchType = "missing_source"
	MatchTypeMissingTarget MatchType = "missing_target"
)

func (t MatchType) IsMissing() bool {
	return t == MatchTypeMissingSource || t == MatchTypeMissingTarget
}

type MatchStatus string

const (
	MatchStatusProposed MatchStatus = "proposed"
	MatchStatusApproved MatchStatus = "approved"
	MatchStatusRejected MatchStatus = "rejected"
)

// Tier is the confidence band a score falls into.
type Tier string

const (
	TierPass    Tier = "PASS"
	TierWarning Tier = "WARNING"
	TierFail    Tier = "FAIL"
)

type Match struct {
	ID              string
	SessionID       string
	RuleCode        string
	SourceDocument  DocumentType
	TargetDocument  DocumentType
	SourceValue     decimal.Decimal
	TargetValue     decimal.Decimal
	Difference      decimal.Decimal
	IsMaterial      bool
	ConfidenceScore float64
	MatchType       MatchType
	Status          MatchStatus
	Tier            Tier
	RequiresReview  bool
	Explanation     string
	EvaluationError string
	CreatedAt       time.Time
}

func (m *Match) Failed() bool {
	return m.EvaluationError != ""
}
