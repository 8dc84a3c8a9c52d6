package adapters

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

func TestMapDomainMatchToApi(t *testing.T) {
	m := &domain.Match{
		ID:              "m1",
		RuleCode:        "A-2.1",
		SourceDocument:  domain.DocumentBalanceSheet,
		TargetDocument:  domain.DocumentMortgageStatement,
		SourceValue:     decimal.RequireFromString("25437.97"),
		TargetValue:     decimal.RequireFromString("25500"),
		Difference:      decimal.RequireFromString("-62.03"),
		ConfidenceScore: 94.9,
		MatchType:       domain.MatchTypeFuzzy,
		Status:          domain.MatchStatusProposed,
		Tier:            domain.TierPass,
		IsMaterial:      true,
		Explanation:     "Mortgage principal balance",
	}

	raw, err := json.Marshal(MapDomainMatchToApi(m))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	for _, key := range []string{"rule_code", "source_document", "target_document", "source_value",
		"target_value", "difference", "confidence_score", "match_type", "status", "explanation"} {
		assert.Contains(t, got, key)
	}
	assert.Equal(t, "25500.00", got["target_value"])
	assert.Equal(t, "-62.03", got["difference"])
	assert.NotContains(t, got, "error")
}

func TestMapDomainReportToApi(t *testing.T) {
	now := time.Now()
	msg := "boom"
	matches := []*domain.Match{
		{ID: "m1", MatchType: domain.MatchTypeExact, Tier: domain.TierPass},
		{ID: "m2", MatchType: domain.MatchTypeMissingTarget, Tier: domain.TierFail, IsMaterial: true, EvaluationError: "null amount"},
	}
	discrepancies := []*domain.Discrepancy{
		{ID: "d2", MatchID: "m2", Severity: domain.SeverityCritical, ResolutionStatus: domain.ResolutionOpen},
	}
	report := &domain.Report{
		Session: &domain.Session{ID: "s1", Status: domain.SessionStatusValidated, Error: &msg, CreatedAt: now,
			Override: &domain.Override{Actor: "lead", Justification: "ok"}},
		Matches:       matches,
		Discrepancies: discrepancies,
		Summary:       domain.Summarize(matches, discrepancies),
	}

	out := MapDomainReportToApi(report)
	assert.Equal(t, "VALIDATED", out.Session.Status)
	assert.Equal(t, "boom", out.Session.Error)
	assert.Equal(t, "lead", out.Session.Override.Actor)
	assert.Equal(t, 2, out.Summary.TotalMatches)
	assert.Equal(t, 1, out.Summary.ByTier["FAIL"])
	assert.Equal(t, 1, out.Summary.BySeverity["critical"])
	assert.Equal(t, 1, out.Summary.FailedRules)
	assert.Equal(t, 1, out.Summary.OpenDiscrepancies)
	assert.Len(t, out.Matches, 2)
	assert.Equal(t, "null amount", out.Matches[1].Error)
	assert.Nil(t, out.Discrepancies[0].ManualValue)
}

func TestMapDomainRuleToApi(t *testing.T) {
	rule := domain.MatchingRule{
		Code:                 "A-3.3",
		Relationship:         domain.RelationshipRatio,
		Source:               domain.FieldSpec{DocumentType: domain.DocumentRentRoll, AccountCodes: []string{"RR-OCC"}, DenominatorCodes: []string{"RR-UNIT"}},
		Target:               domain.FieldSpec{DocumentType: domain.DocumentBalanceSheet, AccountCodes: []string{"1010"}, PeriodOffset: -1},
		MaterialityThreshold: decimal.Zero,
	}
	out := MapDomainRuleToApi(rule)
	assert.Equal(t, "rent_roll[RR-OCC/RR-UNIT]", out.Source)
	assert.Equal(t, "balance_sheet[1010]@-1", out.Target)
	assert.Equal(t, "0.00", out.Threshold)
}
