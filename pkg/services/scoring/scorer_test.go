package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/matching"
)

func TestScorer_Score(t *testing.T) {
	s := NewScorer(DefaultConfig())
	reliable := &domain.HistoricalStat{Reliability: 0.95}

	tests := []struct {
		name   string
		result matching.Result
		gap    int
		stat   *domain.HistoricalStat
		want   float64
	}{
		{
			name:   "exact is always 100",
			result: matching.Result{Type: domain.MatchTypeExact, Raw: 1, AccountScore: 1, AmountScore: 1},
			want:   100,
		},
		{
			name:   "missing is always 0",
			result: matching.Result{Type: domain.MatchTypeMissingTarget},
			want:   0,
		},
		{
			name:   "inferred uses the raw score",
			result: matching.Result{Type: domain.MatchTypeInferred, Raw: 0.671, AccountScore: 1, AmountScore: 0.98},
			stat:   reliable,
			want:   67.1,
		},
		{
			name:   "fuzzy with baseline context",
			result: matching.Result{Type: domain.MatchTypeFuzzy, AccountScore: 1, AmountScore: 1},
			want:   95,
		},
		{
			name:   "fuzzy with reliable history",
			result: matching.Result{Type: domain.MatchTypeFuzzy, AccountScore: 1, AmountScore: 1},
			stat:   reliable,
			want:   100,
		},
		{
			name:   "one period apart",
			result: matching.Result{Type: domain.MatchTypeFuzzy, AccountScore: 1, AmountScore: 1},
			gap:    1,
			want:   92.5,
		},
		{
			name:   "gap beyond decay",
			result: matching.Result{Type: domain.MatchTypeCalculated, AccountScore: 0.5, AmountScore: 0.5},
			gap:    12,
			want:   45,
		},
		{
			name:   "material fuzzy mismatch",
			result: matching.Result{Type: domain.MatchTypeFuzzy, AccountScore: 1, AmountScore: 0.9975675},
			want:   94.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(&tt.result, tt.gap, tt.stat)
			assert.InDelta(t, tt.want, got, 0.01)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
		})
	}
}

func TestScorer_ScoreClamps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AccountWeight = 2
	s := NewScorer(cfg)

	got := s.Score(&matching.Result{Type: domain.MatchTypeFuzzy, AccountScore: 1, AmountScore: 1}, 0, nil)
	assert.Equal(t, 100.0, got)
}

func TestScorer_TierAndSeverity(t *testing.T) {
	s := NewScorer(DefaultConfig())

	assert.Equal(t, domain.TierPass, s.Tier(85))
	assert.Equal(t, domain.TierWarning, s.Tier(84.99))
	assert.Equal(t, domain.TierWarning, s.Tier(50))
	assert.Equal(t, domain.TierFail, s.Tier(49.99))

	assert.Equal(t, domain.SeverityCritical, s.Severity(domain.TierPass, true))
	assert.Equal(t, domain.SeverityCritical, s.Severity(domain.TierFail, true))
	assert.Equal(t, domain.SeverityHigh, s.Severity(domain.TierWarning, true))
	assert.Equal(t, domain.SeverityHigh, s.Severity(domain.TierFail, false))
	assert.Equal(t, domain.SeverityMedium, s.Severity(domain.TierWarning, false))
	assert.Equal(t, domain.SeverityLow, s.Severity(domain.TierPass, false))
}

func TestScorer_NeedsDiscrepancy(t *testing.T) {
	s := NewScorer(DefaultConfig())

	assert.False(t, s.NeedsDiscrepancy(&domain.Match{ConfidenceScore: 100}))
	assert.False(t, s.NeedsDiscrepancy(&domain.Match{ConfidenceScore: 95}))
	assert.True(t, s.NeedsDiscrepancy(&domain.Match{ConfidenceScore: 94.9, IsMaterial: true}))
	assert.True(t, s.NeedsDiscrepancy(&domain.Match{ConfidenceScore: 67.1}))
	assert.True(t, s.NeedsDiscrepancy(&domain.Match{ConfidenceScore: 0}))
}

func TestScorer_Health(t *testing.T) {
	s := NewScorer(DefaultConfig())

	assert.Equal(t, 100.0, s.Health(nil, nil))

	matches := []*domain.Match{
		{ID: "m1", Status: domain.MatchStatusProposed},
		{ID: "m2", Status: domain.MatchStatusProposed},
		{ID: "m3", Status: domain.MatchStatusProposed},
	}
	critical := &domain.Discrepancy{MatchID: "m2", Severity: domain.SeverityCritical, ResolutionStatus: domain.ResolutionOpen}
	medium := &domain.Discrepancy{MatchID: "m3", Severity: domain.SeverityMedium, ResolutionStatus: domain.ResolutionOpen}
	discrepancies := map[string]*domain.Discrepancy{"m2": critical, "m3": medium}

	// weights 1 + 4 + 2, only m1 passes
	initial := s.Health(matches, discrepancies)
	assert.InDelta(t, 14.29, initial, 0.001)

	critical.ResolutionStatus = domain.ResolutionResolved
	resolved := s.Health(matches, discrepancies)
	assert.InDelta(t, 71.43, resolved, 0.001)
	assert.GreaterOrEqual(t, resolved, initial)

	matches[0].Status = domain.MatchStatusRejected
	rejected := s.Health(matches, discrepancies)
	assert.InDelta(t, 57.14, rejected, 0.001)
	assert.LessOrEqual(t, rejected, resolved)

	medium.ResolutionStatus = domain.ResolutionResolved
	matches[0].Status = domain.MatchStatusApproved
	assert.Equal(t, 100.0, s.Health(matches, discrepancies))
}
