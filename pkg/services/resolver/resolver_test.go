package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/scoring"
	"github.com/de-tools/recon-atlas/pkg/store/memory"
)

type fixture struct {
	resolver *DefaultResolver
	store    *memory.Store
}

// setup stores a VALIDATED session with one passing match, one critical and one
// high discrepancy. Initial health is 1/8.
func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.NewStore()
	now := time.Date(2025, 7, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.CreateSession(ctx, &domain.Session{
		ID:          "s1",
		PropertyID:  "prop-001",
		PeriodID:    "2025-06",
		Status:      domain.SessionStatusValidated,
		HealthScore: 12.5,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
	require.NoError(t, st.SaveMatches(ctx, "s1", []*domain.Match{
		{ID: "m1", SessionID: "s1", RuleCode: "A-1.1", MatchType: domain.MatchTypeExact,
			ConfidenceScore: 100, Tier: domain.TierPass, Status: domain.MatchStatusProposed, CreatedAt: now},
		{ID: "m2", SessionID: "s1", RuleCode: "A-2.1", MatchType: domain.MatchTypeFuzzy,
			SourceValue: decimal.RequireFromString("25437.97"), TargetValue: decimal.RequireFromString("25500.00"),
			Difference: decimal.RequireFromString("-62.03"), IsMaterial: true,
			ConfidenceScore: 94.9, Tier: domain.TierPass, Status: domain.MatchStatusProposed, CreatedAt: now},
		{ID: "m3", SessionID: "s1", RuleCode: "A-3.2", MatchType: domain.MatchTypeMissingSource,
			Tier: domain.TierFail, Status: domain.MatchStatusProposed, CreatedAt: now},
	}))
	require.NoError(t, st.SaveDiscrepancies(ctx, []*domain.Discrepancy{
		{ID: "d2", MatchID: "m2", SessionID: "s1", Severity: domain.SeverityCritical,
			ResolutionStatus: domain.ResolutionOpen, CreatedAt: now},
		{ID: "d3", MatchID: "m3", SessionID: "s1", Severity: domain.SeverityHigh,
			ResolutionStatus: domain.ResolutionOpen, CreatedAt: now},
	}))

	r, err := NewResolver(st, scoring.NewScorer(scoring.DefaultConfig()))
	require.NoError(t, err)
	return &fixture{resolver: r, store: st}
}

func (f *fixture) health(t *testing.T) float64 {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	return s.HealthScore
}

func (f *fixture) auditCount(t *testing.T) int {
	t.Helper()
	entries, err := f.resolver.History(context.Background(), "s1")
	require.NoError(t, err)
	return len(entries)
}

func TestNewResolver(t *testing.T) {
	_, err := NewResolver(nil, scoring.NewScorer(scoring.DefaultConfig()))
	assert.Error(t, err)
	_, err = NewResolver(memory.NewStore(), nil)
	assert.Error(t, err)
}

func TestReviewFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	reviewer := Actor{Name: "lead", Notes: "lender statement checked"}

	m, err := f.resolver.ApproveMatch(ctx, "m2", reviewer)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusApproved, m.Status)
	assert.Equal(t, 62.5, f.health(t))

	d, err := f.store.GetDiscrepancy(ctx, "d2")
	require.NoError(t, err)
	assert.False(t, d.IsOpen())
	assert.Equal(t, domain.ActionAccepted, d.ResolutionAction)
	assert.Equal(t, "lead", d.ResolvedBy)
	assert.Equal(t, 1, f.auditCount(t))

	t.Run("approving twice is a no-op", func(t *testing.T) {
		_, err := f.resolver.ApproveMatch(ctx, "m2", reviewer)
		require.NoError(t, err)
		assert.Equal(t, 62.5, f.health(t))
		assert.Equal(t, 1, f.auditCount(t))
	})

	t.Run("reject lowers health", func(t *testing.T) {
		before := f.health(t)
		m, err := f.resolver.RejectMatch(ctx, "m1", Actor{Name: "lead"})
		require.NoError(t, err)
		assert.Equal(t, domain.MatchStatusRejected, m.Status)
		assert.LessOrEqual(t, f.health(t), before)
		assert.Equal(t, 50.0, f.health(t))

		_, err = f.resolver.RejectMatch(ctx, "m1", Actor{Name: "lead"})
		require.NoError(t, err)
		assert.Equal(t, 2, f.auditCount(t))
	})

	t.Run("ignore resolves the discrepancy", func(t *testing.T) {
		before := f.health(t)
		d, err := f.resolver.ResolveDiscrepancy(ctx, "d3", Resolution{
			Action: domain.ActionIgnore,
			Actor:  "lead",
			Notes:  "rent roll not issued for this property",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ActionIgnore, d.ResolutionAction)
		assert.GreaterOrEqual(t, f.health(t), before)
		assert.Equal(t, 87.5, f.health(t))

		_, err = f.resolver.ResolveDiscrepancy(ctx, "d3", Resolution{Action: domain.ActionIgnore, Actor: "lead"})
		require.NoError(t, err)
		assert.Equal(t, 3, f.auditCount(t))
	})

	t.Run("approving a rejected match raises health", func(t *testing.T) {
		before := f.health(t)
		_, err := f.resolver.ApproveMatch(ctx, "m1", Actor{Name: "lead"})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, f.health(t), before)
		assert.Equal(t, 100.0, f.health(t))
	})

	entries, err := f.resolver.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "approve", entries[0].Action)
	assert.Equal(t, "resolve:ignore", entries[2].Action)
	assert.Equal(t, domain.AuditEntityDiscrepancy, entries[2].EntityType)
}

func TestResolveDiscrepancy_ManualValue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.resolver.ResolveDiscrepancy(ctx, "d2", Resolution{Action: domain.ActionManualValue, Actor: "lead"})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	value := decimal.NewNullDecimal(decimal.RequireFromString("25500.00"))
	d, err := f.resolver.ResolveDiscrepancy(ctx, "d2", Resolution{Action: domain.ActionManualValue, ManualValue: value, Actor: "lead"})
	require.NoError(t, err)
	assert.Equal(t, "25500", d.ManualValue.Decimal.String())

	entries, err := f.resolver.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "value 25500", entries[0].Notes)

	_, err = f.resolver.ResolveDiscrepancy(ctx, "d2", Resolution{Action: domain.ActionManualValue, ManualValue: value, Actor: "lead"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.auditCount(t))

	other := decimal.NewNullDecimal(decimal.RequireFromString("25437.97"))
	_, err = f.resolver.ResolveDiscrepancy(ctx, "d2", Resolution{Action: domain.ActionManualValue, ManualValue: other, Actor: "lead"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.auditCount(t))
}

func TestResolution_Validate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		res  Resolution
	}{
		{"accepted is reserved for approvals", Resolution{Action: domain.ActionAccepted, Actor: "lead"}},
		{"empty action", Resolution{Actor: "lead"}},
		{"value without manual action", Resolution{Action: domain.ActionAcceptSource, Actor: "lead",
			ManualValue: decimal.NewNullDecimal(decimal.NewFromInt(1))}},
		{"missing actor", Resolution{Action: domain.ActionAcceptTarget}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.resolver.ResolveDiscrepancy(ctx, "d2", tt.res)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		})
	}

	_, err := f.resolver.ApproveMatch(ctx, "m2", Actor{})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = f.resolver.ApproveMatch(ctx, "nope", Actor{Name: "lead"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestBulkResolve(t *testing.T) {
	ctx := context.Background()
	accept := Resolution{Action: domain.ActionAcceptSource, Actor: "lead", Notes: "ledger is authoritative"}

	t.Run("an unknown id aborts the whole batch", func(t *testing.T) {
		f := setup(t)
		_, err := f.resolver.BulkResolve(ctx, "s1", []string{"d2", "missing"}, accept)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		d, err := f.store.GetDiscrepancy(ctx, "d2")
		require.NoError(t, err)
		assert.True(t, d.IsOpen())
		assert.Equal(t, 12.5, f.health(t))
		assert.Equal(t, 0, f.auditCount(t))
	})

	t.Run("resolves every listed discrepancy", func(t *testing.T) {
		f := setup(t)
		n, err := f.resolver.BulkResolve(ctx, "s1", []string{"d2", "d3", "d2"}, accept)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 100.0, f.health(t))
		assert.Equal(t, 2, f.auditCount(t))

		n, err = f.resolver.BulkResolve(ctx, "s1", []string{"d2", "d3"}, accept)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 2, f.auditCount(t))
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		f := setup(t)
		_, err := f.resolver.BulkResolve(ctx, "s1", nil, accept)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestRequiresValidatedSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	s, err := f.store.GetSession(ctx, "s1")
	require.NoError(t, err)
	s.Status = domain.SessionStatusCompleted
	require.NoError(t, f.store.UpdateSession(ctx, s))

	var transition *domain.InvalidTransitionError
	_, err = f.resolver.ApproveMatch(ctx, "m2", Actor{Name: "lead"})
	require.True(t, errors.As(err, &transition))
	assert.Equal(t, "approve", transition.Operation)

	_, err = f.resolver.ResolveDiscrepancy(ctx, "d2", Resolution{Action: domain.ActionIgnore, Actor: "lead"})
	assert.True(t, errors.As(err, &transition))

	_, err = f.resolver.BulkResolve(ctx, "s1", []string{"d2"}, Resolution{Action: domain.ActionIgnore, Actor: "lead"})
	assert.True(t, errors.As(err, &transition))
}
