package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

func newSession(id string, status domain.SessionStatus) *domain.Session {
	now := time.Now()
	return &domain.Session{
		ID:         id,
		PropertyID: "prop-001",
		PeriodID:   "2025-06",
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newMatch(id, sessionID, rule string) *domain.Match {
	return &domain.Match{
		ID:          id,
		SessionID:   sessionID,
		RuleCode:    rule,
		SourceValue: decimal.NewFromInt(10),
		TargetValue: decimal.NewFromInt(10),
		Status:      domain.MatchStatusProposed,
	}
}

func TestStore_Sessions(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, newSession("s1", domain.SessionStatusCreated)))
	require.NoError(t, s.CreateSession(ctx, newSession("s2", domain.SessionStatusRunning)))
	assert.Error(t, s.CreateSession(ctx, newSession("s1", domain.SessionStatusCreated)))

	running, err := s.FindSessions(ctx, "prop-001", "2025-06", domain.SessionStatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "s2", running[0].ID)

	all, err := s.FindSessions(ctx, "prop-001", "2025-06")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.GetSession(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_SaveMatchesIsAllOrNothing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSession("s1", domain.SessionStatusRunning)))

	err := s.SaveMatches(ctx, "s1", []*domain.Match{
		newMatch("m1", "s1", "A-1.1"),
		newMatch("m2", "other", "A-1.2"),
	})
	assert.Error(t, err)

	matches, err := s.ListMatches(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, s.SaveMatches(ctx, "s1", []*domain.Match{
		newMatch("m2", "s1", "A-1.2"),
		newMatch("m1", "s1", "A-1.1"),
	}))
	matches, err = s.ListMatches(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "A-1.1", matches[0].RuleCode)

	assert.Error(t, s.SaveMatches(ctx, "s1", []*domain.Match{newMatch("m3", "s1", "A-1.3")}))
}

func TestStore_SaveDiscrepanciesSkipsExisting(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	d := &domain.Discrepancy{ID: "d1", MatchID: "m1", SessionID: "s1", Severity: domain.SeverityHigh, ResolutionStatus: domain.ResolutionOpen}
	require.NoError(t, s.SaveDiscrepancies(ctx, []*domain.Discrepancy{d}))
	require.NoError(t, s.SaveDiscrepancies(ctx, []*domain.Discrepancy{
		{ID: "d2", MatchID: "m1", SessionID: "s1", Severity: domain.SeverityLow},
	}))

	list, err := s.ListDiscrepancies(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "d1", list[0].ID)

	byMatch, err := s.GetDiscrepancyByMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityHigh, byMatch.Severity)
}

func TestStore_InTxRollsBack(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSession("s1", domain.SessionStatusRunning)))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context) error {
		if err := s.SaveMatches(ctx, "s1", []*domain.Match{newMatch("m1", "s1", "A-1.1")}); err != nil {
			return err
		}
		session, err := s.GetSession(ctx, "s1")
		if err != nil {
			return err
		}
		session.Status = domain.SessionStatusValidated
		if err := s.UpdateSession(ctx, session); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	matches, err := s.ListMatches(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, matches)

	session, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusRunning, session.Status)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context) error {
		return s.AppendAudit(ctx, &domain.AuditEntry{ID: "a1", SessionID: "s1", Action: "approve"})
	}))
	entries, err := s.ListAudit(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
