package sql

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	recon "github.com/de-tools/recon-atlas/pkg/store"
)

type fixture struct {
	mock  sqlmock.Sqlmock
	store recon.Store
}

func setupFixture(t *testing.T) *fixture {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewStore(db)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	return &fixture{mock: mock, store: store}
}

var sessionRowColumns = []string{
	"id", "property_id", "period_id", "status", "health_score", "options",
	"override_actor", "override_justification", "error",
	"created_at", "updated_at", "started_at", "run_finished_at", "completed_at",
}

func TestNewStore(t *testing.T) {
	t.Run("nil db", func(t *testing.T) {
		store, err := NewStore(nil)
		assert.Error(t, err)
		assert.Nil(t, store)
	})
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range bootQueries {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateSession(t *testing.T) {
	f := setupFixture(t)
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WithArgs("s1", "prop-001", "2025-06", "CREATED", 0.0,
			`{"features":{"fuzzy_matching":true,"inferred_matching":false},"workers":4}`,
			nil, nil, nil, now, now, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := f.store.CreateSession(context.Background(), &domain.Session{
		ID:         "s1",
		PropertyID: "prop-001",
		PeriodID:   "2025-06",
		Status:     domain.SessionStatusCreated,
		Options: domain.SessionOptions{
			Features: domain.FeatureFlags{FuzzyMatching: true},
			Workers:  4,
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
}

func TestStore_GetSession(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(sessionRowColumns).
			AddRow("s1", "prop-001", "2025-06", "VALIDATED", 71.43, `{"workers":2}`,
				"lead", "signed off", nil, now, now, now, now, nil)
		f.mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = ?")).
			WithArgs("s1").
			WillReturnRows(rows)

		session, err := f.store.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, domain.SessionStatusValidated, session.Status)
		assert.Equal(t, 71.43, session.HealthScore)
		assert.Equal(t, 2, session.Options.Workers)
		require.NotNil(t, session.Override)
		assert.Equal(t, "signed off", session.Override.Justification)
		require.NotNil(t, session.RunFinishedAt)
		assert.Nil(t, session.CompletedAt)
	})

	t.Run("not found", func(t *testing.T) {
		f.mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = ?")).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(sessionRowColumns))

		_, err := f.store.GetSession(ctx, "nope")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestStore_FindSessions(t *testing.T) {
	f := setupFixture(t)
	now := time.Now()

	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE property_id = ? AND period_id = ? AND status IN (?,?) ORDER BY created_at")).
		WithArgs("prop-001", "2025-06", "RUNNING", "CREATED").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("s1", "prop-001", "2025-06", "RUNNING", 0.0, `{}`, nil, nil, nil, now, now, now, nil, nil))

	sessions, err := f.store.FindSessions(context.Background(), "prop-001", "2025-06",
		domain.SessionStatusRunning, domain.SessionStatusCreated)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
}

func match(id, rule string) *domain.Match {
	return &domain.Match{
		ID:              id,
		SessionID:       "s1",
		RuleCode:        rule,
		SourceDocument:  domain.DocumentBalanceSheet,
		TargetDocument:  domain.DocumentMortgageStatement,
		SourceValue:     decimal.RequireFromString("25437.97"),
		TargetValue:     decimal.RequireFromString("25500.00"),
		Difference:      decimal.RequireFromString("-62.03"),
		IsMaterial:      true,
		ConfidenceScore: 94.9,
		MatchType:       domain.MatchTypeFuzzy,
		Status:          domain.MatchStatusProposed,
		Tier:            domain.TierPass,
		Explanation:     "Mortgage principal balance",
		CreatedAt:       time.Now(),
	}
}

func TestStore_SaveMatches(t *testing.T) {
	ctx := context.Background()

	t.Run("writes the whole set in one transaction", func(t *testing.T) {
		f := setupFixture(t)

		f.mock.ExpectBegin()
		f.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM matches WHERE session_id = ?")).
			WithArgs("s1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		prep := f.mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO matches"))
		prep.ExpectExec().
			WithArgs("m1", "s1", "A-2.1", "balance_sheet", "mortgage_statement",
				"25437.97", "25500", "-62.03", true, 94.9,
				"fuzzy", "proposed", "PASS", false, "Mortgage principal balance", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectCommit()

		err := f.store.SaveMatches(ctx, "s1", []*domain.Match{match("m1", "A-2.1"), match("m2", "A-2.2")})
		require.NoError(t, err)
	})

	t.Run("rolls back when one insert fails", func(t *testing.T) {
		f := setupFixture(t)

		f.mock.ExpectBegin()
		f.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM matches")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		prep := f.mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO matches"))
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WillReturnError(errors.New("disk full"))
		f.mock.ExpectRollback()

		err := f.store.SaveMatches(ctx, "s1", []*domain.Match{match("m1", "A-2.1"), match("m2", "A-2.2")})
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("refuses a second match set", func(t *testing.T) {
		f := setupFixture(t)

		f.mock.ExpectBegin()
		f.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM matches")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		f.mock.ExpectRollback()

		err := f.store.SaveMatches(ctx, "s1", []*domain.Match{match("m1", "A-2.1")})
		assert.Error(t, err)
	})
}

func TestStore_InTxJoinsOuterTransaction(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE matches SET status = ? WHERE id = ?")).
		WithArgs("approved", "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	err := f.store.InTx(ctx, func(ctx context.Context) error {
		if err := f.store.UpdateMatchStatus(ctx, "m1", domain.MatchStatusApproved); err != nil {
			return err
		}
		return f.store.InTx(ctx, func(ctx context.Context) error {
			return f.store.AppendAudit(ctx, &domain.AuditEntry{ID: "a1", SessionID: "s1", Action: "approve", Actor: "lead"})
		})
	})
	require.NoError(t, err)
}

func TestTxFromContext(t *testing.T) {
	_, ok := TxFromContext(context.Background())
	assert.False(t, ok)

	_, ok = TxFromContext(ContextWithTx(context.Background(), nil))
	assert.False(t, ok)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()
	tx, err := db.Begin()
	require.NoError(t, err)

	got, ok := TxFromContext(ContextWithTx(context.Background(), tx))
	require.True(t, ok)
	assert.Same(t, tx, got)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateMatchStatusNotFound(t *testing.T) {
	f := setupFixture(t)

	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE matches SET status = ?")).
		WithArgs("rejected", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := f.store.UpdateMatchStatus(context.Background(), "missing", domain.MatchStatusRejected)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_Discrepancies(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	now := time.Now()

	f.mock.ExpectBegin()
	prep := f.mock.ExpectPrepare(regexp.QuoteMeta("ON CONFLICT (match_id) DO NOTHING"))
	prep.ExpectExec().
		WithArgs("d1", "m1", "s1", "critical", "open", "", nil, "", nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	require.NoError(t, f.store.SaveDiscrepancies(ctx, []*domain.Discrepancy{{
		ID:               "d1",
		MatchID:          "m1",
		SessionID:        "s1",
		Severity:         domain.SeverityCritical,
		ResolutionStatus: domain.ResolutionOpen,
		CreatedAt:        now,
	}}))

	columns := []string{"id", "match_id", "session_id", "severity", "resolution_status", "resolution_action",
		"manual_value", "notes", "resolved_by", "resolved_at", "created_at"}
	f.mock.ExpectQuery(regexp.QuoteMeta("FROM discrepancies WHERE match_id = ?")).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("d1", "m1", "s1", "critical", "resolved", "manual_value", "25500.00", "per lender", "lead", now, now))

	d, err := f.store.GetDiscrepancyByMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionManualValue, d.ResolutionAction)
	assert.True(t, d.ManualValue.Valid)
	assert.Equal(t, "25500", d.ManualValue.Decimal.String())
	assert.Equal(t, "lead", d.ResolvedBy)
	assert.False(t, d.IsOpen())
}
