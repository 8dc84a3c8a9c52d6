package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/de-tools/recon-atlas/pkg/adapters"
	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/models/store"
	recon "github.com/de-tools/recon-atlas/pkg/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type sqlStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (recon.Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &sqlStore{db: db}, nil
}

// conn returns the transaction carried by ctx, or the pool.
func (s *sqlStore) conn(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.db
}

func (s *sqlStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zerolog.Ctx(ctx).Warn().Err(rbErr).Msg("failed to roll back transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const sessionColumns = `id, property_id, period_id, status, health_score, options,
	override_actor, override_justification, error,
	created_at, updated_at, started_at, run_finished_at, completed_at`

func (s *sqlStore) CreateSession(ctx context.Context, session *domain.Session) error {
	row, err := adapters.MapDomainSessionToStore(session)
	if err != nil {
		return err
	}
	query := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.conn(ctx).ExecContext(ctx, query,
		row.ID, row.PropertyID, row.PeriodID, row.Status, row.HealthScore, row.Options,
		row.OverrideActor, row.OverrideJustification, row.Error,
		row.CreatedAt, row.UpdatedAt, row.StartedAt, row.RunFinishedAt, row.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *sqlStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	row, err := scanSession(s.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return adapters.MapStoreSessionToDomain(row)
}

func (s *sqlStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	row, err := adapters.MapDomainSessionToStore(session)
	if err != nil {
		return err
	}
	query := `
		UPDATE sessions SET
			status = ?, health_score = ?, options = ?,
			override_actor = ?, override_justification = ?, error = ?,
			updated_at = ?, started_at = ?, run_finished_at = ?, completed_at = ?
		WHERE id = ?`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		row.Status, row.HealthScore, row.Options,
		row.OverrideActor, row.OverrideJustification, row.Error,
		row.UpdatedAt, row.StartedAt, row.RunFinishedAt, row.CompletedAt,
		row.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return expectAffected(res, "session", session.ID)
}

func (s *sqlStore) FindSessions(ctx context.Context, propertyID, periodID string, statuses ...domain.SessionStatus) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE property_id = ? AND period_id = ?`
	args := []any{propertyID, periodID}
	if len(statuses) > 0 {
		placeholders := make([]string, 0, len(statuses))
		for _, status := range statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(status))
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY created_at"

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Session, 0)
	for rows.Next() {
		row, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session, err := adapters.MapStoreSessionToDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*store.Session, error) {
	var row store.Session
	err := sc.Scan(
		&row.ID, &row.PropertyID, &row.PeriodID, &row.Status, &row.HealthScore, &row.Options,
		&row.OverrideActor, &row.OverrideJustification, &row.Error,
		&row.CreatedAt, &row.UpdatedAt, &row.StartedAt, &row.RunFinishedAt, &row.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

const matchColumns = `id, session_id, rule_code, source_document, target_document,
	source_value, target_value, difference, is_material, confidence_score,
	match_type, status, tier, requires_review, explanation, evaluation_error, created_at`

func (s *sqlStore) SaveMatches(ctx context.Context, sessionID string, matches []*domain.Match) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		conn := s.conn(ctx)

		var existing int
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches WHERE session_id = ?`, sessionID).Scan(&existing); err != nil {
			return fmt.Errorf("count matches: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("session %s already has %d matches", sessionID, existing)
		}
		if len(matches) == 0 {
			return nil
		}

		stmt, err := conn.PrepareContext(ctx, `INSERT INTO matches (`+matchColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, m := range matches {
			if m.SessionID != sessionID {
				return fmt.Errorf("match %s belongs to session %s, not %s", m.ID, m.SessionID, sessionID)
			}
			row := adapters.MapDomainMatchToStore(m)
			_, err := stmt.ExecContext(ctx,
				row.ID, row.SessionID, row.RuleCode, row.SourceDocument, row.TargetDocument,
				row.SourceValue, row.TargetValue, row.Difference, row.IsMaterial, row.ConfidenceScore,
				row.MatchType, row.Status, row.Tier, row.RequiresReview, row.Explanation, row.EvaluationError, row.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert match %s: %w", row.RuleCode, err)
			}
		}
		return nil
	})
}

func (s *sqlStore) ListMatches(ctx context.Context, sessionID string) ([]*domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE session_id = ? ORDER BY rule_code`
	rows, err := s.conn(ctx).QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Match, 0)
	for rows.Next() {
		row, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m, err := adapters.MapStoreMatchToDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = ?`
	row, err := scanMatch(s.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	return adapters.MapStoreMatchToDomain(row)
}

func (s *sqlStore) UpdateMatchStatus(ctx context.Context, id string, status domain.MatchStatus) error {
	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE matches SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}
	return expectAffected(res, "match", id)
}

func scanMatch(sc scanner) (*store.Match, error) {
	var row store.Match
	err := sc.Scan(
		&row.ID, &row.SessionID, &row.RuleCode, &row.SourceDocument, &row.TargetDocument,
		&row.SourceValue, &row.TargetValue, &row.Difference, &row.IsMaterial, &row.ConfidenceScore,
		&row.MatchType, &row.Status, &row.Tier, &row.RequiresReview, &row.Explanation, &row.EvaluationError, &row.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

const discrepancyColumns = `id, match_id, session_id, severity, resolution_status, resolution_action,
	manual_value, notes, resolved_by, resolved_at, created_at`

func (s *sqlStore) SaveDiscrepancies(ctx context.Context, discrepancies []*domain.Discrepancy) error {
	if len(discrepancies) == 0 {
		return nil
	}
	return s.InTx(ctx, func(ctx context.Context) error {
		stmt, err := s.conn(ctx).PrepareContext(ctx, `INSERT INTO discrepancies (`+discrepancyColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (match_id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, d := range discrepancies {
			row := adapters.MapDomainDiscrepancyToStore(d)
			_, err := stmt.ExecContext(ctx,
				row.ID, row.MatchID, row.SessionID, row.Severity, row.ResolutionStatus, row.ResolutionAction,
				row.ManualValue, row.Notes, row.ResolvedBy, row.ResolvedAt, row.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert discrepancy for match %s: %w", row.MatchID, err)
			}
		}
		return nil
	})
}

func (s *sqlStore) ListDiscrepancies(ctx context.Context, sessionID string) ([]*domain.Discrepancy, error) {
	query := `SELECT ` + discrepancyColumns + ` FROM discrepancies WHERE session_id = ? ORDER BY created_at, id`
	rows, err := s.conn(ctx).QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query discrepancies: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Discrepancy, 0)
	for rows.Next() {
		row, err := scanDiscrepancy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discrepancy: %w", err)
		}
		d, err := adapters.MapStoreDiscrepancyToDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetDiscrepancy(ctx context.Context, id string) (*domain.Discrepancy, error) {
	return s.getDiscrepancy(ctx, "id", id)
}

func (s *sqlStore) GetDiscrepancyByMatch(ctx context.Context, matchID string) (*domain.Discrepancy, error) {
	return s.getDiscrepancy(ctx, "match_id", matchID)
}

func (s *sqlStore) getDiscrepancy(ctx context.Context, column, value string) (*domain.Discrepancy, error) {
	query := fmt.Sprintf(`SELECT %s FROM discrepancies WHERE %s = ?`, discrepancyColumns, column)
	row, err := scanDiscrepancy(s.conn(ctx).QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("discrepancy %s=%s: %w", column, value, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get discrepancy: %w", err)
	}
	return adapters.MapStoreDiscrepancyToDomain(row)
}

func (s *sqlStore) UpdateDiscrepancy(ctx context.Context, d *domain.Discrepancy) error {
	row := adapters.MapDomainDiscrepancyToStore(d)
	query := `
		UPDATE discrepancies SET
			severity = ?, resolution_status = ?, resolution_action = ?,
			manual_value = ?, notes = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ?`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		row.Severity, row.ResolutionStatus, row.ResolutionAction,
		row.ManualValue, row.Notes, row.ResolvedBy, row.ResolvedAt,
		row.ID,
	)
	if err != nil {
		return fmt.Errorf("update discrepancy: %w", err)
	}
	return expectAffected(res, "discrepancy", d.ID)
}

func scanDiscrepancy(sc scanner) (*store.Discrepancy, error) {
	var row store.Discrepancy
	err := sc.Scan(
		&row.ID, &row.MatchID, &row.SessionID, &row.Severity, &row.ResolutionStatus, &row.ResolutionAction,
		&row.ManualValue, &row.Notes, &row.ResolvedBy, &row.ResolvedAt, &row.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *sqlStore) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	row := adapters.MapDomainAuditToStore(entry)
	query := `
		INSERT INTO audit_entries (id, session_id, entity_type, entity_id, action, actor, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		row.ID, row.SessionID, row.EntityType, row.EntityID, row.Action, row.Actor, row.Notes, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *sqlStore) ListAudit(ctx context.Context, sessionID string) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, session_id, entity_type, entity_id, action, actor, notes, created_at
		FROM audit_entries
		WHERE session_id = ?
		ORDER BY created_at, id`
	rows, err := s.conn(ctx).QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		var row store.AuditEntry
		if err := rows.Scan(&row.ID, &row.SessionID, &row.EntityType, &row.EntityID, &row.Action, &row.Actor, &row.Notes, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, adapters.MapStoreAuditToDomain(&row))
	}
	return out, rows.Err()
}

func expectAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}
	return nil
}
