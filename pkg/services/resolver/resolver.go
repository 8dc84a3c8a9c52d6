package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/scoring"
	"github.com/de-tools/recon-atlas/pkg/store"
)

// Resolver applies reviewer decisions to the matches and discrepancies of a
// VALIDATED session. Replaying a decision that is already in effect succeeds
// without writing anything.
type Resolver interface {
	ApproveMatch(ctx context.Context, matchID string, actor Actor) (*domain.Match, error)
	RejectMatch(ctx context.Context, matchID string, actor Actor) (*domain.Match, error)
	ResolveDiscrepancy(ctx context.Context, discrepancyID string, resolution Resolution) (*domain.Discrepancy, error)
	BulkResolve(ctx context.Context, sessionID string, discrepancyIDs []string, resolution Resolution) (int, error)
	History(ctx context.Context, sessionID string) ([]*domain.AuditEntry, error)
}

type Actor struct {
	Name  string
	Notes string
}

type Resolution struct {
	Action      domain.ResolutionAction
	ManualValue decimal.NullDecimal
	Notes       string
	Actor       string
}

func (r Resolution) validate() error {
	if !r.Action.Resolvable() {
		return fmt.Errorf("%w: unsupported resolution action %q", domain.ErrInvalidInput, r.Action)
	}
	if r.Action == domain.ActionManualValue && !r.ManualValue.Valid {
		return fmt.Errorf("%w: manual_value resolution needs a value", domain.ErrInvalidInput)
	}
	if r.Action != domain.ActionManualValue && r.ManualValue.Valid {
		return fmt.Errorf("%w: a value is only accepted with manual_value", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(r.Actor) == "" {
		return fmt.Errorf("%w: actor is required", domain.ErrInvalidInput)
	}
	return nil
}

type DefaultResolver struct {
	store  store.Store
	scorer *scoring.Scorer
	now    func() time.Time
}

func NewResolver(st store.Store, scorer *scoring.Scorer) (*DefaultResolver, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	return &DefaultResolver{
		store:  st,
		scorer: scorer,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *DefaultResolver) validatedSession(ctx context.Context, id, operation string) (*domain.Session, error) {
	session, err := r.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionStatusValidated {
		return nil, &domain.InvalidTransitionError{
			SessionID: id,
			From:      session.Status,
			Operation: operation,
			Reason:    "session is not under review",
		}
	}
	return session, nil
}

// ApproveMatch accepts a match. An open discrepancy on it is resolved as accepted.
func (r *DefaultResolver) ApproveMatch(ctx context.Context, matchID string, actor Actor) (*domain.Match, error) {
	return r.setMatchStatus(ctx, matchID, actor, domain.MatchStatusApproved)
}

// RejectMatch marks a match as wrong. Its discrepancy, if any, is left as is.
func (r *DefaultResolver) RejectMatch(ctx context.Context, matchID string, actor Actor) (*domain.Match, error) {
	return r.setMatchStatus(ctx, matchID, actor, domain.MatchStatusRejected)
}

func (r *DefaultResolver) setMatchStatus(ctx context.Context, matchID string, actor Actor, status domain.MatchStatus) (*domain.Match, error) {
	operation := "approve"
	if status == domain.MatchStatusRejected {
		operation = "reject"
	}
	if strings.TrimSpace(actor.Name) == "" {
		return nil, fmt.Errorf("%w: actor is required", domain.ErrInvalidInput)
	}

	match, err := r.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	session, err := r.validatedSession(ctx, match.SessionID, operation)
	if err != nil {
		return nil, err
	}

	discrepancy, err := r.store.GetDiscrepancyByMatch(ctx, matchID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	resolveOpen := status == domain.MatchStatusApproved && discrepancy != nil && discrepancy.IsOpen()

	if match.Status == status && !resolveOpen {
		zerolog.Ctx(ctx).Debug().Str("match_id", matchID).Str("status", string(status)).Msg("match already in requested state")
		return match, nil
	}

	err = r.store.InTx(ctx, func(ctx context.Context) error {
		if match.Status != status {
			if err := r.store.UpdateMatchStatus(ctx, matchID, status); err != nil {
				return err
			}
			match.Status = status
		}
		if resolveOpen {
			now := r.now()
			discrepancy.ResolutionStatus = domain.ResolutionResolved
			discrepancy.ResolutionAction = domain.ActionAccepted
			discrepancy.ResolvedBy = actor.Name
			discrepancy.ResolvedAt = &now
			discrepancy.Notes = actor.Notes
			if err := r.store.UpdateDiscrepancy(ctx, discrepancy); err != nil {
				return err
			}
		}
		if err := r.audit(ctx, session.ID, domain.AuditEntityMatch, matchID, operation, actor.Name, actor.Notes); err != nil {
			return err
		}
		return r.refreshHealth(ctx, session)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to %s match %s: %w", operation, matchID, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", session.ID).
		Str("match_id", matchID).
		Str("actor", actor.Name).
		Float64("health", session.HealthScore).
		Msgf("match %s", status)
	return match, nil
}

func (r *DefaultResolver) ResolveDiscrepancy(ctx context.Context, discrepancyID string, resolution Resolution) (*domain.Discrepancy, error) {
	if err := resolution.validate(); err != nil {
		return nil, err
	}

	d, err := r.store.GetDiscrepancy(ctx, discrepancyID)
	if err != nil {
		return nil, err
	}
	session, err := r.validatedSession(ctx, d.SessionID, "resolve")
	if err != nil {
		return nil, err
	}

	if !needsChange(d, resolution) {
		return d, nil
	}

	err = r.store.InTx(ctx, func(ctx context.Context) error {
		if err := r.apply(ctx, d, resolution); err != nil {
			return err
		}
		return r.refreshHealth(ctx, session)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve discrepancy %s: %w", discrepancyID, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", session.ID).
		Str("discrepancy_id", discrepancyID).
		Str("action", string(resolution.Action)).
		Float64("health", session.HealthScore).
		Msg("discrepancy resolved")
	return d, nil
}

// BulkResolve applies one resolution to many discrepancies of a session. Every
// id is checked before anything is written; the writes share one transaction.
// It returns how many discrepancies actually changed.
func (r *DefaultResolver) BulkResolve(ctx context.Context, sessionID string, discrepancyIDs []string, resolution Resolution) (int, error) {
	if err := resolution.validate(); err != nil {
		return 0, err
	}
	if len(discrepancyIDs) == 0 {
		return 0, fmt.Errorf("%w: no discrepancies given", domain.ErrInvalidInput)
	}
	session, err := r.validatedSession(ctx, sessionID, "resolve")
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(discrepancyIDs))
	var pending []*domain.Discrepancy
	for _, id := range discrepancyIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		d, err := r.store.GetDiscrepancy(ctx, id)
		if err != nil {
			return 0, err
		}
		if d.SessionID != sessionID {
			return 0, fmt.Errorf("%w: discrepancy %s belongs to session %s", domain.ErrInvalidInput, id, d.SessionID)
		}
		if needsChange(d, resolution) {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	err = r.store.InTx(ctx, func(ctx context.Context) error {
		for _, d := range pending {
			if err := r.apply(ctx, d, resolution); err != nil {
				return err
			}
		}
		return r.refreshHealth(ctx, session)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to resolve discrepancies: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Int("resolved", len(pending)).
		Str("action", string(resolution.Action)).
		Float64("health", session.HealthScore).
		Msg("bulk resolution applied")
	return len(pending), nil
}

func (r *DefaultResolver) History(ctx context.Context, sessionID string) ([]*domain.AuditEntry, error) {
	if _, err := r.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return r.store.ListAudit(ctx, sessionID)
}

func needsChange(d *domain.Discrepancy, res Resolution) bool {
	if d.IsOpen() || d.ResolutionAction != res.Action {
		return true
	}
	if res.Action == domain.ActionManualValue {
		return !d.ManualValue.Valid || !d.ManualValue.Decimal.Equal(res.ManualValue.Decimal)
	}
	return false
}

func (r *DefaultResolver) apply(ctx context.Context, d *domain.Discrepancy, res Resolution) error {
	now := r.now()
	d.ResolutionStatus = domain.ResolutionResolved
	d.ResolutionAction = res.Action
	d.ManualValue = res.ManualValue
	d.Notes = res.Notes
	d.ResolvedBy = res.Actor
	d.ResolvedAt = &now
	if err := r.store.UpdateDiscrepancy(ctx, d); err != nil {
		return err
	}

	notes := res.Notes
	if res.Action == domain.ActionManualValue {
		notes = strings.TrimSpace(fmt.Sprintf("value %s %s", res.ManualValue.Decimal.String(), notes))
	}
	return r.audit(ctx, d.SessionID, domain.AuditEntityDiscrepancy, d.ID, "resolve:"+string(res.Action), res.Actor, notes)
}

func (r *DefaultResolver) audit(
	ctx context.Context,
	sessionID string,
	entity domain.AuditEntityType,
	entityID, action, actor, notes string,
) error {
	return r.store.AppendAudit(ctx, &domain.AuditEntry{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		EntityType: entity,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Notes:      notes,
		CreatedAt:  r.now(),
	})
}

// refreshHealth recomputes the session health from the stored state and saves it.
func (r *DefaultResolver) refreshHealth(ctx context.Context, session *domain.Session) error {
	matches, err := r.store.ListMatches(ctx, session.ID)
	if err != nil {
		return err
	}
	list, err := r.store.ListDiscrepancies(ctx, session.ID)
	if err != nil {
		return err
	}
	byMatch := make(map[string]*domain.Discrepancy, len(list))
	for _, d := range list {
		byMatch[d.MatchID] = d
	}

	session.HealthScore = r.scorer.Health(matches, byMatch)
	session.UpdatedAt = r.now()
	return r.store.UpdateSession(ctx, session)
}
