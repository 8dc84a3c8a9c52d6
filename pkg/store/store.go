package store

import (
	"context"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

// Store persists sessions, matches, discrepancies and the review audit trail.
// Lookups of unknown ids return an error wrapping domain.ErrNotFound.
type Store interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	UpdateSession(ctx context.Context, s *domain.Session) error
	// FindSessions lists the sessions of a key, optionally restricted to statuses.
	FindSessions(ctx context.Context, propertyID, periodID string, statuses ...domain.SessionStatus) ([]*domain.Session, error)

	// SaveMatches writes the whole match set of a session or nothing.
	SaveMatches(ctx context.Context, sessionID string, matches []*domain.Match) error
	ListMatches(ctx context.Context, sessionID string) ([]*domain.Match, error)
	GetMatch(ctx context.Context, id string) (*domain.Match, error)
	UpdateMatchStatus(ctx context.Context, id string, status domain.MatchStatus) error

	// SaveDiscrepancies inserts discrepancies, skipping matches that already have one.
	SaveDiscrepancies(ctx context.Context, discrepancies []*domain.Discrepancy) error
	ListDiscrepancies(ctx context.Context, sessionID string) ([]*domain.Discrepancy, error)
	GetDiscrepancy(ctx context.Context, id string) (*domain.Discrepancy, error)
	GetDiscrepancyByMatch(ctx context.Context, matchID string) (*domain.Discrepancy, error)
	UpdateDiscrepancy(ctx context.Context, d *domain.Discrepancy) error

	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error
	ListAudit(ctx context.Context, sessionID string) ([]*domain.AuditEntry, error)

	// InTx runs fn atomically; store calls made with the ctx passed to fn join the unit.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
