package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/store"
)

type txKey struct{}

type snapshot struct {
	sessions      map[string]domain.Session
	matches       map[string]domain.Match
	discrepancies map[string]domain.Discrepancy
	audit         []domain.AuditEntry
}

// Store keeps everything in maps behind one mutex. InTx holds the lock for the
// whole unit and restores a snapshot when fn fails.
type Store struct {
	mu sync.Mutex
	snapshot
	sessionMatches map[string][]string
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		snapshot: snapshot{
			sessions:      make(map[string]domain.Session),
			matches:       make(map[string]domain.Match),
			discrepancies: make(map[string]domain.Discrepancy),
		},
		sessionMatches: make(map[string][]string),
	}
}

// lock acquires the mutex unless ctx already runs inside InTx.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.copySnapshot()
	savedIndex := make(map[string][]string, len(s.sessionMatches))
	for k, v := range s.sessionMatches {
		savedIndex[k] = v
	}

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.snapshot = saved
		s.sessionMatches = savedIndex
		return err
	}
	return nil
}

func (s *Store) copySnapshot() snapshot {
	out := snapshot{
		sessions:      make(map[string]domain.Session, len(s.sessions)),
		matches:       make(map[string]domain.Match, len(s.matches)),
		discrepancies: make(map[string]domain.Discrepancy, len(s.discrepancies)),
		audit:         append([]domain.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	for k, v := range s.matches {
		out.matches[k] = v
	}
	for k, v := range s.discrepancies {
		out.discrepancies[k] = v
	}
	return out
}

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	defer s.lock(ctx)()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	defer s.lock(ctx)()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return &session, nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	defer s.lock(ctx)()

	if _, ok := s.sessions[session.ID]; !ok {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrNotFound)
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *Store) FindSessions(ctx context.Context, propertyID, periodID string, statuses ...domain.SessionStatus) ([]*domain.Session, error) {
	defer s.lock(ctx)()

	out := make([]*domain.Session, 0)
	for _, session := range s.sessions {
		if session.PropertyID != propertyID || session.PeriodID != periodID {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, session.Status) {
			continue
		}
		session := session
		out = append(out, &session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func hasStatus(statuses []domain.SessionStatus, status domain.SessionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *Store) SaveMatches(ctx context.Context, sessionID string, matches []*domain.Match) error {
	defer s.lock(ctx)()

	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if len(s.sessionMatches[sessionID]) > 0 {
		return fmt.Errorf("session %s already has matches", sessionID)
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.SessionID != sessionID {
			return fmt.Errorf("match %s belongs to session %s, not %s", m.ID, m.SessionID, sessionID)
		}
		if _, exists := s.matches[m.ID]; exists {
			return fmt.Errorf("match %s already exists", m.ID)
		}
		ids = append(ids, m.ID)
	}
	for _, m := range matches {
		s.matches[m.ID] = *m
	}
	s.sessionMatches[sessionID] = ids
	return nil
}

func (s *Store) ListMatches(ctx context.Context, sessionID string) ([]*domain.Match, error) {
	defer s.lock(ctx)()

	out := make([]*domain.Match, 0, len(s.sessionMatches[sessionID]))
	for _, id := range s.sessionMatches[sessionID] {
		m := s.matches[id]
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleCode < out[j].RuleCode })
	return out, nil
}

func (s *Store) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	defer s.lock(ctx)()

	m, ok := s.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, domain.ErrNotFound)
	}
	return &m, nil
}

func (s *Store) UpdateMatchStatus(ctx context.Context, id string, status domain.MatchStatus) error {
	defer s.lock(ctx)()

	m, ok := s.matches[id]
	if !ok {
		return fmt.Errorf("match %s: %w", id, domain.ErrNotFound)
	}
	m.Status = status
	s.matches[id] = m
	return nil
}

func (s *Store) SaveDiscrepancies(ctx context.Context, discrepancies []*domain.Discrepancy) error {
	defer s.lock(ctx)()

	byMatch := make(map[string]bool, len(s.discrepancies))
	for _, d := range s.discrepancies {
		byMatch[d.MatchID] = true
	}
	for _, d := range discrepancies {
		if byMatch[d.MatchID] {
			continue
		}
		s.discrepancies[d.ID] = *d
		byMatch[d.MatchID] = true
	}
	return nil
}

func (s *Store) ListDiscrepancies(ctx context.Context, sessionID string) ([]*domain.Discrepancy, error) {
	defer s.lock(ctx)()

	out := make([]*domain.Discrepancy, 0)
	for _, d := range s.discrepancies {
		if d.SessionID == sessionID {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetDiscrepancy(ctx context.Context, id string) (*domain.Discrepancy, error) {
	defer s.lock(ctx)()

	d, ok := s.discrepancies[id]
	if !ok {
		return nil, fmt.Errorf("discrepancy %s: %w", id, domain.ErrNotFound)
	}
	return &d, nil
}

func (s *Store) GetDiscrepancyByMatch(ctx context.Context, matchID string) (*domain.Discrepancy, error) {
	defer s.lock(ctx)()

	for _, d := range s.discrepancies {
		if d.MatchID == matchID {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("discrepancy for match %s: %w", matchID, domain.ErrNotFound)
}

func (s *Store) UpdateDiscrepancy(ctx context.Context, d *domain.Discrepancy) error {
	defer s.lock(ctx)()

	if _, ok := s.discrepancies[d.ID]; !ok {
		return fmt.Errorf("discrepancy %s: %w", d.ID, domain.ErrNotFound)
	}
	s.discrepancies[d.ID] = *d
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	defer s.lock(ctx)()

	s.audit = append(s.audit, *entry)
	return nil
}

func (s *Store) ListAudit(ctx context.Context, sessionID string) ([]*domain.AuditEntry, error) {
	defer s.lock(ctx)()

	out := make([]*domain.AuditEntry, 0)
	for _, e := range s.audit {
		if e.SessionID == sessionID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}
