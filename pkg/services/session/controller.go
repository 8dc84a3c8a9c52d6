package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/documents"
	"github.com/de-tools/recon-atlas/pkg/services/history"
	"github.com/de-tools/recon-atlas/pkg/services/matching"
	"github.com/de-tools/recon-atlas/pkg/services/rules"
	"github.com/de-tools/recon-atlas/pkg/services/scoring"
	"github.com/de-tools/recon-atlas/pkg/store"
)

// Controller drives reconciliation sessions through their lifecycle.
type Controller interface {
	Start(ctx context.Context, propertyID, periodID string, opts domain.SessionOptions) (*domain.Session, error)
	Run(ctx context.Context, id string) (*domain.Session, error)
	Validate(ctx context.Context, id string) (*domain.Session, error)
	Complete(ctx context.Context, id string, override *domain.Override) (*domain.Session, error)
	Cancel(ctx context.Context, id string) (*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	Report(ctx context.Context, id string) (*domain.Report, error)
}

type runDescriptor struct {
	sessionID  string
	cancelFunc context.CancelFunc
	done       chan struct{}
	// run is false for claims taken by validate, complete and cancel.
	run bool
}

type DefaultController struct {
	store     store.Store
	registry  rules.Registry
	documents documents.Source
	history   history.Provider
	scorer    *scoring.Scorer
	engines   matching.Config
	workers   int

	newChain func(rel domain.RelationshipType, flags domain.FeatureFlags) matching.Chain
	now      func() time.Time

	mu   sync.Mutex
	runs map[domain.SessionKey]*runDescriptor
	// busy holds the session currently being mutated, keyed by session id.
	busy map[string]*runDescriptor
}

// NewController wires the orchestrator. historyProvider may be nil when no
// historical statistics are available.
func NewController(
	st store.Store,
	registry rules.Registry,
	source documents.Source,
	historyProvider history.Provider,
	scorer *scoring.Scorer,
	engines matching.Config,
	workers int,
) (*DefaultController, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("rule registry is required")
	}
	if source == nil {
		return nil, fmt.Errorf("document source is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if workers < 1 {
		workers = 1
	}

	ctrl := &DefaultController{
		store:     st,
		registry:  registry,
		documents: source,
		history:   historyProvider,
		scorer:    scorer,
		engines:   engines,
		workers:   workers,
		now:       func() time.Time { return time.Now().UTC() },
		runs:      make(map[domain.SessionKey]*runDescriptor),
		busy:      make(map[string]*runDescriptor),
	}
	ctrl.newChain = func(rel domain.RelationshipType, flags domain.FeatureFlags) matching.Chain {
		return matching.NewChain(rel, flags, ctrl.engines)
	}
	return ctrl, nil
}

func (ctrl *DefaultController) Start(
	ctx context.Context,
	propertyID, periodID string,
	opts domain.SessionOptions,
) (*domain.Session, error) {
	if strings.TrimSpace(propertyID) == "" {
		return nil, fmt.Errorf("%w: property id is required", domain.ErrInvalidInput)
	}
	if _, err := domain.PeriodGap(periodID, periodID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	for _, code := range opts.RuleCodes {
		if _, ok := ctrl.registry.Get(code); !ok {
			return nil, fmt.Errorf("%w: unknown rule %q", domain.ErrInvalidInput, code)
		}
	}
	if opts.Workers < 1 {
		opts.Workers = ctrl.workers
	}

	key := domain.SessionKey{PropertyID: propertyID, PeriodID: periodID}
	if err := ctrl.ensureNotRunning(ctx, key, ""); err != nil {
		return nil, err
	}

	now := ctrl.now()
	session := &domain.Session{
		ID:          uuid.NewString(),
		PropertyID:  propertyID,
		PeriodID:    periodID,
		Status:      domain.SessionStatusCreated,
		HealthScore: 0,
		Options:     opts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := ctrl.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", session.ID).
		Str("key", key.String()).
		Bool("fuzzy", opts.Features.FuzzyMatching).
		Bool("inferred", opts.Features.InferredMatching).
		Msg("session created")
	return session, nil
}

// ensureNotRunning fails when another session of the key is RUNNING, either
// in this process or according to the store.
func (ctrl *DefaultController) ensureNotRunning(ctx context.Context, key domain.SessionKey, self string) error {
	ctrl.mu.Lock()
	desc, live := ctrl.runs[key]
	ctrl.mu.Unlock()
	if live && desc.sessionID != self {
		return &domain.ConcurrentSessionError{Key: key, SessionID: desc.sessionID}
	}

	running, err := ctrl.store.FindSessions(ctx, key.PropertyID, key.PeriodID, domain.SessionStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to look up running sessions: %w", err)
	}
	for _, s := range running {
		if s.ID != self {
			return &domain.ConcurrentSessionError{Key: key, SessionID: s.ID}
		}
	}
	return nil
}

// claim serializes state changes of one session. It waits for the current
// holder to finish; with interrupt set a holding run is cancelled first and
// interrupted reports whether that happened.
func (ctrl *DefaultController) claim(ctx context.Context, id string, interrupt bool) (release func(), interrupted bool, err error) {
	for {
		ctrl.mu.Lock()
		held, ok := ctrl.busy[id]
		if !ok {
			desc := &runDescriptor{sessionID: id, cancelFunc: func() {}, done: make(chan struct{})}
			ctrl.busy[id] = desc
			ctrl.mu.Unlock()
			return func() {
				ctrl.mu.Lock()
				defer ctrl.mu.Unlock()
				delete(ctrl.busy, id)
				close(desc.done)
			}, interrupted, nil
		}
		ctrl.mu.Unlock()

		if interrupt && held.run {
			held.cancelFunc()
			interrupted = true
		}
		select {
		case <-held.done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

func (ctrl *DefaultController) Validate(ctx context.Context, id string) (*domain.Session, error) {
	release, _, err := ctrl.claim(ctx, id, false)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := ctrl.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case session.Status == domain.SessionStatusValidated:
	case session.Status == domain.SessionStatusRunning && session.RunFinishedAt != nil:
	default:
		return nil, &domain.InvalidTransitionError{
			SessionID: id,
			From:      session.Status,
			Operation: "validate",
			Reason:    "rule evaluation has not finished",
		}
	}

	err = ctrl.store.InTx(ctx, func(ctx context.Context) error {
		matches, err := ctrl.store.ListMatches(ctx, id)
		if err != nil {
			return err
		}
		existing, err := ctrl.discrepanciesByMatch(ctx, id)
		if err != nil {
			return err
		}

		var created []*domain.Discrepancy
		for _, m := range matches {
			if _, ok := existing[m.ID]; ok || !ctrl.scorer.NeedsDiscrepancy(m) {
				continue
			}
			d := &domain.Discrepancy{
				ID:               uuid.NewString(),
				MatchID:          m.ID,
				SessionID:        id,
				Severity:         ctrl.scorer.Severity(m.Tier, m.IsMaterial),
				ResolutionStatus: domain.ResolutionOpen,
				CreatedAt:        ctrl.now(),
			}
			created = append(created, d)
			existing[m.ID] = d
		}
		if len(created) > 0 {
			if err := ctrl.store.SaveDiscrepancies(ctx, created); err != nil {
				return err
			}
		}

		session.HealthScore = ctrl.scorer.Health(matches, existing)
		session.Status = domain.SessionStatusValidated
		session.UpdatedAt = ctrl.now()
		if err := ctrl.store.UpdateSession(ctx, session); err != nil {
			return err
		}

		zerolog.Ctx(ctx).Info().
			Str("session_id", id).
			Int("matches", len(matches)).
			Int("new_discrepancies", len(created)).
			Float64("health", session.HealthScore).
			Msg("session validated")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to validate session %s: %w", id, err)
	}
	return session, nil
}

func (ctrl *DefaultController) discrepanciesByMatch(ctx context.Context, sessionID string) (map[string]*domain.Discrepancy, error) {
	list, err := ctrl.store.ListDiscrepancies(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*domain.Discrepancy, len(list))
	for _, d := range list {
		out[d.MatchID] = d
	}
	return out, nil
}

func (ctrl *DefaultController) Complete(ctx context.Context, id string, override *domain.Override) (*domain.Session, error) {
	if override != nil && strings.TrimSpace(override.Justification) != "" && strings.TrimSpace(override.Actor) == "" {
		return nil, fmt.Errorf("%w: override actor is required", domain.ErrInvalidInput)
	}

	release, _, err := ctrl.claim(ctx, id, false)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := ctrl.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionStatusValidated {
		return nil, &domain.InvalidTransitionError{SessionID: id, From: session.Status, Operation: "complete"}
	}

	discrepancies, err := ctrl.store.ListDiscrepancies(ctx, id)
	if err != nil {
		return nil, err
	}
	open := 0
	for _, d := range discrepancies {
		if d.IsOpen() {
			open++
		}
	}

	justified := override != nil && strings.TrimSpace(override.Justification) != ""
	if open > 0 && !justified {
		return nil, &domain.InvalidTransitionError{
			SessionID: id,
			From:      session.Status,
			Operation: "complete",
			Reason:    fmt.Sprintf("%d open discrepancies and no justified override", open),
		}
	}

	now := ctrl.now()
	session.Status = domain.SessionStatusCompleted
	session.CompletedAt = &now
	session.UpdatedAt = now

	entry := &domain.AuditEntry{
		ID:         uuid.NewString(),
		SessionID:  id,
		EntityType: domain.AuditEntitySession,
		EntityID:   id,
		Action:     "complete",
		CreatedAt:  now,
	}
	if justified {
		session.Override = &domain.Override{
			Actor:         strings.TrimSpace(override.Actor),
			Justification: strings.TrimSpace(override.Justification),
		}
		entry.Action = "complete_override"
		entry.Actor = session.Override.Actor
		entry.Notes = session.Override.Justification
	}

	err = ctrl.store.InTx(ctx, func(ctx context.Context) error {
		if err := ctrl.store.UpdateSession(ctx, session); err != nil {
			return err
		}
		return ctrl.store.AppendAudit(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete session %s: %w", id, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", id).
		Int("open_discrepancies", open).
		Bool("override", justified).
		Msg("session completed")
	return session, nil
}

// Cancel moves a non-terminal session to CANCELLED. A live run is signalled
// and awaited; its buffered matches are discarded.
func (ctrl *DefaultController) Cancel(ctx context.Context, id string) (*domain.Session, error) {
	session, err := ctrl.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, &domain.InvalidTransitionError{SessionID: id, From: session.Status, Operation: "cancel"}
	}

	release, interrupted, err := ctrl.claim(ctx, id, true)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err = ctrl.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		// The interrupted run stored CANCELLED itself.
		if interrupted && session.Status == domain.SessionStatusCancelled {
			zerolog.Ctx(ctx).Info().Str("session_id", id).Msg("session cancelled")
			return session, nil
		}
		return nil, &domain.InvalidTransitionError{SessionID: id, From: session.Status, Operation: "cancel"}
	}

	session.Status = domain.SessionStatusCancelled
	session.UpdatedAt = ctrl.now()
	if err := ctrl.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to cancel session %s: %w", id, err)
	}

	zerolog.Ctx(ctx).Info().Str("session_id", id).Msg("session cancelled")
	return session, nil
}

func (ctrl *DefaultController) Get(ctx context.Context, id string) (*domain.Session, error) {
	return ctrl.store.GetSession(ctx, id)
}

func (ctrl *DefaultController) Report(ctx context.Context, id string) (*domain.Report, error) {
	session, err := ctrl.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	matches, err := ctrl.store.ListMatches(ctx, id)
	if err != nil {
		return nil, err
	}
	discrepancies, err := ctrl.store.ListDiscrepancies(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.Report{
		Session:       session,
		Matches:       matches,
		Discrepancies: discrepancies,
		Summary:       domain.Summarize(matches, discrepancies),
	}, nil
}

// IsConflict reports whether err means the caller raced another session or state change.
func IsConflict(err error) bool {
	var concurrent *domain.ConcurrentSessionError
	var transition *domain.InvalidTransitionError
	return errors.As(err, &concurrent) || errors.As(err, &transition)
}
