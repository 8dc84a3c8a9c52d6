package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/documents"
	"github.com/de-tools/recon-atlas/pkg/services/history"
	"github.com/de-tools/recon-atlas/pkg/services/matching"
	"github.com/de-tools/recon-atlas/pkg/services/rules"
)

// candidates holds the grouped line items of every period offset a run reads.
type candidates map[int]map[domain.DocumentType][]domain.Candidate

func (c candidates) side(spec domain.FieldSpec) []domain.Candidate {
	return c[spec.PeriodOffset][spec.DocumentType]
}

// Run evaluates every enabled rule of a CREATED session. On success the whole
// match set is stored and the session stays RUNNING with RunFinishedAt set.
func (ctrl *DefaultController) Run(ctx context.Context, id string) (*domain.Session, error) {
	session, err := ctrl.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionStatusCreated {
		return nil, &domain.InvalidTransitionError{SessionID: id, From: session.Status, Operation: "run"}
	}

	logger := zerolog.Ctx(ctx).With().
		Str("session_id", id).
		Str("property_id", session.PropertyID).
		Str("period_id", session.PeriodID).
		Logger()
	ctx = logger.WithContext(ctx)

	runCtx, desc, err := ctrl.acquire(ctx, session)
	if err != nil {
		return nil, err
	}
	defer ctrl.release(session.Key(), desc)

	// A cancel or another run may have moved the session before the guard was taken.
	session, err = ctrl.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionStatusCreated {
		return nil, &domain.InvalidTransitionError{SessionID: id, From: session.Status, Operation: "run"}
	}

	now := ctrl.now()
	session.Status = domain.SessionStatusRunning
	session.StartedAt = &now
	session.UpdatedAt = now
	if err := ctrl.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	logger.Info().Msg("session running")

	ruleSet := ctrl.selectRules(session.Options.RuleCodes)

	cands, err := ctrl.prefetchDocuments(runCtx, session, ruleSet)
	if err != nil {
		return ctrl.abort(ctx, runCtx, session, err)
	}
	stats, err := ctrl.prefetchHistory(runCtx, session, ruleSet)
	if err != nil {
		return ctrl.abort(ctx, runCtx, session, err)
	}

	matches, err := ctrl.evaluate(runCtx, session, ruleSet, cands, stats)
	if err != nil || runCtx.Err() != nil {
		return ctrl.abort(ctx, runCtx, session, err)
	}

	finished := ctrl.now()
	session.RunFinishedAt = &finished
	session.UpdatedAt = finished
	err = ctrl.store.InTx(ctx, func(ctx context.Context) error {
		if err := ctrl.store.SaveMatches(ctx, id, matches); err != nil {
			return err
		}
		return ctrl.store.UpdateSession(ctx, session)
	})
	if err != nil {
		session.RunFinishedAt = nil
		return ctrl.fail(ctx, session, fmt.Errorf("failed to persist matches: %w", err))
	}

	logger.Info().Int("matches", len(matches)).Msg("rule evaluation finished")
	return session, nil
}

func (ctrl *DefaultController) acquire(ctx context.Context, session *domain.Session) (context.Context, *runDescriptor, error) {
	key := session.Key()
	if err := ctrl.ensureNotRunning(ctx, key, session.ID); err != nil {
		return nil, nil, err
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()

	if desc, ok := ctrl.runs[key]; ok {
		return nil, nil, &domain.ConcurrentSessionError{Key: key, SessionID: desc.sessionID}
	}
	if _, ok := ctrl.busy[session.ID]; ok {
		return nil, nil, &domain.ConcurrentSessionError{Key: key, SessionID: session.ID}
	}

	runCtx, cancel := context.WithCancel(ctx)
	desc := &runDescriptor{
		sessionID:  session.ID,
		cancelFunc: cancel,
		done:       make(chan struct{}),
		run:        true,
	}
	ctrl.runs[key] = desc
	ctrl.busy[session.ID] = desc
	return runCtx, desc, nil
}

func (ctrl *DefaultController) release(key domain.SessionKey, desc *runDescriptor) {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()

	desc.cancelFunc()
	delete(ctrl.runs, key)
	delete(ctrl.busy, desc.sessionID)
	close(desc.done)
}

func (ctrl *DefaultController) selectRules(codes []string) []domain.MatchingRule {
	enabled := ctrl.registry.Enabled()
	if len(codes) == 0 {
		return enabled
	}
	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}
	out := enabled[:0]
	for _, rule := range enabled {
		if wanted[rule.Code] {
			out = append(out, rule)
		}
	}
	return out
}

// prefetchDocuments loads the line items of every period the rules read.
func (ctrl *DefaultController) prefetchDocuments(
	ctx context.Context,
	session *domain.Session,
	ruleSet []domain.MatchingRule,
) (candidates, error) {
	out := make(candidates)
	for _, rule := range ruleSet {
		for _, offset := range []int{rule.Source.PeriodOffset, rule.Target.PeriodOffset} {
			if _, ok := out[offset]; ok {
				continue
			}
			period, err := domain.ShiftPeriod(session.PeriodID, offset)
			if err != nil {
				return nil, err
			}
			items, err := ctrl.documents.LineItems(ctx, session.PropertyID, period)
			if err != nil {
				return nil, fmt.Errorf("failed to load documents for %s: %w", period, err)
			}
			out[offset] = documents.Group(items)
		}
	}
	return out, nil
}

func (ctrl *DefaultController) prefetchHistory(
	ctx context.Context,
	session *domain.Session,
	ruleSet []domain.MatchingRule,
) (map[string]*domain.HistoricalStat, error) {
	if ctrl.history == nil {
		return map[string]*domain.HistoricalStat{}, nil
	}
	codes := make([]string, len(ruleSet))
	for i, rule := range ruleSet {
		codes[i] = rule.Code
	}
	return history.Prefetch(ctx, ctrl.history, session.PropertyID, codes)
}

// evaluate runs the rules on a bounded pool. Each rule writes only its own slot.
func (ctrl *DefaultController) evaluate(
	ctx context.Context,
	session *domain.Session,
	ruleSet []domain.MatchingRule,
	cands candidates,
	stats map[string]*domain.HistoricalStat,
) ([]*domain.Match, error) {
	matches := make([]*domain.Match, len(ruleSet))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(session.Options.Workers)
	for i, rule := range ruleSet {
		if gctx.Err() != nil {
			break
		}
		i, rule := i, rule
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := ctrl.evaluateRule(gctx, session, rule, cands, stats[rule.Code])
			if err != nil {
				return err
			}
			matches[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

// evaluateRule never lets a panic or a malformed candidate escape: both become
// a failed match. Only a missing document of a blocking rule is returned as an error.
func (ctrl *DefaultController) evaluateRule(
	ctx context.Context,
	session *domain.Session,
	rule domain.MatchingRule,
	cands candidates,
	stat *domain.HistoricalStat,
) (m *domain.Match, err error) {
	logger := zerolog.Ctx(ctx).With().Str("rule", rule.Code).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("rule evaluation panicked")
			m = ctrl.failedMatch(session, rule, "", fmt.Errorf("panic: %v", r))
			err = nil
		}
	}()

	in := matching.Input{
		Rule:    rule,
		Source:  cands.side(rule.Source),
		Target:  cands.side(rule.Target),
		History: stat,
	}

	res, err := ctrl.newChain(rule.Relationship, session.Options.Features).Match(in)
	if err != nil {
		var evalErr *domain.RuleEvaluationError
		side := domain.Side("")
		if errors.As(err, &evalErr) {
			side = evalErr.Side
		}
		logger.Warn().Err(err).Msg("rule evaluation failed")
		return ctrl.failedMatch(session, rule, side, err), nil
	}

	if res.Type.IsMissing() && rule.Blocking {
		if missing := missingDocument(session, rule, in); missing != nil {
			logger.Error().Err(missing).Msg("blocking rule is missing a document")
			return nil, missing
		}
	}

	confidence := ctrl.scorer.Score(res, in.PeriodGap(), stat)
	m = &domain.Match{
		ID:              uuid.NewString(),
		SessionID:       session.ID,
		RuleCode:        rule.Code,
		SourceDocument:  rule.Source.DocumentType,
		TargetDocument:  rule.Target.DocumentType,
		SourceValue:     res.Comparison.SourceValue,
		TargetValue:     res.Comparison.TargetValue,
		Difference:      res.Comparison.Difference,
		IsMaterial:      res.Comparison.IsMaterial,
		ConfidenceScore: confidence,
		MatchType:       res.Type,
		Status:          domain.MatchStatusProposed,
		Tier:            ctrl.scorer.Tier(confidence),
		RequiresReview:  res.RequiresReview,
		CreatedAt:       ctrl.now(),
	}
	m.Explanation = ctrl.registry.Explain(rule.Code, rules.ExplanationData{
		Rule:        rule,
		SourceValue: m.SourceValue.StringFixed(2),
		TargetValue: m.TargetValue.StringFixed(2),
		Difference:  m.Difference.StringFixed(2),
		MatchType:   m.MatchType,
		Confidence:  confidence,
	})
	if res.Note != "" {
		m.Explanation = fmt.Sprintf("%s (%s)", m.Explanation, res.Note)
	}

	logger.Debug().
		Str("type", string(m.MatchType)).
		Float64("confidence", confidence).
		Bool("material", m.IsMaterial).
		Msg("rule evaluated")
	return m, nil
}

func missingDocument(session *domain.Session, rule domain.MatchingRule, in matching.Input) *domain.MissingDocumentError {
	spec, side := rule.Source, domain.SideSource
	switch {
	case len(in.Source) == 0:
	case len(in.Target) == 0:
		spec, side = rule.Target, domain.SideTarget
	default:
		return nil
	}
	period, err := domain.ShiftPeriod(session.PeriodID, spec.PeriodOffset)
	if err != nil {
		period = session.PeriodID
	}
	return &domain.MissingDocumentError{
		RuleCode:     rule.Code,
		Side:         side,
		DocumentType: spec.DocumentType,
		PeriodID:     period,
	}
}

func (ctrl *DefaultController) failedMatch(session *domain.Session, rule domain.MatchingRule, side domain.Side, cause error) *domain.Match {
	typ := domain.MatchTypeMissingSource
	if side == domain.SideTarget {
		typ = domain.MatchTypeMissingTarget
	}
	return &domain.Match{
		ID:              uuid.NewString(),
		SessionID:       session.ID,
		RuleCode:        rule.Code,
		SourceDocument:  rule.Source.DocumentType,
		TargetDocument:  rule.Target.DocumentType,
		IsMaterial:      rule.Critical,
		ConfidenceScore: 0,
		MatchType:       typ,
		Status:          domain.MatchStatusProposed,
		Tier:            domain.TierFail,
		RequiresReview:  true,
		Explanation:     fmt.Sprintf("%s could not be evaluated", rule.Name),
		EvaluationError: cause.Error(),
		CreatedAt:       ctrl.now(),
	}
}

// abort discards the run. A cancelled run ends CANCELLED, anything else FAILED.
func (ctrl *DefaultController) abort(ctx, runCtx context.Context, session *domain.Session, cause error) (*domain.Session, error) {
	if runCtx.Err() != nil {
		var missing *domain.MissingDocumentError
		if cause == nil || !errors.As(cause, &missing) {
			return ctrl.cancelled(ctx, session)
		}
	}
	return ctrl.fail(ctx, session, cause)
}

func (ctrl *DefaultController) cancelled(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	ctx = context.WithoutCancel(ctx)
	session.Status = domain.SessionStatusCancelled
	session.UpdatedAt = ctrl.now()
	if err := ctrl.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to mark session cancelled: %w", err)
	}
	zerolog.Ctx(ctx).Warn().Msg("run cancelled, buffered matches discarded")
	return session, context.Canceled
}

func (ctrl *DefaultController) fail(ctx context.Context, session *domain.Session, cause error) (*domain.Session, error) {
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()
	session.Status = domain.SessionStatusFailed
	session.Error = &msg
	session.UpdatedAt = ctrl.now()
	if err := ctrl.store.UpdateSession(ctx, session); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to mark session failed")
	}
	zerolog.Ctx(ctx).Error().Err(cause).Msg("session failed")
	return session, cause
}
