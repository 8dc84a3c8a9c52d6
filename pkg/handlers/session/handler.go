package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/de-tools/recon-atlas/pkg/adapters"
	"github.com/de-tools/recon-atlas/pkg/models/api"
	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/resolver"
	"github.com/de-tools/recon-atlas/pkg/services/rules"
	"github.com/de-tools/recon-atlas/pkg/services/session"
)

type Router struct {
	// runCtx outlives the request that started a run and is cancelled on shutdown.
	runCtx   context.Context
	sessions session.Controller
	resolver resolver.Resolver
	registry rules.Registry
	features domain.FeatureFlags
}

func NewSessionRouter(
	runCtx context.Context,
	sessions session.Controller,
	res resolver.Resolver,
	registry rules.Registry,
	features domain.FeatureFlags,
) *Router {
	return &Router{
		runCtx:   runCtx,
		sessions: sessions,
		resolver: res,
		registry: registry,
		features: features,
	}
}

// Routes mounts the handlers on r.
func (h *Router) Routes(r chi.Router) {
	r.Get("/rules", h.ListRules)
	r.Post("/sessions", h.StartSession)
	r.Route("/sessions/{session}", func(r chi.Router) {
		r.Get("/", h.GetReport)
		r.Post("/run", h.RunSession)
		r.Post("/validate", h.ValidateSession)
		r.Post("/complete", h.CompleteSession)
		r.Post("/cancel", h.CancelSession)
		r.Get("/history", h.History)
		r.Post("/discrepancies/resolve", h.BulkResolve)
	})
	r.Post("/matches/{match}/approve", h.ApproveMatch)
	r.Post("/matches/{match}/reject", h.RejectMatch)
	r.Post("/discrepancies/{discrepancy}/resolve", h.ResolveDiscrepancy)
}

func (h *Router) ListRules(w http.ResponseWriter, r *http.Request) {
	list := h.registry.List()
	response := make([]api.Rule, 0, len(list))
	for _, rule := range list {
		response = append(response, adapters.MapDomainRuleToApi(rule))
	}
	writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *Router) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.StartSessionRequest
	if !decode(w, r, &req) {
		return
	}

	opts := domain.SessionOptions{
		Features:  h.features,
		Workers:   req.Workers,
		RuleCodes: req.RuleCodes,
	}
	if req.Features != nil {
		opts.Features = domain.FeatureFlags{
			FuzzyMatching:    req.Features.FuzzyMatching,
			InferredMatching: req.Features.InferredMatching,
		}
	}

	s, err := h.sessions.Start(ctx, req.PropertyID, req.PeriodID, opts)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, adapters.MapDomainSessionToApi(s))
}

// RunSession evaluates the session rules. The run continues in the background
// unless wait=true is passed, in which case the response carries the final state.
func (h *Router) RunSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "session")

	if r.URL.Query().Get("wait") == "true" {
		s, err := h.sessions.Run(ctx, id)
		if err != nil && s == nil {
			writeError(ctx, w, err)
			return
		}
		writeJSON(ctx, w, http.StatusOK, adapters.MapDomainSessionToApi(s))
		return
	}

	s, err := h.sessions.Get(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if s.Status != domain.SessionStatusCreated {
		writeError(ctx, w, &domain.InvalidTransitionError{SessionID: id, From: s.Status, Operation: "run"})
		return
	}

	logger := zerolog.Ctx(ctx).With().Str("session_id", id).Logger()
	go func() {
		runCtx := logger.WithContext(h.runCtx)
		if _, err := h.sessions.Run(runCtx, id); err != nil {
			logger.Error().Err(err).Msg("session run failed")
		}
	}()
	writeJSON(ctx, w, http.StatusAccepted, adapters.MapDomainSessionToApi(s))
}

func (h *Router) ValidateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.sessions.Validate(ctx, chi.URLParam(r, "session"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainSessionToApi(s))
}

func (h *Router) CompleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The body is optional.
	var req api.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(ctx, w, fmt.Errorf("%w: malformed request body: %v", domain.ErrInvalidInput, err))
		return
	}
	var override *domain.Override
	if req.Override != nil {
		override = &domain.Override{Actor: req.Override.Actor, Justification: req.Override.Justification}
	}

	s, err := h.sessions.Complete(ctx, chi.URLParam(r, "session"), override)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainSessionToApi(s))
}

func (h *Router) CancelSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.sessions.Cancel(ctx, chi.URLParam(r, "session"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainSessionToApi(s))
}

func (h *Router) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.sessions.Report(ctx, chi.URLParam(r, "session"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainReportToApi(report))
}

func (h *Router) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.resolver.History(ctx, chi.URLParam(r, "session"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	response := make([]api.AuditEntry, 0, len(entries))
	for _, e := range entries {
		response = append(response, adapters.MapDomainAuditToApi(e))
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

func (h *Router) ApproveMatch(w http.ResponseWriter, r *http.Request) {
	h.reviewMatch(w, r, h.resolver.ApproveMatch)
}

func (h *Router) RejectMatch(w http.ResponseWriter, r *http.Request) {
	h.reviewMatch(w, r, h.resolver.RejectMatch)
}

func (h *Router) reviewMatch(
	w http.ResponseWriter,
	r *http.Request,
	review func(context.Context, string, resolver.Actor) (*domain.Match, error),
) {
	ctx := r.Context()

	var req api.ReviewRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := review(ctx, chi.URLParam(r, "match"), resolver.Actor{Name: req.Actor, Notes: req.Notes})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainMatchToApi(m))
}

func (h *Router) ResolveDiscrepancy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := resolution(req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	d, err := h.resolver.ResolveDiscrepancy(ctx, chi.URLParam(r, "discrepancy"), res)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainDiscrepancyToApi(d))
}

func (h *Router) BulkResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.BulkResolveRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := resolution(req.ResolveRequest)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	n, err := h.resolver.BulkResolve(ctx, chi.URLParam(r, "session"), req.DiscrepancyIDs, res)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, api.CountResponse{Resolved: n})
}

func resolution(req api.ResolveRequest) (resolver.Resolution, error) {
	res := resolver.Resolution{
		Action: domain.ResolutionAction(req.Action),
		Notes:  req.Notes,
		Actor:  req.Actor,
	}
	if req.ManualValue != nil {
		v, err := decimal.NewFromString(*req.ManualValue)
		if err != nil {
			return res, fmt.Errorf("%w: invalid manual_value %q", domain.ErrInvalidInput, *req.ManualValue)
		}
		res.ManualValue = decimal.NewNullDecimal(v)
	}
	return res, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(r.Context(), w, fmt.Errorf("%w: malformed request body: %v", domain.ErrInvalidInput, err))
		return false
	}
	return true
}

func statusFor(err error) int {
	var missing *domain.MissingDocumentError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case session.IsConflict(err):
		return http.StatusConflict
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(ctx).Error().Err(err).Msg("request failed")
	}
	writeJSON(ctx, w, status, api.ErrorResponse{Error: err.Error()})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Msg("failed to encode response")
	}
}
