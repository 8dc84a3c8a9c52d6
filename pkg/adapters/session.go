package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/models/store"
)

func MapStoreSessionToDomain(s *store.Session) (*domain.Session, error) {
	if s == nil {
		return nil, nil
	}

	var opts domain.SessionOptions
	if s.Options != "" {
		if err := json.Unmarshal([]byte(s.Options), &opts); err != nil {
			return nil, fmt.Errorf("decode options of session %s: %w", s.ID, err)
		}
	}

	var override *domain.Override
	if s.OverrideActor != nil || s.OverrideJustification != nil {
		override = &domain.Override{
			Actor:         deref(s.OverrideActor),
			Justification: deref(s.OverrideJustification),
		}
	}

	return &domain.Session{
		ID:            s.ID,
		PropertyID:    s.PropertyID,
		PeriodID:      s.PeriodID,
		Status:        domain.SessionStatus(s.Status),
		HealthScore:   s.HealthScore,
		Options:       opts,
		Override:      override,
		Error:         s.Error,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		StartedAt:     s.StartedAt,
		RunFinishedAt: s.RunFinishedAt,
		CompletedAt:   s.CompletedAt,
	}, nil
}

func MapDomainSessionToStore(ds *domain.Session) (*store.Session, error) {
	opts, err := json.Marshal(ds.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options of session %s: %w", ds.ID, err)
	}

	s := &store.Session{
		ID:            ds.ID,
		PropertyID:    ds.PropertyID,
		PeriodID:      ds.PeriodID,
		Status:        string(ds.Status),
		HealthScore:   ds.HealthScore,
		Options:       string(opts),
		Error:         ds.Error,
		CreatedAt:     ds.CreatedAt,
		UpdatedAt:     ds.UpdatedAt,
		StartedAt:     ds.StartedAt,
		RunFinishedAt: ds.RunFinishedAt,
		CompletedAt:   ds.CompletedAt,
	}
	if ds.Override != nil {
		s.OverrideActor = &ds.Override.Actor
		s.OverrideJustification = &ds.Override.Justification
	}
	return s, nil
}

func MapStoreMatchToDomain(m *store.Match) (*domain.Match, error) {
	if m == nil {
		return nil, nil
	}

	values := make([]decimal.Decimal, 3)
	for i, raw := range []string{m.SourceValue, m.TargetValue, m.Difference} {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode amount %q of match %s: %w", raw, m.ID, err)
		}
		values[i] = v
	}

	return &domain.Match{
		ID:              m.ID,
		SessionID:       m.SessionID,
		RuleCode:        m.RuleCode,
		SourceDocument:  domain.DocumentType(m.SourceDocument),
		TargetDocument:  domain.DocumentType(m.TargetDocument),
		SourceValue:     values[0],
		TargetValue:     values[1],
		Difference:      values[2],
		IsMaterial:      m.IsMaterial,
		ConfidenceScore: m.ConfidenceScore,
		MatchType:       domain.MatchType(m.MatchType),
		Status:          domain.MatchStatus(m.Status),
		Tier:            domain.Tier(m.Tier),
		RequiresReview:  m.RequiresReview,
		Explanation:     m.Explanation,
		EvaluationError: deref(m.EvaluationError),
		CreatedAt:       m.CreatedAt,
	}, nil
}

func MapDomainMatchToStore(dm *domain.Match) *store.Match {
	m := &store.Match{
		ID:              dm.ID,
		SessionID:       dm.SessionID,
		RuleCode:        dm.RuleCode,
		SourceDocument:  string(dm.SourceDocument),
		TargetDocument:  string(dm.TargetDocument),
		SourceValue:     dm.SourceValue.String(),
		TargetValue:     dm.TargetValue.String(),
		Difference:      dm.Difference.String(),
		IsMaterial:      dm.IsMaterial,
		ConfidenceScore: dm.ConfidenceScore,
		MatchType:       string(dm.MatchType),
		Status:          string(dm.Status),
		Tier:            string(dm.Tier),
		RequiresReview:  dm.RequiresReview,
		Explanation:     dm.Explanation,
		CreatedAt:       dm.CreatedAt,
	}
	if dm.EvaluationError != "" {
		e := dm.EvaluationError
		m.EvaluationError = &e
	}
	return m
}

func MapStoreDiscrepancyToDomain(d *store.Discrepancy) (*domain.Discrepancy, error) {
	if d == nil {
		return nil, nil
	}

	var manual decimal.NullDecimal
	if d.ManualValue != nil {
		v, err := decimal.NewFromString(*d.ManualValue)
		if err != nil {
			return nil, fmt.Errorf("decode manual value of discrepancy %s: %w", d.ID, err)
		}
		manual = decimal.NewNullDecimal(v)
	}

	return &domain.Discrepancy{
		ID:               d.ID,
		MatchID:          d.MatchID,
		SessionID:        d.SessionID,
		Severity:         domain.Severity(d.Severity),
		ResolutionStatus: domain.ResolutionStatus(d.ResolutionStatus),
		ResolutionAction: domain.ResolutionAction(d.ResolutionAction),
		ManualValue:      manual,
		Notes:            d.Notes,
		ResolvedBy:       deref(d.ResolvedBy),
		ResolvedAt:       d.ResolvedAt,
		CreatedAt:        d.CreatedAt,
	}, nil
}

func MapDomainDiscrepancyToStore(dd *domain.Discrepancy) *store.Discrepancy {
	d := &store.Discrepancy{
		ID:               dd.ID,
		MatchID:          dd.MatchID,
		SessionID:        dd.SessionID,
		Severity:         string(dd.Severity),
		ResolutionStatus: string(dd.ResolutionStatus),
		ResolutionAction: string(dd.ResolutionAction),
		Notes:            dd.Notes,
		ResolvedAt:       dd.ResolvedAt,
		CreatedAt:        dd.CreatedAt,
	}
	if dd.ManualValue.Valid {
		v := dd.ManualValue.Decimal.String()
		d.ManualValue = &v
	}
	if dd.ResolvedBy != "" {
		by := dd.ResolvedBy
		d.ResolvedBy = &by
	}
	return d
}

func MapStoreAuditToDomain(a *store.AuditEntry) *domain.AuditEntry {
	return &domain.AuditEntry{
		ID:         a.ID,
		SessionID:  a.SessionID,
		EntityType: domain.AuditEntityType(a.EntityType),
		EntityID:   a.EntityID,
		Action:     a.Action,
		Actor:      a.Actor,
		Notes:      a.Notes,
		CreatedAt:  a.CreatedAt,
	}
}

func MapDomainAuditToStore(da *domain.AuditEntry) *store.AuditEntry {
	return &store.AuditEntry{
		ID:         da.ID,
		SessionID:  da.SessionID,
		EntityType: string(da.EntityType),
		EntityID:   da.EntityID,
		Action:     da.Action,
		Actor:      da.Actor,
		Notes:      da.Notes,
		CreatedAt:  da.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
