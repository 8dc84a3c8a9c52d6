package adapters

import (
	"fmt"
	"strings"

	"github.com/de-tools/recon-atlas/pkg/models/api"
	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

func MapDomainMatchToApi(m *domain.Match) api.Match {
	return api.Match{
		ID:              m.ID,
		RuleCode:        m.RuleCode,
		SourceDocument:  string(m.SourceDocument),
		TargetDocument:  string(m.TargetDocument),
		SourceValue:     m.SourceValue.StringFixed(2),
		TargetValue:     m.TargetValue.StringFixed(2),
		Difference:      m.Difference.StringFixed(2),
		ConfidenceScore: m.ConfidenceScore,
		MatchType:       string(m.MatchType),
		Status:          string(m.Status),
		Tier:            string(m.Tier),
		IsMaterial:      m.IsMaterial,
		RequiresReview:  m.RequiresReview,
		Explanation:     m.Explanation,
		Error:           m.EvaluationError,
	}
}

func MapDomainDiscrepancyToApi(d *domain.Discrepancy) api.Discrepancy {
	out := api.Discrepancy{
		ID:               d.ID,
		MatchID:          d.MatchID,
		Severity:         string(d.Severity),
		ResolutionStatus: string(d.ResolutionStatus),
		ResolutionAction: string(d.ResolutionAction),
		Notes:            d.Notes,
		ResolvedBy:       d.ResolvedBy,
		ResolvedAt:       d.ResolvedAt,
	}
	if d.ManualValue.Valid {
		v := d.ManualValue.Decimal.StringFixed(2)
		out.ManualValue = &v
	}
	return out
}

func MapDomainSessionToApi(s *domain.Session) api.Session {
	out := api.Session{
		ID:          s.ID,
		PropertyID:  s.PropertyID,
		PeriodID:    s.PeriodID,
		Status:      string(s.Status),
		HealthScore: s.HealthScore,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
	}
	if s.Override != nil {
		out.Override = &api.Override{Actor: s.Override.Actor, Justification: s.Override.Justification}
	}
	if s.Error != nil {
		out.Error = *s.Error
	}
	return out
}

func MapDomainReportToApi(r *domain.Report) api.Report {
	res := api.Report{
		Session: MapDomainSessionToApi(r.Session),
		Summary: api.Summary{
			TotalMatches:      r.Summary.TotalMatches,
			ByTier:            map[string]int{},
			ByType:            map[string]int{},
			BySeverity:        map[string]int{},
			FailedRules:       r.Summary.FailedRules,
			MaterialMatches:   r.Summary.MaterialDifference,
			OpenDiscrepancies: r.Summary.OpenDiscrepancies,
		},
		Matches:       make([]api.Match, 0, len(r.Matches)),
		Discrepancies: make([]api.Discrepancy, 0, len(r.Discrepancies)),
	}
	for k, v := range r.Summary.ByTier {
		res.Summary.ByTier[string(k)] = v
	}
	for k, v := range r.Summary.ByType {
		res.Summary.ByType[string(k)] = v
	}
	for k, v := range r.Summary.BySeverity {
		res.Summary.BySeverity[string(k)] = v
	}
	for _, m := range r.Matches {
		res.Matches = append(res.Matches, MapDomainMatchToApi(m))
	}
	for _, d := range r.Discrepancies {
		res.Discrepancies = append(res.Discrepancies, MapDomainDiscrepancyToApi(d))
	}
	return res
}

func MapDomainAuditToApi(e *domain.AuditEntry) api.AuditEntry {
	return api.AuditEntry{
		ID:         e.ID,
		EntityType: string(e.EntityType),
		EntityID:   e.EntityID,
		Action:     e.Action,
		Actor:      e.Actor,
		Notes:      e.Notes,
		CreatedAt:  e.CreatedAt,
	}
}

func MapDomainRuleToApi(r domain.MatchingRule) api.Rule {
	return api.Rule{
		Code:         r.Code,
		Name:         r.Name,
		Relationship: string(r.Relationship),
		Source:       describeField(r.Source),
		Target:       describeField(r.Target),
		Threshold:    r.MaterialityThreshold.StringFixed(2),
		Tolerance:    r.Tolerance,
		Critical:     r.Critical,
		Blocking:     r.Blocking,
		Enabled:      r.Enabled,
	}
}

func describeField(f domain.FieldSpec) string {
	codes := strings.Join(f.AccountCodes, "+")
	if f.IsRatio() {
		codes += "/" + strings.Join(f.DenominatorCodes, "+")
	}
	out := fmt.Sprintf("%s[%s]", f.DocumentType, codes)
	if f.PeriodOffset != 0 {
		out += fmt.Sprintf("@%+d", f.PeriodOffset)
	}
	return out
}
