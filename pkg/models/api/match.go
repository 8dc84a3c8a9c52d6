package api

import "time"

// Match is the per-rule output contract.
type Match struct {
	ID              string  `json:"id"`
	RuleCode        string  `json:"rule_code"`
	SourceDocument  string  `json:"source_document"`
	TargetDocument  string  `json:"target_document"`
	SourceValue     string  `json:"source_value"`
	TargetValue     string  `json:"target_value"`
	Difference      string  `json:"difference"`
	ConfidenceScore float64 `json:"confidence_score"`
	MatchType       string  `json:"match_type"`
	Status          string  `json:"status"`
	Tier            string  `json:"tier"`
	IsMaterial      bool    `json:"is_material"`
	RequiresReview  bool    `json:"requires_review,omitempty"`
	Explanation     string  `json:"explanation"`
	Error           string  `json:"error,omitempty"`
}

type Discrepancy struct {
	ID               string     `json:"id"`
	MatchID          string     `json:"match_id"`
	Severity         string     `json:"severity"`
	ResolutionStatus string     `json:"resolution_status"`
	ResolutionAction string     `json:"resolution_action,omitempty"`
	ManualValue      *string    `json:"manual_value,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

type Override struct {
	Actor         string `json:"actor"`
	Justification string `json:"justification"`
}

type Session struct {
	ID          string     `json:"id"`
	PropertyID  string     `json:"property_id"`
	PeriodID    string     `json:"period_id"`
	Status      string     `json:"status"`
	HealthScore float64    `json:"health_score"`
	Override    *Override  `json:"override,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Summary struct {
	TotalMatches      int            `json:"total_matches"`
	ByTier            map[string]int `json:"by_tier"`
	ByType            map[string]int `json:"by_type"`
	BySeverity        map[string]int `json:"by_severity"`
	FailedRules       int            `json:"failed_rules"`
	MaterialMatches   int            `json:"material_matches"`
	OpenDiscrepancies int            `json:"open_discrepancies"`
}

type Report struct {
	Session       Session       `json:"session"`
	Summary       Summary       `json:"summary"`
	Matches       []Match       `json:"matches"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

type AuditEntry struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Rule struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Relationship string  `json:"relationship"`
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	Threshold    string  `json:"materiality_threshold"`
	Tolerance    float64 `json:"tolerance,omitempty"`
	Critical     bool    `json:"critical"`
	Blocking     bool    `json:"blocking"`
	Enabled      bool    `json:"enabled"`
}
