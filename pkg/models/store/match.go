package store

import "time"

// Match keeps amounts as decimal strings so no precision is lost in storage.
type Match struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	RuleCode        string    `json:"rule_code"`
	SourceDocument  string    `json:"source_document"`
	TargetDocument  string    `json:"target_document"`
	SourceValue     string    `json:"source_value"`
	TargetValue     string    `json:"target_value"`
	Difference      string    `json:"difference"`
	IsMaterial      bool      `json:"is_material"`
	ConfidenceScore float64   `json:"confidence_score"`
	MatchType       string    `json:"match_type"`
	Status          string    `json:"status"`
	Tier            string    `json:"tier"`
	RequiresReview  bool      `json:"requires_review"`
	Explanation     string    `json:"explanation"`
	EvaluationError *string   `json:"evaluation_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
