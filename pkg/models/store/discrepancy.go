package store

import "time"

type Discrepancy struct {
	ID               string     `json:"id"`
	MatchID          string     `json:"match_id"`
	SessionID        string     `json:"session_id"`
	Severity         string     `json:"severity"`
	ResolutionStatus string     `json:"resolution_status"`
	ResolutionAction string     `json:"resolution_action"`
	ManualValue      *string    `json:"manual_value,omitempty"`
	Notes            string     `json:"notes"`
	ResolvedBy       *string    `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type AuditEntry struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
}
