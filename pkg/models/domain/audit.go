package domain

import "time"

type AuditEntityType string

const (
	AuditEntityMatch       AuditEntityType = "match"
	AuditEntityDiscrepancy AuditEntityType = "discrepancy"
	AuditEntitySession     AuditEntityType = "session"
)

// AuditEntry records one effective human action taken during review.
type AuditEntry struct {
	ID         string
	SessionID  string
	EntityType AuditEntityType
	EntityID   string
	Action     string
	Actor      string
	Notes      string
	CreatedAt  time.Time
}
