package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type ResolutionStatus string

const (
	ResolutionOpen     ResolutionStatus = "open"
	ResolutionResolved ResolutionStatus = "resolved"
)

type ResolutionAction string

const (
	ActionNone         ResolutionAction = ""
	ActionAccepted     ResolutionAction = "accepted"
	ActionAcceptSource ResolutionAction = "accept_source"
	ActionAcceptTarget ResolutionAction = "accept_target"
	ActionManualValue  ResolutionAction = "manual_value"
	ActionIgnore       ResolutionAction = "ignore"
)

// Resolvable reports whether the action may be chosen through ResolveDiscrepancy.
func (a ResolutionAction) Resolvable() bool {
	switch a {
	case ActionAcceptSource, ActionAcceptTarget, ActionManualValue, ActionIgnore:
		return true
	default:
		return false
	}
}

type Discrepancy struct {
	ID               string
	MatchID          string
	SessionID        string
	Severity         Severity
	ResolutionStatus ResolutionStatus
	ResolutionAction ResolutionAction
	ManualValue      decimal.NullDecimal
	Notes            string
	ResolvedBy       string
	ResolvedAt       *time.Time
	CreatedAt        time.Time
}

func (d *Discrepancy) IsOpen() bool {
	return d.ResolutionStatus != ResolutionResolved
}
