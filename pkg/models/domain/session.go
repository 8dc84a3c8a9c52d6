package domain

import "time"

type SessionStatus string

const (
	SessionStatusCreated   SessionStatus = "CREATED"
	SessionStatusRunning   SessionStatus = "RUNNING"
	SessionStatusValidated SessionStatus = "VALIDATED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusFailed    SessionStatus = "FAILED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// FeatureFlags toggle optional matching strategies for a single session.
type FeatureFlags struct {
	FuzzyMatching    bool `json:"fuzzy_matching" mapstructure:"fuzzy_matching"`
	InferredMatching bool `json:"inferred_matching" mapstructure:"inferred_matching"`
}

func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{
		FuzzyMatching:    true,
		InferredMatching: true,
	}
}

// SessionOptions is the configuration handed to a session when it starts.
type SessionOptions struct {
	Features FeatureFlags `json:"features"`
	Workers  int          `json:"workers"`
	// RuleCodes restricts the run to a subset of enabled rules when not empty.
	RuleCodes []string `json:"rule_codes,omitempty"`
}

// Override lets a reviewer complete a session that still has open discrepancies.
type Override struct {
	Actor         string `json:"actor"`
	Justification string `json:"justification"`
}

type Session struct {
	ID            string
	PropertyID    string
	PeriodID      string
	Status        SessionStatus
	HealthScore   float64
	Options       SessionOptions
	Override      *Override
	Error         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	RunFinishedAt *time.Time
	CompletedAt   *time.Time
}

type SessionKey struct {
	PropertyID string
	PeriodID   string
}

func (s *Session) Key() SessionKey {
	return SessionKey{PropertyID: s.PropertyID, PeriodID: s.PeriodID}
}

func (k SessionKey) String() string {
	return k.PropertyID + "/" + k.PeriodID
}
