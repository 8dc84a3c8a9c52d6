package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// MissingDocumentError reports that a rule's document is absent for the period.
type MissingDocumentError struct {
	RuleCode     string
	Side         Side
	DocumentType DocumentType
	PeriodID     string
}

func (e *MissingDocumentError) Error() string {
	return fmt.Sprintf("rule %s: %s document %s missing for period %s", e.RuleCode, e.Side, e.DocumentType, e.PeriodID)
}

// RuleEvaluationError reports malformed candidate data for a single rule.
type RuleEvaluationError struct {
	RuleCode string
	Side     Side
	Err      error
}

func (e *RuleEvaluationError) Error() string {
	if e.Side == "" {
		return fmt.Sprintf("rule %s: evaluation failed: %v", e.RuleCode, e.Err)
	}
	return fmt.Sprintf("rule %s: %s evaluation failed: %v", e.RuleCode, e.Side, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error {
	return e.Err
}

// ConcurrentSessionError is returned when a key already has a RUNNING session.
type ConcurrentSessionError struct {
	Key       SessionKey
	SessionID string
}

func (e *ConcurrentSessionError) Error() string {
	return fmt.Sprintf("session %s is already running for %s", e.SessionID, e.Key)
}

// InvalidTransitionError is returned when an operation is not allowed in the current state.
type InvalidTransitionError struct {
	SessionID string
	From      SessionStatus
	Operation string
	Reason    string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("session %s: cannot %s from %s", e.SessionID, e.Operation, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}
