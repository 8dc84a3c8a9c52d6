package store

import "time"

type Session struct {
	ID                    string     `json:"id"`
	PropertyID            string     `json:"property_id"`
	PeriodID              string     `json:"period_id"`
	Status                string     `json:"status"`
	HealthScore           float64    `json:"health_score"`
	Options               string     `json:"options"`
	OverrideActor         *string    `json:"override_actor,omitempty"`
	OverrideJustification *string    `json:"override_justification,omitempty"`
	Error                 *string    `json:"error,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	RunFinishedAt         *time.Time `json:"run_finished_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}
