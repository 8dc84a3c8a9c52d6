package api

type FeatureFlags struct {
	FuzzyMatching    bool `json:"fuzzy_matching"`
	InferredMatching bool `json:"inferred_matching"`
}

type StartSessionRequest struct {
	PropertyID string `json:"property_id"`
	PeriodID   string `json:"period_id"`
	// Features falls back to the server defaults when omitted.
	Features  *FeatureFlags `json:"features,omitempty"`
	Workers   int           `json:"workers,omitempty"`
	RuleCodes []string      `json:"rule_codes,omitempty"`
}

type ReviewRequest struct {
	Actor string `json:"actor"`
	Notes string `json:"notes,omitempty"`
}

type ResolveRequest struct {
	Action      string  `json:"action"`
	ManualValue *string `json:"manual_value,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	Actor       string  `json:"actor"`
}

type BulkResolveRequest struct {
	ResolveRequest
	DiscrepancyIDs []string `json:"discrepancy_ids"`
}

type CompleteRequest struct {
	Override *Override `json:"override,omitempty"`
}

type CountResponse struct {
	Resolved int `json:"resolved"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
