package scoring

import (
	"math"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/matching"
)

type Config struct {
	AccountWeight float64 `mapstructure:"account_weight"`
	AmountWeight  float64 `mapstructure:"amount_weight"`
	DateWeight    float64 `mapstructure:"date_weight"`
	ContextWeight float64 `mapstructure:"context_weight"`
	// DateDecayPeriods is the period gap at which the date component reaches zero.
	DateDecayPeriods int     `mapstructure:"date_decay_periods"`
	HighReliability  float64 `mapstructure:"high_reliability"`
	ContextBaseline  float64 `mapstructure:"context_baseline"`
	PassThreshold    float64 `mapstructure:"pass_threshold"`
	WarningThreshold float64 `mapstructure:"warning_threshold"`
}

func DefaultConfig() Config {
	return Config{
		AccountWeight:    0.4,
		AmountWeight:     0.4,
		DateWeight:       0.1,
		ContextWeight:    0.1,
		DateDecayPeriods: 4,
		HighReliability:  0.9,
		ContextBaseline:  0.5,
		PassThreshold:    85,
		WarningThreshold: 50,
	}
}

var severityWeights = map[domain.Severity]float64{
	domain.SeverityCritical: 4,
	domain.SeverityHigh:     3,
	domain.SeverityMedium:   2,
	domain.SeverityLow:      1,
}

type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score converts an engine result into a confidence in [0,100] rounded to cents.
func (s *Scorer) Score(res *matching.Result, periodGap int, stat *domain.HistoricalStat) float64 {
	var confidence float64
	switch {
	case res.Type == domain.MatchTypeExact:
		confidence = 100
	case res.Type.IsMissing():
		confidence = 0
	case res.Type == domain.MatchTypeInferred:
		confidence = 100 * res.Raw
	default:
		confidence = 100 * (s.cfg.AccountWeight*res.AccountScore +
			s.cfg.AmountWeight*res.AmountScore +
			s.cfg.DateWeight*s.dateComponent(periodGap) +
			s.cfg.ContextWeight*s.contextComponent(stat))
	}
	return clamp(math.Round(confidence*100) / 100)
}

func (s *Scorer) dateComponent(gap int) float64 {
	if gap <= 0 {
		return 1
	}
	if s.cfg.DateDecayPeriods <= 0 {
		return 0
	}
	return math.Max(0, 1-float64(gap)/float64(s.cfg.DateDecayPeriods))
}

func (s *Scorer) contextComponent(stat *domain.HistoricalStat) float64 {
	if stat != nil && stat.Reliability >= s.cfg.HighReliability {
		return 1
	}
	return s.cfg.ContextBaseline
}

func (s *Scorer) Tier(confidence float64) domain.Tier {
	switch {
	case confidence >= s.cfg.PassThreshold:
		return domain.TierPass
	case confidence >= s.cfg.WarningThreshold:
		return domain.TierWarning
	default:
		return domain.TierFail
	}
}

// Severity crosses the confidence tier with materiality.
func (s *Scorer) Severity(tier domain.Tier, material bool) domain.Severity {
	switch {
	case material && tier == domain.TierWarning:
		return domain.SeverityHigh
	case material:
		return domain.SeverityCritical
	case tier == domain.TierFail:
		return domain.SeverityHigh
	case tier == domain.TierWarning:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// NeedsDiscrepancy reports whether a match fails acceptance.
func (s *Scorer) NeedsDiscrepancy(m *domain.Match) bool {
	return m.ConfidenceScore < s.cfg.PassThreshold || m.IsMaterial
}

// Health is 100 × Σweight(passing) / Σweight(all). A match passes unless it was
// rejected or its discrepancy is still open. Weights follow the discrepancy
// severity, so unresolved critical findings cost the most.
func (s *Scorer) Health(matches []*domain.Match, discrepancies map[string]*domain.Discrepancy) float64 {
	if len(matches) == 0 {
		return 100
	}
	var passing, total float64
	for _, m := range matches {
		d := discrepancies[m.ID]
		w := 1.0
		if d != nil {
			w = severityWeights[d.Severity]
		}
		total += w
		if m.Status != domain.MatchStatusRejected && (d == nil || !d.IsOpen()) {
			passing += w
		}
	}
	return clamp(math.Round(100*passing/total*100) / 100)
}

func clamp(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}
