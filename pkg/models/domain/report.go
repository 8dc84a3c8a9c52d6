package domain

// Report represents the full state of a reconciliation session
type Report struct {
	Session       *Session
	Matches       []*Match
	Discrepancies []*Discrepancy
	Summary       ReportSummary
}

// ReportSummary counts matches and discrepancies by category
type ReportSummary struct {
	TotalMatches       int
	ByTier             map[Tier]int
	ByType             map[MatchType]int
	FailedRules        int
	OpenDiscrepancies  int
	BySeverity         map[Severity]int
	MaterialDifference int
}

func Summarize(matches []*Match, discrepancies []*Discrepancy) ReportSummary {
	summary := ReportSummary{
		TotalMatches: len(matches),
		ByTier:       make(map[Tier]int),
		ByType:       make(map[MatchType]int),
		BySeverity:   make(map[Severity]int),
	}
	for _, m := range matches {
		summary.ByTier[m.Tier]++
		summary.ByType[m.MatchType]++
		if m.Failed() {
			summary.FailedRules++
		}
		if m.IsMaterial {
			summary.MaterialDifference++
		}
	}
	for _, d := range discrepancies {
		summary.BySeverity[d.Severity]++
		if d.IsOpen() {
			summary.OpenDiscrepancies++
		}
	}
	return summary
}
