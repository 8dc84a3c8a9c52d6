package rules

import (
	"github.com/shopspring/decimal"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

const defaultExplanation = `{{.Rule.Name}}: {{.Rule.Source.DocumentType}} {{.SourceValue}} vs {{.Rule.Target.DocumentType}} {{.TargetValue}} (difference {{.Difference}}, {{.MatchType}} match)`

func spec(doc domain.DocumentType, name string, codes ...string) domain.FieldSpec {
	return domain.FieldSpec{DocumentType: doc, AccountName: name, AccountCodes: codes}
}

func equality(code, name string, source, target domain.FieldSpec, threshold string, critical bool) domain.MatchingRule {
	return domain.MatchingRule{
		Code:                 code,
		Name:                 name,
		Source:               source,
		Target:               target,
		Relationship:         domain.RelationshipEquality,
		MaterialityThreshold: decimal.RequireFromString(threshold),
		Critical:             critical,
		Enabled:              true,
		ExplanationTemplate:  defaultExplanation,
	}
}

// DefaultRules is the built-in table of cross-document relationships.
func DefaultRules() []domain.MatchingRule {
	priorCash := spec(domain.DocumentBalanceSheet, "Cash - Operating", "1010")
	priorCash.PeriodOffset = -1

	occupancy := spec(domain.DocumentRentRoll, "Occupied Units", "RR-OCC")
	occupancy.DenominatorCodes = []string{"RR-UNIT"}

	return []domain.MatchingRule{
		equality("A-1.1", "Net income parity",
			spec(domain.DocumentIncomeStatement, "Net Income", "9090"),
			spec(domain.DocumentCashFlow, "Net Income", "9090"),
			"1.00", false),
		equality("A-1.2", "Ending cash",
			spec(domain.DocumentBalanceSheet, "Cash - Operating", "1010"),
			spec(domain.DocumentCashFlow, "Ending Cash", "1999"),
			"1.00", false),
		equality("A-1.3", "Beginning cash roll-forward",
			spec(domain.DocumentCashFlow, "Beginning Cash", "1000"),
			priorCash,
			"1.00", false),
		equality("A-1.4", "Current year earnings",
			spec(domain.DocumentBalanceSheet, "Current Year Earnings", "3990"),
			spec(domain.DocumentIncomeStatement, "Net Income", "9090"),
			"1.00", false),
		equality("A-2.1", "Mortgage principal balance",
			spec(domain.DocumentBalanceSheet, "Mortgage Payable", "2610"),
			spec(domain.DocumentMortgageStatement, "Principal Balance", "MS-PRIN-BAL"),
			"0.01", true),
		equality("A-2.2", "Mortgage interest",
			spec(domain.DocumentIncomeStatement, "Mortgage Interest", "6510"),
			spec(domain.DocumentMortgageStatement, "Interest Paid", "MS-INT-PAID"),
			"0.01", true),
		equality("A-2.3", "Property tax escrow",
			spec(domain.DocumentBalanceSheet, "Escrow - Property Tax", "1310"),
			spec(domain.DocumentMortgageStatement, "Tax Escrow Balance", "MS-ESC-TAX"),
			"0.01", true),
		equality("A-2.4", "Insurance escrow",
			spec(domain.DocumentBalanceSheet, "Escrow - Insurance", "1320"),
			spec(domain.DocumentMortgageStatement, "Insurance Escrow Balance", "MS-ESC-INS"),
			"0.01", true),
		equality("A-2.5", "Replacement reserve",
			spec(domain.DocumentBalanceSheet, "Replacement Reserve", "1330"),
			spec(domain.DocumentMortgageStatement, "Reserve Balance", "MS-RESERVE"),
			"0.01", true),
		equality("A-2.6", "Principal paid",
			spec(domain.DocumentCashFlow, "Principal Payments", "7100"),
			spec(domain.DocumentMortgageStatement, "Principal Paid", "MS-PRIN-PAID"),
			"0.01", true),
		{
			Code:                 "A-3.1",
			Name:                 "Scheduled rent",
			Source:               spec(domain.DocumentRentRoll, "Monthly Rent", "RR-RENT"),
			Target:               spec(domain.DocumentIncomeStatement, "Base Rent", "4010"),
			Relationship:         domain.RelationshipSum,
			MaterialityThreshold: decimal.RequireFromString("50.00"),
			Enabled:              true,
			ExplanationTemplate:  defaultExplanation,
		},
		{
			Code:                 "A-3.2",
			Name:                 "Tenant receivables",
			Source:               spec(domain.DocumentRentRoll, "Tenant Balance", "RR-BAL"),
			Target:               spec(domain.DocumentBalanceSheet, "A/R Tenants", "1210"),
			Relationship:         domain.RelationshipSum,
			MaterialityThreshold: decimal.RequireFromString("25.00"),
			Enabled:              true,
			ExplanationTemplate:  defaultExplanation,
		},
		{
			Code:                 "A-3.3",
			Name:                 "Occupancy rate parity",
			Source:               occupancy,
			Target:               spec(domain.DocumentIncomeStatement, "Occupancy Rate", "OCC-RATE"),
			Relationship:         domain.RelationshipRatio,
			MaterialityThreshold: decimal.Zero,
			Tolerance:            0.02,
			Enabled:              true,
			ExplanationTemplate:  `{{.Rule.Name}}: rent roll occupancy {{.SourceValue}} vs reported {{.TargetValue}} (tolerance {{.Rule.Tolerance}})`,
		},
	}
}
