package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type DocumentType string

const (
	DocumentBalanceSheet      DocumentType = "balance_sheet"
	DocumentIncomeStatement   DocumentType = "income_statement"
	DocumentCashFlow          DocumentType = "cash_flow"
	DocumentRentRoll          DocumentType = "rent_roll"
	DocumentMortgageStatement DocumentType = "mortgage_statement"
)

var DocumentTypes = []DocumentType{
	DocumentBalanceSheet,
	DocumentIncomeStatement,
	DocumentCashFlow,
	DocumentRentRoll,
	DocumentMortgageStatement,
}

func (d DocumentType) Valid() bool {
	for _, known := range DocumentTypes {
		if d == known {
			return true
		}
	}
	return false
}

// LineItem is one normalized figure supplied by the extraction layer.
// A null Amount marks a value the extractor could not read as a number.
type LineItem struct {
	PropertyID      string              `json:"property_id"`
	DocumentType    DocumentType        `json:"document_type"`
	AccountCode     string              `json:"account_code"`
	AccountName     string              `json:"account_name"`
	Amount          decimal.NullDecimal `json:"amount"`
	Period          string              `json:"period"`
	SourceReference string              `json:"source_reference"`
}

// Candidate is a line item resolved for one side of a rule.
type Candidate struct {
	DocumentType    DocumentType
	AccountCode     string
	AccountName     string
	Value           decimal.NullDecimal
	Period          string
	SourceReference string
}

func CandidateFromLineItem(item LineItem) Candidate {
	return Candidate{
		DocumentType:    item.DocumentType,
		AccountCode:     item.AccountCode,
		AccountName:     item.AccountName,
		Value:           item.Amount,
		Period:          item.Period,
		SourceReference: item.SourceReference,
	}
}

const periodLayout = "2006-01"

// ShiftPeriod moves a monthly period identifier (YYYY-MM) by offset months.
func ShiftPeriod(period string, offset int) (string, error) {
	if offset == 0 {
		return period, nil
	}
	t, err := time.Parse(periodLayout, period)
	if err != nil {
		return "", fmt.Errorf("invalid period %q: %w", period, err)
	}
	return t.AddDate(0, offset, 0).Format(periodLayout), nil
}

// PeriodGap returns the distance in months between two periods.
func PeriodGap(a, b string) (int, error) {
	ta, err := time.Parse(periodLayout, a)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q: %w", a, err)
	}
	tb, err := time.Parse(periodLayout, b)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q: %w", b, err)
	}
	months := (ta.Year()-tb.Year())*12 + int(ta.Month()) - int(tb.Month())
	if months < 0 {
		months = -months
	}
	return months, nil
}
