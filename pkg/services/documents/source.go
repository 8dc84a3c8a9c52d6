package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

// Source supplies the normalized line items extracted for a property and period.
type Source interface {
	LineItems(ctx context.Context, propertyID, periodID string) ([]domain.LineItem, error)
}

// Group splits line items by document type.
func Group(items []domain.LineItem) map[domain.DocumentType][]domain.Candidate {
	out := make(map[domain.DocumentType][]domain.Candidate)
	for _, item := range items {
		out[item.DocumentType] = append(out[item.DocumentType], domain.CandidateFromLineItem(item))
	}
	return out
}

type staticSource struct {
	items []domain.LineItem
}

func NewStaticSource(items ...domain.LineItem) Source {
	return &staticSource{items: items}
}

func (s *staticSource) LineItems(_ context.Context, propertyID, periodID string) ([]domain.LineItem, error) {
	return filter(s.items, propertyID, periodID), nil
}

type jsonFileSource struct {
	path string
}

// NewJSONFileSource reads line items from a JSON array on every call, so
// re-extracted documents are picked up by the next session run.
func NewJSONFileSource(path string) Source {
	return &jsonFileSource{path: path}
}

type lineItemRecord struct {
	PropertyID      string              `json:"property_id"`
	DocumentType    domain.DocumentType `json:"document_type"`
	AccountCode     string              `json:"account_code"`
	AccountName     string              `json:"account_name"`
	Amount          json.RawMessage     `json:"amount"`
	Period          string              `json:"period"`
	SourceReference string              `json:"source_reference"`
}

func (s *jsonFileSource) LineItems(ctx context.Context, propertyID, periodID string) ([]domain.LineItem, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read line items from %s: %w", s.path, err)
	}

	var records []lineItemRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode line items from %s: %w", s.path, err)
	}

	logger := zerolog.Ctx(ctx)
	items := make([]domain.LineItem, 0, len(records))
	for _, r := range records {
		amount := parseAmount(r.Amount)
		if !amount.Valid && r.PropertyID == propertyID {
			logger.Warn().
				Str("account_code", r.AccountCode).
				Str("source_reference", r.SourceReference).
				Msg("line item amount is not numeric")
		}
		items = append(items, domain.LineItem{
			PropertyID:      r.PropertyID,
			DocumentType:    r.DocumentType,
			AccountCode:     r.AccountCode,
			AccountName:     r.AccountName,
			Amount:          amount,
			Period:          r.Period,
			SourceReference: r.SourceReference,
		})
	}
	return filter(items, propertyID, periodID), nil
}

// parseAmount accepts JSON numbers and numeric strings; anything else is null.
func parseAmount(raw json.RawMessage) decimal.NullDecimal {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.NullDecimal{}
	}
	text = strings.Trim(text, `"`)
	text = strings.ReplaceAll(text, ",", "")
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func filter(items []domain.LineItem, propertyID, periodID string) []domain.LineItem {
	var out []domain.LineItem
	for _, item := range items {
		if item.PropertyID == propertyID && item.Period == periodID {
			out = append(out, item)
		}
	}
	return out
}
