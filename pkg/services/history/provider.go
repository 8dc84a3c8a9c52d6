package history

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/ini.v1"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

// Provider reads precomputed reliability statistics. Statistics are computed
// and refreshed elsewhere; a nil stat means there is no history for the pair.
type Provider interface {
	Stat(ctx context.Context, ruleCode, propertyID string) (*domain.HistoricalStat, error)
}

// Prefetch loads the stats of every rule for one property.
func Prefetch(ctx context.Context, p Provider, propertyID string, ruleCodes []string) (map[string]*domain.HistoricalStat, error) {
	out := make(map[string]*domain.HistoricalStat, len(ruleCodes))
	for _, code := range ruleCodes {
		stat, err := p.Stat(ctx, code, propertyID)
		if err != nil {
			return nil, fmt.Errorf("failed to read history for rule %s: %w", code, err)
		}
		if stat != nil {
			out[code] = stat
		}
	}
	return out, nil
}

func sectionName(propertyID, ruleCode string) string {
	return propertyID + "/" + ruleCode
}

type staticProvider struct {
	mu    sync.RWMutex
	stats map[string]domain.HistoricalStat
}

// NewStaticProvider serves stats from memory.
func NewStaticProvider(stats ...domain.HistoricalStat) Provider {
	p := &staticProvider{stats: make(map[string]domain.HistoricalStat, len(stats))}
	for _, s := range stats {
		p.stats[sectionName(s.PropertyID, s.RuleCode)] = s
	}
	return p
}

func (p *staticProvider) Stat(_ context.Context, ruleCode, propertyID string) (*domain.HistoricalStat, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.stats[sectionName(propertyID, ruleCode)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type iniProvider struct {
	cfg *ini.File
}

// NewINIProvider reads stats from an INI file with one section per
// "<property>/<rule>" pair:
//
//	[prop-001/A-2.1]
//	reliability = 0.93
//	tolerance   = 0.02
//	periods     = 6
func NewINIProvider(path string) (Provider, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load history file %s: %w", path, err)
	}
	return &iniProvider{cfg: cfg}, nil
}

func (p *iniProvider) Stat(_ context.Context, ruleCode, propertyID string) (*domain.HistoricalStat, error) {
	section, err := p.cfg.GetSection(sectionName(propertyID, ruleCode))
	if err != nil {
		return nil, nil
	}

	reliability, err := section.Key("reliability").Float64()
	if err != nil {
		return nil, fmt.Errorf("section %s: invalid reliability: %w", section.Name(), err)
	}
	if reliability < 0 || reliability > 1 {
		return nil, fmt.Errorf("section %s: reliability %v out of range [0,1]", section.Name(), reliability)
	}

	return &domain.HistoricalStat{
		RuleCode:    ruleCode,
		PropertyID:  propertyID,
		Reliability: reliability,
		Tolerance:   section.Key("tolerance").MustFloat64(0),
		Periods:     section.Key("periods").MustInt(0),
	}, nil
}
