package rules

import (
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

type ruleFile struct {
	Rules []ruleDefinition `yaml:"rules"`
}

type ruleDefinition struct {
	Code                 string                  `yaml:"code"`
	Name                 string                  `yaml:"name"`
	Source               domain.FieldSpec        `yaml:"source"`
	Target               domain.FieldSpec        `yaml:"target"`
	Relationship         domain.RelationshipType `yaml:"relationship"`
	MaterialityThreshold string                  `yaml:"materiality_threshold"`
	Tolerance            float64                 `yaml:"tolerance"`
	Critical             bool                    `yaml:"critical"`
	Blocking             bool                    `yaml:"blocking"`
	Enabled              *bool                   `yaml:"enabled"`
	Explanation          string                  `yaml:"explanation"`
}

// LoadFile reads rule definitions from a YAML file.
func LoadFile(path string) ([]domain.MatchingRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file %s: %w", path, err)
	}
	defer f.Close()

	rules, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %s: %w", path, err)
	}
	return rules, nil
}

// Decode parses YAML rule definitions. Rules are enabled unless stated otherwise.
func Decode(r io.Reader) ([]domain.MatchingRule, error) {
	var file ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	out := make([]domain.MatchingRule, 0, len(file.Rules))
	for i, def := range file.Rules {
		threshold := decimal.Zero
		if def.MaterialityThreshold != "" {
			v, err := decimal.NewFromString(def.MaterialityThreshold)
			if err != nil {
				return nil, fmt.Errorf("rule[%d] %s: invalid materiality threshold %q: %w", i, def.Code, def.MaterialityThreshold, err)
			}
			threshold = v
		}

		enabled := true
		if def.Enabled != nil {
			enabled = *def.Enabled
		}

		explanation := def.Explanation
		if explanation == "" {
			explanation = defaultExplanation
		}

		out = append(out, domain.MatchingRule{
			Code:                 def.Code,
			Name:                 def.Name,
			Source:               def.Source,
			Target:               def.Target,
			Relationship:         def.Relationship,
			MaterialityThreshold: threshold,
			Tolerance:            def.Tolerance,
			Critical:             def.Critical,
			Blocking:             def.Blocking,
			Enabled:              enabled,
			ExplanationTemplate:  explanation,
		})
	}
	return out, nil
}
