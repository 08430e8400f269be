// Package conflicts detects contradictions between assumptions by comparing
// their structured parameters within a category. Detection is rule-based:
// each category has a fixed comparison and a configured confidence constant.
package conflicts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules holds the per-category confidence constants. Confidence expresses
// how reliable the comparison is as a conflict signal; it is a configured
// constant per rule, never derived from the data.
type Rules struct {
	BudgetConfidence   float64 `yaml:"budget_confidence"`
	MarketConfidence   float64 `yaml:"market_confidence"`
	TimelineConfidence float64 `yaml:"timeline_confidence"`
}

// DefaultRules returns the built-in confidence constants.
func DefaultRules() Rules {
	return Rules{
		BudgetConfidence:   0.9,
		MarketConfidence:   0.85,
		TimelineConfidence: 0.8,
	}
}

// LoadRules reads rule overrides from a YAML file, falling back to the
// defaults for any field left unset. An empty path returns the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("conflicts: read rules file: %w", err)
	}

	var overrides struct {
		BudgetConfidence   *float64 `yaml:"budget_confidence"`
		MarketConfidence   *float64 `yaml:"market_confidence"`
		TimelineConfidence *float64 `yaml:"timeline_confidence"`
	}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return Rules{}, fmt.Errorf("conflicts: parse rules file: %w", err)
	}

	if overrides.BudgetConfidence != nil {
		rules.BudgetConfidence = *overrides.BudgetConfidence
	}
	if overrides.MarketConfidence != nil {
		rules.MarketConfidence = *overrides.MarketConfidence
	}
	if overrides.TimelineConfidence != nil {
		rules.TimelineConfidence = *overrides.TimelineConfidence
	}

	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate checks all confidence values are in (0, 1].
func (r Rules) Validate() error {
	for name, v := range map[string]float64{
		"budget_confidence":   r.BudgetConfidence,
		"market_confidence":   r.MarketConfidence,
		"timeline_confidence": r.TimelineConfidence,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("conflicts: %s must be in (0, 1], got %v", name, v)
		}
	}
	return nil
}
