package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"propcheck/internal/domain"
)

// presetsFile models the rules preset YAML:
//
//	presets:
//	  phase1:
//	    max_drawdown_percent: 10
//	    profit_target_percent: 8
type presetsFile struct {
	Presets map[string]presetRules `yaml:"presets"`
}

type presetRules struct {
	MaxDrawdownPercent  float64  `yaml:"max_drawdown_percent"`
	ProfitTargetPercent float64  `yaml:"profit_target_percent"`
	MaxDailyLossPercent *float64 `yaml:"max_daily_loss_percent"`
}

// LoadPresets reads named challenge rule sets from a YAML file. Submitters
// may reference a preset name instead of spelling out rules inline.
func LoadPresets(path string) (map[string]domain.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file presetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid presets yaml: %w", err)
	}
	presets := make(map[string]domain.Rules, len(file.Presets))
	for name, p := range file.Presets {
		if p.MaxDrawdownPercent <= 0 || p.MaxDrawdownPercent > 100 {
			return nil, fmt.Errorf("preset %s: max_drawdown_percent must be in (0,100]", name)
		}
		if p.ProfitTargetPercent <= 0 {
			return nil, fmt.Errorf("preset %s: profit_target_percent must be positive", name)
		}
		if p.MaxDailyLossPercent != nil && (*p.MaxDailyLossPercent <= 0 || *p.MaxDailyLossPercent > 100) {
			return nil, fmt.Errorf("preset %s: max_daily_loss_percent must be in (0,100]", name)
		}
		presets[name] = domain.Rules{
			MaxDrawdownPercent:  p.MaxDrawdownPercent,
			ProfitTargetPercent: p.ProfitTargetPercent,
			MaxDailyLossPercent: p.MaxDailyLossPercent,
		}
	}
	return presets, nil
}
