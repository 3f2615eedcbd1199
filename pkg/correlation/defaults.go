package correlation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scrapemaster/sentinel/pkg/types"
)

// DefaultPatterns covers the coordinated behaviors the platform sees most:
// credential stuffing, directory brute force and bulk data exfiltration.
func DefaultPatterns() []types.AttackPattern {
	return []types.AttackPattern{
		{
			ID:            "credential_stuffing",
			AttackType:    "credential_stuffing",
			Indicators:    []string{"failed_login", "brute_force"},
			WindowMinutes: 10,
			Threshold:     20,
			Severity:      types.SeverityCritical,
		},
		{
			ID:            "directory_brute_force",
			AttackType:    "directory_brute_force",
			Indicators:    []string{"not_found_probe", "traversal", "scanner"},
			WindowMinutes: 5,
			Threshold:     15,
			Severity:      types.SeverityHigh,
		},
		{
			ID:            "data_exfiltration",
			AttackType:    "data_exfiltration",
			Indicators:    []string{"export_endpoint", "exfiltration"},
			WindowMinutes: 30,
			Threshold:     25,
			Severity:      types.SeverityCritical,
		},
	}
}

type patternFile struct {
	Patterns []types.AttackPattern `yaml:"patterns"`
}

// LoadPatternFile reads declarative attack patterns, replacing the
// defaults wholesale.
func LoadPatternFile(path string) ([]types.AttackPattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}

	var parsed patternFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse pattern file %s: %w", path, err)
	}
	if len(parsed.Patterns) == 0 {
		return nil, fmt.Errorf("pattern file %s contains no patterns", path)
	}
	return parsed.Patterns, nil
}
