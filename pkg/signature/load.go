package signature

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scrapemaster/sentinel/pkg/types"
)

type signatureFile struct {
	Signatures []types.ThreatSignature `yaml:"signatures"`
}

// LoadFile reads a declarative signature catalog. The file replaces the
// built-in set entirely; partial overrides are not supported, which keeps
// the loaded catalog the single source of truth.
func LoadFile(path string) ([]types.ThreatSignature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature file: %w", err)
	}

	var parsed signatureFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse signature file %s: %w", path, err)
	}
	if len(parsed.Signatures) == 0 {
		return nil, fmt.Errorf("signature file %s contains no signatures", path)
	}

	for i := range parsed.Signatures {
		if parsed.Signatures[i].PatternKind == "" {
			parsed.Signatures[i].PatternKind = types.PatternKindRegex
		}
	}
	return parsed.Signatures, nil
}
