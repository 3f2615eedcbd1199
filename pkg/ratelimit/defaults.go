package ratelimit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scrapemaster/sentinel/pkg/types"
)

// DefaultRules is the baseline limit set: broad per-IP and per-user caps
// plus tighter caps on the endpoints attackers lean on.
func DefaultRules() []types.RateLimitRule {
	return []types.RateLimitRule{
		{
			ID:            "ip_baseline",
			Scope:         types.ScopeIP,
			Limit:         300,
			WindowSeconds: 60,
		},
		{
			ID:            "user_baseline",
			Scope:         types.ScopeUser,
			Limit:         600,
			WindowSeconds: 60,
		},
		{
			ID:            "login_throttle",
			Scope:         types.ScopeIP,
			Limit:         30,
			WindowSeconds: 300,
			Endpoints:     []string{"/api/v1/auth/login", "/api/v1/auth/signin"},
			Methods:       []string{"POST"},
		},
		{
			ID:            "export_throttle",
			Scope:         types.ScopeUser,
			Limit:         20,
			WindowSeconds: 300,
			Endpoints:     []string{"/api/v1/export*", "/api/v1/download*"},
		},
	}
}

type ruleFile struct {
	Rules []types.RateLimitRule `yaml:"rules"`
}

// LoadRuleFile reads declarative rate limit rules, replacing the defaults
// wholesale.
func LoadRuleFile(path string) ([]types.RateLimitRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate rule file: %w", err)
	}

	var parsed ruleFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse rate rule file %s: %w", path, err)
	}
	if len(parsed.Rules) == 0 {
		return nil, fmt.Errorf("rate rule file %s contains no rules", path)
	}
	for _, rule := range parsed.Rules {
		if rule.ID == "" || rule.Limit <= 0 || rule.WindowSeconds <= 0 {
			return nil, fmt.Errorf("rate rule file %s: rule %q needs id, limit and window_seconds", path, rule.ID)
		}
	}
	return parsed.Rules, nil
}
