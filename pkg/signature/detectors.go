package signature

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scrapemaster/sentinel/pkg/types"
	"github.com/scrapemaster/sentinel/pkg/window"
)

// Detector names referenced by PatternKindDetector signatures.
const (
	DetectorFailedLogins       = "multiple_failed_logins"
	DetectorSuspiciousAgent    = "suspicious_user_agent"
	DetectorRapidPathProbing   = "rapid_path_probing"
	DetectorExportHarvesting   = "export_harvesting"
	DetectorMissingCommonAgent = "missing_user_agent"
)

func builtinDetectors() map[string]DetectorFunc {
	return map[string]DetectorFunc{
		DetectorFailedLogins:       detectFailedLogins,
		DetectorSuspiciousAgent:    detectSuspiciousAgent,
		DetectorRapidPathProbing:   detectRapidPathProbing,
		DetectorExportHarvesting:   detectExportHarvesting,
		DetectorMissingCommonAgent: detectMissingAgent,
	}
}

func frequencyWindow(sig types.ThreatSignature) time.Duration {
	if sig.WindowSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(sig.WindowSeconds) * time.Second
}

func frequencyThreshold(sig types.ThreatSignature) int {
	if sig.Threshold <= 0 {
		return 5
	}
	return sig.Threshold
}

// detectFailedLogins counts login-path requests per source IP; it only
// matches once the windowed count reaches the signature threshold.
func detectFailedLogins(ctx context.Context, fp *types.RequestFingerprint, sig types.ThreatSignature, counters window.CounterStore) (bool, error) {
	if !strings.Contains(strings.ToLower(fp.Path), "login") && !strings.Contains(strings.ToLower(fp.Path), "signin") {
		return false, nil
	}

	key := fmt.Sprintf("failed_logins:%s", fp.SourceIP)
	if _, err := counters.Increment(ctx, key); err != nil {
		return false, err
	}
	count, err := counters.Count(ctx, key, frequencyWindow(sig))
	if err != nil {
		return false, err
	}
	return count >= frequencyThreshold(sig), nil
}

var suspiciousAgentFragments = []string{
	"sqlmap", "nikto", "nmap", "masscan", "dirbuster", "gobuster",
	"wpscan", "nessus", "metasploit", "hydra", "zgrab", "curl/7.1",
	"python-requests/1.", "libwww-perl",
}

func detectSuspiciousAgent(ctx context.Context, fp *types.RequestFingerprint, sig types.ThreatSignature, counters window.CounterStore) (bool, error) {
	agent := strings.ToLower(fp.UserAgent)
	if agent == "" {
		return false, nil
	}
	for _, fragment := range suspiciousAgentFragments {
		if strings.Contains(agent, fragment) {
			return true, nil
		}
	}
	return false, nil
}

// detectRapidPathProbing flags sources cycling through distinct paths at
// scanner speed.
func detectRapidPathProbing(ctx context.Context, fp *types.RequestFingerprint, sig types.ThreatSignature, counters window.CounterStore) (bool, error) {
	key := fmt.Sprintf("path_probe:%s:%s", fp.SourceIP, fp.Path)
	if _, err := counters.Increment(ctx, key); err != nil {
		return false, err
	}

	probeKey := fmt.Sprintf("probe_total:%s", fp.SourceIP)
	if _, err := counters.Increment(ctx, probeKey); err != nil {
		return false, err
	}
	count, err := counters.Count(ctx, probeKey, frequencyWindow(sig))
	if err != nil {
		return false, err
	}
	return count >= frequencyThreshold(sig), nil
}

// detectExportHarvesting watches repeated hits on data-export endpoints,
// the request shape of a bulk exfiltration run.
func detectExportHarvesting(ctx context.Context, fp *types.RequestFingerprint, sig types.ThreatSignature, counters window.CounterStore) (bool, error) {
	lower := strings.ToLower(fp.Path)
	if !strings.Contains(lower, "export") && !strings.Contains(lower, "download") {
		return false, nil
	}

	key := fmt.Sprintf("exports:%s", keyIdentity(fp))
	if _, err := counters.Increment(ctx, key); err != nil {
		return false, err
	}
	count, err := counters.Count(ctx, key, frequencyWindow(sig))
	if err != nil {
		return false, err
	}
	return count >= frequencyThreshold(sig), nil
}

func detectMissingAgent(ctx context.Context, fp *types.RequestFingerprint, sig types.ThreatSignature, counters window.CounterStore) (bool, error) {
	return strings.TrimSpace(fp.UserAgent) == "", nil
}

// keyIdentity prefers the authenticated identity over the source address so
// one user harvesting through rotating proxies is still a single key.
func keyIdentity(fp *types.RequestFingerprint) string {
	if fp.UserID != "" {
		return "user:" + fp.UserID
	}
	return "ip:" + fp.SourceIP
}
