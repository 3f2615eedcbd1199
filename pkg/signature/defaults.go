package signature

import (
	"github.com/scrapemaster/sentinel/pkg/types"
)

// DefaultSignatures is the built-in catalog used when no signature file is
// configured. IDs are stable; dashboards and audit consumers key on them.
func DefaultSignatures() []types.ThreatSignature {
	return []types.ThreatSignature{
		{
			ID:                  "sql_injection_1",
			Name:                "SQL injection keywords",
			Pattern:             `(union\s+select|'\s*or\s*'1'\s*=\s*'1|;\s*drop\s+table|insert\s+into|exec\s*\(|xp_cmdshell)`,
			PatternKind:         types.PatternKindRegex,
			Category:            types.CategoryInjection,
			Severity:            types.SeverityHigh,
			Action:              types.SignatureActionBlock,
			ConfidenceThreshold: 0.8,
		},
		{
			ID:                  "sql_injection_2",
			Name:                "SQL comment and stacked query markers",
			Pattern:             `(--\s|/\*.*\*/|;\s*shutdown|benchmark\s*\(|sleep\s*\(\d)`,
			PatternKind:         types.PatternKindRegex,
			Category:            types.CategoryInjection,
			Severity:            types.SeverityMedium,
			Action:              types.SignatureActionAlert,
			ConfidenceThreshold: 0.6,
		},
		{
			ID:                  "xss_1",
			Name:                "Script tag and event handler injection",
			Pattern:             `(<script|javascript:|vbscript:|onerror\s*=|onload\s*=|onclick\s*=|document\.cookie)`,
			PatternKind:         types.PatternKindRegex,
			Category:            types.CategoryXSS,
			Severity:            types.SeverityMedium,
			Action:              types.SignatureActionAlert,
			ConfidenceThreshold: 0.6,
		},
		{
			ID:                  "path_traversal_1",
			Name:                "Directory traversal sequences",
			Pattern:             `(\.\./|\.\.\\|%2e%2e%2f|/etc/passwd|/proc/self|boot\.ini)`,
			PatternKind:         types.PatternKindRegex,
			Category:            types.CategoryTraversal,
			Severity:            types.SeverityHigh,
			Action:              types.SignatureActionBlock,
			ConfidenceThreshold: 0.8,
		},
		{
			ID:                  "command_injection_1",
			Name:                "Shell command injection",
			Pattern:             "(;\\s*(cat|ls|id|whoami|wget|curl)\\s|\\|\\s*(cat|nc|bash)\\s|`[^`]+`|\\$\\(.+\\))",
			PatternKind:         types.PatternKindRegex,
			Category:            types.CategoryInjection,
			Severity:            types.SeverityCritical,
			Action:              types.SignatureActionBlock,
			ConfidenceThreshold: 0.9,
		},
		{
			ID:                  "scanner_ua_1",
			Name:                "Known scanner user agent",
			Pattern:             DetectorSuspiciousAgent,
			PatternKind:         types.PatternKindDetector,
			Category:            types.CategoryScanner,
			Severity:            types.SeverityMedium,
			Action:              types.SignatureActionAlert,
			ConfidenceThreshold: 0.5,
		},
		{
			ID:                  "brute_force_1",
			Name:                "Repeated login attempts",
			Pattern:             DetectorFailedLogins,
			PatternKind:         types.PatternKindDetector,
			Category:            types.CategoryBruteForce,
			Severity:            types.SeverityHigh,
			Action:              types.SignatureActionBlock,
			ConfidenceThreshold: 0.7,
			WindowSeconds:       300,
			Threshold:           10,
		},
		{
			ID:                  "dos_probe_1",
			Name:                "Rapid path probing",
			Pattern:             DetectorRapidPathProbing,
			PatternKind:         types.PatternKindDetector,
			Category:            types.CategoryDoS,
			Severity:            types.SeverityMedium,
			Action:              types.SignatureActionAlert,
			ConfidenceThreshold: 0.5,
			WindowSeconds:       60,
			Threshold:           120,
		},
		{
			ID:                  "exfiltration_1",
			Name:                "Bulk export harvesting",
			Pattern:             DetectorExportHarvesting,
			PatternKind:         types.PatternKindDetector,
			Category:            types.CategoryExfiltration,
			Severity:            types.SeverityHigh,
			Action:              types.SignatureActionQuarantine,
			ConfidenceThreshold: 0.7,
			WindowSeconds:       600,
			Threshold:           20,
		},
	}
}
