package scoring

import (
	"github.com/scrapemaster/sentinel/pkg/types"
)

// Per-match signature contributions. The sum of signature contributions is
// capped at 1.0 before the behavior and reputation terms are added, and the
// final confidence is clamped to [0,1]. Same inputs always produce the same
// output; the decision engine depends on that.
const (
	WeightCritical = 0.4
	WeightHigh     = 0.3
	WeightMedium   = 0.2
	WeightLow      = 0.1

	BehaviorWeight   = 0.3
	ReputationWeight = 0.2
)

// Decision thresholds. Challenge at 0.4 and block at 0.8 are contiguous
// with the severity tiers, so no confidence value falls between actions.
const (
	ThresholdCritical = 0.8
	ThresholdHigh     = 0.6
	ThresholdMedium   = 0.4
)

func severityWeight(s types.Severity) float64 {
	switch s {
	case types.SeverityCritical:
		return WeightCritical
	case types.SeverityHigh:
		return WeightHigh
	case types.SeverityMedium:
		return WeightMedium
	default:
		return WeightLow
	}
}

// Score combines signature matches, the behavioral score and the IP
// reputation score into one normalized confidence value.
func Score(matches []types.ThreatSignature, behaviorScore, ipRisk float64) float64 {
	signaturePart := 0.0
	for _, match := range matches {
		signaturePart += severityWeight(match.Severity)
	}
	signaturePart = clamp(signaturePart)

	confidence := signaturePart + clamp(behaviorScore)*BehaviorWeight + clamp(ipRisk)*ReputationWeight
	return clamp(confidence)
}

// Classify maps a confidence value onto a severity class.
func Classify(confidence float64) types.Severity {
	switch {
	case confidence >= ThresholdCritical:
		return types.SeverityCritical
	case confidence >= ThresholdHigh:
		return types.SeverityHigh
	case confidence >= ThresholdMedium:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
