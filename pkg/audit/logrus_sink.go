package audit

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/scrapemaster/sentinel/pkg/types"
)

// LogrusSink writes audit records as structured log entries. This is the
// default sink; full event detail lands here and only coarse reasons go
// back to callers.
type LogrusSink struct {
	logger *logrus.Logger
}

func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	return &LogrusSink{logger: logger}
}

func (s *LogrusSink) LogEvent(ctx context.Context, event types.SecurityEvent) error {
	s.logger.WithFields(logrus.Fields{
		"event_type":       "security_event",
		"event_id":         event.ID.String(),
		"source_ip":        event.SourceIP,
		"user_id":          event.UserID,
		"path":             event.Path,
		"method":           event.Method,
		"threat_type":      event.ThreatType,
		"severity":         event.Severity,
		"confidence_score": event.ConfidenceScore,
		"blocked":          event.Blocked,
		"matched_rules":    event.MatchedRules,
	}).Warn("Security event recorded")
	return nil
}

func (s *LogrusSink) LogAlert(ctx context.Context, alert types.AttackPatternAlert) error {
	s.logger.WithFields(logrus.Fields{
		"event_type": "attack_pattern_alert",
		"alert_id":   alert.ID.String(),
		"pattern_id": alert.PatternID,
		"source_ips": alert.SourceIPs,
		"events":     len(alert.EventIDs),
		"first_seen": alert.FirstSeen,
		"last_seen":  alert.LastSeen,
	}).Error("Attack pattern alert")
	return nil
}
