package types

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type ThreatCategory string

const (
	CategoryInjection    ThreatCategory = "injection"
	CategoryXSS          ThreatCategory = "xss"
	CategoryTraversal    ThreatCategory = "traversal"
	CategoryScanner      ThreatCategory = "scanner"
	CategoryBruteForce   ThreatCategory = "brute_force"
	CategoryDoS          ThreatCategory = "dos"
	CategoryExfiltration ThreatCategory = "exfiltration"
)

// SignatureAction labels a signature's intent for audit consumers. The
// decision itself rides on severity and the combined confidence score;
// log, alert and block are advisory metadata carried into events.
// Quarantine is the exception: a matching signature additionally blocks
// the request's session key.
type SignatureAction string

const (
	SignatureActionLog        SignatureAction = "log"
	SignatureActionAlert      SignatureAction = "alert"
	SignatureActionBlock      SignatureAction = "block"
	SignatureActionQuarantine SignatureAction = "quarantine"
)

// ThreatSignature is a single detection rule. Pattern holds either a regular
// expression or the name of a registered detector (PatternKindDetector).
// Signatures are immutable once the catalog is loaded.
type ThreatSignature struct {
	ID                  string          `json:"id" yaml:"id"`
	Name                string          `json:"name" yaml:"name"`
	Pattern             string          `json:"pattern" yaml:"pattern"`
	PatternKind         PatternKind     `json:"pattern_kind" yaml:"pattern_kind"`
	Category            ThreatCategory  `json:"category" yaml:"category"`
	Severity            Severity        `json:"severity" yaml:"severity"`
	Action              SignatureAction `json:"action" yaml:"action"`
	ConfidenceThreshold float64         `json:"confidence_threshold" yaml:"confidence_threshold"`
	WindowSeconds       int             `json:"window_seconds,omitempty" yaml:"window_seconds,omitempty"`
	Threshold           int             `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

type PatternKind string

const (
	PatternKindRegex    PatternKind = "regex"
	PatternKindDetector PatternKind = "detector"
)

// RequestFingerprint is the normalized, immutable snapshot of one inbound
// request used as the unit of threat analysis.
type RequestFingerprint struct {
	SourceIP    string            `json:"source_ip"`
	UserAgent   string            `json:"user_agent,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Path        string            `json:"path"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

type SecurityEvent struct {
	ID              uuid.UUID      `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	SourceIP        string         `json:"source_ip"`
	UserAgent       string         `json:"user_agent,omitempty"`
	UserID          string         `json:"user_id,omitempty"`
	SessionID       string         `json:"session_id,omitempty"`
	Path            string         `json:"path"`
	Method          string         `json:"method"`
	ThreatType      ThreatCategory `json:"threat_type"`
	Severity        Severity       `json:"severity"`
	ConfidenceScore float64        `json:"confidence_score"`
	Blocked         bool           `json:"blocked"`
	MatchedRules    []string       `json:"matched_rules,omitempty"`
	PatternID       string         `json:"pattern_id,omitempty"`
}

// AttackPattern is a multi-event correlation rule: events carrying any of the
// indicator tags are counted inside the trailing window.
type AttackPattern struct {
	ID            string   `json:"id" yaml:"id"`
	AttackType    string   `json:"attack_type" yaml:"attack_type"`
	Indicators    []string `json:"indicators" yaml:"indicators"`
	WindowMinutes int      `json:"window_minutes" yaml:"window_minutes"`
	Threshold     int      `json:"threshold" yaml:"threshold"`
	Severity      Severity `json:"severity" yaml:"severity"`
}

type AttackPatternAlert struct {
	ID        uuid.UUID   `json:"id"`
	PatternID string      `json:"pattern_id"`
	EventIDs  []uuid.UUID `json:"event_ids"`
	SourceIPs []string    `json:"source_ips"`
	FirstSeen time.Time   `json:"first_seen"`
	LastSeen  time.Time   `json:"last_seen"`
}

type RateLimitScope string

const (
	ScopeIP       RateLimitScope = "ip"
	ScopeUser     RateLimitScope = "user"
	ScopeSession  RateLimitScope = "session"
	ScopeEndpoint RateLimitScope = "endpoint"
)

type RateLimitRule struct {
	ID            string         `json:"id" yaml:"id"`
	Scope         RateLimitScope `json:"scope" yaml:"scope"`
	Limit         int            `json:"limit" yaml:"limit"`
	WindowSeconds int            `json:"window_seconds" yaml:"window_seconds"`
	Endpoints     []string       `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	Methods       []string       `json:"methods,omitempty" yaml:"methods,omitempty"`
	Exempt        []string       `json:"exempt,omitempty" yaml:"exempt,omitempty"`
}

type RateLimitResult struct {
	Allowed    bool          `json:"allowed"`
	RuleID     string        `json:"rule_id,omitempty"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

type ResponseAction string

const (
	ActionAllow     ResponseAction = "allow"
	ActionChallenge ResponseAction = "challenge"
	ActionRateLimit ResponseAction = "rate_limit"
	ActionBlock     ResponseAction = "block"
)

// SecurityResponse is the per-request verdict returned to the middleware
// layer. Reason carries a coarse category only; full detail stays in the
// emitted audit event.
type SecurityResponse struct {
	Action     ResponseAction `json:"action"`
	Reason     string         `json:"reason"`
	Confidence float64        `json:"confidence"`
	RetryAfter time.Duration  `json:"retry_after,omitempty"`
	EventID    uuid.UUID      `json:"event_id,omitempty"`
}

type DashboardSnapshot struct {
	EventsLast24h  int               `json:"events_last_24h"`
	BlockedCount   int               `json:"blocked_count"`
	ThreatLevels   map[Severity]int  `json:"threat_levels_by_severity"`
	TopThreatTypes []ThreatTypeCount `json:"top_threat_types"`
	BlockedIPCount int               `json:"blocked_ip_count"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

type ThreatTypeCount struct {
	Type  ThreatCategory `json:"type"`
	Count int            `json:"count"`
}
