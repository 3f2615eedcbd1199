package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scrapemaster/sentinel/pkg/audit"
	"github.com/scrapemaster/sentinel/pkg/blocklist"
	"github.com/scrapemaster/sentinel/pkg/correlation"
	"github.com/scrapemaster/sentinel/pkg/ratelimit"
	"github.com/scrapemaster/sentinel/pkg/reputation"
	"github.com/scrapemaster/sentinel/pkg/scoring"
	"github.com/scrapemaster/sentinel/pkg/signature"
	"github.com/scrapemaster/sentinel/pkg/types"
	"github.com/scrapemaster/sentinel/pkg/window"
)

// Coarse reasons returned to callers. Full detail stays in audit events so
// responses never tip off an attacker about what matched.
const (
	ReasonExistingBlock      = "access temporarily restricted"
	ReasonRateLimited        = "rate limit exceeded"
	ReasonThreatDetected     = "request rejected by security policy"
	ReasonVerificationNeeded = "additional verification required"
	ReasonInvalidFingerprint = "malformed request"
	ReasonAnalysisError      = "analysis error"
)

// Policy holds the tunable decision constants. The scoring weights live in
// pkg/scoring; these are the engine-level knobs.
type Policy struct {
	CriticalSignatureBlockTTL time.Duration
	ConfidenceBlockTTL        time.Duration
	QuarantineTTL             time.Duration
	OracleTimeout             time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		CriticalSignatureBlockTTL: 30 * time.Minute,
		ConfidenceBlockTTL:        60 * time.Minute,
		QuarantineTTL:             15 * time.Minute,
		OracleTimeout:             500 * time.Millisecond,
	}
}

// Engine runs the full per-request pipeline: block lookup, rate limiting,
// signature matching, reputation/behavior lookup, scoring and the final
// decision, then feeds the correlator and audit sink.
type Engine struct {
	catalog    *signature.Catalog
	limiter    *ratelimit.Limiter
	oracle     reputation.Oracle
	blocks     blocklist.Store
	counters   window.CounterStore
	buffer     *correlation.Buffer
	correlator *correlation.Correlator
	sink       audit.Sink
	logger     *logrus.Logger
	policy     Policy
	now        func() time.Time
}

type Options struct {
	Catalog    *signature.Catalog
	Limiter    *ratelimit.Limiter
	Oracle     reputation.Oracle
	Blocks     blocklist.Store
	Counters   window.CounterStore
	Buffer     *correlation.Buffer
	Correlator *correlation.Correlator
	Sink       audit.Sink
	Logger     *logrus.Logger
	Policy     Policy
}

func New(opts Options) *Engine {
	policy := opts.Policy
	if policy.CriticalSignatureBlockTTL == 0 {
		policy = DefaultPolicy()
	}
	return &Engine{
		catalog:    opts.Catalog,
		limiter:    opts.Limiter,
		oracle:     opts.Oracle,
		blocks:     opts.Blocks,
		counters:   opts.Counters,
		buffer:     opts.Buffer,
		correlator: opts.Correlator,
		sink:       opts.Sink,
		logger:     opts.Logger,
		policy:     policy,
		now:        time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Analyze produces the verdict for one request. It never returns an error:
// every failure mode inside the pipeline resolves to a deny-style action,
// so an unhealthy analyzer can not become a silent bypass.
func (e *Engine) Analyze(ctx context.Context, fp *types.RequestFingerprint) types.SecurityResponse {
	if fp == nil || fp.SourceIP == "" {
		// A request we cannot attribute is maximally suspicious.
		resp := types.SecurityResponse{Action: types.ActionBlock, Reason: ReasonInvalidFingerprint, Confidence: 1}
		if fp != nil {
			resp.EventID = e.record(ctx, fp, types.CategoryScanner, types.SeverityHigh, 1, true, nil)
		}
		return resp
	}

	// 1. Standing blocks short-circuit everything, no further scoring.
	if blocked, reason := e.activeBlock(ctx, fp); blocked {
		e.logger.WithFields(logrus.Fields{
			"source_ip": fp.SourceIP,
			"reason":    reason,
		}).Debug("Request denied by standing block")
		return types.SecurityResponse{Action: types.ActionBlock, Reason: ReasonExistingBlock, Confidence: 1}
	}

	// 2. Rate limiter, fail closed on store trouble.
	limit, err := e.limiter.Check(ctx, fp)
	if err != nil || !limit.Allowed {
		eventID := e.record(ctx, fp, types.CategoryDoS, types.SeverityMedium, 0, false, []string{limit.RuleID})
		return types.SecurityResponse{
			Action:     types.ActionRateLimit,
			Reason:     ReasonRateLimited,
			RetryAfter: limit.RetryAfter,
			EventID:    eventID,
		}
	}

	// 3-7. Full scoring, with panics contained to a fail-closed block.
	resp, err := e.scoreAndDecide(ctx, fp)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"source_ip": fp.SourceIP,
			"path":      fp.Path,
			"error":     err.Error(),
		}).Error("Threat analysis failed, failing closed")
		eventID := e.record(ctx, fp, types.CategoryScanner, types.SeverityCritical, 1, true, nil)
		return types.SecurityResponse{Action: types.ActionBlock, Reason: ReasonAnalysisError, Confidence: 1, EventID: eventID}
	}
	return resp
}

func (e *Engine) scoreAndDecide(ctx context.Context, fp *types.RequestFingerprint) (resp types.SecurityResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during scoring: %v", r)
		}
	}()

	matches, err := e.catalog.Match(ctx, fp)
	if err != nil {
		return types.SecurityResponse{}, err
	}

	behavior, ipRisk := e.oracleScores(ctx, fp)
	confidence := scoring.Score(matches, behavior, ipRisk)
	severity := scoring.Classify(confidence)

	matchedIDs := make([]string, 0, len(matches))
	hasCritical := false
	wantsQuarantine := false
	threatType := types.ThreatCategory("")
	var top types.ThreatSignature
	for _, match := range matches {
		matchedIDs = append(matchedIDs, match.ID)
		if match.Severity == types.SeverityCritical {
			hasCritical = true
		}
		if match.Action == types.SignatureActionQuarantine {
			wantsQuarantine = true
		}
		if severityRank(match.Severity) >= severityRank(top.Severity) {
			top = match
			threatType = match.Category
		}
	}
	if threatType == "" {
		threatType = types.CategoryScanner
	}

	switch {
	case hasCritical:
		// Severity override: a critical signature blocks regardless of
		// the combined score.
		e.placeBlock(ctx, fp, "critical signature match", e.policy.CriticalSignatureBlockTTL, wantsQuarantine)
		eventID := e.record(ctx, fp, threatType, types.SeverityCritical, confidence, true, matchedIDs)
		return types.SecurityResponse{Action: types.ActionBlock, Reason: ReasonThreatDetected, Confidence: confidence, EventID: eventID}, nil

	case confidence >= scoring.ThresholdCritical:
		e.placeBlock(ctx, fp, "combined confidence over block threshold", e.policy.ConfidenceBlockTTL, wantsQuarantine)
		eventID := e.record(ctx, fp, threatType, severity, confidence, true, matchedIDs)
		return types.SecurityResponse{Action: types.ActionBlock, Reason: ReasonThreatDetected, Confidence: confidence, EventID: eventID}, nil

	case confidence >= scoring.ThresholdMedium:
		eventID := e.record(ctx, fp, threatType, severity, confidence, false, matchedIDs)
		return types.SecurityResponse{Action: types.ActionChallenge, Reason: ReasonVerificationNeeded, Confidence: confidence, EventID: eventID}, nil

	case len(matchedIDs) > 0:
		// Below the challenge threshold but still worth the audit trail.
		eventID := e.record(ctx, fp, threatType, severity, confidence, false, matchedIDs)
		return types.SecurityResponse{Action: types.ActionAllow, Confidence: confidence, EventID: eventID}, nil
	}

	return types.SecurityResponse{Action: types.ActionAllow, Confidence: confidence}, nil
}

// oracleScores consults the reputation oracle with a bounded timeout. A
// failing or slow oracle degrades that contribution to neutral; the rest of
// the pipeline continues.
func (e *Engine) oracleScores(ctx context.Context, fp *types.RequestFingerprint) (behavior, ipRisk float64) {
	octx, cancel := context.WithTimeout(ctx, e.policy.OracleTimeout)
	defer cancel()

	var err error
	if behavior, err = e.oracle.BehaviorScore(octx, fp); err != nil {
		behavior = 0
		e.logger.WithFields(logrus.Fields{
			"dependency": "behavior_oracle",
			"error":      err.Error(),
		}).Warn("Oracle degraded, using neutral behavior score")
	}
	if ipRisk, err = e.oracle.IPRisk(octx, fp.SourceIP); err != nil {
		ipRisk = 0
		e.logger.WithFields(logrus.Fields{
			"dependency": "reputation_oracle",
			"error":      err.Error(),
		}).Warn("Oracle degraded, using neutral reputation score")
	}
	return behavior, ipRisk
}

func (e *Engine) activeBlock(ctx context.Context, fp *types.RequestFingerprint) (bool, string) {
	keys := []string{blocklist.IPKey(fp.SourceIP)}
	if fp.SessionID != "" {
		keys = append(keys, blocklist.SessionKey(fp.SessionID))
	}
	for _, key := range keys {
		entry, err := e.blocks.Get(ctx, key)
		if err != nil {
			// Degraded block store: continue to full scoring rather than
			// trusting a lookup that may be stale either way.
			e.logger.WithFields(logrus.Fields{
				"dependency": "blocklist",
				"error":      err.Error(),
			}).Warn("Block lookup degraded")
			continue
		}
		if entry != nil {
			return true, entry.Reason
		}
	}
	return false, ""
}

func (e *Engine) placeBlock(ctx context.Context, fp *types.RequestFingerprint, reason string, ttl time.Duration, quarantineSession bool) {
	now := e.now()
	entry := blocklist.Entry{
		Key:       blocklist.IPKey(fp.SourceIP),
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := e.blocks.Put(ctx, entry); err != nil {
		e.logger.WithError(err).Error("Failed to persist block entry")
	}

	if quarantineSession && fp.SessionID != "" {
		q := blocklist.Entry{
			Key:       blocklist.SessionKey(fp.SessionID),
			Reason:    "session quarantined: " + reason,
			CreatedAt: now,
			ExpiresAt: now.Add(e.policy.QuarantineTTL),
		}
		if err := e.blocks.Put(ctx, q); err != nil {
			e.logger.WithError(err).Error("Failed to quarantine session")
		}
	}
}

// record creates the SecurityEvent for a non-allow outcome (or a matched
// allow), appends it to the rolling buffer, forwards it to the audit sink
// and pokes the correlator. Duplicate emission from an abandoned request is
// harmless: at worst an extra audit line, never a missed block.
func (e *Engine) record(ctx context.Context, fp *types.RequestFingerprint, threatType types.ThreatCategory, severity types.Severity, confidence float64, blocked bool, matched []string) uuid.UUID {
	event := types.SecurityEvent{
		ID:              uuid.New(),
		Timestamp:       e.now(),
		SourceIP:        fp.SourceIP,
		UserAgent:       fp.UserAgent,
		UserID:          fp.UserID,
		SessionID:       fp.SessionID,
		Path:            fp.Path,
		Method:          fp.Method,
		ThreatType:      threatType,
		Severity:        severity,
		ConfidenceScore: confidence,
		Blocked:         blocked,
		MatchedRules:    matched,
	}

	if err := e.sink.LogEvent(ctx, event); err != nil {
		e.logger.WithError(err).Error("Failed to write audit event")
	}
	if e.correlator != nil {
		e.correlator.Notify(event)
	} else {
		e.buffer.Append(event)
	}
	return event.ID
}

func severityRank(s types.Severity) int {
	switch s {
	case types.SeverityCritical:
		return 4
	case types.SeverityHigh:
		return 3
	case types.SeverityMedium:
		return 2
	case types.SeverityLow:
		return 1
	}
	return 0
}

// Unblock removes a standing block or quarantine entry. Exposed to the
// security API for manual operator action.
func (e *Engine) Unblock(ctx context.Context, key string) error {
	return e.blocks.Delete(ctx, key)
}

// BlockedEntries lists currently active blocks.
func (e *Engine) BlockedEntries(ctx context.Context) ([]blocklist.Entry, error) {
	return e.blocks.Active(ctx)
}
