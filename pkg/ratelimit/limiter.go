package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrapemaster/sentinel/pkg/types"
	"github.com/scrapemaster/sentinel/pkg/window"
)

// Limiter evaluates declarative per-route rules against the sliding-window
// counter store. Rules are independent: each one that matches the request is
// checked, and the first rejection wins.
type Limiter struct {
	rules    []types.RateLimitRule
	counters window.CounterStore
	logger   *logrus.Logger
	now      func() time.Time
}

func NewLimiter(rules []types.RateLimitRule, counters window.CounterStore, logger *logrus.Logger) *Limiter {
	return &Limiter{
		rules:    rules,
		counters: counters,
		logger:   logger,
		now:      time.Now,
	}
}

func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) Rules() []types.RateLimitRule {
	out := make([]types.RateLimitRule, len(l.rules))
	copy(out, l.rules)
	return out
}

// Check evaluates every applicable rule. A counter-store failure rejects the
// request rather than waving it through: rate limiting fails closed.
func (l *Limiter) Check(ctx context.Context, fp *types.RequestFingerprint) (types.RateLimitResult, error) {
	for _, rule := range l.rules {
		if !ruleApplies(rule, fp) {
			continue
		}
		key, ok := ruleKey(rule, fp)
		if !ok {
			// Scope identity absent (e.g. user rule on an anonymous
			// request); the rule cannot key this request.
			continue
		}
		if exempt(rule, key) {
			continue
		}

		result, err := l.checkRule(ctx, rule, key)
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"key":     key,
				"error":   err.Error(),
			}).Error("Rate limit evaluation failed, rejecting request")
			return types.RateLimitResult{
				Allowed: false,
				RuleID:  rule.ID,
				Limit:   rule.Limit,
				ResetAt: l.now().Add(ruleWindow(rule)),
			}, err
		}
		if !result.Allowed {
			return result, nil
		}
	}
	return types.RateLimitResult{Allowed: true}, nil
}

func (l *Limiter) checkRule(ctx context.Context, rule types.RateLimitRule, key string) (types.RateLimitResult, error) {
	windowDur := ruleWindow(rule)
	count, err := l.counters.Count(ctx, key, windowDur)
	if err != nil {
		return types.RateLimitResult{}, err
	}

	now := l.now()
	if count >= rule.Limit {
		return types.RateLimitResult{
			Allowed:    false,
			RuleID:     rule.ID,
			Limit:      rule.Limit,
			Remaining:  0,
			ResetAt:    now.Add(windowDur),
			RetryAfter: windowDur,
		}, nil
	}

	if _, err := l.counters.Increment(ctx, key); err != nil {
		return types.RateLimitResult{}, err
	}
	return types.RateLimitResult{
		Allowed:   true,
		RuleID:    rule.ID,
		Limit:     rule.Limit,
		Remaining: rule.Limit - count - 1,
		ResetAt:   now.Add(windowDur),
	}, nil
}

func ruleWindow(rule types.RateLimitRule) time.Duration {
	if rule.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(rule.WindowSeconds) * time.Second
}

func ruleApplies(rule types.RateLimitRule, fp *types.RequestFingerprint) bool {
	if len(rule.Methods) > 0 && !containsFold(rule.Methods, fp.Method) {
		return false
	}
	if len(rule.Endpoints) == 0 {
		return true
	}
	for _, endpoint := range rule.Endpoints {
		if endpoint == fp.Path || strings.HasPrefix(fp.Path, strings.TrimSuffix(endpoint, "*")) && strings.HasSuffix(endpoint, "*") {
			return true
		}
	}
	return false
}

// ruleKey derives the counter key for (scope, fingerprint), e.g.
// "rl:login_per_ip:ip:203.0.113.4".
func ruleKey(rule types.RateLimitRule, fp *types.RequestFingerprint) (string, bool) {
	var scopeKey string
	switch rule.Scope {
	case types.ScopeIP:
		if fp.SourceIP == "" {
			return "", false
		}
		scopeKey = "ip:" + fp.SourceIP
	case types.ScopeUser:
		if fp.UserID == "" {
			return "", false
		}
		scopeKey = "user:" + fp.UserID
	case types.ScopeSession:
		if fp.SessionID == "" {
			return "", false
		}
		scopeKey = "session:" + fp.SessionID
	case types.ScopeEndpoint:
		scopeKey = "endpoint:" + fp.Method + ":" + fp.Path
	default:
		return "", false
	}
	return fmt.Sprintf("rl:%s:%s", rule.ID, scopeKey), true
}

func exempt(rule types.RateLimitRule, key string) bool {
	for _, ex := range rule.Exempt {
		if strings.HasSuffix(key, ":"+ex) || strings.Contains(key, ":"+ex+":") {
			return true
		}
	}
	return false
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
