package correlation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scrapemaster/sentinel/pkg/audit"
	"github.com/scrapemaster/sentinel/pkg/blocklist"
	"github.com/scrapemaster/sentinel/pkg/types"
)

// CriticalPatternBlockTTL is how long sources implicated in a critical
// pattern stay blocked. Longer than single-request blocks: coordinated
// activity earns a longer timeout.
const CriticalPatternBlockTTL = 2 * time.Hour

// Correlator looks across the rolling event buffer for multi-event attack
// patterns no single request reveals. It is the only component allowed to
// block IPs whose individual requests scored low.
type Correlator struct {
	patterns []types.AttackPattern
	buffer   *Buffer
	blocks   blocklist.Store
	sink     audit.Sink
	logger   *logrus.Logger

	mu        sync.Mutex
	lastAlert map[string]time.Time

	notifyCh chan types.SecurityEvent
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

// alertCooldown suppresses duplicate alerts for the same pattern while a
// burst is still inside the window.
const alertCooldown = 5 * time.Minute

func NewCorrelator(patterns []types.AttackPattern, buffer *Buffer, blocks blocklist.Store, sink audit.Sink, logger *logrus.Logger) *Correlator {
	return &Correlator{
		patterns:  patterns,
		buffer:    buffer,
		blocks:    blocks,
		sink:      sink,
		logger:    logger,
		lastAlert: make(map[string]time.Time),
		notifyCh:  make(chan types.SecurityEvent, 256),
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

func (c *Correlator) WithClock(now func() time.Time) *Correlator {
	c.now = now
	return c
}

// Start launches the worker draining correlation notifications off the
// request path.
func (c *Correlator) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case event := <-c.notifyCh:
				c.buffer.Append(event)
				c.Run(ctx)
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Correlator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Notify hands an event to the correlation worker. Never blocks the
// request path: if the queue is full the event is still in the buffer for
// the next pass.
func (c *Correlator) Notify(event types.SecurityEvent) {
	select {
	case c.notifyCh <- event:
	default:
		c.buffer.Append(event)
	}
}

// Run evaluates every configured pattern against the buffer. Exported so
// tests and the maintenance ticker can invoke a pass synchronously.
func (c *Correlator) Run(ctx context.Context) {
	for _, pattern := range c.patterns {
		c.evaluate(ctx, pattern)
	}
}

func (c *Correlator) evaluate(ctx context.Context, pattern types.AttackPattern) {
	window := time.Duration(pattern.WindowMinutes) * time.Minute
	if window <= 0 {
		window = 10 * time.Minute
	}
	cutoff := c.now().Add(-window)

	var matched []types.SecurityEvent
	for _, event := range c.buffer.Since(cutoff) {
		if eventMatches(pattern, event) {
			matched = append(matched, event)
		}
	}
	if pattern.Threshold <= 0 || len(matched) < pattern.Threshold {
		return
	}

	c.mu.Lock()
	if last, ok := c.lastAlert[pattern.ID]; ok && c.now().Sub(last) < alertCooldown {
		c.mu.Unlock()
		return
	}
	c.lastAlert[pattern.ID] = c.now()
	c.mu.Unlock()

	alert := buildAlert(pattern, matched)
	if err := c.sink.LogAlert(ctx, alert); err != nil {
		c.logger.WithError(err).Error("Failed to emit attack pattern alert")
	}

	c.logger.WithFields(logrus.Fields{
		"pattern_id": pattern.ID,
		"severity":   pattern.Severity,
		"events":     len(matched),
		"source_ips": alert.SourceIPs,
	}).Warn("Attack pattern threshold crossed")

	if pattern.Severity == types.SeverityCritical {
		c.blockSources(ctx, pattern, alert.SourceIPs)
	}
}

func (c *Correlator) blockSources(ctx context.Context, pattern types.AttackPattern, ips []string) {
	expires := c.now().Add(CriticalPatternBlockTTL)
	for _, ip := range ips {
		entry := blocklist.Entry{
			Key:       blocklist.IPKey(ip),
			Reason:    "attack pattern: " + pattern.AttackType,
			CreatedAt: c.now(),
			ExpiresAt: expires,
		}
		if err := c.blocks.Put(ctx, entry); err != nil {
			c.logger.WithFields(logrus.Fields{
				"ip":    ip,
				"error": err.Error(),
			}).Error("Failed to block correlated source")
		}
	}
}

func buildAlert(pattern types.AttackPattern, matched []types.SecurityEvent) types.AttackPatternAlert {
	alert := types.AttackPatternAlert{
		ID:        uuid.New(),
		PatternID: pattern.ID,
		FirstSeen: matched[0].Timestamp,
		LastSeen:  matched[0].Timestamp,
	}
	seen := make(map[string]struct{})
	for _, event := range matched {
		alert.EventIDs = append(alert.EventIDs, event.ID)
		if _, dup := seen[event.SourceIP]; !dup && event.SourceIP != "" {
			seen[event.SourceIP] = struct{}{}
			alert.SourceIPs = append(alert.SourceIPs, event.SourceIP)
		}
		if event.Timestamp.Before(alert.FirstSeen) {
			alert.FirstSeen = event.Timestamp
		}
		if event.Timestamp.After(alert.LastSeen) {
			alert.LastSeen = event.Timestamp
		}
	}
	return alert
}

// eventMatches reports whether an event carries any of the pattern's
// indicator tags.
func eventMatches(pattern types.AttackPattern, event types.SecurityEvent) bool {
	for _, indicator := range pattern.Indicators {
		if matchIndicator(indicator, event) {
			return true
		}
	}
	return false
}

func matchIndicator(indicator string, event types.SecurityEvent) bool {
	switch indicator {
	case "failed_login":
		lower := strings.ToLower(event.Path)
		return strings.Contains(lower, "login") || strings.Contains(lower, "signin")
	case "export_endpoint":
		lower := strings.ToLower(event.Path)
		return strings.Contains(lower, "export") || strings.Contains(lower, "download")
	case "blocked":
		return event.Blocked
	case "not_found_probe":
		return event.ThreatType == types.CategoryTraversal || event.ThreatType == types.CategoryScanner
	}
	// Remaining indicators name threat categories or signature IDs.
	if string(event.ThreatType) == indicator {
		return true
	}
	for _, rule := range event.MatchedRules {
		if rule == indicator {
			return true
		}
	}
	return false
}
