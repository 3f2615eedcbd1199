package engine

import (
	"context"
	"sort"
	"time"

	"github.com/scrapemaster/sentinel/pkg/blocklist"
	"github.com/scrapemaster/sentinel/pkg/types"
)

// DashboardSnapshot aggregates the rolling event buffer and the active
// blocklist into the summary served by the security dashboard. Counts only
// reach back as far as the buffer's retention, so operators configure the
// buffer for 24h when they want a full day of history.
func (e *Engine) DashboardSnapshot(ctx context.Context) (types.DashboardSnapshot, error) {
	now := e.now()
	snapshot := types.DashboardSnapshot{
		ThreatLevels: make(map[types.Severity]int),
		GeneratedAt:  now,
	}

	typeCounts := make(map[types.ThreatCategory]int)
	for _, event := range e.buffer.Since(now.Add(-24 * time.Hour)) {
		snapshot.EventsLast24h++
		snapshot.ThreatLevels[event.Severity]++
		typeCounts[event.ThreatType]++
		if event.Blocked {
			snapshot.BlockedCount++
		}
	}

	for threatType, count := range typeCounts {
		snapshot.TopThreatTypes = append(snapshot.TopThreatTypes, types.ThreatTypeCount{
			Type:  threatType,
			Count: count,
		})
	}
	sort.Slice(snapshot.TopThreatTypes, func(i, j int) bool {
		a, b := snapshot.TopThreatTypes[i], snapshot.TopThreatTypes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Type < b.Type
	})
	if len(snapshot.TopThreatTypes) > 5 {
		snapshot.TopThreatTypes = snapshot.TopThreatTypes[:5]
	}

	entries, err := e.blocks.Active(ctx)
	if err != nil {
		return snapshot, err
	}
	// Session quarantines share the store but are not blocked IPs.
	for _, entry := range entries {
		if _, ok := blocklist.IPFromKey(entry.Key); ok {
			snapshot.BlockedIPCount++
		}
	}
	return snapshot, nil
}

// RecentEvents returns buffered events inside the lookback window, newest
// first, capped at limit.
func (e *Engine) RecentEvents(lookback time.Duration, limit int) []types.SecurityEvent {
	events := e.buffer.Since(e.now().Add(-lookback))
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}
