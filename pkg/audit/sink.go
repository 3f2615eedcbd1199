package audit

import (
	"context"

	"github.com/scrapemaster/sentinel/pkg/types"
)

// Sink is the append-only outlet for everything the engine decides. The
// notification pipeline, SIEM forwarding and the dashboard all hang off
// implementations of this interface; the engine never knows who listens.
type Sink interface {
	LogEvent(ctx context.Context, event types.SecurityEvent) error
	LogAlert(ctx context.Context, alert types.AttackPatternAlert) error
}

// MultiSink fans out to several sinks. A failing sink is skipped, not
// fatal: losing one audit destination must not lose the rest.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) LogEvent(ctx context.Context, event types.SecurityEvent) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.LogEvent(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) LogAlert(ctx context.Context, alert types.AttackPatternAlert) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.LogAlert(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
