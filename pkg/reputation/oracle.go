package reputation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrapemaster/sentinel/pkg/types"
)

// Oracle supplies the two risk contributions the scorer consumes. Both
// results are bounded to [0,1] and default to 0 when nothing is known:
// unknown is not inherently suspicious. Real reputation feeds and
// behavioral models plug in behind this interface.
type Oracle interface {
	IPRisk(ctx context.Context, ip string) (float64, error)
	BehaviorScore(ctx context.Context, fp *types.RequestFingerprint) (float64, error)
}

// IdentityBaseline is the learned normal for one user: the hours they work
// and the agents they use. Departures raise the behavior score.
type IdentityBaseline struct {
	TypicalHours [24]bool
	KnownAgents  map[string]struct{}
	LastRebuilt  time.Time
}

// BaselineOracle maintains per-identity baselines rebuilt on a timer
// decoupled from the request path, plus a static IP risk feed loaded from
// configuration.
type BaselineOracle struct {
	mu        sync.RWMutex
	ipRisk    map[string]float64
	baselines map[string]*IdentityBaseline
	observed  map[string][]observation
	logger    *logrus.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

type observation struct {
	hour  int
	agent string
}

const (
	offHoursScore     = 0.4
	unknownAgentScore = 0.3
	maxObservations   = 512
)

func NewBaselineOracle(ipRisk map[string]float64, logger *logrus.Logger) *BaselineOracle {
	if ipRisk == nil {
		ipRisk = make(map[string]float64)
	}
	return &BaselineOracle{
		ipRisk:    ipRisk,
		baselines: make(map[string]*IdentityBaseline),
		observed:  make(map[string][]observation),
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the periodic baseline rebuild. Safe to skip in tests; the
// oracle degrades to neutral answers without it.
func (o *BaselineOracle) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.RebuildBaselines()
			case <-o.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (o *BaselineOracle) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

func (o *BaselineOracle) IPRisk(ctx context.Context, ip string) (float64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	risk, exists := o.ipRisk[ip]
	if !exists {
		return 0, nil
	}
	return clamp(risk), nil
}

// BehaviorScore compares the fingerprint against the identity's baseline.
// Anonymous requests and identities without a baseline yet score neutral.
func (o *BaselineOracle) BehaviorScore(ctx context.Context, fp *types.RequestFingerprint) (float64, error) {
	if fp == nil || fp.UserID == "" {
		return 0, nil
	}

	o.observe(fp)

	o.mu.RLock()
	baseline, exists := o.baselines[fp.UserID]
	o.mu.RUnlock()
	if !exists {
		return 0, nil
	}

	score := 0.0
	ts := fp.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if !baseline.TypicalHours[ts.UTC().Hour()] {
		score += offHoursScore
	}
	if fp.UserAgent != "" {
		if _, known := baseline.KnownAgents[agentKey(fp.UserAgent)]; !known {
			score += unknownAgentScore
		}
	}
	return clamp(score), nil
}

func (o *BaselineOracle) observe(fp *types.RequestFingerprint) {
	ts := fp.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	obs := o.observed[fp.UserID]
	obs = append(obs, observation{hour: ts.UTC().Hour(), agent: agentKey(fp.UserAgent)})
	if len(obs) > maxObservations {
		obs = obs[len(obs)-maxObservations:]
	}
	o.observed[fp.UserID] = obs
}

// RebuildBaselines folds accumulated observations into fresh baselines.
// Called from the maintenance ticker, never from the request path.
func (o *BaselineOracle) RebuildBaselines() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for userID, observations := range o.observed {
		if len(observations) == 0 {
			continue
		}
		baseline := &IdentityBaseline{
			KnownAgents: make(map[string]struct{}),
			LastRebuilt: time.Now(),
		}
		for _, obs := range observations {
			baseline.TypicalHours[obs.hour] = true
			if obs.agent != "" {
				baseline.KnownAgents[obs.agent] = struct{}{}
			}
		}
		o.baselines[userID] = baseline
	}

	o.logger.WithField("identities", len(o.baselines)).Debug("Behavior baselines rebuilt")
}

// SetBaseline installs a baseline directly. Tests and warm-start loaders
// use it.
func (o *BaselineOracle) SetBaseline(userID string, baseline *IdentityBaseline) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.baselines[userID] = baseline
}

// agentKey collapses versions so a browser patch release doesn't look like
// a new device.
func agentKey(agent string) string {
	agent = strings.ToLower(agent)
	if idx := strings.IndexAny(agent, "/ "); idx > 0 {
		return agent[:idx]
	}
	return agent
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
