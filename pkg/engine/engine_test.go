package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapemaster/sentinel/pkg/blocklist"
	"github.com/scrapemaster/sentinel/pkg/correlation"
	"github.com/scrapemaster/sentinel/pkg/ratelimit"
	"github.com/scrapemaster/sentinel/pkg/signature"
	"github.com/scrapemaster/sentinel/pkg/types"
	"github.com/scrapemaster/sentinel/pkg/window"
)

type stubOracle struct {
	behavior float64
	ipRisk   float64
	err      error
	panics   bool
}

func (o stubOracle) IPRisk(ctx context.Context, ip string) (float64, error) {
	if o.panics {
		panic("oracle exploded")
	}
	return o.ipRisk, o.err
}

func (o stubOracle) BehaviorScore(ctx context.Context, fp *types.RequestFingerprint) (float64, error) {
	if o.panics {
		panic("oracle exploded")
	}
	return o.behavior, o.err
}

type memorySink struct {
	mu     sync.Mutex
	events []types.SecurityEvent
	alerts []types.AttackPatternAlert
}

func (s *memorySink) LogEvent(ctx context.Context, event types.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) LogAlert(ctx context.Context, alert types.AttackPatternAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

type testHarness struct {
	engine *Engine
	blocks *blocklist.MemoryStore
	buffer *correlation.Buffer
	sink   *memorySink
	now    time.Time
}

func newHarness(t *testing.T, oracle stubOracle) *testHarness {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	counters := window.NewMemoryStore().WithClock(clock)
	blocks := blocklist.NewMemoryStore().WithClock(clock)
	buffer := correlation.NewBuffer(24*time.Hour, 1000).WithClock(clock)
	sink := &memorySink{}

	catalog, err := signature.NewCatalog(signature.DefaultSignatures(), counters, logger)
	require.NoError(t, err)

	limiter := ratelimit.NewLimiter([]types.RateLimitRule{{
		ID:            "ip_test",
		Scope:         types.ScopeIP,
		Limit:         1000,
		WindowSeconds: 60,
	}}, counters, logger).WithClock(clock)

	eng := New(Options{
		Catalog:  catalog,
		Limiter:  limiter,
		Oracle:   oracle,
		Blocks:   blocks,
		Counters: counters,
		Buffer:   buffer,
		Sink:     sink,
		Logger:   logger,
		Policy:   DefaultPolicy(),
	}).WithClock(clock)

	return &testHarness{engine: eng, blocks: blocks, buffer: buffer, sink: sink, now: now}
}

func benignFingerprint() *types.RequestFingerprint {
	return &types.RequestFingerprint{
		SourceIP:  "203.0.113.4",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
		Path:      "/api/v1/products",
		Method:    "GET",
	}
}

func TestAnalyzeBenignRequestAllows(t *testing.T) {
	h := newHarness(t, stubOracle{})

	resp := h.engine.Analyze(context.Background(), benignFingerprint())

	assert.Equal(t, types.ActionAllow, resp.Action)
	assert.Equal(t, 0, h.buffer.Len())
	assert.Empty(t, h.sink.events)
}

func TestAnalyzeLowConfidenceMatchAllowsWithEvent(t *testing.T) {
	h := newHarness(t, stubOracle{})

	// A single high-severity signature contributes 0.3, below the 0.4
	// challenge threshold, but the match still produces an audit event.
	fp := benignFingerprint()
	fp.QueryParams = map[string]string{"q": "' OR '1'='1"}

	resp := h.engine.Analyze(context.Background(), fp)

	assert.Equal(t, types.ActionAllow, resp.Action)
	assert.InDelta(t, 0.3, resp.Confidence, 1e-9)
	require.Equal(t, 1, h.buffer.Len())
	require.Len(t, h.sink.events, 1)
	assert.Contains(t, h.sink.events[0].MatchedRules, "sql_injection_1")
	assert.False(t, h.sink.events[0].Blocked)
	assert.NotEqual(t, resp.EventID.String(), "00000000-0000-0000-0000-000000000000")
}

func TestAnalyzeChallengeTier(t *testing.T) {
	h := newHarness(t, stubOracle{})

	// High (0.3) plus medium (0.2) lands in the challenge band.
	fp := benignFingerprint()
	fp.Method = "POST"
	fp.Body = `{"comment": "' OR '1'='1 <script>alert(1)</script>"}`

	resp := h.engine.Analyze(context.Background(), fp)

	assert.Equal(t, types.ActionChallenge, resp.Action)
	assert.GreaterOrEqual(t, resp.Confidence, 0.4)
	assert.Less(t, resp.Confidence, 0.8)

	// Challenge does not create a standing block.
	entry, err := h.blocks.Get(context.Background(), blocklist.IPKey(fp.SourceIP))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestAnalyzeCriticalSignatureBlocksRegardlessOfScore(t *testing.T) {
	h := newHarness(t, stubOracle{})

	fp := benignFingerprint()
	fp.Method = "POST"
	fp.Body = `{"target": "example.com; cat /etc/passwd"}`

	resp := h.engine.Analyze(context.Background(), fp)

	assert.Equal(t, types.ActionBlock, resp.Action)

	entry, err := h.blocks.Get(context.Background(), blocklist.IPKey(fp.SourceIP))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, h.now.Add(30*time.Minute), entry.ExpiresAt)

	require.NotEmpty(t, h.sink.events)
	assert.True(t, h.sink.events[0].Blocked)
	assert.Equal(t, types.SeverityCritical, h.sink.events[0].Severity)
}

func TestAnalyzeConfidenceBlockTier(t *testing.T) {
	// Two high signatures (0.6) plus full IP risk (0.2) reaches the 0.8
	// block threshold without any critical match.
	h := newHarness(t, stubOracle{ipRisk: 1.0})

	fp := benignFingerprint()
	fp.Path = "/files/../../etc/passwd"
	fp.QueryParams = map[string]string{"q": "union select name from users"}

	resp := h.engine.Analyze(context.Background(), fp)

	assert.Equal(t, types.ActionBlock, resp.Action)
	assert.GreaterOrEqual(t, resp.Confidence, 0.8)

	entry, err := h.blocks.Get(context.Background(), blocklist.IPKey(fp.SourceIP))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, h.now.Add(60*time.Minute), entry.ExpiresAt)
}

func TestAnalyzeExistingBlockShortCircuits(t *testing.T) {
	h := newHarness(t, stubOracle{})
	ctx := context.Background()

	require.NoError(t, h.blocks.Put(ctx, blocklist.Entry{
		Key:       blocklist.IPKey("203.0.113.4"),
		Reason:    "prior offense",
		CreatedAt: h.now,
		ExpiresAt: h.now.Add(time.Hour),
	}))

	resp := h.engine.Analyze(ctx, benignFingerprint())

	assert.Equal(t, types.ActionBlock, resp.Action)
	assert.Equal(t, ReasonExistingBlock, resp.Reason)
	// Short-circuited requests do not produce new events.
	assert.Equal(t, 0, h.buffer.Len())
}

func TestAnalyzeExpiredBlockDoesNotShortCircuit(t *testing.T) {
	h := newHarness(t, stubOracle{})
	ctx := context.Background()

	require.NoError(t, h.blocks.Put(ctx, blocklist.Entry{
		Key:       blocklist.IPKey("203.0.113.4"),
		Reason:    "old offense",
		CreatedAt: h.now.Add(-2 * time.Hour),
		ExpiresAt: h.now.Add(-time.Hour),
	}))

	resp := h.engine.Analyze(ctx, benignFingerprint())
	assert.Equal(t, types.ActionAllow, resp.Action)
}

func TestAnalyzeSessionBlockShortCircuits(t *testing.T) {
	h := newHarness(t, stubOracle{})
	ctx := context.Background()

	require.NoError(t, h.blocks.Put(ctx, blocklist.Entry{
		Key:       blocklist.SessionKey("sess-1"),
		Reason:    "quarantined",
		CreatedAt: h.now,
		ExpiresAt: h.now.Add(time.Hour),
	}))

	fp := benignFingerprint()
	fp.SessionID = "sess-1"
	resp := h.engine.Analyze(ctx, fp)
	assert.Equal(t, types.ActionBlock, resp.Action)
}

func TestAnalyzeMissingSourceIPFailsClosed(t *testing.T) {
	h := newHarness(t, stubOracle{})

	resp := h.engine.Analyze(context.Background(), &types.RequestFingerprint{
		Path:   "/api/v1/products",
		Method: "GET",
	})

	assert.Equal(t, types.ActionBlock, resp.Action)
	assert.Equal(t, ReasonInvalidFingerprint, resp.Reason)
}

func TestAnalyzeNilFingerprintFailsClosed(t *testing.T) {
	h := newHarness(t, stubOracle{})
	resp := h.engine.Analyze(context.Background(), nil)
	assert.Equal(t, types.ActionBlock, resp.Action)
}

func TestAnalyzeRateLimitRejection(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	counters := window.NewMemoryStore().WithClock(clock)
	blocks := blocklist.NewMemoryStore().WithClock(clock)
	buffer := correlation.NewBuffer(24*time.Hour, 1000).WithClock(clock)
	sink := &memorySink{}

	catalog, err := signature.NewCatalog(signature.DefaultSignatures(), counters, logger)
	require.NoError(t, err)

	limiter := ratelimit.NewLimiter([]types.RateLimitRule{{
		ID:            "ip_tiny",
		Scope:         types.ScopeIP,
		Limit:         2,
		WindowSeconds: 60,
	}}, counters, logger).WithClock(clock)

	eng := New(Options{
		Catalog:  catalog,
		Limiter:  limiter,
		Oracle:   stubOracle{},
		Blocks:   blocks,
		Counters: counters,
		Buffer:   buffer,
		Sink:     sink,
		Logger:   logger,
	}).WithClock(clock)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		resp := eng.Analyze(ctx, benignFingerprint())
		require.Equal(t, types.ActionAllow, resp.Action)
	}

	resp := eng.Analyze(ctx, benignFingerprint())
	assert.Equal(t, types.ActionRateLimit, resp.Action)
	assert.Greater(t, resp.RetryAfter, time.Duration(0))

	require.NotEmpty(t, sink.events)
	last := sink.events[len(sink.events)-1]
	assert.Equal(t, types.CategoryDoS, last.ThreatType)
}

func TestAnalyzeOracleFailureDegradesToNeutral(t *testing.T) {
	h := newHarness(t, stubOracle{err: context.DeadlineExceeded})

	// With the oracle down a benign request still passes: the missing
	// contributions are treated as zero, not as maximum suspicion.
	resp := h.engine.Analyze(context.Background(), benignFingerprint())
	assert.Equal(t, types.ActionAllow, resp.Action)
}

func TestAnalyzePanicFailsClosed(t *testing.T) {
	h := newHarness(t, stubOracle{panics: true})

	resp := h.engine.Analyze(context.Background(), benignFingerprint())

	assert.Equal(t, types.ActionBlock, resp.Action)
	assert.Equal(t, ReasonAnalysisError, resp.Reason)
}

func TestUnblockRemovesEntry(t *testing.T) {
	h := newHarness(t, stubOracle{})
	ctx := context.Background()

	fp := benignFingerprint()
	fp.Method = "POST"
	fp.Body = "; cat /etc/passwd"
	resp := h.engine.Analyze(ctx, fp)
	require.Equal(t, types.ActionBlock, resp.Action)

	require.NoError(t, h.engine.Unblock(ctx, blocklist.IPKey(fp.SourceIP)))

	resp = h.engine.Analyze(ctx, benignFingerprint())
	assert.Equal(t, types.ActionAllow, resp.Action)
}

func TestDashboardSnapshotAggregates(t *testing.T) {
	h := newHarness(t, stubOracle{})
	ctx := context.Background()

	// One low-confidence match and one critical block.
	fp := benignFingerprint()
	fp.QueryParams = map[string]string{"q": "' OR '1'='1"}
	h.engine.Analyze(ctx, fp)

	other := benignFingerprint()
	other.SourceIP = "198.51.100.1"
	other.Method = "POST"
	other.Body = "; cat /etc/passwd"
	h.engine.Analyze(ctx, other)

	snapshot, err := h.engine.DashboardSnapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, snapshot.EventsLast24h)
	assert.Equal(t, 1, snapshot.BlockedCount)
	assert.Equal(t, 1, snapshot.BlockedIPCount)
	assert.Equal(t, 1, snapshot.ThreatLevels[types.SeverityCritical])
	assert.NotEmpty(t, snapshot.TopThreatTypes)
	assert.Equal(t, types.CategoryInjection, snapshot.TopThreatTypes[0].Type)
}

func TestDashboardBlockedIPCountExcludesSessionQuarantines(t *testing.T) {
	h := newHarness(t, stubOracle{})
	ctx := context.Background()

	require.NoError(t, h.blocks.Put(ctx, blocklist.Entry{
		Key:       blocklist.IPKey("203.0.113.4"),
		Reason:    "test block",
		CreatedAt: h.now,
		ExpiresAt: h.now.Add(time.Hour),
	}))
	require.NoError(t, h.blocks.Put(ctx, blocklist.Entry{
		Key:       blocklist.SessionKey("sess-1"),
		Reason:    "test quarantine",
		CreatedAt: h.now,
		ExpiresAt: h.now.Add(time.Hour),
	}))

	snapshot, err := h.engine.DashboardSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.BlockedIPCount)
}

func TestRecentEventsNewestFirst(t *testing.T) {
	h := newHarness(t, stubOracle{})
	ctx := context.Background()

	first := benignFingerprint()
	first.QueryParams = map[string]string{"q": "' OR '1'='1"}
	firstResp := h.engine.Analyze(ctx, first)

	second := benignFingerprint()
	second.SourceIP = "198.51.100.1"
	second.QueryParams = map[string]string{"q": "union select 1"}
	secondResp := h.engine.Analyze(ctx, second)

	events := h.engine.RecentEvents(time.Hour, 10)
	require.Len(t, events, 2)
	assert.Equal(t, secondResp.EventID, events[0].ID)
	assert.Equal(t, firstResp.EventID, events[1].ID)
}
