package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scrapemaster/sentinel/internal/api"
	"github.com/scrapemaster/sentinel/internal/config"
	"github.com/scrapemaster/sentinel/pkg/audit"
	"github.com/scrapemaster/sentinel/pkg/blocklist"
	"github.com/scrapemaster/sentinel/pkg/correlation"
	"github.com/scrapemaster/sentinel/pkg/engine"
	"github.com/scrapemaster/sentinel/pkg/logger"
	"github.com/scrapemaster/sentinel/pkg/ratelimit"
	"github.com/scrapemaster/sentinel/pkg/reputation"
	"github.com/scrapemaster/sentinel/pkg/resilience"
	"github.com/scrapemaster/sentinel/pkg/signature"
	"github.com/scrapemaster/sentinel/pkg/types"
	"github.com/scrapemaster/sentinel/pkg/window"
)

// Runtime holds the assembled detection stack. Both the server binary and
// the CLI serve command build one from configuration.
type Runtime struct {
	Config *config.Config
	Logger *logger.StructuredLogger
	Engine *engine.Engine
	Router *gin.Engine

	correlator *correlation.Correlator
	oracle     *reputation.BaselineOracle
	kafkaSink  *audit.KafkaSink
	cancel     context.CancelFunc
}

// BuildRuntime wires stores, rules, oracle, correlator and engine from
// configuration. protected registers the platform routes that sit behind
// threat analysis; nil is fine for deployments using the engine as a
// sidecar for its operator API only.
func BuildRuntime(cfg *config.Config, log *logger.StructuredLogger, protected func(*gin.RouterGroup)) (*Runtime, error) {
	signatures := signature.DefaultSignatures()
	if cfg.Detection.SignatureFile != "" {
		loaded, err := signature.LoadFile(cfg.Detection.SignatureFile)
		if err != nil {
			return nil, fmt.Errorf("loading signatures: %w", err)
		}
		signatures = loaded
	}

	rules := ratelimit.DefaultRules()
	if cfg.Detection.RateRuleFile != "" {
		loaded, err := ratelimit.LoadRuleFile(cfg.Detection.RateRuleFile)
		if err != nil {
			return nil, fmt.Errorf("loading rate rules: %w", err)
		}
		rules = loaded
	}

	retention := counterRetention(signatures, rules)

	var counters window.CounterStore
	var blocks blocklist.Store
	if cfg.Redis.Enabled {
		counters = window.NewRedisStore(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB).WithRetention(retention)
		blocks = blocklist.NewRedisStore(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	} else {
		counters = window.NewMemoryStore().WithRetention(retention)
		blocks = blocklist.NewMemoryStore()
	}

	catalog, err := signature.NewCatalog(signatures, counters, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("building signature catalog: %w", err)
	}
	limiter := ratelimit.NewLimiter(rules, counters, log.Logger)

	patterns := correlation.DefaultPatterns()
	if cfg.Detection.PatternFile != "" {
		loaded, err := correlation.LoadPatternFile(cfg.Detection.PatternFile)
		if err != nil {
			return nil, fmt.Errorf("loading attack patterns: %w", err)
		}
		patterns = loaded
	}

	var sinks []audit.Sink
	sinks = append(sinks, audit.NewLogrusSink(log.Logger))
	var kafkaSink *audit.KafkaSink
	if cfg.Audit.KafkaEnabled {
		kafkaSink = audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		sinks = append(sinks, kafkaSink)
	}
	sink := audit.NewMultiSink(sinks...)

	buffer := correlation.NewBuffer(cfg.Detection.BufferRetention, cfg.Detection.BufferCapacity)
	correlator := correlation.NewCorrelator(patterns, buffer, blocks, sink, log.Logger)
	oracle := reputation.NewBaselineOracle(nil, log.Logger)

	eng := engine.New(engine.Options{
		Catalog:    catalog,
		Limiter:    limiter,
		Oracle:     oracle,
		Blocks:     blocks,
		Counters:   counters,
		Buffer:     buffer,
		Correlator: correlator,
		Sink:       sink,
		Logger:     log.Logger,
		Policy:     engine.DefaultPolicy(),
	})

	router := api.SetupRoutes(eng, cfg, log, protected)

	return &Runtime{
		Config:     cfg,
		Logger:     log,
		Engine:     eng,
		Router:     router,
		correlator: correlator,
		oracle:     oracle,
		kafkaSink:  kafkaSink,
	}, nil
}

// Start launches the background workers: the correlation worker, the
// baseline rebuild ticker and the store sweep loop. With Redis enabled
// the stores must answer a ping first so the limiter's fail-closed
// path doesn't reject all traffic on a race with Redis startup.
func (r *Runtime) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	if r.Config.Redis.Enabled {
		err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), "store health check", func(ctx context.Context) error {
			return r.Engine.Healthy(ctx)
		})
		if err != nil {
			cancel()
			return err
		}
	}

	r.correlator.Start(ctx)
	r.oracle.Start(ctx, r.Config.Detection.OracleRebuild)
	r.Engine.StartMaintenance(ctx, r.Config.Detection.SweepInterval)
	return nil
}

// counterRetention returns the horizon the counter store needs so the
// widest configured rule or frequency signature still counts correctly.
func counterRetention(signatures []types.ThreatSignature, rules []types.RateLimitRule) time.Duration {
	retention := time.Hour
	for _, sig := range signatures {
		if d := time.Duration(sig.WindowSeconds) * time.Second; d > retention {
			retention = d
		}
	}
	for _, rule := range rules {
		if d := time.Duration(rule.WindowSeconds) * time.Second; d > retention {
			retention = d
		}
	}
	return retention
}

// Stop shuts the background workers down and flushes the Kafka writer.
func (r *Runtime) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.correlator.Stop()
	r.oracle.Stop()
	if r.kafkaSink != nil {
		if err := r.kafkaSink.Close(); err != nil {
			r.Logger.WithError(err).Warn("Failed to close Kafka audit sink")
		}
	}
}
