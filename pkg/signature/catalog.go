package signature

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/scrapemaster/sentinel/pkg/types"
	"github.com/scrapemaster/sentinel/pkg/window"
)

// DetectorFunc is a named predicate backing PatternKindDetector signatures.
// Frequency-style detectors consult the counter store; a detector must not
// have side effects beyond recording its own occurrence counters.
type DetectorFunc func(ctx context.Context, fp *types.RequestFingerprint, sig types.ThreatSignature, counters window.CounterStore) (bool, error)

// Catalog is the process-wide read-only signature set, populated once at
// startup. Match is a pure read.
type Catalog struct {
	signatures []types.ThreatSignature
	compiled   map[string]*regexp.Regexp
	detectors  map[string]DetectorFunc
	counters   window.CounterStore
	logger     *logrus.Logger
}

func NewCatalog(signatures []types.ThreatSignature, counters window.CounterStore, logger *logrus.Logger) (*Catalog, error) {
	catalog := &Catalog{
		compiled:  make(map[string]*regexp.Regexp),
		detectors: builtinDetectors(),
		counters:  counters,
		logger:    logger,
	}

	for _, sig := range signatures {
		if err := catalog.add(sig); err != nil {
			return nil, err
		}
	}
	// Deterministic match order regardless of config file ordering.
	sort.Slice(catalog.signatures, func(i, j int) bool {
		return catalog.signatures[i].ID < catalog.signatures[j].ID
	})
	return catalog, nil
}

func (c *Catalog) add(sig types.ThreatSignature) error {
	if sig.ID == "" {
		return fmt.Errorf("signature without id")
	}
	switch sig.PatternKind {
	case types.PatternKindRegex:
		re, err := regexp.Compile(sig.Pattern)
		if err != nil {
			return fmt.Errorf("signature %s: invalid pattern: %w", sig.ID, err)
		}
		c.compiled[sig.ID] = re
	case types.PatternKindDetector:
		if _, exists := c.detectors[sig.Pattern]; !exists {
			return fmt.Errorf("signature %s: unknown detector %q", sig.ID, sig.Pattern)
		}
	default:
		return fmt.Errorf("signature %s: unknown pattern kind %q", sig.ID, sig.PatternKind)
	}
	c.signatures = append(c.signatures, sig)
	return nil
}

// RegisterDetector installs a custom predicate before signatures referencing
// it are loaded. Registration after NewCatalog is not supported.
func (c *Catalog) RegisterDetector(name string, fn DetectorFunc) {
	c.detectors[name] = fn
}

func (c *Catalog) Signatures() []types.ThreatSignature {
	out := make([]types.ThreatSignature, len(c.signatures))
	copy(out, c.signatures)
	return out
}

// Match returns every signature the fingerprint triggers. Regex signatures
// run against a lower-cased concatenation of path, query params, body and
// header values; detector signatures delegate to their predicate. Detector
// errors degrade to non-match so one unhealthy predicate cannot veto the
// rest of the catalog.
func (c *Catalog) Match(ctx context.Context, fp *types.RequestFingerprint) ([]types.ThreatSignature, error) {
	if fp == nil {
		return nil, fmt.Errorf("nil fingerprint")
	}

	haystack := normalize(fp)
	var matches []types.ThreatSignature
	for _, sig := range c.signatures {
		matched, err := c.matchOne(ctx, sig, fp, haystack)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"signature_id": sig.ID,
				"error":        err.Error(),
			}).Warn("Signature evaluation degraded")
			continue
		}
		if matched {
			matches = append(matches, sig)
		}
	}
	return matches, nil
}

func (c *Catalog) matchOne(ctx context.Context, sig types.ThreatSignature, fp *types.RequestFingerprint, haystack string) (bool, error) {
	switch sig.PatternKind {
	case types.PatternKindRegex:
		return c.compiled[sig.ID].MatchString(haystack), nil
	case types.PatternKindDetector:
		detector := c.detectors[sig.Pattern]
		return detector(ctx, fp, sig, c.counters)
	}
	return false, nil
}

// normalize builds the lower-cased haystack regex signatures are tested
// against.
func normalize(fp *types.RequestFingerprint) string {
	var b strings.Builder
	b.WriteString(fp.Path)
	for key, value := range fp.QueryParams {
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(value)
	}
	if fp.Body != "" {
		b.WriteString(" ")
		b.WriteString(fp.Body)
	}
	for _, value := range fp.Headers {
		b.WriteString(" ")
		b.WriteString(value)
	}
	return strings.ToLower(b.String())
}
