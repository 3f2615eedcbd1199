package signature

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapemaster/sentinel/pkg/types"
	"github.com/scrapemaster/sentinel/pkg/window"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signatures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileParsesSignatures(t *testing.T) {
	path := writeTempFile(t, `
signatures:
  - id: custom_1
    name: Custom rule
    pattern: "(drop\\s+table)"
    category: injection
    severity: high
    action: block
    confidence_threshold: 0.8
  - id: custom_2
    name: Custom detector rule
    pattern: multiple_failed_logins
    pattern_kind: detector
    category: brute_force
    severity: high
    action: block
    window_seconds: 120
    threshold: 5
`)

	signatures, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, signatures, 2)

	// Pattern kind defaults to regex when omitted.
	assert.Equal(t, types.PatternKindRegex, signatures[0].PatternKind)
	assert.Equal(t, types.PatternKindDetector, signatures[1].PatternKind)
	assert.Equal(t, 120, signatures[1].WindowSeconds)
	assert.Equal(t, 5, signatures[1].Threshold)
}

func TestLoadFileRejectsEmpty(t *testing.T) {
	path := writeTempFile(t, "signatures: []\n")
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileRejectsMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadedFileBuildsCatalog(t *testing.T) {
	path := writeTempFile(t, `
signatures:
  - id: custom_1
    name: Custom rule
    pattern: "(drop\\s+table)"
    category: injection
    severity: critical
    action: block
`)
	signatures, err := LoadFile(path)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	catalog, err := NewCatalog(signatures, window.NewMemoryStore(), logger)
	require.NoError(t, err)
	assert.Len(t, catalog.Signatures(), 1)
}
