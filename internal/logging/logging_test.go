package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_ConsoleLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Console: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown", zap.String("stage", "plan"))
	closeFn()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, `"stage": "plan"`)
}

func TestNew_VerboseShowsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Console: &buf, Verbose: true})
	require.NoError(t, err)

	logger.Debug("details")
	closeFn()
	assert.Contains(t, buf.String(), "details")
}

func TestNew_FileGetsJSONAtDebug(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "autocut.log")
	logger, closeFn, err := New(Options{Console: &buf, FilePath: path})
	require.NoError(t, err)

	logger.Debug("file only", zap.Int("segments", 3))
	closeFn()

	assert.NotContains(t, buf.String(), "file only")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(b))

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "debug", rec["level"])
	assert.Equal(t, "file only", rec["msg"])
	assert.Equal(t, float64(3), rec["segments"])
	assert.Contains(t, rec, "caller")
}
