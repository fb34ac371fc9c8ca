package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesLevelledEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "etl.log")
	logger, err := NewLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	logger.SetLevel(INFO)
	logger.Debug("hidden")
	logger.Info("시간 컬럼 개수: 39")
	logger.Warning("조합별 row count 불일치")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.NotContains(t, text, "hidden")
	assert.Contains(t, text, "INFO: 시간 컬럼 개수: 39")
	assert.Contains(t, text, "WARNING: 조합별 row count 불일치")
}

func TestLoggerSubscribers(t *testing.T) {
	logger, err := NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	defer logger.Close()

	sub := logger.Subscribe()
	logger.Info("dataset reloaded")

	select {
	case msg := <-sub:
		assert.True(t, strings.HasSuffix(msg, "INFO: dataset reloaded\n"), msg)
	default:
		t.Fatal("subscriber did not receive the entry")
	}

	logger.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestLoggerMirror(t *testing.T) {
	logger, err := NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	defer logger.Close()

	var sb strings.Builder
	logger.SetMirror(&sb)
	logger.Error("no encoding succeeded")

	assert.Contains(t, sb.String(), "ERROR: no encoding succeeded")
}

func TestCheckRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	logger, err := NewLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	for i := 0; i < 20; i++ {
		logger.Info("padding the log file past the limit")
	}
	require.NoError(t, logger.CheckRotate("1 * 64"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "rotated file plus a fresh log file")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestEval(t *testing.T) {
	tests := []struct {
		expr string
		want int64
	}{
		{"10 * 1024 * 1024", 10 * 1024 * 1024},
		{"512", 512},
		{"", 0},
		{"ten * 2", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, eval(tt.expr), tt.expr)
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARNING, ParseLevel("warn"))
	assert.Equal(t, INFO, ParseLevel("anything"))
}
