package audit_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/relato/pkg/audit"
)

func newTestLogger(t *testing.T) (*slog.Logger, *audit.ParquetHandler, string) {
	t.Helper()
	dir := t.TempDir()
	base := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})
	h, err := audit.NewParquetHandler(base, dir)
	require.NoError(t, err)
	return slog.New(h), h, dir
}

func parquetFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "errors_*.parquet"))
	require.NoError(t, err)
	return matches
}

func TestParquetHandlerCapturesErrors(t *testing.T) {
	log, h, dir := newTestLogger(t)

	log.Error("merge failed", "person_id", "p1")
	require.NoError(t, h.Flush())

	files := parquetFiles(t, dir)
	require.Len(t, files, 1)

	info, err := os.Stat(files[0])
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestParquetHandlerIgnoresBelowError(t *testing.T) {
	log, h, dir := newTestLogger(t)

	log.Debug("fact conflict detected")
	log.Info("resolved person")
	log.Warn("skipping row")
	require.NoError(t, h.Flush())

	assert.Empty(t, parquetFiles(t, dir))
}

func TestParquetHandlerCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "audit")
	base := slog.NewTextHandler(io.Discard, nil)

	_, err := audit.NewParquetHandler(base, dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
