package bootcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsUnalignedArena(t *testing.T) {
	cfg := Default()
	cfg.HeapInitialArenaBytes = 4097
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsShortStack(t *testing.T) {
	cfg := Default()
	cfg.DefaultStackPages = 1
	require.Error(t, cfg.Validate())
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catten.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler_tick_seconds: 1\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1), cfg.SchedulerTickSeconds)
	require.Equal(t, Default().HeapInitialArenaBytes, cfg.HeapInitialArenaBytes)
}

func TestLoadFileRejectsInvalidOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catten.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ipi_mailbox_queue_capacity: 0\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestSchedulerTickConvertsToExtDuration(t *testing.T) {
	cfg := Default()
	cfg.SchedulerTickSeconds = 10
	require.Equal(t, int64(10_000_000_000_000), int64(cfg.SchedulerTick()))
}

func TestGoLiteralRoundTripsFields(t *testing.T) {
	cfg := Default()
	lit := GoLiteral(cfg)
	require.Contains(t, lit, "bootcfg.Config{")
	require.Contains(t, lit, "HeapInitialArenaBytes:   2097152")
}
