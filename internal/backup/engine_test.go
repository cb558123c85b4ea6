package backup

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsrplatform/fleetcore/infrastructure/state"
	"github.com/dsrplatform/fleetcore/internal/fleetclock"
)

func newTestEngine(t *testing.T) (*Engine, *MetadataRegistry) {
	t.Helper()
	backend := state.NewMemoryBackend(time.Minute)
	reg := NewMetadataRegistry(backend)
	clock := fleetclock.NewFake(time.Unix(0, 0))
	ids := fleetclock.NewSequentialIDs("backup")
	engine := NewEngine(Config{BasePath: t.TempDir()}, DefaultAdapters(), reg, clock, ids, nil)
	return engine, reg
}

func TestExecuteProducesVerifiedMetadata(t *testing.T) {
	engine, _ := newTestEngine(t)
	plan := Plan{
		ID:           "p1",
		Type:         Full,
		Components:   RecognizedComponents(),
		Compression:  true,
		Verification: true,
	}

	result, err := engine.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, Completed, result.Execution.Status)
	assert.True(t, result.Metadata.IntegrityVerified)
	assert.NotEmpty(t, result.Metadata.Manifest.Checksum)

	_, statErr := os.Stat(result.Metadata.BackupPath)
	assert.NoError(t, statErr)
}

// TestVerifyIntegrityDetectsCorruption is SPEC scenario 4: a bit flipped in
// a previously verified backup artifact must cause re-verification to fail.
func TestVerifyIntegrityDetectsCorruption(t *testing.T) {
	engine, _ := newTestEngine(t)
	plan := Plan{
		ID:           "p1",
		Type:         Full,
		Components:   []string{"database"},
		Compression:  true,
		Verification: true,
	}

	result, err := engine.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.True(t, result.Metadata.IntegrityVerified)

	ok, err := engine.VerifyIntegrity(context.Background(), result.Execution.ID)
	require.NoError(t, err)
	require.True(t, ok)

	corrupt, err := os.ReadFile(result.Metadata.BackupPath)
	require.NoError(t, err)
	corrupt[0] ^= 0xFF
	require.NoError(t, os.WriteFile(result.Metadata.BackupPath, corrupt, 0o600))

	ok, err = engine.VerifyIntegrity(context.Background(), result.Execution.ID)
	assert.Error(t, err)
	assert.False(t, ok, "a corrupted artifact must fail integrity verification")
}

func TestExecuteFailsWhenCriticalComponentMissingAdapter(t *testing.T) {
	backend := state.NewMemoryBackend(time.Minute)
	reg := NewMetadataRegistry(backend)
	clock := fleetclock.NewFake(time.Unix(0, 0))
	ids := fleetclock.NewSequentialIDs("backup")
	engine := NewEngine(Config{BasePath: t.TempDir()}, map[string]ComponentAdapter{}, reg, clock, ids, nil)

	plan := Plan{ID: "p1", Type: Full, Components: []string{"database"}}
	result, err := engine.Execute(context.Background(), plan)
	assert.Error(t, err)
	assert.Equal(t, Failed, result.Execution.Status)
}

func TestRestoreRefusesUnverifiedBackup(t *testing.T) {
	engine, reg := newTestEngine(t)
	meta := Metadata{
		BackupID:   "bad",
		BackupPath: t.TempDir() + "/does-not-exist",
		Manifest:   Manifest{Checksum: "deadbeef"},
	}
	require.NoError(t, reg.Save(context.Background(), meta))

	err := engine.Restore(context.Background(), "bad")
	assert.Error(t, err)
}

func TestPruneOlderThanRemovesExpiredMetadata(t *testing.T) {
	engine, _ := newTestEngine(t)
	plan := Plan{ID: "p1", Type: Full, Components: []string{"database"}}

	result, err := engine.Execute(context.Background(), plan)
	require.NoError(t, err)

	engine.clock.(*fleetclock.FakeClock).Advance(48 * time.Hour)
	pruned, err := engine.PruneOlderThan(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = engine.GetMetadata(context.Background(), result.Execution.ID)
	assert.Error(t, err)
}
