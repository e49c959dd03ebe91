package settings_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/kdu3142/old-Iara/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC)

func TestNormalizeStore_EmptyPresetsSynthesizesDefault(t *testing.T) {
	t.Parallel()

	for _, raw := range []map[string]any{
		nil,
		{},
		{"presets": []any{}},
		{"presets": []any{"junk", 4}},
		{"presets": "not-a-list", "activePresetId": "x"},
	} {
		store := settings.NormalizeStore(raw, fixedNow)

		require.Len(t, store.Presets, 1)
		assert.Equal(t, settings.DefaultPresetID, store.ActivePresetID)
		assert.Equal(t, settings.DefaultPresetName, store.Presets[0].Name)
		assert.Equal(t, settings.Defaults(), store.Presets[0].Values)
		assert.Equal(t, settings.CurrentSchemaVersion, store.Version)
	}
}

func TestNormalizeStore_DanglingActiveFallsBackToFirst(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"activePresetId": "missing",
		"presets": []any{
			map[string]any{"id": "a", "name": "Alpha"},
			map[string]any{"id": "b", "name": "Beta"},
		},
	}

	store := settings.NormalizeStore(raw, fixedNow)

	assert.Equal(t, "a", store.ActivePresetID)

	active, ok := store.Active()
	require.True(t, ok)
	assert.Equal(t, "Alpha", active.Name)
}

func TestNormalizeStore_RepairsIdentity(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"activePresetId": "dup",
		"presets": []any{
			map[string]any{"id": "dup", "name": "First", "updatedAt": float64(1700000000000)},
			map[string]any{"id": "dup", "name": ""},
			map[string]any{"name": "Third", "updatedAt": "2024-01-02T03:04:05Z"},
		},
	}

	store := settings.NormalizeStore(raw, fixedNow)
	require.Len(t, store.Presets, 3)

	assert.Equal(t, "dup", store.Presets[0].ID)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), store.Presets[0].UpdatedAt)

	assert.Equal(t, "preset-2", store.Presets[1].ID)
	assert.Equal(t, "Preset 2", store.Presets[1].Name)
	assert.Equal(t, fixedNow, store.Presets[1].UpdatedAt)

	assert.Equal(t, "preset-3", store.Presets[2].ID)
	assert.Equal(t, time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC), store.Presets[2].UpdatedAt)

	assert.Equal(t, "dup", store.ActivePresetID)
}

func TestNormalizeStore_MigratesUnversionedPresets(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"presets": []any{
			map[string]any{
				"id":     "legacy",
				"name":   "Legacy",
				"values": map[string]any{"ttsModel": "mlx-community/Qwen3-TTS-12Hz-1.7B-VoiceDesign-bf16"},
			},
		},
	}

	store := settings.NormalizeStore(raw, fixedNow)
	values := settings.ActiveValues(store)

	assert.Equal(t, settings.QwenFamily, values.TTSModel)
	assert.Equal(t, settings.ModeVoiceDesign, values.Qwen.Mode)
}

func TestStore_NormalizeIsStable(t *testing.T) {
	t.Parallel()

	store := settings.DefaultStore(fixedNow)
	store.Presets = append(store.Presets, settings.Preset{
		ID:        "second",
		Name:      "Second",
		Values:    settings.Defaults(),
		UpdatedAt: fixedNow.Add(time.Minute),
	})
	store.ActivePresetID = "second"

	assert.Equal(t, store, store.Normalize(fixedNow.Add(time.Hour)))
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func TestFileStore_MissingFileWritesDefaults(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "config")
	store := settings.NewFileStoreInDir(dir, newTestLogger(t))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settings.DefaultPresetID, loaded.ActivePresetID)

	data, err := os.ReadFile(filepath.Join(dir, settings.StoreFileName))
	require.NoError(t, err)

	var persisted settings.Store
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, settings.DefaultPresetID, persisted.ActivePresetID)
}

func TestFileStore_CorruptFileFallsBack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, settings.StoreFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := settings.NewFileStore(path, newTestLogger(t))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded.Presets, 1)
	assert.Equal(t, settings.Defaults(), loaded.Presets[0].Values)
}

func TestFileStore_SaveRawNormalizesAndPersists(t *testing.T) {
	t.Parallel()

	store := settings.NewFileStoreInDir(t.TempDir(), newTestLogger(t))

	saved, err := store.SaveRaw(context.Background(), map[string]any{
		"activePresetId": "mine",
		"presets": []any{
			map[string]any{
				"id":     "mine",
				"name":   "Mine",
				"values": map[string]any{"llmModel": "qwen2.5", "qwen": map[string]any{"topK": "7"}},
			},
		},
	})
	require.NoError(t, err)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, saved, loaded)
	assert.Equal(t, "qwen2.5", settings.ActiveValues(loaded).LLMModel)
	assert.Equal(t, 7, settings.ActiveValues(loaded).Qwen.TopK)
}

func TestFileStore_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := settings.NewFileStoreInDir(t.TempDir(), newTestLogger(t))

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = store.Save(ctx, settings.DefaultStore(fixedNow))
	require.ErrorIs(t, err, context.Canceled)
}
