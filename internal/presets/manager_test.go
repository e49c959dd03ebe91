package presets_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdu3142/old-Iara/internal/presets"
	"github.com/kdu3142/old-Iara/internal/settings"
)

var errBackendDown = errors.New("backend down")

// failingBackend loads fine but refuses every save.
type failingBackend struct {
	store settings.Store
}

func (b *failingBackend) Load(context.Context) (settings.Store, error) {
	return b.store, nil
}

func (b *failingBackend) Save(context.Context, settings.Store) (settings.Store, error) {
	return settings.Store{}, errBackendDown
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func newLoadedManager(t *testing.T) (*presets.Manager, *settings.FileStore) {
	t.Helper()

	log := newTestLogger(t)
	backend := settings.NewFileStoreInDir(t.TempDir(), log)
	manager := presets.NewManager(backend, log)

	require.NoError(t, manager.Load(context.Background()))

	return manager, backend
}

func TestManager_RequiresLoad(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	manager := presets.NewManager(settings.NewFileStoreInDir(t.TempDir(), log), log)

	require.ErrorIs(t, manager.SaveActive(context.Background()), presets.ErrNotLoaded)
	require.ErrorIs(t, manager.SelectPreset(context.Background(), "default"), presets.ErrNotLoaded)
}

func TestManager_EditMarksDirtyIncludingNestedFields(t *testing.T) {
	t.Parallel()

	manager, _ := newLoadedManager(t)
	require.False(t, manager.Dirty())

	manager.SetReferenceAudio("/tmp/ref.wav")

	assert.True(t, manager.Dirty())
	assert.Equal(t, []string{"qwen.refAudioPath"}, manager.DirtyFields())

	manager.Reset()

	assert.False(t, manager.Dirty())
	assert.Empty(t, manager.Working().Qwen.RefAudioPath)
}

func TestManager_SaveActivePersists(t *testing.T) {
	t.Parallel()

	manager, backend := newLoadedManager(t)

	manager.Edit(func(values *settings.Values) {
		values.LLMModel = "llama3.2"
	})
	require.NoError(t, manager.SaveActive(context.Background()))
	assert.False(t, manager.Dirty())

	persisted, err := backend.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", settings.ActiveValues(persisted).LLMModel)
}

func TestManager_SaveAsNewAndSelect(t *testing.T) {
	t.Parallel()

	manager, _ := newLoadedManager(t)

	manager.Edit(func(values *settings.Values) {
		values.TTSModel = settings.QwenFamily
		values.Qwen.Mode = settings.ModeVoiceCloning
	})
	require.NoError(t, manager.SaveAsNew(context.Background(), "  Cloned  "))

	store := manager.Store()
	require.Len(t, store.Presets, 2)

	active, ok := store.Active()
	require.True(t, ok)
	assert.Equal(t, "Cloned", active.Name)
	assert.NotEqual(t, settings.DefaultPresetID, active.ID)
	assert.True(t, manager.Working().IsVoiceCloning())

	require.NoError(t, manager.SelectPreset(context.Background(), settings.DefaultPresetID))
	assert.Equal(t, settings.DefaultPresetID, manager.Store().ActivePresetID)
	assert.Equal(t, settings.Defaults(), manager.Working())
}

func TestManager_IgnoredOperations(t *testing.T) {
	t.Parallel()

	manager, _ := newLoadedManager(t)
	before := manager.Store()

	require.NoError(t, manager.SaveAsNew(context.Background(), "   "))
	require.NoError(t, manager.SelectPreset(context.Background(), "no-such-preset"))

	assert.Equal(t, before, manager.Store())
}

func TestManager_SetTopPClamps(t *testing.T) {
	t.Parallel()

	manager, _ := newLoadedManager(t)

	manager.SetTopP(1.7)
	assert.InDelta(t, 1.0, manager.Working().Qwen.TopP, 1e-9)

	manager.SetTopP(-3)
	assert.InDelta(t, 0.0, manager.Working().Qwen.TopP, 1e-9)

	manager.SetTopP(math.NaN())
	assert.InDelta(t, 0.0, manager.Working().Qwen.TopP, 1e-9)
}

func TestManager_SaveFailureKeepsEdits(t *testing.T) {
	t.Parallel()

	backend := &failingBackend{store: settings.DefaultStore(time.Now())}
	manager := presets.NewManager(backend, newTestLogger(t))
	require.NoError(t, manager.Load(context.Background()))

	manager.Edit(func(values *settings.Values) {
		values.SystemPrompt = "Be terse."
	})

	err := manager.SaveActive(context.Background())
	require.ErrorIs(t, err, errBackendDown)
	assert.True(t, manager.Dirty())
	assert.Equal(t, "Be terse.", manager.Working().SystemPrompt)
}
