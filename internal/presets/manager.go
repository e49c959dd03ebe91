// Package presets tracks the working configuration against the persisted
// preset store: selecting, saving and forking presets, and reporting unsaved
// edits.
package presets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/kdu3142/old-Iara/internal/settings"
)

// ErrNotLoaded is returned by operations that need a store before Load ran.
var ErrNotLoaded = errors.New("preset store has not been loaded")

const (
	logFmtLoaded      = "Loaded %d presets, active %q"
	logFmtSelected    = "Selected preset %q"
	logFmtUnknownID   = "Ignoring selection of unknown preset %q"
	logFmtSaved       = "Saved preset %q"
	logFmtCreated     = "Created preset %q (%s)"
	logFmtBlankName   = "Ignoring save-as with blank preset name"
	errFmtLoadPresets = "failed to load presets: %w"
	errFmtSavePresets = "failed to save presets: %w"
)

// Backend persists the store and returns the canonical result.
type Backend interface {
	Load(ctx context.Context) (settings.Store, error)
	Save(ctx context.Context, store settings.Store) (settings.Store, error)
}

// Manager holds the persisted store alongside the in-memory working values
// the user is editing. It is safe for concurrent use.
type Manager struct {
	backend Backend
	log     *logger.Logger
	now     func() time.Time
	newID   func() string

	mutex   sync.Mutex
	store   settings.Store
	working settings.Values
	loaded  bool
}

// NewManager creates a manager over the given backend.
func NewManager(backend Backend, log *logger.Logger) *Manager {
	return &Manager{
		backend: backend,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Load fetches the store and resets the working copy to the active preset.
func (m *Manager) Load(ctx context.Context) error {
	store, err := m.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf(errFmtLoadPresets, err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.adopt(store)
	m.log.Info(logFmtLoaded, len(store.Presets), store.ActivePresetID)

	return nil
}

// SelectPreset makes id the active preset and loads its values into the
// working copy. Unknown ids are ignored.
func (m *Manager) SelectPreset(ctx context.Context, id string) error {
	m.mutex.Lock()

	if !m.loaded {
		m.mutex.Unlock()

		return ErrNotLoaded
	}

	if _, ok := m.store.Find(id); !ok {
		m.mutex.Unlock()
		m.log.Warn(logFmtUnknownID, id)

		return nil
	}

	next := cloneStore(m.store)
	next.ActivePresetID = id
	m.mutex.Unlock()

	err := m.persist(ctx, next)
	if err != nil {
		return err
	}

	m.log.Info(logFmtSelected, id)

	return nil
}

// SaveActive overwrites the active preset with the working values.
func (m *Manager) SaveActive(ctx context.Context) error {
	m.mutex.Lock()

	if !m.loaded {
		m.mutex.Unlock()

		return ErrNotLoaded
	}

	next := cloneStore(m.store)
	for index := range next.Presets {
		if next.Presets[index].ID == next.ActivePresetID {
			next.Presets[index].Values = m.working
			next.Presets[index].UpdatedAt = m.now().UTC()
		}
	}

	id := next.ActivePresetID
	m.mutex.Unlock()

	err := m.persist(ctx, next)
	if err != nil {
		return err
	}

	m.log.Info(logFmtSaved, id)

	return nil
}

// SaveAsNew appends the working values as a new preset and activates it.
// A name that is blank after trimming is silently ignored.
func (m *Manager) SaveAsNew(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		m.log.Warn(logFmtBlankName)

		return nil
	}

	m.mutex.Lock()

	if !m.loaded {
		m.mutex.Unlock()

		return ErrNotLoaded
	}

	id := m.newID()
	next := cloneStore(m.store)
	next.Presets = append(next.Presets, settings.Preset{
		ID:        id,
		Name:      name,
		Values:    m.working,
		UpdatedAt: m.now().UTC(),
	})
	next.ActivePresetID = id
	m.mutex.Unlock()

	err := m.persist(ctx, next)
	if err != nil {
		return err
	}

	m.log.Info(logFmtCreated, name, id)

	return nil
}

// Reset discards working edits.
func (m *Manager) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.working = settings.ActiveValues(m.store)
}

// Edit applies fn to the working values.
func (m *Manager) Edit(fn func(values *settings.Values)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	fn(&m.working)
}

// SetReferenceAudio stores a freshly uploaded reference recording path in
// the working values.
func (m *Manager) SetReferenceAudio(path string) {
	m.Edit(func(values *settings.Values) {
		values.Qwen.RefAudioPath = path
	})
}

// SetTopP sets the nucleus-sampling threshold, clamped to [0, 1].
func (m *Manager) SetTopP(value float64) {
	m.Edit(func(values *settings.Values) {
		values.Qwen.TopP = clamp(value, 0, 1)
	})
}

// Working returns the values being edited.
func (m *Manager) Working() settings.Values {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.working
}

// Store returns the last canonical store received from the backend.
func (m *Manager) Store() settings.Store {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return cloneStore(m.store)
}

// Dirty reports whether the working values differ from the active preset.
func (m *Manager) Dirty() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return !settings.Equal(m.working, settings.ActiveValues(m.store))
}

// DirtyFields lists the JSON paths of unsaved edits.
func (m *Manager) DirtyFields() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return settings.Diff(settings.ActiveValues(m.store), m.working)
}

// persist saves next and adopts the canonical store the backend returns,
// resetting the working copy to the resulting active preset.
func (m *Manager) persist(ctx context.Context, next settings.Store) error {
	saved, err := m.backend.Save(ctx, next)
	if err != nil {
		return fmt.Errorf(errFmtSavePresets, err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.adopt(saved)

	return nil
}

func (m *Manager) adopt(store settings.Store) {
	m.store = store
	m.working = settings.ActiveValues(store)
	m.loaded = true
}

func cloneStore(store settings.Store) settings.Store {
	out := store
	out.Presets = make([]settings.Preset, len(store.Presets))
	copy(out.Presets, store.Presets)

	return out
}

func clamp(value, low, high float64) float64 {
	if math.IsNaN(value) {
		return low
	}

	return min(max(value, low), high)
}
