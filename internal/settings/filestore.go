package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/logger"
)

// StoreFileName is the settings document inside the config directory.
const StoreFileName = "voice-ui-config.json"

const (
	filePermissions = 0o600
	dirPermissions  = 0o750
	tempFilePattern = ".voice-ui-config-*.json"
)

const (
	logFmtStoreUnreadable  = "Settings store %s unreadable, synthesizing defaults: %v"
	logFmtDefaultsPersist  = "Failed to persist default settings to %s: %v"
	logFmtStoreSaved       = "Saved settings store %s (%d presets, active %s)"
	errFmtEncodeStore      = "failed to encode settings store: %w"
	errFmtWriteStore       = "failed to write settings store %s: %w"
	errFmtCreateStoreDir   = "failed to create settings directory %s: %w"
	errFmtReplaceStoreFile = "failed to replace settings store %s: %w"
)

var errNotAnObject = errors.New("document is not a JSON object")

// FileStore persists the settings Store as a JSON document on disk. Reads
// and writes are serialized so concurrent handlers never interleave.
type FileStore struct {
	path  string
	log   *logger.Logger
	now   func() time.Time
	mutex sync.Mutex
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string, log *logger.Logger) *FileStore {
	return &FileStore{
		path: path,
		log:  log,
		now:  time.Now,
	}
}

// NewFileStoreInDir creates a store at the canonical file name in dir.
func NewFileStoreInDir(dir string, log *logger.Logger) *FileStore {
	return NewFileStore(filepath.Join(dir, StoreFileName), log)
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and normalizes the store. A missing or corrupt document is
// replaced by a freshly persisted default store; Load itself only fails when
// ctx is already done.
func (s *FileStore) Load(ctx context.Context) (Store, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return Store{}, fmt.Errorf("settings load cancelled: %w", ctxErr)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	raw, readErr := s.read()
	if readErr != nil {
		s.log.Warn(logFmtStoreUnreadable, s.path, readErr)

		store := DefaultStore(s.now())

		writeErr := s.write(store)
		if writeErr != nil {
			s.log.Error(logFmtDefaultsPersist, s.path, writeErr)
		}

		return store, nil
	}

	return NormalizeStore(raw, s.now()), nil
}

// Save normalizes and persists a typed store, returning the canonical
// result the caller must adopt.
func (s *FileStore) Save(ctx context.Context, store Store) (Store, error) {
	return s.SaveRaw(ctx, store.ToMap())
}

// SaveRaw normalizes and persists an arbitrary JSON document.
func (s *FileStore) SaveRaw(ctx context.Context, raw map[string]any) (Store, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return Store{}, fmt.Errorf("settings save cancelled: %w", ctxErr)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	store := NormalizeStore(raw, s.now())

	writeErr := s.write(store)
	if writeErr != nil {
		return Store{}, writeErr
	}

	s.log.Info(logFmtStoreSaved, s.path, len(store.Presets), store.ActivePresetID)

	return store, nil
}

func (s *FileStore) read() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings store: %w", err)
	}

	var raw map[string]any

	err = json.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings store: %w", err)
	}

	if raw == nil {
		return nil, fmt.Errorf("failed to parse settings store: %w", errNotAnObject)
	}

	return raw, nil
}

// write replaces the document atomically via a temp file in the same dir.
func (s *FileStore) write(store Store) error {
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf(errFmtEncodeStore, err)
	}

	dir := filepath.Dir(s.path)

	mkdirErr := os.MkdirAll(dir, dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf(errFmtCreateStoreDir, dir, mkdirErr)
	}

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf(errFmtWriteStore, s.path, err)
	}

	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()

	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr == nil {
		writeErr = os.Chmod(tempName, filePermissions)
	}

	if writeErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf(errFmtWriteStore, s.path, writeErr)
	}

	renameErr := os.Rename(tempName, s.path)
	if renameErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf(errFmtReplaceStoreFile, s.path, renameErr)
	}

	return nil
}
