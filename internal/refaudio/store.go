// Package refaudio stores voice-cloning reference recordings on disk and
// serves them back by path.
package refaudio

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/kdu3142/old-Iara/internal/core"
)

const (
	filePrefix  = "ref-"
	tokenLength = 6
	tokenBase   = 36
)

const (
	logFmtStored       = "Stored reference audio %s (%s)"
	logFmtMirrorFailed = "Failed to mirror reference audio %s: %v"
	logFmtEventFailed  = "Failed to publish reference audio event for %s: %v"
	errFmtWriteFile    = "failed to write reference audio %s: %w"
	errFmtOpenFile     = "failed to open reference audio %s: %w"
)

// Stored describes a written reference recording.
type Stored struct {
	Path     string `json:"path"`
	FileName string `json:"fileName"`
}

// StoredEvent is published after a recording is mirrored.
type StoredEvent struct {
	Header      events.EventHeader `json:"header"`
	Key         string             `json:"key"`
	Path        string             `json:"path"`
	ContentType string             `json:"contentType"`
	Size        int                `json:"size"`
}

// Mirror copies stored recordings to a shared object store and announces
// them on a subject. Events and Subject are optional.
type Mirror struct {
	Objects core.ObjectStore
	Events  core.EventPublisher
	Subject string
}

// Store writes recordings into a single directory.
type Store struct {
	dir    string
	log    *logger.Logger
	mirror *Mirror
	now    func() time.Time
}

// NewStore creates a store rooted at dir. The directory is created lazily.
func NewStore(dir string, log *logger.Logger) *Store {
	return &Store{dir: dir, log: log, now: time.Now}
}

// NewStoreInConfigDir roots the store at <configDir>/reference-audio.
func NewStoreInConfigDir(configDir string, log *logger.Logger) *Store {
	return NewStore(filepath.Join(configDir, DirName), log)
}

// WithMirror enables mirroring of every stored recording.
func (s *Store) WithMirror(mirror *Mirror) *Store {
	s.mirror = mirror

	return s
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes data under a fresh collision-resistant name. Extensions that
// are not purely alphanumeric fall back to wav.
func (s *Store) Put(ctx context.Context, data []byte, extension string) (Stored, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return Stored{}, fmt.Errorf("reference audio write cancelled: %w", ctxErr)
	}

	dirErr := EnsureDir(s.dir)
	if dirErr != nil {
		return Stored{}, dirErr
	}

	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return Stored{}, fmt.Errorf(errFmtCouldNotResolveAbsolutePath, s.dir, err)
	}

	fileName := s.newFileName(sanitizeExtension(extension))
	path := filepath.Join(absDir, fileName)

	// O_EXCL keeps a colliding name from overwriting an existing take.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, defaultFilePermissions)
	if err != nil {
		return Stored{}, fmt.Errorf(errFmtWriteFile, path, err)
	}

	_, writeErr := file.Write(data)
	closeErr := file.Close()

	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr != nil {
		_ = os.Remove(path)

		return Stored{}, fmt.Errorf(errFmtWriteFile, path, writeErr)
	}

	s.log.Info(logFmtStored, path, FormatFileSize(int64(len(data))))
	s.mirrorFile(ctx, fileName, path, data)

	return Stored{Path: path, FileName: fileName}, nil
}

// Open validates the extension, resolves path and opens it for reading.
// The extension check happens before any filesystem access.
func (s *Store) Open(path string) (*os.File, string, error) {
	return Open(path)
}

// Open is the store-independent form of Store.Open: any allowed audio file
// reachable from the process can be served.
func Open(path string) (*os.File, string, error) {
	contentType, err := ContentType(path)
	if err != nil {
		return nil, "", err
	}

	absPath, err := resolveFile(path)
	if err != nil {
		return nil, "", err
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, "", fmt.Errorf(errFmtOpenFile, absPath, err)
	}

	return file, contentType, nil
}

func (s *Store) newFileName(extension string) string {
	return fmt.Sprintf("%s%d-%s.%s", filePrefix, s.now().UnixMilli(), randomToken(), extension)
}

// randomToken derives a short lowercase base36 token from a random UUID.
func randomToken() string {
	id := uuid.New()
	token := strconv.FormatUint(binary.BigEndian.Uint64(id[8:]), tokenBase)

	if len(token) < tokenLength {
		token = strings.Repeat("0", tokenLength-len(token)) + token
	}

	return token[len(token)-tokenLength:]
}

func (s *Store) mirrorFile(ctx context.Context, key, path string, data []byte) {
	if s.mirror == nil || s.mirror.Objects == nil {
		return
	}

	uploadErr := s.mirror.Objects.Upload(ctx, key, data)
	if uploadErr != nil {
		s.log.Warn(logFmtMirrorFailed, key, uploadErr)

		return
	}

	if s.mirror.Events == nil || s.mirror.Subject == "" {
		return
	}

	contentType, _ := ContentType(path)

	payload, err := json.Marshal(StoredEvent{
		Header: events.EventHeader{
			Timestamp:  s.now(),
			WorkflowID: key,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		Key:         key,
		Path:        path,
		ContentType: contentType,
		Size:        len(data),
	})
	if err != nil {
		s.log.Warn(logFmtEventFailed, key, err)

		return
	}

	publishErr := s.mirror.Events.Publish(s.mirror.Subject, payload)
	if publishErr != nil {
		s.log.Warn(logFmtEventFailed, key, publishErr)
	}
}
