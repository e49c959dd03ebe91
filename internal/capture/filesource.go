package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kdu3142/old-Iara/internal/wave"
)

// ErrUnsupportedFile is returned for audio files FileSource cannot replay.
var ErrUnsupportedFile = errors.New("unsupported audio file")

const fileChunkSize = 32 * 1024

var fileMIMEs = map[string]string{
	".wav": wave.MIMEWAV,
	".ogg": wave.MIMEOgg,
	".mp3": wave.MIMEMPEG,
}

// FileSource replays an audio file through the capture pipeline in place of
// a live microphone. It implements both Microphone and RecorderFactory.
type FileSource struct {
	path string
	mime string
}

// NewFileSource validates the file type and returns a source for it.
func NewFileSource(path string) (*FileSource, error) {
	mime, ok := fileMIMEs[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}

	return &FileSource{path: path, mime: mime}, nil
}

// Acquire opens the file.
func (s *FileSource) Acquire(ctx context.Context) (Stream, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return nil, fmt.Errorf("acquire cancelled: %w", ctxErr)
	}

	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}

	return &fileStream{file: file}, nil
}

// Supports reports whether mime matches the file's container.
func (s *FileSource) Supports(mime string) bool {
	return mime == s.mime
}

// New returns a recorder that streams the file to sink when stopped.
func (s *FileSource) New(stream Stream, mime string, sink ChunkSink) (Recorder, error) {
	opened, ok := stream.(*fileStream)
	if !ok || !s.Supports(mime) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, mime)
	}

	return &fileRecorder{file: opened.file, sink: sink}, nil
}

type fileStream struct {
	file *os.File
}

func (s *fileStream) Release() {
	_ = s.file.Close()
}

type fileRecorder struct {
	file *os.File
	sink ChunkSink
}

func (r *fileRecorder) Start() error {
	return nil
}

func (r *fileRecorder) Stop() error {
	buf := make([]byte, fileChunkSize)

	for {
		n, err := r.file.Read(buf)
		if n > 0 {
			r.sink.AppendChunk(buf[:n])
		}

		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to read recording: %w", err)
		}
	}
}

// TempPreviews writes previews to temporary files and returns file URLs.
type TempPreviews struct {
	dir string
}

// NewTempPreviews stores previews under dir, or the system temp dir.
func NewTempPreviews(dir string) *TempPreviews {
	if dir == "" {
		dir = os.TempDir()
	}

	return &TempPreviews{dir: dir}
}

// Create writes data to a new preview file.
func (p *TempPreviews) Create(data []byte, mime string) (string, error) {
	file, err := os.CreateTemp(p.dir, "capture-preview-*."+wave.Extension(mime))
	if err != nil {
		return "", fmt.Errorf("failed to create preview: %w", err)
	}

	_, writeErr := file.Write(data)
	closeErr := file.Close()

	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr != nil {
		_ = os.Remove(file.Name())

		return "", fmt.Errorf("failed to write preview: %w", writeErr)
	}

	return "file://" + file.Name(), nil
}

// Revoke deletes a preview file.
func (p *TempPreviews) Revoke(url string) {
	_ = os.Remove(strings.TrimPrefix(url, "file://"))
}
