package refaudio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the reference-audio subdirectory of the config directory.
const DirName = "reference-audio"

const (
	defaultDirPermissions  = 0o750
	defaultFilePermissions = 0o600
	defaultExtension       = "wav"
	dot                    = "."
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
)

const (
	formatMB    = "%.1f MB"
	formatKB    = "%.1f KB"
	formatBytes = "%d B"
)

const (
	errFmtFailedToCreateDir           = "failed to create directory %s: %w"
	errFmtCouldNotResolveAbsolutePath = "could not resolve absolute path for %q: %w"
	errFmtErrorCheckingPath           = "error checking reference audio %q: %w"
)

var (
	// ErrUnsupportedType is returned for paths outside the audio allow-list.
	ErrUnsupportedType = errors.New("unsupported reference audio type")
	// ErrNotFound is returned when the path is missing or not a regular file.
	ErrNotFound = errors.New("reference audio not found")
)

// contentTypes is the allow-list of servable reference-audio extensions.
var contentTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
}

// ContentType returns the MIME type for an allowed audio path. It only
// inspects the name and never touches the filesystem.
func ContentType(path string) (string, error) {
	contentType, ok := contentTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(path))
	}

	return contentType, nil
}

// IsValidAudioFile checks if a filename has an allowed audio extension.
func IsValidAudioFile(filename string) bool {
	_, err := ContentType(filename)

	return err == nil
}

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// resolveFile turns path into an absolute path (relative paths resolve
// against the working directory) and checks that it names a regular file.
func resolveFile(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf(errFmtCouldNotResolveAbsolutePath, path, err)
	}

	info, statErr := os.Stat(absPath)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, absPath)
		}

		return "", fmt.Errorf(errFmtErrorCheckingPath, absPath, statErr)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, absPath)
	}

	return absPath, nil
}

// sanitizeExtension keeps a lowercase alphanumeric extension, falling back
// to wav.
func sanitizeExtension(extension string) string {
	extension = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(extension), dot))
	if extension == "" {
		return defaultExtension
	}

	for _, r := range extension {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return defaultExtension
		}
	}

	return extension
}

// FormatFileSize formats a file size in a human-readable string (e.g. "1.2 MB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}
