// Package api exposes the settings store, the reference-audio store and the
// model-listing proxy over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/book-expert/logger"

	"github.com/kdu3142/old-Iara/internal/models"
	"github.com/kdu3142/old-Iara/internal/refaudio"
	"github.com/kdu3142/old-Iara/internal/settings"
	"github.com/kdu3142/old-Iara/internal/wave"
)

// API endpoints and paths.
const (
	PathSettings       = "/api/settings"
	PathReferenceAudio = "/api/reference-audio"
	PathModels         = "/api/models"
	PathHealth         = "/health"
)

// Request parameters.
const (
	QueryPath       = "path"
	QueryProvider   = "provider"
	QueryBaseURL    = "baseUrl"
	FormFieldAudio  = "audio"
	DefaultMaxAudio = 25 << 20
	maxSettingsBody = 1 << 20
)

// HTTP headers.
const (
	headerContentType   = "Content-Type"
	headerCacheControl  = "Cache-Control"
	headerContentLength = "Content-Length"
	contentTypeJSON     = "application/json"
	cacheNoStore        = "no-store"
)

const (
	errMissingPath        = "missing path parameter"
	errMissingAudioField  = "missing audio field"
	errInvalidUpload      = "invalid multipart upload"
	logFmtRequest         = "%s %s -> %d (%s)"
	logFmtHandlerFailure  = "%s %s failed: %v"
	logFmtEncodeResponse  = "Failed to encode response: %v"
	logFmtStreamResponse  = "Failed to stream %s: %v"
	errFmtReadUploadField = "failed to read upload: %w"
)

var (
	// ErrSettingsTooLarge rejects a settings body over the size limit.
	ErrSettingsTooLarge = errors.New("settings body too large")
	// ErrInvalidSettings rejects a settings body that is not valid JSON.
	ErrInvalidSettings = errors.New("invalid settings body")
)

// SettingsStore persists the preset document.
type SettingsStore interface {
	Load(ctx context.Context) (settings.Store, error)
	SaveRaw(ctx context.Context, raw map[string]any) (settings.Store, error)
}

// AudioStore writes and serves reference recordings.
type AudioStore interface {
	Put(ctx context.Context, data []byte, extension string) (refaudio.Stored, error)
	Open(path string) (*os.File, string, error)
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ModelsResponse lists model names.
type ModelsResponse struct {
	Models []string `json:"models"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status string `json:"status"`
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	settings SettingsStore
	audio    AudioStore
	models   models.Fetcher
	log      *logger.Logger
	maxAudio int64
}

// NewServer wires the handlers.
func NewServer(
	settingsStore SettingsStore,
	audio AudioStore,
	fetcher models.Fetcher,
	log *logger.Logger,
) *Server {
	return &Server{
		settings: settingsStore,
		audio:    audio,
		models:   fetcher,
		log:      log,
		maxAudio: DefaultMaxAudio,
	}
}

// WithMaxAudioBytes overrides the upload size limit.
func (s *Server) WithMaxAudioBytes(limit int64) *Server {
	if limit > 0 {
		s.maxAudio = limit
	}

	return s
}

// Handler returns the routed, request-logging handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+PathSettings, s.handleGetSettings)
	mux.HandleFunc("POST "+PathSettings, s.handlePostSettings)
	mux.HandleFunc("GET "+PathReferenceAudio, s.handleGetReferenceAudio)
	mux.HandleFunc("POST "+PathReferenceAudio, s.handlePostReferenceAudio)
	mux.HandleFunc("GET "+PathModels, s.handleListModels)
	mux.HandleFunc("GET "+PathHealth, s.handleHealth)

	return s.logRequests(mux)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	store, err := s.settings.Load(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(w, http.StatusOK, store)
}

// handlePostSettings normalizes any well-formed JSON value; a value that is
// not an object normalizes from an empty one. Oversized or malformed bodies
// are rejected and nothing is saved.
func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	raw, decodeErr := decodeObject(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	if decodeErr != nil {
		s.fail(w, r, settingsBodyStatus(decodeErr), decodeErr)

		return
	}

	store, err := s.settings.SaveRaw(r.Context(), raw)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(w, http.StatusOK, store)
}

func (s *Server) handleGetReferenceAudio(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get(QueryPath)
	if path == "" {
		s.writeError(w, http.StatusBadRequest, errMissingPath)

		return
	}

	file, contentType, err := s.audio.Open(path)
	if err != nil {
		s.fail(w, r, referenceStatus(err), err)

		return
	}

	defer func() { _ = file.Close() }()

	w.Header().Set(headerContentType, contentType)
	w.Header().Set(headerCacheControl, cacheNoStore)

	info, statErr := file.Stat()
	if statErr == nil {
		w.Header().Set(headerContentLength, strconv.FormatInt(info.Size(), 10))
	}

	w.WriteHeader(http.StatusOK)

	_, copyErr := io.Copy(w, file)
	if copyErr != nil {
		s.log.Warn(logFmtStreamResponse, path, copyErr)
	}
}

func (s *Server) handlePostReferenceAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxAudio)

	parseErr := r.ParseMultipartForm(s.maxAudio)
	if parseErr != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("%s: %w", errInvalidUpload, parseErr))

		return
	}

	file, header, err := r.FormFile(FormFieldAudio)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errMissingAudioField)

		return
	}

	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf(errFmtReadUploadField, err))

		return
	}

	extension := filepath.Ext(header.Filename)
	if extension == "" {
		extension = wave.Extension(header.Header.Get(headerContentType))
	}

	stored, err := s.audio.Put(r.Context(), data, extension)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	names, err := s.models.List(r.Context(), query.Get(QueryProvider), query.Get(QueryBaseURL))
	if err != nil {
		s.fail(w, r, modelsStatus(err), err)

		return
	}

	if names == nil {
		names = []string{}
	}

	s.writeJSON(w, http.StatusOK, ModelsResponse{Models: names})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func referenceStatus(err error) int {
	switch {
	case errors.Is(err, refaudio.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, refaudio.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func modelsStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidBaseURL), errors.Is(err, models.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.log.Error(logFmtHandlerFailure, r.Method, r.URL.Path, err)
	s.writeError(w, status, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.Header().Set(headerCacheControl, cacheNoStore)
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.log.Error(logFmtEncodeResponse, err)
	}
}

func decodeObject(body io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrSettingsTooLarge, tooLarge.Limit)
		}

		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrInvalidSettings)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var value any

	decodeErr := decoder.Decode(&value)
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, decodeErr)
	}

	raw, ok := value.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}

	return raw, nil
}

func settingsBodyStatus(err error) int {
	if errors.Is(err, ErrSettingsTooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	return http.StatusBadRequest
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		s.log.Info(logFmtRequest, r.Method, r.URL.Path, recorder.status, time.Since(started))
	})
}
