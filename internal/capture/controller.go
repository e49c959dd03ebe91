// Package capture drives a single reference-audio recording session:
// acquiring the microphone, buffering recorder chunks, converting the take
// to canonical WAV and uploading it to the reference-audio store.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/book-expert/logger"

	"github.com/kdu3142/old-Iara/internal/settings"
	"github.com/kdu3142/old-Iara/internal/wave"
)

// State is a capture session phase.
type State string

// Session phases.
const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateSaving     State = "saving"
	StateError      State = "error"
)

var (
	// ErrCaptureBusy is returned while a session is recording or uploading.
	ErrCaptureBusy = errors.New("a reference recording is already in progress")
	// ErrReferenceAudioMissing is returned when voice cloning has no reference.
	ErrReferenceAudioMissing = errors.New("voice cloning needs a reference recording")
	// ErrNotRecording is returned by Stop outside the recording state.
	ErrNotRecording = errors.New("no recording in progress")
	// ErrNothingToRetry is returned by Retry without a failed capture.
	ErrNothingToRetry = errors.New("no failed recording to retry")
	// ErrNoRecordingFormat is returned when the recorder supports none of
	// the formats the encoder accepts.
	ErrNoRecordingFormat = errors.New("no supported recording format")
	// ErrSessionAbandoned is returned by a Start overtaken by LeaveMode
	// while the microphone was being acquired.
	ErrSessionAbandoned = errors.New("capture session abandoned")
)

const (
	logFmtTransition   = "Capture %s -> %s"
	logFmtCaptureError = "Capture failed: %s"
	logFmtUploaded     = "Reference audio uploaded to %s (%d bytes)"
	logFmtReleaseMic   = "Releasing microphone after %d chunks"
)

// Microphone grants access to an audio input stream.
type Microphone interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is a held input device.
type Stream interface {
	Release()
}

// ChunkSink receives encoded recorder output.
type ChunkSink interface {
	AppendChunk(data []byte)
}

// Recorder encodes a stream into chunks. Start must not deliver chunks
// synchronously; Stop must deliver any pending chunks before it returns.
type Recorder interface {
	Start() error
	Stop() error
}

// RecorderFactory builds recorders for a negotiated container format.
type RecorderFactory interface {
	Supports(mime string) bool
	New(stream Stream, mime string, sink ChunkSink) (Recorder, error)
}

// Uploader stores canonical WAV bytes and returns the server path.
type Uploader interface {
	Upload(ctx context.Context, data []byte, extension string) (string, error)
}

// PreviewStore keeps a locally playable copy of the raw take.
type PreviewStore interface {
	Create(data []byte, mime string) (string, error)
	Revoke(url string)
}

// ConfigSink receives the uploaded reference path.
type ConfigSink interface {
	SetReferenceAudio(path string)
}

// Snapshot is an immutable view of the controller for observers.
type Snapshot struct {
	State         State
	Message       string
	PreviewURL    string
	ReferencePath string
	MIME          string
	CapturedBytes int
	Starting      bool
}

// Dependencies bundles the collaborators a Controller drives.
type Dependencies struct {
	Microphone Microphone
	Recorders  RecorderFactory
	Uploader   Uploader
	Previews   PreviewStore
	Config     ConfigSink
}

// Controller is the capture state machine. Every transition checks the
// current state under the mutex first, so at most one session is active.
type Controller struct {
	deps Dependencies
	log  *logger.Logger

	mutex     sync.Mutex
	state     State
	message   string
	session   uint64
	starting  bool
	mime      string
	stream    Stream
	recorder  Recorder
	chunks    [][]byte
	raw       []byte
	preview   string
	reference string
	observers []func(Snapshot)
}

// NewController creates an idle controller.
func NewController(deps Dependencies, log *logger.Logger) *Controller {
	return &Controller{
		deps:  deps,
		log:   log,
		state: StateIdle,
	}
}

// OnChange registers an observer called after every transition.
func (c *Controller) OnChange(observer func(Snapshot)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.observers = append(c.observers, observer)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.snapshotLocked()
}

// Busy reports whether a session is recording, processing or saving.
func (c *Controller) Busy() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return isActive(c.state) || c.starting
}

// Precheck gates connecting the voice agent: voice cloning needs a stored
// reference recording and no capture in flight.
func (c *Controller) Precheck(values settings.Values) error {
	if !values.IsVoiceCloning() {
		return nil
	}

	if c.Busy() {
		return ErrCaptureBusy
	}

	if strings.TrimSpace(values.Qwen.RefAudioPath) == "" {
		return ErrReferenceAudioMissing
	}

	return nil
}

// Start opens the microphone and begins recording. It is rejected with
// ErrCaptureBusy unless the controller is idle or showing an error. The
// lock is not held while the microphone is acquired, so Snapshot and
// LeaveMode stay responsive during a permission prompt.
func (c *Controller) Start(ctx context.Context) error {
	c.mutex.Lock()

	if isActive(c.state) || c.starting {
		c.mutex.Unlock()

		return ErrCaptureBusy
	}

	c.session++
	c.starting = true
	c.discardLocked()

	session := c.session
	mime := c.negotiate()
	c.mutex.Unlock()

	stream, recorder, err := c.open(ctx, mime)

	c.mutex.Lock()

	if c.session != session {
		c.mutex.Unlock()
		closeDevices(recorder, stream, false)

		return ErrSessionAbandoned
	}

	c.starting = false

	if err == nil {
		err = c.beginLocked(mime, stream, recorder)
	}

	if err != nil {
		c.failLocked(err)
	} else {
		c.transitionLocked(StateRecording)
	}

	snapshot, observers := c.snapshotLocked(), c.observers
	c.mutex.Unlock()

	notify(observers, snapshot)

	return err
}

// AppendChunk buffers recorder output while a session is recording or
// flushing.
func (c *Controller) AppendChunk(data []byte) {
	if len(data) == 0 {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state != StateRecording && c.state != StateProcessing {
		return
	}

	c.chunks = append(c.chunks, bytes.Clone(data))
}

// Stop finalizes the recorder, then converts and uploads the take. On
// success the uploaded path is handed to the ConfigSink and the controller
// returns to idle. Calling Stop outside a recording is a no-op that returns
// ErrNotRecording.
func (c *Controller) Stop(ctx context.Context) error {
	c.mutex.Lock()

	if c.state != StateRecording {
		c.mutex.Unlock()

		return ErrNotRecording
	}

	c.transitionLocked(StateProcessing)

	session, recorder := c.session, c.recorder
	snapshot, observers := c.snapshotLocked(), c.observers
	c.mutex.Unlock()

	notify(observers, snapshot)

	stopErr := recorder.Stop()

	raw, mime, ok := c.collect(session)
	if !ok {
		return nil
	}

	if stopErr != nil {
		return c.fail(session, fmt.Errorf("failed to finalize recorder: %w", stopErr))
	}

	return c.process(ctx, session, raw, mime)
}

// Retry re-runs conversion and upload on the preserved take after a
// failure, without recording again.
func (c *Controller) Retry(ctx context.Context) error {
	c.mutex.Lock()

	if c.state != StateError || len(c.raw) == 0 {
		c.mutex.Unlock()

		return ErrNothingToRetry
	}

	c.transitionLocked(StateProcessing)

	session, raw, mime := c.session, c.raw, c.mime
	snapshot, observers := c.snapshotLocked(), c.observers
	c.mutex.Unlock()

	notify(observers, snapshot)

	return c.process(ctx, session, raw, mime)
}

// LeaveMode abandons any session: an in-progress recording is stopped, the
// microphone released and the preview revoked. Results of an upload still
// in flight are discarded.
func (c *Controller) LeaveMode() {
	c.mutex.Lock()

	c.session++

	recorder, stream := c.recorder, c.stream
	c.recorder, c.stream = nil, nil
	c.starting = false

	c.discardLocked()
	c.transitionLocked(StateIdle)

	snapshot, observers := c.snapshotLocked(), c.observers
	c.mutex.Unlock()

	closeDevices(recorder, stream, true)
	notify(observers, snapshot)
}

// Close releases every resource the controller holds.
func (c *Controller) Close() {
	c.LeaveMode()
}

// open acquires the microphone and builds a recorder without holding the
// lock.
func (c *Controller) open(ctx context.Context, mime string) (Stream, Recorder, error) {
	if mime == "" {
		return nil, nil, ErrNoRecordingFormat
	}

	stream, err := c.deps.Microphone.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("microphone unavailable: %w", err)
	}

	recorder, err := c.deps.Recorders.New(stream, mime, c)
	if err != nil {
		stream.Release()

		return nil, nil, fmt.Errorf("failed to create recorder: %w", err)
	}

	return stream, recorder, nil
}

// beginLocked starts the recorder. Recorder.Start must not block or deliver
// chunks synchronously.
func (c *Controller) beginLocked(mime string, stream Stream, recorder Recorder) error {
	startErr := recorder.Start()
	if startErr != nil {
		stream.Release()

		return fmt.Errorf("failed to start recorder: %w", startErr)
	}

	c.mime = mime
	c.stream = stream
	c.recorder = recorder

	return nil
}

// closeDevices releases devices of an abandoned session. The recorder is
// only stopped when it was started.
func closeDevices(recorder Recorder, stream Stream, started bool) {
	if recorder != nil && started {
		_ = recorder.Stop()
	}

	if stream != nil {
		stream.Release()
	}
}

func (c *Controller) negotiate() string {
	for _, mime := range wave.AcceptedFormats {
		if c.deps.Recorders.Supports(mime) {
			return mime
		}
	}

	return ""
}

// collect releases the microphone and assembles the take into one blob
// with a local preview. ok is false when the session was abandoned.
func (c *Controller) collect(session uint64) ([]byte, string, bool) {
	c.mutex.Lock()

	if c.session != session {
		c.mutex.Unlock()

		return nil, "", false
	}

	c.log.Info(logFmtReleaseMic, len(c.chunks))

	stream := c.stream
	c.stream, c.recorder = nil, nil

	c.raw = bytes.Join(c.chunks, nil)
	c.chunks = nil

	if c.deps.Previews != nil && len(c.raw) > 0 {
		url, err := c.deps.Previews.Create(c.raw, c.mime)
		if err == nil {
			c.preview = url
		}
	}

	raw, mime := c.raw, c.mime
	snapshot, observers := c.snapshotLocked(), c.observers
	c.mutex.Unlock()

	if stream != nil {
		stream.Release()
	}

	notify(observers, snapshot)

	return raw, mime, true
}

func (c *Controller) process(ctx context.Context, session uint64, raw []byte, mime string) error {
	encoded, err := canonicalWAV(raw, mime)
	if err != nil {
		return c.fail(session, err)
	}

	if !c.advance(session, StateSaving) {
		return nil
	}

	path, err := c.deps.Uploader.Upload(ctx, encoded, "wav")
	if err != nil {
		return c.fail(session, fmt.Errorf("failed to upload recording: %w", err))
	}

	c.mutex.Lock()

	if c.session != session {
		c.mutex.Unlock()

		return nil
	}

	c.reference = path
	c.deps.Config.SetReferenceAudio(path)
	c.log.Info(logFmtUploaded, path, len(encoded))
	c.transitionLocked(StateIdle)

	snapshot, observers := c.snapshotLocked(), c.observers
	c.mutex.Unlock()

	notify(observers, snapshot)

	return nil
}

func canonicalWAV(raw []byte, mime string) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("failed to encode recording: %w", wave.ErrInvalidAudio)
	}

	if wave.IsCanonical(raw) {
		return raw, nil
	}

	buffer, err := wave.Decode(mime, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}

	encoded, err := wave.Encode(buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recording: %w", err)
	}

	return encoded, nil
}

func (c *Controller) advance(session uint64, next State) bool {
	c.mutex.Lock()

	if c.session != session {
		c.mutex.Unlock()

		return false
	}

	c.transitionLocked(next)

	snapshot, observers := c.snapshotLocked(), c.observers
	c.mutex.Unlock()

	notify(observers, snapshot)

	return true
}

func (c *Controller) fail(session uint64, err error) error {
	c.mutex.Lock()

	if c.session != session {
		c.mutex.Unlock()

		return err
	}

	c.failLocked(err)

	snapshot, observers := c.snapshotLocked(), c.observers
	c.mutex.Unlock()

	notify(observers, snapshot)

	return err
}

func (c *Controller) failLocked(err error) {
	c.message = err.Error()
	c.log.Error(logFmtCaptureError, c.message)
	c.transitionLocked(StateError)
}

func (c *Controller) transitionLocked(next State) {
	if next != StateError {
		c.message = ""
	}

	if c.state != next {
		c.log.Info(logFmtTransition, c.state, next)
	}

	c.state = next
}

// discardLocked drops the previous take and its preview.
func (c *Controller) discardLocked() {
	if c.preview != "" && c.deps.Previews != nil {
		c.deps.Previews.Revoke(c.preview)
	}

	c.preview = ""
	c.chunks = nil
	c.raw = nil
	c.message = ""
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:         c.state,
		Message:       c.message,
		PreviewURL:    c.preview,
		ReferencePath: c.reference,
		MIME:          c.mime,
		Starting:      c.starting,
		CapturedBytes: len(c.raw),
	}
}

func isActive(state State) bool {
	return state == StateRecording || state == StateProcessing || state == StateSaving
}

func notify(observers []func(Snapshot), snapshot Snapshot) {
	for _, observer := range observers {
		observer(snapshot)
	}
}
