package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdu3142/old-Iara/internal/api"
	"github.com/kdu3142/old-Iara/internal/capture"
	"github.com/kdu3142/old-Iara/internal/client"
	"github.com/kdu3142/old-Iara/internal/refaudio"
	"github.com/kdu3142/old-Iara/internal/settings"
	"github.com/kdu3142/old-Iara/internal/wave"
)

type fixedFetcher struct {
	names []string
}

func (f fixedFetcher) List(context.Context, string, string) ([]string, error) {
	return f.names, nil
}

// cli runs the command against serverURL with a per-test log directory.
func cli(t *testing.T, serverURL string, out *bytes.Buffer, args ...string) error {
	t.Helper()

	return run(append([]string{"-server", serverURL, "-log-dir", t.TempDir()}, args...), out)
}

func newConsole(t *testing.T) string {
	t.Helper()

	httpServer := httptest.NewServer(newConsoleHandler(t))
	t.Cleanup(httpServer.Close)

	return httpServer.URL
}

func newConsoleHandler(t *testing.T) http.Handler {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	configDir := t.TempDir()
	server := api.NewServer(
		settings.NewFileStoreInDir(configDir, log),
		refaudio.NewStoreInConfigDir(configDir, log),
		fixedFetcher{names: []string{"llama3.2:latest", "gemma3:4b"}},
		log,
	)

	return server.Handler()
}

func writeReferenceFile(t *testing.T) (string, []byte) {
	t.Helper()

	encoded, err := wave.Encode(wave.Buffer{
		SampleRate: 16000,
		Channels: [][]float32{
			{0, 0.5, -0.5, 0.25},
			{0, -0.5, 0.5, 0.25},
		},
	})
	require.NoError(t, err)

	referenceFile := filepath.Join(t.TempDir(), "take.wav")
	require.NoError(t, os.WriteFile(referenceFile, encoded, 0o600))

	return referenceFile, encoded
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags([]string{"-server", "http://host:1", "-list", "-select", "p1", "-timeout", "2s"})
	require.NoError(t, err)

	assert.Equal(t, "http://host:1", flags.server)
	assert.True(t, flags.list)
	assert.Equal(t, "p1", flags.selectID)
	assert.Equal(t, 2*time.Second, flags.timeout)

	defaults, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultServerURL, defaults.server)
	assert.Equal(t, defaultTimeout, defaults.timeout)
	assert.Negative(t, defaults.topP)
	assert.False(t, defaults.check)

	_, err = parseFlags([]string{"-bogus"})
	require.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   appFlags
		wantErr bool
	}{
		{name: "no action", flags: appFlags{topP: -1}, wantErr: true},
		{name: "top-p", flags: appFlags{topP: 0.5}},
		{name: "check", flags: appFlags{topP: -1, check: true}},
		{name: "list", flags: appFlags{list: true}},
		{name: "health", flags: appFlags{health: true}},
		{name: "reference", flags: appFlags{reference: "take.wav"}},
		{name: "save as", flags: appFlags{saveAs: "Mine"}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := validateFlags(testCase.flags)
			if testCase.wantErr {
				require.ErrorIs(t, err, errNoActionRequested)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestRun_HealthAndList(t *testing.T) {
	t.Parallel()

	serverURL := newConsole(t)

	var out bytes.Buffer

	require.NoError(t, cli(t, serverURL, &out, "-health"))
	assert.Contains(t, out.String(), msgServiceHealthy)

	out.Reset()

	require.NoError(t, cli(t, serverURL, &out, "-list"))
	assert.Contains(t, out.String(), "* "+settings.DefaultPresetID)
}

func TestRun_SaveAsAndSelect(t *testing.T) {
	t.Parallel()

	serverURL := newConsole(t)

	var out bytes.Buffer

	require.NoError(t, cli(t, serverURL, &out, "-save-as", "Evening", "-list"))
	assert.Contains(t, out.String(), "Created preset Evening")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], msgActiveMarker))
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "Evening"))

	out.Reset()

	require.NoError(t, cli(t, serverURL, &out, "-select", settings.DefaultPresetID))
	assert.Contains(t, out.String(), "Active preset: ")

	err := cli(t, serverURL, &out, "-select", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown preset")
}

func TestRun_Models(t *testing.T) {
	t.Parallel()

	serverURL := newConsole(t)

	var out bytes.Buffer

	require.NoError(t, cli(t, serverURL, &out, "-models"))
	assert.Contains(t, out.String(), "llama3.2:latest")
	assert.Contains(t, out.String(), "gemma3:4b")
}

func TestRun_ReferenceFromFile(t *testing.T) {
	t.Parallel()

	serverURL := newConsole(t)

	referenceFile, encoded := writeReferenceFile(t)

	var out bytes.Buffer

	require.NoError(t, cli(t, serverURL, &out, "-reference", referenceFile))
	assert.Contains(t, out.String(), "Reference audio stored at ")
	assert.Contains(t, out.String(), "Saved qwen.refAudioPath to preset "+settings.DefaultPresetID)

	store, err := client.NewHTTPClient(serverURL, 5*time.Second).Load(context.Background())
	require.NoError(t, err)

	stored := settings.ActiveValues(store).Qwen.RefAudioPath
	require.NotEmpty(t, stored)

	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	assert.Equal(t, encoded, data)

	err = cli(t, serverURL, &out, "-reference", filepath.Join(t.TempDir(), "take.txt"))
	require.Error(t, err)
}

func TestRun_TopPSavedToActivePreset(t *testing.T) {
	t.Parallel()

	serverURL := newConsole(t)

	var out bytes.Buffer

	require.NoError(t, cli(t, serverURL, &out, "-top-p", "0.42"))
	assert.Contains(t, out.String(), "Saved qwen.topP to preset "+settings.DefaultPresetID)

	store, err := client.NewHTTPClient(serverURL, 5*time.Second).Load(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.42, settings.ActiveValues(store).Qwen.TopP, 1e-9)

	out.Reset()

	require.NoError(t, cli(t, serverURL, &out, "-top-p", "0.42"))
	assert.NotContains(t, out.String(), "Saved")
}

func TestRun_CheckRequiresReferenceForCloning(t *testing.T) {
	t.Parallel()

	serverURL := newConsole(t)

	var out bytes.Buffer

	require.NoError(t, cli(t, serverURL, &out, "-check"))
	assert.Contains(t, out.String(), "is ready to connect")

	_, err := client.NewHTTPClient(serverURL, 5*time.Second).SaveRaw(context.Background(), map[string]any{
		"activePresetId": "clone",
		"presets": []any{
			map[string]any{"id": "clone", "name": "My voice", "values": map[string]any{
				"ttsModel": settings.QwenFamily,
				"qwen":     map[string]any{"mode": settings.ModeVoiceCloning},
			}},
		},
	})
	require.NoError(t, err)

	err = cli(t, serverURL, &out, "-check")
	require.ErrorIs(t, err, capture.ErrReferenceAudioMissing)

	referenceFile, _ := writeReferenceFile(t)

	out.Reset()

	require.NoError(t, cli(t, serverURL, &out, "-reference", referenceFile, "-check"))
	assert.Contains(t, out.String(), "Active preset clone is ready to connect")
}

func TestRun_ReferenceRetriesFailedUpload(t *testing.T) {
	t.Parallel()

	handler := newConsoleHandler(t)

	var uploads atomic.Int32

	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == api.PathReferenceAudio && uploads.Add(1) == 1 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)

			return
		}

		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(httpServer.Close)

	referenceFile, encoded := writeReferenceFile(t)

	var out bytes.Buffer

	require.NoError(t, cli(t, httpServer.URL, &out, "-reference", referenceFile))
	assert.Contains(t, out.String(), msgRetrying)
	assert.Contains(t, out.String(), "Reference audio stored at ")
	assert.Equal(t, int32(2), uploads.Load())

	store, err := client.NewHTTPClient(httpServer.URL, 5*time.Second).Load(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(settings.ActiveValues(store).Qwen.RefAudioPath)
	require.NoError(t, err)
	assert.Equal(t, encoded, data)
}
