package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/kdu3142/old-Iara/internal/capture"
	"github.com/kdu3142/old-Iara/internal/client"
	"github.com/kdu3142/old-Iara/internal/models"
	"github.com/kdu3142/old-Iara/internal/presets"
	"github.com/kdu3142/old-Iara/internal/settings"
)

// Flag descriptions.
const (
	flagServerDesc    = "Base URL of the voice console"
	flagTimeoutDesc   = "Timeout for each request to the voice console"
	flagListDesc      = "List presets and exit"
	flagSelectDesc    = "Activate the preset with this id"
	flagSaveAsDesc    = "Save the working values as a new preset with this name"
	flagReferenceDesc = "Audio file (.wav, .ogg, .mp3) to use as the voice-cloning reference"
	flagModelsDesc    = "List the LLM models available to the active preset"
	flagHealthDesc    = "Check voice console health and exit"
	flagLogDirDesc    = "Directory for the client log file"
	flagTopPDesc      = "Set the voice-cloning top-p (0-1) of the active preset; negative leaves it unchanged"
	flagCheckDesc     = "Check that the active preset is ready to connect the voice agent"
)

// Flag names.
const (
	flagServer    = "server"
	flagTimeout   = "timeout"
	flagList      = "list"
	flagSelect    = "select"
	flagSaveAs    = "save-as"
	flagReference = "reference"
	flagModels    = "models"
	flagHealth    = "health"
	flagLogDir    = "log-dir"
	flagTopP      = "top-p"
	flagCheck     = "check"
)

// Error messages.
const (
	errNoAction           = "one of --list, --select, --save-as, --reference, --top-p, --check, --models or --health must be provided"
	errHealthCheckFailed  = "Health check failed: %v"
	errUnknownPreset      = "unknown preset %q"
	errFmtLoadPresets     = "failed to load presets: %w"
	errFmtCaptureFailed   = "reference capture failed: %w"
	errFmtSaveChanges     = "failed to save changes to preset: %w"
	errFmtNotReady        = "active preset is not ready to connect: %w"
	errFmtModelsFailed    = "failed to list models: %w"
	errFmtModelsUnhealthy = "models unavailable for %s at %s: %s\n"
)

// Output messages.
const (
	msgServiceHealthy = "Voice console is healthy"
	msgPresetLine     = "%s %-36s  %s\n"
	msgSelected       = "Active preset: %s (%s)\n"
	msgReference      = "Reference audio stored at %s\n"
	msgCaptureState   = "Capture %s\n"
	msgCaptureFailed  = "Capture %s: %s\n"
	msgRetrying       = "Retrying reference upload"
	msgSavedChanges   = "Saved %s to preset %s\n"
	msgReady          = "Active preset %s is ready to connect\n"
	msgModelLine      = "  %s\n"
	msgCreated        = "Created preset %s (%s)\n"
	msgActiveMarker   = "*"
	msgInactiveMarker = " "
	logFileName       = "voicectl.log"
	defaultServerURL  = "http://127.0.0.1:7860"
	defaultTimeout    = 30 * time.Second
)

var errNoActionRequested = errors.New(errNoAction)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	server    string
	timeout   time.Duration
	list      bool
	selectID  string
	saveAs    string
	reference string
	models    bool
	health    bool
	check     bool
	topP      float64
	logDir    string
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	validateErr := validateFlags(flags)
	if validateErr != nil {
		return validateErr
	}

	appLog, err := logger.New(flags.logDir, logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() { _ = appLog.Close() }()

	ctx := context.Background()
	httpClient := client.NewHTTPClient(flags.server, flags.timeout)

	if flags.health {
		return handleHealthCheck(ctx, httpClient, appLog, out)
	}

	return handleExecution(ctx, httpClient, appLog, flags, out)
}

// parseFlags defines and parses command-line flags on a private flag set.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("voicectl", flag.ContinueOnError)
	flagSet.StringVar(&flags.server, flagServer, defaultServerURL, flagServerDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	flagSet.BoolVar(&flags.list, flagList, false, flagListDesc)
	flagSet.StringVar(&flags.selectID, flagSelect, "", flagSelectDesc)
	flagSet.StringVar(&flags.saveAs, flagSaveAs, "", flagSaveAsDesc)
	flagSet.StringVar(&flags.reference, flagReference, "", flagReferenceDesc)
	flagSet.BoolVar(&flags.models, flagModels, false, flagModelsDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.StringVar(&flags.logDir, flagLogDir, os.TempDir(), flagLogDirDesc)
	flagSet.Float64Var(&flags.topP, flagTopP, -1, flagTopPDesc)
	flagSet.BoolVar(&flags.check, flagCheck, false, flagCheckDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

func validateFlags(flags appFlags) error {
	if !flags.list && !flags.models && !flags.health && !flags.check && flags.topP < 0 &&
		flags.selectID == "" && flags.saveAs == "" && flags.reference == "" {
		return errNoActionRequested
	}

	return nil
}

func handleHealthCheck(ctx context.Context, httpClient *client.HTTPClient, appLog *logger.Logger, out io.Writer) error {
	err := httpClient.HealthCheck(ctx)
	if err != nil {
		appLog.Error(errHealthCheckFailed, err)

		return fmt.Errorf("voice console is not healthy: %w", err)
	}

	_, _ = fmt.Fprintln(out, msgServiceHealthy)

	return nil
}

// handleExecution applies the requested actions in order: select, edit the
// working values (top-p, reference capture), save, check, then list and
// models. Edits are saved to the active preset unless --save-as names a new
// one.
func handleExecution(
	ctx context.Context,
	httpClient *client.HTTPClient,
	appLog *logger.Logger,
	flags appFlags,
	out io.Writer,
) error {
	manager := presets.NewManager(httpClient, appLog)

	err := manager.Load(ctx)
	if err != nil {
		return fmt.Errorf(errFmtLoadPresets, err)
	}

	if flags.selectID != "" {
		err = selectPreset(ctx, manager, flags.selectID, out)
		if err != nil {
			return err
		}
	}

	if flags.topP >= 0 {
		manager.SetTopP(flags.topP)
	}

	if flags.reference != "" {
		err = captureReference(ctx, manager, httpClient, appLog, flags.reference, out)
		if err != nil {
			return err
		}
	}

	err = saveChanges(ctx, manager, flags.saveAs, out)
	if err != nil {
		return err
	}

	if flags.check {
		err = checkReady(manager, appLog, out)
		if err != nil {
			return err
		}
	}

	if flags.list {
		printPresets(manager.Store(), out)
	}

	if flags.models {
		return listModels(ctx, httpClient, manager.Working(), out)
	}

	return nil
}

func selectPreset(ctx context.Context, manager *presets.Manager, id string, out io.Writer) error {
	preset, ok := manager.Store().Find(id)
	if !ok {
		return fmt.Errorf(errUnknownPreset, id)
	}

	err := manager.SelectPreset(ctx, id)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, msgSelected, preset.Name, preset.ID)

	return nil
}

// saveChanges stores the working values as a new preset when saveAs is set,
// otherwise it saves unsaved edits into the active preset.
func saveChanges(ctx context.Context, manager *presets.Manager, saveAs string, out io.Writer) error {
	if saveAs != "" {
		err := manager.SaveAsNew(ctx, saveAs)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(out, msgCreated, saveAs, manager.Store().ActivePresetID)

		return nil
	}

	fields := manager.DirtyFields()
	if len(fields) == 0 {
		return nil
	}

	err := manager.SaveActive(ctx)
	if err != nil {
		return fmt.Errorf(errFmtSaveChanges, err)
	}

	_, _ = fmt.Fprintf(out, msgSavedChanges, strings.Join(fields, ", "), manager.Store().ActivePresetID)

	return nil
}

// checkReady runs the connect precondition against the active preset.
func checkReady(manager *presets.Manager, appLog *logger.Logger, out io.Writer) error {
	controller := capture.NewController(capture.Dependencies{Config: manager}, appLog)
	defer controller.Close()

	err := controller.Precheck(manager.Working())
	if err != nil {
		return fmt.Errorf(errFmtNotReady, err)
	}

	_, _ = fmt.Fprintf(out, msgReady, manager.Store().ActivePresetID)

	return nil
}

// captureReference replays path through the capture pipeline: decode,
// re-encode to mono 16-bit WAV, upload, then store the path in the working
// values. A failed upload is retried once from the preserved take.
func captureReference(
	ctx context.Context,
	manager *presets.Manager,
	httpClient *client.HTTPClient,
	appLog *logger.Logger,
	path string,
	out io.Writer,
) error {
	source, err := capture.NewFileSource(path)
	if err != nil {
		return fmt.Errorf(errFmtCaptureFailed, err)
	}

	controller := capture.NewController(capture.Dependencies{
		Microphone: source,
		Recorders:  source,
		Uploader:   httpClient,
		Previews:   capture.NewTempPreviews(""),
		Config:     manager,
	}, appLog)
	defer controller.Close()

	controller.OnChange(func(snapshot capture.Snapshot) {
		if snapshot.Message != "" {
			_, _ = fmt.Fprintf(out, msgCaptureFailed, snapshot.State, snapshot.Message)

			return
		}

		_, _ = fmt.Fprintf(out, msgCaptureState, snapshot.State)
	})

	err = controller.Start(ctx)
	if err != nil {
		return fmt.Errorf(errFmtCaptureFailed, err)
	}

	err = controller.Stop(ctx)
	if err != nil && canRetry(controller.Snapshot()) {
		appLog.Warn(msgRetrying)
		_, _ = fmt.Fprintln(out, msgRetrying)

		err = controller.Retry(ctx)
	}

	if err != nil {
		return fmt.Errorf(errFmtCaptureFailed, err)
	}

	_, _ = fmt.Fprintf(out, msgReference, controller.Snapshot().ReferencePath)

	return nil
}

func canRetry(snapshot capture.Snapshot) bool {
	return snapshot.State == capture.StateError && snapshot.CapturedBytes > 0
}

func printPresets(store settings.Store, out io.Writer) {
	for _, preset := range store.Presets {
		marker := msgInactiveMarker
		if preset.ID == store.ActivePresetID {
			marker = msgActiveMarker
		}

		_, _ = fmt.Fprintf(out, msgPresetLine, marker, preset.ID, preset.Name)
	}
}

func listModels(ctx context.Context, fetcher models.Fetcher, values settings.Values, out io.Writer) error {
	catalog := models.NewCatalog(fetcher)

	snapshot, err := catalog.Refresh(ctx, values.LLMProvider, values.LLMBaseURL)
	if err != nil {
		return fmt.Errorf(errFmtModelsFailed, err)
	}

	if snapshot.Unavailable {
		_, _ = fmt.Fprintf(out, errFmtModelsUnhealthy, snapshot.Provider, snapshot.BaseURL, snapshot.Err)

		return nil
	}

	for _, name := range snapshot.Models {
		_, _ = fmt.Fprintf(out, msgModelLine, name)
	}

	return nil
}
