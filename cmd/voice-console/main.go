// main package for the voice console
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/kdu3142/old-Iara/internal/api"
	"github.com/kdu3142/old-Iara/internal/config"
	"github.com/kdu3142/old-Iara/internal/models"
	"github.com/kdu3142/old-Iara/internal/objectstore"
	"github.com/kdu3142/old-Iara/internal/refaudio"
	"github.com/kdu3142/old-Iara/internal/settings"
	"github.com/kdu3142/old-Iara/internal/worker"
)

const shutdownTimeout = 10 * time.Second

const (
	bootstrapLogFile = "voice-console-bootstrap.log"
	finalLogFile     = "voice-console.log"
	natsClientName   = "voice-console"
)

const (
	logListening       = "Voice console listening on http://%s (config dir: %s)"
	logNATSDisabled    = "NATS URL not configured; reference-audio mirror and config responder disabled"
	logNATSConnected   = "Connected to NATS at %s (bucket %s)"
	logShuttingDown    = "Shutting down voice console"
	logWorkerFailed    = "Config responder stopped with error: %v"
	logShutdownFailed  = "HTTP shutdown failed: %v"
	logNATSDrainFailed = "NATS drain failed: %v"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

// natsServices holds the optional NATS collaborators.
type natsServices struct {
	conn   *nats.Conn
	mirror *refaudio.Mirror
}

func connectNATS(cfg *config.Config, log *logger.Logger) (*natsServices, error) {
	if cfg.NATS.URL == "" {
		log.Warn(logNATSDisabled)

		return nil, nil
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bucket, err := objectstore.New(jetstreamContext, cfg.NATS.ReferenceAudioBucket)
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to open reference audio bucket: %w", err)
	}

	log.Info(logNATSConnected, cfg.NATS.URL, bucket.Bucket())

	return &natsServices{
		conn: natsConnection,
		mirror: &refaudio.Mirror{
			Objects: bucket,
			Events:  natsConnection,
			Subject: cfg.NATS.ReferenceAudioStoredSubject,
		},
	}, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, finalLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

func serve(parent context.Context, cfg *config.Config, log *logger.Logger) error {
	ctx, cancelWorkers := context.WithCancel(parent)
	defer cancelWorkers()

	settingsStore := settings.NewFileStoreInDir(cfg.Paths.ConfigDir, log)
	audioStore := refaudio.NewStoreInConfigDir(cfg.Paths.ConfigDir, log)

	services, err := connectNATS(cfg, log)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	if services != nil {
		audioStore.WithMirror(services.mirror)

		responder := worker.NewNatsWorker(services.conn, cfg.NATS.ActiveConfigSubject, settingsStore, log)

		wg.Add(1)

		go func() {
			defer wg.Done()

			runErr := responder.Run(ctx, nil)
			if runErr != nil {
				log.Error(logWorkerFailed, runErr)
			}
		}()
	}

	lister := models.NewLister(&http.Client{Timeout: cfg.ModelsTimeout()}, cfg.Models.APIKey, log)
	handler := api.NewServer(settingsStore, audioStore, lister, log).
		WithMaxAudioBytes(cfg.Server.MaxUploadBytes).
		Handler()

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout(),
		ReadHeaderTimeout: cfg.ReadTimeout(),
		WriteTimeout:      cfg.WriteTimeout(),
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- server.ListenAndServe()
	}()

	log.System(logListening, cfg.Server.ListenAddr, cfg.Paths.ConfigDir)

	var result error

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = fmt.Errorf("http server failed: %w", err)
		}
	}

	log.Info(logShuttingDown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		log.Warn(logShutdownFailed, shutdownErr)
	}

	if services != nil {
		cancelWorkers()
		wg.Wait()

		drainErr := services.conn.Drain()
		if drainErr != nil {
			log.Warn(logNATSDrainFailed, drainErr)
		}
	}

	return result
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
