// Command repcoach runs the live analysis engine: a WebSocket service
// that counts reps and coaches form from streamed pose frames, with
// persistence, metrics export, and a status monitor behind it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/repcoach/engine/internal/api"
	"github.com/repcoach/engine/internal/cache"
	"github.com/repcoach/engine/internal/config"
	"github.com/repcoach/engine/internal/database"
	"github.com/repcoach/engine/internal/dispatcher"
	"github.com/repcoach/engine/internal/influx"
	"github.com/repcoach/engine/internal/logging"
	"github.com/repcoach/engine/internal/monitor"
	intotel "github.com/repcoach/engine/internal/otel"
	"github.com/repcoach/engine/internal/parser"
	"github.com/repcoach/engine/internal/server"
	"github.com/repcoach/engine/internal/storage"
	"github.com/repcoach/engine/internal/worker"
)

// EngineVersion and BuildDate can be set at build time via ldflags.
var (
	EngineVersion = "1.0.0"
	BuildDate     = "unknown"
)

// engine holds everything main wires together, so shutdown can walk it
// back down in order.
type engine struct {
	startTime time.Time

	slogManager  *logging.SlogManager
	logger       *slog.Logger
	logFile      *os.File
	otelProvider *intotel.Provider

	dbManager *database.Manager
	influxMgr *influx.Manager

	sessions *cache.SessionCache
	ids      *cache.IDCache

	dispatcher *dispatcher.Dispatcher
	backend    storage.Backend
	workers    *worker.Manager
	monitor    *monitor.Service
	server     *server.Service

	// Read by the gorm backend's writers, toggled by the SQLite dump
	// loop while the in-memory database is being vacuumed to disk.
	dbInsertsPaused bool
}

func main() {
	configDir := flag.String("config", ".", "directory containing repcoach.cfg.json")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("repcoach %s (built %s)\n", EngineVersion, BuildDate)
		return
	}

	e := &engine{startTime: time.Now()}
	os.Exit(e.run(*configDir))
}

func (e *engine) run(configDir string) int {
	if err := e.setupLogging(configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		return 1
	}
	e.logger.Info("Starting repcoach engine",
		"version", EngineVersion,
		"buildDate", BuildDate)

	if err := e.setupServices(); err != nil {
		e.logger.Error("Failed to set up services", "error", err)
		return 1
	}

	go e.checkFrontendStatus()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.server.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-serverErr:
		if err != nil {
			e.logger.Error("Analysis service failed", "error", err)
			exitCode = 1
		}
	case s := <-sig:
		e.logger.Info("Signal received, shutting down", "signal", s.String())
	}

	e.shutdown()
	return exitCode
}

// setupLogging bootstraps slog to stdout, loads the config, then moves
// logging to the session log file with optional OTel and GELF handlers
// attached.
func (e *engine) setupLogging(configDir string) error {
	e.slogManager = logging.NewSlogManager()
	e.slogManager.Setup(nil, "info", nil)
	e.logger = e.slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		e.logger.Warn("Failed to load config, using defaults", "error", err)
	} else {
		e.logger.Info("Loaded config", "dir", configDir)
	}

	var err error
	e.logFile, err = logging.OpenLogFile(viper.GetString("logsDir"), "repcoach", e.startTime)
	if err != nil {
		return err
	}

	if oc := config.GetOTelConfig(); oc.Enabled {
		e.otelProvider, err = intotel.New(intotel.Config{
			Enabled:      true,
			ServiceName:  oc.ServiceName,
			BatchTimeout: oc.BatchTimeout,
			LogWriter:    e.logFile,
			Endpoint:     oc.Endpoint,
			Insecure:     oc.Insecure,
		})
		if err != nil {
			e.logger.Error("Failed to initialize OTel provider", "error", err)
			e.otelProvider = nil
		}
	}

	var extra []slog.Handler
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		gelfHandler, err := logging.NewGELFHandler(graylogCfg.Address, slog.LevelInfo)
		if err != nil {
			e.logger.Error("Failed to connect GELF handler",
				"address", graylogCfg.Address,
				"error", err)
		} else {
			extra = append(extra, gelfHandler)
		}
	}

	var logProvider *sdklog.LoggerProvider
	if e.otelProvider != nil {
		logProvider = e.otelProvider.LoggerProvider()
	}
	e.slogManager.Setup(e.logFile, viper.GetString("logLevel"), logProvider, extra...)
	e.logger = e.slogManager.Logger()
	e.logger.Info("Logging to file", "path", e.logFile.Name())
	return nil
}

// setupServices wires storage, metrics, workers, the monitor, and the
// analysis service together around one dispatcher.
func (e *engine) setupServices() error {
	e.sessions = cache.NewSessionCache()
	e.ids = cache.NewIDCache()

	// Every log line from here on carries the live session count.
	e.slogManager.SetContext(func() []slog.Attr {
		return []slog.Attr{slog.Int("active_sessions", e.sessions.Len())}
	})

	var err error
	e.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(e.logger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	zlog := zerolog.New(e.logFile).With().Timestamp().Logger()
	logsDir := viper.GetString("logsDir")

	storageCfg := config.GetStorageConfig()
	backendDeps := storage.Dependencies{
		Sessions:   e.ids,
		LogManager: e.slogManager,
	}

	if storageCfg.Type == "gorm" {
		e.dbManager = database.NewManager(zlog)
		e.dbManager.DumpPath = storageCfg.SQLite.DumpPath
		if e.dbManager.DumpPath == "" {
			e.dbManager.DumpPath = filepath.Join(logsDir,
				fmt.Sprintf("repcoach_%s.db", e.startTime.Format("20060102_150405")))
		}

		if err := e.dbManager.Connect(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := e.dbManager.Setup(); err != nil {
			return fmt.Errorf("failed to set up database: %w", err)
		}

		backendDeps.DB = e.dbManager.DB
		backendDeps.DatabaseReady = func() bool { return e.dbManager.Ready }
		backendDeps.LocalOnly = func() bool { return e.dbManager.LocalOnly }
		backendDeps.InsertsPaused = func() bool { return e.dbInsertsPaused }
	}

	e.backend, err = storage.NewBackend(storageCfg, backendDeps)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := e.backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	e.logger.Info("Storage backend initialized", "type", storageCfg.Type)

	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		e.influxMgr = influx.NewManager(influxCfg, zlog, filepath.Join(logsDir, "metrics_backup.gz"))
		if err := e.influxMgr.Connect(); err != nil {
			e.logger.Warn("Metrics export disabled", "error", err)
			e.influxMgr = nil
		}
	}

	e.workers = worker.NewManager(worker.Dependencies{
		SessionCache: e.sessions,
		LogManager:   e.slogManager,
		Influx:       e.influxMgr,
	}, e.backend)
	e.workers.RegisterHandlers(e.dispatcher)
	e.logger.Info("Worker handlers registered with dispatcher")

	e.monitor = monitor.NewService(monitor.Dependencies{
		DB:            backendDeps.DB,
		LogManager:    e.slogManager,
		Dispatcher:    e.dispatcher,
		WorkerManager: e.workers,
		StatusDir:     logsDir,
	})

	if e.dbManager != nil && e.dbManager.Ready && !e.dbManager.LocalOnly &&
		e.dbManager.DB.Dialector.Name() == "postgres" {
		// frame_samples rows arrive at capture rate; partition them by
		// time when TimescaleDB is present.
		err := e.monitor.ValidateHypertables(map[string][]string{
			"frame_samples": {"session_id"},
		})
		if err != nil {
			e.logger.Warn("Failed to validate hypertables", "error", err)
		}
	}

	if err := e.monitor.Start(); err != nil {
		e.logger.Error("Failed to start status monitor", "error", err)
	}

	if e.dbManager != nil && e.dbManager.LocalOnly {
		go e.dumpLoop(storageCfg.SQLite.DumpInterval)
	}

	e.server = server.NewService(server.Dependencies{
		SessionCache: e.sessions,
		Dispatcher:   e.dispatcher,
		LogManager:   e.slogManager,
		Parser:       parser.NewParser(e.logger, EngineVersion, viper.GetString("defaultTag")),
	}, config.GetServerConfig())

	return nil
}

// dumpLoop periodically pauses inserts and vacuums the in-memory SQLite
// database to disk so a crash loses at most one interval.
func (e *engine) dumpLoop(interval time.Duration) {
	if interval <= 0 {
		interval = 3 * time.Minute
	}
	e.logger.Debug("Starting SQLite dump loop", "interval", interval)

	for {
		time.Sleep(interval)
		if !e.dbManager.LocalOnly {
			continue
		}

		e.dbInsertsPaused = true
		if err := e.dbManager.DumpMemoryToDisk(); err != nil {
			e.logger.Error("Failed to dump memory DB to disk", "error", err)
		}
		e.dbInsertsPaused = false
	}
}

// checkFrontendStatus pings the web frontend once at startup.
func (e *engine) checkFrontendStatus() {
	apiCfg := config.GetAPIConfig()
	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(); err != nil {
		e.logger.Info("RepCoach frontend is offline")
	} else {
		e.logger.Info("RepCoach frontend is online")
	}
}

// shutdown stops services in reverse dependency order and flushes what
// buffers remain.
func (e *engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if e.server != nil {
		if err := e.server.Shutdown(ctx); err != nil {
			e.logger.Error("Error shutting down analysis service", "error", err)
		}
	}
	if e.monitor != nil {
		e.monitor.Stop()
	}
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("Error closing storage backend", "error", err)
		}
	}
	if e.influxMgr != nil {
		e.influxMgr.Close()
	}
	if e.dbManager != nil && e.dbManager.LocalOnly {
		if err := e.dbManager.DumpMemoryToDisk(); err != nil {
			e.logger.Error("Error dumping memory DB on shutdown", "error", err)
		}
	}

	e.logger.Info("Engine stopped")

	if err := e.slogManager.Flush(ctx); err != nil {
		e.logger.Error("Error flushing logs", "error", err)
	}
	if e.otelProvider != nil {
		if err := e.otelProvider.Shutdown(ctx); err != nil {
			e.logger.Error("Error shutting down OTel provider", "error", err)
		}
	}
	if e.logFile != nil {
		e.logFile.Close()
	}
}
