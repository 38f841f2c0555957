package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"voicepipe-server-go/internal/domain/capability"
	capasr "voicepipe-server-go/internal/domain/capability/asr"
	capdenoise "voicepipe-server-go/internal/domain/capability/denoise"
	captts "voicepipe-server-go/internal/domain/capability/tts"
	"voicepipe-server-go/internal/domain/ingest"
	"voicepipe-server-go/internal/domain/notify"
	"voicepipe-server-go/internal/domain/pipeline"
	"voicepipe-server-go/internal/domain/session"
	sessionstore "voicepipe-server-go/internal/domain/session/store"
	platformconfig "voicepipe-server-go/internal/platform/config"
	platformerrors "voicepipe-server-go/internal/platform/errors"
	platformlogging "voicepipe-server-go/internal/platform/logging"
	platformobservability "voicepipe-server-go/internal/platform/observability"
	platformstorage "voicepipe-server-go/internal/platform/storage"
	httptransport "voicepipe-server-go/internal/transport/http"
	httpapi "voicepipe-server-go/internal/transport/http/api"
	"voicepipe-server-go/internal/transport/ws"
	"voicepipe-server-go/internal/utils"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	configPath            string
	logProvider           *platformlogging.Logger
	logger                *utils.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc

	db       *gorm.DB
	registry *capability.Registry
	sessions *session.Service
	notifier *notify.Notifier
	queue    *pipeline.Queue
	pool     *pipeline.Pool
	ingest   *ingest.Service
}

// Run starts the whole service lifecycle: configuration, dependency
// initialization, transports and graceful shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("BOOT", "observability shutdown failed: %v", err)
			}
		}()
	}

	defer func() {
		state.ingest.Close()
		state.queue.Close()
		state.notifier.Close()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := state.sessions.Close(closeCtx); err != nil {
			logger.WarnTag("STORE", "session store close failed: %v", err)
		}
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("BOOT", "service stopped cleanly")
	logger.Close()
	return nil
}

func logBootstrapGraph(steps []initStep, logger *utils.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "initialisation order")
	for _, step := range steps {
		logger.InfoTag("BOOT", "  %s", step.Title)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph declares the dependency-ordered initialisation steps.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise result database",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initStorageStep,
		},
		{
			ID:        "capability:init-registry",
			Title:     "Initialise capability registry",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindCapability,
			Execute:   initCapabilitiesStep,
		},
		{
			ID:        "session:init-service",
			Title:     "Initialise session service",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initSessionsStep,
		},
		{
			ID:        "notify:init",
			Title:     "Initialise result notifier",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initNotifierStep,
		},
		{
			ID:        "pipeline:init",
			Title:     "Initialise job queue and worker pool",
			DependsOn: []string{"capability:init-registry", "session:init-service", "notify:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initPipelineStep,
		},
		{
			ID:        "ingest:init",
			Title:     "Initialise ingestion service",
			DependsOn: []string{"pipeline:init"},
			Kind:      platformerrors.KindStorage,
			Execute:   initIngestStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	config, err := platformconfig.NewLoader().Load()
	if err != nil {
		return err
	}
	state.config = config
	state.configPath = ".config.yaml"
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logProvider, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logProvider = logProvider
	state.logger = logProvider.Core()
	state.slogger = logProvider.Slog()
	utils.DefaultLogger = state.logger

	state.logger.InfoTag(
		"BOOT",
		"logging ready [%s] %s",
		state.config.Log.Level,
		state.configPath,
	)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	slogger := state.slogger
	if slogger == nil {
		slogger = state.logger.Slog()
	}

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initStorageStep(_ context.Context, state *appState) error {
	if state.config.Store.Type != sessionstore.DriverSQLite {
		return nil
	}

	db, err := platformstorage.Open(state.config.Store.SQLite.DSN)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to open result database", err)
	}
	state.db = db
	state.logger.InfoTag("STORE", "sqlite database ready at %s", state.config.Store.SQLite.DSN)
	return nil
}

// initCapabilitiesStep creates the registry and fires the one-shot async
// loader. The transports come up immediately; each capability flips to
// ready (or unavailable) on its own schedule.
func initCapabilitiesStep(_ context.Context, state *appState) error {
	registry := capability.NewRegistry()
	caps := state.config.Capabilities

	factories := capability.Factories{
		Denoise: func(context.Context) (capability.DenoiseProvider, error) {
			return capdenoise.New(caps.Denoise, state.config.Audio.SampleRate)
		},
		ASR: func(context.Context) (capability.ASRProvider, error) {
			return capasr.New(caps.ASR)
		},
		TTS: func(context.Context) (capability.TTSProvider, error) {
			return captts.New(caps.TTS)
		},
	}

	loader := capability.NewLoader(registry, factories, state.logger)
	go func() {
		if err := loader.Load(context.Background()); err != nil {
			state.logger.ErrorTag("BOOT", "capability loading failed: %v", err)
		}
	}()

	state.registry = registry
	return nil
}

func initSessionsStep(_ context.Context, state *appState) error {
	audio := state.config.Audio
	archive, err := session.NewArchive(audio.ResultsDir, audio.TranscriptsDir, audio.TTSDir)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "session:init-service", "failed to create archive dirs", err)
	}

	storeCfg := sessionstore.Config{
		Driver: strings.ToLower(strings.TrimSpace(state.config.Store.Type)),
	}
	switch storeCfg.Driver {
	case sessionstore.DriverSQLite:
		storeCfg.SQLite = &sessionstore.SQLiteConfig{DSN: state.config.Store.SQLite.DSN}
	case sessionstore.DriverRedis:
		storeCfg.Redis = &sessionstore.RedisConfig{
			Addr:     state.config.Store.Redis.Addr,
			Username: state.config.Store.Redis.Username,
			Password: state.config.Store.Redis.Password,
			DB:       state.config.Store.Redis.DB,
			Prefix:   state.config.Store.Redis.Prefix,
		}
	}

	st, err := sessionstore.New(storeCfg, sessionstore.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "session:init-service", "failed to create session store", err)
	}

	state.sessions = session.NewService(st, archive)
	state.logger.InfoTag("STORE", "session store ready (%s)", storeCfg.Driver)
	return nil
}

func initNotifierStep(_ context.Context, state *appState) error {
	state.notifier = notify.New(state.logger)
	return nil
}

func initPipelineStep(_ context.Context, state *appState) error {
	pcfg := state.config.Pipeline
	state.queue = pipeline.NewQueue(pcfg.QueueCapacity)
	state.pool = pipeline.NewPool(
		pcfg.Workers,
		state.queue,
		state.registry,
		state.sessions,
		state.notifier,
		pipeline.StageTimeouts{
			Denoise: pcfg.DenoiseTimeout.Std(),
			ASR:     pcfg.ASRTimeout.Std(),
			TTS:     pcfg.TTSTimeout.Std(),
		},
		state.logger,
	)
	state.logger.InfoTag("PIPELINE", "queue capacity %d, %d workers", pcfg.QueueCapacity, pcfg.Workers)
	return nil
}

func initIngestStep(_ context.Context, state *appState) error {
	ing, err := ingest.NewService(ingest.Config{
		UploadDir: state.config.Audio.UploadDir,
		ChunkTTL:  state.config.Audio.ChunkTTL.Std(),
	}, state.queue, state.logger)
	if err != nil {
		return err
	}
	state.ingest = ing
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	logger := state.logger

	g.Go(func() error {
		return state.pool.Run(groupCtx)
	})

	if err := startHTTPServer(state, g, groupCtx); err != nil {
		return fmt.Errorf("failed to start HTTP service: %w", err)
	}

	if state.config.Transport.WebSocket.Enabled {
		if err := startWSServer(state, g, groupCtx); err != nil {
			return fmt.Errorf("failed to start WebSocket service: %w", err)
		}
	} else {
		logger.InfoTag("WS", "websocket transport disabled")
	}

	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	router := httpRouter.Engine

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			httptransport.RespondError(c, http.StatusNotFound, "api not found")
			return
		}
		c.Status(http.StatusNotFound)
	})

	apiService, err := httpapi.NewService(
		config,
		logger,
		state.ingest,
		state.sessions,
		state.registry,
		state.queue,
	)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "api:new-service", "failed to create api service", err)
	}
	if err := apiService.Register(groupCtx, httpRouter.API, router); err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "api:register", "failed to register api routes", err)
	}

	httpServer := &http.Server{
		Addr:    net.JoinHostPort(config.Server.IP, strconv.Itoa(config.Server.Port)),
		Handler: router,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "shut down cleanly")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "serve failed: %v", err)
			return err
		}
		return nil
	})

	return nil
}

func startWSServer(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	config := state.config
	logger := state.logger

	hub := ws.NewHub(logger)
	router := ws.NewRouter(hub, logger, ws.RouterOptions{})
	server := ws.NewServer(ws.ServerConfig{
		Addr: net.JoinHostPort(config.Transport.WebSocket.IP, strconv.Itoa(config.Transport.WebSocket.Port)),
		Path: "/",
	}, router, hub, logger)

	server.SetHandlerBuilder(func(conn *ws.Connection, req *http.Request) (ws.SessionHandler, error) {
		return ws.NewLiveHandler(conn, state.ingest, state.notifier, logger), nil
	})

	g.Go(func() error {
		return server.Start(groupCtx)
	})

	return nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *utils.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "received %v, cleaning up", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(15 * time.Second):
		timeoutErr := errors.New("service shutdown timed out")
		logger.ErrorTag("BOOT", "shutdown timed out, forcing exit")
		return timeoutErr
	}
	return nil
}
