package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"agricam/internal/camera"
	"agricam/internal/config"
	"agricam/internal/logger"
	"agricam/internal/repository/sqlite"
	"agricam/internal/route"
	"agricam/internal/service"
	"agricam/internal/service/capture"
	"agricam/internal/service/events"
	"agricam/internal/service/focus"
	"agricam/internal/service/quality"
	"agricam/internal/service/storage"
	"agricam/internal/service/websocket"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	controller *focus.Controller
	loop       *capture.Loop
	hubService *websocket.HubService
	dispatcher *events.Dispatcher
	publisher  *events.MQTTPublisher
	manager    *service.Manager
	server     *http.Server
}

// NewApp builds every service. A camera that fails to initialize is logged
// and the service keeps running with the camera reported unavailable.
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	profiles := sqlite.NewProfileRepository(db)
	images := sqlite.NewImageRepository(db)
	store := storage.NewFileStore(cfg, log.Named("storage"), images)

	adapter := camera.New(cfg, log.Named("camera"))
	scorer := quality.NewScorer(cfg.QualityMethod, log.Named("quality"))
	controller := focus.NewController(adapter, scorer, log.Named("focus"))
	if !controller.Initialize() {
		log.Warning("Camera %s unavailable, camera endpoints will return 503", adapter.Name())
	}

	var loopCamera capture.Camera = controller
	if cfg.SimulateCapture {
		log.Warning("SIMULATE_CAPTURE is set, the capture loop writes placeholders without the camera")
		loopCamera = nil
	}
	loop := capture.NewLoop(profiles, loopCamera, store, cfg.QueueSize, log.Named("capture"))

	hub := websocket.NewHubService(log.Named("websocket"))

	var publishers []events.Publisher
	var publisher *events.MQTTPublisher
	if cfg.MQTTBroker != "" {
		publisher = events.NewMQTTPublisher(cfg, log.Named("mqtt"))
		publishers = append(publishers, publisher)
	}
	dispatcher := events.NewDispatcher(loop.Queue(), hub, log.Named("events"), publishers...)

	manager := service.NewManager(profiles, controller, loop, store, hub, dispatcher, log.Named("manager"))

	router := route.SetupRoutes(manager, cfg, log)

	return &App{
		config:     cfg,
		logger:     log,
		db:         db,
		controller: controller,
		loop:       loop,
		hubService: hub,
		dispatcher: dispatcher,
		publisher:  publisher,
		manager:    manager,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP and the background services until ctx is cancelled, then
// shuts down: HTTP, capture loop, camera, event fan-out, database.
func (a *App) Run(ctx context.Context) error {
	if a.publisher != nil {
		if err := a.publisher.Connect(ctx); err != nil {
			a.logger.Warning("MQTT publishing disabled: %v", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.hubService.Run(gctx) })
	g.Go(func() error { return a.dispatcher.Run(gctx) })

	g.Go(func() error {
		a.logger.Info("Focus capture service listening on %s", a.server.Addr)
		a.logger.Info("Images: %s, database: %s", a.config.ImageDirectory, a.config.DBPath)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	err := g.Wait()
	a.close()
	return err
}

func (a *App) shutdown() {
	a.logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP shutdown failed: %v", err)
	}

	if a.loop.IsRunning() {
		a.loop.Stop()
	}
	a.controller.Close()
}

func (a *App) close() {
	if a.publisher != nil {
		a.publisher.Disconnect()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Info("Shutdown complete")
}

func (a *App) Manager() *service.Manager {
	return a.manager
}
