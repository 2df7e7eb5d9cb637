package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"bus-fleet/internal/fleet/adapter/cache"
	"bus-fleet/internal/fleet/adapter/db"
	"bus-fleet/internal/fleet/adapter/ingest"
	fleetmqtt "bus-fleet/internal/fleet/adapter/mqtt"
	fleetrabbit "bus-fleet/internal/fleet/adapter/rabbitmq"
	"bus-fleet/internal/fleet/adapter/rest"
	wsadapter "bus-fleet/internal/fleet/adapter/websocket"
	"bus-fleet/internal/fleet/app"
	"bus-fleet/internal/fleet/engine"
	"bus-fleet/migrations"
	"bus-fleet/pkg/auth"
	"bus-fleet/pkg/config"
	pkgdb "bus-fleet/pkg/db"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/metrics"
	pkgmqtt "bus-fleet/pkg/mqtt"
	pkgRabbit "bus-fleet/pkg/rabbitmq"
	pkgredis "bus-fleet/pkg/redis"
	pkgws "bus-fleet/pkg/websocket"
)

const (
	consumerPrefetch = 50
	shutdownTimeout  = 10 * time.Second
)

func main() {
	log := logger.NewLogger("fleet-service")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Error("config_load_failed", err)
		os.Exit(1)
	}
	log = logger.NewLoggerWithLevel("fleet-service", cfg.LogLevel)
	log.Info("service_start", "Fleet service is starting")

	if err := run(ctx, cfg, log); err != nil {
		log.Error("service_failed", err)
		os.Exit(1)
	}
	log.Info("service_stop", "Fleet service stopped")
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clock, err := engine.LoadZoneClock(cfg.Fleet.Timezone)
	if err != nil {
		return err
	}
	retentionHour, retentionMinute, err := config.ParseClock(cfg.Retention.RunAt)
	if err != nil {
		return err
	}

	pool, err := pkgdb.NewConnection(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool, log); err != nil {
		return err
	}

	redisClient, err := pkgredis.NewClient(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	rabbitConn, err := pkgRabbit.NewConnection(ctx, cfg, fleetrabbit.Topology(), log)
	if err != nil {
		return err
	}
	defer rabbitConn.Close()

	mqttClient, err := pkgmqtt.NewClient(cfg, log)
	if err != nil {
		return err
	}
	if err := mqttClient.Start(ctx); err != nil {
		return err
	}

	store := db.NewStore(pool, log)
	liveCache := cache.NewLiveStateCache(redisClient, cfg.Redis.StateTTL)
	wsManager := pkgws.NewManager(log)
	hub := wsadapter.NewHub(wsManager, log)

	notifier := app.NewBroadcaster(log,
		app.NamedNotifier{Name: "websocket", Notifier: hub},
		app.NamedNotifier{Name: "rabbitmq", Notifier: fleetrabbit.NewPublisher(rabbitConn)},
		app.NamedNotifier{Name: "redis", Notifier: liveCache},
	)

	fleet := app.NewFleetService(log, store, engine.NewEngine(engine.Policy{StickyRunning: cfg.Fleet.StickyRunning}),
		clock, notifier, app.FleetOptions{
			VehicleTimeout: cfg.Fleet.VehicleTimeout,
			Concurrency:    cfg.Fleet.PassConcurrency,
		})

	// The writer outlives ctx so queued samples are flushed after shutdown starts.
	writer := db.NewTelemetryWriter(log, store, cfg.Telemetry.QueueSize, cfg.Telemetry.BatchSize, cfg.Telemetry.FlushInterval)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writer.Run(context.Background())
	}()

	telemetry := app.NewTelemetryService(log, store, writer, liveCache, notifier,
		engine.NewResolver(cfg.Fleet.FloorSpeedKMH), clock, app.StopScope(cfg.Fleet.StopScope))

	dispatcher := app.NewDispatcher(log, cfg.Telemetry.Workers, cfg.Telemetry.QueueSize, telemetry.Ingest)
	dispatcher.Start(ctx)

	decoder := ingest.NewDecoder(nil)
	subscriber := fleetmqtt.NewTelemetrySubscriber(log, mqttClient, decoder, dispatcher)
	go func() {
		// Blocks until the broker accepts the first connection.
		if err := subscriber.Subscribe(ctx, cfg.MQTT.TopicFilter, cfg.MQTT.QoS); err != nil && ctx.Err() == nil {
			log.Error("mqtt_subscribe_failed", err)
		}
	}()
	fleetrabbit.NewTelemetryConsumer(rabbitConn, decoder, dispatcher, log).Start(ctx, consumerPrefetch)

	catalog := app.NewCatalogService(log, store, store, fleet, clock)
	dashboard := app.NewDashboardService(log, fleet, store, store, clock, clock.Location(),
		time.Duration(cfg.Fleet.ReportIntervalSec)*time.Second)
	retention := app.NewRetentionService(log, store, clock, cfg.Retention.Months, retentionHour, retentionMinute)

	go fleet.Run(ctx, cfg.Fleet.PassInterval)
	go func() {
		if err := retention.Run(ctx); err != nil {
			log.Error("retention_schedule_failed", err)
		}
	}()

	jwtMgr := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	handler := rest.NewHandler(rest.Deps{
		Vehicles:    store,
		Drivers:     store,
		Routes:      store,
		Stops:       store,
		Schedules:   catalog,
		Maintenance: catalog,
		History:     store,
		Live:        liveCache,
		Dashboard:   dashboard,
		StopCache:   telemetry,
	}, jwtMgr, log)

	mux := http.NewServeMux()
	mux.Handle("/api/", handler.Routes())
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("/ws/dashboard", pkgws.NewHandler(log, jwtMgr, hub.OnConnect, auth.RoleAdmin))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.FleetPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.WithFields(logger.LogFields{"port": cfg.HTTP.FleetPort}).Info("http_listen", "Fleet HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-serverErrors:
		log.Error("http_server_failed", runErr)
	case <-ctx.Done():
		log.Info("shutdown_start", "Shutdown signal received")
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http_shutdown_failed", err)
	}
	mqttClient.Disconnect(shutdownCtx)
	dispatcher.Stop()
	writer.Close()
	select {
	case <-writerDone:
	case <-shutdownCtx.Done():
		log.Warn("shutdown_timeout", "Telemetry writer did not drain in time")
	}
	return runErr
}
