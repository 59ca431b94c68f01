package main

import (
	"context"
	"database/sql"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	alertsdomain "vitalwatch-cloud/internal/alerts/domain"
	alertsmemory "vitalwatch-cloud/internal/alerts/infrastructure/memory"
	alertspostgres "vitalwatch-cloud/internal/alerts/infrastructure/postgres"
	"vitalwatch-cloud/internal/alerts/notify"
	apihttp "vitalwatch-cloud/internal/api/http"
	"vitalwatch-cloud/internal/auth"
	devicesdomain "vitalwatch-cloud/internal/devices/domain"
	devicesmemory "vitalwatch-cloud/internal/devices/infrastructure/memory"
	devicespostgres "vitalwatch-cloud/internal/devices/infrastructure/postgres"
	monitor "vitalwatch-cloud/internal/monitor/application"
	"vitalwatch-cloud/internal/observability/metrics"
	"vitalwatch-cloud/internal/stream"
	telemetrydomain "vitalwatch-cloud/internal/telemetry/domain"
	telemetrymemory "vitalwatch-cloud/internal/telemetry/infrastructure/memory"
	telemetrypostgres "vitalwatch-cloud/internal/telemetry/infrastructure/postgres"
	"vitalwatch-cloud/internal/telemetry/simulation"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	monitorCfg, err := monitor.LoadConfig()
	if err != nil {
		logger.Fatalf("monitor config error: %v", err)
	}

	metrics.Init()

	store, err := buildStorage(cfg, logger)
	if err != nil {
		logger.Fatalf("storage error: %v", err)
	}
	defer store.close()

	broker := stream.NewBroker(
		stream.WithQueueDepth(monitorCfg.QueueDepth),
		stream.WithDropHook(metrics.IncBroadcastDropped),
	)

	generator, err := simulation.NewGenerator(monitorCfg.Generator, rand.NewSource(time.Now().UnixNano()))
	if err != nil {
		logger.Fatalf("generator error: %v", err)
	}

	var pipelineOpts []monitor.PipelineOption
	if monitorCfg.WebhookURL != "" {
		channel, err := notify.NewWebhookChannel(monitorCfg.WebhookURL)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		tpl, err := notify.NewTemplate(monitorCfg.NotifyTemplate)
		if err != nil {
			logger.Fatalf("alert template error: %v", err)
		}
		notifier, err := notify.NewWebhookNotifier(channel, tpl, logger,
			notify.WithRequestTimeout(monitorCfg.NotifyTimeout),
			notify.WithCooldown(monitorCfg.NotifyCooldown),
		)
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		pipelineOpts = append(pipelineOpts, monitor.WithNotifier(notifier))
	}

	pipeline, err := monitor.NewPipeline(
		generator,
		monitorCfg.Thresholds,
		store.readingRepo,
		store.alertRepo,
		broker,
		logger,
		pipelineOpts...,
	)
	if err != nil {
		logger.Fatalf("pipeline error: %v", err)
	}

	scheduler, err := monitor.NewScheduler(store.registry, pipeline, logger,
		monitor.WithInterval(monitorCfg.TickInterval),
		monitor.WithWorkerCap(monitorCfg.WorkerCap),
		monitor.WithShutdownGrace(monitorCfg.ShutdownGrace),
	)
	if err != nil {
		logger.Fatalf("scheduler error: %v", err)
	}

	readingsHandler, err := apihttp.NewReadingsHandler(store.readingQuery)
	if err != nil {
		logger.Fatalf("readings handler error: %v", err)
	}
	alertsHandler, err := apihttp.NewAlertsHandler(store.alertQuery)
	if err != nil {
		logger.Fatalf("alerts handler error: %v", err)
	}
	devicesHandler, err := apihttp.NewDevicesHandler(store.registry)
	if err != nil {
		logger.Fatalf("devices handler error: %v", err)
	}
	streamHandler, err := apihttp.NewStreamHandler(broker)
	if err != nil {
		logger.Fatalf("stream handler error: %v", err)
	}
	exportHandler, err := apihttp.NewExportAlertsHandler(store.alertQuery)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/readings", readingsHandler)
	mux.Handle("/api/v1/alerts", alertsHandler)
	mux.Handle("/api/v1/devices", devicesHandler)
	mux.Handle("/api/v1/stream", streamHandler)
	mux.Handle("/api/v1/exports/alerts.csv", exportHandler)
	mux.Handle("/api/v1/exports/alerts.xlsx", exportHandler)
	mux.Handle("/api/v1/exports/alerts.pdf", exportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.JWTSecret), policy).Wrap(handler)
	} else {
		logger.Printf("AUTH_JWT_SECRET not set, api is unauthenticated")
	}
	handler = loggingMiddleware(handler, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go scheduler.Start(ctx)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		logger.Fatalf("http server error: %v", err)
	case <-ctx.Done():
	}

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), monitorCfg.ShutdownGrace)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Printf("scheduler stop: %v", err)
	}
	broker.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
	JWTSecret   string
}

func loadConfig() config {
	return config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

type storage struct {
	db           *sql.DB
	readingRepo  telemetrydomain.ReadingRepository
	readingQuery telemetrydomain.ReadingQuery
	alertRepo    alertsdomain.AlertRepository
	alertQuery   alertsdomain.AlertQuery
	registry     devicesdomain.Registry
}

func (s *storage) close() {
	if s != nil && s.db != nil {
		_ = s.db.Close()
	}
}

// buildStorage wires Postgres-backed stores when DATABASE_URL is set,
// and falls back to the in-memory demo stores with a small seeded fleet
// otherwise.
func buildStorage(cfg config, logger *log.Logger) (*storage, error) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not set, using in-memory demo storage")
		readings := telemetrymemory.NewReadingStore()
		alerts := alertsmemory.NewAlertStore()
		registry := devicesmemory.NewRegistry(demoFleet()...)
		return &storage{
			readingRepo:  readings,
			readingQuery: readings,
			alertRepo:    alerts,
			alertQuery:   alerts,
			registry:     registry,
		}, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	readings := telemetrypostgres.NewReadingRepository(db)
	alerts := alertspostgres.NewAlertRepository(db)
	return &storage{
		db:           db,
		readingRepo:  readings,
		readingQuery: readings,
		alertRepo:    alerts,
		alertQuery:   alerts,
		registry:     devicespostgres.NewRegistry(db),
	}, nil
}

func demoFleet() []devicesdomain.Device {
	now := time.Now().UTC()
	return []devicesdomain.Device{
		{ID: "soother-001", Name: "Smart Soother", Status: devicesdomain.StatusConnected, SubjectID: "subject-001", LastSeen: now},
		{ID: "soother-002", Name: "Smart Soother", Status: devicesdomain.StatusConnected, SubjectID: "subject-002", LastSeen: now},
		{ID: "soother-003", Name: "Smart Soother", Status: devicesdomain.StatusDisconnected},
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the logging wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
