package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firewatch/detection-server/internal/logger"
	"github.com/firewatch/detection-server/internal/metrics"
	"github.com/firewatch/detection-server/internal/server"
	"github.com/firewatch/detection-server/internal/store"
)

var (
	// Command-line flags; defaults come from the environment first.
	httpAddr      = flag.String("http", "", "HTTP server address (default from HTTP_ADDR)")
	metricsAddr   = flag.String("metrics", "", "Metrics server address (default from METRICS_ADDR)")
	databaseURL   = flag.String("db", "", "Postgres URL (default from DATABASE_URL; empty string after env = broadcast-only)")
	redisAddr     = flag.String("redis", "", "Redis address for the counts cache (default from REDIS_ADDR)")
	mqttBroker    = flag.String("mqtt", "", "MQTT broker URL for the ingress bridge (default from MQTT_BROKER)")
	mqttTopic     = flag.String("mqtt-topic", "", "MQTT detection topic (default from MQTT_TOPIC)")
	serverID      = flag.String("server-id", "", "Default source id for payloads that omit one (default from AI_SERVER_ID)")
	maxLogEntries = flag.Int("max-log-entries", 0, "Retention cap on stored detections (default from MAX_LOG_ENTRIES)")
	saveInterval  = flag.Duration("save-interval", 0, "Per-source minimum interval between stored events (default from SAVE_INTERVAL)")
	simulator     = flag.Bool("simulator", true, "Run the synthetic detection source")
	logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor      = flag.Bool("log-color", true, "Enable colored log output")
)

const startupTimeout = 10 * time.Second

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	cfg := server.ConfigFromEnv()
	if *httpAddr != "" {
		cfg.Addr = *httpAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *databaseURL != "" {
		cfg.DatabaseURL = *databaseURL
	}
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}
	if *mqttBroker != "" {
		cfg.MQTTBroker = *mqttBroker
	}
	if *mqttTopic != "" {
		cfg.MQTTopic = *mqttTopic
	}
	if *serverID != "" {
		cfg.AIServerID = *serverID
	}
	if *maxLogEntries > 0 {
		cfg.MaxLogEntries = *maxLogEntries
	}
	if *saveInterval > 0 {
		cfg.SaveInterval = *saveInterval
	}
	cfg.Simulator = cfg.Simulator && *simulator

	logger.Info("Main", "Detection server starting on %s", cfg.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	go func() {
		logger.Info("Main", "Metrics server on %s", cfg.MetricsAddr)
		if err := m.StartServer(cfg.MetricsAddr); err != nil && err != http.ErrServerClosed {
			logger.Error("Main", "Metrics server: %v", err)
		}
	}()

	deps := server.Deps{Metrics: m}

	// A missing database is survivable: the live feed keeps working and the
	// query endpoints report the outage.
	if cfg.DatabaseURL != "" {
		st, err := openStore(ctx, cfg)
		if err != nil {
			logger.Warn("Main", "Store unavailable, running broadcast-only: %v", err)
		} else {
			defer st.Close()
			deps.Store = st
		}
	} else {
		logger.Warn("Main", "No database configured, running broadcast-only")
	}

	if cfg.RedisAddr != "" {
		cacheCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		cache, err := store.NewCountCache(cacheCtx, cfg.RedisAddr, store.DefaultCountTTL)
		cancel()
		if err != nil {
			logger.Warn("Main", "Count cache unavailable: %v", err)
		} else {
			defer cache.Close()
			deps.Cache = cache
		}
	}

	srv := server.NewServer(cfg, deps)

	if cfg.MQTTBroker != "" {
		bridge, err := server.StartMQTTBridge(cfg, srv)
		if err != nil {
			logger.Warn("Main", "MQTT bridge unavailable: %v", err)
		} else {
			defer bridge.Close()
		}
	}

	if cfg.Simulator {
		sim := server.NewSimulator(srv.Hub(), m, "simulator", cfg.SimTick, cfg.SimChance)
		go sim.Run(ctx)
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		log.Fatalf("HTTP server: %v", err)
	case <-ctx.Done():
	}

	logger.Info("Main", "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Main", "Shutdown: %v", err)
	}
	logger.Info("Main", "Server stopped")
}

// openStore connects to Postgres and ensures the detection table exists.
func openStore(ctx context.Context, cfg server.Config) (*store.Store, error) {
	openCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	st, err := store.New(openCtx, cfg.DatabaseURL, cfg.MaxLogEntries)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(openCtx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
