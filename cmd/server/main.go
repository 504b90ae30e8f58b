package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Logic-Phantom/DataVille/cmd/server/internal/api"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/exporter"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/gateway"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/hub"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/instrumentation"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/market"
	"github.com/Logic-Phantom/DataVille/cmd/server/internal/scheduler"
	"github.com/Logic-Phantom/DataVille/pkg/config"
	"github.com/Logic-Phantom/DataVille/pkg/models"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Log, cfg.App.Env)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	metrics := instrumentation.NewMetrics(prometheus.DefaultRegisterer)

	listings := models.AllMajors()
	sim := market.NewSimulator(logger, market.RealClock{}, market.NewRealRand(), cfg.Market.Volatility)
	sim.Initialize(listings)

	wsHub := hub.NewHub(sim, logger, metrics)

	var exp *exporter.Exporter
	if cfg.Kafka.Enabled {
		creator := exporter.NewTopicCreator(logger, &exporter.RealKafkaDialer{Dialer: kafka.DefaultDialer}, exporter.RealClock{})
		creator.Create(cfg.Kafka.Brokers, cfg.Kafka.Topic)

		exp = exporter.NewExporter(logger, exporter.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger, metrics), sim, metrics)
		logger.Info("Kafka export enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	sched, err := scheduler.NewScheduler(logger, sim, wsHub, schedulerExporter(exp), metrics, cfg.Market)
	if err != nil {
		logger.Fatal("Failed to build scheduler", zap.Error(err))
	}

	mux := http.NewServeMux()
	api.NewHandler(sim, wsHub, listings, logger).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		gateway.NewClient(conn, wsHub, logger).Start()
	})

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", zap.Error(err))
	}

	if exp != nil {
		if err := exp.Close(); err != nil {
			logger.Error("Error closing Kafka writer", zap.Error(err))
		}
	}

	logger.Info("Shutdown Complete")
}

// schedulerExporter keeps a nil *Exporter from becoming a non-nil interface.
func schedulerExporter(exp *exporter.Exporter) scheduler.Exporter {
	if exp == nil {
		return nil
	}
	return exp
}
