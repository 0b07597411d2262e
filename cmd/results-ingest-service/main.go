package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/tipster-marketplace-poc/internal/results-ingest/publisher"
	"github.com/radieske/tipster-marketplace-poc/internal/results-ingest/service"
	"github.com/radieske/tipster-marketplace-poc/internal/shared/config"
	"github.com/radieske/tipster-marketplace-poc/internal/shared/logger"
	"github.com/radieske/tipster-marketplace-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("Kafka brokers", zap.String("brokers", cfg.KafkaBrokers))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Kafka Publisher
	pub := publisher.NewKafkaPublisher(
		strings.Split(cfg.KafkaBrokers, ","),
		cfg.TopicFixtureResults,
		log,
	)
	defer pub.Close()

	// WS Client: consome o feed de resultados (simulador em local/dev)
	wsClient := &service.WSClient{
		URL:       cfg.ResultsWSURL,
		Log:       log,
		Publisher: pub,
	}
	go wsClient.Start(ctx)

	// Metrics e health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error { return nil })
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")
	cancel()
	time.Sleep(2 * time.Second)
}
