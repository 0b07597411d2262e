package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	mcache "github.com/radieske/tipster-marketplace-poc/internal/marketplace/cache"
	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/wallet"
	"github.com/radieske/tipster-marketplace-poc/internal/settlement/consumer"
	"github.com/radieske/tipster-marketplace-poc/internal/settlement/producer"
	"github.com/radieske/tipster-marketplace-poc/internal/settlement/pubsub"
	srepo "github.com/radieske/tipster-marketplace-poc/internal/settlement/repo"
	sharedcache "github.com/radieske/tipster-marketplace-poc/internal/shared/cache"
	"github.com/radieske/tipster-marketplace-poc/internal/shared/config"
	"github.com/radieske/tipster-marketplace-poc/internal/shared/db"
	sharedkafka "github.com/radieske/tipster-marketplace-poc/internal/shared/kafka"
	"github.com/radieske/tipster-marketplace-poc/internal/shared/logger"
	trepo "github.com/radieske/tipster-marketplace-poc/internal/tipster/repo"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Consumers Kafka (consumer group settlement-worker)
	resultsReader := sharedkafka.NewReader(cfg.KafkaBrokers, cfg.TopicFixtureResults, "settlement-worker")
	defer resultsReader.Close()

	settleReqReader := sharedkafka.NewReader(cfg.KafkaBrokers, cfg.TopicCouponSettleRequested, "settlement-worker")
	defer settleReqReader.Close()

	// Writers: evento coupon_settled e DLQ de resultados improcessáveis
	settledWriter := sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCouponSettled)
	defer settledWriter.Close()

	var dlqWriter *kafka.Writer
	if cfg.TopicFixtureResultsDLQ != "" {
		dlqWriter = sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicFixtureResultsDLQ)
		defer dlqWriter.Close()
	}

	// Métricas Prometheus para monitoramento da liquidação
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_messages_consumed_total", Help: "mensagens consumidas"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_coupons_settled_total", Help: "cupons liquidados por resultado"}, []string{"result"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_refunds_total", Help: "estornos efetuados"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, settled, refunds, errorsBy)

	proc := &consumer.Processor{
		Log:         log,
		Results:     resultsReader,
		SettleReqs:  settleReqReader,
		ResultsDLQ:  dlqWriter,
		Repo:        srepo.NewPostgres(pg),
		Stats:       trepo.NewPostgres(pg),
		Wallet:      wallet.New(cfg.WalletBaseURL),
		Publisher:   producer.NewKafkaPublisher(settledWriter),
		Broadcaster: pubsub.NewRedisBroadcaster(redisClient),
		Cache:       mcache.New(redisClient),

		OnConsumed: func() { consumed.Inc() },
		OnSettled:  func(result string) { settled.WithLabelValues(result).Inc() },
		OnRefund:   func() { refunds.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e health check
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
			defer cancel()
			if err := pg.PingContext(ctx); err != nil {
				http.Error(w, "pg", http.StatusServiceUnavailable)
				return
			}
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		addr := fmt.Sprintf(":%s", cfg.MetricsPort)
		log.Info("metrics/health listening", zap.String("addr", addr))
		_ = http.ListenAndServe(addr, mux)
	}()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("settlement-worker started",
		zap.String("results", cfg.TopicFixtureResults),
		zap.String("settleRequests", cfg.TopicCouponSettleRequested),
	)

	errc := make(chan error, 2)
	go func() { errc <- proc.RunFixtureResults(ctx) }()
	go func() { errc <- proc.RunSettleRequests(ctx) }()

	if err := <-errc; err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("settlement-worker stopped")
}
