package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	mcache "github.com/radieske/tipster-marketplace-poc/internal/marketplace/cache"
	mhttp "github.com/radieske/tipster-marketplace-poc/internal/marketplace/http"
	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/producer"
	mrepo "github.com/radieske/tipster-marketplace-poc/internal/marketplace/repo"
	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/wallet"
	"github.com/radieske/tipster-marketplace-poc/internal/marketplace/ws"
	"github.com/radieske/tipster-marketplace-poc/internal/referral"
	sharedcache "github.com/radieske/tipster-marketplace-poc/internal/shared/cache"
	"github.com/radieske/tipster-marketplace-poc/internal/shared/config"
	"github.com/radieske/tipster-marketplace-poc/internal/shared/db"
	"github.com/radieske/tipster-marketplace-poc/internal/shared/kafka"
	"github.com/radieske/tipster-marketplace-poc/internal/shared/logger"
)

// referralWallet adapta o cliente do wallet-service para o contrato
// de crédito do programa de indicação
type referralWallet struct{ c *wallet.Client }

func (r referralWallet) Credit(ctx context.Context, userID string, cents int64, externalRef string) error {
	return r.c.Credit(ctx, userID, cents, "CREDIT", externalRef)
}

func main() {
	cfg := config.Load()
	log, err := logger.New("marketplace-service", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", "marketplace-service"), zap.String("env", cfg.Env))

	// Postgres: cupons, compras, follows, tipsters, indicações
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: cache de leaderboard e Pub/Sub do WS
	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Kafka writers: compra e pedidos de liquidação
	purchasedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCouponPurchased)
	defer purchasedWriter.Close()
	settleWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCouponSettleRequested)
	defer settleWriter.Close()

	repo := mrepo.NewPostgres(pg)
	wcli := wallet.New(cfg.WalletBaseURL)
	publ := producer.NewKafkaPublisher(purchasedWriter, settleWriter)
	lbCache := mcache.New(redisClient)
	refSvc := referral.NewService(referral.NewPostgres(pg), referralWallet{c: wcli}, cfg.ReferralRewardCents)

	// WebSocket: clientes acompanham liquidações por tipster em tempo real;
	// o settlement-worker publica no canal Redis e o hub repassa
	hub := ws.NewHub(func(*http.Request) bool { return true })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ws.StartRedisSubscriber(ctx, redisClient, hub)

	api := mhttp.NewServer(log, repo, wcli, publ, lbCache, refSvc, hub)

	apiSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort, // ex: 8080
		Handler: api.Router(),
	}

	// Servidor de métricas e health check
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		hctx, hcancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer hcancel()
		if err := pg.PingContext(hctx); err != nil {
			http.Error(w, "pg", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(hctx).Err(); err != nil {
			http.Error(w, "redis", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: metricsMux} // ex: 9095

	go func() {
		log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics srv", zap.Error(err))
		}
	}()

	log.Info("api listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api srv", zap.Error(err))
	}
}
