package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/radieske/tipster-marketplace-poc/internal/shared/config"
	"github.com/radieske/tipster-marketplace-poc/internal/shared/logger"
	"github.com/radieske/tipster-marketplace-poc/pkg/contracts/events"
)

var (
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	// Catálogo fixo de partidas simuladas; o simulador "encerra" uma por vez
	fixtureCatalog = []events.FixtureResult{
		{FixtureID: "FIX_001", HomeTeam: "Flamengo", AwayTeam: "Palmeiras"},
		{FixtureID: "FIX_002", HomeTeam: "Grêmio", AwayTeam: "Internacional"},
		{FixtureID: "FIX_003", HomeTeam: "Corinthians", AwayTeam: "Santos"},
		{FixtureID: "FIX_004", HomeTeam: "São Paulo", AwayTeam: "Vasco"},
		{FixtureID: "FIX_005", HomeTeam: "Botafogo", AwayTeam: "Fluminense"},
	}

	// Métricas Prometheus para monitoramento de conexões e mensagens
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "results_ws_connections",
		Help: "Clientes WebSocket conectados",
	})
	wsMessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "results_ws_messages_sent_total",
		Help: "Total de mensagens WS enviadas",
	})
)

// Representa uma conexão de cliente WebSocket
type clientConn struct {
	id   string
	conn *websocket.Conn
}

// Estrutura responsável por gerenciar os clientes conectados via WebSocket
// e realizar broadcast de resultados para todos eles.
type hub struct {
	mu      sync.RWMutex
	clients map[string]*clientConn
	log     *zap.Logger
}

func newHub(log *zap.Logger) *hub {
	return &hub{
		clients: make(map[string]*clientConn),
		log:     log,
	}
}

// Adiciona um novo cliente ao hub e incrementa a métrica de conexões
func (h *hub) add(c *clientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	wsConnections.Inc()
	h.log.Info("ws client connected", zap.String("client_id", c.id))
}

// Remove um cliente do hub e decrementa a métrica de conexões
func (h *hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		wsConnections.Dec()
		h.log.Info("ws client disconnected", zap.String("client_id", id))
	}
}

// Envia uma mensagem para todos os clientes conectados
func (h *hub) broadcast(v any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	msg, _ := json.Marshal(v)
	for id, c := range h.clients {
		c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warn("ws write failed", zap.String("client_id", id), zap.Error(err))
			_ = c.conn.Close()
		} else {
			wsMessagesSent.Inc()
		}
	}
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	rand.Seed(time.Now().UnixNano())

	prometheus.MustRegister(wsConnections, wsMessagesSent)

	h := newHub(log)

	// Encerra uma partida simulada a cada 15 segundos e envia o placar final.
	// ~10% das partidas saem como canceladas (legs viram VOID)
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		version := 1
		for range ticker.C {
			result := fixtureCatalog[rand.Intn(len(fixtureCatalog))]
			if rand.Intn(100) < 10 {
				result.Cancelled = true
			} else {
				result.HomeScore = rand.Intn(4)
				result.AwayScore = rand.Intn(4)
			}
			result.FinishedAt = time.Now().UTC()
			result.Source = cfg.ServiceName
			result.Version = version
			version++
			h.broadcast(result)
		}
	}()

	// ==== MUX PÚBLICO (HTTP principal): /ws
	appMux := http.NewServeMux()

	appMux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("ws upgrade failed", zap.Error(err))
			return
		}
		id := fmt.Sprintf("%d", time.Now().UnixNano())
		c := &clientConn{id: id, conn: conn}
		h.add(c)

		// Goroutine para manter a conexão viva e remover cliente ao desconectar
		go func() {
			defer func() {
				h.remove(id)
				_ = conn.Close()
			}()
			_ = conn.SetReadDeadline(time.Time{})
			for {
				// Lê e descarta mensagens do cliente para manter o socket limpo
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})

	// Servidor de métricas e health check
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		addr := ":" + cfg.MetricsPort
		log.Info("metrics/health listening", zap.String("addr", addr))
		_ = http.ListenAndServe(addr, mux)
	}()

	addr := ":" + cfg.HTTPPort // ex: 8081
	log.Info("results-simulator listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, appMux); err != nil && err != http.ErrServerClosed {
		log.Fatal("simulator failed", zap.Error(err))
	}
}
