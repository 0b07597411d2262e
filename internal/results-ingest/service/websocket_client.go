package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/tipster-marketplace-poc/internal/results-ingest/publisher"
	"github.com/radieske/tipster-marketplace-poc/pkg/contracts/events"
)

// WSClient consome placares finais do feed de resultados via WebSocket
// e publica cada resultado recebido no tópico Kafka de fixture_results.
type WSClient struct {
	URL       string                    // URL do endpoint WebSocket do feed
	Log       *zap.Logger               // Logger estruturado
	Publisher *publisher.KafkaPublisher // Publisher Kafka de resultados
}

// Start inicia o loop de conexão e escuta do WebSocket.
// Em caso de desconexão, tenta reconectar automaticamente com backoff.
func (c *WSClient) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Log.Info("context canceled, stopping WS client")
			return
		default:
			if err := c.connectAndListen(ctx); err != nil {
				c.Log.Warn("connection closed", zap.Error(err))
				time.Sleep(3 * time.Second) // Aguarda antes de tentar reconectar
			}
		}
	}
}

// connectAndListen estabelece a conexão WebSocket e processa mensagens recebidas.
// Cada resultado é desserializado e publicado no Kafka.
func (c *WSClient) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.Log.Info("connected to results feed WS", zap.String("url", c.URL))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, context.Canceled) {
				return nil
			}
			c.Log.Error("read message failed", zap.Error(err))
			return err
		}

		var result events.FixtureResult
		if err := json.Unmarshal(message, &result); err != nil {
			c.Log.Warn("invalid message", zap.Error(err))
			continue
		}
		if result.FixtureID == "" {
			c.Log.Warn("fixture result without fixture_id, skipping")
			continue
		}

		// Publica o resultado recebido no Kafka
		if err := c.Publisher.Publish(ctx, result); err != nil {
			c.Log.Error("failed to publish to Kafka", zap.Error(err))
		}
	}
}
