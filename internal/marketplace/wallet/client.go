package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	walletdto "github.com/radieske/tipster-marketplace-poc/internal/wallet/dto"
)

// ErrInsufficientFunds reflete o HTTP 402 do wallet-service
var ErrInsufficientFunds = errors.New("insufficient funds")

// Client é o cliente HTTP do wallet-service usado na compra e na liquidação
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusPaymentRequired {
		return ErrInsufficientFunds
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("wallet %s http %d", path, res.StatusCode)
	}
	return nil
}

// Debit cobra a compra de um cupom; externalRef garante idempotência no ledger
func (c *Client) Debit(ctx context.Context, userID string, cents int64, externalRef string) error {
	return c.post(ctx, "/wallet/debit", walletdto.DebitRequest{
		UserID: userID, AmountCents: cents, ExternalRef: externalRef,
	})
}

// Credit lança um crédito (bônus de indicação, payout)
func (c *Client) Credit(ctx context.Context, userID string, cents int64, entryType, externalRef string) error {
	return c.post(ctx, "/wallet/credit", walletdto.CreditRequest{
		UserID: userID, AmountCents: cents, EntryType: entryType, ExternalRef: externalRef,
	})
}

// Refund estorna uma compra (cupom anulado ou cancelado antes do kickoff)
func (c *Client) Refund(ctx context.Context, userID string, cents int64, externalRef string) error {
	return c.post(ctx, "/wallet/refund", walletdto.RefundRequest{
		UserID: userID, AmountCents: cents, ExternalRef: externalRef,
	})
}
