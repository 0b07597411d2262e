package referral

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCode      = errors.New("invalid referral code")
	ErrAlreadyConverted = errors.New("user already converted")
	ErrSelfReferral     = errors.New("cannot use own referral code")
)

// Alfabeto sem caracteres ambíguos (0/O, 1/I/L) pra facilitar compartilhamento
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 8

// NewCode gera um código de indicação legível (ex: "K7MWP3QZ")
func NewCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate referral code: %w", err)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}

// Conversion representa um usuário indicado; uma linha por indicado
type Conversion struct {
	ID              string     `json:"id"`
	ReferrerID      string     `json:"referrerId"`
	ReferredUserID  string     `json:"referredUserId"`
	Code            string     `json:"code"`
	RewardCredited  bool       `json:"rewardCredited"`
	RewardCents     int64      `json:"reward_cents"`
	FirstPurchaseAt *time.Time `json:"firstPurchaseAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Overview é o retorno de GET /referrals/my
type Overview struct {
	Code         string       `json:"code"`
	Conversions  []Conversion `json:"conversions"`
	TotalCredits int64        `json:"total_credited_cents"`
}

// Repo define a persistência de códigos e conversões
type Repo interface {
	// GetOrCreateCode retorna o código do usuário, criando-o uma única vez.
	// gen é chamado a cada tentativa; colisão de código gera nova tentativa.
	GetOrCreateCode(ctx context.Context, userID string, gen func() (string, error)) (string, error)
	// OwnerOfCode resolve o dono de um código; ErrInvalidCode se desconhecido
	OwnerOfCode(ctx context.Context, code string) (string, error)
	// InsertConversion cria a linha de conversão (rewardCredited=false);
	// ErrAlreadyConverted se o indicado já possui conversão
	InsertConversion(ctx context.Context, referrerID, referredUserID, code string, rewardCents int64) error
	// ClaimUncredited marca atomicamente a conversão do indicado como creditada
	// (reward_credited false -> true) e retorna o referrer e o valor.
	// claimed=false quando não há conversão pendente — segunda compra não credita de novo
	ClaimUncredited(ctx context.Context, referredUserID string, firstPurchaseAt time.Time) (referrerID string, rewardCents int64, claimed bool, err error)
	ConversionsByReferrer(ctx context.Context, referrerID string) ([]Conversion, error)
}

// WalletCreditor credita o bônus na carteira do indicador (wallet-service)
type WalletCreditor interface {
	Credit(ctx context.Context, userID string, amountCents int64, externalRef string) error
}

// Service implementa o programa de indicação
type Service struct {
	repo        Repo
	wallet      WalletCreditor
	rewardCents int64
}

func NewService(repo Repo, wallet WalletCreditor, rewardCents int64) *Service {
	return &Service{repo: repo, wallet: wallet, rewardCents: rewardCents}
}

// EnsureCode retorna o código do usuário, criando na primeira chamada.
// Idempotente: chamadas seguintes devolvem o mesmo código.
func (s *Service) EnsureCode(ctx context.Context, userID string) (string, error) {
	return s.repo.GetOrCreateCode(ctx, userID, NewCode)
}

// RecordConversion registra que um usuário entrou com um código de indicação
func (s *Service) RecordConversion(ctx context.Context, referredUserID, code string) error {
	referrerID, err := s.repo.OwnerOfCode(ctx, code)
	if err != nil {
		return err
	}
	if referrerID == referredUserID {
		return ErrSelfReferral
	}
	return s.repo.InsertConversion(ctx, referrerID, referredUserID, code, s.rewardCents)
}

// CreditOnFirstPurchase credita o bônus do indicador na primeira compra do indicado.
// Exatamente-uma-vez: o claim atômico do flag reward_credited garante que a
// segunda compra do mesmo indicado não gera novo crédito; o external_ref
// idempotente na carteira é a segunda barreira.
func (s *Service) CreditOnFirstPurchase(ctx context.Context, referredUserID string) error {
	referrerID, reward, claimed, err := s.repo.ClaimUncredited(ctx, referredUserID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !claimed {
		return nil // sem conversão pendente, nada a fazer
	}
	return s.wallet.Credit(ctx, referrerID, reward, "referral:"+referredUserID)
}

// Mine monta a visão do programa de indicação para o usuário
func (s *Service) Mine(ctx context.Context, userID string) (Overview, error) {
	code, err := s.EnsureCode(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	convs, err := s.repo.ConversionsByReferrer(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	var total int64
	for _, c := range convs {
		if c.RewardCredited {
			total += c.RewardCents
		}
	}
	return Overview{Code: code, Conversions: convs, TotalCredits: total}, nil
}
