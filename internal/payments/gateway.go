// Package payments は決済プロバイダー(Omise)との連携を提供する。
// ハンドラーはProcessorインターフェースに依存し、Gatewayが実装する。
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"

	"github.com/tastiest/functions/internal/model"
)

// ErrChargeDeclined はカード決済がプロバイダーに拒否された場合のエラー。
var ErrChargeDeclined = errors.New("charge declined")

// ErrUnavailable は決済プロバイダーが設定されていない場合のエラー。
var ErrUnavailable = errors.New("payments are not configured")

// Processor は決済操作のインターフェース。
type Processor interface {
	CreateCustomer(ctx context.Context, email, description string) (string, error)
	AttachCard(ctx context.Context, customerID, cardToken string) (*model.PaymentMethod, error)
	ListCards(ctx context.Context, customerID string) ([]model.PaymentMethod, error)
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// ChargeRequest は顧客の登録済みカードへの課金要求。
type ChargeRequest struct {
	CustomerID  string
	CardID      string
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]any
}

// ChargeResult は課金結果。Statusはsuccessful/pending/failed。
type ChargeResult struct {
	ID             string
	Status         string
	FailureCode    string
	FailureMessage string
}

// Gateway はomise-goを使ったProcessorの実装。
type Gateway struct {
	client *omise.Client
	logger *slog.Logger
}

// NewGateway はOmiseの公開鍵・秘密鍵からGatewayを生成する。
func NewGateway(publicKey, secretKey string, logger *slog.Logger) (*Gateway, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create omise client: %w", err)
	}
	return &Gateway{client: c, logger: logger}, nil
}

// withContext はctxを設定したクライアントの複製を返す。
// omise.ClientのWithContextはレシーバを書き換えるため、共有クライアントには設定しない。
func (g *Gateway) withContext(ctx context.Context) *omise.Client {
	c := *g.client
	c.WithContext(ctx)
	return &c
}

// CreateCustomer はプロバイダー側に顧客を作成し、顧客IDを返す。
func (g *Gateway) CreateCustomer(ctx context.Context, email, description string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	customer := &omise.Customer{}
	err := g.withContext(ctx).Do(customer, &operations.CreateCustomer{
		Email:       email,
		Description: description,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}

	g.logger.Info("payment customer created", slog.String("customer_id", customer.ID))
	return customer.ID, nil
}

// AttachCard はカードトークンを顧客に登録し、登録されたカードを返す。
func (g *Gateway) AttachCard(ctx context.Context, customerID, cardToken string) (*model.PaymentMethod, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	customer := &omise.Customer{}
	err := g.withContext(ctx).Do(customer, &operations.UpdateCustomer{
		CustomerID: customerID,
		Card:       cardToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach card: %w", err)
	}

	if customer.Cards == nil || len(customer.Cards.Data) == 0 {
		return nil, fmt.Errorf("customer %s has no cards after attach", customerID)
	}

	// 最後に追加されたカードが新しいカード
	pm := cardToMethod(customer.Cards.Data[len(customer.Cards.Data)-1], time.Now().UTC())
	return &pm, nil
}

// ListCards は顧客の登録済みカード一覧を返す。
func (g *Gateway) ListCards(ctx context.Context, customerID string) ([]model.PaymentMethod, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	list := &omise.CardList{}
	if err := g.withContext(ctx).Do(list, &operations.ListCards{CustomerID: customerID}); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}

	methods := make([]model.PaymentMethod, 0, len(list.Data))
	for _, card := range list.Data {
		methods = append(methods, cardToMethod(card, card.Created))
	}
	return methods, nil
}

// Charge は顧客のカードに課金する。
// プロバイダーが失敗ステータスを返した場合は結果とErrChargeDeclinedの両方を返す。
func (g *Gateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 || req.Currency == "" || req.CustomerID == "" {
		return nil, errors.New("invalid charge params")
	}

	ch := &omise.Charge{}
	err := g.withContext(ctx).Do(ch, &operations.CreateCharge{
		Customer:    req.CustomerID,
		Card:        req.CardID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create charge: %w", err)
	}

	result := chargeToResult(ch)
	g.logger.Info("charge created",
		slog.String("charge_id", result.ID),
		slog.String("status", result.Status),
	)
	if result.Status == "failed" {
		return result, fmt.Errorf("%w: %s", ErrChargeDeclined, result.FailureMessage)
	}
	return result, nil
}

func cardToMethod(card *omise.Card, addedAt time.Time) model.PaymentMethod {
	return model.PaymentMethod{
		ID:       card.ID,
		Brand:    card.Brand,
		Last4:    card.LastDigits,
		ExpMonth: int(card.ExpirationMonth),
		ExpYear:  card.ExpirationYear,
		AddedAt:  addedAt,
	}
}

func chargeToResult(ch *omise.Charge) *ChargeResult {
	result := &ChargeResult{ID: ch.ID, Status: string(ch.Status)}
	if ch.FailureCode != nil {
		result.FailureCode = *ch.FailureCode
	}
	if ch.FailureMessage != nil {
		result.FailureMessage = *ch.FailureMessage
	}
	return result
}

// Unavailable はOmiseの鍵が未設定の環境で使うProcessor。すべての操作がErrUnavailableを返す。
type Unavailable struct{}

func (Unavailable) CreateCustomer(context.Context, string, string) (string, error) {
	return "", ErrUnavailable
}

func (Unavailable) AttachCard(context.Context, string, string) (*model.PaymentMethod, error) {
	return nil, ErrUnavailable
}

func (Unavailable) ListCards(context.Context, string) ([]model.PaymentMethod, error) {
	return nil, ErrUnavailable
}

func (Unavailable) Charge(context.Context, ChargeRequest) (*ChargeResult, error) {
	return nil, ErrUnavailable
}

var (
	_ Processor = (*Gateway)(nil)
	_ Processor = Unavailable{}
)
