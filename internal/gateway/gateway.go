// Package gateway изолирует обращения к платёжному провайдеру.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
)

// Gateway открывает платёжные сессии у провайдера.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// SessionRequest — параметры новой сессии. Amount указывается в минимальных единицах валюты.
type SessionRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Session — сессия, открытая провайдером.
type Session struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
}

// orderCreator — часть клиента razorpay-go, которой пользуется адаптер.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGateway реализует Gateway поверх Orders API Razorpay.
type RazorpayGateway struct {
	orders  orderCreator
	keyID   string
	timeout time.Duration
}

// NewRazorpayGateway создаёт адаптер. Клиент создаётся один раз при старте процесса.
// HTTP-таймаут клиента не больше timeout, поэтому брошенный по ctx запрос живёт не дольше него.
func NewRazorpayGateway(keyID, keySecret string, timeout time.Duration) *RazorpayGateway {
	g := &RazorpayGateway{keyID: keyID, timeout: timeout}
	if keyID != "" && keySecret != "" {
		client := razorpay.NewClient(keyID, keySecret)
		if seconds := clientTimeoutSeconds(timeout); seconds > 0 {
			client.SetTimeout(seconds)
		}
		g.orders = client.Order
	}
	return g
}

// clientTimeoutSeconds переводит таймаут в целые секунды клиента razorpay-go с округлением вниз, минимум 1.
// Ноль означает таймаут клиента по умолчанию.
func clientTimeoutSeconds(timeout time.Duration) int16 {
	if timeout <= 0 {
		return 0
	}
	seconds := int64(timeout / time.Second)
	if seconds < 1 {
		return 1
	}
	if seconds > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(seconds)
}

// KeyID возвращает публичный ключ для клиентского виджета.
func (g *RazorpayGateway) KeyID() string {
	return g.keyID
}

// CreateSession создаёт заказ в Razorpay. Любая ошибка провайдера, включая истечение ctx,
// возвращается как GATEWAY_ERROR.
func (g *RazorpayGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if g.orders == nil {
		return nil, apperror.ErrGatewayNotConfigured
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":          req.Amount,
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"notes":           notes,
		"payment_capture": 1,
	}

	type result struct {
		body map[string]interface{}
		err  error
	}
	// Горутина не прерывается по ctx: её ограничивает HTTP-таймаут клиента, выставленный в NewRazorpayGateway.
	done := make(chan result, 1)
	go func() {
		body, err := g.orders.Create(data, nil)
		done <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, apperror.Gateway(fmt.Errorf("razorpay: create order: %w", ctx.Err()))
	case res := <-done:
		if res.err != nil {
			return nil, apperror.Gateway(fmt.Errorf("razorpay: create order: %w", res.err))
		}
		session, err := sessionFromResponse(res.body, req)
		if err != nil {
			return nil, apperror.Gateway(err)
		}
		return session, nil
	}
}

// sessionFromResponse разбирает ответ Orders API. Пустые поля ответа заполняются из запроса.
func sessionFromResponse(body map[string]interface{}, req SessionRequest) (*Session, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, errors.New("razorpay: response without order id")
	}

	session := &Session{
		ID:       id,
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
	}

	switch amount := body["amount"].(type) {
	case float64:
		session.Amount = int64(amount)
	case int64:
		session.Amount = amount
	case int:
		session.Amount = int64(amount)
	}
	if currency, ok := body["currency"].(string); ok && currency != "" {
		session.Currency = currency
	}
	if receipt, ok := body["receipt"].(string); ok && receipt != "" {
		session.Receipt = receipt
	}

	return session, nil
}
