package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/beereshbc/influencaa-backend/internal/domain/valueobject"
)

// Payment описывает escrow-платёж, привязанный к одному заказу.
type Payment struct {
	ID                 uuid.UUID                 `db:"id" json:"id"`
	OrderID            uuid.UUID                 `db:"order_id" json:"orderRef"`
	PaymentStatus      valueobject.PaymentStatus `db:"payment_status" json:"paymentStatus"`
	GatewayPaymentID   *string                   `db:"gateway_payment_id" json:"paymentId,omitempty"`
	RazorpayOrderID    *string                   `db:"razorpay_order_id" json:"razorpayOrderId,omitempty"`
	TotalEscrowAmount  float64                   `db:"total_escrow_amount" json:"totalEscrowAmount"`
	PaymentCurrency    string                    `db:"payment_currency" json:"paymentCurrency"`
	InitialPaymentDate *time.Time                `db:"initial_payment_date" json:"initialPaymentDate,omitempty"`
	TransactionDate    *time.Time                `db:"transaction_date" json:"transactionDate,omitempty"`
	CreatedAt          time.Time                 `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time                 `db:"updated_at" json:"updatedAt"`
	Milestones         []Milestone               `db:"-" json:"milestones"`
}

// SessionID возвращает идентификатор сессии шлюза или пустую строку.
func (p *Payment) SessionID() string {
	if p.RazorpayOrderID == nil {
		return ""
	}
	return *p.RazorpayOrderID
}

// Milestone — этап поэтапного освобождения средств из escrow.
type Milestone struct {
	ID                   uuid.UUID                   `db:"id" json:"id"`
	PaymentID            uuid.UUID                   `db:"payment_id" json:"paymentId"`
	Position             int                         `db:"position" json:"position"`
	Name                 string                      `db:"name" json:"name"`
	AmountDue            float64                     `db:"amount_due" json:"amountDue"`
	Status               valueobject.MilestoneStatus `db:"status" json:"status"`
	ReleaseDate          *time.Time                  `db:"release_date" json:"releaseDate,omitempty"`
	ReleaseTransactionID *string                     `db:"release_transaction_id" json:"releaseTransactionId,omitempty"`
	CreatedAt            time.Time                   `db:"created_at" json:"createdAt"`
}

// OrderWithPayment — заказ вместе с платёжной информацией.
type OrderWithPayment struct {
	Order                 *Order   `json:"order"`
	Payment               *Payment `json:"payment,omitempty"`
	PaymentDetailsMissing bool     `json:"paymentDetailsMissing,omitempty"`
}

// PaymentSession — описание сессии шлюза для клиентского платёжного виджета.
type PaymentSession struct {
	GatewayOrderID string    `json:"id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Receipt        string    `json:"receipt"`
	KeyID          string    `json:"keyId,omitempty"`
	OrderID        uuid.UUID `json:"orderId"`
	PaymentID      uuid.UUID `json:"paymentId"`
}

// VerificationResult — итог проверки подписи платежа.
type VerificationResult struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	OrderID   *uuid.UUID `json:"orderId,omitempty"`
	PaymentID *uuid.UUID `json:"paymentId,omitempty"`
	// AlreadyPaid выставляется при повторной доставке подтверждения.
	AlreadyPaid bool `json:"alreadyPaid,omitempty"`
}
