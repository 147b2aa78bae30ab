package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/beereshbc/influencaa-backend/internal/http/handlers/common"
	"github.com/beereshbc/influencaa-backend/internal/http/response"
	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
	"github.com/beereshbc/influencaa-backend/internal/service"
)

// PaymentService — операции escrow-оплаты заказа.
type PaymentService interface {
	InitiatePayment(ctx context.Context, clientID, orderID uuid.UUID) (*models.PaymentSession, error)
	VerifyPayment(ctx context.Context, in service.VerifyPaymentInput) (*models.VerificationResult, error)
}

type PaymentHandler struct {
	payments PaymentService
}

// NewPaymentHandler создаёт новый хэндлер.
func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type initiatePaymentRequest struct {
	OrderID string `json:"orderId"`
}

// InitiatePayment обрабатывает POST /payment-sessions.
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req initiatePaymentRequest
	if err := common.BindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	if req.OrderID == "" {
		response.Error(c, apperror.Validation("не указан заказ", "orderId"))
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		response.Error(c, apperror.Validation("некорректный идентификатор заказа", "orderId"))
		return
	}

	session, err := h.payments.InitiatePayment(c.Request.Context(), userID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"order": session})
}

// VerifyPayment обрабатывает POST /payment-verify.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var req service.VerifyPaymentInput
	if err := common.BindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.payments.VerifyPayment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"message":     result.Message,
		"orderId":     result.OrderID,
		"paymentId":   result.PaymentID,
		"alreadyPaid": result.AlreadyPaid,
	})
}
