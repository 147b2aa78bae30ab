package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/beereshbc/influencaa-backend/internal/gateway"
	"github.com/beereshbc/influencaa-backend/internal/http/middleware"
	"github.com/beereshbc/influencaa-backend/internal/logger"
	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/service"
)

// newTestRouter создаёт роутер; ненулевой userID имитирует пройденный AuthMiddleware.
func newTestRouter(userID uuid.UUID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger.Discard()

	r := gin.New()
	if userID != uuid.Nil {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.ContextUserIDKey, userID)
			c.Set(middleware.ContextRoleKey, role)
			c.Next()
		})
	}
	return r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	errBody, ok := decodeBody(t, w)["error"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	return errBody["code"].(string)
}

type mockOrderService struct {
	mock.Mock
}

func (m *mockOrderService) order(args mock.Arguments) (*models.Order, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderService) Create(ctx context.Context, clientID uuid.UUID, in service.CreateOrderInput) (*models.Order, error) {
	return m.order(m.Called(ctx, clientID, in))
}

func (m *mockOrderService) ListForClient(ctx context.Context, clientID uuid.UUID) ([]models.Order, error) {
	args := m.Called(ctx, clientID)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrderService) ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	args := m.Called(ctx, sellerID)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrderService) Accept(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error) {
	return m.order(m.Called(ctx, sellerID, orderID))
}

func (m *mockOrderService) Reject(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error) {
	return m.order(m.Called(ctx, sellerID, orderID))
}

func (m *mockOrderService) MarkDelivered(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error) {
	return m.order(m.Called(ctx, sellerID, orderID))
}

func (m *mockOrderService) Complete(ctx context.Context, clientID, orderID uuid.UUID) (*models.Order, error) {
	return m.order(m.Called(ctx, clientID, orderID))
}

func (m *mockOrderService) Cancel(ctx context.Context, clientID, orderID uuid.UUID) (*models.Order, error) {
	return m.order(m.Called(ctx, clientID, orderID))
}

func (m *mockOrderService) GetOrderPaymentDetails(ctx context.Context, clientID, orderID uuid.UUID) (*models.OrderWithPayment, error) {
	args := m.Called(ctx, clientID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderWithPayment), args.Error(1)
}

func (m *mockOrderService) SetMilestones(ctx context.Context, clientID, orderID uuid.UUID, in service.SetMilestonesInput) (*models.Payment, error) {
	args := m.Called(ctx, clientID, orderID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockOrderService) InitiatePayment(ctx context.Context, clientID, orderID uuid.UUID) (*models.PaymentSession, error) {
	args := m.Called(ctx, clientID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSession), args.Error(1)
}

func (m *mockOrderService) VerifyPayment(ctx context.Context, in service.VerifyPaymentInput) (*models.VerificationResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VerificationResult), args.Error(1)
}

func (m *mockOrderService) HandleGatewayEvent(ctx context.Context, evt *gateway.WebhookEvent) error {
	return m.Called(ctx, evt).Error(0)
}
