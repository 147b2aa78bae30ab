package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beereshbc/influencaa-backend/internal/domain/valueobject"
	"github.com/beereshbc/influencaa-backend/internal/gateway"
	"github.com/beereshbc/influencaa-backend/internal/logger"
	"github.com/beereshbc/influencaa-backend/internal/metrics"
	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
	"github.com/beereshbc/influencaa-backend/internal/validation"
)

const testKeySecret = "rzp_test_secret"

type orderFixture struct {
	svc      *OrderService
	orders   *memOrderRepo
	payments *memPaymentRepo
	gw       *fakeGateway
	notifier *recordingNotifier
	clientID uuid.UUID
	sellerID uuid.UUID
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	logger.Discard()

	f := &orderFixture{
		orders:   newMemOrderRepo(),
		payments: newMemPaymentRepo(),
		gw:       &fakeGateway{},
		notifier: &recordingNotifier{},
		clientID: uuid.New(),
		sellerID: uuid.New(),
	}
	f.orders.payments = f.payments
	f.payments.orders = f.orders
	f.svc = NewOrderService(f.orders, f.payments, f.gw, f.notifier, nil, PaymentSettings{
		Currency:  "INR",
		KeyID:     "rzp_test_key",
		KeySecret: testKeySecret,
	})
	return f
}

func validOrderInput(sellerID uuid.UUID, amount float64) CreateOrderInput {
	return CreateOrderInput{
		InfluencerID:   sellerID.String(),
		InfluencerName: "Asha Rao",
		Platform:       "instagram",
		Service:        "reel",
		ServiceDetails: &models.ServiceDetails{
			Amount:       amount,
			Timeline:     "7 days",
			Revisions:    2,
			Description:  "One sponsored reel",
			Deliverables: []string{"reel", "story"},
		},
		OrderDetails: &models.OrderDetails{
			BrandName:     "Acme",
			ContactPerson: "Ravi",
			Email:         "ravi@acme.test",
			Phone:         "+919800000000",
			CampaignBrief: "Summer launch",
			Budget:        "5000",
			Timeline:      "June",
		},
		TotalAmount: &amount,
	}
}

func (f *orderFixture) createOrder(t *testing.T, amount float64) *models.Order {
	t.Helper()
	order, err := f.svc.Create(context.Background(), f.clientID, validOrderInput(f.sellerID, amount))
	require.NoError(t, err)
	return order
}

func (f *orderFixture) acceptedOrder(t *testing.T, amount float64) *models.Order {
	t.Helper()
	order := f.createOrder(t, amount)
	accepted, err := f.svc.Accept(context.Background(), f.sellerID, order.ID)
	require.NoError(t, err)
	return accepted
}

func (f *orderFixture) verifyInput(session *models.PaymentSession, paymentID string) VerifyPaymentInput {
	return VerifyPaymentInput{
		GatewayOrderID:   session.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        gateway.ComputeSignature(session.GatewayOrderID, paymentID, testKeySecret),
	}
}

func (f *orderFixture) orderStatus(t *testing.T, id uuid.UUID) valueobject.OrderStatus {
	t.Helper()
	order, err := f.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	return order.Status
}

func (f *orderFixture) payment(t *testing.T, orderID uuid.UUID) *models.Payment {
	t.Helper()
	p, err := f.payments.GetByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return p
}

func TestOrderService_CreatePending(t *testing.T) {
	f := newOrderFixture(t)

	order := f.createOrder(t, 5000)

	assert.Equal(t, valueobject.OrderStatusPending, order.Status)
	assert.False(t, order.Cancelled)
	assert.Nil(t, order.PaymentID)
	assert.Equal(t, f.clientID, order.ClientID)
	assert.Equal(t, f.sellerID, order.InfluencerID)
	assert.Equal(t, 0, f.payments.count())
	assert.True(t, f.notifier.received(f.sellerID, models.NotificationOrderCreated))
}

func TestOrderService_CreateListsMissingFields(t *testing.T) {
	f := newOrderFixture(t)

	in := validOrderInput(f.sellerID, 100)
	in.OrderDetails.Email = ""
	in.OrderDetails.Phone = ""
	in.ServiceDetails = nil
	in.TotalAmount = nil

	_, err := f.svc.Create(context.Background(), f.clientID, in)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.ElementsMatch(t, []string{"serviceDetails", "orderDetails.email", "orderDetails.phone", "totalAmount"}, appErr.Fields)
	assert.Empty(t, f.orders.list(func(models.Order) bool { return true }))
}

func TestOrderService_CreateRejectsUnknownPlatform(t *testing.T) {
	f := newOrderFixture(t)

	in := validOrderInput(f.sellerID, 100)
	in.Platform = "myspace"

	_, err := f.svc.Create(context.Background(), f.clientID, in)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, []string{"platform"}, appErr.Fields)
}

func TestOrderService_ListNewestFirst(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	first := f.createOrder(t, 100)
	second := f.createOrder(t, 200)

	orders, err := f.svc.ListForClient(ctx, f.clientID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)

	sellerOrders, err := f.svc.ListForSeller(ctx, f.sellerID)
	require.NoError(t, err)
	assert.Len(t, sellerOrders, 2)

	empty, err := f.svc.ListForClient(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestOrderService_AcceptOwnershipAndRepeat(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 100)

	_, err := f.svc.Accept(ctx, uuid.New(), order.ID)
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, valueobject.OrderStatusPending, f.orderStatus(t, order.ID))

	accepted, err := f.svc.Accept(ctx, f.sellerID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.OrderStatusApproved, accepted.Status)
	assert.True(t, f.notifier.received(f.clientID, models.NotificationOrderAccepted))

	_, err = f.svc.Accept(ctx, f.sellerID, order.ID)
	assert.True(t, apperror.IsInvalidState(err))

	_, err = f.svc.Accept(ctx, f.sellerID, uuid.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestOrderService_Reject(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 100)

	rejected, err := f.svc.Reject(ctx, f.sellerID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.OrderStatusRejected, rejected.Status)

	_, err = f.svc.Accept(ctx, f.sellerID, order.ID)
	assert.True(t, apperror.IsInvalidState(err))

	_, err = f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestOrderService_InitiateRequiresApproved(t *testing.T) {
	f := newOrderFixture(t)
	order := f.createOrder(t, 100)

	_, err := f.svc.InitiatePayment(context.Background(), f.clientID, order.ID)
	assert.True(t, apperror.IsInvalidState(err))
	assert.Equal(t, 0, f.payments.count())
	assert.Equal(t, int32(0), f.gw.calls.Load())
}

func TestOrderService_InitiateCreatesSessionInMinorUnits(t *testing.T) {
	f := newOrderFixture(t)
	order := f.acceptedOrder(t, 5000)

	session, err := f.svc.InitiatePayment(context.Background(), f.clientID, order.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(500000), session.Amount)
	assert.Equal(t, "INR", session.Currency)
	assert.Equal(t, "rzp_test_key", session.KeyID)
	assert.NotEmpty(t, session.GatewayOrderID)
	assert.LessOrEqual(t, len(session.Receipt), 40)

	req := f.gw.lastRequest()
	assert.Equal(t, int64(500000), req.Amount)
	assert.Equal(t, order.ID.String(), req.Notes["orderId"])
	assert.Equal(t, f.clientID.String(), req.Notes["clientId"])

	p := f.payment(t, order.ID)
	assert.Equal(t, valueobject.PaymentStatusInitiated, p.PaymentStatus)
	assert.Equal(t, session.GatewayOrderID, p.SessionID())
	assert.Equal(t, 5000.0, p.TotalEscrowAmount)

	stored, err := f.orders.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, p.ID, *stored.PaymentID)
}

func TestOrderService_InitiateNotOwner(t *testing.T) {
	f := newOrderFixture(t)
	order := f.acceptedOrder(t, 100)

	_, err := f.svc.InitiatePayment(context.Background(), uuid.New(), order.ID)
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, 0, f.payments.count())
}

func TestOrderService_InitiateTwiceReusesSession(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)

	first, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)
	second, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)

	assert.Equal(t, first.GatewayOrderID, second.GatewayOrderID)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, int32(1), f.gw.calls.Load())
	assert.Equal(t, 1, f.payments.count())
}

func TestOrderService_InitiateConcurrentYieldsSinglePayment(t *testing.T) {
	f := newOrderFixture(t)
	f.gw.delay = 10 * time.Millisecond
	order := f.acceptedOrder(t, 750)

	const workers = 8
	sessions := make([]*models.PaymentSession, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = f.svc.InitiatePayment(context.Background(), f.clientID, order.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, sessions[0].GatewayOrderID, sessions[i].GatewayOrderID)
		assert.Equal(t, sessions[0].PaymentID, sessions[i].PaymentID)
	}
	assert.Equal(t, 1, f.payments.count())
	assert.Equal(t, sessions[0].GatewayOrderID, f.payment(t, order.ID).SessionID())
}

func TestOrderService_InitiateGatewayFailureLeavesUnpaid(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)

	f.gw.err = errors.New("connection reset")
	_, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsGateway(err))
	assert.Equal(t, valueobject.PaymentStatusUnpaid, f.payment(t, order.ID).PaymentStatus)
	assert.Empty(t, f.payment(t, order.ID).SessionID())

	// повтор после восстановления шлюза использует тот же платёж
	f.gw.err = nil
	session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, f.payment(t, order.ID).ID, session.PaymentID)
	assert.Equal(t, 1, f.payments.count())
}

func TestOrderService_InitiateGatewayNotConfigured(t *testing.T) {
	f := newOrderFixture(t)
	order := f.acceptedOrder(t, 100)

	f.gw.err = apperror.ErrGatewayNotConfigured
	_, err := f.svc.InitiatePayment(context.Background(), f.clientID, order.ID)
	assert.True(t, apperror.IsConfiguration(err))
}

func TestOrderService_InitiateRelinksOrphanPayment(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)

	// платёж создан, но ссылка в заказе не записалась
	orphan, _, err := f.payments.CreateForOrder(ctx, &models.Payment{
		OrderID:           order.ID,
		PaymentStatus:     valueobject.PaymentStatusUnpaid,
		TotalEscrowAmount: 100,
		PaymentCurrency:   "INR",
	})
	require.NoError(t, err)

	session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orphan.ID, session.PaymentID)

	stored, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, orphan.ID, *stored.PaymentID)
	assert.Equal(t, 1, f.payments.count())
}

func TestOrderService_VerifyConfirmsPayment(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)
	paidAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return paidAt }

	session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)

	res, err := f.svc.VerifyPayment(ctx, f.verifyInput(session, "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.AlreadyPaid)
	require.NotNil(t, res.OrderID)
	assert.Equal(t, order.ID, *res.OrderID)

	p := f.payment(t, order.ID)
	assert.Equal(t, valueobject.PaymentStatusPaid, p.PaymentStatus)
	require.NotNil(t, p.GatewayPaymentID)
	assert.Equal(t, "pay_1", *p.GatewayPaymentID)
	require.NotNil(t, p.TransactionDate)
	assert.True(t, paidAt.Equal(*p.TransactionDate))
	assert.Equal(t, valueobject.OrderStatusInProgress, f.orderStatus(t, order.ID))

	assert.True(t, f.notifier.received(f.clientID, models.NotificationPaymentConfirmed))
	assert.True(t, f.notifier.received(f.sellerID, models.NotificationPaymentConfirmed))

	// после оплаты новая сессия не выдаётся
	_, err = f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	assert.True(t, errors.Is(err, apperror.ErrAlreadyPaid))
}

func TestOrderService_VerifyIsIdempotent(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)

	session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)

	_, err = f.svc.VerifyPayment(ctx, f.verifyInput(session, "pay_1"))
	require.NoError(t, err)
	before := f.payment(t, order.ID)

	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	res, err := f.svc.VerifyPayment(ctx, f.verifyInput(session, "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.AlreadyPaid)

	after := f.payment(t, order.ID)
	assert.Equal(t, before.TransactionDate, after.TransactionDate)
	assert.Equal(t, before.InitialPaymentDate, after.InitialPaymentDate)
	assert.Equal(t, valueobject.OrderStatusInProgress, f.orderStatus(t, order.ID))
}

func TestOrderService_VerifyConcurrentDuplicates(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)

	session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)
	in := f.verifyInput(session, "pay_1")

	const workers = 10
	results := make([]*models.VerificationResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.VerifyPayment(ctx, in)
		}(i)
	}
	wg.Wait()

	firstConfirmations := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Success)
		if !results[i].AlreadyPaid {
			firstConfirmations++
		}
	}
	assert.Equal(t, 1, firstConfirmations)
	assert.Equal(t, valueobject.OrderStatusInProgress, f.orderStatus(t, order.ID))
}

func TestOrderService_VerifySignatureMismatch(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)

	session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)

	in := f.verifyInput(session, "pay_1")
	in.Signature = gateway.ComputeSignature(session.GatewayOrderID, "pay_1", "wrong-secret")

	_, err = f.svc.VerifyPayment(ctx, in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrSignatureMismatch))
	assert.Equal(t, valueobject.PaymentStatusFailed, f.payment(t, order.ID).PaymentStatus)
	assert.Equal(t, valueobject.OrderStatusApproved, f.orderStatus(t, order.ID))
	assert.True(t, f.notifier.received(f.clientID, models.NotificationPaymentFailed))

	// сессия неуспешного платежа переиспользуется, повторная оплата проходит
	again, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, session.GatewayOrderID, again.GatewayOrderID)
	assert.Equal(t, int32(1), f.gw.calls.Load())

	res, err := f.svc.VerifyPayment(ctx, f.verifyInput(again, "pay_2"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, valueobject.PaymentStatusPaid, f.payment(t, order.ID).PaymentStatus)
}

func TestOrderService_PaidWinsOverFailed(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)

	session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)

	good := f.verifyInput(session, "pay_1")
	bad := good
	bad.Signature = "deadbeef"

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.VerifyPayment(ctx, good)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.VerifyPayment(ctx, bad)
		}()
	}
	wg.Wait()

	assert.Equal(t, valueobject.PaymentStatusPaid, f.payment(t, order.ID).PaymentStatus)
	assert.Equal(t, valueobject.OrderStatusInProgress, f.orderStatus(t, order.ID))

	_, err = f.svc.VerifyPayment(ctx, bad)
	assert.True(t, errors.Is(err, apperror.ErrSignatureMismatch))
	assert.Equal(t, valueobject.PaymentStatusPaid, f.payment(t, order.ID).PaymentStatus)
}

func TestOrderService_VerifyMissingSecret(t *testing.T) {
	f := newOrderFixture(t)
	reg := prometheus.NewRegistry()
	f.svc.metrics = metrics.NewPaymentMetrics(reg)
	f.svc.settings.KeySecret = ""

	_, err := f.svc.VerifyPayment(context.Background(), VerifyPaymentInput{
		GatewayOrderID: "order_x", GatewayPaymentID: "pay_x", Signature: "sig",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsConfiguration(err))

	count, err := testutil.GatherAndCount(reg, "payment_verifications_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOrderService_VerifyMissingFields(t *testing.T) {
	f := newOrderFixture(t)

	_, err := f.svc.VerifyPayment(context.Background(), VerifyPaymentInput{GatewayPaymentID: "pay_1"})
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.ErrCodeValidation, appErr.Code)
	assert.Equal(t, []string{"gatewayOrderId", "signature"}, appErr.Fields)
}

func TestOrderService_VerifyWithoutGatewayPaymentID(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)

	session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)

	res, err := f.svc.VerifyPayment(ctx, f.verifyInput(session, ""))
	require.NoError(t, err)
	assert.True(t, res.Success)

	p := f.payment(t, order.ID)
	assert.Equal(t, valueobject.PaymentStatusPaid, p.PaymentStatus)
	assert.Nil(t, p.GatewayPaymentID)
}

func TestOrderService_VerifyUnknownSession(t *testing.T) {
	f := newOrderFixture(t)

	in := VerifyPaymentInput{
		GatewayOrderID:   "order_unknown",
		GatewayPaymentID: "pay_1",
		Signature:        gateway.ComputeSignature("order_unknown", "pay_1", testKeySecret),
	}
	_, err := f.svc.VerifyPayment(context.Background(), in)
	assert.True(t, apperror.IsNotFound(err))
}

func TestOrderService_VerifyRepairsOrderOfPaidPayment(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)

	session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)

	// платёж оплачен, но заказ остался в approved
	p := f.payment(t, order.ID)
	p.PaymentStatus = valueobject.PaymentStatusPaid
	f.payments.set(*p)

	res, err := f.svc.VerifyPayment(ctx, f.verifyInput(session, "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.AlreadyPaid)
	assert.Equal(t, valueobject.OrderStatusInProgress, f.orderStatus(t, order.ID))
}

func TestOrderService_FullLifecycle(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)

	_, err := f.svc.MarkDelivered(ctx, f.sellerID, order.ID)
	assert.True(t, apperror.IsInvalidState(err))

	session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)
	_, err = f.svc.VerifyPayment(ctx, f.verifyInput(session, "pay_1"))
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, f.clientID, order.ID)
	assert.True(t, apperror.IsInvalidState(err))

	delivered, err := f.svc.MarkDelivered(ctx, f.sellerID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.OrderStatusDelivered, delivered.Status)

	_, err = f.svc.Complete(ctx, uuid.New(), order.ID)
	assert.True(t, apperror.IsNotFound(err))

	completed, err := f.svc.Complete(ctx, f.clientID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.OrderStatusCompleted, completed.Status)
	assert.True(t, f.notifier.received(f.sellerID, models.NotificationOrderCompleted))
}

func TestOrderService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending order", func(t *testing.T) {
		f := newOrderFixture(t)
		order := f.createOrder(t, 100)

		cancelled, err := f.svc.Cancel(ctx, f.clientID, order.ID)
		require.NoError(t, err)
		assert.True(t, cancelled.Cancelled)

		_, err = f.svc.Accept(ctx, f.sellerID, order.ID)
		assert.True(t, apperror.IsInvalidState(err))

		_, err = f.svc.Cancel(ctx, f.clientID, order.ID)
		assert.True(t, apperror.IsInvalidState(err))
	})

	t.Run("approved order blocks payment", func(t *testing.T) {
		f := newOrderFixture(t)
		order := f.acceptedOrder(t, 100)

		_, err := f.svc.Cancel(ctx, f.clientID, order.ID)
		require.NoError(t, err)

		_, err = f.svc.InitiatePayment(ctx, f.clientID, order.ID)
		assert.True(t, apperror.IsInvalidState(err))
	})

	t.Run("paid order", func(t *testing.T) {
		f := newOrderFixture(t)
		order := f.acceptedOrder(t, 100)
		session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
		require.NoError(t, err)
		_, err = f.svc.VerifyPayment(ctx, f.verifyInput(session, "pay_1"))
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, f.clientID, order.ID)
		assert.True(t, apperror.IsInvalidState(err))

		current, err := f.orders.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.False(t, current.Cancelled)
		assert.Equal(t, valueobject.OrderStatusInProgress, current.Status)
	})

	t.Run("open session blocks cancel", func(t *testing.T) {
		f := newOrderFixture(t)
		order := f.acceptedOrder(t, 100)
		session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, f.clientID, order.ID)
		assert.True(t, apperror.IsInvalidState(err))

		// виджет всё ещё может завершить оплату
		res, err := f.svc.VerifyPayment(ctx, f.verifyInput(session, "pay_1"))
		require.NoError(t, err)
		assert.True(t, res.Success)

		current, err := f.orders.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.False(t, current.Cancelled)
		assert.Equal(t, valueobject.OrderStatusInProgress, current.Status)
	})

	t.Run("verify after cancel is refused", func(t *testing.T) {
		f := newOrderFixture(t)
		order := f.acceptedOrder(t, 100)
		session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
		require.NoError(t, err)

		bad := f.verifyInput(session, "pay_1")
		bad.Signature = "deadbeef"
		_, err = f.svc.VerifyPayment(ctx, bad)
		require.True(t, errors.Is(err, apperror.ErrSignatureMismatch))

		_, err = f.svc.Cancel(ctx, f.clientID, order.ID)
		require.NoError(t, err)

		res, err := f.svc.VerifyPayment(ctx, f.verifyInput(session, "pay_2"))
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, apperror.ErrPaidCancelledOrder))
		assert.True(t, apperror.IsInvalidState(err))

		assert.Equal(t, valueobject.PaymentStatusFailed, f.payment(t, order.ID).PaymentStatus)
		assert.Equal(t, valueobject.OrderStatusApproved, f.orderStatus(t, order.ID))
		assert.False(t, f.notifier.received(f.clientID, models.NotificationPaymentConfirmed))
	})

	t.Run("captured webhook after cancel is acknowledged", func(t *testing.T) {
		f := newOrderFixture(t)
		reg := prometheus.NewRegistry()
		f.svc.metrics = metrics.NewPaymentMetrics(reg)
		order := f.acceptedOrder(t, 100)
		session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
		require.NoError(t, err)

		require.NoError(t, f.svc.HandleGatewayEvent(ctx, &gateway.WebhookEvent{
			Type: gateway.EventPaymentFailed, RazorpayOrderID: session.GatewayOrderID,
		}))
		_, err = f.svc.Cancel(ctx, f.clientID, order.ID)
		require.NoError(t, err)

		err = f.svc.HandleGatewayEvent(ctx, &gateway.WebhookEvent{
			Type: gateway.EventPaymentCaptured, RazorpayOrderID: session.GatewayOrderID, PaymentID: "pay_late",
		})
		require.NoError(t, err)

		assert.Equal(t, valueobject.PaymentStatusFailed, f.payment(t, order.ID).PaymentStatus)
		assert.Equal(t, valueobject.OrderStatusApproved, f.orderStatus(t, order.ID))
		assert.False(t, f.notifier.received(f.sellerID, models.NotificationPaymentConfirmed))

		count, err := testutil.GatherAndCount(reg, "payment_webhooks_total")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("paid payment on cancelled order is not reported as success", func(t *testing.T) {
		f := newOrderFixture(t)
		order := f.acceptedOrder(t, 100)
		session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
		require.NoError(t, err)
		p := f.payment(t, order.ID)
		p.PaymentStatus = valueobject.PaymentStatusPaid
		f.payments.set(*p)
		current, err := f.orders.GetByID(ctx, order.ID)
		require.NoError(t, err)
		current.Cancelled = true
		f.orders.set(*current)

		_, err = f.svc.VerifyPayment(ctx, f.verifyInput(session, "pay_1"))
		assert.True(t, errors.Is(err, apperror.ErrPaidCancelledOrder))

		err = f.svc.HandleGatewayEvent(ctx, &gateway.WebhookEvent{
			Type: gateway.EventPaymentCaptured, RazorpayOrderID: session.GatewayOrderID, PaymentID: "pay_1",
		})
		assert.NoError(t, err)
	})

	t.Run("paid but still approved", func(t *testing.T) {
		f := newOrderFixture(t)
		order := f.acceptedOrder(t, 100)
		_, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
		require.NoError(t, err)
		p := f.payment(t, order.ID)
		p.PaymentStatus = valueobject.PaymentStatusPaid
		f.payments.set(*p)

		_, err = f.svc.Cancel(ctx, f.clientID, order.ID)
		assert.True(t, apperror.IsInvalidState(err))
	})

	t.Run("not owner", func(t *testing.T) {
		f := newOrderFixture(t)
		order := f.createOrder(t, 100)

		_, err := f.svc.Cancel(ctx, uuid.New(), order.ID)
		assert.True(t, apperror.IsNotFound(err))
	})
}

func TestOrderService_GetOrderPaymentDetails(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 100)

	details, err := f.svc.GetOrderPaymentDetails(ctx, f.clientID, order.ID)
	require.NoError(t, err)
	assert.True(t, details.PaymentDetailsMissing)
	assert.Nil(t, details.Payment)

	_, err = f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)

	details, err = f.svc.GetOrderPaymentDetails(ctx, f.clientID, order.ID)
	require.NoError(t, err)
	assert.False(t, details.PaymentDetailsMissing)
	require.NotNil(t, details.Payment)
	assert.Equal(t, valueobject.PaymentStatusInitiated, details.Payment.PaymentStatus)

	_, err = f.svc.GetOrderPaymentDetails(ctx, uuid.New(), order.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestOrderService_HandleGatewayEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("captured confirms payment", func(t *testing.T) {
		f := newOrderFixture(t)
		order := f.acceptedOrder(t, 100)
		session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
		require.NoError(t, err)

		err = f.svc.HandleGatewayEvent(ctx, &gateway.WebhookEvent{
			Type: gateway.EventPaymentCaptured, RazorpayOrderID: session.GatewayOrderID, PaymentID: "pay_w",
		})
		require.NoError(t, err)
		assert.Equal(t, valueobject.PaymentStatusPaid, f.payment(t, order.ID).PaymentStatus)
		assert.Equal(t, valueobject.OrderStatusInProgress, f.orderStatus(t, order.ID))

		// событие после verify не меняет данные
		res, err := f.svc.VerifyPayment(ctx, f.verifyInput(session, "pay_w"))
		require.NoError(t, err)
		assert.True(t, res.AlreadyPaid)
	})

	t.Run("failed does not downgrade paid", func(t *testing.T) {
		f := newOrderFixture(t)
		order := f.acceptedOrder(t, 100)
		session, err := f.svc.InitiatePayment(ctx, f.clientID, order.ID)
		require.NoError(t, err)
		_, err = f.svc.VerifyPayment(ctx, f.verifyInput(session, "pay_1"))
		require.NoError(t, err)

		err = f.svc.HandleGatewayEvent(ctx, &gateway.WebhookEvent{
			Type: gateway.EventPaymentFailed, RazorpayOrderID: session.GatewayOrderID,
		})
		require.NoError(t, err)
		assert.Equal(t, valueobject.PaymentStatusPaid, f.payment(t, order.ID).PaymentStatus)
	})

	t.Run("unknown session is acknowledged", func(t *testing.T) {
		f := newOrderFixture(t)
		err := f.svc.HandleGatewayEvent(ctx, &gateway.WebhookEvent{
			Type: gateway.EventPaymentCaptured, RazorpayOrderID: "order_missing",
		})
		assert.NoError(t, err)
	})

	t.Run("unrelated event ignored", func(t *testing.T) {
		f := newOrderFixture(t)
		err := f.svc.HandleGatewayEvent(ctx, &gateway.WebhookEvent{Type: "refund.created", RazorpayOrderID: "order_1"})
		assert.NoError(t, err)
	})
}

func TestOrderService_SetMilestones(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.acceptedOrder(t, 1000)

	in := SetMilestonesInput{Milestones: []MilestoneInput{
		{Name: "Draft", AmountDue: 400},
		{Name: "Publish", AmountDue: 600},
	}}

	_, err := f.svc.SetMilestones(ctx, f.clientID, order.ID, in)
	assert.True(t, apperror.IsInvalidState(err))

	_, err = f.svc.InitiatePayment(ctx, f.clientID, order.ID)
	require.NoError(t, err)

	p, err := f.svc.SetMilestones(ctx, f.clientID, order.ID, in)
	require.NoError(t, err)
	require.Len(t, p.Milestones, 2)
	assert.Equal(t, "Draft", p.Milestones[0].Name)
	assert.Equal(t, valueobject.MilestoneStatusPending, p.Milestones[1].Status)

	in.Milestones = append(in.Milestones, MilestoneInput{Name: "Bonus", AmountDue: 0.01})
	_, err = f.svc.SetMilestones(ctx, f.clientID, order.ID, in)
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.SetMilestones(ctx, f.clientID, order.ID, SetMilestonesInput{})
	assert.True(t, apperror.IsValidation(err))
}

func TestOrderService_ValidationFieldNamesMatchJSON(t *testing.T) {
	err := validation.Struct(SetMilestonesInput{Milestones: []MilestoneInput{{AmountDue: 10}}})
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, []string{"milestones[0].name"}, appErr.Fields)
}
