package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/beereshbc/influencaa-backend/internal/domain/valueobject"
	"github.com/beereshbc/influencaa-backend/internal/gateway"
	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/repository"
)

// memOrderRepo повторяет условные обновления OrderRepository в памяти.
type memOrderRepo struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]models.Order
	clock    time.Time
	payments *memPaymentRepo
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{
		orders: make(map[uuid.UUID]models.Order),
		clock:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (r *memOrderRepo) Create(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clock = r.clock.Add(time.Minute)
	order.ID = uuid.New()
	order.OrderDate = r.clock
	order.CreatedAt = r.clock
	order.UpdatedAt = r.clock
	r.orders[order.ID] = *order
	return nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &order, nil
}

func (r *memOrderRepo) ListByClient(_ context.Context, clientID uuid.UUID) ([]models.Order, error) {
	return r.list(func(o models.Order) bool { return o.ClientID == clientID }), nil
}

func (r *memOrderRepo) ListBySeller(_ context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	return r.list(func(o models.Order) bool { return o.InfluencerID == sellerID }), nil
}

func (r *memOrderRepo) list(match func(models.Order) bool) []models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Order
	for _, o := range r.orders {
		if match(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OrderDate.Equal(out[j].OrderDate) {
			return out[i].OrderDate.After(out[j].OrderDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to valueobject.OrderStatus) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok || order.Status != from || order.Cancelled {
		return nil, repository.ErrOrderStateChanged
	}
	order.Status = to
	r.orders[id] = order
	return &order, nil
}

func (r *memOrderRepo) Cancel(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok || order.Cancelled || !order.Status.Cancellable() {
		return nil, repository.ErrOrderStateChanged
	}
	if r.payments != nil {
		if p, err := r.payments.find(func(p models.Payment) bool { return p.OrderID == id }); err == nil {
			if p.PaymentStatus != valueobject.PaymentStatusUnpaid && p.PaymentStatus != valueobject.PaymentStatusFailed {
				return nil, repository.ErrOrderStateChanged
			}
		}
	}
	order.Cancelled = true
	r.orders[id] = order
	return &order, nil
}

func (r *memOrderRepo) set(o models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
}

func (r *memOrderRepo) LinkPayment(_ context.Context, orderID, paymentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if order.PaymentID != nil && *order.PaymentID != paymentID {
		return repository.ErrPaymentAlreadyLinked
	}
	order.PaymentID = &paymentID
	r.orders[orderID] = order
	return nil
}

// memPaymentRepo повторяет условные обновления PaymentRepository в памяти.
type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]models.Payment
	orders   *memOrderRepo
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[uuid.UUID]models.Payment)}
}

func (r *memPaymentRepo) CreateForOrder(_ context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payments {
		if p.OrderID == payment.OrderID {
			existing := p
			return &existing, false, nil
		}
	}

	p := *payment
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.payments[p.ID] = p
	return &p, true, nil
}

func (r *memPaymentRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.OrderID == orderID })
}

func (r *memPaymentRepo) GetByRazorpayOrderID(_ context.Context, razorpayOrderID string) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.SessionID() == razorpayOrderID })
}

func (r *memPaymentRepo) find(match func(models.Payment) bool) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payments {
		if match(p) {
			found := p
			return &found, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (r *memPaymentRepo) AttachSession(_ context.Context, paymentID uuid.UUID, razorpayOrderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[paymentID]
	if !ok || p.RazorpayOrderID != nil || p.PaymentStatus != valueobject.PaymentStatusUnpaid {
		return repository.ErrPaymentStateChanged
	}
	p.RazorpayOrderID = &razorpayOrderID
	p.PaymentStatus = valueobject.PaymentStatusInitiated
	r.payments[paymentID] = p
	return nil
}

func (r *memPaymentRepo) MarkPaid(ctx context.Context, razorpayOrderID, gatewayPaymentID string, paidAt time.Time) (*models.Payment, error) {
	if r.orders != nil {
		if p, err := r.GetByRazorpayOrderID(ctx, razorpayOrderID); err == nil {
			if order, err := r.orders.GetByID(ctx, p.OrderID); err == nil && order.Cancelled {
				return nil, repository.ErrOrderCancelled
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.payments {
		if p.SessionID() != razorpayOrderID {
			continue
		}
		if !payable(p.PaymentStatus) {
			break
		}
		p.PaymentStatus = valueobject.PaymentStatusPaid
		p.GatewayPaymentID = nil
		if gatewayPaymentID != "" {
			p.GatewayPaymentID = &gatewayPaymentID
		}
		p.InitialPaymentDate = &paidAt
		p.TransactionDate = &paidAt
		r.payments[id] = p
		return &p, nil
	}
	return nil, repository.ErrPaymentStateChanged
}

func (r *memPaymentRepo) MarkFailed(_ context.Context, razorpayOrderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.payments {
		if p.SessionID() == razorpayOrderID && payable(p.PaymentStatus) {
			p.PaymentStatus = valueobject.PaymentStatusFailed
			r.payments[id] = p
			return true, nil
		}
	}
	return false, nil
}

func (r *memPaymentRepo) ReplaceMilestones(_ context.Context, paymentID uuid.UUID, milestones []models.Milestone) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[paymentID]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	for _, m := range p.Milestones {
		if m.Status != valueobject.MilestoneStatusPending {
			return repository.ErrPaymentStateChanged
		}
	}
	p.Milestones = make([]models.Milestone, len(milestones))
	for i, m := range milestones {
		m.ID = uuid.New()
		p.Milestones[i] = m
	}
	r.payments[paymentID] = p
	return nil
}

func (r *memPaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

// set подменяет платёж напрямую, минуя сервис.
func (r *memPaymentRepo) set(p models.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p
}

func payable(s valueobject.PaymentStatus) bool {
	return s == valueobject.PaymentStatusUnpaid ||
		s == valueobject.PaymentStatusInitiated ||
		s == valueobject.PaymentStatusFailed
}

// fakeGateway выдаёт уникальные идентификаторы сессий и считает вызовы.
type fakeGateway struct {
	calls atomic.Int32
	delay time.Duration
	err   error

	mu   sync.Mutex
	last gateway.SessionRequest
}

func (g *fakeGateway) CreateSession(ctx context.Context, req gateway.SessionRequest) (*gateway.Session, error) {
	n := g.calls.Add(1)

	g.mu.Lock()
	g.last = req
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Session{
		ID:       fmt.Sprintf("order_fake%d", n),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
	}, nil
}

func (g *fakeGateway) lastRequest() gateway.SessionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

type notification struct {
	userID uuid.UUID
	event  string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, event string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{userID: userID, event: event})
}

func (n *recordingNotifier) received(userID uuid.UUID, event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.userID == userID && e.event == event {
			return true
		}
	}
	return false
}
