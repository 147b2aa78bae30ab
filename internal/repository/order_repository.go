package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/beereshbc/influencaa-backend/internal/domain/valueobject"
	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/repository/common"
)

// Ошибки уровня репозитория.
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderStateChanged возвращается, когда условное обновление не нашло заказ в ожидаемом состоянии.
	ErrOrderStateChanged = errors.New("order state changed concurrently")
	// ErrPaymentAlreadyLinked возвращается, когда заказ уже связан с другим платежом.
	ErrPaymentAlreadyLinked = errors.New("order already linked to another payment")
)

const orderColumns = `
	id, influencer_id, client_id, influencer_name, platform, service, service_details, order_details,
	total_amount, payment_id, status, cancelled, order_date, created_at, updated_at
`

// OrderRepository отвечает за таблицу orders.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository создаёт новый экземпляр.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create сохраняет новый заказ. Статус, флаг отмены и ссылка на платёж берутся из значений по умолчанию.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (influencer_id, client_id, influencer_name, platform, service, service_details, order_details, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + orderColumns

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		order.InfluencerID,
		order.ClientID,
		order.InfluencerName,
		order.Platform,
		order.Service,
		order.ServiceDetails,
		order.OrderDetails,
		order.TotalAmount,
	).StructScan(order); err != nil {
		return fmt.Errorf("order repository: create %w", err)
	}

	return nil
}

// GetByID возвращает заказ по идентификатору.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("order repository: get by id %w", err)
	}
	return &order, nil
}

// ListByClient возвращает заказы бренда, новые первыми.
func (r *OrderRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]models.Order, error) {
	return r.list(ctx, "client_id", clientID)
}

// ListBySeller возвращает заказы инфлюенсера, новые первыми.
func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	return r.list(ctx, "influencer_id", sellerID)
}

func (r *OrderRepository) list(ctx context.Context, column string, id uuid.UUID) ([]models.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s = $1 ORDER BY order_date DESC, created_at DESC`, orderColumns, column)

	orders := make([]models.Order, 0)
	if err := r.db.SelectContext(ctx, &orders, query, id); err != nil {
		return nil, fmt.Errorf("order repository: list by %s %w", column, err)
	}
	return orders, nil
}

// UpdateStatus переводит заказ из from в to, только если заказ всё ещё в статусе from и не отменён.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to valueobject.OrderStatus) (*models.Order, error) {
	query := `
		UPDATE orders
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND cancelled = FALSE
		RETURNING ` + orderColumns

	var order models.Order
	if err := r.db.GetContext(ctx, &order, query, id, from, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderStateChanged
		}
		return nil, fmt.Errorf("order repository: update status %w", err)
	}
	return &order, nil
}

// Cancel выставляет флаг cancelled, пока заказ в статусе pending/approved, а платёжная сессия не открыта и не оплачена.
// Строка заказа блокируется до проверки платежа, поэтому Cancel и PaymentRepository.MarkPaid не пересекаются.
func (r *OrderRepository) Cancel(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var locked models.Order
		if err := tx.GetContext(ctx, &locked, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrOrderStateChanged
			}
			return fmt.Errorf("order repository: lock order %w", err)
		}
		if locked.Cancelled || !locked.Status.Cancellable() {
			return ErrOrderStateChanged
		}

		var blocked bool
		if err := tx.GetContext(ctx, &blocked, `
			SELECT EXISTS (
				SELECT 1 FROM payments
				WHERE order_id = $1 AND payment_status IN ('initiated', 'paid', 'pending_release', 'refunded')
			)
		`, id); err != nil {
			return fmt.Errorf("order repository: check payment %w", err)
		}
		if blocked {
			return ErrOrderStateChanged
		}

		query := `
			UPDATE orders
			SET cancelled = TRUE, updated_at = NOW()
			WHERE id = $1
			RETURNING ` + orderColumns
		if err := tx.GetContext(ctx, &order, query, id); err != nil {
			return fmt.Errorf("order repository: cancel %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LinkPayment записывает ссылку на платёж. Повторная привязка того же платежа не считается ошибкой.
func (r *OrderRepository) LinkPayment(ctx context.Context, orderID, paymentID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_id = $2, updated_at = NOW()
		WHERE id = $1 AND (payment_id IS NULL OR payment_id = $2)
	`, orderID, paymentID)
	if err != nil {
		return fmt.Errorf("order repository: link payment %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("order repository: link payment rows affected %w", err)
	}
	if rowsAffected == 0 {
		return ErrPaymentAlreadyLinked
	}

	return nil
}
