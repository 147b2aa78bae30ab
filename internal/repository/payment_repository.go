package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/repository/common"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentStateChanged возвращается, когда условное обновление платежа не затронуло строк.
	ErrPaymentStateChanged = errors.New("payment state changed concurrently")
	// ErrOrderCancelled возвращается, когда оплата приходит по уже отменённому заказу.
	ErrOrderCancelled = errors.New("order cancelled")
)

const paymentColumns = `
	id, order_id, payment_status, gateway_payment_id, razorpay_order_id, total_escrow_amount,
	payment_currency, initial_payment_date, transaction_date, created_at, updated_at
`

// PaymentRepository отвечает за таблицы payments и payment_milestones.
type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreateForOrder создаёт платёж для заказа. Если платёж уже существует (параллельный вызов
// или сирота после неудачной привязки), возвращает существующую запись и created=false.
func (r *PaymentRepository) CreateForOrder(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	query := `
		INSERT INTO payments (order_id, payment_status, total_escrow_amount, payment_currency)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING ` + paymentColumns

	var created models.Payment
	err := r.db.GetContext(ctx, &created, query,
		payment.OrderID,
		payment.PaymentStatus,
		payment.TotalEscrowAmount,
		payment.PaymentCurrency,
	)
	if err == nil {
		created.Milestones = []models.Milestone{}
		return &created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("payment repository: create for order %w", err)
	}

	existing, err := r.GetByOrderID(ctx, payment.OrderID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID возвращает платёж по идентификатору.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.getBy(ctx, "id", id)
}

// GetByOrderID возвращает платёж заказа.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return r.getBy(ctx, "order_id", orderID)
}

// GetByRazorpayOrderID возвращает платёж по идентификатору сессии шлюза.
func (r *PaymentRepository) GetByRazorpayOrderID(ctx context.Context, razorpayOrderID string) (*models.Payment, error) {
	return r.getBy(ctx, "razorpay_order_id", razorpayOrderID)
}

func (r *PaymentRepository) getBy(ctx context.Context, column string, value interface{}) (*models.Payment, error) {
	var payment models.Payment
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE %s = $1`, paymentColumns, column)
	if err := r.db.GetContext(ctx, &payment, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: get by %s %w", column, err)
	}

	milestones, err := r.ListMilestones(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	payment.Milestones = milestones

	return &payment, nil
}

// AttachSession сохраняет идентификатор сессии шлюза, только если у платежа его ещё нет.
func (r *PaymentRepository) AttachSession(ctx context.Context, paymentID uuid.UUID, razorpayOrderID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET razorpay_order_id = $2, payment_status = 'initiated', updated_at = NOW()
		WHERE id = $1 AND razorpay_order_id IS NULL AND payment_status = 'unpaid'
	`, paymentID, razorpayOrderID)
	if err != nil {
		return fmt.Errorf("payment repository: attach session %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment repository: attach session rows affected %w", err)
	}
	if rowsAffected == 0 {
		return ErrPaymentStateChanged
	}

	return nil
}

// MarkPaid переводит платёж в paid. Уже оплаченный платёж не меняется и даёт ErrPaymentStateChanged.
func (r *PaymentRepository) MarkPaid(ctx context.Context, razorpayOrderID, gatewayPaymentID string, paidAt time.Time) (*models.Payment, error) {
	var payment models.Payment
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		// Строка заказа блокируется раньше платежа, как и в OrderRepository.Cancel.
		var cancelled bool
		err := tx.GetContext(ctx, &cancelled, `
			SELECT o.cancelled
			FROM orders o
			JOIN payments p ON p.order_id = o.id
			WHERE p.razorpay_order_id = $1
			FOR UPDATE OF o
		`, razorpayOrderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPaymentStateChanged
			}
			return fmt.Errorf("payment repository: lock order %w", err)
		}
		if cancelled {
			return ErrOrderCancelled
		}

		query := `
			UPDATE payments
			SET payment_status = 'paid',
				gateway_payment_id = NULLIF($2, ''),
				initial_payment_date = $3,
				transaction_date = $3,
				updated_at = NOW()
			WHERE razorpay_order_id = $1 AND payment_status IN ('unpaid', 'initiated', 'failed')
			RETURNING ` + paymentColumns

		if err := tx.GetContext(ctx, &payment, query, razorpayOrderID, gatewayPaymentID, paidAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPaymentStateChanged
			}
			return fmt.Errorf("payment repository: mark paid %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	payment.Milestones = []models.Milestone{}
	return &payment, nil
}

// MarkFailed отмечает неудачную попытку оплаты. Оплаченный платёж не понижается.
func (r *PaymentRepository) MarkFailed(ctx context.Context, razorpayOrderID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET payment_status = 'failed', updated_at = NOW()
		WHERE razorpay_order_id = $1 AND payment_status IN ('unpaid', 'initiated', 'failed')
	`, razorpayOrderID)
	if err != nil {
		return false, fmt.Errorf("payment repository: mark failed %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment repository: mark failed rows affected %w", err)
	}
	return rowsAffected > 0, nil
}

// ListMilestones возвращает этапы платежа по порядку.
func (r *PaymentRepository) ListMilestones(ctx context.Context, paymentID uuid.UUID) ([]models.Milestone, error) {
	milestones := make([]models.Milestone, 0)
	query := `
		SELECT id, payment_id, position, name, amount_due, status, release_date, release_transaction_id, created_at
		FROM payment_milestones
		WHERE payment_id = $1
		ORDER BY position
	`
	if err := r.db.SelectContext(ctx, &milestones, query, paymentID); err != nil {
		return nil, fmt.Errorf("payment repository: list milestones %w", err)
	}
	return milestones, nil
}

// ReplaceMilestones заменяет план этапов платежа, пока ни один этап не освобождён и не оспорен.
func (r *PaymentRepository) ReplaceMilestones(ctx context.Context, paymentID uuid.UUID, milestones []models.Milestone) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var settled int
		if err := tx.GetContext(ctx, &settled, `SELECT COUNT(*) FROM payment_milestones WHERE payment_id = $1 AND status <> 'pending'`, paymentID); err != nil {
			return fmt.Errorf("payment repository: count settled milestones %w", err)
		}
		if settled > 0 {
			return ErrPaymentStateChanged
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM payment_milestones WHERE payment_id = $1`, paymentID); err != nil {
			return fmt.Errorf("payment repository: clear milestones %w", err)
		}

		if len(milestones) == 0 {
			return nil
		}

		inserter := common.NewBatchInserter(tx,
			`INSERT INTO payment_milestones (payment_id, position, name, amount_due, status)`, 5, 50)
		for i, m := range milestones {
			if err := inserter.Add(ctx, paymentID, i, m.Name, m.AmountDue, m.Status); err != nil {
				return fmt.Errorf("payment repository: insert milestone %w", err)
			}
		}
		return inserter.Flush(ctx)
	})
}
