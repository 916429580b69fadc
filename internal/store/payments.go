package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/order-report/internal/database"
	"github.com/safar/order-report/internal/models"
	"github.com/shopspring/decimal"
)

type RecordPaymentRequest struct {
	OrderID       int64
	PaymentMethod string
	Amount        decimal.Decimal
	PaymentStatus string
	TransactionID string
	PaymentDate   *time.Time
}

// RecordPayment inserts a payment row for an order. An order may accumulate
// more than one payment row (e.g. a failed attempt followed by a successful
// one); the report duplicates its lines once per payment in that case.
func RecordPayment(ctx context.Context, db *sql.DB, req RecordPaymentRequest) (*models.Payment, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)",
		req.OrderID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return nil, database.ErrOrderNotFound
	}

	payment := &models.Payment{}

	query := `
		INSERT INTO payments (order_id, payment_method, amount, payment_status, transaction_id, payment_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, order_id, payment_method, amount, payment_status, transaction_id, payment_date, created_at`

	err = db.QueryRowContext(ctx, query,
		req.OrderID, req.PaymentMethod, req.Amount, req.PaymentStatus, req.TransactionID, req.PaymentDate).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.PaymentMethod,
		&payment.Amount,
		&payment.PaymentStatus,
		&payment.TransactionID,
		&payment.PaymentDate,
		&payment.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	return payment, nil
}

func GetPaymentsByOrder(ctx context.Context, db *sql.DB, orderID int64) ([]models.Payment, error) {
	query := `
		SELECT id, order_id, payment_method, amount, payment_status, transaction_id, payment_date, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at`

	rows, err := db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var payment models.Payment
		err := rows.Scan(
			&payment.ID,
			&payment.OrderID,
			&payment.PaymentMethod,
			&payment.Amount,
			&payment.PaymentStatus,
			&payment.TransactionID,
			&payment.PaymentDate,
			&payment.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(payments) == 0 {
		return nil, database.ErrPaymentNotFound
	}

	return payments, nil
}
