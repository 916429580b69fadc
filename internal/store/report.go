package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/order-report/internal/database"
	"github.com/safar/order-report/internal/models"
)

// The order report flattens every order line into one row, enriched with the
// user, product and payment for that order. Orphaned order_items (no matching
// order or product) and orders with a missing user drop out through the inner
// joins; orders without a payment survive the left join with a NULL status.
// An order with several payment rows repeats its lines once per payment.
const reportQuery = `
	SELECT o.id,
	       u.name,
	       p.name,
	       oi.quantity,
	       oi.unit_price,
	       oi.quantity * oi.unit_price AS total_amount,
	       pay.payment_status
	FROM order_items oi
	JOIN orders o ON oi.order_id = o.id
	JOIN users u ON o.user_id = u.id
	JOIN products p ON oi.product_id = p.id
	LEFT JOIN payments pay ON pay.order_id = o.id
	ORDER BY o.id, p.name`

func scanReportRows(rows *sql.Rows) ([]models.ReportRow, error) {
	var report []models.ReportRow
	for rows.Next() {
		var row models.ReportRow
		var status sql.NullString
		err := rows.Scan(
			&row.OrderID,
			&row.UserName,
			&row.ProductName,
			&row.Quantity,
			&row.Price,
			&row.TotalAmount,
			&status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		if status.Valid {
			row.PaymentStatus = &status.String
		}
		report = append(report, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return report, nil
}

// OrderReport runs the full report in a single statement. It takes no
// parameters, reads nothing but the five source tables and writes nothing;
// errors from the database surface to the caller unretried.
func OrderReport(ctx context.Context, db *sql.DB) ([]models.ReportRow, error) {
	rows, err := db.QueryContext(ctx, reportQuery)
	if err != nil {
		return nil, fmt.Errorf("order report: %w", err)
	}
	defer rows.Close()

	return scanReportRows(rows)
}

// OrderReportPage is the offset-paged variant. The count and the page are
// read inside one repeatable-read transaction so both see the same snapshot.
// Row content and ordering are identical to OrderReport.
func OrderReportPage(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	var report []models.ReportRow

	err := database.WithTransaction(ctx, db, database.SnapshotTxOptions(), func(tx *sql.Tx) error {
		countQuery := `
			SELECT COUNT(*)
			FROM order_items oi
			JOIN orders o ON oi.order_id = o.id
			JOIN users u ON o.user_id = u.id
			JOIN products p ON oi.product_id = p.id
			LEFT JOIN payments pay ON pay.order_id = o.id`

		if err := tx.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
			return fmt.Errorf("count report rows: %w", err)
		}

		offset := (page - 1) * pageSize
		rows, err := tx.QueryContext(ctx, reportQuery+`
	LIMIT $1 OFFSET $2`, pageSize, offset)
		if err != nil {
			return fmt.Errorf("order report page: %w", err)
		}
		defer rows.Close()

		report, err = scanReportRows(rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &OffsetPage{
		Items:      report,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: pageCount(total, pageSize),
	}, nil
}
