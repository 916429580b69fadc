// Package ingest bulk-loads the five source tables from JSON dumps
// (users.json, products.json, orders.json, order_items.json, payments.json).
// Tables are loaded in foreign-key dependency order inside one transaction:
// either the whole dataset lands or none of it does.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lib/pq"
	"github.com/safar/order-report/internal/database"
	"github.com/shopspring/decimal"
)

type UserRecord struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	CreatedAt string `json:"created_at"`
}

type ProductRecord struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url"`
	CreatedAt   string          `json:"created_at"`
}

type OrderRecord struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	OrderDate       string          `json:"order_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          string          `json:"status"`
	ShippingAddress string          `json:"shipping_address"`
}

type OrderItemRecord struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type PaymentRecord struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	PaymentMethod string          `json:"payment_method"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentStatus string          `json:"payment_status"`
	TransactionID string          `json:"transaction_id"`
	PaymentDate   *string         `json:"payment_date"`
}

type Summary struct {
	Users      int
	Products   int
	Orders     int
	OrderItems int
	Payments   int
}

type Loader struct {
	DB      *sql.DB
	DataDir string
}

// Run loads every table the data directory has a file for. Missing files are
// skipped, matching the original dumps where payments.json is sometimes
// absent.
func (l *Loader) Run(ctx context.Context) (*Summary, error) {
	users, err := decodeFile[UserRecord](filepath.Join(l.DataDir, "users.json"))
	if err != nil {
		return nil, err
	}
	products, err := decodeFile[ProductRecord](filepath.Join(l.DataDir, "products.json"))
	if err != nil {
		return nil, err
	}
	orders, err := decodeFile[OrderRecord](filepath.Join(l.DataDir, "orders.json"))
	if err != nil {
		return nil, err
	}
	items, err := decodeFile[OrderItemRecord](filepath.Join(l.DataDir, "order_items.json"))
	if err != nil {
		return nil, err
	}
	payments, err := decodeFile[PaymentRecord](filepath.Join(l.DataDir, "payments.json"))
	if err != nil {
		return nil, err
	}

	summary := &Summary{}

	err = database.WithTransaction(ctx, l.DB, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var copyErr error
		if summary.Users, copyErr = copyUsers(ctx, tx, users); copyErr != nil {
			return copyErr
		}
		if summary.Products, copyErr = copyProducts(ctx, tx, products); copyErr != nil {
			return copyErr
		}
		if summary.Orders, copyErr = copyOrders(ctx, tx, orders); copyErr != nil {
			return copyErr
		}
		if summary.OrderItems, copyErr = copyOrderItems(ctx, tx, items); copyErr != nil {
			return copyErr
		}
		if summary.Payments, copyErr = copyPayments(ctx, tx, payments); copyErr != nil {
			return copyErr
		}

		return resetSequences(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	return summary, nil
}

// decodeFile reads a JSON array dump. A missing file is not an error; it
// decodes to an empty slice.
func decodeFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var records []T
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return records, nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp handles the loose timestamp strings in the dumps. Empty or
// unparsable values fall back to now.
func parseTimestamp(value string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Now()
}

func parseTimestampPtr(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	ts := parseTimestamp(*value)
	return &ts
}

func copyRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]interface{}) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("prepare copy %s: %w", table, err)
	}

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			return fmt.Errorf("copy row into %s: %w", table, err)
		}
	}

	// Flush the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy %s: %w", table, err)
	}

	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy %s: %w", table, err)
	}

	return nil
}

func copyUsers(ctx context.Context, tx *sql.Tx, users []UserRecord) (int, error) {
	rows := make([][]interface{}, 0, len(users))
	for _, u := range users {
		createdAt := parseTimestamp(u.CreatedAt)
		rows = append(rows, []interface{}{u.ID, u.Email, u.Name, u.Phone, u.Address, createdAt, createdAt, 1})
	}

	err := copyRows(ctx, tx, "users",
		[]string{"id", "email", "name", "phone", "address", "created_at", "updated_at", "version"}, rows)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func copyProducts(ctx context.Context, tx *sql.Tx, products []ProductRecord) (int, error) {
	rows := make([][]interface{}, 0, len(products))
	for _, p := range products {
		createdAt := parseTimestamp(p.CreatedAt)
		// The dumps carry no SKU; derive a stable one from the id.
		sku := fmt.Sprintf("SKU-%06d", p.ID)
		rows = append(rows, []interface{}{
			p.ID, sku, p.Name, p.Description, p.Price, p.Category, p.Stock, p.ImageURL, createdAt, createdAt, 1,
		})
	}

	err := copyRows(ctx, tx, "products",
		[]string{"id", "sku", "name", "description", "price", "category", "stock_quantity", "image_url", "created_at", "updated_at", "version"}, rows)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func copyOrders(ctx context.Context, tx *sql.Tx, orders []OrderRecord) (int, error) {
	rows := make([][]interface{}, 0, len(orders))
	for _, o := range orders {
		orderDate := parseTimestamp(o.OrderDate)
		status := o.Status
		if status == "" {
			status = "pending"
		}
		orderNumber := fmt.Sprintf("ORD-%06d", o.ID)
		rows = append(rows, []interface{}{
			o.ID, o.UserID, orderNumber, status, o.TotalAmount, o.ShippingAddress, orderDate, orderDate, 1,
		})
	}

	err := copyRows(ctx, tx, "orders",
		[]string{"id", "user_id", "order_number", "status", "total_amount", "shipping_address", "created_at", "updated_at", "version"}, rows)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func copyOrderItems(ctx context.Context, tx *sql.Tx, items []OrderItemRecord) (int, error) {
	rows := make([][]interface{}, 0, len(items))
	for _, it := range items {
		subtotal := it.Subtotal
		if subtotal.IsZero() {
			subtotal = it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		}
		rows = append(rows, []interface{}{
			it.ID, it.OrderID, it.ProductID, it.Quantity, it.Price, subtotal, time.Now(),
		})
	}

	err := copyRows(ctx, tx, "order_items",
		[]string{"id", "order_id", "product_id", "quantity", "unit_price", "subtotal", "created_at"}, rows)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func copyPayments(ctx context.Context, tx *sql.Tx, payments []PaymentRecord) (int, error) {
	rows := make([][]interface{}, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, []interface{}{
			p.ID, p.OrderID, p.PaymentMethod, p.Amount, p.PaymentStatus, p.TransactionID,
			parseTimestampPtr(p.PaymentDate), time.Now(),
		})
	}

	err := copyRows(ctx, tx, "payments",
		[]string{"id", "order_id", "payment_method", "amount", "payment_status", "transaction_id", "payment_date", "created_at"}, rows)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// resetSequences bumps each serial past the explicit ids the dumps brought in,
// so later inserts do not collide.
func resetSequences(ctx context.Context, tx *sql.Tx) error {
	tables := []string{"users", "products", "orders", "order_items", "payments"}
	for _, table := range tables {
		query := fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE(MAX(id), 1)) FROM %s`,
			table, table)
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("reset %s sequence: %w", table, err)
		}
	}
	return nil
}
