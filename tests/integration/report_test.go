package integration

import (
	"context"
	"database/sql"
	"testing"

	"github.com/safar/order-report/internal/database"
	"github.com/safar/order-report/internal/models"
	"github.com/safar/order-report/internal/store"
	"github.com/shopspring/decimal"
)

func seedOrder(t *testing.T, db *sql.DB, userID int64, items []store.OrderItemRequest) *models.Order {
	t.Helper()

	order, err := store.CreateOrder(context.Background(), db, store.CreateOrderRequest{
		UserID: userID,
		Items:  items,
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}
	return order
}

func TestOrderReportWithoutPayment(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user, err := store.CreateUser(ctx, db, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	widget, err := store.CreateProduct(ctx, db, "WID-001", "Widget", "Test", decimal.RequireFromString("2.50"), 100)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order := seedOrder(t, db, user.ID, []store.OrderItemRequest{
		{ProductID: widget.ID, Quantity: 3},
	})

	report, err := store.OrderReport(ctx, db)
	if err != nil {
		t.Fatalf("Order report: %v", err)
	}

	if len(report) != 1 {
		t.Fatalf("Expected 1 report row, got %d", len(report))
	}

	row := report[0]
	if row.OrderID != order.ID {
		t.Errorf("Expected order ID %d, got %d", order.ID, row.OrderID)
	}
	if row.UserName != "Alice" {
		t.Errorf("Expected user name Alice, got %q", row.UserName)
	}
	if row.ProductName != "Widget" {
		t.Errorf("Expected product name Widget, got %q", row.ProductName)
	}
	if row.Quantity != 3 {
		t.Errorf("Expected quantity 3, got %d", row.Quantity)
	}
	if !row.Price.Equal(decimal.RequireFromString("2.50")) {
		t.Errorf("Expected price 2.50, got %s", row.Price)
	}
	if !row.TotalAmount.Equal(decimal.RequireFromString("7.50")) {
		t.Errorf("Expected total 7.50, got %s", row.TotalAmount)
	}
	if row.PaymentStatus != nil {
		t.Errorf("Expected nil payment status, got %q", *row.PaymentStatus)
	}
}

func TestOrderReportWithPayment(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user, err := store.CreateUser(ctx, db, "alice2@example.com", "Alice")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	widget, err := store.CreateProduct(ctx, db, "WID-002", "Widget", "Test", decimal.RequireFromString("2.50"), 100)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order := seedOrder(t, db, user.ID, []store.OrderItemRequest{
		{ProductID: widget.ID, Quantity: 3},
	})

	_, err = store.RecordPayment(ctx, db, store.RecordPaymentRequest{
		OrderID:       order.ID,
		PaymentMethod: "card",
		Amount:        order.TotalAmount,
		PaymentStatus: models.PaymentStatusPaid,
	})
	if err != nil {
		t.Fatalf("Record payment: %v", err)
	}

	report, err := store.OrderReport(ctx, db)
	if err != nil {
		t.Fatalf("Order report: %v", err)
	}

	if len(report) != 1 {
		t.Fatalf("Expected 1 report row, got %d", len(report))
	}

	row := report[0]
	if row.PaymentStatus == nil {
		t.Fatal("Expected payment status, got nil")
	}
	if *row.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("Expected payment status %q, got %q", models.PaymentStatusPaid, *row.PaymentStatus)
	}
	if !row.TotalAmount.Equal(decimal.RequireFromString("7.50")) {
		t.Errorf("Expected total 7.50, got %s", row.TotalAmount)
	}
}

func TestOrderReportExcludesOrphanedItems(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user, err := store.CreateUser(ctx, db, "carol@example.com", "Carol")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	product, err := store.CreateProduct(ctx, db, "GAD-001", "Gadget", "Test", decimal.NewFromInt(10), 100)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order := seedOrder(t, db, user.ID, []store.OrderItemRequest{
		{ProductID: product.ID, Quantity: 1},
	})

	// Item pointing at an order that does not exist.
	mustExec(t, db,
		`INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
		 VALUES (99999, $1, 2, 10, 20)`, product.ID)

	// Item pointing at a product that does not exist.
	mustExec(t, db,
		`INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
		 VALUES ($1, 88888, 2, 10, 20)`, order.ID)

	// Order whose user does not exist, with a valid item.
	mustExec(t, db,
		`INSERT INTO orders (id, user_id, order_number, status, total_amount)
		 VALUES (77777, 66666, 'ORD-ORPHAN', 'pending', 10)`)
	mustExec(t, db,
		`INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
		 VALUES (77777, $1, 1, 10, 10)`, product.ID)

	report, err := store.OrderReport(ctx, db)
	if err != nil {
		t.Fatalf("Order report: %v", err)
	}

	if len(report) != 1 {
		t.Fatalf("Expected only the intact order's row, got %d rows", len(report))
	}
	if report[0].OrderID != order.ID {
		t.Errorf("Expected order ID %d, got %d", order.ID, report[0].OrderID)
	}
}

func TestOrderReportOrdering(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user, err := store.CreateUser(ctx, db, "dave@example.com", "Dave")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	zephyr, err := store.CreateProduct(ctx, db, "ZEP-001", "Zephyr", "Test", decimal.NewFromInt(5), 100)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	anvil, err := store.CreateProduct(ctx, db, "ANV-001", "Anvil", "Test", decimal.NewFromInt(30), 100)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	mallet, err := store.CreateProduct(ctx, db, "MAL-001", "Mallet", "Test", decimal.NewFromInt(12), 100)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	seedOrder(t, db, user.ID, []store.OrderItemRequest{
		{ProductID: zephyr.ID, Quantity: 1},
		{ProductID: anvil.ID, Quantity: 2},
	})
	seedOrder(t, db, user.ID, []store.OrderItemRequest{
		{ProductID: mallet.ID, Quantity: 1},
		{ProductID: anvil.ID, Quantity: 1},
	})

	report, err := store.OrderReport(ctx, db)
	if err != nil {
		t.Fatalf("Order report: %v", err)
	}

	if len(report) != 4 {
		t.Fatalf("Expected 4 report rows, got %d", len(report))
	}

	for i := 1; i < len(report); i++ {
		prev, cur := report[i-1], report[i]
		if prev.OrderID > cur.OrderID {
			t.Errorf("Row %d: order ID %d sorts after %d", i, prev.OrderID, cur.OrderID)
		}
		if prev.OrderID == cur.OrderID && prev.ProductName > cur.ProductName {
			t.Errorf("Row %d: product %q sorts after %q within order %d",
				i, prev.ProductName, cur.ProductName, cur.OrderID)
		}
	}

	// Within the first order, Anvil precedes Zephyr.
	if report[0].ProductName != "Anvil" || report[1].ProductName != "Zephyr" {
		t.Errorf("Expected [Anvil Zephyr] for the first order, got [%s %s]",
			report[0].ProductName, report[1].ProductName)
	}
}

func TestOrderReportPaymentFanOut(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user, err := store.CreateUser(ctx, db, "erin@example.com", "Erin")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	product, err := store.CreateProduct(ctx, db, "FAN-001", "Fan", "Test", decimal.NewFromInt(25), 100)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order := seedOrder(t, db, user.ID, []store.OrderItemRequest{
		{ProductID: product.ID, Quantity: 1},
	})

	for _, status := range []string{models.PaymentStatusFailed, models.PaymentStatusPaid} {
		_, err := store.RecordPayment(ctx, db, store.RecordPaymentRequest{
			OrderID:       order.ID,
			PaymentMethod: "card",
			Amount:        order.TotalAmount,
			PaymentStatus: status,
		})
		if err != nil {
			t.Fatalf("Record %s payment: %v", status, err)
		}
	}

	report, err := store.OrderReport(ctx, db)
	if err != nil {
		t.Fatalf("Order report: %v", err)
	}

	// One line item joined against two payment rows duplicates the line.
	if len(report) != 2 {
		t.Fatalf("Expected 2 report rows from payment fan-out, got %d", len(report))
	}

	statuses := map[string]bool{}
	for _, row := range report {
		if row.PaymentStatus == nil {
			t.Fatal("Expected payment status on every fan-out row")
		}
		statuses[*row.PaymentStatus] = true
	}
	if !statuses[models.PaymentStatusFailed] || !statuses[models.PaymentStatusPaid] {
		t.Errorf("Expected both payment statuses in fan-out, got %v", statuses)
	}
}

func TestOrderReportSchemaError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	mustExec(t, db, `DROP TABLE payments`)

	_, err := store.OrderReport(ctx, db)
	if err == nil {
		t.Fatal("Expected report to fail with payments table missing")
	}
	if !database.IsSchemaError(err) {
		t.Errorf("Expected a schema error, got: %v", err)
	}
}

func TestOrderReportPage(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user, err := store.CreateUser(ctx, db, "fred@example.com", "Fred")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	var productIDs []int64
	for _, name := range []string{"Auger", "Brace", "Chisel", "Dowel", "Easel"} {
		product, err := store.CreateProduct(ctx, db, "PAG-"+name, name, "Test", decimal.NewFromInt(8), 100)
		if err != nil {
			t.Fatalf("Create product %s: %v", name, err)
		}
		productIDs = append(productIDs, product.ID)
	}

	for _, id := range productIDs {
		seedOrder(t, db, user.ID, []store.OrderItemRequest{
			{ProductID: id, Quantity: 1},
		})
	}

	full, err := store.OrderReport(ctx, db)
	if err != nil {
		t.Fatalf("Order report: %v", err)
	}
	if len(full) != 5 {
		t.Fatalf("Expected 5 report rows, got %d", len(full))
	}

	page1, err := store.OrderReportPage(ctx, db, 1, 2)
	if err != nil {
		t.Fatalf("Report page 1: %v", err)
	}

	if page1.Total != 5 {
		t.Errorf("Expected total 5, got %d", page1.Total)
	}
	if page1.TotalPages != 3 {
		t.Errorf("Expected 3 pages, got %d", page1.TotalPages)
	}

	rows, ok := page1.Items.([]models.ReportRow)
	if !ok {
		t.Fatalf("Expected []models.ReportRow items, got %T", page1.Items)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows on page 1, got %d", len(rows))
	}

	// Page 1 matches the head of the full report.
	for i, row := range rows {
		if row.OrderID != full[i].OrderID || row.ProductName != full[i].ProductName {
			t.Errorf("Page row %d (%d, %s) differs from full report (%d, %s)",
				i, row.OrderID, row.ProductName, full[i].OrderID, full[i].ProductName)
		}
	}
}
