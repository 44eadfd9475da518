package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/apartment-hub/internal/core/domain"
	"github.com/rl1809/apartment-hub/internal/port"
)

//go:embed schema.sql
var schemaSQL string

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type MySQLAdapter struct {
	db *sql.DB
	q  querier
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db, q: db}
}

// Migrate creates the tables that do not exist yet.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// RunInTx runs fn in a transaction. A transaction InnoDB aborts as a
// deadlock victim is run once more; fn must not keep state across attempts.
func (m *MySQLAdapter) RunInTx(ctx context.Context, fn func(ctx context.Context, repo port.DatabaseRepository) error) error {
	err := m.runTx(ctx, fn)
	if isDeadlock(err) {
		err = m.runTx(ctx, fn)
	}
	return err
}

func (m *MySQLAdapter) runTx(ctx context.Context, fn func(ctx context.Context, repo port.DatabaseRepository) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &MySQLAdapter{db: m.db, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const mysqlErrDeadlock = 1213

func isDeadlock(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDeadlock
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := m.q.QueryRowContext(ctx, `
		SELECT id, name, price, stock, created_at, updated_at
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := m.q.QueryContext(ctx, `
		SELECT id, name, price, stock, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := m.q.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Price, p.Stock, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateProduct(ctx context.Context, p domain.Product) error {
	_, err := m.q.ExecContext(ctx, `
		UPDATE products SET name = ?, price = ?, stock = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Price, p.Stock, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetCartByResident(ctx context.Context, residentID string, forUpdate bool) (*domain.Cart, error) {
	query := `SELECT id, resident_id, created_at FROM carts WHERE resident_id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var cart domain.Cart
	err := m.q.QueryRowContext(ctx, query, residentID).Scan(&cart.ID, &cart.ResidentID, &cart.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	rows, err := m.q.QueryContext(ctx, `
		SELECT l.id, l.cart_id, l.product_id, l.quantity,
		       p.id, p.name, p.price, p.stock, p.created_at, p.updated_at
		FROM cart_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.cart_id = ?
		ORDER BY p.name`, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	cart.Lines = []domain.CartLine{}
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity,
			&l.Product.ID, &l.Product.Name, &l.Product.Price, &l.Product.Stock,
			&l.Product.CreatedAt, &l.Product.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		cart.Lines = append(cart.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return &cart, nil
}

// CreateCart is a no-op when the resident already has a cart.
func (m *MySQLAdapter) CreateCart(ctx context.Context, cart domain.Cart) error {
	_, err := m.q.ExecContext(ctx, `
		INSERT INTO carts (id, resident_id, created_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE resident_id = resident_id`,
		cart.ID, cart.ResidentID, cart.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetCartLine(ctx context.Context, lineID string) (*domain.CartLine, error) {
	var l domain.CartLine
	err := m.q.QueryRowContext(ctx, `
		SELECT id, cart_id, product_id, quantity FROM cart_lines WHERE id = ?`, lineID,
	).Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart line: %w", err)
	}
	return &l, nil
}

func (m *MySQLAdapter) InsertCartLine(ctx context.Context, l domain.CartLine) error {
	_, err := m.q.ExecContext(ctx, `
		INSERT INTO cart_lines (id, cart_id, product_id, quantity) VALUES (?, ?, ?, ?)`,
		l.ID, l.CartID, l.ProductID, l.Quantity,
	)
	if err != nil {
		return fmt.Errorf("insert cart line: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateCartLineQuantity(ctx context.Context, lineID string, quantity int) error {
	_, err := m.q.ExecContext(ctx, `UPDATE cart_lines SET quantity = ? WHERE id = ?`, quantity, lineID)
	if err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteCartLine(ctx context.Context, lineID string) error {
	if _, err := m.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = ?`, lineID); err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteCartLines(ctx context.Context, cartID string) error {
	if _, err := m.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("delete cart lines: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, o domain.Order) error {
	_, err := m.q.ExecContext(ctx, `
		INSERT INTO orders (id, resident_id, total_amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.ResidentID, o.Total, o.Status, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) InsertOrderLine(ctx context.Context, l domain.OrderLine) error {
	_, err := m.q.ExecContext(ctx, `
		INSERT INTO order_lines (id, order_id, product_id, product_name, quantity, price)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.OrderID, l.ProductID, l.ProductName, l.Quantity, l.Price,
	)
	if err != nil {
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateOrderTotal(ctx context.Context, o domain.Order) error {
	_, err := m.q.ExecContext(ctx, `
		UPDATE orders SET total_amount = ?, updated_at = ? WHERE id = ?`,
		o.Total, time.Now().UTC(), o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := m.q.QueryRowContext(ctx, `
		SELECT id, resident_id, total_amount, status, created_at, updated_at
		FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.ResidentID, &o.Total, &o.Status, &o.CreatedAt, &o.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if o.Lines, err = m.orderLines(ctx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, residentID string) ([]domain.Order, error) {
	query := `SELECT id, resident_id, total_amount, status, created_at, updated_at FROM orders`
	var args []any
	if residentID != "" {
		query += ` WHERE resident_id = ?`
		args = append(args, residentID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := m.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.ResidentID, &o.Total, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	for i := range orders {
		if orders[i].Lines, err = m.orderLines(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (m *MySQLAdapter) orderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := m.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price
		FROM order_lines WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.OrderLine{}
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.Price); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	result, err := m.q.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update order status: rows affected: %w", err)
	}
	return rows == 1, nil
}

func (m *MySQLAdapter) CreateBill(ctx context.Context, b domain.Bill) error {
	_, err := m.q.ExecContext(ctx, `
		INSERT INTO bills (id, resident_id, amount, issue_date, due_date, bill_type, payment_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ResidentID, b.Amount, b.IssueDate, b.DueDate, b.BillType, b.PaymentStatus, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}
	return nil
}

const billColumns = `id, resident_id, amount, issue_date, due_date, bill_type, payment_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (domain.Bill, error) {
	var b domain.Bill
	err := row.Scan(&b.ID, &b.ResidentID, &b.Amount, &b.IssueDate, &b.DueDate,
		&b.BillType, &b.PaymentStatus, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (m *MySQLAdapter) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	b, err := scanBill(m.q.QueryRowContext(ctx, `SELECT `+billColumns+` FROM bills WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query bill: %w", err)
	}
	return &b, nil
}

func (m *MySQLAdapter) ListBills(ctx context.Context, filter domain.BillFilter) ([]domain.Bill, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ResidentID != "" {
		conds = append(conds, "resident_id = ?")
		args = append(args, filter.ResidentID)
	}
	if filter.PaymentStatus != "" {
		conds = append(conds, "payment_status = ?")
		args = append(args, filter.PaymentStatus)
	}

	query := `SELECT ` + billColumns + ` FROM bills`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY due_date DESC`

	rows, err := m.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	defer rows.Close()

	bills := []domain.Bill{}
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (m *MySQLAdapter) MarkBillPaid(ctx context.Context, id string) (bool, error) {
	result, err := m.q.ExecContext(ctx, `
		UPDATE bills SET payment_status = ?, updated_at = ?
		WHERE id = ? AND payment_status = ?`,
		domain.PaymentStatusPaid, time.Now().UTC(), id, domain.PaymentStatusUnpaid,
	)
	if err != nil {
		return false, fmt.Errorf("mark bill paid: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark bill paid: rows affected: %w", err)
	}
	return rows == 1, nil
}
