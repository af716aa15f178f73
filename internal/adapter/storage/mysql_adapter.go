package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

var ErrOptimisticLock = errors.New("optimistic lock conflict")

const (
	mysqlDuplicateEntry = 1062

	defaultCASAttempts  = 5
	defaultCASBaseDelay = 5 * time.Millisecond
)

type MySQLAdapter struct {
	db          *sql.DB
	casAttempts int
	casDelay    time.Duration
}

// NewMySQLAdapter returns a store whose ApplyDelta retries version conflicts up
// to casAttempts times.
func NewMySQLAdapter(db *sql.DB, casAttempts int) *MySQLAdapter {
	if casAttempts <= 0 {
		casAttempts = defaultCASAttempts
	}
	return &MySQLAdapter{db: db, casAttempts: casAttempts, casDelay: defaultCASBaseDelay}
}

func (m *MySQLAdapter) GetQuantity(ctx context.Context, productID, holderID string) (int64, error) {
	var qty int64
	err := m.db.QueryRowContext(ctx, `
		SELECT quantity FROM allocations WHERE product_id = ? AND holder_id = ?`,
		productID, holderID,
	).Scan(&qty)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query allocation: %w", err)
	}
	return qty, nil
}

func (m *MySQLAdapter) SumForProduct(ctx context.Context, productID string) (int64, error) {
	var total int64
	err := m.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM allocations WHERE product_id = ?`, productID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum allocations: %w", err)
	}
	return total, nil
}

func (m *MySQLAdapter) ListForHolder(ctx context.Context, holderID string) ([]domain.Allocation, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, holder_id, quantity, active, version, created_at, updated_at
		FROM allocations WHERE holder_id = ?
		ORDER BY product_id`, holderID)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	var out []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.ProductID, &a.HolderID, &a.Quantity, &a.Active, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}
	return out, nil
}

// ApplyDelta is a compare-and-swap on the row version. A lost race writes
// nothing, so it is retried with backoff.
func (m *MySQLAdapter) ApplyDelta(ctx context.Context, productID, holderID string, delta int64) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < m.casAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, exponentialWithJitter(m.casDelay, attempt-1)); err != nil {
				return 0, err
			}
		}

		qty, err := m.tryApplyDelta(ctx, productID, holderID, delta)
		if errors.Is(err, ErrOptimisticLock) {
			lastErr = err
			continue
		}
		return qty, err
	}

	return 0, fmt.Errorf("%w: %s/%s after %d attempts: %w", domain.ErrConflict, productID, holderID, m.casAttempts, lastErr)
}

func (m *MySQLAdapter) tryApplyDelta(ctx context.Context, productID, holderID string, delta int64) (int64, error) {
	var qty, version int64
	err := m.db.QueryRowContext(ctx, `
		SELECT quantity, version FROM allocations WHERE product_id = ? AND holder_id = ?`,
		productID, holderID,
	).Scan(&qty, &version)

	if errors.Is(err, sql.ErrNoRows) {
		if delta < 0 {
			return 0, fmt.Errorf("%w: holder %s has no allocation of %s", domain.ErrInsufficientStock, holderID, productID)
		}

		_, err = m.db.ExecContext(ctx, `
			INSERT INTO allocations (product_id, holder_id, quantity, active, version, created_at, updated_at)
			VALUES (?, ?, ?, TRUE, 1, NOW(6), NOW(6))`,
			productID, holderID, delta,
		)
		if isDuplicateEntry(err) {
			return 0, ErrOptimisticLock
		}
		if err != nil {
			return 0, fmt.Errorf("insert allocation: %w", err)
		}
		return delta, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query allocation: %w", err)
	}

	newQty := qty + delta
	if newQty < 0 {
		return 0, fmt.Errorf("%w: holder %s has %d of %s, change %d",
			domain.ErrInsufficientStock, holderID, qty, productID, delta)
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE allocations
		SET quantity = ?, version = version + 1, updated_at = NOW(6)
		WHERE product_id = ? AND holder_id = ? AND version = ?`,
		newQty, productID, holderID, version,
	)
	if err != nil {
		return 0, fmt.Errorf("update allocation: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return 0, ErrOptimisticLock
	}

	return newQty, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, color, imei, barcode, description, supplier,
		       purchased_quantity, unit_cost, unit_price, created_at
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.Color, &p.IMEI, &p.Barcode, &p.Description, &p.Supplier,
		&p.PurchasedQuantity, &p.UnitCost, &p.UnitPrice, &p.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, color, imei, barcode, description, supplier,
		                      purchased_quantity, unit_cost, unit_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Color, p.IMEI, p.Barcode, p.Description, p.Supplier,
		p.PurchasedQuantity, p.UnitCost, p.UnitPrice, p.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("product %s: %w", p.ID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateSale(ctx context.Context, sale domain.Sale) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, holder_id, request_id, customer_name, customer_phone, notes, total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.HolderID, sale.Metadata.RequestID, sale.Metadata.CustomerName,
		sale.Metadata.CustomerPhone, sale.Metadata.Notes, sale.Total, sale.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("sale %s: %w", sale.ID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	for i, l := range sale.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)`,
			sale.ID, i+1, l.ProductID, l.Quantity, l.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert sale line %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	sales, err := m.querySales(ctx, `WHERE s.id = ?`, saleID)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, fmt.Errorf("sale %s: %w", saleID, domain.ErrNotFound)
	}
	return &sales[0], nil
}

func (m *MySQLAdapter) ListSalesByHolder(ctx context.Context, holderID string) ([]domain.Sale, error) {
	return m.querySales(ctx, `WHERE s.holder_id = ?`, holderID)
}

func (m *MySQLAdapter) querySales(ctx context.Context, where string, arg any) ([]domain.Sale, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT s.id, s.holder_id, s.request_id, s.customer_name, s.customer_phone, s.notes,
		       s.total, s.created_at, l.product_id, l.quantity, l.unit_price
		FROM sales s
		JOIN sale_lines l ON l.sale_id = s.id
		`+where+`
		ORDER BY s.created_at DESC, s.id, l.line_no`, arg)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var out []domain.Sale
	for rows.Next() {
		var s domain.Sale
		var l domain.SaleLine
		if err := rows.Scan(&s.ID, &s.HolderID, &s.Metadata.RequestID, &s.Metadata.CustomerName,
			&s.Metadata.CustomerPhone, &s.Metadata.Notes, &s.Total, &s.CreatedAt,
			&l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}

		if n := len(out); n > 0 && out[n-1].ID == s.ID {
			out[n-1].Lines = append(out[n-1].Lines, l)
			continue
		}
		s.Lines = []domain.SaleLine{l}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}
	return out, nil
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
