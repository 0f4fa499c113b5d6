package repo

import (
	"context"
	"database/sql"
	"errors"

	"loomline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- products ---

func (r Repo) InsertProduct(ctx context.Context, tx *sql.Tx, p domain.Product) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO products(name,standard_hours,created_at) VALUES (?,?,?)`,
		p.Name, p.StandardHours, p.CreatedAt)
	return err
}

func (r Repo) GetProduct(ctx context.Context, name string) (domain.Product, error) {
	var p domain.Product
	err := r.DB.QueryRowContext(ctx, `SELECT name,standard_hours,created_at FROM products WHERE name=?`, name).
		Scan(&p.Name, &p.StandardHours, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ProductExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM products WHERE name=? LIMIT 1`, name).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) UpdateProduct(ctx context.Context, tx *sql.Tx, name string, p domain.Product) error {
	res, err := tx.ExecContext(ctx, `UPDATE products SET name=?, standard_hours=? WHERE name=?`,
		p.Name, p.StandardHours, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProduct(ctx context.Context, tx *sql.Tx, name string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE name=?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProducts returns the catalog in insertion order.
func (r Repo) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name,standard_hours,created_at FROM products ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.Name, &p.StandardHours, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// --- orders ---

const orderColumns = `id,name,product,urgency,cost,production_hours,score,deadline,status,created_at,completed_at`

func scanOrder(scan func(dest ...any) error) (domain.Order, error) {
	var o domain.Order
	var completed sql.NullString
	err := scan(&o.ID, &o.Name, &o.Product, &o.Urgency, &o.Cost, &o.ProductionHours,
		&o.Score, &o.Deadline, &o.Status, &o.CreatedAt, &completed)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if completed.Valid {
		o.CompletedAt = &completed.String
	}
	return o, err
}

func (r Repo) InsertOrder(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO orders(`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.Name, o.Product, o.Urgency, o.Cost, o.ProductionHours,
		o.Score, o.Deadline, o.Status, o.CreatedAt, nullable(o.CompletedAt))
	return err
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id)
	return scanOrder(row.Scan)
}

// ListOpenRanked returns open orders by score descending; ties keep
// submission order (seq), which makes the ranking stable.
func (r Repo) ListOpenRanked(ctx context.Context) ([]domain.Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE status=? ORDER BY score DESC, seq ASC`, domain.StatusOpen)
}

// ListOrders returns every order in submission order.
func (r Repo) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return r.listOrders(ctx, `SELECT ` + orderColumns + ` FROM orders ORDER BY seq ASC`)
}

func (r Repo) ListOrdersByStatus(ctx context.Context, status string) ([]domain.Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE status=? ORDER BY seq ASC`, status)
}

func (r Repo) listOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// MarkOrderCompleted flips status and stamps completed_at in one statement;
// the status guard keeps the transition one-way.
func (r Repo) MarkOrderCompleted(ctx context.Context, tx *sql.Tx, id, completedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET status=?, completed_at=? WHERE id=? AND status=?`,
		domain.StatusCompleted, completedAt, id, domain.StatusOpen)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
