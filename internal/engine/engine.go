package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"loomline/internal/config"
	"loomline/internal/domain"
	"loomline/internal/repo"
)

// Engine holds the catalog, the order ledger and the capacity accounting.
// The ledger is the single store of record; every mutation runs inside one
// transaction so a failed persist leaves nothing half-applied.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// --- product catalog ---

func (e Engine) AddProduct(ctx context.Context, name string, standardHours float64) (domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if standardHours <= 0 {
		return domain.Product{}, ValidationError{Field: "standard_hours", Reason: "must be positive"}
	}
	exists, err := e.Repo.ProductExists(ctx, name)
	if err != nil {
		return domain.Product{}, err
	}
	if exists {
		return domain.Product{}, DuplicateError{Name: name}
	}
	p := domain.Product{
		Name:          name,
		StandardHours: standardHours,
		CreatedAt:     e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Product{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProduct(ctx, tx, p); err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// ProductUpdateOptions are parameters for renaming and/or re-houring a
// catalog entry. Nil fields are left unchanged.
type ProductUpdateOptions struct {
	Name     string
	NewName  *string
	NewHours *float64
}

func (e Engine) UpdateProduct(ctx context.Context, opts ProductUpdateOptions) (domain.Product, error) {
	p, err := e.Repo.GetProduct(ctx, opts.Name)
	if err != nil {
		return domain.Product{}, err
	}
	if opts.NewName != nil {
		newName := strings.TrimSpace(*opts.NewName)
		if newName == "" {
			return domain.Product{}, ValidationError{Field: "new_name", Reason: "must not be empty"}
		}
		if newName != p.Name {
			exists, err := e.Repo.ProductExists(ctx, newName)
			if err != nil {
				return domain.Product{}, err
			}
			if exists {
				return domain.Product{}, DuplicateError{Name: newName}
			}
		}
		p.Name = newName
	}
	if opts.NewHours != nil {
		if *opts.NewHours <= 0 {
			return domain.Product{}, ValidationError{Field: "standard_hours", Reason: "must be positive"}
		}
		p.StandardHours = *opts.NewHours
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Product{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProduct(ctx, tx, opts.Name, p); err != nil {
		return domain.Product{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// RemoveProduct deletes a catalog entry. Orders keep the hours snapshot
// taken at submission, so nothing cascades.
func (e Engine) RemoveProduct(ctx context.Context, name string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProduct(ctx, tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return e.Repo.ListProducts(ctx)
}

// --- order ledger ---

// OrderSubmitOptions are parameters for placing an order.
type OrderSubmitOptions struct {
	Name     string
	Product  string
	Urgency  int
	Cost     float64
	Deadline string // YYYY-MM-DD
}

// SubmitOrder resolves the product's current standard hours, snapshots them
// on the order, computes the score and appends the order to the ledger.
func (e Engine) SubmitOrder(ctx context.Context, opts OrderSubmitOptions) (domain.Order, error) {
	if e.Config == nil {
		return domain.Order{}, errors.New("config not loaded")
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Order{}, ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if opts.Urgency < 1 || opts.Urgency > 10 {
		return domain.Order{}, ValidationError{Field: "urgency", Reason: "must be in 1..10"}
	}
	scaleMax := e.Config.Scoring.CostScaleMax
	if opts.Cost <= 0 || opts.Cost > scaleMax {
		return domain.Order{}, ValidationError{Field: "cost", Reason: fmt.Sprintf("must be in (0,%g]", scaleMax)}
	}
	deadline, err := time.Parse("2006-01-02", opts.Deadline)
	if err != nil {
		return domain.Order{}, ValidationError{Field: "deadline", Reason: "want YYYY-MM-DD"}
	}
	p, err := e.Repo.GetProduct(ctx, opts.Product)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Order{}, ValidationError{Field: "product", Reason: fmt.Sprintf("unknown product %q", opts.Product)}
		}
		return domain.Order{}, err
	}
	o := domain.Order{
		ID:              uuid.New().String(),
		Name:            name,
		Product:         p.Name,
		Urgency:         opts.Urgency,
		Cost:            opts.Cost,
		ProductionHours: p.StandardHours,
		Score:           Score(opts.Urgency, p.StandardHours, opts.Cost, scaleMax),
		Deadline:        deadline.Format("2006-01-02"),
		Status:          domain.StatusOpen,
		CreatedAt:       e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOrder(ctx, tx, o); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// ListOpen returns the production queue: open orders by score descending,
// ties kept in submission order.
func (e Engine) ListOpen(ctx context.Context) ([]domain.Order, error) {
	return e.Repo.ListOpenRanked(ctx)
}

func (e Engine) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return e.Repo.GetOrder(ctx, id)
}

func (e Engine) ListOrders(ctx context.Context, status string) ([]domain.Order, error) {
	switch status {
	case "", "all":
		return e.Repo.ListOrders(ctx)
	case domain.StatusOpen:
		return e.Repo.ListOpenRanked(ctx)
	case domain.StatusCompleted:
		return e.Repo.ListOrdersByStatus(ctx, status)
	default:
		return nil, ValidationError{Field: "status", Reason: "want open, completed or all"}
	}
}

// Complete transitions an order Open -> Completed and stamps completed_at
// exactly once. Completed is terminal.
func (e Engine) Complete(ctx context.Context, id string) (domain.Order, error) {
	o, err := e.Repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.StatusOpen {
		return domain.Order{}, InvalidStateError{OrderID: id, Status: o.Status}
	}
	completedAt := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.MarkOrderCompleted(ctx, tx, id, completedAt); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.StatusCompleted
	o.CompletedAt = &completedAt
	return o, nil
}
