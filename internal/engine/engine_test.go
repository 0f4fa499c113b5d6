package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"loomline/internal/config"
	"loomline/internal/db"
	"loomline/internal/domain"
	"loomline/internal/engine"
	"loomline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	for _, p := range []struct {
		name  string
		hours float64
	}{{"Knit Tee", 2}, {"Knit Pants", 4}} {
		if _, err := eng.AddProduct(ctx, p.name, p.hours); err != nil {
			t.Fatalf("add product %s: %v", p.name, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func submit(t *testing.T, env testEnv, opts engine.OrderSubmitOptions) domain.Order {
	t.Helper()
	o, err := env.Engine.SubmitOrder(env.Ctx, opts)
	if err != nil {
		t.Fatalf("submit order %s: %v", opts.Name, err)
	}
	return o
}

func TestSubmitOrderUrgencyBounds(t *testing.T) {
	env := newTestEnv(t)
	base := engine.OrderSubmitOptions{Name: "o", Product: "Knit Tee", Cost: 5, Deadline: "2024-02-01"}

	for _, urgency := range []int{0, 11, -3} {
		opts := base
		opts.Urgency = urgency
		_, err := env.Engine.SubmitOrder(env.Ctx, opts)
		var verr engine.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("urgency %d: want ValidationError, got %v", urgency, err)
		}
	}
	for _, urgency := range []int{1, 10} {
		opts := base
		opts.Urgency = urgency
		if _, err := env.Engine.SubmitOrder(env.Ctx, opts); err != nil {
			t.Fatalf("urgency %d should be accepted: %v", urgency, err)
		}
	}
}

func TestSubmitOrderUnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SubmitOrder(env.Ctx, engine.OrderSubmitOptions{
		Name: "o", Product: "Woven Jacket", Urgency: 5, Cost: 5, Deadline: "2024-02-01",
	})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError for unknown product, got %v", err)
	}
}

func TestQueueRankedWithStableTies(t *testing.T) {
	env := newTestEnv(t)
	// Same product, urgency and cost score identically; submission order must
	// break the tie.
	first := submit(t, env, engine.OrderSubmitOptions{Name: "first", Product: "Knit Tee", Urgency: 5, Cost: 5, Deadline: "2024-02-01"})
	second := submit(t, env, engine.OrderSubmitOptions{Name: "second", Product: "Knit Tee", Urgency: 5, Cost: 5, Deadline: "2024-02-01"})
	top := submit(t, env, engine.OrderSubmitOptions{Name: "top", Product: "Knit Tee", Urgency: 10, Cost: 1, Deadline: "2024-02-01"})

	open, err := env.Engine.ListOpen(env.Ctx)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 3 {
		t.Fatalf("want 3 open orders, got %d", len(open))
	}
	if open[0].ID != top.ID {
		t.Fatalf("highest score should rank first, got %s", open[0].Name)
	}
	if open[1].ID != first.ID || open[2].ID != second.ID {
		t.Fatalf("tied orders must keep submission order, got %s then %s", open[1].Name, open[2].Name)
	}
}

func TestScoreSnapshotSurvivesCatalogEdit(t *testing.T) {
	env := newTestEnv(t)
	o := submit(t, env, engine.OrderSubmitOptions{Name: "o", Product: "Knit Tee", Urgency: 5, Cost: 5, Deadline: "2024-02-01"})

	newHours := 9.0
	if _, err := env.Engine.UpdateProduct(env.Ctx, engine.ProductUpdateOptions{Name: "Knit Tee", NewHours: &newHours}); err != nil {
		t.Fatalf("update product: %v", err)
	}
	got, err := env.Engine.GetOrder(env.Ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.ProductionHours != 2 || got.Score != o.Score {
		t.Fatalf("order must keep its submission snapshot, got hours=%v score=%v", got.ProductionHours, got.Score)
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	o := submit(t, env, engine.OrderSubmitOptions{Name: "o", Product: "Knit Tee", Urgency: 5, Cost: 5, Deadline: "2024-02-01"})

	done, err := env.Engine.Complete(env.Ctx, o.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("completed order missing status or timestamp: %+v", done)
	}

	_, err = env.Engine.Complete(env.Ctx, o.ID)
	var serr engine.InvalidStateError
	if !errors.As(err, &serr) {
		t.Fatalf("second complete: want InvalidStateError, got %v", err)
	}
	again, err := env.Engine.GetOrder(env.Ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if again.CompletedAt == nil || *again.CompletedAt != *done.CompletedAt {
		t.Fatalf("completed_at must be stamped exactly once")
	}
}

func TestAddProductDuplicate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AddProduct(env.Ctx, "Knit Tee", 3)
	var derr engine.DuplicateError
	if !errors.As(err, &derr) {
		t.Fatalf("want DuplicateError, got %v", err)
	}
}

func TestRemoveProductKeepsOrders(t *testing.T) {
	env := newTestEnv(t)
	o := submit(t, env, engine.OrderSubmitOptions{Name: "o", Product: "Knit Pants", Urgency: 5, Cost: 5, Deadline: "2024-02-01"})
	if err := env.Engine.RemoveProduct(env.Ctx, "Knit Pants"); err != nil {
		t.Fatalf("remove product: %v", err)
	}
	got, err := env.Engine.GetOrder(env.Ctx, o.ID)
	if err != nil {
		t.Fatalf("order should survive catalog removal: %v", err)
	}
	if got.ProductionHours != 4 {
		t.Fatalf("order lost its hours snapshot: %v", got.ProductionHours)
	}
}

func TestListOrdersStatusFilter(t *testing.T) {
	env := newTestEnv(t)
	a := submit(t, env, engine.OrderSubmitOptions{Name: "a", Product: "Knit Tee", Urgency: 5, Cost: 5, Deadline: "2024-02-01"})
	submit(t, env, engine.OrderSubmitOptions{Name: "b", Product: "Knit Tee", Urgency: 5, Cost: 5, Deadline: "2024-02-01"})
	if _, err := env.Engine.Complete(env.Ctx, a.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	open, err := env.Engine.ListOrders(env.Ctx, "open")
	if err != nil || len(open) != 1 {
		t.Fatalf("open filter: %v (%d)", err, len(open))
	}
	completed, err := env.Engine.ListOrders(env.Ctx, "completed")
	if err != nil || len(completed) != 1 {
		t.Fatalf("completed filter: %v (%d)", err, len(completed))
	}
	all, err := env.Engine.ListOrders(env.Ctx, "all")
	if err != nil || len(all) != 2 {
		t.Fatalf("all filter: %v (%d)", err, len(all))
	}
	if _, err := env.Engine.ListOrders(env.Ctx, "bogus"); err == nil {
		t.Fatalf("bogus status should be rejected")
	}
}
