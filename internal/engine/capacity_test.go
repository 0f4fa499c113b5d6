package engine_test

import (
	"testing"
	"time"

	"loomline/internal/domain"
	"loomline/internal/engine"
)

func openOrder(id, deadline string, hours float64) domain.Order {
	return domain.Order{ID: id, Status: domain.StatusOpen, Deadline: deadline, ProductionHours: hours}
}

func TestUtilization(t *testing.T) {
	orders := []domain.Order{
		openOrder("a", "2024-02-01", 2),
		openOrder("b", "2024-02-01", 3),
		{ID: "c", Status: domain.StatusCompleted, Deadline: "2024-02-01", ProductionHours: 50},
	}
	if got := engine.PlannedHours(orders); got != 5 {
		t.Fatalf("planned hours = %v, want 5 (completed orders excluded)", got)
	}
	if got := engine.Utilization(orders, 200); got != 0.025 {
		t.Fatalf("utilization = %v, want 0.025", got)
	}
	if got := engine.Utilization(orders, 0); got != 0 {
		t.Fatalf("zero capacity must not divide: got %v", got)
	}
}

func TestUtilizationOverbookedUnclamped(t *testing.T) {
	orders := []domain.Order{openOrder("a", "2024-02-01", 300)}
	if got := engine.Utilization(orders, 200); got != 1.5 {
		t.Fatalf("utilization = %v, want 1.5; overbooking must stay visible", got)
	}
}

func TestDeadlineRiskInclusiveBoundary(t *testing.T) {
	ref := time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)

	if !engine.DeadlineRisk(openOrder("a", "2024-01-13", 1), 3, ref) {
		t.Fatalf("exactly horizon days out must already be at risk")
	}
	if engine.DeadlineRisk(openOrder("b", "2024-01-14", 1), 3, ref) {
		t.Fatalf("one day past the horizon must not be flagged")
	}
	if !engine.DeadlineRisk(openOrder("c", "2024-01-01", 1), 3, ref) {
		t.Fatalf("overdue orders are inside the horizon")
	}
	completed := domain.Order{ID: "d", Status: domain.StatusCompleted, Deadline: "2024-01-10"}
	if engine.DeadlineRisk(completed, 3, ref) {
		t.Fatalf("completed orders are never at risk")
	}
	if engine.DeadlineRisk(openOrder("e", "not-a-date", 1), 3, ref) {
		t.Fatalf("unparseable deadlines must not be flagged")
	}
}

func TestAtRiskKeepsOrdering(t *testing.T) {
	ref := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	orders := []domain.Order{
		openOrder("second", "2024-01-11", 1),
		openOrder("safe", "2024-03-01", 1),
		openOrder("third", "2024-01-12", 1),
	}
	got := engine.AtRisk(orders, 3, ref)
	if len(got) != 2 || got[0].ID != "second" || got[1].ID != "third" {
		t.Fatalf("at-risk filter must keep input order, got %+v", got)
	}
}

func TestSummaryCountsOverdueStrict(t *testing.T) {
	ref := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	completed := "2024-01-05T00:00:00Z"
	orders := []domain.Order{
		openOrder("due-today", "2024-01-10", 1),
		openOrder("late", "2024-01-09", 1),
		{ID: "done", Status: domain.StatusCompleted, Deadline: "2024-01-01", CompletedAt: &completed},
	}
	s := engine.SummaryCounts(orders, ref)
	if s.Open != 2 || s.Completed != 1 {
		t.Fatalf("counts = %+v", s)
	}
	// Due today is not overdue; strictly before the reference date is.
	if s.OverdueOpen != 1 {
		t.Fatalf("overdue = %d, want 1", s.OverdueOpen)
	}
}

func TestCompletionDuration(t *testing.T) {
	completed := "2024-01-01T05:30:00Z"
	o := domain.Order{
		ID:          "a",
		CreatedAt:   "2024-01-01T00:00:00Z",
		CompletedAt: &completed,
	}
	hours, err := engine.CompletionDuration(o)
	if err != nil {
		t.Fatalf("completion duration: %v", err)
	}
	if hours != 5.5 {
		t.Fatalf("hours = %v, want 5.5", hours)
	}

	if _, err := engine.CompletionDuration(domain.Order{ID: "b", CreatedAt: "2024-01-01T00:00:00Z"}); err == nil {
		t.Fatalf("missing completed_at must error")
	}
}
