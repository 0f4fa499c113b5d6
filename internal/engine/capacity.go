package engine

import (
	"fmt"
	"time"

	"loomline/internal/domain"
)

// PlannedHours sums snapshot production hours across open orders.
func PlannedHours(orders []domain.Order) float64 {
	var total float64
	for _, o := range orders {
		if o.Status == domain.StatusOpen {
			total += o.ProductionHours
		}
	}
	return total
}

// Utilization is planned hours over weekly capacity. Deliberately unclamped:
// a value above 1.0 is the overbooking alert.
func Utilization(orders []domain.Order, weeklyCapacity float64) float64 {
	if weeklyCapacity == 0 {
		return 0
	}
	return PlannedHours(orders) / weeklyCapacity
}

// DeadlineRisk reports whether an open order has horizonDays or fewer days
// left before its deadline at referenceDate. The boundary is inclusive:
// exactly horizonDays remaining is already at risk. Unparseable deadlines
// are not flagged.
func DeadlineRisk(o domain.Order, horizonDays int, referenceDate time.Time) bool {
	if o.Status != domain.StatusOpen {
		return false
	}
	deadline, err := time.Parse("2006-01-02", o.Deadline)
	if err != nil {
		return false
	}
	ref := truncateToDate(referenceDate)
	return !deadline.AddDate(0, 0, -horizonDays).After(ref)
}

// AtRisk filters open orders inside the deadline horizon, keeping the
// ordering passed in.
func AtRisk(orders []domain.Order, horizonDays int, referenceDate time.Time) []domain.Order {
	var res []domain.Order
	for _, o := range orders {
		if DeadlineRisk(o, horizonDays, referenceDate) {
			res = append(res, o)
		}
	}
	return res
}

// SummaryCounts tallies open, overdue-open and completed orders. Overdue is
// strict (deadline before referenceDate), distinct from the horizon warning.
func SummaryCounts(orders []domain.Order, referenceDate time.Time) domain.Summary {
	ref := truncateToDate(referenceDate)
	var s domain.Summary
	for _, o := range orders {
		switch o.Status {
		case domain.StatusOpen:
			s.Open++
			if deadline, err := time.Parse("2006-01-02", o.Deadline); err == nil && deadline.Before(ref) {
				s.OverdueOpen++
			}
		case domain.StatusCompleted:
			s.Completed++
		}
	}
	return s
}

// CompletionDuration is the time from submission to completion in fractional
// hours.
func CompletionDuration(o domain.Order) (float64, error) {
	if o.CompletedAt == nil {
		return 0, fmt.Errorf("order %s has no completion timestamp", o.ID)
	}
	created, err := time.Parse(time.RFC3339, o.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("order %s created_at: %w", o.ID, err)
	}
	completed, err := time.Parse(time.RFC3339, *o.CompletedAt)
	if err != nil {
		return 0, fmt.Errorf("order %s completed_at: %w", o.ID, err)
	}
	return completed.Sub(created).Hours(), nil
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
